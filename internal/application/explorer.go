package application

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"bcexplorer/internal/domain"
)

// ExplorerObserver receives lookup bookkeeping events, typically metrics.
type ExplorerObserver interface {
	OnLatestBlock(block uint64)
	OnLookupRecorded(kind domain.LookupKind, err error)
}

type ExplorerConfig struct {
	HistoryLimit  int
	RecordTimeout time.Duration
}

type Explorer struct {
	source   ChainSource
	history  HistoryReader
	sink     LookupSink
	observer ExplorerObserver
	cfg      ExplorerConfig
	now      func() time.Time
}

func NewExplorer(source ChainSource, history HistoryReader, sink LookupSink, observer ExplorerObserver, cfg ExplorerConfig) (*Explorer, error) {
	if source == nil {
		return nil, errors.New("chain source is required")
	}
	cfg.HistoryLimit = NormalizeLimit(cfg.HistoryLimit)
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 2 * time.Second
	}
	return &Explorer{
		source:   source,
		history:  history,
		sink:     sink,
		observer: observer,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

func (e *Explorer) BlockNumber(ctx context.Context) (uint64, error) {
	number, err := e.source.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if e.observer != nil {
		e.observer.OnLatestBlock(number)
	}
	return number, nil
}

func (e *Explorer) BlockInfo(ctx context.Context, number uint64) (domain.Block, error) {
	return e.source.BlockByNumber(ctx, number, false)
}

// LatestBlockInfo resolves the head number first and then loads that block.
func (e *Explorer) LatestBlockInfo(ctx context.Context) (domain.Block, error) {
	number, err := e.BlockNumber(ctx)
	if err != nil {
		return domain.Block{}, err
	}
	return e.BlockInfo(ctx, number)
}

func (e *Explorer) BlockTransactions(ctx context.Context, number uint64) ([]domain.Transaction, error) {
	block, err := e.source.BlockByNumber(ctx, number, true)
	if err != nil {
		return nil, err
	}
	return block.Transactions, nil
}

func (e *Explorer) Transaction(ctx context.Context, rawHash string) (domain.Transaction, error) {
	hash, err := ValidateTxHash(rawHash)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx, err := e.source.TransactionByHash(ctx, hash)
	if err != nil {
		return domain.Transaction{}, err
	}
	e.record(ctx, domain.LookupTransaction, hash)
	return tx, nil
}

func (e *Explorer) Balance(ctx context.Context, rawAddress string) (domain.Balance, error) {
	address, err := ValidateAddress(rawAddress)
	if err != nil {
		return domain.Balance{}, err
	}
	wei, err := e.source.Balance(ctx, address)
	if err != nil {
		return domain.Balance{}, err
	}
	e.record(ctx, domain.LookupBalance, address)
	return domain.Balance{Address: address, Wei: wei}, nil
}

// LookupBlock resolves raw (a number, or empty/"latest" for the head) and
// loads that block. Only explicitly numbered blocks are recorded.
func (e *Explorer) LookupBlock(ctx context.Context, raw string, fullTx bool) (domain.Block, error) {
	number, explicit, err := ParseBlockNumber(raw)
	if err != nil {
		return domain.Block{}, err
	}
	if !explicit {
		if number, err = e.BlockNumber(ctx); err != nil {
			return domain.Block{}, err
		}
	}
	block, err := e.source.BlockByNumber(ctx, number, fullTx)
	if err != nil {
		return domain.Block{}, err
	}
	if explicit {
		e.record(ctx, domain.LookupBlock, strconv.FormatUint(number, 10))
	}
	return block, nil
}

func (e *Explorer) RecentLookups(ctx context.Context, limit int) ([]domain.Lookup, error) {
	return e.LookupHistory(ctx, LookupQueryFilter{Limit: limit})
}

func (e *Explorer) LookupHistory(ctx context.Context, filter LookupQueryFilter) ([]domain.Lookup, error) {
	if e.history == nil {
		return nil, nil
	}
	filter.Limit = NormalizeLimit(filter.Limit)
	return e.history.RecentLookups(ctx, filter)
}

// record stores a successful lookup. Sink failures are logged and never
// reach the caller.
func (e *Explorer) record(ctx context.Context, kind domain.LookupKind, key string) {
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RecordTimeout)
	defer cancel()

	err := e.sink.RecordLookup(ctx, domain.Lookup{Kind: kind, Key: key, At: e.now().UTC()})
	if err != nil {
		slog.Warn("record lookup failed", "kind", kind, "key", key, "err", err)
	}
	if e.observer != nil {
		e.observer.OnLookupRecorded(kind, err)
	}
}

type BlockViewRequest struct {
	Block            string
	ShowTransactions bool
}

// BlockView is the default page: head number, one block and its
// transactions behind a disclosure.
type BlockView struct {
	Requested    *uint64
	Number       *Section[uint64]
	Block        *Section[domain.Block]
	Transactions *Disclosure[[]domain.Transaction]
	Recent       *Section[[]domain.Lookup]
}

func (e *Explorer) BlockView(ctx context.Context, req BlockViewRequest) *BlockView {
	view := &BlockView{
		Number: &Section[uint64]{},
		Block:  &Section[domain.Block]{},
		Recent: &Section[[]domain.Lookup]{},
	}
	view.Transactions = NewDisclosure(func(ctx context.Context) ([]domain.Transaction, error) {
		state := view.Block.Snapshot()
		if !state.Loaded {
			return nil, domain.ErrNotFound
		}
		return e.BlockTransactions(ctx, state.Value.Number)
	})

	number, explicit, err := ParseBlockNumber(req.Block)
	if err != nil {
		view.Block.Fail(err)
	}
	if explicit {
		view.Requested = &number
	}

	loads := newSectionLoads()
	loads.Go(func() {
		if err := view.Number.Run(ctx, e.BlockNumber); err != nil || explicit || view.Block.Err() != nil {
			return
		}
		_ = view.Block.Run(ctx, func(ctx context.Context) (domain.Block, error) {
			return e.BlockInfo(ctx, view.Number.Snapshot().Value)
		})
	})
	if explicit {
		loads.Go(func() {
			if view.Block.Run(ctx, func(ctx context.Context) (domain.Block, error) {
				return e.BlockInfo(ctx, number)
			}) == nil {
				e.record(ctx, domain.LookupBlock, strconv.FormatUint(number, 10))
			}
		})
	}
	loads.Go(func() {
		_ = view.Recent.Run(ctx, func(ctx context.Context) ([]domain.Lookup, error) {
			return e.RecentLookups(ctx, e.cfg.HistoryLimit)
		})
	})
	loads.Wait()

	if req.ShowTransactions {
		view.Transactions.Open()
		_ = view.Transactions.Ensure(ctx)
	}
	return view
}

// TransactionView shows one transaction and how deep it is buried.
type TransactionView struct {
	Hash        string
	Transaction *Section[domain.Transaction]
	Head        *Section[uint64]
	Recent      *Section[[]domain.Lookup]
}

func (v *TransactionView) Confirmations() (uint64, bool) {
	tx := v.Transaction.Snapshot()
	head := v.Head.Snapshot()
	if !tx.Loaded || !head.Loaded || tx.Value.Pending() {
		return 0, false
	}
	return tx.Value.Confirmations(head.Value), true
}

func (e *Explorer) TransactionView(ctx context.Context, rawHash string) *TransactionView {
	view := &TransactionView{
		Hash:        rawHash,
		Transaction: &Section[domain.Transaction]{},
		Head:        &Section[uint64]{},
		Recent:      &Section[[]domain.Lookup]{},
	}

	loads := newSectionLoads()
	if _, err := ValidateTxHash(rawHash); err != nil {
		view.Transaction.Fail(err)
	} else {
		loads.Go(func() {
			_ = view.Transaction.Run(ctx, func(ctx context.Context) (domain.Transaction, error) {
				return e.Transaction(ctx, rawHash)
			})
		})
		loads.Go(func() {
			_ = view.Head.Run(ctx, e.BlockNumber)
		})
	}
	loads.Go(func() {
		_ = view.Recent.Run(ctx, func(ctx context.Context) ([]domain.Lookup, error) {
			return e.RecentLookups(ctx, e.cfg.HistoryLimit)
		})
	})
	loads.Wait()
	return view
}

// BalanceView is the user page. An empty address leaves the balance
// section idle so the page shows only the form.
type BalanceView struct {
	Address string
	Balance *Section[domain.Balance]
	Recent  *Section[[]domain.Lookup]
}

func (e *Explorer) BalanceView(ctx context.Context, rawAddress string, submitted bool) *BalanceView {
	view := &BalanceView{
		Address: rawAddress,
		Balance: &Section[domain.Balance]{},
		Recent:  &Section[[]domain.Lookup]{},
	}

	loads := newSectionLoads()
	if _, err := ValidateAddress(rawAddress); err != nil {
		if submitted || rawAddress != "" {
			view.Balance.Fail(err)
		}
	} else {
		loads.Go(func() {
			_ = view.Balance.Run(ctx, func(ctx context.Context) (domain.Balance, error) {
				return e.Balance(ctx, rawAddress)
			})
		})
	}
	loads.Go(func() {
		_ = view.Recent.Run(ctx, func(ctx context.Context) ([]domain.Lookup, error) {
			return e.RecentLookups(ctx, e.cfg.HistoryLimit)
		})
	})
	loads.Wait()
	return view
}
