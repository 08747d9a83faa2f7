package application

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"bcexplorer/internal/domain"
)

const testHash = "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b"

type fakeSource struct {
	mu         sync.Mutex
	head       uint64
	headErr    error
	blockErr   error
	txErr      error
	balance    *big.Int
	balanceErr error
	calls      map[string]int
	fullTx     []bool
	numbers    []uint64
}

func (f *fakeSource) count(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
}

func (f *fakeSource) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeSource) LatestBlockNumber(ctx context.Context) (uint64, error) {
	f.count("LatestBlockNumber")
	return f.head, f.headErr
}

func (f *fakeSource) BlockByNumber(ctx context.Context, number uint64, fullTx bool) (domain.Block, error) {
	f.count("BlockByNumber")
	f.mu.Lock()
	f.fullTx = append(f.fullTx, fullTx)
	f.numbers = append(f.numbers, number)
	f.mu.Unlock()
	if f.blockErr != nil {
		return domain.Block{}, f.blockErr
	}
	block := domain.Block{Number: number, Hash: "0xblock"}
	if fullTx {
		block.Transactions = []domain.Transaction{{Hash: "0xa"}, {Hash: "0xb"}}
	}
	return block, nil
}

func (f *fakeSource) TransactionByHash(ctx context.Context, hash string) (domain.Transaction, error) {
	f.count("TransactionByHash")
	if f.txErr != nil {
		return domain.Transaction{}, f.txErr
	}
	number := uint64(90)
	return domain.Transaction{Hash: hash, BlockNumber: &number}, nil
}

func (f *fakeSource) Balance(ctx context.Context, address string) (*big.Int, error) {
	f.count("Balance")
	return f.balance, f.balanceErr
}

type memorySink struct {
	mu      sync.Mutex
	lookups []domain.Lookup
	err     error
}

func (m *memorySink) RecordLookup(ctx context.Context, lookup domain.Lookup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.lookups = append(m.lookups, lookup)
	return nil
}

func (m *memorySink) RecentLookups(ctx context.Context, filter LookupQueryFilter) ([]domain.Lookup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.Lookup(nil), m.lookups...)
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type countingObserver struct {
	mu       sync.Mutex
	latest   uint64
	recorded int
	failed   int
}

func (o *countingObserver) OnLatestBlock(block uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.latest = block
}

func (o *countingObserver) OnLookupRecorded(kind domain.LookupKind, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed++
		return
	}
	o.recorded++
}

func newTestExplorer(t *testing.T, source ChainSource, sink *memorySink, observer ExplorerObserver) *Explorer {
	t.Helper()
	var (
		history HistoryReader
		lookups LookupSink
	)
	if sink != nil {
		history = sink
		lookups = sink
	}
	explorer, err := NewExplorer(source, history, lookups, observer, ExplorerConfig{HistoryLimit: 5})
	if err != nil {
		t.Fatalf("new explorer: %v", err)
	}
	return explorer
}

func TestNewExplorer_RequiresSource(t *testing.T) {
	if _, err := NewExplorer(nil, nil, nil, nil, ExplorerConfig{}); err == nil {
		t.Fatal("expected error without source")
	}
}

func TestLatestBlockInfo(t *testing.T) {
	source := &fakeSource{head: 100}
	observer := &countingObserver{}
	explorer := newTestExplorer(t, source, nil, observer)

	block, err := explorer.LatestBlockInfo(context.Background())
	if err != nil {
		t.Fatalf("latest block info: %v", err)
	}
	if block.Number != 100 {
		t.Errorf("expected block 100, got %d", block.Number)
	}
	if observer.latest != 100 {
		t.Errorf("observer should see head 100, got %d", observer.latest)
	}
	if source.fullTx[0] {
		t.Error("block info should not request full transactions")
	}
}

func TestInvalidInputMakesNoProviderCall(t *testing.T) {
	source := &fakeSource{}
	explorer := newTestExplorer(t, source, nil, nil)
	ctx := context.Background()

	if _, err := explorer.Transaction(ctx, "0xdead"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("expected invalid hash, got %v", err)
	}
	if _, err := explorer.Transaction(ctx, ""); !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected missing input, got %v", err)
	}
	if _, err := explorer.Balance(ctx, "not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected invalid address, got %v", err)
	}

	view := explorer.BalanceView(ctx, "0x12", true)
	if view.Balance.Snapshot().Err == "" {
		t.Error("balance view should show the validation error")
	}
	txView := explorer.TransactionView(ctx, "nope")
	if txView.Transaction.Snapshot().Err == "" {
		t.Error("transaction view should show the validation error")
	}
	blockView := explorer.BlockView(ctx, BlockViewRequest{Block: "abc"})
	if blockView.Block.Snapshot().Err == "" {
		t.Error("block view should show the validation error")
	}

	for _, method := range []string{"TransactionByHash", "Balance", "BlockByNumber"} {
		if n := source.callCount(method); n != 0 {
			t.Errorf("%s called %d times for invalid input", method, n)
		}
	}
}

func TestBalance_RecordsLookup(t *testing.T) {
	source := &fakeSource{balance: big.NewInt(1500000000000000000)}
	sink := &memorySink{}
	observer := &countingObserver{}
	explorer := newTestExplorer(t, source, sink, observer)

	balance, err := explorer.Balance(context.Background(), "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Ether() != "1.5" {
		t.Errorf("expected 1.5 ether, got %s", balance.Ether())
	}
	if len(sink.lookups) != 1 || sink.lookups[0].Kind != domain.LookupBalance {
		t.Fatalf("expected one balance lookup, got %+v", sink.lookups)
	}
	if sink.lookups[0].Key != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("lookup should store checksummed address, got %s", sink.lookups[0].Key)
	}
	if observer.recorded != 1 {
		t.Errorf("expected observer to count the lookup")
	}
}

func TestSinkFailureDoesNotFailLookup(t *testing.T) {
	source := &fakeSource{}
	sink := &memorySink{err: errors.New("db down")}
	observer := &countingObserver{}
	explorer := newTestExplorer(t, source, sink, observer)

	if _, err := explorer.Transaction(context.Background(), testHash); err != nil {
		t.Fatalf("sink failure leaked into lookup: %v", err)
	}
	if observer.failed != 1 {
		t.Errorf("expected failed record to be observed")
	}
}

func TestBlockView_SectionsFailIndependently(t *testing.T) {
	source := &fakeSource{headErr: errors.New("rate limited")}
	sink := &memorySink{}
	explorer := newTestExplorer(t, source, sink, nil)

	view := explorer.BlockView(context.Background(), BlockViewRequest{})
	if view.Number.Snapshot().Err != "Provider error: rate limited" {
		t.Errorf("unexpected number error %q", view.Number.Snapshot().Err)
	}
	if !view.Block.Snapshot().Idle() {
		t.Errorf("block section should stay idle without a head number")
	}
	if !view.Recent.Snapshot().Loaded {
		t.Errorf("recent lookups should load despite provider failure")
	}
}

// failingTxSource fails transaction lookups and closes failed once it has.
type failingTxSource struct {
	fakeSource
	failed chan struct{}
	once   sync.Once
}

func (f *failingTxSource) TransactionByHash(ctx context.Context, hash string) (domain.Transaction, error) {
	defer f.once.Do(func() { close(f.failed) })
	return domain.Transaction{}, errors.New("upstream down")
}

// patientHistory answers only after the transaction lookup has failed and
// reports a cancelled context as its own error.
type patientHistory struct {
	memorySink
	after <-chan struct{}
}

func (p *patientHistory) RecentLookups(ctx context.Context, filter LookupQueryFilter) ([]domain.Lookup, error) {
	<-p.after
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	return p.memorySink.RecentLookups(ctx, filter)
}

func TestTransactionView_FailureDoesNotCancelSiblings(t *testing.T) {
	source := &failingTxSource{fakeSource: fakeSource{head: 100}, failed: make(chan struct{})}
	history := &patientHistory{after: source.failed}
	explorer, err := NewExplorer(source, history, nil, nil, ExplorerConfig{HistoryLimit: 5})
	if err != nil {
		t.Fatalf("new explorer: %v", err)
	}

	view := explorer.TransactionView(context.Background(), testHash)
	if got := view.Transaction.Snapshot().Err; got != "Provider error: upstream down" {
		t.Errorf("unexpected transaction error %q", got)
	}
	if !view.Head.Snapshot().Loaded {
		t.Errorf("head section should load alongside a failed transaction")
	}
	recent := view.Recent.Snapshot()
	if !recent.Loaded || recent.Err != "" {
		t.Errorf("recent lookups should load after a sibling failed, got %+v", recent)
	}
}

func TestBlockView_ExplicitBlockAndDisclosure(t *testing.T) {
	source := &fakeSource{head: 200}
	sink := &memorySink{}
	explorer := newTestExplorer(t, source, sink, nil)

	view := explorer.BlockView(context.Background(), BlockViewRequest{Block: "150", ShowTransactions: true})
	if view.Requested == nil || *view.Requested != 150 {
		t.Fatalf("expected requested block 150")
	}
	if got := view.Block.Snapshot().Value.Number; got != 150 {
		t.Errorf("expected block 150, got %d", got)
	}
	if got := view.Number.Snapshot().Value; got != 200 {
		t.Errorf("expected head 200, got %d", got)
	}
	if !view.Transactions.IsOpen() {
		t.Fatal("disclosure should be open")
	}
	txs := view.Transactions.Snapshot()
	if !txs.Loaded || len(txs.Value) != 2 {
		t.Errorf("expected two transactions, got %+v", txs)
	}
	if n := source.callCount("BlockByNumber"); n != 2 {
		t.Errorf("expected one summary and one full block fetch, got %d", n)
	}

	_ = view.Transactions.Ensure(context.Background())
	if n := source.callCount("BlockByNumber"); n != 2 {
		t.Errorf("disclosure reloaded while open: %d calls", n)
	}
	if len(sink.lookups) != 1 || sink.lookups[0].Key != "150" {
		t.Errorf("explicit block lookup should be recorded, got %+v", sink.lookups)
	}
}

func TestBlockView_DisclosureClosedByDefault(t *testing.T) {
	source := &fakeSource{head: 10}
	explorer := newTestExplorer(t, source, nil, nil)

	view := explorer.BlockView(context.Background(), BlockViewRequest{})
	if view.Transactions.IsOpen() {
		t.Error("disclosure should start closed")
	}
	if n := source.callCount("BlockByNumber"); n != 1 {
		t.Errorf("expected only the summary fetch, got %d", n)
	}
	if got := view.Block.Snapshot().Value.Number; got != 10 {
		t.Errorf("expected latest block 10, got %d", got)
	}
}

func TestTransactionView_Confirmations(t *testing.T) {
	source := &fakeSource{head: 99}
	explorer := newTestExplorer(t, source, nil, nil)

	view := explorer.TransactionView(context.Background(), testHash)
	confirmations, ok := view.Confirmations()
	if !ok || confirmations != 10 {
		t.Errorf("expected 10 confirmations, got %d (%v)", confirmations, ok)
	}

	source.txErr = domain.ErrNotFound
	view = explorer.TransactionView(context.Background(), testHash)
	if view.Transaction.Snapshot().Err != "Not found." {
		t.Errorf("unexpected error %q", view.Transaction.Snapshot().Err)
	}
	if _, ok := view.Confirmations(); ok {
		t.Error("no confirmations without a transaction")
	}
}

func TestBalanceView_EmptyAddressIsIdle(t *testing.T) {
	source := &fakeSource{}
	explorer := newTestExplorer(t, source, nil, nil)

	view := explorer.BalanceView(context.Background(), "", false)
	if !view.Balance.Snapshot().Idle() {
		t.Error("balance section should be idle before submission")
	}
	if source.callCount("Balance") != 0 {
		t.Error("no provider call expected")
	}
}

func TestSinks_JoinErrors(t *testing.T) {
	good := &memorySink{}
	bad := &memorySink{err: errors.New("down")}
	err := Sinks{good, nil, bad}.RecordLookup(context.Background(), domain.Lookup{Key: "k"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(good.lookups) != 1 {
		t.Error("healthy sink should still receive the lookup")
	}
}

func TestLookupBlock(t *testing.T) {
	source := &fakeSource{head: 42}
	sink := &memorySink{}
	explorer := newTestExplorer(t, source, sink, nil)
	ctx := context.Background()

	block, err := explorer.LookupBlock(ctx, "", true)
	if err != nil {
		t.Fatalf("latest block: %v", err)
	}
	if block.Number != 42 || len(block.Transactions) != 2 {
		t.Errorf("unexpected latest block %+v", block)
	}
	if len(sink.lookups) != 0 {
		t.Error("latest block should not be recorded")
	}

	if _, err := explorer.LookupBlock(ctx, "0x10", false); err != nil {
		t.Fatalf("hex block: %v", err)
	}
	if len(sink.lookups) != 1 || sink.lookups[0].Key != "16" {
		t.Errorf("expected block 16 recorded, got %+v", sink.lookups)
	}

	calls := source.callCount("BlockByNumber")
	if _, err := explorer.LookupBlock(ctx, "-1", false); !errors.Is(err, ErrInvalidBlockNumber) {
		t.Errorf("expected invalid block number, got %v", err)
	}
	if source.callCount("BlockByNumber") != calls {
		t.Error("invalid block number reached the provider")
	}
}

func TestParseLookupKind(t *testing.T) {
	for _, raw := range []string{"", "block", " Transaction ", "balance"} {
		if _, err := ParseLookupKind(raw); err != nil {
			t.Errorf("ParseLookupKind(%q): %v", raw, err)
		}
	}
	if _, err := ParseLookupKind("receipt"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
