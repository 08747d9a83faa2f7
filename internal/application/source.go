package application

import (
	"context"
	"errors"
	"math/big"

	"bcexplorer/internal/domain"
)

// ChainSource is the provider surface the explorer reads from.
type ChainSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64, fullTx bool) (domain.Block, error)
	TransactionByHash(ctx context.Context, hash string) (domain.Transaction, error)
	Balance(ctx context.Context, address string) (*big.Int, error)
}

type LookupSink interface {
	RecordLookup(ctx context.Context, lookup domain.Lookup) error
}

type HistoryReader interface {
	RecentLookups(ctx context.Context, filter LookupQueryFilter) ([]domain.Lookup, error)
}

// Sinks fans a lookup out to every sink and joins their errors.
type Sinks []LookupSink

func (s Sinks) RecordLookup(ctx context.Context, lookup domain.Lookup) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.RecordLookup(ctx, lookup); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
