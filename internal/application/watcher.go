package application

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type HeadObserver interface {
	OnLatestBlock(block uint64)
}

type HeadWatcherConfig struct {
	PollInterval time.Duration
	// Warm loads the newest block with WarmConfirmations confirmations
	// through the source each time the head moves, so a cache in front of
	// the provider holds it before the page asks.
	Warm              bool
	WarmConfirmations uint64
}

// HeadWatcher polls the chain head in the background.
type HeadWatcher struct {
	source   ChainSource
	observer HeadObserver
	cfg      HeadWatcherConfig
	last     uint64
}

func NewHeadWatcher(source ChainSource, observer HeadObserver, cfg HeadWatcherConfig) (*HeadWatcher, error) {
	if source == nil {
		return nil, errors.New("chain source is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	return &HeadWatcher{source: source, observer: observer, cfg: cfg}, nil
}

// Run polls until ctx is done. Provider errors are logged and retried on
// the next tick.
func (w *HeadWatcher) Run(ctx context.Context) error {
	for {
		if err := w.poll(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("head poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *HeadWatcher) poll(ctx context.Context) error {
	head, err := w.source.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}
	if w.observer != nil {
		w.observer.OnLatestBlock(head)
	}
	if head <= w.last {
		return nil
	}
	w.last = head
	if !w.cfg.Warm {
		return nil
	}
	target, ok := settledBlock(head, w.cfg.WarmConfirmations)
	if !ok {
		return nil
	}
	_, err = w.source.BlockByNumber(ctx, target, false)
	return err
}

// settledBlock returns the highest block with at least confirmations
// confirmations, counting the head block itself as one.
func settledBlock(head, confirmations uint64) (uint64, bool) {
	if confirmations <= 1 {
		return head, true
	}
	if head+1 < confirmations {
		return 0, false
	}
	return head + 1 - confirmations, true
}
