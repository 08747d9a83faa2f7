package storage

import (
	"context"
	"fmt"

	"bcexplorer/internal/application"
	"bcexplorer/internal/domain"
	"bcexplorer/internal/infrastructure/mysql"
	"bcexplorer/internal/infrastructure/sqlite"
)

// HistoryStore persists recent lookups.
type HistoryStore interface {
	application.LookupSink
	application.HistoryReader
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the history store for driver: "sqlite", "mysql" or "none".
func Open(driver, dsn string) (HistoryStore, error) {
	switch driver {
	case "sqlite":
		return sqlite.NewHistoryRepository(dsn)
	case "mysql":
		return mysql.NewHistoryRepository(dsn)
	case "", "none":
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", driver)
	}
}

// Discard keeps nothing.
type Discard struct{}

func (Discard) RecordLookup(context.Context, domain.Lookup) error { return nil }

func (Discard) RecentLookups(context.Context, application.LookupQueryFilter) ([]domain.Lookup, error) {
	return nil, nil
}

func (Discard) Ping(context.Context) error { return nil }

func (Discard) Close() error { return nil }
