package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bcexplorer/internal/application"
	"bcexplorer/internal/domain"

	_ "modernc.org/sqlite"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(dbPath string) (*HistoryRepository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer; avoids SQLITE_BUSY under concurrent page renders.
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &HistoryRepository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS lookups (
			kind TEXT NOT NULL,
			lookup_key TEXT NOT NULL,
			looked_up_at INTEGER NOT NULL,
			hits INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (kind, lookup_key)
		)`,
		`CREATE INDEX IF NOT EXISTS lookups_recent_idx ON lookups (looked_up_at)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *HistoryRepository) RecordLookup(ctx context.Context, lookup domain.Lookup) error {
	if lookup.Kind == "" || lookup.Key == "" {
		return errors.New("lookup kind and key are required")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	at := lookup.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO lookups (kind, lookup_key, looked_up_at, hits)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(kind, lookup_key) DO UPDATE SET
			looked_up_at = excluded.looked_up_at,
			hits = lookups.hits + 1`,
		string(lookup.Kind), lookup.Key, at.UnixMilli())
	return err
}

func (r *HistoryRepository) RecentLookups(ctx context.Context, filter application.LookupQueryFilter) ([]domain.Lookup, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT kind, lookup_key, looked_up_at, hits FROM lookups`
	args := make([]any, 0, 2)
	if filter.Kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(filter.Kind))
	}
	query += " ORDER BY looked_up_at DESC, lookup_key ASC LIMIT ?"
	args = append(args, application.NormalizeLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lookups []domain.Lookup
	for rows.Next() {
		var (
			lookup domain.Lookup
			kind   string
			at     int64
		)
		if err := rows.Scan(&kind, &lookup.Key, &at, &lookup.Hits); err != nil {
			return nil, err
		}
		lookup.Kind = domain.LookupKind(kind)
		lookup.At = time.UnixMilli(at).UTC()
		lookups = append(lookups, lookup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lookups, nil
}

func (r *HistoryRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *HistoryRepository) Close() error {
	return r.db.Close()
}
