package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bcexplorer/internal/application"
	"bcexplorer/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(dsn string) (*HistoryRepository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &HistoryRepository{db: db}, nil
}

func newHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS lookups (
		kind VARCHAR(16) NOT NULL,
		lookup_key VARCHAR(66) NOT NULL,
		looked_up_at BIGINT NOT NULL,
		hits BIGINT UNSIGNED NOT NULL DEFAULT 1,
		PRIMARY KEY (kind, lookup_key),
		KEY lookups_recent_idx (looked_up_at)
	)`)
	return err
}

func (r *HistoryRepository) RecordLookup(ctx context.Context, lookup domain.Lookup) error {
	if lookup.Kind == "" || lookup.Key == "" {
		return errors.New("lookup kind and key are required")
	}
	ctx, span := startDBSpan(ctx, "mysql.RecordLookup", attribute.String("lookup.kind", string(lookup.Kind)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	at := lookup.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO lookups (kind, lookup_key, looked_up_at, hits)
		VALUES (?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE
			looked_up_at = VALUES(looked_up_at),
			hits = hits + 1`,
		string(lookup.Kind), lookup.Key, at.UnixMilli()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *HistoryRepository) RecentLookups(ctx context.Context, filter application.LookupQueryFilter) ([]domain.Lookup, error) {
	ctx, span := startDBSpan(ctx, "mysql.RecentLookups")
	defer span.End()
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
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
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
	span.SetAttributes(attribute.Int("lookup.count", len(lookups)))
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

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("bcexplorer/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
