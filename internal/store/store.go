// Package store provides typed PostgreSQL access for crawl tasks,
// runs, documents, downloaded resources, and the crawled-URL registry.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/sqlc-dev/pqtype"
)

// Pool is the subset of pgxpool.Pool the store depends on. Tests
// substitute a pgxmock pool through the same interface.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store wraps a pgx connection pool with the queries the service and
// worker layers need.
type Store struct {
	pool Pool
}

// NewPostgres connects a pgx pool against dsn and verifies it with a
// ping. maxConns and minConns override the pool defaults when > 0.
func NewPostgres(ctx context.Context, dsn string, maxConns, minConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse database config")
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping")
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. Tests in other packages use it to
// substitute a pgxmock pool.
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "store: ping")
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows, so scan
// helpers work for single- and multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}

// newID generates a uuidv7 when available so IDs sort by creation
// time, falling back to v4.
func newID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

// nullStr maps the empty string to SQL NULL for optional text columns.
func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strv(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// nullJSON wraps raw JSON for a nullable jsonb column. Empty input
// becomes SQL NULL rather than an empty jsonb document.
func nullJSON(b json.RawMessage) pqtype.NullRawMessage {
	return pqtype.NullRawMessage{RawMessage: b, Valid: len(b) > 0}
}
