package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the pooled PostgreSQL handle behind every query and batch in
// this package.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and configures the pool's max size.
func Open(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	// NUMERIC(78,0) columns are scanned into decimal strings throughout this
	// package; the simple protocol keeps those reads in text format.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify("ping", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

// Tx is the statement surface shared by *Batch and *Store. The reducer and
// points engine do not use it; they depend on their own narrow Reader and
// Writer interfaces, never on pgx directly.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Batch is the one-commit-per-block transaction boundary: the reducer and
// points engine for a single block both write through the same Batch, so
// the block's effects land atomically and a crashed block leaves no
// partial writes behind.
type Batch struct {
	tx pgx.Tx
}

// Begin opens a new transaction. Callers must Commit or Rollback it.
func (s *Store) Begin(ctx context.Context) (*Batch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, classify("begin", err)
	}
	return &Batch{tx: tx}, nil
}

// Commit finalizes the batch's writes.
func (b *Batch) Commit(ctx context.Context) error {
	return classify("commit", b.tx.Commit(ctx))
}

// Rollback discards the batch's writes. Safe to call after a successful
// Commit: the ErrTxClosed pgx reports then is swallowed and nil returned.
func (b *Batch) Rollback(ctx context.Context) error {
	err := b.tx.Rollback(ctx)
	if err != nil && err == pgx.ErrTxClosed {
		return nil
	}
	return classify("rollback", err)
}

// Exec runs a statement that does not return rows.
func (b *Batch) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := b.tx.Exec(ctx, sql, args...)
	return classify("exec", err)
}

// Query runs a statement that returns rows.
func (b *Batch) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := b.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("query", err)
	}
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row.
func (b *Batch) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return b.tx.QueryRow(ctx, sql, args...)
}

var _ Tx = (*Batch)(nil)

// Exec runs a statement outside any batch, against the pool directly.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := s.pool.Exec(ctx, sql, args...)
	return classify("exec", err)
}

// Query runs a statement outside any batch, against the pool directly.
func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("query", err)
	}
	return rows, nil
}

// QueryRow runs a statement outside any batch, against the pool directly.
func (s *Store) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.pool.QueryRow(ctx, sql, args...)
}

var _ Tx = (*Store)(nil)
