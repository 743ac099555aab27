// Package postgres registers the "postgres" storage backend on a pgx v5
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessionetl/internal/storage"
	"sessionetl/internal/storage/sqlstore"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		c, err := Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(c, sqlstore.Postgres, cfg.Timeout), nil
	})
}

// Conn adapts a pgx pool to sqlstore.Conn.
type Conn struct {
	pool *pgxpool.Pool
}

// Open creates the pool and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Conn, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty: %w", storage.ErrUnavailable)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %v: %w", err, storage.ErrUnavailable)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %v: %w", err, storage.ErrUnavailable)
	}
	return &Conn{pool: pool}, nil
}

func (c *Conn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.pool.Exec(ctx, query, args...)
	return describe(err)
}

func (c *Conn) QueryRows(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, describe(err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) ([]any, error) {
		return r.Values()
	})
	return out, describe(err)
}

func (c *Conn) Close() error {
	c.pool.Close()
	return nil
}

// describe prefixes server errors with their SQLSTATE.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("sqlstate %s: %w", pgErr.Code, err)
	}
	return err
}
