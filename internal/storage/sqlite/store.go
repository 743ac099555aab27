// Package sqlite registers the "sqlite" storage backend (modernc.org/sqlite,
// pure Go). It is the default backend for local runs and tests: a DSN of
// ":memory:" gives a throwaway database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"sessionetl/internal/storage"
	"sessionetl/internal/storage/sqlstore"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		db, err := Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(sqlstore.DB{DB: db}, sqlstore.SQLite, cfg.Timeout), nil
	})
}

// Open opens and pings a SQLite database. The pool is limited to one
// connection: SQLite serializes writers anyway, and every connection to
// ":memory:" would otherwise see its own empty database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty: %w", storage.ErrUnavailable)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %v: %w", err, storage.ErrUnavailable)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %v: %w", err, storage.ErrUnavailable)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;")
	return db, nil
}
