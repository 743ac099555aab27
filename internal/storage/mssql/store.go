// Package mssql registers the "mssql" storage backend (go-mssqldb). Upserts
// are MERGE statements.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"sessionetl/internal/storage"
	"sessionetl/internal/storage/sqlstore"
)

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		db, err := Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(sqlstore.DB{DB: db}, sqlstore.MSSQL, cfg.Timeout), nil
	})
}

// Open validates dsn, opens the pool and pings the server.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %v: %w", err, storage.ErrUnavailable)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %v: %w", err, storage.ErrUnavailable)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %v: %w", err, storage.ErrUnavailable)
	}
	return db, nil
}
