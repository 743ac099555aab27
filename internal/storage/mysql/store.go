// Package mysql registers the "mysql" storage backend (go-sql-driver/mysql).
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"sessionetl/internal/storage"
	"sessionetl/internal/storage/sqlstore"
)

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		db, err := Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(sqlstore.DB{DB: db}, sqlstore.MySQL, cfg.Timeout), nil
	})
}

// ParseDSN parses dsn and defaults the connection charset to utf8mb4. A
// charset given in dsn is kept.
func ParseDSN(dsn string) (*mysql.Config, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	if !hasCharset(c) {
		if err := c.Apply(mysql.Charset("utf8mb4", "")); err != nil {
			return nil, fmt.Errorf("mysql dsn: %w", err)
		}
	}
	return c, nil
}

// hasCharset reports whether a charset was set. The driver keeps it
// unexported, so it is read back from the formatted DSN.
func hasCharset(c *mysql.Config) bool {
	dsn := c.FormatDSN()
	return strings.Contains(dsn, "?charset=") || strings.Contains(dsn, "&charset=")
}

// Open builds a connector from dsn and verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	c, err := ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, storage.ErrUnavailable)
	}
	conn, err := mysql.NewConnector(c)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %v: %w", err, storage.ErrUnavailable)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %v: %w", err, storage.ErrUnavailable)
	}
	return db, nil
}
