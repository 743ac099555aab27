package sqlstore

import (
	"context"
	"database/sql"
)

// Conn is the minimal statement surface a Store needs. DB adapts
// *sql.DB; the postgres backend adapts a pgx pool.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryRows(ctx context.Context, query string, args ...any) ([][]any, error)
	Close() error
}

// DB adapts a database/sql handle to Conn.
type DB struct{ *sql.DB }

func (d DB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.DB.ExecContext(ctx, query, args...)
	return err
}

func (d DB) QueryRows(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func (d DB) Close() error { return d.DB.Close() }
