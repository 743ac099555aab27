package sqlstore

import (
	"context"
	"fmt"
	"time"

	"sessionetl/internal/schema"
	"sessionetl/internal/storage"
)

// Store implements storage.Store over a Conn and a Dialect.
type Store struct {
	conn    Conn
	dialect Dialect
	timeout time.Duration
}

// New returns a Store. timeout bounds each statement; zero means none.
func New(conn Conn, d Dialect, timeout time.Duration) *Store {
	return &Store{conn: conn, dialect: d, timeout: timeout}
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) CreateTable(ctx context.Context, t schema.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.conn.Exec(ctx, s.dialect.CreateTable(t)); err != nil {
		return fmt.Errorf("%s: create table %s: %w", s.dialect.Name(), t.Name, err)
	}
	return nil
}

func (s *Store) DropTable(ctx context.Context, name string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.conn.Exec(ctx, s.dialect.DropTable(name)); err != nil {
		return fmt.Errorf("%s: drop table %s: %w", s.dialect.Name(), name, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, t schema.Table, row schema.RowProjection) error {
	if len(row.Columns) != len(row.Values) {
		return fmt.Errorf("%s: table %s: %d columns, %d values", s.dialect.Name(), t.Name, len(row.Columns), len(row.Values))
	}
	for _, c := range row.Columns {
		if _, ok := t.Column(c); !ok {
			return fmt.Errorf("%s: table %s: unknown column %s", s.dialect.Name(), t.Name, c)
		}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.conn.Exec(ctx, s.dialect.Upsert(t, row.Columns), row.Values...); err != nil {
		return fmt.Errorf("%s: upsert %s: %w", s.dialect.Name(), t.Name, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, t schema.Table, columns []string, p schema.Predicate) ([]storage.ResultRow, error) {
	if err := t.CheckPredicate(p); err != nil {
		return nil, err
	}
	types := make([]schema.ColumnType, len(columns))
	for i, c := range columns {
		col, ok := t.Column(c)
		if !ok {
			return nil, fmt.Errorf("%s: table %s: unknown column %s", s.dialect.Name(), t.Name, c)
		}
		types[i] = col.Type
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	raw, err := s.conn.QueryRows(ctx, Select(s.dialect, t, columns, p), p.Values()...)
	if err != nil {
		return nil, fmt.Errorf("%s: query %s: %w", s.dialect.Name(), t.Name, err)
	}

	out := make([]storage.ResultRow, 0, len(raw))
	for _, r := range raw {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%s: query %s: got %d columns, want %d", s.dialect.Name(), t.Name, len(r), len(columns))
		}
		vals := make([]any, len(r))
		for i, v := range r {
			if vals[i], err = types[i].Coerce(v); err != nil {
				return nil, fmt.Errorf("%s: query %s: column %s: %w", s.dialect.Name(), t.Name, columns[i], err)
			}
		}
		out = append(out, storage.ResultRow{Columns: append([]string(nil), columns...), Values: vals})
	}
	return out, nil
}

func (s *Store) Close() error { return s.conn.Close() }
