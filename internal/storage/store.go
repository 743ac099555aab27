// Package storage contains the storage-agnostic contract the load pipeline
// writes through, plus the backend factory and table bootstrap helpers.
//
// A Store behaves like a column-family store: tables have a partition key
// and an ordered clustering key, writes are idempotent upserts keyed by the
// full key tuple, and reads must restrict the partition key by equality.
// Backends (cassandra, memory, sqlite, postgres, mysql, mssql) register
// themselves with Register at init time; import sessionetl/internal/storage/all to
// enable them all.
package storage

import (
	"context"
	"errors"

	"sessionetl/internal/schema"
)

// Store is the storage collaborator. Implementations must be safe for
// concurrent use by multiple goroutines.
type Store interface {
	// CreateTable creates t if it does not exist.
	CreateTable(ctx context.Context, t schema.Table) error

	// DropTable drops the named table if it exists.
	DropTable(ctx context.Context, name string) error

	// Upsert writes row into t, replacing any row with the same key tuple.
	Upsert(ctx context.Context, t schema.Table, row schema.RowProjection) error

	// Query returns columns of the rows of t matching p, in clustering order.
	Query(ctx context.Context, t schema.Table, columns []string, p schema.Predicate) ([]ResultRow, error)

	Close() error
}

// ResultRow is one returned row: ordered column names and values.
type ResultRow struct {
	Columns []string
	Values  []any
}

// Get returns the value of column name.
func (r ResultRow) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

var (
	// ErrUnavailable means the storage session could not be established.
	// It is the only storage error that aborts a run.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrKeyspace means the target keyspace/database could not be created
	// or selected. Also fatal.
	ErrKeyspace = errors.New("keyspace unavailable")
)

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrKeyspace)
}
