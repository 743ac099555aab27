// Package query runs the registered read queries against a Store. Each
// query names exactly one table and binds equality values to its key, so
// execution is a single key-restricted read returned in clustering order.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sessionetl/internal/metrics"
	"sessionetl/internal/schema"
	"sessionetl/internal/storage"
)

// ErrUnknownQuery is returned for an id not in the registry.
var ErrUnknownQuery = errors.New("query: unknown query id")

// QueryExecutionError wraps a failure reported by the store for one query.
// It is not retried.
type QueryExecutionError struct {
	ID    string
	Table string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query %s on %s: %v", e.ID, e.Table, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// Reader is the read half of storage.Store.
type Reader interface {
	Query(ctx context.Context, t schema.Table, columns []string, p schema.Predicate) ([]storage.ResultRow, error)
}

// Result is the outcome of one query.
type Result struct {
	Query     schema.Query
	Predicate schema.Predicate
	Rows      []storage.ResultRow
	Err       error
	Elapsed   time.Duration
}

// Executor runs registry queries.
type Executor struct {
	reg *schema.Registry
	r   Reader

	// Job labels metrics.
	Job string
}

// NewExecutor returns an Executor reading through r.
func NewExecutor(reg *schema.Registry, r Reader) *Executor {
	return &Executor{reg: reg, r: r, Job: "sessionetl"}
}

// Run executes query id with its default predicate values.
func (e *Executor) Run(ctx context.Context, id string) ([]storage.ResultRow, error) {
	return e.RunWith(ctx, id)
}

// RunWith executes query id with args aligned to the query's filter
// columns. No args means the defaults.
func (e *Executor) RunWith(ctx context.Context, id string, args ...any) ([]storage.ResultRow, error) {
	res := e.Exec(ctx, id, args...)
	return res.Rows, res.Err
}

// RunAll executes every registered query with defaults, in registry order.
// A failing query does not stop the others.
func (e *Executor) RunAll(ctx context.Context) []Result {
	return e.RunAllWith(ctx, nil)
}

// RunAllWith is RunAll with per-query predicate values taken from args;
// queries absent from args use their defaults.
func (e *Executor) RunAllWith(ctx context.Context, args map[string][]any) []Result {
	qs := e.reg.Queries()
	out := make([]Result, 0, len(qs))
	for _, q := range qs {
		if ctx.Err() != nil {
			break
		}
		out = append(out, e.Exec(ctx, q.ID, args[q.ID]...))
	}
	return out
}

// Exec runs one query and reports its full Result.
func (e *Executor) Exec(ctx context.Context, id string, args ...any) Result {
	q, ok := e.reg.Query(id)
	if !ok {
		return Result{Query: schema.Query{ID: id}, Err: fmt.Errorf("%w: %s", ErrUnknownQuery, id)}
	}
	res := Result{Query: q}

	t, ok := e.reg.Table(q.Table)
	if !ok {
		res.Err = &QueryExecutionError{ID: id, Table: q.Table, Err: fmt.Errorf("table not registered")}
		return res
	}
	pred, err := q.Predicate(args...)
	if err != nil {
		res.Err = err
		return res
	}
	if res.Predicate, res.Err = t.CoercePredicate(pred); res.Err != nil {
		return res
	}

	start := time.Now()
	rows, err := e.r.Query(ctx, t, q.Select, res.Predicate)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = &QueryExecutionError{ID: id, Table: t.Name, Err: err}
	} else {
		res.Rows = rows
	}
	metrics.RecordQuery(e.Job, id, len(res.Rows), res.Err, res.Elapsed)
	return res
}
