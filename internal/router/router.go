// Package router projects a normalized record into the row shape and key of
// each registered table. It is the fan-out point of the pipeline: one record
// in, one RowProjection (or a per-table error) out for every table.
package router

import (
	"fmt"

	"sessionetl/internal/record"
	"sessionetl/internal/schema"
)

// MissingFieldError reports a table column whose bound record field is
// absent. Only the write to Table is skipped.
type MissingFieldError struct {
	Table  string
	Column string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("router: table %s: column %s: record field %s is absent", e.Table, e.Column, e.Field)
}

// Project builds the RowProjection of rec for table t. The result depends
// only on its inputs, so re-projecting yields an identical row.
func Project(rec record.Record, t schema.Table) (schema.RowProjection, error) {
	values := make(map[string]any, len(t.Columns))
	row := schema.RowProjection{
		Table:   t.Name,
		Columns: make([]string, len(t.Columns)),
		Values:  make([]any, len(t.Columns)),
	}

	for i, c := range t.Columns {
		v, ok := rec.Field(c.Field)
		if !ok {
			return schema.RowProjection{}, &MissingFieldError{Table: t.Name, Column: c.Name, Field: c.Field}
		}
		row.Columns[i] = c.Name
		row.Values[i] = v
		values[c.Name] = v
	}

	keys := t.KeyColumns()
	row.Key = make([]any, len(keys))
	for i, k := range keys {
		v, ok := values[k]
		if !ok {
			return schema.RowProjection{}, &MissingFieldError{Table: t.Name, Column: k}
		}
		row.Key[i] = v
	}
	return row, nil
}

// Result is the projection outcome for one table.
type Result struct {
	Table schema.Table
	Row   schema.RowProjection
	Err   error
}

// ProjectAll projects rec against every table, in table order. A failure
// for one table does not affect the others.
func ProjectAll(rec record.Record, tables []schema.Table) []Result {
	out := make([]Result, len(tables))
	for i, t := range tables {
		row, err := Project(rec, t)
		out[i] = Result{Table: t, Row: row, Err: err}
	}
	return out
}
