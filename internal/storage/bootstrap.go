package storage

import (
	"context"
	"log"

	"sessionetl/internal/schema"
)

// TableResult is the outcome of one DDL statement.
type TableResult struct {
	Table string
	Err   error
}

// CreateTables creates every table. A failure is logged and the remaining
// tables are still attempted.
func CreateTables(ctx context.Context, s Store, tables []schema.Table) []TableResult {
	out := make([]TableResult, 0, len(tables))
	for _, t := range tables {
		err := s.CreateTable(ctx, t)
		if err != nil {
			log.Printf("ddl: create table=%s failed: %v", t.Name, err)
		} else {
			log.Printf("ddl: created table=%s partition=%v clustering=%v", t.Name, t.PartitionKey, clusteringNames(t))
		}
		out = append(out, TableResult{Table: t.Name, Err: err})
	}
	return out
}

// DropTables drops every table, logging and continuing on failure.
func DropTables(ctx context.Context, s Store, tables []schema.Table) []TableResult {
	out := make([]TableResult, 0, len(tables))
	for _, t := range tables {
		err := s.DropTable(ctx, t.Name)
		if err != nil {
			log.Printf("ddl: drop table=%s failed: %v", t.Name, err)
		} else {
			log.Printf("ddl: dropped table=%s", t.Name)
		}
		out = append(out, TableResult{Table: t.Name, Err: err})
	}
	return out
}

// RebuildTables drops then creates every table (the build-tables step).
func RebuildTables(ctx context.Context, s Store, tables []schema.Table) []TableResult {
	drops := DropTables(ctx, s, tables)
	creates := CreateTables(ctx, s, tables)
	return append(drops, creates...)
}

// Failed counts results carrying an error.
func Failed(results []TableResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func clusteringNames(t schema.Table) []string {
	out := make([]string, len(t.Clustering))
	for i, c := range t.Clustering {
		out[i] = c.Name + " " + c.Order.String()
	}
	return out
}
