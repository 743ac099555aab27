// Package schema holds the static table registry: for every target table,
// its partition key, clustering key and column projection, together with the
// one query the table is laid out to answer.
//
// The rule behind every entry: the partition key is exactly the set of
// columns the query filters on; the clustering key is what is needed to
// disambiguate rows inside a partition and to produce the query's order.
package schema

import (
	"fmt"
	"strings"
)

// ColumnType is the storage type of a column.
type ColumnType string

const (
	TypeInt    ColumnType = "int"
	TypeDouble ColumnType = "double"
	TypeText   ColumnType = "text"
)

// Order is a clustering sort direction.
type Order int

const (
	Asc Order = iota
	Desc
)

func (o Order) String() string {
	if o == Desc {
		return "DESC"
	}
	return "ASC"
}

// Column is a projected column: its storage name, the record field it is
// filled from, and its type.
type Column struct {
	Name  string
	Field string
	Type  ColumnType
}

// ClusteringColumn is one clustering key component.
type ClusteringColumn struct {
	Name  string
	Order Order
}

// Table describes one denormalized target table.
type Table struct {
	Name         string
	Columns      []Column
	PartitionKey []string
	Clustering   []ClusteringColumn

	// Serves is the id of the query this table is laid out for.
	Serves string
}

// KeyColumns returns partition key columns followed by clustering columns.
func (t Table) KeyColumns() []string {
	out := make([]string, 0, len(t.PartitionKey)+len(t.Clustering))
	out = append(out, t.PartitionKey...)
	for _, c := range t.Clustering {
		out = append(out, c.Name)
	}
	return out
}

// ColumnNames returns projected column names in declared order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a projected column by storage name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsKey reports whether name is part of the partition or clustering key.
func (t Table) IsKey(name string) bool {
	for _, k := range t.KeyColumns() {
		if k == name {
			return true
		}
	}
	return false
}

// ValueColumns returns the projected columns that are not key columns.
func (t Table) ValueColumns() []string {
	var out []string
	for _, c := range t.Columns {
		if !t.IsKey(c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

// Validate checks the structural invariants of a single table.
func (t Table) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("schema: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("schema: table %s: no columns", t.Name)
	}
	if len(t.PartitionKey) == 0 {
		return fmt.Errorf("schema: table %s: partition key must not be empty", t.Name)
	}

	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" || c.Field == "" {
			return fmt.Errorf("schema: table %s: column name and field are required", t.Name)
		}
		switch c.Type {
		case TypeInt, TypeDouble, TypeText:
		default:
			return fmt.Errorf("schema: table %s: column %s: unsupported type %q", t.Name, c.Name, c.Type)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("schema: table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	keys := make(map[string]struct{})
	for _, k := range t.KeyColumns() {
		if _, ok := seen[k]; !ok {
			return fmt.Errorf("schema: table %s: key column %s is not projected", t.Name, k)
		}
		if _, dup := keys[k]; dup {
			return fmt.Errorf("schema: table %s: key column %s repeated", t.Name, k)
		}
		keys[k] = struct{}{}
	}
	return nil
}

// CheckPredicate enforces the column-family read rule: a predicate must bind
// every partition key column by equality, and may additionally bind a prefix
// of the clustering key. Anything else needs a different table.
func (t Table) CheckPredicate(p Predicate) error {
	bound := make(map[string]bool, len(p))
	for _, c := range p {
		if _, ok := t.Column(c.Column); !ok {
			return fmt.Errorf("schema: table %s: unknown predicate column %s", t.Name, c.Column)
		}
		if bound[c.Column] {
			return fmt.Errorf("schema: table %s: predicate column %s repeated", t.Name, c.Column)
		}
		bound[c.Column] = true
	}

	for _, k := range t.PartitionKey {
		if !bound[k] {
			return fmt.Errorf("schema: table %s: predicate must restrict partition key column %s", t.Name, k)
		}
	}

	n := len(t.PartitionKey)
	prefixOpen := true
	for _, c := range t.Clustering {
		if bound[c.Name] {
			if !prefixOpen {
				return fmt.Errorf("schema: table %s: clustering column %s restricted without its preceding columns", t.Name, c.Name)
			}
			n++
			continue
		}
		prefixOpen = false
	}
	if n != len(p) {
		return fmt.Errorf("schema: table %s: predicate restricts non-key columns", t.Name)
	}
	return nil
}
