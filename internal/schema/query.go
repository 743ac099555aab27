package schema

import "fmt"

// Condition is a single equality restriction.
type Condition struct {
	Column string
	Value  any
}

// Predicate is a conjunction of equality restrictions.
type Predicate []Condition

// Columns returns the restricted column names in order.
func (p Predicate) Columns() []string {
	out := make([]string, len(p))
	for i, c := range p {
		out[i] = c.Column
	}
	return out
}

// Values returns the restriction values in order.
func (p Predicate) Values() []any {
	out := make([]any, len(p))
	for i, c := range p {
		out[i] = c.Value
	}
	return out
}

// Query is a fixed, known-at-design-time read served by exactly one table.
type Query struct {
	ID          string
	Table       string
	Description string

	// Select lists the returned columns in order.
	Select []string

	// Filter lists the equality-restricted columns; Defaults holds the
	// values used when the caller supplies none.
	Filter   []string
	Defaults []any
}

// Predicate binds args (aligned with Filter) into a Predicate. With no args
// the query's Defaults are used.
func (q Query) Predicate(args ...any) (Predicate, error) {
	if len(args) == 0 {
		args = q.Defaults
	}
	if len(args) != len(q.Filter) {
		return nil, fmt.Errorf("schema: query %s: got %d predicate values, want %d", q.ID, len(args), len(q.Filter))
	}
	p := make(Predicate, len(q.Filter))
	for i, col := range q.Filter {
		p[i] = Condition{Column: col, Value: args[i]}
	}
	return p, nil
}
