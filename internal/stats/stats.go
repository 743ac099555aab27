// Package stats computes key-cardinality facts over the record stream: how
// many distinct values a candidate key takes and how many rows land on each.
// The numbers back the partition key choices in the schema registry; a key
// with few distinct values makes hot, oversized partitions.
package stats

import (
	"fmt"
	"io"
	"sort"

	"github.com/zeebo/xxh3"

	"sessionetl/internal/record"
	"sessionetl/internal/router"
	"sessionetl/internal/schema"
)

// KeyStats describes one candidate key.
type KeyStats struct {
	Name    string
	Unique  int
	Rows    int
	MaxRows int
}

// Mean is the average number of rows per distinct key value.
func (k KeyStats) Mean() float64 {
	if k.Unique == 0 {
		return 0
	}
	return float64(k.Rows) / float64(k.Unique)
}

// Report is the result of Compute.
type Report struct {
	Observations int
	Rejected     int

	// Fields covers single source fields: sessionId and itemInSession.
	Fields []KeyStats

	// Partitions covers each table's full partition key.
	Partitions []KeyStats
}

type counter struct {
	name   string
	counts map[uint64]int
	rows   int
}

func newCounter(name string) *counter {
	return &counter{name: name, counts: make(map[uint64]int)}
}

func (c *counter) add(b []byte) {
	c.counts[xxh3.Hash(b)]++
	c.rows++
}

func (c *counter) stats() KeyStats {
	k := KeyStats{Name: c.name, Unique: len(c.counts), Rows: c.rows}
	for _, n := range c.counts {
		k.MaxRows = max(k.MaxRows, n)
	}
	return k
}

// fieldNames are the single-field keys reported, in report order.
var fieldNames = []string{record.FieldSessionID, record.FieldItemInSession}

// Compute drains in. Rejected records count toward Rejected only; a record
// missing a field a table needs is left out of that table's partition stats.
func Compute(in <-chan record.Parsed, tables []schema.Table) Report {
	var rep Report
	fields := make([]*counter, len(fieldNames))
	for i, f := range fieldNames {
		fields[i] = newCounter(f)
	}
	parts := make([]*counter, len(tables))
	for i, t := range tables {
		parts[i] = newCounter(t.Name)
	}

	buf := make([]byte, 0, 64)
	for p := range in {
		if p.Err != nil {
			rep.Rejected++
			continue
		}
		rep.Observations++

		for i, f := range fieldNames {
			v, _ := p.Record.Field(f)
			fields[i].add(schema.AppendValue(buf[:0], v))
		}
		for i, t := range tables {
			row, err := router.Project(p.Record, t)
			if err != nil {
				continue
			}
			buf = buf[:0]
			for _, v := range row.Key[:len(t.PartitionKey)] {
				buf = schema.AppendValue(buf, v)
			}
			parts[i].add(buf)
		}
	}

	for _, c := range fields {
		rep.Fields = append(rep.Fields, c.stats())
	}
	for _, c := range parts {
		rep.Partitions = append(rep.Partitions, c.stats())
	}
	return rep
}

// Write prints the report as plain text.
func (r Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "observations=%d rejected=%d\n", r.Observations, r.Rejected); err != nil {
		return err
	}
	for _, k := range r.Fields {
		if _, err := fmt.Fprintf(w, "field %s: unique=%d mean_rows=%.2f max_rows=%d\n", k.Name, k.Unique, k.Mean(), k.MaxRows); err != nil {
			return err
		}
	}
	parts := append([]KeyStats(nil), r.Partitions...)
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })
	for _, k := range parts {
		if _, err := fmt.Fprintf(w, "partition %s: unique=%d rows=%d mean_rows=%.2f max_rows=%d\n", k.Name, k.Unique, k.Rows, k.Mean(), k.MaxRows); err != nil {
			return err
		}
	}
	return nil
}
