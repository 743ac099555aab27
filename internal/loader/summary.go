package loader

import (
	"log"
	"time"
)

// TableCounts are the per-table write outcomes of a run.
type TableCounts struct {
	Written            int64
	ProjectionFailures int64
	WriteFailures      int64
	Canceled           int64
}

// Attempted is the number of (record, table) pairs that reached the table.
func (c TableCounts) Attempted() int64 {
	return c.Written + c.ProjectionFailures + c.WriteFailures + c.Canceled
}

// Failure is one sampled failure reason.
type Failure struct {
	Line   int
	Table  string // empty for record-level rejections
	Kind   string // malformed, coercion, projection, write
	Reason string
}

// Summary is the outcome of a load, complete or partial.
type Summary struct {
	RunID string
	Job   string

	RecordsSeen    int64
	Malformed      int64
	CoercionErrors int64
	// Skipped counts valid records not processed because the run was
	// canceled.
	Skipped int64

	Tables     map[string]TableCounts
	TableOrder []string

	Chunks   int64
	Failures []Failure
	Canceled bool
	Elapsed  time.Duration
}

// Valid is the number of records that normalized successfully.
func (s Summary) Valid() int64 {
	return s.RecordsSeen - s.Malformed - s.CoercionErrors
}

// Written is the total rows written across tables.
func (s Summary) Written() int64 {
	var n int64
	for _, c := range s.Tables {
		n += c.Written
	}
	return n
}

// Failed is the total failed (record, table) pairs.
func (s Summary) Failed() int64 {
	var n int64
	for _, c := range s.Tables {
		n += c.ProjectionFailures + c.WriteFailures
	}
	return n
}

// Balanced reports whether every valid, unskipped record produced exactly
// one outcome per table.
func (s Summary) Balanced() bool {
	want := s.Valid() - s.Skipped
	for _, c := range s.Tables {
		if c.Attempted() != want {
			return false
		}
	}
	return true
}

// Log prints the final summary lines.
func (s Summary) Log() {
	log.Printf(
		"summary: run=%s job=%s seen=%d malformed=%d coercion=%d skipped=%d written=%d failed=%d chunks=%d canceled=%t elapsed=%s",
		s.RunID, s.Job, s.RecordsSeen, s.Malformed, s.CoercionErrors, s.Skipped,
		s.Written(), s.Failed(), s.Chunks, s.Canceled, s.Elapsed.Truncate(time.Millisecond),
	)
	for _, name := range s.TableOrder {
		c := s.Tables[name]
		log.Printf("summary: table=%s written=%d projection_failures=%d write_failures=%d canceled=%d",
			name, c.Written, c.ProjectionFailures, c.WriteFailures, c.Canceled)
	}
	if n := len(s.Failures); n > 0 {
		log.Printf("failures: showing first %d", n)
		for i, f := range s.Failures {
			log.Printf("  #%03d: line=%d table=%s kind=%s %s", i+1, f.Line, f.Table, f.Kind, f.Reason)
		}
	}
	if !s.Canceled && !s.Balanced() {
		log.Printf("WARNING: write accounting mismatch: valid=%d skipped=%d", s.Valid(), s.Skipped)
	}
}
