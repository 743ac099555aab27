// Package metrics is a small, backend-agnostic facade for recording
// pipeline metrics.
//
// A global Backend defaults to a no-op, so instrumentation is always safe to
// call. Concrete systems live in subpackages (prompush, datadog) and are
// installed with SetBackend by the command wiring.
package metrics

import "time"

// Metric names shared by all backends.
const (
	StepTotal        = "sessionetl_step_total"
	StepDuration     = "sessionetl_step_duration_seconds"
	RecordsTotal     = "sessionetl_records_total"
	TableWritesTotal = "sessionetl_table_writes_total"
	ChunksTotal      = "sessionetl_chunks_total"
	QueryRowsTotal   = "sessionetl_query_rows_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs b. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep measures latency and outcome of one pipeline step
// (create_tables, chunk, load, query, ...).
func RecordStep(job, step string, err error, d time.Duration) {
	lbls := Labels{"job": job, "step": step, "status": status(err)}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRecords counts input records by kind: seen, malformed, coercion.
func RecordRecords(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordTableWrite counts one (record, table) write outcome. status is
// "written", "projection_failed" or "write_failed".
func RecordTableWrite(job, table, status string) {
	backend.IncCounter(TableWritesTotal, 1, Labels{"job": job, "table": table, "status": status})
}

// RecordChunks counts processed input chunks.
func RecordChunks(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(ChunksTotal, float64(delta), Labels{"job": job})
}

// RecordQuery records a query execution and the number of rows it returned.
func RecordQuery(job, query string, rows int, err error, d time.Duration) {
	RecordStep(job, "query_"+query, err, d)
	if rows > 0 {
		backend.IncCounter(QueryRowsTotal, float64(rows), Labels{"job": job, "query": query})
	}
}
