// Package loader drives normalized records into every registered table.
//
// Input arrives as a channel of parsed records and is consumed in bounded
// chunks. Within a chunk a fixed-size worker pool projects each record
// against every table and upserts the rows. Each (record, table) pair
// yields exactly one WriteResult: a failure is counted, sampled and logged,
// never retried, and never stops other tables or records. Only context
// cancellation ends a run early, and even then a partial Summary is returned.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sessionetl/internal/metrics"
	"sessionetl/internal/record"
	"sessionetl/internal/router"
	"sessionetl/internal/schema"
)

// Defaults applied by New to zero Options fields.
const (
	DefaultChunkSize         = 10000
	DefaultWorkers           = 4
	DefaultMaxFailureSamples = 3
)

// ErrAlreadyStarted is returned by Load on a Loader that has already run.
var ErrAlreadyStarted = errors.New("loader: already started")

// Writer is the write half of storage.Store.
type Writer interface {
	Upsert(ctx context.Context, t schema.Table, row schema.RowProjection) error
}

// Options tune a Loader.
type Options struct {
	// Job labels logs and metrics.
	Job string
	// ChunkSize bounds how many records are held in memory at once.
	ChunkSize int
	// Workers bounds concurrent record processing within a chunk.
	Workers int
	// MaxFailureSamples caps the failures kept in the Summary. Every
	// failure is still logged.
	MaxFailureSamples int
	// Logf receives one line per skipped record or (record, table) pair.
	// Defaults to log.Printf.
	Logf func(format string, args ...any)
}

func (o Options) withDefaults() Options {
	if o.Job == "" {
		o.Job = "sessionetl"
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Logf == nil {
		o.Logf = log.Printf
	}
	if o.MaxFailureSamples < 0 {
		o.MaxFailureSamples = 0
	} else if o.MaxFailureSamples == 0 {
		o.MaxFailureSamples = DefaultMaxFailureSamples
	}
	return o
}

// State is the lifecycle of a Loader.
type State int32

const (
	NotStarted State = iota
	Loading
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Loading:
		return "loading"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Stage says where a (record, table) write failed.
type Stage string

const (
	StageProjection Stage = "projection"
	StageWrite      Stage = "write"
	StageCanceled   Stage = "canceled"
)

// WriteResult is the outcome of one (record, table) pair.
type WriteResult struct {
	Line  int
	Table string
	Stage Stage // empty on success
	Err   error
}

// OK reports whether the row was written.
func (r WriteResult) OK() bool { return r.Err == nil }

// Loader runs one load. It is not reusable.
type Loader struct {
	tables []schema.Table
	w      Writer
	opts   Options
	state  atomic.Int32

	// OnResult, when set, observes every WriteResult. It is called
	// concurrently from worker goroutines.
	OnResult func(WriteResult)
}

// New returns a Loader writing to every table in tables through w.
func New(tables []schema.Table, w Writer, opts Options) *Loader {
	return &Loader{
		tables: append([]schema.Table(nil), tables...),
		w:      w,
		opts:   opts.withDefaults(),
	}
}

// State returns the current lifecycle state.
func (l *Loader) State() State { return State(l.state.Load()) }

// Load drains in until it is closed or ctx is done. On cancellation it stops
// issuing writes and returns the partial Summary with ctx.Err().
func (l *Loader) Load(ctx context.Context, in <-chan record.Parsed) (Summary, error) {
	if !l.state.CompareAndSwap(int32(NotStarted), int32(Loading)) {
		return Summary{}, ErrAlreadyStarted
	}
	defer l.state.Store(int32(Completed))

	acc := newAccumulator(l.tables, l.opts.MaxFailureSamples, l.opts.Logf)
	acc.sum.RunID = uuid.NewString()
	acc.sum.Job = l.opts.Job
	start := time.Now()

	log.Printf("loader: start run=%s job=%s tables=%d chunk_size=%d workers=%d",
		acc.sum.RunID, l.opts.Job, len(l.tables), l.opts.ChunkSize, l.opts.Workers)

	var (
		lastFlush   = start
		lastWritten int64
		err         error
	)
	chunk := make([]record.Parsed, 0, l.opts.ChunkSize)
	for {
		var closed bool
		chunk, closed, err = l.fill(ctx, in, chunk[:0])
		if len(chunk) > 0 {
			t0 := time.Now()
			l.processChunk(ctx, chunk, acc)
			acc.sum.Chunks++
			metrics.RecordChunks(l.opts.Job, 1)
			metrics.RecordStep(l.opts.Job, "chunk", ctx.Err(), time.Since(t0))

			now := time.Now()
			written := acc.written()
			rps := float64(0)
			if d := now.Sub(lastFlush); d > 0 {
				rps = float64(written-lastWritten) / d.Seconds()
			}
			log.Printf("chunk #%d: records=%d rows_per_sec=%.0f total_written=%d elapsed=%s",
				acc.sum.Chunks, len(chunk), rps, written, now.Sub(start).Truncate(time.Millisecond))
			lastFlush, lastWritten = now, written
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil || closed {
			break
		}
	}

	sum := acc.snapshot()
	sum.Elapsed = time.Since(start)
	if err != nil {
		sum.Canceled = true
		log.Printf("loader: canceled run=%s err=%v", sum.RunID, err)
	}
	sum.Log()
	metrics.RecordStep(l.opts.Job, "load", err, sum.Elapsed)
	return sum, err
}

// fill reads up to ChunkSize records. It reports closed when in is drained.
func (l *Loader) fill(ctx context.Context, in <-chan record.Parsed, chunk []record.Parsed) ([]record.Parsed, bool, error) {
	for len(chunk) < l.opts.ChunkSize {
		select {
		case <-ctx.Done():
			return chunk, false, ctx.Err()
		case p, ok := <-in:
			if !ok {
				return chunk, true, nil
			}
			chunk = append(chunk, p)
		}
	}
	return chunk, false, nil
}

func (l *Loader) processChunk(ctx context.Context, chunk []record.Parsed, acc *accumulator) {
	var g errgroup.Group
	g.SetLimit(l.opts.Workers)

	for _, p := range chunk {
		acc.seen()
		if p.Err != nil {
			acc.rejected(p.Line, p.Err)
			continue
		}
		if ctx.Err() != nil {
			acc.skipped()
			continue
		}
		g.Go(func() error {
			for _, res := range l.writeRecord(ctx, p) {
				acc.result(res)
				if l.OnResult != nil {
					l.OnResult(res)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// writeRecord fans rec out to every table. Results are in table order.
func (l *Loader) writeRecord(ctx context.Context, p record.Parsed) []WriteResult {
	projected := router.ProjectAll(p.Record, l.tables)
	out := make([]WriteResult, len(projected))
	for i, pr := range projected {
		res := WriteResult{Line: p.Line, Table: pr.Table.Name}
		switch {
		case pr.Err != nil:
			res.Stage, res.Err = StageProjection, pr.Err
		case ctx.Err() != nil:
			res.Stage, res.Err = StageCanceled, ctx.Err()
		default:
			if err := l.w.Upsert(ctx, pr.Table, pr.Row); err != nil {
				res.Stage, res.Err = StageWrite, err
			}
		}
		out[i] = res
	}
	return out
}

// accumulator gathers counts from concurrent workers.
type accumulator struct {
	mu    sync.Mutex
	sum   Summary
	limit int
	logf  func(format string, args ...any)
}

func newAccumulator(tables []schema.Table, limit int, logf func(string, ...any)) *accumulator {
	a := &accumulator{limit: limit, logf: logf}
	a.sum.Tables = make(map[string]TableCounts, len(tables))
	for _, t := range tables {
		a.sum.Tables[t.Name] = TableCounts{}
		a.sum.TableOrder = append(a.sum.TableOrder, t.Name)
	}
	return a
}

func (a *accumulator) seen() {
	a.mu.Lock()
	a.sum.RecordsSeen++
	a.mu.Unlock()
	metrics.RecordRecords(a.sum.Job, "seen", 1)
}

func (a *accumulator) skipped() {
	a.mu.Lock()
	a.sum.Skipped++
	a.mu.Unlock()
}

func (a *accumulator) rejected(line int, err error) {
	kind := "malformed"
	var ce *record.CoercionError
	if errors.As(err, &ce) {
		kind = "coercion"
	}

	a.mu.Lock()
	if kind == "coercion" {
		a.sum.CoercionErrors++
	} else {
		a.sum.Malformed++
	}
	a.sample(Failure{Line: line, Kind: kind, Reason: err.Error()})
	a.mu.Unlock()

	a.logf("loader: line=%d stage=%s err=%v", line, kind, err)
	metrics.RecordRecords(a.sum.Job, kind, 1)
}

func (a *accumulator) result(r WriteResult) {
	status := "written"

	a.mu.Lock()
	tc := a.sum.Tables[r.Table]
	switch r.Stage {
	case StageProjection:
		tc.ProjectionFailures++
		status = "projection_failed"
	case StageWrite:
		tc.WriteFailures++
		status = "write_failed"
	case StageCanceled:
		tc.Canceled++
		status = "canceled"
	default:
		tc.Written++
	}
	a.sum.Tables[r.Table] = tc
	failed := r.Err != nil && r.Stage != StageCanceled
	if failed {
		a.sample(Failure{Line: r.Line, Table: r.Table, Kind: string(r.Stage), Reason: r.Err.Error()})
	}
	a.mu.Unlock()

	if failed {
		a.logf("loader: line=%d table=%s stage=%s err=%v", r.Line, r.Table, r.Stage, r.Err)
	}
	metrics.RecordTableWrite(a.sum.Job, r.Table, status)
}

// sample keeps the first N failures for the Summary. Callers hold a.mu.
func (a *accumulator) sample(f Failure) {
	if len(a.sum.Failures) < a.limit {
		a.sum.Failures = append(a.sum.Failures, f)
	}
}

func (a *accumulator) written() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sum.Written()
}

func (a *accumulator) snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.sum
	s.Tables = make(map[string]TableCounts, len(a.sum.Tables))
	for k, v := range a.sum.Tables {
		s.Tables[k] = v
	}
	s.TableOrder = append([]string(nil), a.sum.TableOrder...)
	s.Failures = append([]Failure(nil), a.sum.Failures...)
	return s
}
