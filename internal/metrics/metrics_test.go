package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []counterCall
	histograms []histCall
	flushCount int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := backend
	t.Cleanup(func() { backend = orig })
	fb := &fakeBackend{}
	backend = fb
	return fb
}

func TestNopBackend_IsDefault(t *testing.T) {
	if _, ok := backend.(nopBackend); !ok {
		t.Fatalf("default backend = %T, want nopBackend", backend)
	}
	// Must be safe without any backend configured.
	RecordStep("j", "load", nil, time.Second)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("jobA", "create_tables", nil, 2*time.Second)
	RecordStep("jobB", "load", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("calls: counters=%d histograms=%d; want 2/2", len(fb.counters), len(fb.histograms))
	}

	tests := []struct {
		idx    int
		job    string
		step   string
		status string
		secs   float64
	}{
		{0, "jobA", "create_tables", "success", 2.0},
		{1, "jobB", "load", "failure", 1.5},
	}
	for _, tt := range tests {
		c := fb.counters[tt.idx]
		if c.name != StepTotal || c.delta != 1 {
			t.Fatalf("counter[%d] = %#v; want %s delta=1", tt.idx, c, StepTotal)
		}
		if c.labels["job"] != tt.job || c.labels["step"] != tt.step || c.labels["status"] != tt.status {
			t.Fatalf("counter[%d].labels = %v; want job=%s step=%s status=%s", tt.idx, c.labels, tt.job, tt.step, tt.status)
		}
		h := fb.histograms[tt.idx]
		if h.name != StepDuration || h.value < tt.secs-0.001 || h.value > tt.secs+0.001 {
			t.Fatalf("hist[%d] = %#v; want %s ~%v", tt.idx, h, StepDuration, tt.secs)
		}
	}
}

func TestRecordRecordsAndChunks(t *testing.T) {
	fb := install(t)

	RecordRecords("j", "seen", 3)
	RecordRecords("j", "malformed", 0) // ignored
	RecordChunks("j", 2)
	RecordChunks("j", -1) // ignored

	if len(fb.counters) != 2 {
		t.Fatalf("expected 2 counter calls, got %d", len(fb.counters))
	}
	if c := fb.counters[0]; c.name != RecordsTotal || c.delta != 3 || c.labels["kind"] != "seen" {
		t.Fatalf("counter[0] = %#v", c)
	}
	if c := fb.counters[1]; c.name != ChunksTotal || c.delta != 2 {
		t.Fatalf("counter[1] = %#v", c)
	}
}

func TestRecordTableWriteAndQuery(t *testing.T) {
	fb := install(t)

	RecordTableWrite("j", "listeners_by_song", "write_failed")
	RecordQuery("j", "session_item", 1, nil, time.Millisecond)
	RecordQuery("j", "listeners_by_song", 0, nil, time.Millisecond)

	// table write + 2 step counters + 1 row counter (zero rows skipped)
	if len(fb.counters) != 4 {
		t.Fatalf("expected 4 counter calls, got %d", len(fb.counters))
	}
	if c := fb.counters[0]; c.name != TableWritesTotal || c.labels["table"] != "listeners_by_song" || c.labels["status"] != "write_failed" {
		t.Fatalf("counter[0] = %#v", c)
	}
	if c := fb.counters[1]; c.name != StepTotal || c.labels["step"] != "query_session_item" {
		t.Fatalf("counter[1] = %#v", c)
	}
	if c := fb.counters[2]; c.name != QueryRowsTotal || c.delta != 1 || c.labels["query"] != "session_item" {
		t.Fatalf("counter[2] = %#v", c)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)
	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
