// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A load run is a batch job with no scrape endpoint, so
// collected metrics are pushed once at the end of the run via Flush.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sessionetl/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend. The job label is the
// Pushgateway grouping key, so it is not repeated on the collectors.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec
	stepDuration *prometheus.SummaryVec
	records      *prometheus.CounterVec
	tableWrites  *prometheus.CounterVec
	chunks       prometheus.Counter
	queryRows    *prometheus.CounterVec
}

// NewBackend constructs a Pushgateway backend. jobName defaults to
// "sessionetl".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "sessionetl"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Pipeline step duration in seconds by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Input records by kind (seen, malformed, coercion).",
		}, []string{"kind"}),
		tableWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.TableWritesTotal,
			Help: "Per-table write outcomes.",
		}, []string{"table", "status"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.ChunksTotal,
			Help: "Input chunks processed by the loader.",
		}),
		queryRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.QueryRowsTotal,
			Help: "Rows returned per registered query.",
		}, []string{"query"}),
	}

	for _, c := range []prometheus.Collector{b.stepCounter, b.stepDuration, b.records, b.tableWrites, b.chunks, b.queryRows} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.RecordsTotal:
		if b.records != nil {
			b.records.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.TableWritesTotal:
		if b.tableWrites != nil {
			b.tableWrites.WithLabelValues(labels["table"], labels["status"]).Add(delta)
		}
	case metrics.ChunksTotal:
		if b.chunks != nil {
			b.chunks.Add(delta)
		}
	case metrics.QueryRowsTotal:
		if b.queryRows != nil {
			b.queryRows.WithLabelValues(labels["query"]).Add(delta)
		}
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
