package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"sessionetl/internal/config"
	"sessionetl/internal/datasource"
	"sessionetl/internal/flatten"
	"sessionetl/internal/loader"
	"sessionetl/internal/metrics"
	"sessionetl/internal/metrics/datadog"
	"sessionetl/internal/metrics/prompush"
	csvparser "sessionetl/internal/parser/csv"
	"sessionetl/internal/query"
	"sessionetl/internal/record"
	"sessionetl/internal/schema"
	"sessionetl/internal/stats"
	"sessionetl/internal/storage"
)

// Function variables used as test seams. Production values open the
// configured backend and source.
var (
	newStoreFn = storage.New

	openSourceFn = datasource.New

	streamRecordsFn = csvparser.StreamRecords
)

// app holds the resolved configuration shared by the subcommands.
type app struct {
	cfg     config.Pipeline
	reg     *schema.Registry
	out     io.Writer
	verbose bool

	closers []func() error
}

// init resolves the configuration: defaults, then the file, then the
// environment, then flags. Validation errors abort; warnings are logged.
func (a *app) init(f rootFlags) error {
	cfg, err := config.Load(f.cfgPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return err
	}
	if f.storageKind != "" {
		cfg.Storage.Kind = f.storageKind
	}
	if f.metricsBackend != "" {
		cfg.Metrics.Backend = f.metricsBackend
	}
	if f.pushgatewayURL != "" {
		cfg.Metrics.PushgatewayURL = f.pushgatewayURL
	}
	if f.datadogAddr != "" {
		cfg.Metrics.DatadogAddr = f.datadogAddr
	}

	issues := config.ValidatePipeline(cfg)
	for _, iss := range issues {
		log.Printf("config: %s: %s: %s", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid: %s", orDefault(f.cfgPath, "<defaults>"))
	}

	a.cfg = cfg
	a.reg = schema.Default()
	a.verbose = f.verbose
	if a.verbose {
		log.Printf("pipeline: job=%s source=%s parser=%s storage=%s metrics=%s",
			cfg.Job, cfg.Source.Kind, cfg.Parser.Kind, cfg.Storage.Kind, orDefault(cfg.Metrics.Backend, "none"))
	}
	a.setupMetrics()
	return nil
}

// setupMetrics installs the configured backend. A backend that fails to
// initialize leaves the no-op backend in place.
func (a *app) setupMetrics() {
	m := a.cfg.Metrics
	switch m.Backend {
	case "prometheus", "prom":
		b, err := prompush.NewBackend(a.cfg.Job, m.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		metrics.SetBackend(b)
		a.closers = append(a.closers, metrics.Flush)
	case "datadog", "dogstatsd":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  "sessionetl.",
			GlobalTags: []string{"job:" + a.cfg.Job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		metrics.SetBackend(b)
		a.closers = append(a.closers, metrics.Flush, b.Close)
	default:
		if a.verbose {
			log.Printf("metrics: disabled (backend=%q)", m.Backend)
		}
		return
	}
	log.Printf("metrics: backend=%s job=%s", m.Backend, a.cfg.Job)
}

// close flushes metrics. It is safe to call more than once.
func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
	a.closers = nil
}

func storageConfig(s config.Storage) storage.Config {
	cfg := storage.Config{
		Kind:              s.Kind,
		DSN:               s.DB.DSN,
		Hosts:             s.Cassandra.Hosts,
		Port:              s.Cassandra.Port,
		Keyspace:          s.Cassandra.Keyspace,
		ReplicationFactor: s.Cassandra.ReplicationFactor,
		Consistency:       s.Cassandra.Consistency,
		Username:          s.Cassandra.Username,
		Password:          s.Cassandra.Password,
		Timeout:           time.Duration(s.DB.TimeoutMS) * time.Millisecond,
	}
	if s.Kind == "cassandra" {
		cfg.Timeout = time.Duration(s.Cassandra.TimeoutMS) * time.Millisecond
	}
	return cfg
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	s, err := newStoreFn(ctx, storageConfig(a.cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", a.cfg.Storage.Kind, err)
	}
	return s, nil
}

func (a *app) prepare(ctx context.Context, in, out string) error {
	in = orDefault(in, a.cfg.Prepare.InputDir)
	out = orDefault(out, a.cfg.Prepare.Output)
	start := time.Now()
	res, err := flatten.MergeFile(ctx, in, out)
	metrics.RecordStep(a.cfg.Job, "prepare", err, time.Since(start))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "flattened %d file(s) into %s: rows=%d dropped=%d skipped_files=%d\n",
		res.Files, out, res.Rows, res.Dropped, len(res.Skipped))
	return nil
}

// createTables is the build-tables step: drop, then create. Per-table
// failures are reported but do not fail the command.
func (a *app) createTables(ctx context.Context) error {
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	results := storage.RebuildTables(ctx, s, a.reg.AllSchemas())
	metrics.RecordStep(a.cfg.Job, "create_tables", firstErr(results), time.Since(start))
	printTableResults(a.out, results)
	return nil
}

func (a *app) dropTables(ctx context.Context) error {
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	results := storage.DropTables(ctx, s, a.reg.AllSchemas())
	metrics.RecordStep(a.cfg.Job, "drop_tables", firstErr(results), time.Since(start))
	printTableResults(a.out, results)
	return nil
}

// stream opens the source and feeds parsed records into out, closing it
// when done. It runs in g.
func (a *app) stream(ctx context.Context, g *errgroup.Group, out chan<- record.Parsed) error {
	src, err := openSourceFn(ctx, a.cfg.Source)
	if err != nil {
		close(out)
		return fmt.Errorf("source: %w", err)
	}
	g.Go(func() error {
		defer close(out)
		rc, err := src.Open(ctx)
		if err == nil {
			err = streamRecordsFn(ctx, rc, a.cfg.Parser.Options, out)
		}
		// Cancellation is reported by the consumer.
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("source: %w", err)
		}
		return nil
	})
	return nil
}

// load is the load-and-query step. Only an unreachable store or an
// unreadable source fail it; a canceled run prints its partial summary and
// returns the cancellation error.
func (a *app) load(ctx context.Context, runQueries bool) error {
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)
	in := make(chan record.Parsed, max(a.cfg.Runtime.ChannelBuffer, 1))
	if err := a.stream(gctx, g, in); err != nil {
		return err
	}

	l := loader.New(a.reg.AllSchemas(), s, loader.Options{
		Job:               a.cfg.Job,
		ChunkSize:         a.cfg.Runtime.ChunkSize,
		Workers:           a.cfg.Runtime.Workers,
		MaxFailureSamples: a.cfg.Runtime.MaxFailureSamples,
	})
	sum, lerr := l.Load(gctx, in)
	for range in {
	}
	if err := g.Wait(); err != nil {
		printSummary(a.out, sum)
		return err
	}
	printSummary(a.out, sum)
	if lerr != nil {
		return fmt.Errorf("load interrupted: %w", lerr)
	}

	if !runQueries {
		return nil
	}
	return a.runQueries(ctx, s)
}

func (a *app) queryAll(ctx context.Context) error {
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return a.runQueries(ctx, s)
}

func (a *app) runQueries(ctx context.Context, s storage.Store) error {
	e := query.NewExecutor(a.reg, s)
	e.Job = a.cfg.Job
	for _, res := range e.RunAllWith(ctx, a.cfg.Queries) {
		printResult(a.out, res)
	}
	return ctx.Err()
}

// query runs a single query. values override the configured predicate
// values when given.
func (a *app) query(ctx context.Context, id string, values []any) error {
	if _, ok := a.reg.Query(id); !ok {
		return fmt.Errorf("%w: %s (known: %s)", query.ErrUnknownQuery, id, strings.Join(queryIDs(a.reg), ", "))
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(values) == 0 {
		values = a.cfg.QueryArgs(id)
	}
	e := query.NewExecutor(a.reg, s)
	e.Job = a.cfg.Job
	res := e.Exec(ctx, id, values...)
	printResult(a.out, res)

	var qe *query.QueryExecutionError
	if res.Err != nil && !errors.As(res.Err, &qe) {
		return res.Err
	}
	return nil
}

func (a *app) stats(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	in := make(chan record.Parsed, max(a.cfg.Runtime.ChannelBuffer, 1))
	if err := a.stream(gctx, g, in); err != nil {
		return err
	}
	rep := stats.Compute(in, a.reg.AllSchemas())
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return rep.Write(a.out)
}

func printTableResults(w io.Writer, results []storage.TableResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tSTATUS")
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "error: " + r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.Table, status)
	}
	tw.Flush()
}

func printSummary(w io.Writer, sum loader.Summary) {
	fmt.Fprintf(w, "run %s: records=%d valid=%d malformed=%d coercion=%d skipped=%d canceled=%t elapsed=%s\n",
		sum.RunID, sum.RecordsSeen, sum.Valid(), sum.Malformed, sum.CoercionErrors, sum.Skipped,
		sum.Canceled, sum.Elapsed.Truncate(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tWRITTEN\tPROJECTION_FAILURES\tWRITE_FAILURES\tCANCELED")
	for _, name := range sum.TableOrder {
		c := sum.Tables[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", name, c.Written, c.ProjectionFailures, c.WriteFailures, c.Canceled)
	}
	tw.Flush()

	for _, f := range sum.Failures {
		fmt.Fprintf(w, "failure: line=%d table=%s kind=%s %s\n", f.Line, orDefault(f.Table, "-"), f.Kind, f.Reason)
	}
}

func printResult(w io.Writer, res query.Result) {
	fmt.Fprintf(w, "== %s: %s %v\n", res.Query.ID, res.Query.Description, res.Predicate.Values())
	if res.Err != nil {
		fmt.Fprintf(w, "error: %v\n\n", res.Err)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(res.Query.Select, "\t")))
	for _, r := range res.Rows {
		cells := make([]string, len(r.Values))
		for i, v := range r.Values {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "(%d row(s) in %s)\n\n", len(res.Rows), res.Elapsed.Truncate(time.Microsecond))
}

func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

func queryIDs(reg *schema.Registry) []string {
	qs := reg.Queries()
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func firstErr(results []storage.TableResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
