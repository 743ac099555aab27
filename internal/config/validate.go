package config

import (
	"fmt"
	"net/url"
	"strings"

	"sessionetl/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "queries.session_item").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var sqlKinds = map[string]struct{}{
	"sqlite":   {},
	"postgres": {},
	"mysql":    {},
	"mssql":    {},
}

var consistencyLevels = map[string]struct{}{
	"any": {}, "one": {}, "two": {}, "three": {}, "quorum": {}, "all": {},
	"local_quorum": {}, "each_quorum": {}, "local_one": {},
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate p; callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	issues = append(issues, validateQueries(p.Queries)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	switch s.Kind {
	case "":
		issues = append(issues, Issue{SeverityError, "source.kind", "source.kind must not be empty"})
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{SeverityError, "source.file.path", "file source requires a non-empty path"})
		}
	case "s3":
		if strings.TrimSpace(s.S3.Bucket) == "" {
			issues = append(issues, Issue{SeverityError, "source.s3.bucket", "s3 source requires a bucket"})
		}
		if strings.TrimSpace(s.S3.Key) == "" {
			issues = append(issues, Issue{SeverityError, "source.s3.key", "s3 source requires an object key"})
		}
		if s.S3.Endpoint != "" {
			if _, err := url.ParseRequestURI(s.S3.Endpoint); err != nil {
				issues = append(issues, Issue{SeverityError, "source.s3.endpoint", fmt.Sprintf("invalid endpoint: %v", err)})
			}
		}
	case "http":
		if u, err := url.ParseRequestURI(s.HTTP.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			issues = append(issues, Issue{SeverityError, "source.http.url", "http source requires an http(s) url"})
		}
		if s.HTTP.MaxRetries < 0 || s.HTTP.TimeoutMS < 0 {
			issues = append(issues, Issue{SeverityError, "source.http", "max_retries and timeout_ms must not be negative"})
		}
		if s.HTTP.InsecureSkipVerify {
			issues = append(issues, Issue{SeverityWarning, "source.http.insecure_skip_verify", "TLS verification is disabled"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "source.kind", fmt.Sprintf("unknown source kind %q", s.Kind)})
	}

	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	switch p.Kind {
	case "":
		issues = append(issues, Issue{SeverityError, "parser.kind", "parser.kind must not be empty"})
	case "csv":
		if c, ok := p.Options["comma"].(string); ok && len([]rune(c)) != 1 {
			issues = append(issues, Issue{SeverityError, "parser.options.comma", "comma must be a single character"})
		}
		if !p.Options.Bool("has_header", true) && len(p.Options.StringMap("header_map")) > 0 {
			issues = append(issues, Issue{SeverityWarning, "parser.options.header_map", "header_map is ignored when has_header is false"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "parser.kind", fmt.Sprintf("unknown parser kind %q", p.Kind)})
	}

	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	switch s.Kind {
	case "":
		issues = append(issues, Issue{SeverityError, "storage.kind", "storage.kind must not be empty"})
	case "memory":
		issues = append(issues, Issue{SeverityWarning, "storage.kind", "memory storage does not outlive the process"})
	case "cassandra":
		c := s.Cassandra
		if len(c.Hosts) == 0 {
			issues = append(issues, Issue{SeverityError, "storage.cassandra.hosts", "at least one host is required"})
		}
		if strings.TrimSpace(c.Keyspace) == "" {
			issues = append(issues, Issue{SeverityError, "storage.cassandra.keyspace", "keyspace must not be empty"})
		}
		if c.ReplicationFactor < 0 {
			issues = append(issues, Issue{SeverityError, "storage.cassandra.replication_factor", "replication_factor must not be negative"})
		}
		if c.Consistency != "" {
			if _, ok := consistencyLevels[strings.ToLower(c.Consistency)]; !ok {
				issues = append(issues, Issue{SeverityError, "storage.cassandra.consistency", fmt.Sprintf("unknown consistency %q", c.Consistency)})
			}
		}
		if c.Username != "" && c.Password == "" {
			issues = append(issues, Issue{SeverityWarning, "storage.cassandra.password", "username set without password"})
		}
	default:
		if _, ok := sqlKinds[s.Kind]; !ok {
			issues = append(issues, Issue{SeverityError, "storage.kind", fmt.Sprintf("unknown storage kind %q", s.Kind)})
			break
		}
		if strings.TrimSpace(s.DB.DSN) == "" {
			issues = append(issues, Issue{SeverityError, "storage.db.dsn", "storage.db.dsn must not be empty"})
		}
		if s.DB.TimeoutMS < 0 {
			issues = append(issues, Issue{SeverityError, "storage.db.timeout_ms", "timeout_ms must not be negative"})
		}
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	for _, f := range []struct {
		path string
		v    int
	}{
		{"runtime.chunk_size", r.ChunkSize},
		{"runtime.workers", r.Workers},
		{"runtime.channel_buffer", r.ChannelBuffer},
		{"runtime.max_failure_samples", r.MaxFailureSamples},
	} {
		if f.v < 0 {
			issues = append(issues, Issue{SeverityError, f.path, "must not be negative"})
		}
	}
	if r.ChunkSize > 0 && r.Workers > r.ChunkSize {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.workers",
			Message:  fmt.Sprintf("workers=%d exceeds chunk_size=%d; extra workers stay idle", r.Workers, r.ChunkSize),
		})
	}

	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "prometheus", "prom":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url", "prometheus backend requires a pushgateway url"})
		} else if _, err := url.ParseRequestURI(m.PushgatewayURL); err != nil {
			issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url", fmt.Sprintf("invalid url: %v", err)})
		}
	case "datadog", "dogstatsd":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{SeverityError, "metrics.datadog_addr", "datadog backend requires an agent address"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "metrics.backend", fmt.Sprintf("unknown metrics backend %q", m.Backend)})
	}

	return issues
}

// validateQueries checks overrides against the built-in query registry.
func validateQueries(qs map[string][]any) []Issue {
	var issues []Issue

	reg := schema.Default()
	for id, args := range qs {
		path := "queries." + id
		q, ok := reg.Query(id)
		if !ok {
			issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf("unknown query %q is ignored", id)})
			continue
		}
		pred, err := q.Predicate(args...)
		if err != nil {
			issues = append(issues, Issue{SeverityError, path, err.Error()})
			continue
		}
		t, _ := reg.Table(q.Table)
		if _, err := t.CoercePredicate(pred); err != nil {
			issues = append(issues, Issue{SeverityError, path, err.Error()})
		}
	}

	return issues
}
