// Package config defines the JSON-serializable configuration model for a
// sessionetl run: where the event file comes from, how it is parsed, which
// storage backend receives the denormalized tables, how the loader is tuned,
// where metrics go, and which predicate values the registered queries use.
//
// Example (trimmed):
//
//	{
//	  "job":     "sessionetl",
//	  "source":  { "kind": "file", "file": { "path": "event_datafile_new.csv" } },
//	  "parser":  { "kind": "csv", "options": { "has_header": true } },
//	  "storage": { "kind": "cassandra", "cassandra": { "hosts": ["127.0.0.1"], "keyspace": "project2" } },
//	  "runtime": { "chunk_size": 10000, "workers": 4 },
//	  "queries": { "session_item": [338, 4] }
//	}
//
// Defaults are applied first, then the file, then SESSIONETL_* environment
// overrides (see ApplyEnv).
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Defaults for a run against a local Cassandra node.
const (
	DefaultJob               = "sessionetl"
	DefaultEventFile         = "event_datafile_new.csv"
	DefaultEventDir          = "event_data"
	DefaultKeyspace          = "project2"
	DefaultReplicationFactor = 1
	DefaultChunkSize         = 10000
	DefaultWorkers           = 4
	DefaultChannelBuffer     = 1024
	DefaultFailureSamples    = 3
)

// Pipeline is the top-level object decoded from a config file.
type Pipeline struct {
	// Job names the run in logs and metrics.
	Job string `json:"job"`

	Source  Source        `json:"source"`
	Prepare Prepare       `json:"prepare"`
	Parser  Parser        `json:"parser"`
	Storage Storage       `json:"storage"`
	Runtime RuntimeConfig `json:"runtime"`
	Metrics Metrics       `json:"metrics"`

	// Queries overrides the default predicate values per query id. Values
	// are aligned with the query's filter columns.
	Queries map[string][]any `json:"queries"`
}

// Source identifies where the flattened event file is read from.
type Source struct {
	// Kind is "file", "s3" or "http".
	Kind string     `json:"kind"`
	File SourceFile `json:"file"`
	S3   SourceS3   `json:"s3"`
	HTTP SourceHTTP `json:"http"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	Path string `json:"path"`
}

// SourceS3 holds configuration for the "s3" source kind.
type SourceS3 struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Region string `json:"region"`
	// Endpoint overrides the S3 endpoint (MinIO, LocalStack).
	Endpoint string `json:"endpoint"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	URL                string `json:"url"`
	TimeoutMS          int    `json:"timeout_ms"`
	MaxRetries         int    `json:"max_retries"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
}

// Prepare configures the flatten step that merges raw per-day event files.
type Prepare struct {
	InputDir string `json:"input_dir"`
	Output   string `json:"output"`
}

// Parser selects how the source is parsed.
type Parser struct {
	// Kind is "csv".
	Kind string `json:"kind"`

	// Options is interpreted by the parser. For CSV:
	//   has_header (bool), comma (string), trim_space (bool),
	//   header_map (object: source header -> canonical field)
	Options Options `json:"options"`
}

// Storage selects the backend that receives the tables.
type Storage struct {
	// Kind is one of cassandra, memory, sqlite, postgres, mysql, mssql.
	Kind      string          `json:"kind"`
	Cassandra CassandraConfig `json:"cassandra"`
	DB        DBConfig        `json:"db"`
}

// CassandraConfig configures the cassandra backend.
type CassandraConfig struct {
	Hosts             []string `json:"hosts"`
	Port              int      `json:"port"`
	Keyspace          string   `json:"keyspace"`
	ReplicationFactor int      `json:"replication_factor"`
	Consistency       string   `json:"consistency"`
	Username          string   `json:"username"`
	Password          string   `json:"password"`
	TimeoutMS         int      `json:"timeout_ms"`
}

// DBConfig configures the SQL backends.
type DBConfig struct {
	// DSN is the driver connection string, e.g. "file:sessions.db" or
	// "postgresql://user:pw@host/db".
	DSN       string `json:"dsn"`
	TimeoutMS int    `json:"timeout_ms"`
}

// RuntimeConfig tunes the loader.
type RuntimeConfig struct {
	ChunkSize         int `json:"chunk_size"`
	Workers           int `json:"workers"`
	ChannelBuffer     int `json:"channel_buffer"`
	MaxFailureSamples int `json:"max_failure_samples"`
}

// Metrics selects a metrics backend: "" or "none", "prometheus", "datadog".
type Metrics struct {
	Backend        string `json:"backend"`
	PushgatewayURL string `json:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Pipeline {
	return Pipeline{
		Job:     DefaultJob,
		Source:  Source{Kind: "file", File: SourceFile{Path: DefaultEventFile}},
		Prepare: Prepare{InputDir: DefaultEventDir, Output: DefaultEventFile},
		Parser:  Parser{Kind: "csv", Options: Options{"has_header": true}},
		Storage: Storage{
			Kind: "cassandra",
			Cassandra: CassandraConfig{
				Hosts:             []string{"127.0.0.1"},
				Keyspace:          DefaultKeyspace,
				ReplicationFactor: DefaultReplicationFactor,
			},
		},
		Runtime: RuntimeConfig{
			ChunkSize:         DefaultChunkSize,
			Workers:           DefaultWorkers,
			ChannelBuffer:     DefaultChannelBuffer,
			MaxFailureSamples: DefaultFailureSamples,
		},
	}
}

// Load decodes the file at path over Default. An empty path yields the
// defaults. Environment overrides are not applied; see ApplyEnv.
func Load(path string) (Pipeline, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return Pipeline{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return p, nil
}

// QueryArgs returns the override values for query id, or nil to use the
// query's defaults.
func (p Pipeline) QueryArgs(id string) []any {
	return p.Queries[id]
}

// Options fetches typed values from a free-form JSON object, returning def
// when a key is absent or of an unexpected type.
type Options map[string]any

func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

func (o Options) Bool(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

// Int accepts float64 as well, since encoding/json decodes numbers that way.
func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

// Rune returns the first rune of a string value, e.g. a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if s, ok := o[key].(string); ok && s != "" {
		return []rune(s)[0]
	}
	return def
}

// StringMap returns the string-valued entries of an object value. It never
// returns nil.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	m, _ := o[key].(map[string]any)
	for k, v := range m {
		if s, ok := v.(string); ok {
			res[k] = s
		}
	}
	return res
}

// UnmarshalJSON decodes null to an empty, non-nil Options.
func (o *Options) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if m == nil {
		m = map[string]any{}
	}
	*o = m
	return nil
}
