package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_EmptyPathYieldsDefaults(t *testing.T) {
	t.Parallel()

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(p, Default()) {
		t.Fatalf("Load(\"\") = %+v, want defaults", p)
	}
	if issues := ValidatePipeline(p); HasErrors(issues) {
		t.Fatalf("defaults do not validate: %+v", issues)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	const js = `{
	  "job": "nightly",
	  "source": { "kind": "s3", "s3": { "bucket": "events", "key": "2018/11/event_datafile_new.csv", "region": "us-west-2" } },
	  "parser": { "kind": "csv", "options": { "comma": ";", "header_map": { "sessionid": "sessionId" } } },
	  "storage": { "kind": "sqlite", "db": { "dsn": "file:sessions.db" } },
	  "runtime": { "chunk_size": 500 },
	  "queries": { "session_item": [139, 3], "listeners_by_song": ["Yellow"] }
	}`
	path := filepath.Join(t.TempDir(), "sessionetl.json")
	if err := os.WriteFile(path, []byte(js), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.Job != "nightly" {
		t.Fatalf("Job = %q, want nightly", p.Job)
	}
	if p.Source.Kind != "s3" || p.Source.S3.Bucket != "events" || p.Source.S3.Region != "us-west-2" {
		t.Fatalf("Source = %+v", p.Source)
	}
	if got := p.Parser.Options.Rune("comma", ','); got != ';' {
		t.Fatalf("comma = %q, want ';'", got)
	}
	if got := p.Parser.Options.StringMap("header_map"); got["sessionid"] != "sessionId" {
		t.Fatalf("header_map = %#v", got)
	}
	if p.Storage.Kind != "sqlite" || p.Storage.DB.DSN != "file:sessions.db" {
		t.Fatalf("Storage = %+v", p.Storage)
	}
	// Untouched sections keep their defaults.
	if p.Storage.Cassandra.Keyspace != DefaultKeyspace {
		t.Fatalf("Keyspace = %q, want %q", p.Storage.Cassandra.Keyspace, DefaultKeyspace)
	}
	if p.Runtime.ChunkSize != 500 || p.Runtime.Workers != DefaultWorkers {
		t.Fatalf("Runtime = %+v", p.Runtime)
	}
	if got := p.QueryArgs("session_item"); !reflect.DeepEqual(got, []any{float64(139), float64(3)}) {
		t.Fatalf("QueryArgs(session_item) = %#v", got)
	}
	if got := p.QueryArgs("user_session_playlist"); got != nil {
		t.Fatalf("QueryArgs(user_session_playlist) = %#v, want nil", got)
	}
	if issues := ValidatePipeline(p); len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"job": `), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestApplyEnvMap(t *testing.T) {
	t.Parallel()

	p := Default()
	err := ApplyEnvMap(&p, map[string]string{
		"SESSIONETL_JOB":                   "from-env",
		"SESSIONETL_CASSANDRA_HOSTS":       "10.0.0.1,10.0.0.2",
		"SESSIONETL_CASSANDRA_CONSISTENCY": "one",
		"SESSIONETL_WORKERS":               "8",
		"UNRELATED":                        "x",
	})
	if err != nil {
		t.Fatalf("ApplyEnvMap: %v", err)
	}

	if p.Job != "from-env" {
		t.Fatalf("Job = %q", p.Job)
	}
	if !reflect.DeepEqual(p.Storage.Cassandra.Hosts, []string{"10.0.0.1", "10.0.0.2"}) {
		t.Fatalf("Hosts = %#v", p.Storage.Cassandra.Hosts)
	}
	if p.Storage.Cassandra.Consistency != "one" {
		t.Fatalf("Consistency = %q", p.Storage.Cassandra.Consistency)
	}
	if p.Runtime.Workers != 8 {
		t.Fatalf("Workers = %d, want 8", p.Runtime.Workers)
	}
	// Unset variables leave values alone.
	if p.Runtime.ChunkSize != DefaultChunkSize || p.Storage.Kind != "cassandra" {
		t.Fatalf("unexpected override: %+v %+v", p.Runtime, p.Storage)
	}
}

func TestApplyEnvMap_BadNumber(t *testing.T) {
	t.Parallel()

	p := Default()
	if err := ApplyEnvMap(&p, map[string]string{"SESSIONETL_CHUNK_SIZE": "lots"}); err == nil {
		t.Fatal("expected error for non-numeric chunk size")
	}
}

func TestOptions_Accessors(t *testing.T) {
	t.Parallel()

	o := Options{
		"s": "hello",
		"b": true,
		"i": float64(42), // encoding/json decodes numbers as float64
		"r": "ž",
		"m": map[string]any{"A": "a", "X": 1},
	}

	if got := o.String("s", "def"); got != "hello" {
		t.Fatalf("String(s) = %q, want hello", got)
	}
	if got := o.String("missing", "def"); got != "def" {
		t.Fatalf("String(missing) = %q, want def", got)
	}
	if got := o.Bool("b", false); !got {
		t.Fatalf("Bool(b) = %v, want true", got)
	}
	if got := o.Bool("s", true); !got {
		t.Fatalf("Bool(s) = %v, want default true for a non-bool", got)
	}
	if got := o.Int("i", 0); got != 42 {
		t.Fatalf("Int(i) = %d, want 42", got)
	}
	if got := o.Int("missing", 7); got != 7 {
		t.Fatalf("Int(missing) = %d, want 7", got)
	}
	if got := o.Rune("r", 'x'); got != 'ž' {
		t.Fatalf("Rune(r) = %q, want ž", got)
	}
	if got := o.StringMap("m"); !reflect.DeepEqual(got, map[string]string{"A": "a"}) {
		t.Fatalf("StringMap(m) = %#v", got)
	}
	if got := o.StringMap("missing"); got == nil || len(got) != 0 {
		t.Fatalf("StringMap(missing) = %#v, want empty map", got)
	}
}

func TestOptions_UnmarshalJSON_NullYieldsEmptyMap(t *testing.T) {
	t.Parallel()

	var w struct {
		Opts Options `json:"options"`
	}
	if err := json.Unmarshal([]byte(`{"options": null}`), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.Opts == nil || len(w.Opts) != 0 {
		t.Fatalf("Opts after null unmarshal = %#v, want non-nil empty map", w.Opts)
	}
}
