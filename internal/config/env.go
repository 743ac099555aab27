package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SESSIONETL_"

// envOverrides lists the settings that may come from the environment. Zero
// values mean "not set" and leave the pipeline unchanged.
type envOverrides struct {
	Job            string   `env:"JOB"`
	SourceKind     string   `env:"SOURCE_KIND"`
	SourcePath     string   `env:"SOURCE_PATH"`
	S3Bucket       string   `env:"S3_BUCKET"`
	S3Key          string   `env:"S3_KEY"`
	S3Region       string   `env:"S3_REGION"`
	SourceURL      string   `env:"SOURCE_URL"`
	StorageKind    string   `env:"STORAGE_KIND"`
	DSN            string   `env:"DB_DSN"`
	CassandraHosts []string `env:"CASSANDRA_HOSTS" envSeparator:","`
	CassandraPort  int      `env:"CASSANDRA_PORT"`
	Keyspace       string   `env:"CASSANDRA_KEYSPACE"`
	Consistency    string   `env:"CASSANDRA_CONSISTENCY"`
	CassandraUser  string   `env:"CASSANDRA_USERNAME"`
	CassandraPass  string   `env:"CASSANDRA_PASSWORD"`
	ChunkSize      int      `env:"CHUNK_SIZE"`
	Workers        int      `env:"WORKERS"`
	MetricsBackend string   `env:"METRICS_BACKEND"`
	PushgatewayURL string   `env:"PUSHGATEWAY_URL"`
	DatadogAddr    string   `env:"DATADOG_ADDR"`
}

// ApplyEnv overlays SESSIONETL_* variables from the process environment.
func ApplyEnv(p *Pipeline) error {
	return applyEnv(p, env.Options{Prefix: EnvPrefix})
}

// ApplyEnvMap overlays variables from m instead of the process environment.
func ApplyEnvMap(p *Pipeline, m map[string]string) error {
	return applyEnv(p, env.Options{Prefix: EnvPrefix, Environment: m})
}

func applyEnv(p *Pipeline, opts env.Options) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}

	setString(&p.Job, o.Job)
	setString(&p.Source.Kind, o.SourceKind)
	setString(&p.Source.File.Path, o.SourcePath)
	setString(&p.Source.S3.Bucket, o.S3Bucket)
	setString(&p.Source.S3.Key, o.S3Key)
	setString(&p.Source.S3.Region, o.S3Region)
	setString(&p.Source.HTTP.URL, o.SourceURL)
	setString(&p.Storage.Kind, o.StorageKind)
	setString(&p.Storage.DB.DSN, o.DSN)
	if len(o.CassandraHosts) > 0 {
		p.Storage.Cassandra.Hosts = o.CassandraHosts
	}
	setInt(&p.Storage.Cassandra.Port, o.CassandraPort)
	setString(&p.Storage.Cassandra.Keyspace, o.Keyspace)
	setString(&p.Storage.Cassandra.Consistency, o.Consistency)
	setString(&p.Storage.Cassandra.Username, o.CassandraUser)
	setString(&p.Storage.Cassandra.Password, o.CassandraPass)
	setInt(&p.Runtime.ChunkSize, o.ChunkSize)
	setInt(&p.Runtime.Workers, o.Workers)
	setString(&p.Metrics.Backend, o.MetricsBackend)
	setString(&p.Metrics.PushgatewayURL, o.PushgatewayURL)
	setString(&p.Metrics.DatadogAddr, o.DatadogAddr)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
