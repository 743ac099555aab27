package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config carries everything a backend may need. Each backend reads the
// fields it understands and ignores the rest.
type Config struct {
	// Kind selects the backend: "cassandra", "memory", "sqlite",
	// "postgres", "mysql" or "mssql".
	Kind string

	// DSN is the connection string for SQL backends.
	DSN string

	// Hosts, Port, Keyspace, ReplicationFactor and Consistency configure
	// the cassandra backend.
	Hosts             []string
	Port              int
	Keyspace          string
	ReplicationFactor int
	Consistency       string
	Username          string
	Password          string

	// Timeout bounds individual statements. Zero means backend default.
	Timeout time.Duration

	// Shards is the partition shard count of the memory backend.
	Shards int
}

// Factory opens a Store for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered backend kinds, sorted.
func ListKinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a Store using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Store, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
