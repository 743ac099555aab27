// Package cassandra registers the "cassandra" storage backend, the native
// home of the denormalized tables: each table is a CQL table whose primary
// key is ((partition key), clustering columns...).
package cassandra

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	gocql "github.com/apache/cassandra-gocql-driver/v2"

	"sessionetl/internal/schema"
	"sessionetl/internal/storage"
)

const (
	defaultKeyspace = "project2"
	defaultTimeout  = 10 * time.Second
)

func init() {
	storage.Register("cassandra", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return Open(ctx, cfg)
	})
}

// Store is a storage.Store on a gocql session bound to one keyspace.
type Store struct {
	session  *gocql.Session
	keyspace string
}

// ParseConsistency maps a consistency name (case-insensitive) to its level.
// Empty means LOCAL_QUORUM.
func ParseConsistency(s string) (gocql.Consistency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "LOCAL_QUORUM":
		return gocql.LocalQuorum, nil
	case "ANY":
		return gocql.Any, nil
	case "ONE":
		return gocql.One, nil
	case "TWO":
		return gocql.Two, nil
	case "THREE":
		return gocql.Three, nil
	case "QUORUM":
		return gocql.Quorum, nil
	case "ALL":
		return gocql.All, nil
	case "EACH_QUORUM":
		return gocql.EachQuorum, nil
	case "LOCAL_ONE":
		return gocql.LocalOne, nil
	}
	return 0, fmt.Errorf("cassandra: unknown consistency %q", s)
}

func newCluster(cfg storage.Config, keyspace string) (*gocql.ClusterConfig, error) {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"127.0.0.1"}
	}
	cons, err := ParseConsistency(cfg.Consistency)
	if err != nil {
		return nil, err
	}
	c := gocql.NewCluster(hosts...)
	if cfg.Port > 0 {
		c.Port = cfg.Port
	}
	c.Keyspace = keyspace
	c.Consistency = cons
	c.Timeout = defaultTimeout
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	c.ConnectTimeout = c.Timeout
	if cfg.Username != "" {
		c.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}
	return c, nil
}

// Open ensures the keyspace exists and returns a Store bound to it. A
// session that cannot be established is reported as storage.ErrUnavailable,
// a keyspace that cannot be created as storage.ErrKeyspace.
func Open(ctx context.Context, cfg storage.Config) (*Store, error) {
	keyspace := cfg.Keyspace
	if keyspace == "" {
		keyspace = defaultKeyspace
	}

	admin, err := newCluster(cfg, "")
	if err != nil {
		return nil, err
	}
	boot, err := admin.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra: connect %v: %v: %w", admin.Hosts, err, storage.ErrUnavailable)
	}
	err = boot.Query(CreateKeyspaceCQL(keyspace, cfg.ReplicationFactor)).ExecContext(ctx)
	boot.Close()
	if err != nil {
		return nil, fmt.Errorf("cassandra: create keyspace %s: %v: %w", keyspace, err, storage.ErrKeyspace)
	}

	bound, err := newCluster(cfg, keyspace)
	if err != nil {
		return nil, err
	}
	session, err := bound.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra: use keyspace %s: %v: %w", keyspace, err, storage.ErrKeyspace)
	}
	log.Printf("cassandra: connected hosts=%v keyspace=%s consistency=%s", bound.Hosts, keyspace, bound.Consistency)
	return &Store{session: session, keyspace: keyspace}, nil
}

func (s *Store) CreateTable(ctx context.Context, t schema.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.session.Query(CreateTableCQL(s.keyspace, t)).ExecContext(ctx); err != nil {
		return fmt.Errorf("cassandra: create table %s: %w", t.Name, err)
	}
	return nil
}

func (s *Store) DropTable(ctx context.Context, name string) error {
	if err := s.session.Query(dropTableCQL(s.keyspace, name)).ExecContext(ctx); err != nil {
		return fmt.Errorf("cassandra: drop table %s: %w", name, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, t schema.Table, row schema.RowProjection) error {
	for _, c := range row.Columns {
		if _, ok := t.Column(c); !ok {
			return fmt.Errorf("cassandra: table %s: unknown column %s", t.Name, c)
		}
	}
	if err := s.session.Query(InsertCQL(s.keyspace, t.Name, row.Columns), row.Values...).ExecContext(ctx); err != nil {
		return fmt.Errorf("cassandra: upsert %s: %w", t.Name, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, t schema.Table, columns []string, p schema.Predicate) ([]storage.ResultRow, error) {
	if err := t.CheckPredicate(p); err != nil {
		return nil, err
	}
	types := make([]schema.ColumnType, len(columns))
	for i, c := range columns {
		col, ok := t.Column(c)
		if !ok {
			return nil, fmt.Errorf("cassandra: table %s: unknown column %s", t.Name, c)
		}
		types[i] = col.Type
	}

	iter := s.session.Query(SelectCQL(s.keyspace, t.Name, columns, p), p.Values()...).IterContext(ctx)
	var out []storage.ResultRow
	for {
		m := make(map[string]any, len(columns))
		if !iter.MapScan(m) {
			break
		}
		vals := make([]any, len(columns))
		for i, c := range columns {
			v, err := types[i].Coerce(m[c])
			if err != nil {
				_ = iter.Close()
				return nil, fmt.Errorf("cassandra: query %s: column %s: %w", t.Name, c, err)
			}
			vals[i] = v
		}
		out = append(out, storage.ResultRow{Columns: append([]string(nil), columns...), Values: vals})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("cassandra: query %s: %w", t.Name, err)
	}
	return out, nil
}

func (s *Store) Close() error {
	s.session.Close()
	return nil
}
