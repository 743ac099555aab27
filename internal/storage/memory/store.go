// Package memory implements an in-process storage.Store that behaves like a
// column-family store: rows live in partitions addressed by the partition
// key, are kept sorted by the clustering key, and are replaced on upsert.
//
// Partitions are spread over shards by the murmur3 token of the encoded
// partition key (the same hash family a Cassandra partitioner uses), and
// each shard has its own lock so concurrent writers to different partitions
// rarely contend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"

	"sessionetl/internal/schema"
	"sessionetl/internal/storage"
)

const defaultShards = 16

func init() {
	storage.Register("memory", func(_ context.Context, cfg storage.Config) (storage.Store, error) {
		return New(cfg.Shards), nil
	})
}

// Store is the in-memory backend. The zero value is not usable; call New.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	shards int

	// FailUpsert, when set, is consulted before every upsert; a non-nil
	// return is reported as the write error. Tests use it for fault
	// injection.
	FailUpsert func(t schema.Table, row schema.RowProjection) error
}

type table struct {
	def    schema.Table
	shards []shard
}

type shard struct {
	mu         sync.RWMutex
	partitions map[string]*partition
}

type partition struct {
	rows []storedRow // sorted by clustering key
}

type storedRow struct {
	clustering []any
	values     map[string]any
}

// New returns an empty Store with n partition shards (default 16).
func New(n int) *Store {
	if n <= 0 {
		n = defaultShards
	}
	return &Store{tables: make(map[string]*table), shards: n}
}

// Token returns the murmur3 token of an encoded partition key.
func Token(partitionKey []any) int64 {
	return int64(murmur3.Sum64(encodeKey(partitionKey)))
}

func (s *Store) CreateTable(_ context.Context, t schema.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[t.Name]; ok {
		return nil
	}
	tb := &table{def: t, shards: make([]shard, s.shards)}
	for i := range tb.shards {
		tb.shards[i].partitions = make(map[string]*partition)
	}
	s.tables[t.Name] = tb
	return nil
}

func (s *Store) DropTable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
	return nil
}

func (s *Store) lookup(name string) (*table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tb, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("memory: table %s does not exist", name)
	}
	return tb, nil
}

func (s *Store) Upsert(ctx context.Context, t schema.Table, row schema.RowProjection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailUpsert != nil {
		if err := s.FailUpsert(t, row); err != nil {
			return err
		}
	}
	tb, err := s.lookup(t.Name)
	if err != nil {
		return err
	}

	np := len(tb.def.PartitionKey)
	nk := np + len(tb.def.Clustering)
	if len(row.Key) != nk {
		return fmt.Errorf("memory: table %s: key has %d components, want %d", t.Name, len(row.Key), nk)
	}
	values := make(map[string]any, len(row.Columns))
	for i, c := range row.Columns {
		if _, ok := tb.def.Column(c); !ok {
			return fmt.Errorf("memory: table %s: unknown column %s", t.Name, c)
		}
		values[c] = row.Values[i]
	}

	pk := row.Key[:np]
	ck := append([]any(nil), row.Key[np:]...)
	pkey := string(encodeKey(pk))
	sh := &tb.shards[shardFor(pk, len(tb.shards))]

	sh.mu.Lock()
	defer sh.mu.Unlock()
	p, ok := sh.partitions[pkey]
	if !ok {
		p = &partition{}
		sh.partitions[pkey] = p
	}
	i := sort.Search(len(p.rows), func(i int) bool {
		return compareClustering(tb.def.Clustering, p.rows[i].clustering, ck) >= 0
	})
	if i < len(p.rows) && compareClustering(tb.def.Clustering, p.rows[i].clustering, ck) == 0 {
		p.rows[i].values = values
		return nil
	}
	p.rows = append(p.rows, storedRow{})
	copy(p.rows[i+1:], p.rows[i:])
	p.rows[i] = storedRow{clustering: ck, values: values}
	return nil
}

func (s *Store) Query(ctx context.Context, t schema.Table, columns []string, pred schema.Predicate) ([]storage.ResultRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tb, err := s.lookup(t.Name)
	if err != nil {
		return nil, err
	}
	if err := tb.def.CheckPredicate(pred); err != nil {
		return nil, err
	}
	for _, c := range columns {
		if _, ok := tb.def.Column(c); !ok {
			return nil, fmt.Errorf("memory: table %s: unknown column %s", t.Name, c)
		}
	}

	bound := make(map[string]any, len(pred))
	for _, c := range pred {
		bound[c.Column] = c.Value
	}
	pk := make([]any, len(tb.def.PartitionKey))
	for i, k := range tb.def.PartitionKey {
		pk[i] = bound[k]
	}
	sh := &tb.shards[shardFor(pk, len(tb.shards))]

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	p, ok := sh.partitions[string(encodeKey(pk))]
	if !ok {
		return nil, nil
	}

	var out []storage.ResultRow
	for _, r := range p.rows {
		if !matchesClustering(tb.def.Clustering, r.clustering, bound) {
			continue
		}
		vals := make([]any, len(columns))
		for i, c := range columns {
			vals[i] = r.values[c]
		}
		out = append(out, storage.ResultRow{Columns: append([]string(nil), columns...), Values: vals})
	}
	return out, nil
}

// Len returns the number of rows stored in the named table.
func (s *Store) Len(name string) int {
	tb, err := s.lookup(name)
	if err != nil {
		return 0
	}
	n := 0
	for i := range tb.shards {
		sh := &tb.shards[i]
		sh.mu.RLock()
		for _, p := range sh.partitions {
			n += len(p.rows)
		}
		sh.mu.RUnlock()
	}
	return n
}

func (s *Store) Close() error { return nil }

func shardFor(pk []any, n int) int {
	return int(uint64(Token(pk)) % uint64(n))
}

func encodeKey(vals []any) []byte {
	var b []byte
	for _, v := range vals {
		b = schema.AppendValue(b, v)
	}
	return b
}

func matchesClustering(cc []schema.ClusteringColumn, key []any, bound map[string]any) bool {
	for i, c := range cc {
		want, ok := bound[c.Name]
		if !ok {
			continue
		}
		if compareValues(key[i], want) != 0 {
			return false
		}
	}
	return true
}

var _ storage.Store = (*Store)(nil)
