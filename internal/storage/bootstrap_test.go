package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionetl/internal/schema"
	"sessionetl/internal/storage"
	"sessionetl/internal/storage/memory"
)

// flakyStore fails DDL for the named table only.
type flakyStore struct {
	*memory.Store
	failOn string
	calls  []string
}

func (f *flakyStore) CreateTable(ctx context.Context, t schema.Table) error {
	f.calls = append(f.calls, "create "+t.Name)
	if t.Name == f.failOn {
		return errors.New("boom")
	}
	return f.Store.CreateTable(ctx, t)
}

func (f *flakyStore) DropTable(ctx context.Context, name string) error {
	f.calls = append(f.calls, "drop "+name)
	return f.Store.DropTable(ctx, name)
}

func TestCreateTables_ContinuesPastFailure(t *testing.T) {
	t.Parallel()

	tables := schema.Default().AllSchemas()
	s := &flakyStore{Store: memory.New(0), failOn: schema.TableUserSessionPlaylist}

	res := storage.CreateTables(context.Background(), s, tables)
	require.Len(t, res, len(tables))
	assert.Equal(t, 1, storage.Failed(res))
	for _, r := range res {
		if r.Table == schema.TableUserSessionPlaylist {
			assert.Error(t, r.Err)
		} else {
			assert.NoError(t, r.Err)
		}
	}
}

func TestRebuildTables_DropsBeforeCreating(t *testing.T) {
	t.Parallel()

	tables := schema.Default().AllSchemas()
	s := &flakyStore{Store: memory.New(0)}

	res := storage.RebuildTables(context.Background(), s, tables)
	assert.Equal(t, 0, storage.Failed(res))
	require.Len(t, s.calls, 2*len(tables))
	for i := range tables {
		assert.Equal(t, "drop "+tables[i].Name, s.calls[i])
		assert.Equal(t, "create "+tables[i].Name, s.calls[len(tables)+i])
	}
}

func TestNew_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := storage.New(context.Background(), storage.Config{Kind: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage.kind=nope")
}

func TestNew_RegisteredKind(t *testing.T) {
	t.Parallel()

	s, err := storage.New(context.Background(), storage.Config{Kind: "memory"})
	require.NoError(t, err)
	defer s.Close()
	assert.Contains(t, storage.ListKinds(), "memory")
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.True(t, storage.IsFatal(errors.Join(errors.New("dial"), storage.ErrUnavailable)))
	assert.True(t, storage.IsFatal(storage.ErrKeyspace))
	assert.False(t, storage.IsFatal(errors.New("write timeout")))
}
