package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionetl/internal/schema"
	"sessionetl/internal/storage/storagetest"
)

func playlistTable(t *testing.T) schema.Table {
	t.Helper()
	tbl, ok := schema.Default().Table(schema.TableUserSessionPlaylist)
	require.True(t, ok)
	return tbl
}

func playlistRow(user, session, item int, song string) schema.RowProjection {
	return schema.RowProjection{
		Table:   schema.TableUserSessionPlaylist,
		Key:     []any{user, session, item},
		Columns: []string{"user_id", "session_id", "item_in_session", "artist", "song", "first_name", "last_name"},
		Values:  []any{user, session, item, "A", song, "F", "L"},
	}
}

func TestStore_ClusteringOrderAndUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(4)
	tbl := playlistTable(t)
	require.NoError(t, s.CreateTable(ctx, tbl))

	for _, item := range []int{3, 0, 2, 1} {
		require.NoError(t, s.Upsert(ctx, tbl, playlistRow(10, 182, item, "v1")))
	}
	// Same key again: replaces, never duplicates.
	require.NoError(t, s.Upsert(ctx, tbl, playlistRow(10, 182, 2, "v2")))
	// Another partition.
	require.NoError(t, s.Upsert(ctx, tbl, playlistRow(11, 182, 0, "other")))

	rows, err := s.Query(ctx, tbl, []string{"item_in_session", "song"}, schema.Predicate{{Column: "user_id", Value: 10}, {Column: "session_id", Value: 182}})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	var items []any
	for _, r := range rows {
		v, _ := r.Get("item_in_session")
		items = append(items, v)
	}
	assert.Equal(t, []any{0, 1, 2, 3}, items)
	song, _ := rows[2].Get("song")
	assert.Equal(t, "v2", song)
	assert.Equal(t, 5, s.Len(tbl.Name))
}

func TestStore_DescendingClustering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tbl := playlistTable(t)
	tbl.Name = "playlist_desc"
	tbl.Clustering = []schema.ClusteringColumn{{Name: "item_in_session", Order: schema.Desc}}

	s := New(0)
	require.NoError(t, s.CreateTable(ctx, tbl))
	for _, item := range []int{1, 5, 3} {
		require.NoError(t, s.Upsert(ctx, tbl, playlistRow(1, 1, item, "x")))
	}
	rows, err := s.Query(ctx, tbl, []string{"item_in_session"}, schema.Predicate{{Column: "user_id", Value: 1}, {Column: "session_id", Value: 1}})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []any{5}, rows[0].Values)
	assert.Equal(t, []any{1}, rows[2].Values)
}

func TestStore_QueryRejectsNonKeyPredicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(1)
	tbl := playlistTable(t)
	require.NoError(t, s.CreateTable(ctx, tbl))

	_, err := s.Query(ctx, tbl, []string{"song"}, schema.Predicate{{Column: "user_id", Value: 10}})
	assert.Error(t, err)

	_, err = s.Query(ctx, tbl, []string{"nope"}, schema.Predicate{{Column: "user_id", Value: 10}, {Column: "session_id", Value: 1}})
	assert.Error(t, err)
}

func TestStore_MissingTableAndDrop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(2)
	tbl := playlistTable(t)

	assert.Error(t, s.Upsert(ctx, tbl, playlistRow(1, 1, 1, "x")))

	require.NoError(t, s.CreateTable(ctx, tbl))
	require.NoError(t, s.Upsert(ctx, tbl, playlistRow(1, 1, 1, "x")))
	require.NoError(t, s.DropTable(ctx, tbl.Name))
	require.NoError(t, s.DropTable(ctx, tbl.Name), "dropping a missing table is not an error")
	assert.Equal(t, 0, s.Len(tbl.Name))
}

func TestStore_ConcurrentUpserts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(8)
	tbl := playlistTable(t)
	require.NoError(t, s.CreateTable(ctx, tbl))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				// Every worker writes the same keys; upserts converge.
				_ = s.Upsert(ctx, tbl, playlistRow(i%10, 1, i, "x"))
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 100, s.Len(tbl.Name))
}

func TestToken_Stable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Token([]any{10, 182}), Token([]any{10, 182}))
	assert.NotEqual(t, Token([]any{10, 182}), Token([]any{182, 10}))
}

func TestStore_Conformance(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, New(0))
}
