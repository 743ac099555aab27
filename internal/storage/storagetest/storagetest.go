// Package storagetest is a conformance suite every storage.Store backend
// runs against itself.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionetl/internal/schema"
	"sessionetl/internal/storage"
)

// Run exercises s with the default registry tables. The tables are dropped
// and recreated, so s must point at a disposable keyspace or database.
func Run(t *testing.T, s storage.Store) {
	t.Helper()

	ctx := context.Background()
	reg := schema.Default()
	tables := reg.AllSchemas()
	for _, r := range storage.RebuildTables(ctx, s, tables) {
		require.NoError(t, r.Err, "rebuild %s", r.Table)
	}
	t.Cleanup(func() { storage.DropTables(context.Background(), s, tables) })

	lookup, _ := reg.Table(schema.TableSessionItemLookup)
	playlist, _ := reg.Table(schema.TableUserSessionPlaylist)
	listeners, _ := reg.Table(schema.TableListenersBySong)

	t.Run("upsert replaces by key", func(t *testing.T) {
		for _, song := range []string{"first", "Song1"} {
			require.NoError(t, s.Upsert(ctx, lookup, schema.RowProjection{
				Table:   lookup.Name,
				Key:     []any{338, 0},
				Columns: lookup.ColumnNames(),
				Values:  []any{338, 0, "Fu", song, 220.5},
			}))
		}
		rows, err := s.Query(ctx, lookup, []string{"artist", "song", "length"},
			schema.Predicate{{Column: "session_id", Value: 338}, {Column: "item_in_session", Value: 0}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, []any{"Fu", "Song1", 220.5}, rows[0].Values)
	})

	t.Run("clustering order", func(t *testing.T) {
		for _, item := range []int{4, 1, 3, 0, 2} {
			require.NoError(t, s.Upsert(ctx, playlist, schema.RowProjection{
				Table:   playlist.Name,
				Key:     []any{10, 182, item},
				Columns: playlist.ColumnNames(),
				Values:  []any{10, 182, item, "Artist", "Song", "Sylvie", "Cruz"},
			}))
		}
		rows, err := s.Query(ctx, playlist, []string{"item_in_session"},
			schema.Predicate{{Column: "user_id", Value: 10}, {Column: "session_id", Value: 182}})
		require.NoError(t, err)
		got := make([]any, 0, len(rows))
		for _, r := range rows {
			v, _ := r.Get("item_in_session")
			got = append(got, v)
		}
		assert.Equal(t, []any{0, 1, 2, 3, 4}, got)
	})

	t.Run("partition isolation", func(t *testing.T) {
		for _, song := range []string{"A", "B"} {
			require.NoError(t, s.Upsert(ctx, listeners, schema.RowProjection{
				Table:   listeners.Name,
				Key:     []any{song, 7},
				Columns: listeners.ColumnNames(),
				Values:  []any{song, 7, "Jo", "Doe"},
			}))
		}
		rows, err := s.Query(ctx, listeners, []string{"user_id", "first_name"}, schema.Predicate{{Column: "song", Value: "A"}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, []any{7, "Jo"}, rows[0].Values)

		rows, err = s.Query(ctx, listeners, []string{"user_id"}, schema.Predicate{{Column: "song", Value: "missing"}})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("predicate must bind partition key", func(t *testing.T) {
		_, err := s.Query(ctx, playlist, []string{"song"}, schema.Predicate{{Column: "user_id", Value: 10}})
		require.Error(t, err)
		_, err = s.Query(ctx, listeners, []string{"song"}, schema.Predicate{{Column: "first_name", Value: "Jo"}})
		require.Error(t, err)
	})
}
