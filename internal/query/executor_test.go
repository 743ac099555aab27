package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionetl/internal/loader"
	"sessionetl/internal/record"
	"sessionetl/internal/schema"
	"sessionetl/internal/storage"
	"sessionetl/internal/storage/memory"
)

func load(t *testing.T, rows ...[]string) *memory.Store {
	t.Helper()

	ctx := context.Background()
	reg := schema.Default()
	s := memory.New(0)
	for _, r := range storage.CreateTables(ctx, s, reg.AllSchemas()) {
		require.NoError(t, r.Err)
	}

	in := make(chan record.Parsed, len(rows))
	for i, raw := range rows {
		rec, err := record.Normalize(raw)
		in <- record.Parsed{Line: i + 2, Record: rec, Err: err}
	}
	close(in)
	_, err := loader.New(reg.AllSchemas(), s, loader.Options{}).Load(ctx, in)
	require.NoError(t, err)
	return s
}

func TestExecutor_SessionItem(t *testing.T) {
	t.Parallel()

	s := load(t,
		[]string{"Fu", "Sylvie", "F", "0", "Cruz", "220.5", "free", "X", "338", "Song1", "10"},
		[]string{"Faithless", "Ava", "F", "4", "Robinson", "495.3073", "free", "X", "338", "Music Matters (Mark Knight Dub)", "50"},
	)
	e := NewExecutor(schema.Default(), s)

	rows, err := e.Run(context.Background(), schema.QuerySessionItem)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"Faithless", "Music Matters (Mark Knight Dub)", 495.3073}, rows[0].Values)

	rows, err = e.RunWith(context.Background(), schema.QuerySessionItem, 338, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"Fu", "Song1", 220.5}, rows[0].Values)
}

func TestExecutor_CoercesTextArgs(t *testing.T) {
	t.Parallel()

	s := load(t, []string{"Fu", "Sylvie", "F", "0", "Cruz", "220.5", "free", "X", "338", "Song1", "10"})
	e := NewExecutor(schema.Default(), s)

	rows, err := e.RunWith(context.Background(), schema.QuerySessionItem, "338", float64(0))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Fu", rows[0].Values[0])

	_, err = e.RunWith(context.Background(), schema.QuerySessionItem, "abc", 0)
	require.Error(t, err)
}

func TestExecutor_RunAllWithOverrides(t *testing.T) {
	t.Parallel()

	s := load(t,
		[]string{"Fu", "Sylvie", "F", "0", "Cruz", "220.5", "free", "X", "338", "Song1", "10"},
		[]string{"Faithless", "Ava", "F", "4", "Robinson", "495.3073", "free", "X", "338", "Music Matters (Mark Knight Dub)", "50"},
	)
	results := NewExecutor(schema.Default(), s).RunAllWith(context.Background(), map[string][]any{
		schema.QuerySessionItem:     {float64(338), float64(0)},
		schema.QueryListenersBySong: {"Song1"},
	})
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.Err, r.Query.ID)
	}
	require.Len(t, results[0].Rows, 1)
	assert.Equal(t, "Fu", results[0].Rows[0].Values[0])
	assert.Equal(t, []any{338, 0}, results[0].Predicate.Values())
	assert.Empty(t, results[1].Rows)
	require.Len(t, results[2].Rows, 1)
	assert.Equal(t, []any{10, "Sylvie", "Cruz"}, results[2].Rows[0].Values)
}

func TestExecutor_PlaylistInItemOrder(t *testing.T) {
	t.Parallel()

	s := load(t,
		[]string{"C", "Sylvie", "F", "2", "Cruz", "1", "free", "X", "182", "S2", "10"},
		[]string{"A", "Sylvie", "F", "0", "Cruz", "1", "free", "X", "182", "S0", "10"},
		[]string{"B", "Sylvie", "F", "1", "Cruz", "1", "free", "X", "182", "S1", "10"},
		[]string{"Z", "Other", "M", "0", "Person", "1", "free", "X", "182", "S9", "11"},
	)
	rows, err := NewExecutor(schema.Default(), s).Run(context.Background(), schema.QueryUserSessionPlaylist)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var artists []any
	for _, r := range rows {
		v, _ := r.Get("artist")
		artists = append(artists, v)
	}
	assert.Equal(t, []any{"A", "B", "C"}, artists)
	assert.Equal(t, []string{"item_in_session", "artist", "song", "first_name", "last_name"}, rows[0].Columns)
}

func TestExecutor_ListenersBySong(t *testing.T) {
	t.Parallel()

	s := load(t,
		[]string{"Fu", "Sylvie", "F", "0", "Cruz", "220.5", "free", "X", "338", "Song1", "10"},
		[]string{"Fu", "Jacob", "M", "3", "Klein", "220.5", "paid", "X", "5", "Song1", "8"},
	)
	rows, err := NewExecutor(schema.Default(), s).RunWith(context.Background(), schema.QueryListenersBySong, "Song1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{8, "Jacob", "Klein"}, rows[0].Values)
	assert.Equal(t, []any{10, "Sylvie", "Cruz"}, rows[1].Values)
}

func TestExecutor_EmptyResultIsNotAnError(t *testing.T) {
	t.Parallel()

	s := load(t)
	rows, err := NewExecutor(schema.Default(), s).Run(context.Background(), schema.QueryListenersBySong)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExecutor_UnknownQuery(t *testing.T) {
	t.Parallel()

	_, err := NewExecutor(schema.Default(), memory.New(0)).Run(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownQuery)
}

func TestExecutor_WrongArity(t *testing.T) {
	t.Parallel()

	_, err := NewExecutor(schema.Default(), memory.New(0)).RunWith(context.Background(), schema.QuerySessionItem, 338)
	require.Error(t, err)
}

type failingReader struct{ err error }

func (f failingReader) Query(context.Context, schema.Table, []string, schema.Predicate) ([]storage.ResultRow, error) {
	return nil, f.err
}

func TestExecutor_StoreRejection(t *testing.T) {
	t.Parallel()

	boom := errors.New("unconfigured table")
	e := NewExecutor(schema.Default(), failingReader{err: boom})

	_, err := e.Run(context.Background(), schema.QuerySessionItem)
	var qe *QueryExecutionError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, schema.QuerySessionItem, qe.ID)
	assert.Equal(t, schema.TableSessionItemLookup, qe.Table)
	assert.ErrorIs(t, err, boom)

	results := e.RunAll(context.Background())
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}
