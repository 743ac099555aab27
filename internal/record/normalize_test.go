package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(artist, first, gender, item, last, length, level, location, session, song, user string) []string {
	return []string{artist, first, gender, item, last, length, level, location, session, song, user}
}

func TestNormalize_Valid(t *testing.T) {
	t.Parallel()

	rec, err := Normalize(row("Fu", "F", "M", "0", "L", "220.5", "paid", "X", "338", "Song1", "10"))
	require.NoError(t, err)

	assert.Equal(t, "Fu", rec.Artist)
	require.NotNil(t, rec.Song)
	assert.Equal(t, "Song1", *rec.Song)
	require.NotNil(t, rec.Length)
	assert.InDelta(t, 220.5, *rec.Length, 1e-9)
	assert.Equal(t, 338, rec.SessionID)
	assert.Equal(t, 0, rec.ItemInSession)
	assert.Equal(t, 10, rec.UserID)
	assert.Equal(t, "F", rec.FirstName)
	assert.Equal(t, "L", rec.LastName)
	assert.Equal(t, "M", rec.Gender)
	assert.Equal(t, "paid", rec.Level)
	assert.Equal(t, "X", rec.Location)
}

func TestNormalize_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		raw       []string
		malformed bool
		field     string // expected CoercionError field when not malformed
	}{
		{name: "empty_artist", raw: row("", "F", "M", "0", "L", "1", "free", "X", "1", "S", "2"), malformed: true},
		{name: "blank_artist", raw: row("   ", "F", "M", "0", "L", "1", "free", "X", "1", "S", "2"), malformed: true},
		{name: "short_row", raw: []string{"Fu", "F"}, malformed: true},
		{name: "long_row", raw: append(row("Fu", "F", "M", "0", "L", "1", "free", "X", "1", "S", "2"), "extra"), malformed: true},
		{name: "bad_length", raw: row("Fu", "F", "M", "0", "L", "abc", "free", "X", "1", "S", "2"), field: FieldLength},
		{name: "bad_session", raw: row("Fu", "F", "M", "0", "L", "1", "free", "X", "x1", "S", "2"), field: FieldSessionID},
		{name: "negative_item", raw: row("Fu", "F", "M", "-1", "L", "1", "free", "X", "1", "S", "2"), field: FieldItemInSession},
		{name: "fractional_user", raw: row("Fu", "F", "M", "0", "L", "1", "free", "X", "1", "S", "2.5"), field: FieldUserID},
		{name: "empty_user", raw: row("Fu", "F", "M", "0", "L", "1", "free", "X", "1", "S", ""), field: FieldUserID},
		{name: "user_over_int32", raw: row("Fu", "F", "M", "0", "L", "1", "free", "X", "1", "S", "3000000000"), field: FieldUserID},
		{name: "user_over_int32_decimal", raw: row("Fu", "F", "M", "0", "L", "1", "free", "X", "1", "S", "3000000000.0"), field: FieldUserID},
		{name: "session_over_int32", raw: row("Fu", "F", "M", "0", "L", "1", "free", "X", "2147483648", "S", "2"), field: FieldSessionID},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Normalize(tc.raw)
			require.Error(t, err)
			if tc.malformed {
				assert.ErrorIs(t, err, ErrMalformedRow)
				return
			}
			var ce *CoercionError
			require.True(t, errors.As(err, &ce), "want CoercionError, got %T: %v", err, err)
			assert.Equal(t, tc.field, ce.Field)
			assert.NotErrorIs(t, err, ErrMalformedRow)
		})
	}
}

func TestNormalize_Int32Bounds(t *testing.T) {
	t.Parallel()

	rec, err := Normalize(row("Fu", "F", "M", "2147483647", "L", "1", "free", "X", "2147483647.0", "S", "-2147483648"))
	require.NoError(t, err)
	assert.Equal(t, 2147483647, rec.ItemInSession)
	assert.Equal(t, 2147483647, rec.SessionID)
	assert.Equal(t, -2147483648, rec.UserID)
}

func TestNormalize_OptionalFields(t *testing.T) {
	t.Parallel()

	rec, err := Normalize(row("Fu", "F", "M", "3", "L", "", "free", "X", "9", "", "7.0"))
	require.NoError(t, err)
	assert.Nil(t, rec.Song)
	assert.Nil(t, rec.Length)
	assert.Equal(t, 7, rec.UserID)

	_, ok := rec.Field(FieldSong)
	assert.False(t, ok)
	_, ok = rec.Field(FieldLength)
	assert.False(t, ok)
	_, ok = rec.Field("nope")
	assert.False(t, ok)
}

func TestNormalize_UnicodeComposition(t *testing.T) {
	t.Parallel()

	// "Beyoncé" with a combining acute accent vs the precomposed form.
	decomposed := "Beyonce\u0301"
	composed := "Beyonc\u00e9"

	a, err := Normalize(row(decomposed, "F", "F", "0", "L", "1", "free", "X", "1", decomposed, "1"))
	require.NoError(t, err)
	b, err := Normalize(row(composed, "F", "F", "0", "L", "1", "free", "X", "1", composed, "1"))
	require.NoError(t, err)

	assert.Equal(t, b.Artist, a.Artist)
	assert.Equal(t, *b.Song, *a.Song)
}
