package record

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrMalformedRow marks a row that carries no denormalizable data: wrong
// column count, or an empty artist (a non-playback event).
var ErrMalformedRow = errors.New("malformed row")

// CoercionError reports a field whose text could not be converted to the
// required type. It rejects that row only.
type CoercionError struct {
	Field string
	Value string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

var (
	errNegative = errors.New("must be non-negative")
	errRange    = errors.New("out of 32-bit integer range")
)

// Normalize converts raw fields, given in Columns order, into a Record.
func Normalize(raw []string) (Record, error) {
	if len(raw) != len(Columns) {
		return Record{}, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedRow, len(raw), len(Columns))
	}

	artist := text(raw[0])
	if artist == "" {
		return Record{}, fmt.Errorf("%w: empty artist", ErrMalformedRow)
	}

	rec := Record{
		Artist:    artist,
		FirstName: text(raw[1]),
		Gender:    text(raw[2]),
		LastName:  text(raw[4]),
		Level:     text(raw[6]),
		Location:  text(raw[7]),
	}

	var err error
	if rec.ItemInSession, err = nonNegativeInt(FieldItemInSession, raw[3]); err != nil {
		return Record{}, err
	}
	if rec.SessionID, err = nonNegativeInt(FieldSessionID, raw[8]); err != nil {
		return Record{}, err
	}
	if rec.UserID, err = integral(FieldUserID, raw[10]); err != nil {
		return Record{}, err
	}

	if s := strings.TrimSpace(raw[5]); s != "" {
		f, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			return Record{}, &CoercionError{Field: FieldLength, Value: raw[5], Err: perr}
		}
		rec.Length = &f
	}
	if s := text(raw[9]); s != "" {
		rec.Song = &s
	}

	return rec, nil
}

// text trims and NFC-normalizes a text field so that visually identical
// names (composed vs decomposed accents) land in the same partition.
func text(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return norm.NFC.String(s)
}

// integral parses "10" as well as "10.0", which spreadsheet and dataframe
// exports produce for integer columns containing blanks. Values must fit a
// 32-bit int column.
func integral(field, raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(n), nil
	} else if errors.Is(err, strconv.ErrRange) {
		return 0, &CoercionError{Field: field, Value: raw, Err: errRange}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &CoercionError{Field: field, Value: raw, Err: err}
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, &CoercionError{Field: field, Value: raw, Err: fmt.Errorf("not an integer")}
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, &CoercionError{Field: field, Value: raw, Err: errRange}
	}
	return int(f), nil
}

func nonNegativeInt(field, raw string) (int, error) {
	n, err := integral(field, raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &CoercionError{Field: field, Value: raw, Err: errNegative}
	}
	return n, nil
}
