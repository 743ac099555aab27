package schema

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/xxh3"
)

// RowProjection is a record materialized into one table's row shape: the
// key tuple (partition values then clustering values) and the projected
// column values in declared order.
type RowProjection struct {
	Table   string
	Key     []any
	Columns []string
	Values  []any
}

// Value returns the projected value for column name.
func (p RowProjection) Value(name string) (any, bool) {
	for i, c := range p.Columns {
		if c == name {
			return p.Values[i], true
		}
	}
	return nil, false
}

// Encode returns a canonical byte encoding of the projection. Two
// projections encode identically iff they have the same table, key,
// columns and values.
func (p RowProjection) Encode() []byte {
	b := make([]byte, 0, 64)
	b = appendString(b, p.Table)
	b = binary.AppendUvarint(b, uint64(len(p.Key)))
	for _, v := range p.Key {
		b = AppendValue(b, v)
	}
	b = binary.AppendUvarint(b, uint64(len(p.Columns)))
	for i, c := range p.Columns {
		b = appendString(b, c)
		b = AppendValue(b, p.Values[i])
	}
	return b
}

// Fingerprint is the xxh3 hash of Encode. It identifies a row in logs.
func (p RowProjection) Fingerprint() uint64 {
	return xxh3.Hash(p.Encode())
}

// AppendValue appends a type-tagged encoding of a column value.
func AppendValue(b []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(b, 'n')
	case int:
		b = append(b, 'i')
		return binary.AppendVarint(b, int64(x))
	case int32:
		b = append(b, 'i')
		return binary.AppendVarint(b, int64(x))
	case int64:
		b = append(b, 'i')
		return binary.AppendVarint(b, x)
	case float32:
		b = append(b, 'd')
		return binary.BigEndian.AppendUint64(b, math.Float64bits(float64(x)))
	case float64:
		b = append(b, 'd')
		return binary.BigEndian.AppendUint64(b, math.Float64bits(x))
	case string:
		b = append(b, 's')
		return appendString(b, x)
	default:
		b = append(b, '?')
		return appendString(b, fmt.Sprint(x))
	}
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}
