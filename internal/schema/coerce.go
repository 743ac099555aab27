package schema

import (
	"fmt"
	"math"
	"strconv"
)

// Coerce maps a driver value onto the Go type t declares: int for TypeInt,
// float64 for TypeDouble, string for TypeText. NULL stays nil.
func (t ColumnType) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInt:
		switch x := v.(type) {
		case int:
			return x, nil
		case int16:
			return int(x), nil
		case int32:
			return int(x), nil
		case int64:
			return int(x), nil
		case float64:
			if x != math.Trunc(x) || x > math.MaxInt32 || x < math.MinInt32 {
				return nil, fmt.Errorf("%v is not a 32-bit integer", x)
			}
			return int(x), nil
		case []byte:
			return strconv.Atoi(string(x))
		case string:
			return strconv.Atoi(x)
		}
	case TypeDouble:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case []byte:
			return strconv.ParseFloat(string(x), 64)
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s column", v, t)
}

// CoercePredicate returns a copy of p with each value coerced to its
// column's type, so that values decoded from JSON or typed on a command line
// compare equal to stored ones.
func (t Table) CoercePredicate(p Predicate) (Predicate, error) {
	out := make(Predicate, len(p))
	for i, c := range p {
		col, ok := t.Column(c.Column)
		if !ok {
			return nil, fmt.Errorf("schema: table %s has no column %s", t.Name, c.Column)
		}
		v, err := col.Type.Coerce(c.Value)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", t.Name, c.Column, err)
		}
		out[i] = Condition{Column: c.Column, Value: v}
	}
	return out, nil
}
