package memory

import (
	"fmt"
	"strings"

	"sessionetl/internal/schema"
)

// compareClustering orders two clustering tuples, honoring each column's
// direction.
func compareClustering(cc []schema.ClusteringColumn, a, b []any) int {
	for i, c := range cc {
		n := compareValues(a[i], b[i])
		if n == 0 {
			continue
		}
		if c.Order == schema.Desc {
			return -n
		}
		return n
	}
	return 0
}

// compareValues orders nil < numbers < strings; numbers compare by value
// regardless of their integer or float representation.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(a.(string), b.(string))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int, int32, int64, float32, float64:
		return 1
	case string:
		return 2
	}
	return 3
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}
