package router

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"sessionetl/internal/record"
	"sessionetl/internal/schema"
)

// TestProperty_ProjectDeterministic checks that projecting the same record
// against the same table twice gives byte-identical rows, and that the
// playlist key is always (userId, sessionId, itemInSession).
func TestProperty_ProjectDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	tables := schema.Default().AllSchemas()

	properties.Property("projection is deterministic", prop.ForAll(
		func(artist, song string, session, item, user int) bool {
			rec, err := record.Normalize([]string{
				artist, "First", "F", strconv.Itoa(item), "Last", "100.25",
				"free", "Here", strconv.Itoa(session), song, strconv.Itoa(user),
			})
			if err != nil {
				return false
			}
			for _, tbl := range tables {
				a, errA := Project(rec, tbl)
				b, errB := Project(rec, tbl)
				if (errA == nil) != (errB == nil) {
					return false
				}
				if errA != nil {
					continue
				}
				if !bytes.Equal(a.Encode(), b.Encode()) {
					return false
				}
				if tbl.Name == schema.TableUserSessionPlaylist {
					if len(a.Key) != 3 || a.Key[0] != user || a.Key[1] != session || a.Key[2] != item {
						return false
					}
				}
			}
			return true
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.IntRange(0, 1<<20),
		gen.IntRange(0, 1<<12),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}
