package schema

import (
	"fmt"

	"sessionetl/internal/record"
)

// Query ids.
const (
	QuerySessionItem         = "session_item"
	QueryUserSessionPlaylist = "user_session_playlist"
	QueryListenersBySong     = "listeners_by_song"
)

// Table names.
const (
	TableSessionItemLookup   = "session_item_lookup"
	TableUserSessionPlaylist = "user_session_playlist"
	TableListenersBySong     = "listeners_by_song"
)

var (
	colSessionID     = Column{Name: "session_id", Field: record.FieldSessionID, Type: TypeInt}
	colItemInSession = Column{Name: "item_in_session", Field: record.FieldItemInSession, Type: TypeInt}
	colUserID        = Column{Name: "user_id", Field: record.FieldUserID, Type: TypeInt}
	colArtist        = Column{Name: "artist", Field: record.FieldArtist, Type: TypeText}
	colSong          = Column{Name: "song", Field: record.FieldSong, Type: TypeText}
	colLength        = Column{Name: "length", Field: record.FieldLength, Type: TypeDouble}
	colFirstName     = Column{Name: "first_name", Field: record.FieldFirstName, Type: TypeText}
	colLastName      = Column{Name: "last_name", Field: record.FieldLastName, Type: TypeText}
)

var defaultTables = []Table{
	{
		Name:         TableSessionItemLookup,
		Columns:      []Column{colSessionID, colItemInSession, colArtist, colSong, colLength},
		PartitionKey: []string{"session_id", "item_in_session"},
		Serves:       QuerySessionItem,
	},
	{
		Name:         TableUserSessionPlaylist,
		Columns:      []Column{colUserID, colSessionID, colItemInSession, colArtist, colSong, colFirstName, colLastName},
		PartitionKey: []string{"user_id", "session_id"},
		Clustering:   []ClusteringColumn{{Name: "item_in_session", Order: Asc}},
		Serves:       QueryUserSessionPlaylist,
	},
	{
		Name:         TableListenersBySong,
		Columns:      []Column{colSong, colUserID, colFirstName, colLastName},
		PartitionKey: []string{"song"},
		Clustering:   []ClusteringColumn{{Name: "user_id", Order: Asc}},
		Serves:       QueryListenersBySong,
	},
}

var defaultQueries = []Query{
	{
		ID:          QuerySessionItem,
		Table:       TableSessionItemLookup,
		Description: "artist, song title and song length heard at a given sessionId and itemInSession",
		Select:      []string{"artist", "song", "length"},
		Filter:      []string{"session_id", "item_in_session"},
		Defaults:    []any{338, 4},
	},
	{
		ID:          QueryUserSessionPlaylist,
		Table:       TableUserSessionPlaylist,
		Description: "artist, song (in play order) and user name for a given userId and sessionId",
		Select:      []string{"item_in_session", "artist", "song", "first_name", "last_name"},
		Filter:      []string{"user_id", "session_id"},
		Defaults:    []any{10, 182},
	},
	{
		ID:          QueryListenersBySong,
		Table:       TableListenersBySong,
		Description: "every user (first and last name) who listened to a given song",
		Select:      []string{"user_id", "first_name", "last_name"},
		Filter:      []string{"song"},
		Defaults:    []any{"All Hands Against His Own"},
	},
}

// Registry is an immutable set of tables and the queries they serve.
// Accessors return copies.
type Registry struct {
	tables  []Table
	queries []Query
}

// Default returns the registry for the three listening-session tables.
func Default() *Registry {
	r, err := NewRegistry(defaultTables, defaultQueries)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistry validates tables and queries and returns a Registry. Every
// query must target a registered table whose key structure matches the
// query's filter.
func NewRegistry(tables []Table, queries []Query) (*Registry, error) {
	byName := make(map[string]Table, len(tables))
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[t.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate table %s", t.Name)
		}
		byName[t.Name] = t
	}

	ids := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		if _, dup := ids[q.ID]; dup {
			return nil, fmt.Errorf("schema: duplicate query %s", q.ID)
		}
		ids[q.ID] = struct{}{}

		t, ok := byName[q.Table]
		if !ok {
			return nil, fmt.Errorf("schema: query %s: unknown table %s", q.ID, q.Table)
		}
		if len(q.Select) == 0 {
			return nil, fmt.Errorf("schema: query %s: empty select list", q.ID)
		}
		for _, c := range q.Select {
			if _, ok := t.Column(c); !ok {
				return nil, fmt.Errorf("schema: query %s: select column %s not in table %s", q.ID, c, t.Name)
			}
		}
		p, err := q.Predicate()
		if err != nil {
			return nil, err
		}
		if err := t.CheckPredicate(p); err != nil {
			return nil, fmt.Errorf("schema: query %s: %w", q.ID, err)
		}
	}

	for _, t := range tables {
		if t.Serves == "" {
			continue
		}
		if _, ok := ids[t.Serves]; !ok {
			return nil, fmt.Errorf("schema: table %s serves unknown query %s", t.Name, t.Serves)
		}
	}

	return &Registry{
		tables:  cloneTables(tables),
		queries: cloneQueries(queries),
	}, nil
}

// AllSchemas returns every table in registration order.
func (r *Registry) AllSchemas() []Table { return cloneTables(r.tables) }

// Table returns the table with the given name.
func (r *Registry) Table(name string) (Table, bool) {
	for _, t := range r.tables {
		if t.Name == name {
			return cloneTable(t), true
		}
	}
	return Table{}, false
}

// Queries returns every query in registration order.
func (r *Registry) Queries() []Query { return cloneQueries(r.queries) }

// Query returns the query with the given id.
func (r *Registry) Query(id string) (Query, bool) {
	for _, q := range r.queries {
		if q.ID == id {
			return cloneQuery(q), true
		}
	}
	return Query{}, false
}

func cloneTables(in []Table) []Table {
	out := make([]Table, len(in))
	for i, t := range in {
		out[i] = cloneTable(t)
	}
	return out
}

func cloneTable(t Table) Table {
	t.Columns = append([]Column(nil), t.Columns...)
	t.PartitionKey = append([]string(nil), t.PartitionKey...)
	t.Clustering = append([]ClusteringColumn(nil), t.Clustering...)
	return t
}

func cloneQueries(in []Query) []Query {
	out := make([]Query, len(in))
	for i, q := range in {
		out[i] = cloneQuery(q)
	}
	return out
}

func cloneQuery(q Query) Query {
	q.Select = append([]string(nil), q.Select...)
	q.Filter = append([]string(nil), q.Filter...)
	q.Defaults = append([]any(nil), q.Defaults...)
	return q
}
