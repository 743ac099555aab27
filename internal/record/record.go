// Package record defines the normalized listening event that flows through
// the load pipeline, and the normalizer that builds it from a raw source row.
package record

// Source field names, in the fixed order of the flattened record file.
const (
	FieldArtist        = "artist"
	FieldFirstName     = "firstName"
	FieldGender        = "gender"
	FieldItemInSession = "itemInSession"
	FieldLastName      = "lastName"
	FieldLength        = "length"
	FieldLevel         = "level"
	FieldLocation      = "location"
	FieldSessionID     = "sessionId"
	FieldSong          = "song"
	FieldUserID        = "userId"
)

// Columns is the source column order. The upstream merge format fixes it.
var Columns = []string{
	FieldArtist,
	FieldFirstName,
	FieldGender,
	FieldItemInSession,
	FieldLastName,
	FieldLength,
	FieldLevel,
	FieldLocation,
	FieldSessionID,
	FieldSong,
	FieldUserID,
}

// Record is one listening event. Song and Length are optional; a valid
// record always has a non-empty Artist.
type Record struct {
	Artist        string
	Song          *string
	Length        *float64
	SessionID     int
	ItemInSession int
	UserID        int
	FirstName     string
	LastName      string

	// Passthrough fields, unused by the current queries.
	Gender   string
	Level    string
	Location string
}

// Field returns the value bound to a source field name. ok is false when the
// name is unknown or the optional value is absent.
func (r Record) Field(name string) (v any, ok bool) {
	switch name {
	case FieldArtist:
		return r.Artist, true
	case FieldSong:
		if r.Song == nil {
			return nil, false
		}
		return *r.Song, true
	case FieldLength:
		if r.Length == nil {
			return nil, false
		}
		return *r.Length, true
	case FieldSessionID:
		return r.SessionID, true
	case FieldItemInSession:
		return r.ItemInSession, true
	case FieldUserID:
		return r.UserID, true
	case FieldFirstName:
		return r.FirstName, true
	case FieldLastName:
		return r.LastName, true
	case FieldGender:
		return r.Gender, true
	case FieldLevel:
		return r.Level, true
	case FieldLocation:
		return r.Location, true
	}
	return nil, false
}

// Parsed is one element of the record stream: either a normalized Record or
// the reason the source line was rejected.
type Parsed struct {
	Line   int
	Record Record
	Err    error
}
