package samgov

import (
	"encoding/base64"
	"encoding/json"
)

// CursorVersion is the current cursor schema version.
const CursorVersion = 1

// Cursor tracks pagination position across poll cycles.
type Cursor struct {
	// Version is the schema version for future migrations.
	Version int `json:"v"`

	// Offset is the next record offset to request.
	Offset int `json:"offset"`

	// PostedFrom is the posted-date floor carried between pages so a
	// multi-page sweep stays consistent.
	PostedFrom string `json:"posted_from,omitempty"`
}

// NewCursor creates a new empty cursor.
func NewCursor() *Cursor {
	return &Cursor{Version: CursorVersion}
}

// Encode serialises the cursor to a base64-encoded JSON string.
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor deserialises a cursor from a base64-encoded JSON string.
// An empty input yields a fresh cursor; a malformed one is an error.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return NewCursor(), nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, ErrInvalidCursor
	}
	return &cursor, nil
}
