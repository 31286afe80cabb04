// Package pagination implements keyset cursors over (timestamp, id) ordered lists.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor format")

// Cursor marks the last row of a page. The next page starts strictly after it.
type Cursor struct {
	LastID    string    `json:"id"`
	Timestamp time.Time `json:"ts"`
}

type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// Encode renders the cursor as opaque URL-safe text.
func (c Cursor) Encode() string {
	if c.LastID == "" {
		return ""
	}
	raw, _ := json.Marshal(Cursor{LastID: c.LastID, Timestamp: c.Timestamp.UTC()})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a cursor produced by Encode. The empty string is the
// first page and decodes to nil.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.LastID == "" || c.Timestamp.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// Page turns a fetch of limit+1 rows into one page. The extra row only
// signals that more exist and is dropped.
func Page[T any](rows []T, limit int, key func(T) Cursor) *PageResult[T] {
	page := &PageResult[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
		if limit > 0 {
			page.Cursor = key(page.Items[limit-1]).Encode()
		}
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}
