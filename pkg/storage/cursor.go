package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor is an opaque pagination token for model listings. It records the
// last model identity of the previous page.
type Cursor struct {
	LastModel string `json:"m"`
}

// EncodeCursor encodes a cursor to a base64 URL-safe string.
// Returns empty string if cursor is nil or empty.
func EncodeCursor(c *Cursor) string {
	if c == nil || c.LastModel == "" {
		return ""
	}

	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}

	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes a base64-encoded cursor string.
// Returns nil and no error for an empty cursor (first page).
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}

	if c.LastModel == "" {
		return nil, fmt.Errorf("invalid cursor: missing model")
	}

	return &c, nil
}
