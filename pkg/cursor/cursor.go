// Package cursor implements opaque keyset pagination tokens.
//
// A token encodes the sort key of the last row of a page: a timestamp and a
// unique id. The next page is everything strictly after that pair in
// descending (timestamp, id) order, so rows inserted while a client pages
// never cause skips or duplicates.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Page size bounds.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ErrInvalidCursor is returned for tokens that do not decode to a key.
var ErrInvalidCursor = errors.New("invalid cursor")

// Key is the composite sort key of one row.
type Key struct {
	Time time.Time
	ID   string
}

// Encode returns the token for k: URL-safe base64 of the JSON pair
// [RFC 3339 timestamp, id].
func Encode(k Key) string {
	data, _ := json.Marshal([2]string{k.Time.UTC().Format(time.RFC3339Nano), k.ID})
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses a token produced by Encode. Malformed input, bad timestamps
// and empty components yield an error wrapping ErrInvalidCursor.
func Decode(token string) (Key, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Key{}, fmt.Errorf("%w: not base64", ErrInvalidCursor)
	}

	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		return Key{}, fmt.Errorf("%w: not a key pair", ErrInvalidCursor)
	}
	if pair[0] == "" || pair[1] == "" {
		return Key{}, fmt.Errorf("%w: empty component", ErrInvalidCursor)
	}

	t, err := time.Parse(time.RFC3339Nano, pair[0])
	if err != nil {
		return Key{}, fmt.Errorf("%w: bad timestamp", ErrInvalidCursor)
	}
	return Key{Time: t.UTC(), ID: pair[1]}, nil
}

// DecodeOptional decodes token, treating the empty string as "first page".
func DecodeOptional(token string) (*Key, error) {
	if token == "" {
		return nil, nil
	}
	k, err := Decode(token)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ClampPageSize returns n bounded to [1, MaxPageSize], or DefaultPageSize
// when n is not positive.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

// Page is one page of a keyset listing. NextCursor is empty on the last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Trim builds a page from rows fetched with limit+1. If the extra row is
// present it is dropped and the cursor points at the last kept row.
func Trim[T any](rows []T, limit int, key func(T) Key) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	if len(rows) <= limit {
		return Page[T]{Items: rows}
	}
	rows = rows[:limit]
	return Page[T]{Items: rows, NextCursor: Encode(key(rows[limit-1]))}
}
