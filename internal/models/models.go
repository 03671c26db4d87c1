// Package models provides the entity and payload shapes exchanged with the
// content service. Entities are kept as loose JSON objects: the feed engine
// only relies on the id and a handful of counters, and everything else is
// passed through untouched to the renderer.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Well-known entity fields.
const (
	FieldID    = "id"
	FieldTitle = "title"
	FieldLikes = "likes"
	FieldViews = "views"
	FieldLiked = "liked"
)

// Entity is a single content item (post, author card, clan card).
// The only required field is a non-empty string "id".
type Entity map[string]any

// ID returns the entity id, or "" when it is missing or not a string.
func (e Entity) ID() string {
	id, _ := e[FieldID].(string)
	return id
}

// Valid reports whether the entity can take part in a merge.
func (e Entity) Valid() bool {
	return e.ID() != ""
}

// String returns a string field, or "".
func (e Entity) String(field string) string {
	s, _ := e[field].(string)
	return s
}

// Int returns a numeric field truncated to int, or 0.
func (e Entity) Int(field string) int {
	switch v := e[field].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// Bool returns a boolean field, or false.
func (e Entity) Bool(field string) bool {
	b, _ := e[field].(bool)
	return b
}

// With returns a shallow copy of the entity with field set to value.
// The receiver is never modified, so collections built from it stay pure.
func (e Entity) With(field string, value any) Entity {
	out := make(Entity, len(e)+1)
	maps.Copy(out, e)
	out[field] = value
	return out
}

// Pagination is the explicit continuation hint some endpoints return.
type Pagination struct {
	HasNextPage bool `json:"hasNextPage"`
}

// Payload is the body of a paginated list or search endpoint.
type Payload struct {
	Items      []Entity    `json:"items"`
	Total      *int        `json:"total,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Page is one fetched page of a feed.
type Page struct {
	Items []Entity
	Index int // 1-based

	// HasNext is set when the server told us explicitly whether more
	// pages exist. Nil means the caller has to fall back to guessing.
	HasNext *bool
	Total   *int
}

// DecodePage parses a list or search payload into a Page.
// An undecodable body is an error; individual malformed entities are not.
func DecodePage(data []byte, index int) (Page, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Page{}, fmt.Errorf("decode page %d: %w", index, err)
	}
	page := Page{Items: p.Items, Index: index, Total: p.Total}
	if p.Pagination != nil {
		next := p.Pagination.HasNextPage
		page.HasNext = &next
	}
	return page, nil
}
