// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — plain values with no behaviour
// beyond what the struct tags describe for serialization.
package model

import "time"

// Snippet represents a stored text snippet.
//
// The `json:"..."` tags define the HTTP API wire format. ID is the
// storage-internal row key and never leaves the process (json:"-");
// ShortID is the public identifier used in URLs and API paths.
//
// ShortID and Language are fixed at creation. Name and Content are the
// only fields an update may change.
type Snippet struct {
	ID        int64     `json:"-"`
	ShortID   string    `json:"shortId"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SnippetPatch is a partial update. A nil field means "leave unchanged",
// which is why these are pointers rather than plain strings: an empty
// string is a value the caller sent, nil is a value the caller omitted.
type SnippetPatch struct {
	Name    *string `json:"name,omitempty"`
	Content *string `json:"content,omitempty"`
}

// IsEmpty reports whether the patch carries no fields at all.
func (p SnippetPatch) IsEmpty() bool {
	return p.Name == nil && p.Content == nil
}
