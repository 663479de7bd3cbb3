// Package repository defines the persistence contract for snippets.
//
// Implementations own the stored representation. Callers only ever get
// copies of field values back; nothing returned here aliases storage
// internals.
package repository

import (
	"context"

	"github.com/sakif/sipp/internal/model"
)

// ListOptions narrows a List call. The zero value lists everything,
// newest first.
type ListOptions struct {
	Filter string // case-insensitive substring of name or content
	Limit  int    // 0 = no limit
	Offset int
}

// SnippetRepository is the storage half of the snippet store.
//
// Create must reject a duplicate ShortID with an error wrapping
// apperror.ErrConflict rather than overwrite; the service regenerates the
// identifier and retries. GetByShortID and Update return
// apperror.ErrNotFound for an unknown identifier. Delete reports whether a
// row was removed and is not an error when nothing matched.
type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByShortID(ctx context.Context, shortID string) (*model.Snippet, error)
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, shortID string) (bool, error)
}
