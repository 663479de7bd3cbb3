// Package backend is the access facade every front end talks to: the
// terminal UI, the one-shot CLI commands, and anything else that wants
// snippets without caring where they live.
//
// MODES:
//
//	Local  → calls the snippet service in-process against a SQLite file
//	Remote → calls a sipp server's JSON API over HTTP with the API key
//
// The mode is chosen once, in Open, from whether a remote URL is
// configured. The Facade then holds one backend for its whole life and
// never re-checks configuration per call.
package backend

import (
	"context"
	"fmt"

	"github.com/sakif/sipp/internal/config"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/model"
)

// Mode names the resolved backend.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ListOptions narrows a List call.
type ListOptions struct {
	Filter string // case-insensitive substring of name or content
	Limit  int    // 0 = no limit
	Offset int

	// Refresh asks a remote server to bypass any intermediate cache. Local
	// calls always read the database and ignore it.
	Refresh bool
}

// backend is implemented by Local and Remote.
type backend interface {
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, error)
	Create(ctx context.Context, name, content, language string) (*model.Snippet, error)
	Get(ctx context.Context, shortID string) (*model.Snippet, error)
	Update(ctx context.Context, shortID string, patch model.SnippetPatch) (*model.Snippet, error)
	Delete(ctx context.Context, shortID string) (bool, error)
	Link(shortID string) string
	Close() error
}

var (
	_ backend = (*Local)(nil)
	_ backend = (*Remote)(nil)
)

// Facade is the one call surface for snippets.
//
// Errors unwrap to the apperror sentinels in both modes. Remote mode adds
// ErrRemoteUnavailable for transport failures (refused, timed out,
// cancelled) and ErrRemoteRejected for answers that map onto nothing more
// specific. Neither is ever reported as ErrNotFound.
type Facade struct {
	mode Mode
	b    backend
}

func newFacade(mode Mode, b backend) *Facade {
	return &Facade{mode: mode, b: b}
}

// Open resolves the mode from settings: a remote URL selects Remote, and
// otherwise the SQLite file at dbPath is opened for Local.
func Open(settings config.Resolved, dbPath string, log logger.Logger) (*Facade, error) {
	if settings.Remote() {
		r, err := NewRemote(RemoteOptions{
			BaseURL: settings.RemoteURL,
			APIKey:  settings.APIKey,
			Timeout: settings.Timeout,
		})
		if err != nil {
			return nil, err
		}
		log.Debug("using remote backend", logger.String("url", settings.RemoteURL))
		return newFacade(ModeRemote, r), nil
	}

	l, err := OpenLocal(dbPath, settings.MaxContentSize, log)
	if err != nil {
		return nil, fmt.Errorf("opening local store %s: %w", dbPath, err)
	}
	log.Debug("using local backend", logger.String("db", dbPath))
	return newFacade(ModeLocal, l), nil
}

// Mode reports which backend was selected.
func (f *Facade) Mode() Mode { return f.mode }

// List returns snippets newest first.
func (f *Facade) List(ctx context.Context, opts ListOptions) ([]model.Snippet, error) {
	return f.b.List(ctx, opts)
}

// Create stores a new snippet. language may be empty.
func (f *Facade) Create(ctx context.Context, name, content, language string) (*model.Snippet, error) {
	return f.b.Create(ctx, name, content, language)
}

// Get fetches one snippet by short identifier.
func (f *Facade) Get(ctx context.Context, shortID string) (*model.Snippet, error) {
	return f.b.Get(ctx, shortID)
}

// Update applies a partial update.
func (f *Facade) Update(ctx context.Context, shortID string, patch model.SnippetPatch) (*model.Snippet, error) {
	return f.b.Update(ctx, shortID, patch)
}

// Delete removes a snippet and reports whether one existed.
func (f *Facade) Delete(ctx context.Context, shortID string) (bool, error) {
	return f.b.Delete(ctx, shortID)
}

// Link is what to show a user for a snippet: the page URL in remote mode,
// the bare short identifier in local mode.
func (f *Facade) Link(shortID string) string { return f.b.Link(shortID) }

// Close releases the database in local mode.
func (f *Facade) Close() error { return f.b.Close() }
