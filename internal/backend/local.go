package backend

import (
	"context"
	"fmt"

	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/model"
	"github.com/sakif/sipp/internal/repository"
	"github.com/sakif/sipp/internal/repository/sqlite"
	"github.com/sakif/sipp/internal/service"
)

// Local calls the snippet service in the same process. No credential is
// involved: whoever can open the file can already read it.
type Local struct {
	store *service.SnippetService
	db    *sqlite.DB
}

// OpenLocal opens (creating if needed) the SQLite file at dbPath. Content
// over maxContentBytes is rejected; 0 keeps the service default.
func OpenLocal(dbPath string, maxContentBytes int, log logger.Logger) (*Local, error) {
	db, err := sqlite.New(dbPath)
	if err != nil {
		return nil, err
	}
	return &Local{
		store: service.NewSnippetService(db, log, service.Config{MaxContentBytes: maxContentBytes}),
		db:    db,
	}, nil
}

func (l *Local) List(ctx context.Context, opts ListOptions) ([]model.Snippet, error) {
	return l.store.List(ctx, repository.ListOptions{
		Filter: opts.Filter,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

func (l *Local) Create(ctx context.Context, name, content, language string) (*model.Snippet, error) {
	return l.store.Create(ctx, name, content, language)
}

func (l *Local) Get(ctx context.Context, shortID string) (*model.Snippet, error) {
	return l.store.GetByShortID(ctx, shortID)
}

func (l *Local) Update(ctx context.Context, shortID string, patch model.SnippetPatch) (*model.Snippet, error) {
	return l.store.Update(ctx, shortID, patch)
}

func (l *Local) Delete(ctx context.Context, shortID string) (bool, error) {
	return l.store.Delete(ctx, shortID)
}

func (l *Local) Link(shortID string) string { return shortID }

func (l *Local) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("closing local store: %w", err)
	}
	return nil
}
