// Package service contains the business rules of the snippet store.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler / Facade (front ends) → parse input, present output
//	Service (business layer)      → validates, allocates identifiers
//	Repository (data layer)       → reads/writes the database
//
// The service takes a repository.SnippetRepository interface, never a
// concrete *sqlite.DB, so tests pass a mock and the Redis cache can wrap
// the real repository without the service noticing.
//
// The service has no notion of authorization. The Authorization Gate sits
// in front of it at the HTTP boundary.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/sipp/internal/apperror"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/model"
	"github.com/sakif/sipp/internal/repository"
	"github.com/sakif/sipp/internal/shortid"
)

const (
	// DefaultMaxContentBytes bounds Content when Config leaves it unset.
	DefaultMaxContentBytes = 500000

	// MaxCreateAttempts bounds the generate-insert loop in Create. With
	// 62^10 identifiers a second attempt is already vanishingly rare.
	MaxCreateAttempts = 5
)

// Config holds the tunables of the snippet store.
type Config struct {
	MaxContentBytes int // 0 = DefaultMaxContentBytes
	IDLength        int // 0 = shortid.DefaultLength
}

// SnippetService is the snippet store: validation and identifier
// allocation in front of a repository.
type SnippetService struct {
	repo   repository.SnippetRepository
	logger logger.Logger
	cfg    Config

	// generate is shortid.Generate outside of tests.
	generate func(length int) (string, error)
}

// NewSnippetService creates a new SnippetService. Zero Config fields fall
// back to their defaults.
func NewSnippetService(repo repository.SnippetRepository, log logger.Logger, cfg Config) *SnippetService {
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = DefaultMaxContentBytes
	}
	if cfg.IDLength <= 0 {
		cfg.IDLength = shortid.DefaultLength
	}
	return &SnippetService{
		repo:     repo,
		logger:   log,
		cfg:      cfg,
		generate: shortid.Generate,
	}
}

// MaxContentBytes reports the effective content limit.
func (s *SnippetService) MaxContentBytes() int { return s.cfg.MaxContentBytes }

// IDLength reports the effective short identifier length.
func (s *SnippetService) IDLength() int { return s.cfg.IDLength }

// Create validates and saves a new snippet under a freshly generated
// short identifier.
//
// COLLISIONS:
// The repository rejects a duplicate short_id with ErrConflict. Create then
// draws a new identifier and tries again, at most MaxCreateAttempts times
// in total, before giving up with ErrStorageExhausted. Any other
// repository error ends the loop immediately.
func (s *SnippetService) Create(ctx context.Context, name, content, language string) (*model.Snippet, error) {
	name = strings.TrimSpace(name)
	if err := s.validateName(name); err != nil {
		return nil, err
	}
	if err := s.validateContent(content); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= MaxCreateAttempts; attempt++ {
		id, err := s.generate(s.cfg.IDLength)
		if err != nil {
			return nil, fmt.Errorf("generating short id: %w", err)
		}

		snippet := &model.Snippet{
			ShortID:  id,
			Name:     name,
			Content:  content,
			Language: strings.TrimSpace(language),
		}

		err = s.repo.Create(ctx, snippet)
		if err == nil {
			s.logger.Info("snippet created",
				logger.String("short_id", snippet.ShortID),
				logger.String("name", snippet.Name),
				logger.Int("bytes", len(snippet.Content)),
			)
			return snippet, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to create snippet",
				logger.String("name", name),
				logger.Error(err),
			)
			return nil, fmt.Errorf("creating snippet: %w", err)
		}

		s.logger.Warn("short id collision, regenerating",
			logger.String("short_id", id),
			logger.Int("attempt", attempt),
		)
	}

	s.logger.Error("short id space exhausted", logger.Int("attempts", MaxCreateAttempts))
	return nil, apperror.StorageExhausted(MaxCreateAttempts)
}

// GetByShortID retrieves a snippet. Returns apperror.ErrNotFound if no
// snippet has that identifier.
func (s *SnippetService) GetByShortID(ctx context.Context, shortID string) (*model.Snippet, error) {
	return s.repo.GetByShortID(ctx, shortID)
}

// List returns snippets newest first. A non-empty filter keeps only
// snippets whose name or content contains it, ignoring case.
func (s *SnippetService) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	snippets, err := s.repo.List(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list snippets", logger.Error(err))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Update applies a partial change to an existing snippet.
//
// STRATEGY: fetch, apply, save.
// The fetch confirms existence, so an empty patch still answers
// ErrNotFound for an unknown id and otherwise returns the record
// unchanged without writing.
func (s *SnippetService) Update(ctx context.Context, shortID string, patch model.SnippetPatch) (*model.Snippet, error) {
	snippet, err := s.repo.GetByShortID(ctx, shortID)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return snippet, nil
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := s.validateName(name); err != nil {
			return nil, err
		}
		snippet.Name = name
	}
	if patch.Content != nil {
		if err := s.validateContent(*patch.Content); err != nil {
			return nil, err
		}
		snippet.Content = *patch.Content
	}

	if err := s.repo.Update(ctx, snippet); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Deleted between the fetch and the write.
			return nil, err
		}
		s.logger.Error("failed to update snippet",
			logger.String("short_id", shortID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated",
		logger.String("short_id", snippet.ShortID),
		logger.String("name", snippet.Name),
	)
	return snippet, nil
}

// Delete removes a snippet. It reports whether anything was removed;
// deleting an unknown id is not an error.
func (s *SnippetService) Delete(ctx context.Context, shortID string) (bool, error) {
	removed, err := s.repo.Delete(ctx, shortID)
	if err != nil {
		s.logger.Error("failed to delete snippet",
			logger.String("short_id", shortID),
			logger.Error(err),
		)
		return false, fmt.Errorf("deleting snippet: %w", err)
	}

	if removed {
		s.logger.Info("snippet deleted", logger.String("short_id", shortID))
	}
	return removed, nil
}

func (s *SnippetService) validateName(name string) error {
	if name == "" {
		return apperror.ValidationFailed("name", "snippet name is required")
	}
	return nil
}

// validateContent measures bytes, not runes: the limit protects storage.
func (s *SnippetService) validateContent(content string) error {
	if content == "" {
		return apperror.ValidationFailed("content", "snippet content is required")
	}
	if len(content) > s.cfg.MaxContentBytes {
		return apperror.ValidationFailed("content",
			fmt.Sprintf("content is %d bytes, maximum is %d", len(content), s.cfg.MaxContentBytes))
	}
	return nil
}
