package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/sipp/internal/apperror"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/model"
	"github.com/sakif/sipp/internal/repository"
	"github.com/sakif/sipp/internal/shortid"
)

// Store is what the handlers need from the snippet store.
// *service.SnippetService satisfies it.
type Store interface {
	Create(ctx context.Context, name, content, language string) (*model.Snippet, error)
	GetByShortID(ctx context.Context, shortID string) (*model.Snippet, error)
	List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error)
	Update(ctx context.Context, shortID string, patch model.SnippetPatch) (*model.Snippet, error)
	Delete(ctx context.Context, shortID string) (bool, error)
	MaxContentBytes() int
	IDLength() int
}

// CreateRequest is the body of POST /api/snippets.
type CreateRequest struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// DeleteResponse is the body of a successful DELETE.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// SnippetHandler serves the JSON API under /api/snippets.
//
// Authorization is not checked here. The router wraps each route in
// auth.Require for its operation, so by the time a handler runs the
// caller is allowed.
type SnippetHandler struct {
	store  Store
	logger logger.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(store Store, log logger.Logger) *SnippetHandler {
	return &SnippetHandler{store: store, logger: log}
}

// HandleList returns snippets newest first.
//
// HTTP: GET /api/snippets?q=<substring>&limit=<n>&offset=<n>
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := queryInt(query.Get("limit"), "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	offset, err := queryInt(query.Get("offset"), "offset")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	snippets, err := h.store.List(r.Context(), repository.ListOptions{
		Filter: query.Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, snippets)
}

// HandleCreate saves a new snippet.
//
// HTTP: POST /api/snippets
// REQUEST BODY: {"name": "a.txt", "content": "hello"}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	snippet, err := h.store.Create(r.Context(), req.Name, req.Content, req.Language)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/snippets/"+snippet.ShortID)
	writeJSON(w, h.logger, http.StatusCreated, snippet)
}

// HandleGet returns one snippet.
//
// HTTP: GET /api/snippets/{shortId}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.shortID(w, r)
	if !ok {
		return
	}

	snippet, err := h.store.GetByShortID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, snippet)
}

// HandleUpdate applies a partial update. Omitted fields are left as they
// are; an empty object returns the snippet unchanged.
//
// HTTP: PUT /api/snippets/{shortId}
// REQUEST BODY: {"name"?: "...", "content"?: "..."}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.shortID(w, r)
	if !ok {
		return
	}

	var patch model.SnippetPatch
	if err := h.decode(w, r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}

	snippet, err := h.store.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, snippet)
}

// HandleDelete removes a snippet. An unknown id is a 404 here; the store
// itself treats it as "nothing removed".
//
// HTTP: DELETE /api/snippets/{shortId}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.shortID(w, r)
	if !ok {
		return
	}

	removed, err := h.store.Delete(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !removed {
		writeError(w, h.logger, apperror.NotFound("snippet", id))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, DeleteResponse{Deleted: true})
}

// shortID reads the {shortId} path value. A malformed identifier cannot
// exist, so it is answered with 404 straight away.
func (h *SnippetHandler) shortID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "shortId")
	if !shortid.Valid(id, h.store.IDLength()) {
		writeError(w, h.logger, apperror.NotFound("snippet", id))
		return "", false
	}
	return id, true
}

// decode reads a JSON body into dst.
//
// BODY LIMIT:
// JSON escaping can grow content up to six times (\u00XX), so the reader
// allows that much plus slack. Content that decodes but is still over the
// limit is rejected by the store's validation, with a precise message.
func (h *SnippetHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	limit := int64(h.store.MaxContentBytes())*6 + 64*1024
	body := http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("content", "request body too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		default:
			return apperror.ValidationFailed("body", "invalid JSON body")
		}
	}
	return nil
}

func queryInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(field, field+" must be a non-negative integer")
	}
	return n, nil
}
