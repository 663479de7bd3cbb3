// Package handler contains the HTTP request handlers: the JSON API under
// /api/snippets and the browser-facing pages.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path values, query, body, headers)
// 2. Call the snippet store
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers hold no business rules. Validation lives in the service and
// authorization in the auth gate.
package handler

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/sipp/internal/apperror"
	"github.com/sakif/sipp/internal/auth"
	"github.com/sakif/sipp/internal/highlight"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/model"
	"github.com/sakif/sipp/internal/repository"
	"github.com/sakif/sipp/internal/shortid"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// recentOnIndex is how many snippets the index page lists.
const recentOnIndex = 10

// PageHandler serves the HTML pages and the raw text views.
//
// TEMPLATES:
// Each page is parsed together with base.html, which defines the layout
// and pulls in the page's {{define "content"}} block. Parsing happens once
// in NewPageHandler; requests only execute.
type PageHandler struct {
	store      Store
	gate       *auth.Gate
	rawClients []string
	pages      map[string]*template.Template
	logger     logger.Logger
}

// NewPageHandler parses the embedded templates. rawClients are lowercase
// user-agent fragments that get raw text on /s/{shortId}.
func NewPageHandler(store Store, gate *auth.Gate, rawClients []string, log logger.Logger) (*PageHandler, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"index", "snippet", "about", "error"} {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		pages[name] = tmpl
	}

	return &PageHandler{
		store:      store,
		gate:       gate,
		rawClients: rawClients,
		pages:      pages,
		logger:     log,
	}, nil
}

// Static serves /static/* from the embedded files.
func (h *PageHandler) Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The directory is embedded at compile time.
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

type indexData struct {
	Title    string
	Name     string
	Content  string
	Error    string
	NeedsKey bool
	MaxBytes int
	Recent   []model.Snippet
}

// HandleIndex serves the create form. Recent snippets are listed only when
// listing is not protected.
//
// HTTP: GET /
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderIndex(w, r, http.StatusOK, indexData{})
}

func (h *PageHandler) renderIndex(w http.ResponseWriter, r *http.Request, status int, data indexData) {
	data.Title = "new snippet"
	data.NeedsKey = h.gate.Protects(auth.OpCreate)
	data.MaxBytes = h.store.MaxContentBytes()

	if !h.gate.Protects(auth.OpList) {
		recent, err := h.store.List(r.Context(), repository.ListOptions{Limit: recentOnIndex})
		if err != nil {
			h.logger.Warn("index: listing recent snippets failed", logger.Error(err))
		}
		data.Recent = recent
	}
	h.render(w, status, "index", data)
}

// HandleAbout serves the about page.
//
// HTTP: GET /about
func (h *PageHandler) HandleAbout(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "about", map[string]interface{}{
		"Title":   "about",
		"BaseURL": baseURL(r),
	})
}

// HandleCreateForm handles the index page form.
//
// HTTP: POST /snippets (application/x-www-form-urlencoded)
//
// Browsers cannot add an X-API-Key header to a form post, so when create
// is protected the key may also arrive as the api_key form field. On
// success the browser is redirected to the new snippet (303 See Other,
// so the follow-up request is a GET).
func (h *PageHandler) HandleCreateForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.store.MaxContentBytes())*3+64*1024)
	if err := r.ParseForm(); err != nil {
		h.renderIndex(w, r, http.StatusBadRequest, indexData{Error: "could not read the form"})
		return
	}

	name := r.PostFormValue("name")
	content := r.PostFormValue("content")
	// Browsers submit textarea line breaks as CRLF.
	content = strings.ReplaceAll(content, "\r\n", "\n")

	key := r.Header.Get(auth.HeaderName)
	if key == "" {
		key = r.PostFormValue("api_key")
	}
	if err := h.gate.Authorize(auth.OpCreate, key); err != nil {
		h.renderIndex(w, r, http.StatusUnauthorized, indexData{Name: name, Content: content, Error: "a valid API key is required"})
		return
	}

	snippet, err := h.store.Create(r.Context(), name, content, "")
	if err != nil {
		status, _, appErr := classify(err)
		msg := "An internal error occurred"
		if appErr != nil {
			msg = appErr.Message
		} else {
			h.logger.Error("form create failed", logger.Error(err))
		}
		h.renderIndex(w, r, status, indexData{Name: name, Content: content, Error: msg})
		return
	}

	http.Redirect(w, r, "/s/"+snippet.ShortID, http.StatusSeeOther)
}

// HandleView shows one snippet: raw text for recognised command-line
// clients, a highlighted page for everything else.
//
// HTTP: GET /s/{shortId}
func (h *PageHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	snippet, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if IsRawClient(r.UserAgent(), h.rawClients) {
		writeRaw(w, snippet)
		return
	}

	lang := highlight.Language(snippet.Name, snippet.Language)
	isMarkdown := lang == "markdown"

	var body template.HTML
	var err error
	if isMarkdown {
		body, err = highlight.MarkdownHTML(snippet.Content)
	} else {
		body, err = highlight.HTML(snippet.Content, lang)
	}
	if err != nil {
		h.logger.Warn("highlighting failed, serving plain", logger.String("short_id", snippet.ShortID), logger.Error(err))
		body = template.HTML("<pre>" + template.HTMLEscapeString(snippet.Content) + "</pre>")
		isMarkdown = false
	}

	h.render(w, http.StatusOK, "snippet", map[string]interface{}{
		"Title":    snippet.Name,
		"Snippet":  snippet,
		"Language": lang,
		"Markdown": isMarkdown,
		"Body":     body,
	})
}

// HandleRaw always serves the content as plain text.
//
// HTTP: GET /s/{shortId}/raw
func (h *PageHandler) HandleRaw(w http.ResponseWriter, r *http.Request) {
	snippet, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeRaw(w, snippet)
}

// HandleHealth answers load balancer probes.
//
// HTTP: GET /healthz
func (h *PageHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound renders the HTML 404 page for unmatched routes.
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, http.StatusNotFound, "Nothing here.")
}

func (h *PageHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Snippet, bool) {
	id := chi.URLParam(r, "shortId")
	if !shortid.Valid(id, h.store.IDLength()) {
		h.renderError(w, http.StatusNotFound, "Snippet not found.")
		return nil, false
	}

	snippet, err := h.store.GetByShortID(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			h.renderError(w, http.StatusNotFound, "Snippet not found.")
		} else {
			h.logger.Error("page lookup failed", logger.String("short_id", id), logger.Error(err))
			h.renderError(w, http.StatusInternalServerError, "An internal error occurred.")
		}
		return nil, false
	}
	return snippet, true
}

func (h *PageHandler) renderError(w http.ResponseWriter, status int, message string) {
	h.render(w, status, "error", map[string]interface{}{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Message": message,
	})
}

func (h *PageHandler) render(w http.ResponseWriter, status int, page string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.pages[page].ExecuteTemplate(w, "base", data); err != nil {
		// Status is already sent; all we can do is log.
		h.logger.Error("failed to render template",
			logger.String("page", page),
			logger.Error(err),
		)
	}
}

func writeRaw(w http.ResponseWriter, snippet *model.Snippet) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(snippet.Content))
}

// IsRawClient reports whether userAgent contains one of the configured
// client fragments, ignoring case. An empty user agent is not a browser
// either, so it also gets raw text.
func IsRawClient(userAgent string, clients []string) bool {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return true
	}
	for _, c := range clients {
		if c != "" && strings.Contains(ua, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// baseURL reconstructs the externally visible origin for display.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
