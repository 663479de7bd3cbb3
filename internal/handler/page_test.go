package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/sipp/internal/auth"
	"github.com/sakif/sipp/internal/handler"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/service"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/128.0"

func pageRouter(t *testing.T, store handler.Store, gate *auth.Gate) http.Handler {
	t.Helper()
	h, err := handler.NewPageHandler(store, gate, []string{"curl", "wget", "httpie"}, logger.NewNop())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.NotFound(h.NotFound)
	r.Get("/", h.HandleIndex)
	r.Get("/about", h.HandleAbout)
	r.Get("/healthz", h.HandleHealth)
	r.Handle("/static/*", h.Static())
	r.Post("/snippets", h.HandleCreateForm)
	r.Get("/s/{shortId}", h.HandleView)
	r.Get("/s/{shortId}/raw", h.HandleRaw)
	return r
}

func openGate(t *testing.T) *auth.Gate {
	t.Helper()
	g, err := auth.NewGate("", nil)
	require.NoError(t, err)
	return g
}

func get(h http.Handler, target, ua string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("User-Agent", ua)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func postForm(h http.Handler, form url.Values, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/snippets", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func seed(t *testing.T, store *service.SnippetService, name, content string) string {
	t.Helper()
	s, err := store.Create(context.Background(), name, content, "")
	require.NoError(t, err)
	return s.ShortID
}

func TestPageHandler_ViewRawForCommandLineClients(t *testing.T) {
	store := newTestStore(t)
	h := pageRouter(t, store, openGate(t))
	id := seed(t, store, "hello.go", "package main\n\nfunc main() {}\n")

	for _, ua := range []string{"curl/8.5.0", "Wget/1.21", "HTTPie/3.2.2", ""} {
		t.Run("ua="+ua, func(t *testing.T) {
			rr := get(h, "/s/"+id, ua)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "package main\n\nfunc main() {}\n", rr.Body.String())
		})
	}
}

func TestPageHandler_ViewHTMLForBrowsers(t *testing.T) {
	store := newTestStore(t)
	h := pageRouter(t, store, openGate(t))
	id := seed(t, store, "hello.go", "package main\n")

	rr := get(h, "/s/"+id, browserUA)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.Contains(t, body, "hello.go")
	assert.Contains(t, body, `href="/s/`+id+`/raw"`)
	assert.Contains(t, body, "<span")
}

func TestPageHandler_ViewMarkdown(t *testing.T) {
	store := newTestStore(t)
	h := pageRouter(t, store, openGate(t))
	id := seed(t, store, "README.md", "# Title\n\n<script>alert(1)</script>\n")

	rr := get(h, "/s/"+id, browserUA)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "<h1>Title</h1>")
	assert.Contains(t, body, `class="markdown"`)
	assert.NotContains(t, body, "<script>alert(1)</script>")
}

func TestPageHandler_RawAlwaysText(t *testing.T) {
	store := newTestStore(t)
	h := pageRouter(t, store, openGate(t))
	id := seed(t, store, "page.html", "<b>bold</b>")

	rr := get(h, "/s/"+id+"/raw", browserUA)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "<b>bold</b>", rr.Body.String())
}

func TestPageHandler_ViewNotFound(t *testing.T) {
	store := newTestStore(t)
	h := pageRouter(t, store, openGate(t))

	for _, target := range []string{"/s/AAAAAAAAAA", "/s/bad!", "/s/AAAAAAAAAA/raw", "/nowhere"} {
		t.Run(target, func(t *testing.T) {
			rr := get(h, target, browserUA)
			assert.Equal(t, http.StatusNotFound, rr.Code)
			assert.Contains(t, rr.Body.String(), "404")
		})
	}
}

func TestPageHandler_CreateForm(t *testing.T) {
	store := newTestStore(t)
	h := pageRouter(t, store, openGate(t))

	rr := postForm(h, url.Values{"name": {"notes.txt"}, "content": {"line one\r\nline two"}}, nil)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc := rr.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/s/"), "location %q", loc)

	s, err := store.GetByShortID(context.Background(), strings.TrimPrefix(loc, "/s/"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", s.Name)
	assert.Equal(t, "line one\nline two", s.Content)
}

func TestPageHandler_CreateFormValidation(t *testing.T) {
	store := newTestStore(t)
	h := pageRouter(t, store, openGate(t))

	rr := postForm(h, url.Values{"name": {"notes.txt"}, "content": {""}}, nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `class="error"`)
	assert.Contains(t, rr.Body.String(), `value="notes.txt"`)
}

func TestPageHandler_CreateFormProtected(t *testing.T) {
	store := newTestStore(t)
	gate, err := auth.NewGate("s3cret", []string{"create"})
	require.NoError(t, err)
	h := pageRouter(t, store, gate)
	form := url.Values{"name": {"a.txt"}, "content": {"hi"}}

	t.Run("no key", func(t *testing.T) {
		rr := postForm(h, form, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "a valid API key is required")
	})

	t.Run("wrong key", func(t *testing.T) {
		f := url.Values{"name": {"a.txt"}, "content": {"hi"}, "api_key": {"nope"}}
		rr := postForm(h, f, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("key in form", func(t *testing.T) {
		f := url.Values{"name": {"a.txt"}, "content": {"hi"}, "api_key": {"s3cret"}}
		rr := postForm(h, f, nil)
		assert.Equal(t, http.StatusSeeOther, rr.Code)
	})

	t.Run("key in header", func(t *testing.T) {
		rr := postForm(h, form, http.Header{auth.HeaderName: {"s3cret"}})
		assert.Equal(t, http.StatusSeeOther, rr.Code)
	})
}

func TestPageHandler_IndexRecent(t *testing.T) {
	t.Run("listing open", func(t *testing.T) {
		store := newTestStore(t)
		seed(t, store, "visible.txt", "x")
		h := pageRouter(t, store, openGate(t))

		rr := get(h, "/", browserUA)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "visible.txt")
		assert.NotContains(t, rr.Body.String(), `name="api_key"`)
	})

	t.Run("listing protected", func(t *testing.T) {
		store := newTestStore(t)
		seed(t, store, "hidden.txt", "x")
		gate, err := auth.NewGate("s3cret", []string{"list", "create"})
		require.NoError(t, err)
		h := pageRouter(t, store, gate)

		rr := get(h, "/", browserUA)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "hidden.txt")
		assert.Contains(t, rr.Body.String(), `name="api_key"`)
	})
}

func TestPageHandler_StaticAndHealth(t *testing.T) {
	h := pageRouter(t, newTestStore(t), openGate(t))

	rr := get(h, "/static/style.css", browserUA)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/css")

	rr = get(h, "/healthz", "kube-probe/1.29")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = get(h, "/about", browserUA)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http://example.com/api/snippets")
}

func TestIsRawClient(t *testing.T) {
	clients := []string{"curl", "wget", "powershell"}

	tests := []struct {
		ua   string
		want bool
	}{
		{"curl/8.5.0", true},
		{"Wget/1.21.4", true},
		{"Mozilla/5.0 (Windows NT; Windows NT 10.0) WindowsPowerShell/5.1", true},
		{"", true},
		{"   ", true},
		{browserUA, false},
		{"Go-http-client/1.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ua, func(t *testing.T) {
			assert.Equal(t, tt.want, handler.IsRawClient(tt.ua, clients))
		})
	}
}
