package backend_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/sipp/internal/apperror"
	"github.com/sakif/sipp/internal/auth"
	"github.com/sakif/sipp/internal/backend"
	"github.com/sakif/sipp/internal/config"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/model"
	"github.com/sakif/sipp/internal/repository/sqlite"
	"github.com/sakif/sipp/internal/server"
	"github.com/sakif/sipp/internal/service"
)

const apiKey = "remote-secret"

// headerLog records the headers of every request that reaches the server.
type headerLog struct {
	mu      sync.Mutex
	headers []http.Header
}

func (l *headerLog) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.mu.Lock()
		l.headers = append(l.headers, r.Header.Clone())
		l.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (l *headerLog) last() http.Header {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.headers[len(l.headers)-1]
}

// newRemoteServer runs the real router over in-memory SQLite.
func newRemoteServer(t *testing.T, secret string, protected []string) (*httptest.Server, *headerLog) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gate, err := auth.NewGate(secret, protected)
	require.NoError(t, err)

	store := service.NewSnippetService(db, logger.NewNop(), service.Config{MaxContentBytes: 64})
	router, err := server.NewRouter(store, gate, config.DefaultRawClients, logger.NewNop())
	require.NoError(t, err)

	log := &headerLog{}
	srv := httptest.NewServer(log.wrap(router))
	t.Cleanup(srv.Close)
	return srv, log
}

func openRemote(t *testing.T, url, key string, timeout time.Duration) *backend.Facade {
	t.Helper()
	f, err := backend.Open(config.Resolved{RemoteURL: url, APIKey: key, Timeout: timeout}, "", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	require.Equal(t, backend.ModeRemote, f.Mode())
	return f
}

func openLocal(t *testing.T) *backend.Facade {
	t.Helper()
	f, err := backend.Open(config.Resolved{}, filepath.Join(t.TempDir(), "sipp.sqlite"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	require.Equal(t, backend.ModeLocal, f.Mode())
	return f
}

// exerciseLifecycle runs the same scenario against either mode.
func exerciseLifecycle(t *testing.T, f *backend.Facade) {
	ctx := context.Background()

	created, err := f.Create(ctx, "a.txt", "hello", "")
	require.NoError(t, err)
	assert.Len(t, created.ShortID, 10)

	got, err := f.Get(ctx, created.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Name)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, created.ShortID, got.ShortID)

	_, err = f.Create(ctx, "b.md", "# notes", "")
	require.NoError(t, err)

	list, err := f.List(ctx, backend.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b.md", list[0].Name)

	list, err = f.List(ctx, backend.ListOptions{Filter: "HELLO"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ShortID, list[0].ShortID)

	list, err = f.List(ctx, backend.ListOptions{Filter: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	name := "renamed.txt"
	updated, err := f.Update(ctx, created.ShortID, model.SnippetPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed.txt", updated.Name)
	assert.Equal(t, "hello", updated.Content)

	removed, err := f.Delete(ctx, created.ShortID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = f.Get(ctx, created.ShortID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	removed, err = f.Delete(ctx, created.ShortID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.Create(ctx, "x", "", "")
	assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
}

func TestLocal_Lifecycle(t *testing.T) {
	f := openLocal(t)
	exerciseLifecycle(t, f)
	assert.Equal(t, "AbCdEfGhIj", f.Link("AbCdEfGhIj"))
}

func TestRemote_Lifecycle(t *testing.T) {
	srv, _ := newRemoteServer(t, "", nil)
	f := openRemote(t, srv.URL+"/", "", time.Second)
	exerciseLifecycle(t, f)
	assert.Equal(t, srv.URL+"/s/AbCdEfGhIj", f.Link("AbCdEfGhIj"))
}

func TestRemote_Headers(t *testing.T) {
	srv, log := newRemoteServer(t, apiKey, []string{"all"})
	f := openRemote(t, srv.URL, apiKey, time.Second)
	ctx := context.Background()

	_, err := f.List(ctx, backend.ListOptions{Refresh: true})
	require.NoError(t, err)
	first := log.last()
	assert.Equal(t, apiKey, first.Get(auth.HeaderName))
	assert.Equal(t, "no-cache", first.Get("Cache-Control"))
	assert.NotEmpty(t, first.Get("X-Request-Id"))

	_, err = f.List(ctx, backend.ListOptions{})
	require.NoError(t, err)
	second := log.last()
	assert.Empty(t, second.Get("Cache-Control"))
	assert.NotEqual(t, first.Get("X-Request-Id"), second.Get("X-Request-Id"))
}

func TestRemote_ValidationKeepsServerMessage(t *testing.T) {
	srv, _ := newRemoteServer(t, "", nil)
	f := openRemote(t, srv.URL, "", time.Second)

	_, err := f.Create(context.Background(), "big.txt", strings.Repeat("x", 65), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "content", appErr.Field)
	assert.Equal(t, "content is 65 bytes, maximum is 64", appErr.Message)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
}

func TestRemote_Unauthorized(t *testing.T) {
	srv, _ := newRemoteServer(t, apiKey, []string{"list", "delete"})
	ctx := context.Background()

	wrong := openRemote(t, srv.URL, "guess", time.Second)
	_, err := wrong.List(ctx, backend.ListOptions{})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized), "got %v", err)

	// Unauthorized stays distinct from not found, even for unknown ids.
	_, err = wrong.Delete(ctx, "AAAAAAAAAA")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized), "got %v", err)
	assert.False(t, errors.Is(err, apperror.ErrNotFound))

	right := openRemote(t, srv.URL, apiKey, time.Second)
	_, err = right.List(ctx, backend.ListOptions{})
	assert.NoError(t, err)
}

func TestRemote_ServerErrorIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"storage_exhausted","message":"could not allocate a unique short id after 5 attempts"}`))
	}))
	defer srv.Close()
	f := openRemote(t, srv.URL, "", time.Second)

	_, err := f.Create(context.Background(), "a", "b", "")

	assert.True(t, errors.Is(err, apperror.ErrRemoteRejected), "got %v", err)
	assert.False(t, errors.Is(err, apperror.ErrNotFound))
	assert.Contains(t, err.Error(), "503")
}

func TestRemote_GarbageBodyIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>captive portal</html>"))
	}))
	defer srv.Close()
	f := openRemote(t, srv.URL, "", time.Second)

	_, err := f.Get(context.Background(), "AAAAAAAAAA")

	assert.True(t, errors.Is(err, apperror.ErrRemoteRejected), "got %v", err)
}

func TestRemote_ForeignNotFoundIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html>nginx 404</html>"))
	}))
	defer srv.Close()
	f := openRemote(t, srv.URL, "", time.Second)
	ctx := context.Background()

	_, err := f.List(ctx, backend.ListOptions{})
	assert.True(t, errors.Is(err, apperror.ErrRemoteRejected), "got %v", err)
	assert.False(t, errors.Is(err, apperror.ErrNotFound))
	assert.Contains(t, err.Error(), "404")

	_, err = f.Get(ctx, "AAAAAAAAAA")
	assert.True(t, errors.Is(err, apperror.ErrRemoteRejected), "got %v", err)
	assert.False(t, errors.Is(err, apperror.ErrNotFound))

	removed, err := f.Delete(ctx, "AAAAAAAAAA")
	assert.True(t, errors.Is(err, apperror.ErrRemoteRejected), "got %v", err)
	assert.False(t, removed)
}

func TestRemote_NotFoundOnlyForSnippetPaths(t *testing.T) {
	// A JSON not_found answer to a list call cannot mean a missing snippet.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"snippet not found with id AAAAAAAAAA"}`))
	}))
	defer srv.Close()
	f := openRemote(t, srv.URL, "", time.Second)
	ctx := context.Background()

	_, err := f.List(ctx, backend.ListOptions{})
	assert.True(t, errors.Is(err, apperror.ErrRemoteRejected), "got %v", err)

	_, err = f.Get(ctx, "AAAAAAAAAA")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	removed, err := f.Delete(ctx, "AAAAAAAAAA")
	require.NoError(t, err)
	assert.False(t, removed)
}

// unreachableURL returns an address nothing listens on.
func unreachableURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr
}

func TestRemote_UnreachableEveryOperation(t *testing.T) {
	f := openRemote(t, unreachableURL(t), apiKey, 500*time.Millisecond)
	ctx := context.Background()
	name := "n"

	calls := map[string]func() error{
		"list": func() error { _, err := f.List(ctx, backend.ListOptions{}); return err },
		"create": func() error {
			_, err := f.Create(ctx, "a", "b", "")
			return err
		},
		"get": func() error { _, err := f.Get(ctx, "AAAAAAAAAA"); return err },
		"update": func() error {
			_, err := f.Update(ctx, "AAAAAAAAAA", model.SnippetPatch{Name: &name})
			return err
		},
		"delete": func() error { _, err := f.Delete(ctx, "AAAAAAAAAA"); return err },
	}

	for op, call := range calls {
		t.Run(op, func(t *testing.T) {
			err := call()
			assert.True(t, errors.Is(err, apperror.ErrRemoteUnavailable), "got %v", err)
			assert.False(t, errors.Is(err, apperror.ErrNotFound))
		})
	}
}

func TestRemote_TimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := openRemote(t, srv.URL, "", 100*time.Millisecond)

	start := time.Now()
	_, err := f.List(context.Background(), backend.ListOptions{})

	assert.True(t, errors.Is(err, apperror.ErrRemoteUnavailable), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRemote_CancelledContext(t *testing.T) {
	srv, _ := newRemoteServer(t, "", nil)
	f := openRemote(t, srv.URL, "", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Create(ctx, "a", "b", "")

	assert.True(t, errors.Is(err, apperror.ErrRemoteUnavailable), "got %v", err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	// Nothing was stored.
	list, err := f.List(context.Background(), backend.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpen_RejectsBadRemoteURL(t *testing.T) {
	for _, raw := range []string{"sipp.example.com", "ftp://host", "http://"} {
		t.Run(raw, func(t *testing.T) {
			_, err := backend.Open(config.Resolved{RemoteURL: raw}, "", logger.NewNop())
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
		})
	}
}
