package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/sipp/internal/auth"
	"github.com/sakif/sipp/internal/config"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/model"
	"github.com/sakif/sipp/internal/repository"
	"github.com/sakif/sipp/internal/repository/sqlite"
	"github.com/sakif/sipp/internal/server"
	"github.com/sakif/sipp/internal/service"
)

const key = "correct horse battery staple"

func newRouter(t *testing.T, secret string, protected []string) http.Handler {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gate, err := auth.NewGate(secret, protected)
	require.NoError(t, err)

	store := service.NewSnippetService(db, logger.NewNop(), service.Config{})
	h, err := server.NewRouter(store, gate, config.DefaultRawClients, logger.NewNop())
	require.NoError(t, err)
	return h
}

func request(h http.Handler, method, target, body, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(auth.HeaderName, apiKey)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_DefaultProtection(t *testing.T) {
	h := newRouter(t, key, nil)

	// create and get are open by default
	rr := request(h, http.MethodPost, "/api/snippets", `{"name":"a.txt","content":"hi"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var s model.Snippet
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&s))

	rr = request(h, http.MethodGet, "/api/snippets/"+s.ShortID, "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	// list and delete are not
	rr = request(h, http.MethodGet, "/api/snippets", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), auth.HeaderName)
	assert.JSONEq(t, `{"error":"unauthorized","message":"missing API key"}`, rr.Body.String())

	rr = request(h, http.MethodDelete, "/api/snippets/"+s.ShortID, "", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"unauthorized","message":"invalid API key"}`, rr.Body.String())

	rr = request(h, http.MethodGet, "/api/snippets", "", key)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = request(h, http.MethodDelete, "/api/snippets/"+s.ShortID, "", key)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_AuthBeforeLookup(t *testing.T) {
	h := newRouter(t, key, []string{"delete"})

	// An unknown id must not reveal anything before the key is checked.
	rr := request(h, http.MethodDelete, "/api/snippets/AAAAAAAAAA", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = request(h, http.MethodDelete, "/api/snippets/AAAAAAAAAA", "", key)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_ProtectAll(t *testing.T) {
	h := newRouter(t, key, []string{"all"})

	rr := request(h, http.MethodPost, "/api/snippets", `{"name":"a.txt","content":"hi"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = request(h, http.MethodPost, "/api/snippets", `{"name":"a.txt","content":"hi"}`, key)
	require.Equal(t, http.StatusCreated, rr.Code)
	var s model.Snippet
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&s))

	rr = request(h, http.MethodPut, "/api/snippets/"+s.ShortID, `{"content":"bye"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// The page view shares the get permission.
	rr = request(h, http.MethodGet, "/s/"+s.ShortID, "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = request(h, http.MethodGet, "/s/"+s.ShortID+"/raw", "", key)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hi", rr.Body.String())
}

func TestRouter_OpenMode(t *testing.T) {
	h := newRouter(t, "", []string{"all"})

	rr := request(h, http.MethodGet, "/api/snippets", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_RequestID(t *testing.T) {
	h := newRouter(t, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "client-chosen-id")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "client-chosen-id", rr.Header().Get("X-Request-Id"))

	rr = request(h, http.MethodGet, "/healthz", "", "")
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestNew_FileDatabase(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadServer(func(k string) string {
		switch k {
		case "SIPP_DB":
			return filepath.Join(dir, "nested", "sipp.sqlite")
		case "SIPP_ADDR":
			return "127.0.0.1:0"
		}
		return ""
	})
	require.NoError(t, err)

	srv, err := server.New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)

	rr := request(srv.Handler(), http.MethodPost, "/api/snippets", `{"name":"a.txt","content":"persist me"}`, "")
	assert.Equal(t, http.StatusCreated, rr.Code)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	// The file survives the server and holds the snippet.
	db, err := sqlite.New(cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	store := service.NewSnippetService(db, logger.NewNop(), service.Config{})
	list, err := store.List(context.Background(), repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "persist me", list[0].Content)
}

func TestNew_UnknownProtectedOperation(t *testing.T) {
	cfg, err := config.LoadServer(func(k string) string {
		switch k {
		case "SIPP_API_KEY":
			return key
		case "SIPP_PROTECTED":
			return "delete,explode"
		case "SIPP_DB":
			return ":memory:"
		}
		return ""
	})
	require.NoError(t, err)

	_, err = server.New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "explode")
}
