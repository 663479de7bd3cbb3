// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides:
// - Which URL patterns map to which handler functions
// - Which operation of the auth gate guards each route
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Server → sqlite.DB → [cache.Repository] → service.SnippetService
//	             → handler.SnippetHandler / handler.PageHandler → chi router
//
// This is the "composition root": every dependency is built in New, and
// nothing below it reaches for a global.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/sipp/internal/auth"
	"github.com/sakif/sipp/internal/cache"
	"github.com/sakif/sipp/internal/config"
	"github.com/sakif/sipp/internal/handler"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/middleware"
	"github.com/sakif/sipp/internal/repository"
	sqliteRepo "github.com/sakif/sipp/internal/repository/sqlite"
	"github.com/sakif/sipp/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and, when configured, the Redis
// client. Run closes both after the listener has drained.
type Server struct {
	handler http.Handler
	cfg     *config.Server
	logger  logger.Logger
	db      *sqliteRepo.DB
	redis   *redis.Client
	service *service.SnippetService
	gate    *auth.Gate
}

// New assembles the server from its configuration.
//
// The Redis cache is optional: if SIPP_REDIS_ADDR is set but Redis does
// not answer within the connect timeout, the server starts without it and
// says so in the log.
func New(ctx context.Context, cfg *config.Server, log logger.Logger) (*Server, error) {
	gate, err := auth.NewGate(cfg.APIKey, cfg.Protected)
	if err != nil {
		return nil, fmt.Errorf("configuring auth gate: %w", err)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." && cfg.DBPath != ":memory:" {
		// 0755 = owner can read/write/execute, others can read/execute.
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{cfg: cfg, logger: log, db: db, gate: gate}

	var repo repository.SnippetRepository = db
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cache.ConnectOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log)
		if err != nil {
			log.Warn("running without redis cache", logger.Error(err))
		} else {
			s.redis = client
			repo = cache.NewRepository(db, cache.NewRedisKV(client), cfg.RedisTTL, log)
		}
	}

	s.service = service.NewSnippetService(repo, log, service.Config{
		MaxContentBytes: cfg.MaxContentSize,
	})

	s.handler, err = NewRouter(s.service, gate, cfg.RawClients, log)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// NewRouter builds the chi router over a snippet store.
//
// ROUTE STRUCTURE:
//
//	GET    /                        → index page with create form
//	GET    /about                   → about page
//	GET    /healthz                 → liveness probe
//	GET    /static/*                → embedded CSS
//	POST   /snippets                → form create, 303 to /s/{shortId}  [create]
//	GET    /s/{shortId}             → raw for CLI clients, else HTML     [get]
//	GET    /s/{shortId}/raw         → raw text                           [get]
//	GET    /api/snippets            → list (JSON)                        [list]
//	POST   /api/snippets            → create (JSON)                      [create]
//	GET    /api/snippets/{shortId}  → get (JSON)                         [get]
//	PUT    /api/snippets/{shortId}  → partial update (JSON)              [update]
//	DELETE /api/snippets/{shortId}  → delete (JSON)                      [delete]
//
// The bracketed operation is what auth.Require checks for that route. The
// form route checks create itself because the key may come in the form.
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: adopts the client's X-Request-Id or makes one
// 2. RealIP: extracts the client IP from proxy headers
// 3. EchoRequestID: returns the id in the response
// 4. Logger: logs each request with timing info
// 5. Recoverer: catches panics and returns 500 instead of crashing
func NewRouter(store handler.Store, gate *auth.Gate, rawClients []string, log logger.Logger) (http.Handler, error) {
	pages, err := handler.NewPageHandler(store, gate, rawClients, log)
	if err != nil {
		return nil, fmt.Errorf("creating page handler: %w", err)
	}
	api := handler.NewSnippetHandler(store, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.EchoRequestID)
	r.Use(middleware.Logger(log))
	r.Use(chimiddleware.Recoverer)

	r.NotFound(pages.NotFound)

	// === Page Routes ===
	r.Get("/", pages.HandleIndex)
	r.Get("/about", pages.HandleAbout)
	r.Get("/healthz", pages.HandleHealth)
	r.Handle("/static/*", pages.Static())
	r.Post("/snippets", pages.HandleCreateForm)
	r.With(auth.Require(gate, auth.OpGet)).Get("/s/{shortId}", pages.HandleView)
	r.With(auth.Require(gate, auth.OpGet)).Get("/s/{shortId}/raw", pages.HandleRaw)

	// === API Routes ===
	r.Route("/api/snippets", func(r chi.Router) {
		r.With(auth.Require(gate, auth.OpList)).Get("/", api.HandleList)
		r.With(auth.Require(gate, auth.OpCreate)).Post("/", api.HandleCreate)
		r.With(auth.Require(gate, auth.OpGet)).Get("/{shortId}", api.HandleGet)
		r.With(auth.Require(gate, auth.OpUpdate)).Put("/{shortId}", api.HandleUpdate)
		r.With(auth.Require(gate, auth.OpDelete)).Delete("/{shortId}", api.HandleDelete)
	})

	return r, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (SIPP_SHUTDOWN_TIMEOUT)
// 3. Close Redis and the database (flushes WAL, releases the file lock)
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()

	s.logger.Info("server started",
		logger.String("addr", ln.Addr().String()),
		logger.String("database", s.cfg.DBPath),
		logger.Bool("open_mode", s.gate.Open()),
		logger.String("protected", fmt.Sprint(s.gate.Protected())),
		logger.Int("max_content_bytes", s.service.MaxContentBytes()),
		logger.Bool("redis_cache", s.redis != nil),
	)
	if s.gate.Open() {
		s.logger.Warn("SIPP_API_KEY not set: every operation is open")
	}

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}

func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", logger.Error(err))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", logger.Error(err))
	}
}
