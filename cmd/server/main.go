// Package main is the entry point for the sipp server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (from env vars)
// 2. Create dependencies (logger)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, etc.). The `sipp server` subcommand runs the same
// code; this binary exists for container images that want nothing else.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/sipp/internal/config"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sipp-server:", err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. READ CONFIGURATION ===
	// Everything comes from SIPP_* environment variables; see
	// config.LoadServer for the full list and defaults.
	cfg, err := config.LoadServer(os.Getenv)
	if err != nil {
		return err
	}

	// === 2. SET UP LOGGING ===
	log, err := logger.New(cfg.LogLevel, cfg.PrettyLog)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Debug("configuration loaded", logger.String("config", fmt.Sprintf("%+v", cfg.Redacted())))

	// === 3. SIGNALS ===
	// SIGINT = Ctrl+C, SIGTERM = what Docker/Kubernetes send on stop.
	// NotifyContext cancels ctx on either, which starts graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create server", logger.Error(err))
		return err
	}

	// Run blocks until ctx is cancelled or the listener fails.
	if err := srv.Run(ctx); err != nil {
		log.Error("server error", logger.Error(err))
		return err
	}
	return nil
}
