// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/gitsee/internal/activity"
	"github.com/starford/gitsee/internal/api"
	"github.com/starford/gitsee/internal/cache"
	"github.com/starford/gitsee/internal/evaluator"
	"github.com/starford/gitsee/internal/hooks"
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/observability"
	"github.com/starford/gitsee/internal/reconciler"
	"github.com/starford/gitsee/internal/scanner"
	"github.com/starford/gitsee/internal/sse"
	"github.com/starford/gitsee/internal/stats"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger unless the caller supplied one.
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Data.Dir),
		slog.Duration("reconcile_interval", cfg.Reconcile.Interval),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the data layout exists.
	if err := os.MkdirAll(cfg.Data.BackupsDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Open the SQLite ledger.
	db, err := ledger.Open(cfg.Data.DBPath())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	// Cache document and its snapshots.
	cacheStore := cache.NewStore(cfg.Data.CachePath())
	if err := cacheStore.Init(); err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	snaps := cache.NewSnapshots(cfg.Data.CachePath(), cfg.Data.BackupsDir(), cfg.Reconcile.Retain)

	// Core services.
	svc := activity.NewService(db, cacheStore, logger)
	statsSvc := stats.NewService(db)
	recon := reconciler.New(db, cacheStore, snaps, cfg.Reconcile.Interval, logger)
	sc := scanner.New(cfg.Scanner.MaxDepth)
	installer := hooks.NewInstaller(cfg.Hooks.ServerURL, cfg.Auth.Token, logger)
	eval := evaluator.New(evaluator.Options{
		Enabled:     cfg.AI.Enabled,
		APIKey:      cfg.AI.APIKey,
		APIURL:      cfg.AI.APIURL,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	}, logger)

	// Converge the cache before serving reads from it.
	if err := recon.RunOnce(); err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build API handlers and router.
	h := api.NewHandler(svc, db, statsSvc, recon, snaps, eval, broker)
	rh := api.NewRepoHandler(db, sc, installer, cfg.Scanner.Roots)
	apiRouter := api.NewRouter(h, rh, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus metrics (unauthenticated).
	r.Handle("/metrics", observability.Handler())

	// Mount API routes under /api/v1.
	r.Mount("/api/v1", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Background reconciliation loop.
	g.Go(func() error {
		return recon.Run(gCtx)
	})

	// Optional repository watcher.
	if cfg.Scanner.Watch && len(cfg.Scanner.Roots) > 0 {
		g.Go(func() error {
			if err := scanner.Watch(gCtx, sc, db, cfg.Scanner.Roots, logger); err != nil {
				logger.Warn("repo watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
