// Package main is the entrypoint for the provisioner API server.
package main

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

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/provisioner/internal/api"
	"github.com/kiranshivaraju/provisioner/internal/api/handler"
	mw "github.com/kiranshivaraju/provisioner/internal/api/middleware"
	"github.com/kiranshivaraju/provisioner/internal/api/response"
	"github.com/kiranshivaraju/provisioner/internal/cache"
	"github.com/kiranshivaraju/provisioner/internal/config"
	"github.com/kiranshivaraju/provisioner/internal/queue"
	"github.com/kiranshivaraju/provisioner/internal/status"
	"github.com/kiranshivaraju/provisioner/internal/store"
)

const shutdownTimeout = 30 * time.Second

var logLevel = new(slog.LevelVar)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logLevel.Set(cfg.Server.SlogLevel())
	slog.Info("config loaded", "env", cfg.Server.Env, "queue", cfg.Queue.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create job queue client
	jobQueue, err := queue.NewClient(cfg.Redis.URL, cfg.Queue.Name, cfg.Queue.ResultRetention,
		queue.WithJobTimeout(cfg.Queue.JobTimeout))
	if err != nil {
		return fmt.Errorf("create queue client: %w", err)
	}
	defer jobQueue.Close()

	// 6. Create store and status recorder
	pgStore := store.NewPostgresStore(pool)
	recorder := status.NewRecorder(pgStore, redisCache, status.WithStatusTTL(cfg.Redis.StatusTTL))

	// 7. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler:        healthHandler(pgStore, redisCache),
		CreateServerHandler:  handler.NewCreateServerHandler(jobQueue),
		DestroyServerHandler: handler.NewDestroyServerHandler(jobQueue),
		JobStatusHandler:     handler.NewJobStatusHandler(jobQueue),
		RequestStatusHandler: handler.NewRequestStatusHandler(recorder),
		PurgeRequestHandler:  handler.NewPurgeRequestHandler(recorder),
	}

	if cfg.Admin.TokenHash != "" {
		admin, err := mw.NewAdminAuth(cfg.Admin.TokenHash)
		if err != nil {
			return fmt.Errorf("create admin auth: %w", err)
		}
		deps.Admin = admin
	} else {
		slog.Info("admin routes disabled: ADMIN_TOKEN_HASH not set")
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
