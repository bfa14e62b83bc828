// Package main is the entrypoint for the provisioner job worker. It consumes
// create and destroy jobs from the queue and runs them against terraform.
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

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/provisioner/internal/cache"
	"github.com/kiranshivaraju/provisioner/internal/config"
	"github.com/kiranshivaraju/provisioner/internal/events"
	"github.com/kiranshivaraju/provisioner/internal/jobs"
	"github.com/kiranshivaraju/provisioner/internal/metrics"
	"github.com/kiranshivaraju/provisioner/internal/queue"
	"github.com/kiranshivaraju/provisioner/internal/status"
	"github.com/kiranshivaraju/provisioner/internal/store"
	"github.com/kiranshivaraju/provisioner/internal/terraform"
	"github.com/kiranshivaraju/provisioner/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 30 * time.Second

var logLevel = new(slog.LevelVar)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logLevel.Set(cfg.Server.SlogLevel())
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"queue", cfg.Queue.Name,
		"concurrency", cfg.Queue.Concurrency,
		"terraform_root", cfg.Terraform.Root,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	recOpts := []status.Option{status.WithStatusTTL(cfg.Redis.StatusTTL)}
	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer pub.Close()
		recOpts = append(recOpts, status.WithNotifier(pub))
		slog.Info("nats connected", "subject_prefix", cfg.Events.SubjectPrefix)
	}
	recorder := status.NewRecorder(store.NewPostgresStore(pool), redisCache, recOpts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	builder, err := workspace.NewBuilder(cfg.Terraform.Root, workspace.Settings{
		ModulePath:  cfg.Terraform.ModulePath,
		Region:      cfg.Terraform.Region,
		StateBucket: cfg.Terraform.StateBucket,
		LockTable:   cfg.Terraform.LockTable,
	})
	if err != nil {
		return fmt.Errorf("create workspace builder: %w", err)
	}

	runner := terraform.NewRunner(cfg.Terraform.Binary,
		terraform.WithStepTimeout(cfg.Terraform.StepTimeout),
		terraform.WithStepObserver(m.ObserveStep),
	)
	orch := jobs.NewOrchestrator(recorder, builder, terraform.NewPipelines(runner),
		jobs.WithFlowObserver(m.ObserveFlow),
	)

	srv, err := queue.NewServer(cfg.Redis.URL, cfg.Queue)
	if err != nil {
		return fmt.Errorf("create queue server: %w", err)
	}
	mux := asynq.NewServeMux()
	queue.NewHandler(orch.Create, orch.Destroy).Register(mux)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler(reg))
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Queue.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start queue server: %w", err)
	}
	slog.Info("worker started", "queue", cfg.Queue.Name)

	select {
	case err := <-errCh:
		srv.Shutdown()
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received, waiting for running jobs...")
	}

	// Shutdown waits for in-flight handlers, bounded by asynq's own timeout.
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}
