package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/kiranshivaraju/provisioner/internal/config"
	"github.com/kiranshivaraju/provisioner/internal/jobs"
)

// Handler runs dequeued tasks through the create and destroy flows.
type Handler struct {
	create  jobs.FlowFunc
	destroy jobs.FlowFunc
}

// NewHandler creates a Handler for the given flows.
func NewHandler(create, destroy jobs.FlowFunc) *Handler {
	return &Handler{create: create, destroy: destroy}
}

// Register installs the task handlers on mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCreateServer, h.HandleCreate)
	mux.HandleFunc(TypeDestroyServer, h.HandleDestroy)
}

func (h *Handler) HandleCreate(ctx context.Context, t *asynq.Task) error {
	return h.handle(ctx, t, h.create)
}

func (h *Handler) HandleDestroy(ctx context.Context, t *asynq.Task) error {
	return h.handle(ctx, t, h.destroy)
}

// handle blocks until the flow is done. A flow error fails the task; a
// completed flow, successful or not, stores its JobResult as the task result.
func (h *Handler) handle(ctx context.Context, t *asynq.Task, flow jobs.FlowFunc) error {
	req, err := DecodePayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	res, err := jobs.RunSync(ctx, flow, req)
	if err != nil {
		return err
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	if rw := t.ResultWriter(); rw != nil {
		if _, err := rw.Write(data); err != nil {
			return fmt.Errorf("write job result: %w", err)
		}
	}
	return nil
}

// NewServer builds the asynq worker server for cfg. A single worker runs one
// job at a time unless Concurrency says otherwise.
func NewServer(redisURL string, cfg config.QueueConfig) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Name: 1},
		Logger:      slogLogger{},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			slog.Error("job failed", "type", t.Type(), "error", err)
		}),
	}), nil
}

// slogLogger routes asynq's internal logging through slog.
type slogLogger struct{}

func (slogLogger) Debug(args ...any) { slog.Debug(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Info(args ...any)  { slog.Info(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Warn(args ...any)  { slog.Warn(fmt.Sprint(args...), "component", "asynq") }
func (slogLogger) Error(args ...any) { slog.Error(fmt.Sprint(args...), "component", "asynq") }

func (slogLogger) Fatal(args ...any) {
	slog.Error(fmt.Sprint(args...), "component", "asynq", "fatal", true)
	os.Exit(1)
}
