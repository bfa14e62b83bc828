// Package status records request lifecycle transitions. Postgres is the
// authority; the Redis mirror and the event notifier are best-effort and never
// change the outcome of a write.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kiranshivaraju/provisioner/internal/cache"
	"github.com/kiranshivaraju/provisioner/internal/store"
	"github.com/kiranshivaraju/provisioner/pkg/models"
)

// Notifier receives a StatusEvent after each committed status write.
type Notifier interface {
	Notify(ctx context.Context, ev models.StatusEvent) error
}

// Recorder is the Status Store used by the job flows.
type Recorder struct {
	store    store.Store
	cache    cache.Cache
	notifier Notifier
	ttl      time.Duration
	now      func() time.Time
}

type Option func(*Recorder)

// WithNotifier attaches a lifecycle event notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Recorder) { r.notifier = n }
}

// WithStatusTTL sets the expiry of mirrored status keys. Zero means no expiry.
func WithStatusTTL(ttl time.Duration) Option {
	return func(r *Recorder) { r.ttl = ttl }
}

// NewRecorder creates a Recorder over the given store and cache.
func NewRecorder(st store.Store, ca cache.Cache, opts ...Option) *Recorder {
	r := &Recorder{store: st, cache: ca, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpsertStatus writes status for requestID and returns the record key. Only
// the store write can fail the call.
func (r *Recorder) UpsertStatus(ctx context.Context, requestID int64, userID, status string, opts ...store.StatusOption) (int64, error) {
	logID, err := r.store.UpsertRequestStatus(ctx, requestID, userID, status, opts...)
	if err != nil {
		return 0, err
	}

	key := strconv.FormatInt(requestID, 10)
	if err := r.cache.SetRequestStatus(ctx, key, status, r.ttl); err != nil {
		slog.Warn("status cache mirror failed", "request_id", requestID, "status", status, "error", err)
	}

	if r.notifier != nil {
		duration, _, _ := store.ApplyStatusOptions(opts...)
		ev := models.StatusEvent{
			RequestID:       requestID,
			UserID:          userID,
			Status:          status,
			DurationSeconds: duration,
			At:              r.now().UTC(),
		}
		if err := r.notifier.Notify(ctx, ev); err != nil {
			slog.Warn("status event publish failed", "request_id", requestID, "status", status, "error", err)
		}
	}

	return logID, nil
}

// InsertResource attaches a resource to the record identified by logID.
// Failures are returned to the caller.
func (r *Recorder) InsertResource(ctx context.Context, logID int64, resourceType, resourceName, resourceIDValue string) error {
	err := r.store.InsertResource(ctx, &models.ResourceRecord{
		LogID:           logID,
		ResourceType:    resourceType,
		ResourceName:    resourceName,
		ResourceIDValue: resourceIDValue,
	})
	if err != nil {
		return fmt.Errorf("record resource for log %d: %w", logID, err)
	}
	return nil
}

// DeleteRequestTree purges the request and its resources. It is an
// administrative operation; neither flow calls it.
func (r *Recorder) DeleteRequestTree(ctx context.Context, requestID int64) error {
	if err := r.store.DeleteRequestTree(ctx, requestID); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, cache.RequestStatusKey(strconv.FormatInt(requestID, 10))); err != nil {
		slog.Warn("status cache purge failed", "request_id", requestID, "error", err)
	}
	return nil
}

// GetCachedStatus reads the mirrored status. Cache errors read as absent.
func (r *Recorder) GetCachedStatus(ctx context.Context, key string) (string, bool) {
	status, found, err := r.cache.GetRequestStatus(ctx, key)
	if err != nil {
		slog.Debug("status cache read failed", "key", key, "error", err)
		return "", false
	}
	return status, found
}

// Lock serializes jobs for one request id across workers.
func (r *Recorder) Lock(ctx context.Context, requestID int64) (func(), error) {
	return r.store.LockRequest(ctx, requestID)
}
