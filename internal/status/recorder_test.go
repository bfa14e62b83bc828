package status_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	cachemock "github.com/kiranshivaraju/provisioner/internal/cache/mock"
	"github.com/kiranshivaraju/provisioner/internal/status"
	"github.com/kiranshivaraju/provisioner/internal/store"
	storemock "github.com/kiranshivaraju/provisioner/internal/store/mock"
	"github.com/kiranshivaraju/provisioner/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.StatusEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev models.StatusEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func TestUpsertStatus_IdempotentSingleRecord(t *testing.T) {
	st := storemock.NewMockStore()
	rec := status.NewRecorder(st, cachemock.NewMockCache())
	ctx := context.Background()

	k1, err := rec.UpsertStatus(ctx, 42, "alice", models.StatusCreateStarted)
	require.NoError(t, err)
	k2, err := rec.UpsertStatus(ctx, 42, "alice", models.StatusSuccess, store.WithDuration(3.5))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	r, err := st.GetRequest(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, r.Status)
	require.NotNil(t, r.DurationSeconds)
	assert.Equal(t, 3.5, *r.DurationSeconds)
}

func TestUpsertStatus_MirrorsToCache(t *testing.T) {
	ca := cachemock.NewMockCache()
	rec := status.NewRecorder(storemock.NewMockStore(), ca)
	ctx := context.Background()

	_, err := rec.UpsertStatus(ctx, 42, "alice", models.StatusDestroyStarted)
	require.NoError(t, err)

	got, found := rec.GetCachedStatus(ctx, "42")
	assert.True(t, found)
	assert.Equal(t, models.StatusDestroyStarted, got)

	raw, found, err := ca.GetRequestStatus(ctx, "42")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "destroy_started", raw)
}

func TestUpsertStatus_CacheFailureIgnored(t *testing.T) {
	st := storemock.NewMockStore()
	ca := cachemock.NewMockCache()
	ca.Err = errors.New("redis down")
	rec := status.NewRecorder(st, ca)

	key, err := rec.UpsertStatus(context.Background(), 42, "alice", models.StatusCreateStarted)
	require.NoError(t, err)
	assert.NotZero(t, key)
	assert.Equal(t, []string{models.StatusCreateStarted}, st.Statuses())
}

func TestUpsertStatus_StoreFailurePropagates(t *testing.T) {
	st := storemock.NewMockStore()
	st.UpsertErr = errors.New("connection refused")
	ca := cachemock.NewMockCache()
	n := &recordingNotifier{}
	rec := status.NewRecorder(st, ca, status.WithNotifier(n))

	_, err := rec.UpsertStatus(context.Background(), 42, "alice", models.StatusCreateStarted)
	require.Error(t, err)

	_, found := rec.GetCachedStatus(context.Background(), "42")
	assert.False(t, found, "cache must not be written when the store write fails")
	assert.Empty(t, n.events)
}

func TestUpsertStatus_Notifies(t *testing.T) {
	n := &recordingNotifier{err: errors.New("nats unavailable")}
	rec := status.NewRecorder(storemock.NewMockStore(), cachemock.NewMockCache(), status.WithNotifier(n))

	_, err := rec.UpsertStatus(context.Background(), 42, "alice", models.StatusFailed, store.WithDuration(2))
	require.NoError(t, err, "notifier failures are best-effort")

	require.Len(t, n.events, 1)
	ev := n.events[0]
	assert.Equal(t, int64(42), ev.RequestID)
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, models.StatusFailed, ev.Status)
	require.NotNil(t, ev.DurationSeconds)
	assert.Equal(t, 2.0, *ev.DurationSeconds)
	assert.False(t, ev.At.IsZero())
}

func TestGetCachedStatus_ErrorIsAbsent(t *testing.T) {
	ca := cachemock.NewMockCache()
	rec := status.NewRecorder(storemock.NewMockStore(), ca)
	_, err := rec.UpsertStatus(context.Background(), 1, "alice", models.StatusSuccess)
	require.NoError(t, err)

	ca.Err = errors.New("timeout")
	got, found := rec.GetCachedStatus(context.Background(), "1")
	assert.False(t, found)
	assert.Empty(t, got)
}

func TestInsertResource(t *testing.T) {
	st := storemock.NewMockStore()
	rec := status.NewRecorder(st, cachemock.NewMockCache())
	ctx := context.Background()

	logID, err := rec.UpsertStatus(ctx, 42, "alice", models.StatusSuccess)
	require.NoError(t, err)
	require.NoError(t, rec.InsertResource(ctx, logID, models.ResourceTypeEC2, "web1", "42"))

	res := st.Resources()
	require.Len(t, res, 1)
	assert.Equal(t, logID, res[0].LogID)
	assert.Equal(t, "EC2", res[0].ResourceType)
	assert.Equal(t, "web1", res[0].ResourceName)
	assert.Equal(t, "42", res[0].ResourceIDValue)
}

func TestInsertResource_FailurePropagates(t *testing.T) {
	st := storemock.NewMockStore()
	st.InsertErr = errors.New("disk full")
	rec := status.NewRecorder(st, cachemock.NewMockCache())

	err := rec.InsertResource(context.Background(), 1, models.ResourceTypeEC2, "web1", "42")
	require.Error(t, err)
	assert.ErrorIs(t, err, st.InsertErr)
}

func TestDeleteRequestTree(t *testing.T) {
	st := storemock.NewMockStore()
	rec := status.NewRecorder(st, cachemock.NewMockCache())
	ctx := context.Background()

	logID, err := rec.UpsertStatus(ctx, 42, "alice", models.StatusSuccess)
	require.NoError(t, err)
	require.NoError(t, rec.InsertResource(ctx, logID, models.ResourceTypeEC2, "web1", "42"))

	require.NoError(t, rec.DeleteRequestTree(ctx, 42))

	_, err = st.GetRequest(ctx, 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, st.Resources())
	_, found := rec.GetCachedStatus(ctx, "42")
	assert.False(t, found)
}

func TestDeleteRequestTree_NotFound(t *testing.T) {
	rec := status.NewRecorder(storemock.NewMockStore(), cachemock.NewMockCache())
	err := rec.DeleteRequestTree(context.Background(), 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
