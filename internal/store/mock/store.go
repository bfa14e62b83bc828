package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kiranshivaraju/provisioner/internal/store"
	"github.com/kiranshivaraju/provisioner/pkg/models"
)

// MockStore is an in-memory store.Store for tests. Set the ...Err fields to
// force failures; *Func fields take precedence when set.
type MockStore struct {
	mu        sync.Mutex
	nextLogID int64
	nextResID int64
	requests  map[int64]*models.RequestRecord
	resources []*models.ResourceRecord
	locks     map[int64]*sync.Mutex

	// Upserts holds every successful status write in order.
	Upserts []Upsert

	PingErr   error
	UpsertErr error
	InsertErr error
	DeleteErr error

	UpsertFunc func(ctx context.Context, requestID int64, userID, status string, opts ...store.StatusOption) (int64, error)
}

// Upsert is one recorded status write.
type Upsert struct {
	RequestID       int64
	UserID          string
	Status          string
	DurationSeconds *float64
	ErrorMessage    *string
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		requests: make(map[int64]*models.RequestRecord),
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (m *MockStore) Ping(_ context.Context) error { return m.PingErr }

func (m *MockStore) UpsertRequestStatus(ctx context.Context, requestID int64, userID, status string, opts ...store.StatusOption) (int64, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, requestID, userID, status, opts...)
	}
	if m.UpsertErr != nil {
		return 0, m.UpsertErr
	}
	duration, errMsg, createdAt := store.ApplyStatusOptions(opts...)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := m.requests[requestID]
	if !ok {
		m.nextLogID++
		rec = &models.RequestRecord{LogID: m.nextLogID, RequestID: requestID, UserID: userID, CreatedAt: now}
		if createdAt != nil {
			rec.CreatedAt = *createdAt
		}
		m.requests[requestID] = rec
	}
	rec.Status = status
	rec.DurationSeconds = duration
	rec.ErrorMessage = errMsg
	rec.UpdatedAt = now

	m.Upserts = append(m.Upserts, Upsert{
		RequestID: requestID, UserID: userID, Status: status,
		DurationSeconds: duration, ErrorMessage: errMsg,
	})
	return rec.LogID, nil
}

func (m *MockStore) GetRequest(_ context.Context, requestID int64) (*models.RequestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.requests[requestID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockStore) DeleteRequestTree(_ context.Context, requestID int64) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.requests[requestID]
	if !ok {
		return store.ErrNotFound
	}
	kept := m.resources[:0]
	for _, r := range m.resources {
		if r.LogID != rec.LogID {
			kept = append(kept, r)
		}
	}
	m.resources = kept
	delete(m.requests, requestID)
	return nil
}

func (m *MockStore) InsertResource(_ context.Context, res *models.ResourceRecord) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, rec := range m.requests {
		if rec.LogID == res.LogID {
			found = true
			break
		}
	}
	if !found {
		return store.ErrNotFound
	}
	m.nextResID++
	res.ResourceID = m.nextResID
	res.CreatedAt = time.Now().UTC()
	cp := *res
	m.resources = append(m.resources, &cp)
	return nil
}

func (m *MockStore) ListResources(_ context.Context, logID int64) ([]*models.ResourceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ResourceRecord
	for _, r := range m.resources {
		if r.LogID == logID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Resources returns every stored resource.
func (m *MockStore) Resources() []*models.ResourceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ResourceRecord, len(m.resources))
	copy(out, m.resources)
	return out
}

// Statuses returns the status of every recorded write in order.
func (m *MockStore) Statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Upserts))
	for i, u := range m.Upserts {
		out[i] = u.Status
	}
	return out
}

// LastUpsert returns the most recent status write.
func (m *MockStore) LastUpsert() (Upsert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Upserts) == 0 {
		return Upsert{}, false
	}
	return m.Upserts[len(m.Upserts)-1], true
}

func (m *MockStore) LockRequest(ctx context.Context, requestID int64) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[requestID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[requestID] = l
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.Lock()
	return l.Unlock, nil
}

// Compile-time check that MockStore implements Store.
var _ store.Store = (*MockStore)(nil)
