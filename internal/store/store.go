package store

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/provisioner/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface. All database operations go through here.
// Every write runs in its own transaction; none spans calls.
type Store interface {
	Ping(ctx context.Context) error

	UpsertRequestStatus(ctx context.Context, requestID int64, userID, status string, opts ...StatusOption) (int64, error)
	GetRequest(ctx context.Context, requestID int64) (*models.RequestRecord, error)
	DeleteRequestTree(ctx context.Context, requestID int64) error

	InsertResource(ctx context.Context, res *models.ResourceRecord) error
	ListResources(ctx context.Context, logID int64) ([]*models.ResourceRecord, error)

	// LockRequest blocks until the caller holds the request's advisory lock.
	// The returned func releases it and must always be called.
	LockRequest(ctx context.Context, requestID int64) (func(), error)
}

type statusParams struct {
	DurationSeconds *float64
	ErrorMessage    *string
	CreatedAt       *time.Time
}

type StatusOption func(*statusParams)

func WithDuration(seconds float64) StatusOption {
	return func(p *statusParams) {
		p.DurationSeconds = &seconds
	}
}

func WithErrorMessage(msg string) StatusOption {
	return func(p *statusParams) {
		p.ErrorMessage = &msg
	}
}

// WithCreatedAt overrides created_at for a newly inserted record. It has no
// effect when the record already exists.
func WithCreatedAt(t time.Time) StatusOption {
	return func(p *statusParams) {
		p.CreatedAt = &t
	}
}

// ApplyStatusOptions resolves opts. Exposed for Store implementations and
// fakes outside this package.
func ApplyStatusOptions(opts ...StatusOption) (duration *float64, errMsg *string, createdAt *time.Time) {
	p := &statusParams{}
	for _, opt := range opts {
		opt(p)
	}
	return p.DurationSeconds, p.ErrorMessage, p.CreatedAt
}
