package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/provisioner/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Request status ---

// UpsertRequestStatus inserts the record for requestID or updates it in place,
// returning its log_id. The unique index on request_id makes concurrent upserts
// for one request converge on a single row. user_id and created_at are only
// written on insert.
func (s *PostgresStore) UpsertRequestStatus(ctx context.Context, requestID int64, userID, status string, opts ...StatusOption) (int64, error) {
	duration, errMsg, createdAt := ApplyStatusOptions(opts...)

	var logID int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO request_status_logs (request_id, user_id, status, duration_seconds, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, NOW()), NOW())
		 ON CONFLICT (request_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   duration_seconds = EXCLUDED.duration_seconds,
		   error_message = EXCLUDED.error_message,
		   updated_at = NOW()
		 RETURNING log_id`,
		requestID, userID, status, duration, errMsg, createdAt,
	).Scan(&logID)
	if err != nil {
		return 0, fmt.Errorf("upsert request status: %w", err)
	}
	return logID, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID int64) (*models.RequestRecord, error) {
	var r models.RequestRecord
	err := s.pool.QueryRow(ctx,
		`SELECT log_id, request_id, user_id, status, duration_seconds, error_message, created_at, updated_at
		 FROM request_status_logs WHERE request_id = $1`, requestID,
	).Scan(&r.LogID, &r.RequestID, &r.UserID, &r.Status, &r.DurationSeconds, &r.ErrorMessage,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &r, nil
}

// DeleteRequestTree removes the request's resources and then the request
// itself in one transaction.
func (s *PostgresStore) DeleteRequestTree(ctx context.Context, requestID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete request tree: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM request_resources
		 WHERE log_id IN (SELECT log_id FROM request_status_logs WHERE request_id = $1)`, requestID); err != nil {
		return fmt.Errorf("delete request resources: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM request_status_logs WHERE request_id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete request tree: %w", err)
	}
	return nil
}

// --- Resources ---

func (s *PostgresStore) InsertResource(ctx context.Context, res *models.ResourceRecord) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO request_resources (log_id, resource_type, resource_name, resource_id_value)
		 VALUES ($1, $2, $3, $4)
		 RETURNING resource_id, created_at`,
		res.LogID, res.ResourceType, res.ResourceName, res.ResourceIDValue,
	).Scan(&res.ResourceID, &res.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResources(ctx context.Context, logID int64) ([]*models.ResourceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT resource_id, log_id, resource_type, resource_name, resource_id_value, created_at
		 FROM request_resources WHERE log_id = $1 ORDER BY resource_id`, logID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var resources []*models.ResourceRecord
	for rows.Next() {
		var r models.ResourceRecord
		if err := rows.Scan(&r.ResourceID, &r.LogID, &r.ResourceType, &r.ResourceName,
			&r.ResourceIDValue, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, &r)
	}
	return resources, rows.Err()
}

// --- Locking ---

// LockRequest takes a session-level advisory lock keyed by requestID on a
// dedicated pooled connection, so jobs for the same request serialize across
// worker processes. The connection is held until the release func runs.
func (s *PostgresStore) LockRequest(ctx context.Context, requestID int64) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, requestID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock request %d: %w", requestID, err)
	}

	return func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, requestID); err != nil {
			// A lock we cannot release must not go back to the pool.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
