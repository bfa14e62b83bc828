package models

import "time"

// Request lifecycle statuses written to request_status_logs.status.
const (
	StatusCreateStarted  = "create_started"
	StatusSuccess        = "success"
	StatusFailed         = "failed"
	StatusError          = "error"
	StatusDestroyStarted = "destroy_started"
	StatusDestroyed      = "destroyed"
	StatusDestroyFailed  = "destroy_failed"
	StatusDestroyError   = "destroy_error"
)

// IsTerminal reports whether status ends a flow. Only the *_started states
// are non-terminal.
func IsTerminal(status string) bool {
	switch status {
	case StatusCreateStarted, StatusDestroyStarted:
		return false
	}
	return true
}

// RequestRecord is one logical provisioning request. There is at most one row
// per RequestID; status writes update it in place.
type RequestRecord struct {
	LogID           int64     `db:"log_id"           json:"log_id"`
	RequestID       int64     `db:"request_id"       json:"request_id"`
	UserID          string    `db:"user_id"          json:"user_id"`
	Status          string    `db:"status"           json:"status"`
	DurationSeconds *float64  `db:"duration_seconds" json:"duration_seconds,omitempty"`
	ErrorMessage    *string   `db:"error_message"    json:"error_message,omitempty"`
	CreatedAt       time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"       json:"updated_at"`
}

// StatusEvent is published after every successful status write.
type StatusEvent struct {
	RequestID       int64     `json:"request_id"`
	UserID          string    `json:"user_id"`
	Status          string    `json:"status"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	At              time.Time `json:"at"`
}
