package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/provisioner/internal/api/response"
	"github.com/kiranshivaraju/provisioner/pkg/models"
)

// JobStatuser answers job status queries.
type JobStatuser interface {
	JobStatus(ctx context.Context, jobID string) (models.JobStatus, error)
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /job/{jobID}.
// The body is the bare {status, result} object. Unknown jobs answer 200 with
// status not_found.
func NewJobStatusHandler(q JobStatuser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if jobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job id is required", nil)
			return
		}

		st, err := q.JobStatus(r.Context(), jobID)
		if err != nil {
			slog.Error("job status lookup", "job_id", jobID, "error", err)
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Failed to read job status", nil)
			return
		}

		response.Unwrapped(w, st)
	}
}
