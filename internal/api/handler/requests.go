package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/provisioner/internal/api/response"
	"github.com/kiranshivaraju/provisioner/internal/store"
	"github.com/kiranshivaraju/provisioner/pkg/requestid"
)

// StatusReader reads the cached lifecycle status of a request.
type StatusReader interface {
	GetCachedStatus(ctx context.Context, key string) (string, bool)
}

// RequestPurger removes a request and its resources.
type RequestPurger interface {
	DeleteRequestTree(ctx context.Context, requestID int64) error
}

// RequestStatusResponse is the body of GET /requests/{deviceID}/status.
type RequestStatusResponse struct {
	DeviceID  string `json:"device_id"`
	RequestID int64  `json:"request_id"`
	Status    string `json:"status"`
}

// NewRequestStatusHandler returns an http.HandlerFunc for
// GET /requests/{deviceID}/status. It only consults the cache.
func NewRequestStatusHandler(sr StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := chi.URLParam(r, "deviceID")
		requestID := requestid.Normalize(deviceID)

		status, found := sr.GetCachedStatus(r.Context(), strconv.FormatInt(requestID, 10))
		if !found {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "No status recorded for device", nil)
			return
		}

		response.JSON(w, RequestStatusResponse{DeviceID: deviceID, RequestID: requestID, Status: status})
	}
}

// NewPurgeRequestHandler returns an http.HandlerFunc for
// DELETE /admin/requests/{deviceID}.
func NewPurgeRequestHandler(p RequestPurger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := chi.URLParam(r, "deviceID")
		requestID := requestid.Normalize(deviceID)

		err := p.DeleteRequestTree(r.Context(), requestID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Request not found", nil)
			return
		}
		if err != nil {
			slog.Error("purge request", "device_id", deviceID, "request_id", requestID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to purge request", nil)
			return
		}

		slog.Info("request purged", "device_id", deviceID, "request_id", requestID)
		response.JSON(w, map[string]any{"request_id": requestID, "deleted": true})
	}
}
