package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/provisioner/internal/api/response"
	"github.com/kiranshivaraju/provisioner/internal/workspace"
	"github.com/kiranshivaraju/provisioner/pkg/models"
)

// Enqueuer queues provisioning jobs.
type Enqueuer interface {
	EnqueueCreate(ctx context.Context, req models.ProvisionRequest) (string, error)
	EnqueueDestroy(ctx context.Context, req models.ProvisionRequest) (string, error)
}

// EnqueueResponse is returned by the create and destroy endpoints.
type EnqueueResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// NewCreateServerHandler returns an http.HandlerFunc for POST /create-server.
func NewCreateServerHandler(q Enqueuer) http.HandlerFunc {
	return enqueueHandler("Deployment started", q.EnqueueCreate)
}

// NewDestroyServerHandler returns an http.HandlerFunc for POST /destroy-server.
func NewDestroyServerHandler(q Enqueuer) http.HandlerFunc {
	return enqueueHandler("Destroy started", q.EnqueueDestroy)
}

type enqueueFunc func(ctx context.Context, req models.ProvisionRequest) (string, error)

func enqueueHandler(message string, enqueue enqueueFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.ProvisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if details := validateProvisionRequest(req); len(details) > 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid provisioning request", details)
			return
		}

		jobID, err := enqueue(r.Context(), req)
		if err != nil {
			slog.Error("enqueue job", "device_id", req.DeviceID, "error", err)
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Failed to enqueue job", nil)
			return
		}

		response.Accepted(w, EnqueueResponse{Message: message, JobID: jobID})
	}
}

func validateProvisionRequest(req models.ProvisionRequest) map[string]string {
	details := map[string]string{}
	if strings.TrimSpace(req.DeviceID) == "" {
		details["device_id"] = "device_id is required"
	} else if err := workspace.ValidateDeviceID(req.DeviceID); err != nil {
		details["device_id"] = err.Error()
	}
	if strings.TrimSpace(req.InstanceName) == "" {
		details["instance_name"] = "instance_name is required"
	}
	if strings.TrimSpace(req.User) == "" {
		details["user"] = "user is required"
	}
	return details
}
