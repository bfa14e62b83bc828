// Package queue carries create and destroy jobs over Redis with asynq: the
// API enqueues and inspects tasks, the worker runs them through the flows.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/kiranshivaraju/provisioner/pkg/models"
)

// Task types.
const (
	TypeCreateServer  = "server:create"
	TypeDestroyServer = "server:destroy"
)

// NewCreateTask builds the task that provisions req.
func NewCreateTask(req models.ProvisionRequest) (*asynq.Task, error) {
	return newTask(TypeCreateServer, req)
}

// NewDestroyTask builds the task that tears down req.
func NewDestroyTask(req models.ProvisionRequest) (*asynq.Task, error) {
	return newTask(TypeDestroyServer, req)
}

func newTask(typename string, req models.ProvisionRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typename, err)
	}
	return asynq.NewTask(typename, payload, asynq.MaxRetry(0)), nil
}

// DecodePayload reads the provisioning request carried by t.
func DecodePayload(t *asynq.Task) (models.ProvisionRequest, error) {
	var req models.ProvisionRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return req, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	return req, nil
}
