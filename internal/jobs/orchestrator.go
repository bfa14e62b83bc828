// Package jobs runs the create and destroy flows: it writes lifecycle
// statuses, drives the workspace builder and terraform pipelines, and
// classifies every outcome into a terminal status.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/kiranshivaraju/provisioner/internal/store"
	"github.com/kiranshivaraju/provisioner/internal/terraform"
	"github.com/kiranshivaraju/provisioner/internal/workspace"
	"github.com/kiranshivaraju/provisioner/pkg/models"
	"github.com/kiranshivaraju/provisioner/pkg/requestid"
)

// Flow names used in logs, errors and metrics.
const (
	FlowCreate  = "create"
	FlowDestroy = "destroy"
)

// Outcome labels reported to the FlowObserver.
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeError       = "error"
	OutcomePersistence = "persistence_error"
)

// Recorder persists lifecycle transitions.
type Recorder interface {
	UpsertStatus(ctx context.Context, requestID int64, userID, status string, opts ...store.StatusOption) (int64, error)
	InsertResource(ctx context.Context, logID int64, resourceType, resourceName, resourceIDValue string) error
	Lock(ctx context.Context, requestID int64) (func(), error)
}

// Workspaces generates and locates per-device terraform directories.
type Workspaces interface {
	Build(ctx context.Context, deviceID, instanceName string) (workspace.Workspace, error)
	Open(ctx context.Context, deviceID, instanceName string) (workspace.Workspace, error)
}

// Pipeline runs the terraform step sequences.
type Pipeline interface {
	Create(ctx context.Context, dir, deviceID, instanceName string) terraform.Outcome
	Destroy(ctx context.Context, dir, deviceID, instanceName string) terraform.Outcome
	DestroyFresh(ctx context.Context, dir, deviceID, instanceName string) terraform.Outcome
}

// FlowObserver is told how every flow ended.
type FlowObserver func(flow, outcome string, d time.Duration)

// Orchestrator composes the flows. It is safe for concurrent use; jobs for
// the same request id serialize on the recorder's lock.
type Orchestrator struct {
	recorder   Recorder
	workspaces Workspaces
	pipeline   Pipeline
	observer   FlowObserver
	now        func() time.Time
}

type Option func(*Orchestrator)

// WithFlowObserver registers a hook called when a flow returns.
func WithFlowObserver(fn FlowObserver) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// NewOrchestrator wires the flow collaborators.
func NewOrchestrator(rec Recorder, ws Workspaces, pl Pipeline, opts ...Option) *Orchestrator {
	o := &Orchestrator{recorder: rec, workspaces: ws, pipeline: pl, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create provisions the instance for req.
//
// The create_started write happens before the recovery boundary. If it fails
// the flow returns a *PersistenceError and no terminal status is ever
// recorded for the request. A failed terminal write is also returned as a
// *PersistenceError. Every other fault becomes status "error" and a failed
// JobResult with zero duration.
func (o *Orchestrator) Create(ctx context.Context, req models.ProvisionRequest) (models.JobResult, error) {
	return o.run(ctx, FlowCreate, req, models.StatusCreateStarted, o.create)
}

// Destroy tears down the instance for req. It runs against the existing
// workspace and never records resources or purges bookkeeping. Failure
// handling mirrors Create with the destroy_* statuses.
func (o *Orchestrator) Destroy(ctx context.Context, req models.ProvisionRequest) (models.JobResult, error) {
	return o.run(ctx, FlowDestroy, req, models.StatusDestroyStarted, o.destroy)
}

// flowState carries what a flow body needs after the started write.
type flowState struct {
	flow      string
	req       models.ProvisionRequest
	requestID int64
	logID     int64
	start     time.Time
}

type flowBody func(ctx context.Context, fs *flowState) (models.JobResult, error)

func (o *Orchestrator) run(ctx context.Context, flow string, req models.ProvisionRequest, startedStatus string, body flowBody) (models.JobResult, error) {
	fs := &flowState{
		flow:      flow,
		req:       req,
		requestID: requestid.Normalize(req.DeviceID),
		start:     o.now(),
	}
	logger := slog.With("flow", flow, "device_id", req.DeviceID, "request_id", fs.requestID)
	logger.Info("job started", "instance_name", req.InstanceName, "user", req.User)

	unlock, err := o.recorder.Lock(ctx, fs.requestID)
	if err != nil {
		return o.persistenceFailure(fs, &PersistenceError{Op: "lock request", RequestID: fs.requestID, Err: err})
	}
	defer unlock()

	logID, err := o.recorder.UpsertStatus(ctx, fs.requestID, req.User, startedStatus)
	if err != nil {
		return o.persistenceFailure(fs, &PersistenceError{Op: "write status", RequestID: fs.requestID, Status: startedStatus, Err: err})
	}
	fs.logID = logID

	res, err := o.guard(ctx, fs, body)
	if err == nil {
		if res.Success {
			o.observe(fs, OutcomeSuccess)
		} else {
			o.observe(fs, OutcomeFailed)
		}
		return res, nil
	}

	var pe *PersistenceError
	if errors.As(err, &pe) {
		return o.persistenceFailure(fs, pe)
	}
	return o.recordFault(ctx, fs, err)
}

// guard is the recovery boundary. Panics come back as *ProcessCrashError.
func (o *Orchestrator) guard(ctx context.Context, fs *flowState, body flowBody) (res models.JobResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ProcessCrashError{Flow: fs.flow, Panic: p, Stack: debug.Stack()}
		}
	}()
	return body(ctx, fs)
}

func (o *Orchestrator) create(ctx context.Context, fs *flowState) (models.JobResult, error) {
	ws, err := o.workspaces.Build(ctx, fs.req.DeviceID, fs.req.InstanceName)
	if err != nil {
		return models.JobResult{}, &WorkspaceBuildError{DeviceID: fs.req.DeviceID, Err: err}
	}

	out := o.pipeline.Create(ctx, ws.Dir, fs.req.DeviceID, fs.req.InstanceName)
	if out.Err != nil {
		return models.JobResult{}, &ProcessCrashError{Flow: fs.flow, Err: out.Err}
	}

	res, err := o.finish(ctx, fs, out, models.StatusSuccess, models.StatusFailed)
	if err != nil || !res.Success {
		return res, err
	}

	if err := o.recorder.InsertResource(ctx, fs.logID, models.ResourceTypeEC2, fs.req.InstanceName, fs.req.DeviceID); err != nil {
		return models.JobResult{}, err
	}
	return res, nil
}

func (o *Orchestrator) destroy(ctx context.Context, fs *flowState) (models.JobResult, error) {
	ws, err := o.workspaces.Open(ctx, fs.req.DeviceID, fs.req.InstanceName)
	if err != nil {
		return models.JobResult{}, &WorkspaceBuildError{DeviceID: fs.req.DeviceID, Err: err}
	}

	destroy := o.pipeline.Destroy
	if ws.Fresh {
		destroy = o.pipeline.DestroyFresh
	}
	out := destroy(ctx, ws.Dir, fs.req.DeviceID, fs.req.InstanceName)
	if out.Err != nil {
		return models.JobResult{}, &ProcessCrashError{Flow: fs.flow, Err: out.Err}
	}
	return o.finish(ctx, fs, out, models.StatusDestroyed, models.StatusDestroyFailed)
}

// finish writes the terminal status for a pipeline that ran to completion.
func (o *Orchestrator) finish(ctx context.Context, fs *flowState, out terraform.Outcome, okStatus, failStatus string) (models.JobResult, error) {
	res := models.JobResult{
		Success:  out.Success,
		Output:   out.Log,
		Duration: out.Duration.Seconds(),
	}

	status := okStatus
	opts := []store.StatusOption{store.WithDuration(res.Duration)}
	if !out.Success {
		status = failStatus
		opts = append(opts, store.WithErrorMessage(out.Log))
		if step := out.Failed(); step != nil {
			execErr := &ProcessExecutionError{Step: step.Step, ExitCode: step.ExitCode, Log: out.Log, Err: step.Err}
			slog.Error("pipeline step failed", "flow", fs.flow, "device_id", fs.req.DeviceID, "error", execErr)
		}
	}

	if _, err := o.recorder.UpsertStatus(context.WithoutCancel(ctx), fs.requestID, fs.req.User, status, opts...); err != nil {
		return models.JobResult{}, &PersistenceError{Op: "write status", RequestID: fs.requestID, Status: status, Err: err}
	}
	return res, nil
}

// recordFault converts a fault caught at the boundary into the error status.
// The JobResult duration stays zero; the elapsed time is kept on the record.
func (o *Orchestrator) recordFault(ctx context.Context, fs *flowState, fault error) (models.JobResult, error) {
	prefix, status := "Unhandled error: ", models.StatusError
	if fs.flow == FlowDestroy {
		prefix, status = "Destroy crashed: ", models.StatusDestroyError
	}
	message := prefix + fault.Error()
	elapsed := o.now().Sub(fs.start).Seconds()

	attrs := []any{"flow", fs.flow, "device_id", fs.req.DeviceID, "request_id", fs.requestID,
		"elapsed_seconds", elapsed, "error", fault}
	var crash *ProcessCrashError
	if errors.As(fault, &crash) && crash.Stack != nil {
		attrs = append(attrs, "stack", string(crash.Stack))
	}
	slog.Error(message, attrs...)

	_, err := o.recorder.UpsertStatus(context.WithoutCancel(ctx), fs.requestID, fs.req.User, status,
		store.WithErrorMessage(message), store.WithDuration(elapsed))
	if err != nil {
		return o.persistenceFailure(fs, &PersistenceError{
			Op: "write status", RequestID: fs.requestID, Status: status,
			Err: fmt.Errorf("%w (while recording: %v)", err, fault),
		})
	}

	o.observe(fs, OutcomeError)
	return models.JobResult{Success: false, Output: message, Duration: 0}, nil
}

func (o *Orchestrator) persistenceFailure(fs *flowState, pe *PersistenceError) (models.JobResult, error) {
	slog.Error("job status could not be persisted", "flow", fs.flow, "device_id", fs.req.DeviceID,
		"request_id", fs.requestID, "error", pe)
	o.observe(fs, OutcomePersistence)
	return models.JobResult{}, pe
}

func (o *Orchestrator) observe(fs *flowState, outcome string) {
	if o.observer != nil {
		o.observer(fs.flow, outcome, o.now().Sub(fs.start))
	}
}
