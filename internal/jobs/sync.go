package jobs

import (
	"context"
	"runtime/debug"

	"github.com/kiranshivaraju/provisioner/pkg/models"
)

// FlowFunc is the shape of Orchestrator.Create and Orchestrator.Destroy.
type FlowFunc func(ctx context.Context, req models.ProvisionRequest) (models.JobResult, error)

type flowReturn struct {
	res models.JobResult
	err error
}

// RunSync runs flow on its own goroutine and blocks until it has fully
// completed, whatever the state of ctx. A panic that escapes the flow is
// returned as a *ProcessCrashError instead of taking down the worker.
func RunSync(ctx context.Context, flow FlowFunc, req models.ProvisionRequest) (models.JobResult, error) {
	done := make(chan flowReturn, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- flowReturn{err: &ProcessCrashError{Flow: "sync", Panic: p, Stack: debug.Stack()}}
			}
		}()
		res, err := flow(ctx, req)
		done <- flowReturn{res: res, err: err}
	}()

	r := <-done
	return r.res, r.err
}
