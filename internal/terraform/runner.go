// Package terraform runs the terraform binary as a managed subprocess and
// composes the create and destroy pipelines from individual steps.
package terraform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultGracePeriod is how long a step gets to exit after SIGTERM before it
// is killed.
const DefaultGracePeriod = 10 * time.Second

// ErrStepTimeout is reported when a step outlives the runner's step timeout.
var ErrStepTimeout = errors.New("terraform step timed out")

// StepResult is the outcome of one terraform invocation. Exactly one of two
// shapes holds: Err is nil and ExitCode is the process exit status, or Err is
// set because the process could not be started, timed out, or was cancelled.
type StepResult struct {
	Step     string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
	Duration time.Duration
}

// OK reports whether the step ran and exited zero.
func (r StepResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Launched reports whether the process actually ran to an exit status. A
// timed out step counts as launched.
func (r StepResult) Launched() bool {
	return r.Err == nil || errors.Is(r.Err, ErrStepTimeout)
}

// StepObserver is notified after every step. It must not block.
type StepObserver func(step string, d time.Duration, ok bool)

// Runner executes terraform commands in a workspace directory.
type Runner struct {
	binary   string
	timeout  time.Duration
	grace    time.Duration
	observer StepObserver
}

type RunnerOption func(*Runner)

// WithStepTimeout bounds every step. Zero disables the bound.
func WithStepTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) { r.grace = d }
}

// WithStepObserver registers a hook called after each step.
func WithStepObserver(fn StepObserver) RunnerOption {
	return func(r *Runner) { r.observer = fn }
}

// NewRunner creates a Runner for the given terraform binary.
func NewRunner(binary string, opts ...RunnerOption) *Runner {
	if binary == "" {
		binary = "terraform"
	}
	r := &Runner{binary: binary, grace: DefaultGracePeriod}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the binary with args in dir and buffers its output until exit.
// Output that is not valid UTF-8 is repaired rather than rejected. On timeout
// or cancellation the process receives SIGTERM, then SIGKILL after the grace
// period.
func (r *Runner) Run(ctx context.Context, dir string, args ...string) StepResult {
	res := StepResult{Args: args, ExitCode: -1}
	if len(args) > 0 {
		res.Step = args[0]
	}

	stepCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(stepCtx, r.binary, args...)
	cmd.Dir = dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := slog.With("step", res.Step, "dir", dir)
	logger.Debug("starting terraform step", "args", args)

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = strings.ToValidUTF8(stdout.String(), "�")
	res.Stderr = strings.ToValidUTF8(stderr.String(), "�")

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case ctx.Err() != nil:
		res.Err = fmt.Errorf("terraform %s: %w", res.Step, ctx.Err())
	case stepCtx.Err() != nil:
		res.Err = fmt.Errorf("%w after %s", ErrStepTimeout, r.timeout)
		if state := cmd.ProcessState; state != nil {
			res.ExitCode = state.ExitCode()
		}
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.Err = fmt.Errorf("terraform %s: %w", res.Step, err)
	}

	if res.Err != nil {
		logger.Warn("terraform step did not complete", "duration_ms", res.Duration.Milliseconds(), "error", res.Err)
	} else {
		logger.Info("terraform step finished", "exit_code", res.ExitCode, "duration_ms", res.Duration.Milliseconds())
	}

	if r.observer != nil {
		r.observer(res.Step, res.Duration, res.OK())
	}
	return res
}
