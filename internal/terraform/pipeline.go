package terraform

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Outcome is the result of a whole pipeline. Duration runs from pipeline
// start to the end of the decisive step; the best-effort output step after a
// successful apply is not included. Err is set only when a step could not be
// run at all, in which case Success is false and the caller should treat the
// pipeline as crashed rather than failed.
type Outcome struct {
	Success  bool
	Log      string
	Duration time.Duration
	Steps    []StepResult
	Err      error
}

// Failed returns the step that decided a failed outcome, or nil.
func (o Outcome) Failed() *StepResult {
	if o.Success || len(o.Steps) == 0 {
		return nil
	}
	return &o.Steps[len(o.Steps)-1]
}

// Pipelines drives the create and destroy step sequences through a Runner.
type Pipelines struct {
	runner *Runner
}

// NewPipelines wraps runner.
func NewPipelines(runner *Runner) *Pipelines {
	return &Pipelines{runner: runner}
}

// InitArgs and friends are the exact argument lists handed to terraform.
func InitArgs() []string { return []string{"init", "-input=false"} }

func ApplyArgs(deviceID, instanceName string) []string {
	return []string{"apply", "-auto-approve", "-input=false",
		"-var", "device_id=" + deviceID,
		"-var", "instance_name=" + instanceName}
}

func OutputArgs() []string { return []string{"output", "-json"} }

func DestroyArgs(deviceID, instanceName string) []string {
	return []string{"destroy", "-auto-approve", "-input=false",
		"-var", "device_id=" + deviceID,
		"-var", "instance_name=" + instanceName}
}

type pipelineRun struct {
	start time.Time
	logs  []string
	out   Outcome
}

func newPipelineRun() *pipelineRun {
	return &pipelineRun{start: time.Now()}
}

// record appends a step and reports whether the pipeline may continue.
func (p *pipelineRun) record(res StepResult) bool {
	p.out.Steps = append(p.out.Steps, res)
	p.logs = append(p.logs, res.Stdout, res.Stderr)
	if res.Err != nil {
		p.logs = append(p.logs, res.Err.Error())
		if !res.Launched() {
			p.out.Err = res.Err
		}
	}
	return res.OK()
}

func (p *pipelineRun) finish(success bool, decisiveEnd time.Time) Outcome {
	p.out.Success = success
	p.out.Duration = decisiveEnd.Sub(p.start)
	p.out.Log = strings.Join(p.logs, "\n")
	return p.out
}

// Create runs init, then apply, then a best-effort output. A nonzero init
// stops the pipeline before apply is attempted.
func (pl *Pipelines) Create(ctx context.Context, dir, deviceID, instanceName string) Outcome {
	run := newPipelineRun()
	slog.Info("starting terraform init+apply", "device_id", deviceID)

	if !run.record(pl.runner.Run(ctx, dir, InitArgs()...)) {
		slog.Error("terraform init failed", "device_id", deviceID)
		return run.finish(false, time.Now())
	}

	ok := run.record(pl.runner.Run(ctx, dir, ApplyArgs(deviceID, instanceName)...))
	decisive := time.Now()
	if !ok {
		slog.Error("terraform apply failed", "device_id", deviceID)
		return run.finish(false, decisive)
	}

	out := pl.runner.Run(ctx, dir, OutputArgs()...)
	run.logs = append(run.logs, out.Stdout, out.Stderr)
	if !out.OK() {
		slog.Warn("terraform output failed", "device_id", deviceID, "exit_code", out.ExitCode, "error", out.Err)
	}

	slog.Info("terraform apply completed", "device_id", deviceID)
	return run.finish(true, decisive)
}

// Destroy runs a single destroy step.
func (pl *Pipelines) Destroy(ctx context.Context, dir, deviceID, instanceName string) Outcome {
	run := newPipelineRun()
	slog.Warn("destroying terraform resources", "device_id", deviceID)

	ok := run.record(pl.runner.Run(ctx, dir, DestroyArgs(deviceID, instanceName)...))
	if !ok {
		slog.Error("terraform destroy failed", "device_id", deviceID)
	}
	return run.finish(ok, time.Now())
}

// DestroyFresh runs init and then destroy, for a workspace that was just
// regenerated and has no provider plugins or backend state configured.
func (pl *Pipelines) DestroyFresh(ctx context.Context, dir, deviceID, instanceName string) Outcome {
	run := newPipelineRun()
	slog.Warn("destroying terraform resources from a regenerated workspace", "device_id", deviceID)

	if !run.record(pl.runner.Run(ctx, dir, InitArgs()...)) {
		slog.Error("terraform init failed", "device_id", deviceID)
		return run.finish(false, time.Now())
	}

	ok := run.record(pl.runner.Run(ctx, dir, DestroyArgs(deviceID, instanceName)...))
	if !ok {
		slog.Error("terraform destroy failed", "device_id", deviceID)
	}
	return run.finish(ok, time.Now())
}
