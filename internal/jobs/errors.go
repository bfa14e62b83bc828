package jobs

import "fmt"

// WorkspaceBuildError reports a file-system failure while generating the
// terraform workspace.
type WorkspaceBuildError struct {
	DeviceID string
	Err      error
}

func (e *WorkspaceBuildError) Error() string {
	return fmt.Sprintf("build workspace for device %s: %v", e.DeviceID, e.Err)
}

func (e *WorkspaceBuildError) Unwrap() error { return e.Err }

// ProcessExecutionError reports a pipeline step that ran and failed. The
// flows turn it into a failed status; it is never returned to callers.
type ProcessExecutionError struct {
	Step     string
	ExitCode int
	Log      string
	Err      error
}

func (e *ProcessExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("terraform %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("terraform %s exited with code %d", e.Step, e.ExitCode)
}

func (e *ProcessExecutionError) Unwrap() error { return e.Err }

// ProcessCrashError is any unexpected fault inside a flow, including a
// recovered panic. Stack is set only for panics.
type ProcessCrashError struct {
	Flow  string
	Err   error
	Panic any
	Stack []byte
}

func (e *ProcessCrashError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s flow panicked: %v", e.Flow, e.Panic)
	}
	return fmt.Sprintf("%s flow crashed: %v", e.Flow, e.Err)
}

func (e *ProcessCrashError) Unwrap() error { return e.Err }

// PersistenceError reports a failed durable write that the flow could not
// record a status for.
type PersistenceError struct {
	Op        string
	RequestID int64
	Status    string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s for request %d (status %s): %v", e.Op, e.RequestID, e.Status, e.Err)
	}
	return fmt.Sprintf("%s for request %d: %v", e.Op, e.RequestID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
