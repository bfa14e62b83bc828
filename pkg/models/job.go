package models

// JobResult is what a create or destroy flow hands back to its caller. It is
// not persisted itself; its fields feed the terminal RequestRecord write and
// are stored as the queue task result so clients can poll for it.
type JobResult struct {
	Success  bool    `json:"success"`
	Output   string  `json:"output"`
	Duration float64 `json:"duration"`
}

// Queue-level job states reported by the job status query.
const (
	JobStateQueued   = "queued"
	JobStateRunning  = "running"
	JobStateFinished = "finished"
	JobStateFailed   = "failed"
	JobStateNotFound = "not_found"
)

// JobStatus is the answer to a job status query.
type JobStatus struct {
	Status string     `json:"status"`
	Result *JobResult `json:"result"`
}

// ProvisionRequest is the enqueue payload shared by create and destroy.
type ProvisionRequest struct {
	DeviceID     string `json:"device_id"`
	InstanceName string `json:"instance_name"`
	User         string `json:"user"`
}
