package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/kiranshivaraju/provisioner/pkg/models"
)

// NoJobDeadline is the deadline given to jobs without a timeout. asynq
// cancels a task with neither a timeout nor a deadline after 30 minutes.
var NoJobDeadline = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Client enqueues jobs and answers job status queries.
type Client struct {
	client     *asynq.Client
	inspector  *asynq.Inspector
	queue      string
	retention  time.Duration
	jobTimeout time.Duration
}

type ClientOption func(*Client)

// WithJobTimeout bounds each job's total run time. Zero leaves jobs unbounded.
func WithJobTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.jobTimeout = d }
}

// NewClient connects to the Redis instance at redisURL.
func NewClient(redisURL, queueName string, retention time.Duration, opts ...ClientOption) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if queueName == "" {
		queueName = "default"
	}
	c := &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     queueName,
		retention: retention,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Close releases the Redis connections.
func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// EnqueueCreate queues a create job and returns its id.
func (c *Client) EnqueueCreate(ctx context.Context, req models.ProvisionRequest) (string, error) {
	task, err := NewCreateTask(req)
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task, req)
}

// EnqueueDestroy queues a destroy job and returns its id.
func (c *Client) EnqueueDestroy(ctx context.Context, req models.ProvisionRequest) (string, error) {
	task, err := NewDestroyTask(req)
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task, req)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, req models.ProvisionRequest) (string, error) {
	opts := []asynq.Option{asynq.Queue(c.queue)}
	if c.retention > 0 {
		opts = append(opts, asynq.Retention(c.retention))
	}
	if c.jobTimeout > 0 {
		opts = append(opts, asynq.Timeout(c.jobTimeout))
	} else {
		opts = append(opts, asynq.Deadline(NoJobDeadline))
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	slog.Info("job enqueued", "job_id", info.ID, "type", task.Type(), "device_id", req.DeviceID)
	return info.ID, nil
}

// JobStatus reports the queue state of jobID and, once it has one, its
// result. Unknown ids report not_found rather than an error.
func (c *Client) JobStatus(_ context.Context, jobID string) (models.JobStatus, error) {
	info, err := c.inspector.GetTaskInfo(c.queue, jobID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return models.JobStatus{Status: models.JobStateNotFound}, nil
	}
	if err != nil {
		return models.JobStatus{}, fmt.Errorf("get task %s: %w", jobID, err)
	}

	st := models.JobStatus{Status: JobState(info.State)}
	if len(info.Result) > 0 {
		var res models.JobResult
		if err := json.Unmarshal(info.Result, &res); err != nil {
			return models.JobStatus{}, fmt.Errorf("decode result of task %s: %w", jobID, err)
		}
		st.Result = &res
	}
	return st, nil
}

// JobState maps an asynq task state onto the public job states.
func JobState(s asynq.TaskState) string {
	switch s {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		return models.JobStateQueued
	case asynq.TaskStateActive:
		return models.JobStateRunning
	case asynq.TaskStateCompleted:
		return models.JobStateFinished
	case asynq.TaskStateArchived:
		return models.JobStateFailed
	default:
		return models.JobStateNotFound
	}
}
