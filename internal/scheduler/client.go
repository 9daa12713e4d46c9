package scheduler

import (
	"context"
	"fmt"

	"bbys_backend/internal/notifications"
	"bbys_backend/internal/salesforce"
	"bbys_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const defaultMaxRetry = 5

// Client enqueues unit-of-work tasks for the worker process. It serves as
// the notification, CRM push, CRM sync and status recompute queue.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := asynqRedis(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt), queue: queueName(cfg)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// enqueue applies the queue and retry defaults; opts override them.
func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	if c == nil || c.client == nil {
		return nil
	}
	opts = append([]asynq.Option{asynq.Queue(c.queue), asynq.MaxRetry(defaultMaxRetry)}, opts...)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// EnqueueDispatch queues one notification send.
func (c *Client) EnqueueDispatch(ctx context.Context, req notifications.Request) error {
	task, err := NewEmailTask(req)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

// EnqueueRetry queues a re-evaluation of the application's unsent notifications.
func (c *Client) EnqueueRetry(ctx context.Context, applicationID uuid.UUID) error {
	task, err := NewRetryEmailsTask(ApplicationPayload{ApplicationID: applicationID.String()})
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) EnqueuePush(ctx context.Context, job salesforce.Job) error {
	task, err := NewPushTask(job)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

// EnqueueSync queues one pushed-back CRM record for merging.
func (c *Client) EnqueueSync(ctx context.Context, recordType string, record []byte) error {
	if !salesforce.ValidRecordType(recordType) {
		return fmt.Errorf("unknown record type %q", recordType)
	}
	task, err := NewSyncTask(SyncPayload{RecordType: recordType, Record: record})
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) EnqueueRecompute(ctx context.Context, applicationID uuid.UUID) error {
	task, err := NewUpdateAppStatusTask(ApplicationPayload{ApplicationID: applicationID.String()})
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

var (
	_ notifications.Enqueuer = (*Client)(nil)
	_ salesforce.Queue       = (*Client)(nil)
	_ salesforce.SyncQueue   = (*Client)(nil)
)
