package scheduler

import (
	"context"
	"time"

	"bbys_backend/internal/outbox"
	"bbys_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const (
	outboxPollInterval = 2 * time.Second
	outboxClaimBatch   = 50
)

// OutboxDispatcher claims due outbox records and hands each one to the
// worker as an outbox-due task.
type OutboxDispatcher struct {
	client *Client
	repo   outbox.Repository
	log    *logger.Logger
}

// NewOutboxDispatcher enqueues through client, which the caller closes.
func NewOutboxDispatcher(client *Client, repo outbox.Repository, log *logger.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{client: client, repo: repo, log: log}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(outboxPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := d.DispatchDue(ctx); err != nil {
			d.log.Warn("outbox claim failed", "error", err)
		}
	}
}

// DispatchDue runs one claim pass and returns the number of records enqueued.
// A record that cannot be enqueued goes back to pending.
func (d *OutboxDispatcher) DispatchDue(ctx context.Context) (int, error) {
	records, err := d.repo.ClaimPending(ctx, outboxClaimBatch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, rec := range records {
		task, err := NewOutboxDueTask(OutboxDuePayload{OutboxID: rec.ID.String()})
		if err == nil {
			err = d.client.enqueue(ctx, task, asynq.ProcessAt(rec.RunAt), asynq.MaxRetry(outbox.MaxAttempts))
		}
		if err != nil {
			msg := err.Error()
			if markErr := d.repo.MarkPending(ctx, rec.ID, &msg); markErr != nil {
				d.log.DatabaseError("outbox_mark_pending", markErr)
			}
			continue
		}
		enqueued++
	}
	return enqueued, nil
}
