package scheduler

import (
	"context"

	"bbys_backend/internal/events"

	"github.com/google/uuid"
)

// RecomputeQueue queues a task recompute of one application.
type RecomputeQueue interface {
	EnqueueRecompute(ctx context.Context, applicationID uuid.UUID) error
}

// StatusTriggers defers the task recompute that follows an entity change to
// an update_app_status task. It replaces the engine's own subscription in
// processes that have a queue.
type StatusTriggers struct {
	queue RecomputeQueue
}

func NewStatusTriggers(queue RecomputeQueue) *StatusTriggers {
	return &StatusTriggers{queue: queue}
}

func (t *StatusTriggers) RegisterHandlers(bus events.Subscriber) {
	bus.Subscribe(events.NameEntityChanged, t)
}

func (t *StatusTriggers) Handle(ctx context.Context, event events.Event) error {
	changed, ok := event.(events.EntityChanged)
	if !ok || changed.ApplicationID == nil {
		return nil
	}
	return t.queue.EnqueueRecompute(ctx, *changed.ApplicationID)
}
