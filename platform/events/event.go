// Package events is the in-process event plumbing. Domain events are written
// to the outbox with the change that caused them and delivered here after
// commit, at least once, so handlers must tolerate repeats.
package events

import (
	"context"
	"time"
)

// Event is a named fact stamped with the instant it happened.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the instant; embed it in concrete events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps the current UTC instant.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// BaseEventAt stamps t, so events share the clock of the unit of work.
func BaseEventAt(t time.Time) BaseEvent {
	return BaseEvent{Timestamp: t.UTC()}
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscriber is the side of the bus that components register handlers on.
type Subscriber interface {
	Subscribe(eventName string, handler Handler)
}

// Bus delivers events to the handlers subscribed to their name.
type Bus interface {
	Subscriber
	// Publish runs the handlers in the background; failures are only logged.
	Publish(ctx context.Context, event Event)
	// PublishSync runs every handler and reports their joined errors. The
	// outbox relay uses it to decide whether a record is done.
	PublishSync(ctx context.Context, event Event) error
}
