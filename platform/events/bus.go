package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bbys_backend/platform/logger"
)

// InMemoryBus dispatches events to handlers registered in this process.
// Handlers for one event run in subscription order.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for eventName.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

func (b *InMemoryBus) handlersFor(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers[name]))
	copy(out, b.handlers[name])
	return out
}

// Publish runs the handlers in a goroutine and logs failures.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	handlers := b.handlersFor(event.EventName())
	if len(handlers) == 0 {
		return
	}
	go func() {
		ctx := context.WithoutCancel(ctx)
		if err := runHandlers(ctx, handlers, event); err != nil && b.log != nil {
			b.log.Error("event handler failed", "event", event.EventName(), "error", err)
		}
	}()
}

// PublishSync runs every handler and joins their errors.
// A failing handler does not stop the remaining ones.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	return runHandlers(ctx, b.handlersFor(event.EventName()), event)
}

func runHandlers(ctx context.Context, handlers []Handler, event Event) error {
	var errs []error
	for _, h := range handlers {
		if err := safeHandle(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeHandle(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic on %s: %v", event.EventName(), r)
		}
	}()
	return h.Handle(ctx, event)
}

var _ Bus = (*InMemoryBus)(nil)
