// Package app composes the core of the service: the state machine, the task
// engine, the notification dispatcher, the CRM sync controller and the outbox
// relay that connects them through the event bus. Both commands and the
// end-to-end tests build the same Core.
package app

import (
	"context"
	"fmt"
	"time"

	"bbys_backend/internal/applications"
	"bbys_backend/internal/events"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/locks"
	"bbys_backend/internal/mailer"
	"bbys_backend/internal/notifications"
	"bbys_backend/internal/outbox"
	"bbys_backend/internal/salesforce"
	"bbys_backend/internal/scheduler"
	"bbys_backend/internal/store"
	"bbys_backend/internal/tasks"
	"bbys_backend/platform/config"
	"bbys_backend/platform/logger"
	"bbys_backend/platform/validator"
)

// Options are the collaborators of the core. Queues left nil run their work
// inline in the caller's goroutine.
type Options struct {
	Store        store.Store
	Notification config.NotificationConfig
	Tasks        config.TaskConfig
	Sink         mailer.Sink
	Locker       locks.Locker
	// CRM is nil when the CRM is not configured; nothing is pushed then
	// unless PushQueue hands the jobs to another process.
	CRM      salesforce.CRM
	Clock    func() time.Time
	Location *time.Location

	NotificationQueue notifications.Enqueuer
	PushQueue         salesforce.Queue
	SyncQueue         salesforce.SyncQueue
	RecomputeQueue    scheduler.RecomputeQueue
}

// Core is the composed service.
type Core struct {
	Store        store.Store
	Machine      *lifecycle.Machine
	Bus          *events.InMemoryBus
	Engine       *tasks.Engine
	Dispatcher   *notifications.Dispatcher
	Sweeper      *notifications.Sweeper
	Pusher       *salesforce.Pusher
	Merger       *salesforce.Merger
	Relay        *outbox.Relay
	Validator    *validator.Validator
	Applications *applications.Module
}

// New wires the core and seeds the notification catalog.
func New(ctx context.Context, opts Options, log *logger.Logger) (*Core, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	if opts.Sink == nil {
		opts.Sink = mailer.NewNoopSink(log)
	}
	if opts.Locker == nil {
		opts.Locker = locks.NewMemoryLocker()
	}

	var (
		machineOpts    []lifecycle.Option
		dispatcherOpts []notifications.Option
		pusherOpts     []salesforce.PusherOption
	)
	if opts.Clock != nil {
		machineOpts = append(machineOpts, lifecycle.WithClock(opts.Clock))
		dispatcherOpts = append(dispatcherOpts, notifications.WithClock(opts.Clock))
		pusherOpts = append(pusherOpts, salesforce.WithPushClock(opts.Clock))
	}
	if opts.Location != nil {
		dispatcherOpts = append(dispatcherOpts, notifications.WithLocation(opts.Location))
	}

	c := &Core{Store: opts.Store, Validator: validator.New()}
	c.Machine = lifecycle.NewMachine(opts.Store, log, machineOpts...)
	c.Bus = events.NewInMemoryBus(log)
	c.Engine = tasks.NewEngine(c.Machine, opts.Tasks, log)
	c.Dispatcher = notifications.NewDispatcher(opts.Store, opts.Sink, opts.Locker, opts.Notification, log, dispatcherOpts...)
	c.Sweeper = notifications.NewSweeper(c.Dispatcher)
	c.Pusher = salesforce.NewPusher(opts.Store, opts.CRM, log, pusherOpts...)
	c.Merger = salesforce.NewMerger(c.Machine, c.Engine, opts.CRM, log)
	c.Relay = outbox.NewRelay(opts.Store, c.Bus, log)

	// Task recompute on entity changes.
	if opts.RecomputeQueue != nil {
		scheduler.NewStatusTriggers(opts.RecomputeQueue).RegisterHandlers(c.Bus)
	} else {
		c.Engine.RegisterHandlers(c.Bus)
	}

	notifyQueue := opts.NotificationQueue
	if notifyQueue == nil {
		notifyQueue = notifications.Inline{Dispatcher: c.Dispatcher}
	}
	notifications.NewTriggers(opts.Store, notifyQueue, log).RegisterHandlers(c.Bus)

	pushQueue := opts.PushQueue
	if pushQueue == nil && opts.CRM != nil {
		pushQueue = salesforce.Inline{Pusher: c.Pusher}
	}
	if pushQueue != nil {
		salesforce.NewTriggers(pushQueue, log).RegisterHandlers(c.Bus)
	} else {
		log.Warn("salesforce not configured; outbound push disabled")
	}

	syncQueue := opts.SyncQueue
	if syncQueue == nil {
		syncQueue = salesforce.InlineSync{Merger: c.Merger}
	}
	c.Applications = applications.NewModule(c.Machine, c.Engine, syncQueue, c.Validator, log)

	seeded, err := notifications.Seed(ctx, opts.Store)
	if err != nil {
		return nil, fmt.Errorf("seed notifications: %w", err)
	}
	log.Debug("notification catalog seeded", "inserted", seeded)

	return c, nil
}

// Drain delivers every pending outbox record through the bus.
func (c *Core) Drain(ctx context.Context) (int, error) {
	return c.Relay.Drain(ctx)
}

// RunRelay drains the outbox every interval until ctx is done. Processes
// without a worker use it in place of the outbox dispatcher.
func (c *Core) RunRelay(ctx context.Context, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := c.Drain(ctx); err != nil {
				log.Error("outbox drain failed", "error", err)
			} else if n > 0 {
				log.Debug("outbox drained", "delivered", n)
			}
		}
	}
}

// Handlers are the worker collaborators backed by this core.
func (c *Core) Handlers() scheduler.Handlers {
	return scheduler.Handlers{
		Dispatcher: c.Dispatcher,
		Sweeper:    c.Sweeper,
		Pusher:     c.Pusher,
		Merger:     c.Merger,
		Engine:     c.Engine,
		Relay:      c.Relay,
	}
}
