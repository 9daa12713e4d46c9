package scheduler

import (
	"context"
	"errors"
	"fmt"

	"bbys_backend/internal/notifications"
	"bbys_backend/internal/outbox"
	"bbys_backend/internal/salesforce"
	"bbys_backend/internal/tasks"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/config"
	"bbys_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/tidwall/gjson"
)

// Handlers are the collaborators the worker runs tasks against.
type Handlers struct {
	Dispatcher *notifications.Dispatcher
	Sweeper    *notifications.Sweeper
	Pusher     *salesforce.Pusher
	Merger     *salesforce.Merger
	Engine     *tasks.Engine
	Relay      *outbox.Relay
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, h Handlers, log *logger.Logger) (*Worker, error) {
	opt, err := asynqRedis(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", "task", task.Type(), "error", err)
		}),
	})

	return &Worker{server: server, mux: NewMux(h, log), log: log}, nil
}

// NewMux routes every task type to its handler.
func NewMux(h Handlers, log *logger.Logger) *asynq.ServeMux {
	r := &runner{h: h, log: log}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskQueueEmail, r.handleEmail)
	mux.HandleFunc(TaskRegisteredClientWelcome, r.handleEmail)
	mux.HandleFunc(TaskRetryEmails, r.handleRetryEmails)
	mux.HandleFunc(TaskDailySweep, r.handleDailySweep)
	mux.HandleFunc(TaskHourlySweep, r.handleHourlySweep)
	mux.HandleFunc(TaskPushToSalesforce, r.handlePush)
	for _, recordType := range []string{
		salesforce.RecordAccount,
		salesforce.RecordOldHome,
		salesforce.RecordQuote,
		salesforce.RecordTransaction,
		salesforce.RecordLoan,
		salesforce.RecordOffer,
	} {
		mux.HandleFunc(TaskSyncFromSalesforce(recordType), r.handleSync)
	}
	mux.HandleFunc(TaskUpdateAppStatus, r.handleUpdateAppStatus)
	mux.HandleFunc(TaskOutboxDue, r.handleOutboxDue)
	return mux
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

type runner struct {
	h   Handlers
	log *logger.Logger
}

// permanent stops asynq from retrying a task that cannot succeed.
func permanent(err error) error {
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}

func parseApplicationID(task *asynq.Task) (uuid.UUID, error) {
	payload, err := parse[ApplicationPayload](task)
	if err != nil {
		return uuid.Nil, permanent(err)
	}
	id, err := uuid.Parse(payload.ApplicationID)
	if err != nil {
		return uuid.Nil, permanent(err)
	}
	return id, nil
}

func (r *runner) handleEmail(ctx context.Context, task *asynq.Task) error {
	req, err := parse[notifications.Request](task)
	if err != nil {
		return permanent(err)
	}
	ctx = context.WithValue(ctx, logger.ApplicationIDKey, req.ApplicationID.String())
	outcome, err := r.h.Dispatcher.Dispatch(ctx, req)
	if apperr.Is(err, apperr.KindBadRequest) {
		return permanent(err)
	}
	if err != nil {
		return err
	}
	r.log.WithContext(ctx).Debug("notification task done", "notification", req.Name, "outcome", outcome)
	return nil
}

func (r *runner) handleRetryEmails(ctx context.Context, task *asynq.Task) error {
	id, err := parseApplicationID(task)
	if err != nil {
		return err
	}
	return r.h.Dispatcher.RetryPending(ctx, id)
}

func (r *runner) handleDailySweep(ctx context.Context, _ *asynq.Task) error {
	res, err := r.h.Sweeper.Daily(ctx)
	if err != nil {
		return err
	}
	r.log.Info("daily sweep done", "evaluated", res.Evaluated, "outcomes", res.Outcomes)
	return nil
}

func (r *runner) handleHourlySweep(ctx context.Context, _ *asynq.Task) error {
	res, err := r.h.Sweeper.Hourly(ctx)
	if err != nil {
		return err
	}
	r.log.Info("hourly sweep done", "evaluated", res.Evaluated, "outcomes", res.Outcomes)
	return nil
}

func (r *runner) handlePush(ctx context.Context, task *asynq.Task) error {
	job, err := parse[salesforce.Job](task)
	if err != nil {
		return permanent(err)
	}
	if err := r.h.Pusher.Push(ctx, job); err != nil {
		if auditErr := r.h.Pusher.RecordFailure(ctx, job, err); auditErr != nil {
			r.log.DatabaseError("record_push_failure", auditErr)
		}
		return err
	}
	return nil
}

// handleSync merges one pushed-back record. Skipped records are done.
func (r *runner) handleSync(ctx context.Context, task *asynq.Task) error {
	payload, err := parse[SyncPayload](task)
	if err != nil {
		return permanent(err)
	}
	err = r.h.Merger.MergeOrSync(ctx, payload.RecordType, gjson.ParseBytes(payload.Record))
	switch {
	case err == nil, errors.Is(err, salesforce.ErrSkipped):
		return nil
	case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindBadRequest):
		return permanent(err)
	}
	return err
}

func (r *runner) handleUpdateAppStatus(ctx context.Context, task *asynq.Task) error {
	id, err := parseApplicationID(task)
	if err != nil {
		return err
	}
	_, err = r.h.Engine.Recompute(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	return err
}

func (r *runner) handleOutboxDue(ctx context.Context, task *asynq.Task) error {
	payload, err := parse[OutboxDuePayload](task)
	if err != nil {
		return permanent(err)
	}
	id, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return permanent(err)
	}
	return r.h.Relay.Deliver(ctx, id)
}
