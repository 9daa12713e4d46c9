package tasks

import (
	"context"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/events"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/config"
	"bbys_backend/platform/logger"

	"github.com/google/uuid"
)

// Result reports what a recompute wrote.
type Result struct {
	Updated   []domain.TaskName
	Completed []domain.TaskName
	Stage     *domain.ApplicationStage
}

// Changed reports whether anything was written.
func (r Result) Changed() bool {
	return len(r.Updated) > 0 || r.Stage != nil
}

type Engine struct {
	machine *lifecycle.Machine
	rules   Rules
	log     *logger.Logger
}

func NewEngine(machine *lifecycle.Machine, cfg config.TaskConfig, log *logger.Logger) *Engine {
	return &Engine{
		machine: machine,
		rules:   NewRules(cfg.GetMortgageTaskStates()),
		log:     log,
	}
}

// Recompute derives the tasks of an application in its own unit of work.
func (e *Engine) Recompute(ctx context.Context, applicationID uuid.UUID) (Result, error) {
	var res Result
	err := e.machine.Transact(ctx, lifecycle.SourceTasks, func(tx *lifecycle.Tx) error {
		var err error
		res, err = e.RecomputeTx(ctx, tx, applicationID)
		return err
	})
	return res, err
}

// RecomputeTx derives the tasks inside an open unit of work. Running it
// twice without an intervening change writes nothing the second time.
func (e *Engine) RecomputeTx(ctx context.Context, tx *lifecycle.Tx, applicationID uuid.UUID) (Result, error) {
	var res Result
	app, err := tx.LockApplication(ctx, applicationID)
	if err != nil {
		return res, err
	}
	graph, err := store.LoadGraphFor(ctx, tx, app)
	if err != nil {
		return res, err
	}

	stored := make(map[domain.TaskName]domain.TaskStatus, len(graph.Tasks))
	for _, t := range graph.Tasks {
		stored[t.Name] = t
	}

	allDone := true
	for _, want := range e.rules.Compute(graph) {
		current, exists := stored[want.Name]
		if want.Unknown {
			e.log.Warn("unknown blend status, mortgage task unchanged",
				"application_id", applicationID, "blend_status", domain.Deref(app.BlendStatus))
			if !exists {
				want.Status = domain.TaskNotStarted
			} else {
				want.Status = current.Status
			}
		}
		if Gating(want.Name) && want.Status != domain.TaskCompleted {
			allDone = false
		}
		if exists && current.Status == want.Status && current.IsActionable == want.IsActionable &&
			domain.Deref(current.Scope) == domain.Deref(want.Scope) {
			continue
		}
		if err := tx.UpsertTaskStatus(ctx, domain.TaskStatus{
			ApplicationID: applicationID,
			Name:          want.Name,
			Status:        want.Status,
			IsActionable:  want.IsActionable,
			Scope:         want.Scope,
		}); err != nil {
			return res, err
		}
		res.Updated = append(res.Updated, want.Name)
		if want.Status == domain.TaskCompleted && (!exists || current.Status != domain.TaskCompleted) {
			res.Completed = append(res.Completed, want.Name)
			if err := tx.Emit(ctx, events.TaskCompleted{
				BaseEvent:     events.BaseEventAt(e.machine.Now()),
				ApplicationID: applicationID,
				Task:          want.Name,
			}); err != nil {
				return res, err
			}
		}
	}

	next := app.Stage
	switch {
	case app.Stage == domain.StageIncomplete && allDone:
		next = domain.StageComplete
	case app.Stage == domain.StageComplete && !allDone:
		next = domain.StageIncomplete
	}
	if next != app.Stage {
		app.Stage = next
		if _, err := tx.UpdateApplication(ctx, app); err != nil {
			return res, err
		}
		res.Stage = &next
	}
	return res, nil
}

// RegisterHandlers subscribes the engine to entity changes.
func (e *Engine) RegisterHandlers(bus events.Subscriber) {
	bus.Subscribe(events.NameEntityChanged, e)
}

// Handle recomputes the tasks of the application an entity change belongs to.
func (e *Engine) Handle(ctx context.Context, event events.Event) error {
	changed, ok := event.(events.EntityChanged)
	if !ok || changed.ApplicationID == nil {
		return nil
	}
	res, err := e.Recompute(ctx, *changed.ApplicationID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if res.Changed() {
		e.log.Debug("tasks recomputed", "application_id", *changed.ApplicationID,
			"updated", len(res.Updated), "stage_changed", res.Stage != nil)
	}
	return nil
}
