package tasks

import (
	"context"
	"testing"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/events"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/store/memory"
	"bbys_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type taskConfig struct{ states []string }

func (c taskConfig) GetMortgageTaskStates() []string { return c.states }

type fixture struct {
	store   *memory.Store
	machine *lifecycle.Machine
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	st := memory.New(memory.WithClock(clock))
	log := logger.New("development")
	m := lifecycle.NewMachine(st, log, lifecycle.WithClock(clock))
	return &fixture{store: st, machine: m, engine: NewEngine(m, taskConfig{states: []string{"co"}}, log)}
}

// seed creates a buy-sell application with a current home.
func (f *fixture) seed(t *testing.T) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := f.machine.Transact(context.Background(), lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		c, err := tx.InsertCustomer(context.Background(), domain.Customer{Email: "brandon@example.com"})
		if err != nil {
			return err
		}
		home, err := tx.InsertCurrentHome(context.Background(), domain.CurrentHome{})
		if err != nil {
			return err
		}
		app, err := tx.InsertApplication(context.Background(), domain.Application{
			CustomerID:      c.ID,
			Stage:           domain.StageIncomplete,
			ProductOffering: domain.ProductBuySell,
			CurrentHomeID:   &home.ID,
		})
		id = app.ID
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func (f *fixture) edit(t *testing.T, id uuid.UUID, fn func(tx *lifecycle.Tx, app *domain.Application) error) {
	t.Helper()
	err := f.machine.Transact(context.Background(), lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		app, err := tx.LockApplication(context.Background(), id)
		if err != nil {
			return err
		}
		if err := fn(tx, &app); err != nil {
			return err
		}
		_, err = tx.UpdateApplication(context.Background(), app)
		return err
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
}

func (f *fixture) task(t *testing.T, id uuid.UUID, name domain.TaskName) (domain.TaskStatus, bool) {
	t.Helper()
	list, err := f.store.ListTaskStatuses(context.Background(), id)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	for _, ts := range list {
		if ts.Name == name {
			return ts, true
		}
	}
	return domain.TaskStatus{}, false
}

func completeAll(tx *lifecycle.Tx, app *domain.Application) error {
	ctx := context.Background()
	home, err := tx.GetCurrentHome(ctx, *app.CurrentHomeID)
	if err != nil {
		return err
	}
	home.CustomerValueOpinion = decimal.NewNullDecimal(decimal.NewFromInt(400000))
	home.Images = []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"}
	if _, err := tx.UpdateCurrentHome(ctx, home); err != nil {
		return err
	}
	agent, err := tx.InsertAgent(ctx, domain.Agent{Name: "Jamie Agent", Email: domain.Ptr("jamie@realty.example")})
	if err != nil {
		return err
	}
	app.BuyingAgentID = &agent.ID
	app.MinPrice = decimal.NewNullDecimal(decimal.NewFromInt(400000))
	app.MaxPrice = decimal.NewNullDecimal(decimal.NewFromInt(550000))
	app.MoveIn = domain.Ptr("0-3 months")
	app.DisclosuresAcknowledgedAt = domain.Ptr(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	return nil
}

func TestPhotoUploadProgress(t *testing.T) {
	cases := []struct {
		images int
		want   domain.TaskState
	}{
		{0, domain.TaskNotStarted},
		{3, domain.TaskInProgress},
		{5, domain.TaskCompleted},
	}
	for _, tc := range cases {
		g := &domain.ApplicationGraph{
			Application: domain.Application{ProductOffering: domain.ProductBuySell},
			CurrentHome: &domain.CurrentHome{Images: make([]string, tc.images)},
		}
		if got := photoUpload(g).Status; got != tc.want {
			t.Errorf("%d images: got %s want %s", tc.images, got, tc.want)
		}
	}
}

func TestBuyOnlyWithoutHomeSkipsHomeTasks(t *testing.T) {
	g := &domain.ApplicationGraph{Application: domain.Application{ProductOffering: domain.ProductBuyOnly}}
	for _, d := range NewRules(nil).Compute(g) {
		if d.Name == domain.TaskPhotoUpload || d.Name == domain.TaskExistingProperty {
			t.Fatalf("unexpected task %s", d.Name)
		}
	}
}

func TestMortgageTaskFollowsBlendStatus(t *testing.T) {
	rules := NewRules([]string{"CO"})
	base := func(blend string, stage domain.ApplicationStage, acknowledged bool) *domain.ApplicationGraph {
		app := domain.Application{Stage: stage, PropertyState: domain.Ptr("co"), BlendStatus: domain.Ptr(blend)}
		if acknowledged {
			app.DisclosuresAcknowledgedAt = domain.Ptr(time.Now())
		}
		return &domain.ApplicationGraph{Application: app}
	}
	find := func(g *domain.ApplicationGraph) Desired {
		for _, d := range rules.Compute(g) {
			if d.Name == domain.TaskMortgage {
				return d
			}
		}
		t.Fatal("mortgage task missing")
		return Desired{}
	}

	if d := find(base(BlendApplicationCreated, domain.StageComplete, false)); d.IsActionable || d.Status != domain.TaskNotStarted {
		t.Fatalf("blocked task: %+v", d)
	}
	if d := find(base("Getting Started", domain.StageComplete, true)); d.Status != domain.TaskInProgress || !d.IsActionable {
		t.Fatalf("getting started: %+v", d)
	}
	if d := find(base(BlendBorrowerSubmitted, domain.StageQualifiedApplication, true)); d.Status != domain.TaskUnderReview {
		t.Fatalf("submitted before approval: %+v", d)
	}
	if d := find(base(BlendBorrowerSubmitted, domain.StageApproved, true)); d.Status != domain.TaskCompleted {
		t.Fatalf("submitted after approval: %+v", d)
	}
	if d := find(base("SOMETHING_NEW", domain.StageComplete, true)); !d.Unknown {
		t.Fatalf("unknown status should be flagged: %+v", d)
	}
	if d := find(base(BlendApplicationCreated, domain.StageComplete, true)); d.Scope == nil || *d.Scope != "CO" {
		t.Fatalf("scope: %+v", d.Scope)
	}
}

func TestRecomputeCompletesApplicationAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t)

	if _, err := f.engine.Recompute(context.Background(), id); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if ts, ok := f.task(t, id, domain.TaskPhotoUpload); !ok || ts.Status != domain.TaskNotStarted {
		t.Fatalf("photo task: %+v", ts)
	}

	f.edit(t, id, completeAll)
	res, err := f.engine.Recompute(context.Background(), id)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if res.Stage == nil || *res.Stage != domain.StageComplete {
		t.Fatalf("expected COMPLETE, got %+v", res)
	}
	app, _ := f.store.GetApplication(context.Background(), id)
	if app.Stage != domain.StageComplete {
		t.Fatalf("stage = %s", app.Stage)
	}

	before := len(f.store.OutboxRecords())
	res, err = f.engine.Recompute(context.Background(), id)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if res.Changed() {
		t.Fatalf("second run wrote %+v", res)
	}
	if after := len(f.store.OutboxRecords()); after != before {
		t.Fatalf("second run appended %d outbox records", after-before)
	}
}

func TestOpenMortgageTaskDoesNotHoldBackCompletion(t *testing.T) {
	if Gating(domain.TaskMortgage) {
		t.Fatal("mortgage must not gate completion")
	}
	cases := []struct {
		blend string
		want  domain.TaskState
	}{
		{BlendBorrowerSubmitted, domain.TaskUnderReview},
		{BlendGettingStarted, domain.TaskInProgress},
	}
	for _, tc := range cases {
		t.Run(tc.blend, func(t *testing.T) {
			f := newFixture(t)
			id := f.seed(t)
			f.edit(t, id, func(tx *lifecycle.Tx, app *domain.Application) error {
				app.PropertyState = domain.Ptr("CO")
				app.BlendStatus = domain.Ptr(tc.blend)
				return completeAll(tx, app)
			})

			res, err := f.engine.Recompute(context.Background(), id)
			if err != nil {
				t.Fatalf("recompute: %v", err)
			}
			if res.Stage == nil || *res.Stage != domain.StageComplete {
				t.Fatalf("expected COMPLETE with an open mortgage task, got %+v", res)
			}
			ts, ok := f.task(t, id, domain.TaskMortgage)
			if !ok || ts.Status != tc.want {
				t.Fatalf("mortgage task: %+v", ts)
			}
		})
	}
}

func TestRecomputeEmitsTaskCompletedOnce(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t)
	f.edit(t, id, completeAll)

	if _, err := f.engine.Recompute(context.Background(), id); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if _, err := f.engine.Recompute(context.Background(), id); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	photo := 0
	for _, rec := range f.store.OutboxRecords() {
		if rec.Kind != events.NameTaskCompleted {
			continue
		}
		ev, err := rec.Event()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.(events.TaskCompleted).Task == domain.TaskPhotoUpload {
			photo++
		}
	}
	if photo != 1 {
		t.Fatalf("expected one PHOTO_UPLOAD completion, got %d", photo)
	}
}

func TestRecomputeReopensWhenTaskRegresses(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t)
	f.edit(t, id, completeAll)
	if _, err := f.engine.Recompute(context.Background(), id); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	f.edit(t, id, func(tx *lifecycle.Tx, app *domain.Application) error {
		home, err := tx.GetCurrentHome(context.Background(), *app.CurrentHomeID)
		if err != nil {
			return err
		}
		home.Images = home.Images[:2]
		_, err = tx.UpdateCurrentHome(context.Background(), home)
		return err
	})
	res, err := f.engine.Recompute(context.Background(), id)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if res.Stage == nil || *res.Stage != domain.StageIncomplete {
		t.Fatalf("expected INCOMPLETE, got %+v", res)
	}
}

func TestUnknownBlendStatusKeepsStoredState(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t)
	f.edit(t, id, func(tx *lifecycle.Tx, app *domain.Application) error {
		app.PropertyState = domain.Ptr("CO")
		app.DisclosuresAcknowledgedAt = domain.Ptr(time.Now())
		app.BlendStatus = domain.Ptr(BlendApplicationCreated)
		return nil
	})
	if _, err := f.engine.Recompute(context.Background(), id); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	f.edit(t, id, func(_ *lifecycle.Tx, app *domain.Application) error {
		app.BlendStatus = domain.Ptr("PAUSED_BY_LENDER")
		return nil
	})
	if _, err := f.engine.Recompute(context.Background(), id); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	ts, ok := f.task(t, id, domain.TaskMortgage)
	if !ok || ts.Status != domain.TaskInProgress {
		t.Fatalf("mortgage task: %+v", ts)
	}
}

func TestHandleIgnoresUnscopedChanges(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Handle(context.Background(), events.EntityChanged{Kind: domain.KindCustomer, EntityID: uuid.New()})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	missing := uuid.New()
	err = f.engine.Handle(context.Background(), events.EntityChanged{Kind: domain.KindApplication, EntityID: missing, ApplicationID: &missing})
	if err != nil {
		t.Fatalf("handle missing application: %v", err)
	}
}
