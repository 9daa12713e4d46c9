package salesforce

import (
	"context"
	"testing"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/store"
	"bbys_backend/internal/store/memory"
	"bbys_backend/internal/tasks"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/logger"

	"github.com/google/uuid"
)

type taskConfig struct{}

func (taskConfig) GetMortgageTaskStates() []string { return []string{"CO"} }

type harness struct {
	t       *testing.T
	now     time.Time
	st      *memory.Store
	machine *lifecycle.Machine
	crm     *fakeCRM
	pusher  *Pusher
	merger  *Merger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, now: time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }
	log := logger.New("development")
	h.st = memory.New(memory.WithClock(clock))
	h.machine = lifecycle.NewMachine(h.st, log, lifecycle.WithClock(clock))
	h.crm = newFakeCRM(t)
	client := h.crm.client()
	h.pusher = NewPusher(h.st, client, log, WithPushClock(clock))
	h.merger = NewMerger(h.machine, tasks.NewEngine(h.machine, taskConfig{}, log), client, log)
	return h
}

func (h *harness) tick() {
	h.now = h.now.Add(time.Minute)
}

// createApplication creates an INCOMPLETE buy-sell application, reusing the
// customer when the email is already known.
func (h *harness) createApplication(email string) domain.Application {
	h.t.Helper()
	ctx := context.Background()
	var app domain.Application
	err := h.machine.Transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		customer, err := tx.FindCustomerByEmail(ctx, email)
		if apperr.Is(err, apperr.KindNotFound) {
			customer, err = tx.InsertCustomer(ctx, domain.Customer{Email: email, FirstName: "Brandon", LastName: "Reyes"})
		}
		if err != nil {
			return err
		}
		app, err = tx.InsertApplication(ctx, domain.Application{
			CustomerID:          customer.ID,
			Stage:               domain.StageIncomplete,
			ProductOffering:     domain.ProductBuySell,
			HWMortgageCandidate: domain.HWCandidateNo,
		})
		return err
	})
	if err != nil {
		h.t.Fatalf("create application: %v", err)
	}
	return app
}

// edit applies fn to the locked application and saves it.
func (h *harness) edit(appID uuid.UUID, fn func(ctx context.Context, tx *lifecycle.Tx, app *domain.Application) error) {
	h.t.Helper()
	ctx := context.Background()
	err := h.machine.Transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		app, err := tx.LockApplication(ctx, appID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, &app); err != nil {
			return err
		}
		_, err = tx.UpdateApplication(ctx, app)
		return err
	})
	if err != nil {
		h.t.Fatalf("edit application: %v", err)
	}
}

func (h *harness) graph(appID uuid.UUID) *domain.ApplicationGraph {
	h.t.Helper()
	g, err := store.LoadGraph(context.Background(), h.st, appID)
	if err != nil {
		h.t.Fatalf("load graph: %v", err)
	}
	return g
}

func (h *harness) application(appID uuid.UUID) domain.Application {
	h.t.Helper()
	app, err := h.st.GetApplication(context.Background(), appID)
	if err != nil {
		h.t.Fatalf("get application: %v", err)
	}
	return app
}
