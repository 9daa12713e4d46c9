package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/closingdates"
	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/store/memory"
	"bbys_backend/internal/tasks"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type taskConfig struct{}

func (taskConfig) GetMortgageTaskStates() []string { return []string{"CO"} }

type syncCall struct {
	recordType string
	record     string
}

type fakeSyncQueue struct {
	mu     sync.Mutex
	calls  []syncCall
	reject map[string]bool
}

func (q *fakeSyncQueue) EnqueueSync(_ context.Context, recordType string, record []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id := range q.reject {
		if strings.Contains(string(record), id) {
			return errors.New("queue unavailable")
		}
	}
	q.calls = append(q.calls, syncCall{recordType: recordType, record: string(record)})
	return nil
}

type fixture struct {
	now   time.Time
	st    *memory.Store
	queue *fakeSyncQueue
	svc   *Service
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{now: now, queue: &fakeSyncQueue{}}
	clock := func() time.Time { return f.now }
	log := logger.New("development")
	f.st = memory.New(memory.WithClock(clock))
	machine := lifecycle.NewMachine(f.st, log, lifecycle.WithClock(clock))
	engine := tasks.NewEngine(machine, taskConfig{}, log)
	f.svc = New(machine, engine, closingdates.New(f.st), f.queue, log)
	return f
}

var admin = Actor{ID: uuid.New(), Email: "ops@homeward.com", Admin: true}

func (f *fixture) create(t *testing.T, email string, product domain.ProductOffering) transport.ApplicationResponse {
	t.Helper()
	resp, err := f.svc.Create(context.Background(), lifecycle.SourceAPI, transport.CreateApplicationRequest{
		Customer:        transport.CustomerInput{Email: email, FirstName: "Brandon", LastName: "Reyes"},
		ProductOffering: product,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return resp
}

func fieldErrors(t *testing.T, err error) apperr.FieldErrors {
	t.Helper()
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindValidation {
		t.Fatalf("expected a validation error, got %v", err)
	}
	fields, ok := e.Details.(apperr.FieldErrors)
	if !ok {
		t.Fatalf("expected field errors, got %#v", e.Details)
	}
	return fields
}

func TestCreateUpsertsByQuestionnaireResponse(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()
	rid := "resp-42"

	first, err := f.svc.Create(ctx, lifecycle.SourceIntake, transport.CreateApplicationRequest{
		Customer:                transport.CustomerInput{Email: "Brandon@Example.com ", FirstName: "Brandon"},
		ProductOffering:         domain.ProductBuySell,
		QuestionnaireResponseID: &rid,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Customer.Email != "brandon@example.com" {
		t.Fatalf("expected a case-folded email, got %q", first.Customer.Email)
	}
	if first.Stage != domain.StageIncomplete {
		t.Fatalf("expected INCOMPLETE, got %s", first.Stage)
	}

	second, err := f.svc.Create(ctx, lifecycle.SourceIntake, transport.CreateApplicationRequest{
		Customer:                transport.CustomerInput{Email: "brandon@example.com", FirstName: "Brandon", LastName: "Reyes"},
		ProductOffering:         domain.ProductBuyOnly,
		MinPrice:                decimal.NewNullDecimal(decimal.NewFromInt(300000)),
		QuestionnaireResponseID: &rid,
	})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID || second.Customer.ID != first.Customer.ID {
		t.Fatal("expected the same application and customer")
	}
	if second.ProductOffering != domain.ProductBuySell {
		t.Fatalf("buy-sell must not be downgraded, got %s", second.ProductOffering)
	}
	if !second.MinPrice.Valid || !second.MinPrice.Decimal.Equal(decimal.NewFromInt(300000)) {
		t.Fatalf("expected min price to be updated, got %v", second.MinPrice)
	}
	if second.Customer.LastName != "Reyes" {
		t.Fatalf("expected the customer to be updated, got %q", second.Customer.LastName)
	}
}

func TestUpdateRejectsMaxPriceBelowMinPrice(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	app := f.create(t, "brandon@example.com", domain.ProductBuySell)

	_, err := f.svc.Update(context.Background(), app.ID, transport.UpdateApplicationRequest{
		MinPrice: decimal.NewNullDecimal(decimal.NewFromInt(400000)),
		MaxPrice: decimal.NewNullDecimal(decimal.NewFromInt(350000)),
	})
	if _, ok := fieldErrors(t, err)["max_price"]; !ok {
		t.Fatalf("expected a max_price error, got %v", err)
	}

	stored, err := f.st.GetApplication(context.Background(), app.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.MinPrice.Valid {
		t.Fatal("a rejected update must not be stored")
	}
}

func TestUpdatePatchesAndClearsChildren(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()
	app := f.create(t, "brandon@example.com", domain.ProductBuySell)

	_, err := f.svc.Update(ctx, app.ID, transport.UpdateApplicationRequest{
		Builder: &transport.BuilderPatch{
			Company: domain.Ptr("MHI"),
			Address: &transport.AddressInput{Street: "4000 Danli Lane", City: "Austin", State: "TX", Zip: "78701"},
		},
		ListingAgent: &transport.AgentPatch{Name: "Lee Ann Park", Email: domain.Ptr("Lee@Realty.com")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, _ := f.st.GetApplication(ctx, app.ID)
	if stored.BuilderID == nil || stored.ListingAgentID == nil {
		t.Fatalf("expected builder and agent to be linked, got %+v", stored)
	}
	agent, _ := f.st.GetAgent(ctx, *stored.ListingAgentID)
	if domain.Deref(agent.Email) != "lee@realty.com" {
		t.Fatalf("expected a case-folded agent email, got %q", domain.Deref(agent.Email))
	}

	if _, err := f.svc.Update(ctx, app.ID, transport.UpdateApplicationRequest{
		Builder: &transport.BuilderPatch{Clear: true},
	}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stored, _ = f.st.GetApplication(ctx, app.ID)
	if stored.BuilderID != nil {
		t.Fatal("expected the builder to be unlinked")
	}
	if stored.ListingAgentID == nil {
		t.Fatal("an omitted child must be left alone")
	}
}

func TestChangeStageRequiresCommentAndWritesNote(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()
	app := f.create(t, "brandon@example.com", domain.ProductBuySell)

	_, err := f.svc.ChangeStage(ctx, admin, app.ID, transport.ChangeStageRequest{Stage: domain.StageTrash})
	if _, ok := fieldErrors(t, err)["comment"]; !ok {
		t.Fatalf("expected a comment error, got %v", err)
	}

	resp, err := f.svc.ChangeStage(ctx, admin, app.ID, transport.ChangeStageRequest{
		Stage:   domain.StageTrash,
		Comment: "duplicate application",
	})
	if err != nil {
		t.Fatalf("change stage: %v", err)
	}
	if resp.Stage != domain.StageTrash {
		t.Fatalf("expected TRASH, got %s", resp.Stage)
	}
	notes, err := f.st.ListNotes(ctx, app.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Body != "duplicate application" || domain.Deref(notes[0].AuthorID) != admin.ID {
		t.Fatalf("unexpected notes %+v", notes)
	}
	history, _ := f.st.ListStageHistory(ctx, app.ID)
	last := history[len(history)-1]
	if last.PreviousStage == nil || *last.PreviousStage != domain.StageIncomplete || last.NewStage != domain.StageTrash {
		t.Fatalf("unexpected stage history %+v", last)
	}

	if _, err := f.svc.ChangeStage(ctx, admin, app.ID, transport.ChangeStageRequest{Stage: "NOT_A_STAGE", Comment: "x"}); err == nil {
		t.Fatal("expected an unknown stage to be rejected")
	}
}

func TestOfferPreferredClosingDateWindow(t *testing.T) {
	f := newFixture(t, time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	app := f.create(t, "brandon@example.com", domain.ProductBuySell)

	cases := []struct {
		date string
		want string
	}{
		{"2021-06-15", "preferred closing date of 2021-06-15 cannot be before 2021-06-22"},
		{"2023-01-01", "preferred closing date of 2023-01-01 cannot be after 2022-12-01"},
		{"2021-07-04", "preferred closing date of 2021-07-04 cannot be on a restricted date"},
	}
	for _, tc := range cases {
		_, err := f.svc.CreateOffer(ctx, app.ID, transport.OfferRequest{
			Status:               domain.Ptr(domain.OfferRequested),
			PreferredClosingDate: domain.Ptr(domain.MustDate(tc.date)),
		})
		if got := fieldErrors(t, err)[closingdates.Field]; got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.date, got, tc.want)
		}
	}
	offers, _ := f.st.ListOffers(ctx, app.ID)
	if len(offers) != 0 {
		t.Fatalf("rejected offers must not be stored, got %d", len(offers))
	}

	offer, err := f.svc.CreateOffer(ctx, app.ID, transport.OfferRequest{
		Status:               domain.Ptr(domain.OfferRequested),
		PreferredClosingDate: domain.Ptr(domain.MustDate("2021-06-22")),
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	f.now = f.now.AddDate(0, 2, 0)
	_, err = f.svc.UpdateOffer(ctx, offer.ID, transport.OfferRequest{
		PreferredClosingDate: domain.Ptr(domain.MustDate("2022-12-05")),
	})
	if got := fieldErrors(t, err)[closingdates.Field]; got != "preferred closing date of 2022-12-05 cannot be after 2022-12-01" {
		t.Fatalf("expected the window of the creation date, got %q", got)
	}

	window, err := f.svc.ClosingWindow(ctx, Actor{Email: "brandon@example.com"}, offer.ID)
	if err != nil {
		t.Fatalf("closing window: %v", err)
	}
	if window.Earliest != domain.MustDate("2021-06-22") || window.Latest != domain.MustDate("2022-12-01") {
		t.Fatalf("unexpected window %+v", window)
	}
	if _, err := f.svc.ClosingWindow(ctx, Actor{Email: "someone@else.com"}, offer.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for a stranger, got %v", err)
	}
}

func TestRegisterClientAndArchiveByAgent(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()
	agent := Actor{ID: uuid.New(), Email: "lee@realty.com"}

	app, err := f.svc.RegisterClient(ctx, agent, transport.RegisterClientRequest{
		Customer:        transport.CustomerInput{Email: "brandon@example.com", FirstName: "Brandon"},
		ProductOffering: domain.ProductBuyOnly,
		AgentName:       "Lee Ann Park",
	})
	if err != nil {
		t.Fatalf("register client: %v", err)
	}
	if !app.RegisteredClient || app.BuyingAgent == nil || domain.Deref(app.BuyingAgent.Email) != "lee@realty.com" {
		t.Fatalf("unexpected registered application %+v", app)
	}

	if _, err := f.svc.SetArchived(ctx, Actor{Email: "other@realty.com"}, app.ID, true); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for another agent, got %v", err)
	}
	archived, err := f.svc.SetArchived(ctx, agent, app.ID, true)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(archived.FilterStatus) != 1 || archived.FilterStatus[0] != domain.FilterArchived {
		t.Fatalf("expected the Archived marker, got %v", archived.FilterStatus)
	}
	again, err := f.svc.SetArchived(ctx, agent, app.ID, true)
	if err != nil || len(again.FilterStatus) != 1 {
		t.Fatalf("archive must be idempotent, got %v %v", again.FilterStatus, err)
	}
	restored, err := f.svc.SetArchived(ctx, agent, app.ID, false)
	if err != nil {
		t.Fatalf("unarchive: %v", err)
	}
	if len(restored.FilterStatus) != 0 {
		t.Fatalf("expected no marker, got %v", restored.FilterStatus)
	}
}

func TestAcknowledgeDisclosuresCompletesTask(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()
	app := f.create(t, "brandon@example.com", domain.ProductBuyOnly)
	owner := Actor{ID: uuid.New(), Email: "Brandon@example.com"}

	if _, err := f.svc.Acknowledge(ctx, Actor{Email: "x@example.com"}, app.ID, transport.AcknowledgeRequest{Document: "disclosures"}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	resp, err := f.svc.Acknowledge(ctx, owner, app.ID, transport.AcknowledgeRequest{Document: "disclosures"})
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if resp.DisclosuresAcknowledgedAt == nil {
		t.Fatal("expected the acknowledgement instant")
	}
	var found bool
	for _, task := range resp.Tasks {
		if task.Name == domain.TaskDisclosures {
			found = true
			if task.Status != domain.TaskCompleted {
				t.Fatalf("expected DISCLOSURES completed, got %s", task.Status)
			}
		}
	}
	if !found {
		t.Fatalf("expected a DISCLOSURES task, got %+v", resp.Tasks)
	}
}

func TestRecordLoginStampsCustomer(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()
	app := f.create(t, "brandon@example.com", domain.ProductBuySell)
	owner := Actor{ID: uuid.New(), Email: "brandon@example.com"}

	if err := f.svc.RecordLogin(ctx, owner, transport.LoginEventRequest{ApplicationID: app.ID}); err != nil {
		t.Fatalf("login: %v", err)
	}
	first := f.now
	f.now = f.now.Add(time.Hour)
	if err := f.svc.RecordLogin(ctx, owner, transport.LoginEventRequest{ApplicationID: app.ID}); err != nil {
		t.Fatalf("second login: %v", err)
	}
	customer, err := f.st.GetCustomer(ctx, app.Customer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if customer.AccountCreatedAt == nil || !customer.AccountCreatedAt.Equal(first) {
		t.Fatalf("expected the account creation at the first login, got %v", customer.AccountCreatedAt)
	}
	if customer.LastLoginAt == nil || !customer.LastLoginAt.Equal(f.now) {
		t.Fatalf("expected the last login to move, got %v", customer.LastLoginAt)
	}
}

func TestAcceptRecordsReportsPerRecord(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC))
	f.queue.reject = map[string]bool{"001BAD": true}
	ctx := context.Background()

	body := []byte(`[{"Id":"001A","Name":"Brandon"},{"Name":"no id"},{"Id":"001BAD"},"oops"]`)
	results, err := f.svc.AcceptRecords(ctx, "Account", body)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	want := []string{transport.SyncQueued, transport.SyncRejected, transport.SyncRejected, transport.SyncRejected}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), results)
	}
	for i, w := range want {
		if results[i].Status != w {
			t.Fatalf("record %d: got %s, want %s (%+v)", i, results[i].Status, w, results[i])
		}
	}
	if len(f.queue.calls) != 1 || f.queue.calls[0].recordType != "Account" || f.queue.calls[0].record != `{"Id":"001A","Name":"Brandon"}` {
		t.Fatalf("unexpected queue calls %+v", f.queue.calls)
	}

	single, err := f.svc.AcceptRecords(ctx, "Offer", []byte(`{"Id":"a0B1"}`))
	if err != nil || len(single) != 1 || single[0].Status != transport.SyncQueued {
		t.Fatalf("expected a single queued record, got %+v %v", single, err)
	}

	if _, err := f.svc.AcceptRecords(ctx, "Lead", body); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected an unknown record type to be rejected, got %v", err)
	}
}
