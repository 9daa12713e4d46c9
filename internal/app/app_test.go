package app

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"bbys_backend/internal/applications/service"
	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/mailer"
	"bbys_backend/internal/notifications"
	"bbys_backend/internal/salesforce"
	"bbys_backend/internal/store"
	"bbys_backend/internal/store/memory"
	"bbys_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type notificationConfig struct{}

func (notificationConfig) GetAppBaseURL() string          { return "https://app.example.com" }
func (notificationConfig) GetValuationsDeskEmail() string { return "valuations@example.com" }
func (notificationConfig) GetReferralsDeskEmail() string  { return "referrals@example.com" }
func (notificationConfig) GetArchiveBCC() string          { return "archive@example.com" }
func (notificationConfig) GetMailFromAddress() string     { return "hello@example.com" }

type taskConfig struct{}

func (taskConfig) GetMortgageTaskStates() []string { return []string{"CO"} }

type recordingSink struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (s *recordingSink) Send(_ context.Context, msg mailer.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return http.StatusOK, nil
}

func (s *recordingSink) count(templateID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.sent {
		if m.TemplateID == templateID {
			n++
		}
	}
	return n
}

var operator = service.Actor{ID: uuid.New(), Email: "ops@homeward.example.com", Admin: true}

type world struct {
	t    *testing.T
	now  time.Time
	st   *memory.Store
	sink *recordingSink
	core *Core
	svc  *service.Service
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{t: t, now: time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), sink: &recordingSink{}}
	clock := func() time.Time { return w.now }
	w.st = memory.New(memory.WithClock(clock))
	core, err := New(context.Background(), Options{
		Store:        w.st,
		Notification: notificationConfig{},
		Tasks:        taskConfig{},
		Sink:         w.sink,
		Clock:        clock,
		Location:     time.UTC,
	}, logger.New("development"))
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	w.core = core
	w.svc = core.Applications.Service()
	return w
}

func (w *world) today() domain.Date { return domain.DateOf(w.now) }

// do runs a command and delivers the events it committed.
func (w *world) do(name string, err error) {
	w.t.Helper()
	if err != nil {
		w.t.Fatalf("%s: %v", name, err)
	}
	if _, err := w.core.Drain(context.Background()); err != nil {
		w.t.Fatalf("drain after %s: %v", name, err)
	}
}

func (w *world) create(req transport.CreateApplicationRequest) transport.ApplicationResponse {
	w.t.Helper()
	resp, err := w.svc.Create(context.Background(), lifecycle.SourceAPI, req)
	w.do("create", err)
	return resp
}

func (w *world) changeStage(id uuid.UUID, stage domain.ApplicationStage) {
	w.t.Helper()
	_, err := w.svc.ChangeStage(context.Background(), operator, id, transport.ChangeStageRequest{Stage: stage, Comment: "moved by ops"})
	w.do("change stage", err)
}

func (w *world) update(id uuid.UUID, req transport.UpdateApplicationRequest) {
	w.t.Helper()
	_, err := w.svc.Update(context.Background(), id, req)
	w.do("update", err)
}

func (w *world) graph(id uuid.UUID) *domain.ApplicationGraph {
	w.t.Helper()
	g, err := store.LoadGraph(context.Background(), w.st, id)
	if err != nil {
		w.t.Fatalf("graph: %v", err)
	}
	return g
}

func (w *world) statuses(appID uuid.UUID, name string) []domain.NotificationStatus {
	w.t.Helper()
	ctx := context.Background()
	n, err := w.st.GetNotificationByName(ctx, name)
	if err != nil {
		w.t.Fatalf("notification %s: %v", name, err)
	}
	rows, err := w.st.ListNotificationStatuses(ctx, appID, &n.ID)
	if err != nil {
		w.t.Fatalf("statuses: %v", err)
	}
	return rows
}

func (w *world) requireSent(appID uuid.UUID, names ...string) {
	w.t.Helper()
	for _, name := range names {
		sent := 0
		for _, r := range w.statuses(appID, name) {
			if r.Status == domain.DeliverySent {
				sent++
			}
		}
		if sent != 1 {
			w.t.Errorf("%s: %d SENT rows, want 1", name, sent)
		}
	}
}

func (w *world) template(name string) string {
	w.t.Helper()
	n, err := w.st.GetNotificationByName(context.Background(), name)
	if err != nil {
		w.t.Fatalf("notification %s: %v", name, err)
	}
	return n.TemplateID
}

// checkInvariants asserts the properties that hold after every command:
// at most one SENT row per notification, the COMPLETE stage agrees with the
// gating tasks, and the stage history chains.
func (w *world) checkInvariants(appID uuid.UUID) {
	w.t.Helper()
	ctx := context.Background()

	rows, err := w.st.ListNotificationStatuses(ctx, appID, nil)
	if err != nil {
		w.t.Fatalf("statuses: %v", err)
	}
	sent := map[uuid.UUID]int{}
	for _, r := range rows {
		if r.Status == domain.DeliverySent {
			sent[r.NotificationID]++
			if sent[r.NotificationID] > 1 {
				w.t.Fatalf("notification %s sent twice", r.NotificationID)
			}
		}
	}

	g := w.graph(appID)
	if g.Application.Stage == domain.StageIncomplete || g.Application.Stage == domain.StageComplete {
		allDone := true
		for _, task := range g.Tasks {
			if task.Name != domain.TaskMortgage && task.Status != domain.TaskCompleted {
				allDone = false
			}
		}
		if allDone != (g.Application.Stage == domain.StageComplete) {
			w.t.Fatalf("stage %s disagrees with tasks %+v", g.Application.Stage, g.Tasks)
		}
	}

	history, err := w.st.ListStageHistory(ctx, appID)
	if err != nil {
		w.t.Fatalf("history: %v", err)
	}
	for i := 1; i < len(history); i++ {
		prev := history[i].PreviousStage
		if prev == nil || *prev != history[i-1].NewStage {
			w.t.Fatalf("stage history breaks at %d: %+v", i, history[i])
		}
	}
	if len(history) > 0 && history[len(history)-1].NewStage != g.Application.Stage {
		w.t.Fatalf("last history row %s, application at %s", history[len(history)-1].NewStage, g.Application.Stage)
	}
}

func images(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "https://photos.example.com/" + string(rune('a'+i)) + ".jpg"
	}
	return out
}

func money(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func buySellRequest() transport.CreateApplicationRequest {
	return transport.CreateApplicationRequest{
		Customer:            transport.CustomerInput{Email: "brandon@example.com", FirstName: "Brandon", LastName: "Lee"},
		ProductOffering:     domain.ProductBuySell,
		HWMortgageCandidate: domain.HWCandidateNo,
		HomewardOwnerEmail:  domain.Ptr("owner@homeward.example.com"),
		CurrentHome: &transport.CurrentHomeInput{
			Address:               &transport.AddressInput{Street: "12 Elm Street", City: "Austin", State: "TX", Zip: "78701"},
			OutstandingLoanAmount: money(200000),
		},
	}
}

func TestHappyPathCustomerCloseThroughCommands(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	created := w.create(buySellRequest())
	id := created.ID
	if created.Stage != domain.StageIncomplete {
		t.Fatalf("expected INCOMPLETE, got %s", created.Stage)
	}
	w.checkInvariants(id)

	_, err := w.svc.UpsertCurrentHome(ctx, id, transport.CurrentHomeInput{
		CustomerValueOpinion: money(450000),
		Images:               images(5),
	})
	w.do("current home", err)
	w.update(id, transport.UpdateApplicationRequest{
		MinPrice:    money(400000),
		MaxPrice:    money(550000),
		MoveIn:      domain.Ptr("3 months"),
		BuyingAgent: &transport.AgentPatch{Name: "Alice Agent", Email: domain.Ptr("alice@agents.example.com")},
	})
	w.checkInvariants(id)

	resp, err := w.svc.Acknowledge(ctx, operator, id, transport.AcknowledgeRequest{Document: "disclosures"})
	w.do("acknowledge", err)
	if resp.Stage != domain.StageComplete {
		t.Fatalf("expected COMPLETE once every task is done, got %s", resp.Stage)
	}
	w.checkInvariants(id)

	w.changeStage(id, domain.StageQualifiedApplication)
	w.requireSent(id, notifications.ApplicationUnderReview)

	w.update(id, transport.UpdateApplicationRequest{Preapproval: &transport.PreapprovalPatch{
		Amount:               money(500000),
		EstimatedDownPayment: money(50000),
		VPALApprovalDate:     domain.DatePtr(w.today()),
	}})
	w.changeStage(id, domain.StageApproved)
	w.requireSent(id, notifications.Approval, notifications.AgentOfferInstructions)

	requested := domain.OfferRequested
	_, err = w.svc.CreateOffer(ctx, id, transport.OfferRequest{
		Status:               &requested,
		OfferPrice:           money(480000),
		AlreadyUnderContract: domain.Ptr(false),
	})
	w.do("create offer", err)
	w.requireSent(id, notifications.OfferSubmitted, notifications.OfferSubmittedAgent)

	w.changeStage(id, domain.StageOptionPeriod)
	monthly := domain.RentMonthly
	w.update(id, transport.UpdateApplicationRequest{NewHomePurchase: &transport.NewHomePurchasePatch{
		Address:                  &transport.AddressInput{Street: "306 Plum Lane", City: "Austin", State: "TX", Zip: "78702"},
		ContractPrice:            money(525000),
		EarnestDepositPercentage: money(2),
		OptionPeriodEndDate:      domain.DatePtr(w.today().AddDays(7)),
		Rent:                     &transport.RentInput{Type: &monthly, AmountMonthsOneAndTwo: money(5000)},
	}})
	w.requireSent(id, notifications.OfferAccepted)
	w.checkInvariants(id)

	if got := w.sink.count(w.template(notifications.OfferAccepted)); got != 1 {
		t.Fatalf("OFFER_ACCEPTED mailed %d times", got)
	}
}

func TestTakeoverOfferIsSuppressedThroughCommands(t *testing.T) {
	w := newWorld(t)
	id := w.create(buySellRequest()).ID
	w.changeStage(id, domain.StageApproved)

	requested := domain.OfferRequested
	_, err := w.svc.CreateOffer(context.Background(), id, transport.OfferRequest{
		Status:               &requested,
		OfferPrice:           money(480000),
		AlreadyUnderContract: domain.Ptr(true),
	})
	w.do("create offer", err)

	rows := w.statuses(id, notifications.OfferSubmitted)
	if len(rows) != 1 || rows[0].Status != domain.DeliverySuppressed || rows[0].Reason != notifications.ReasonTakeover {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if got := w.sink.count(w.template(notifications.OfferSubmitted)); got != 0 {
		t.Fatalf("mailer called %d times for a takeover offer", got)
	}

	// Unrelated edits re-run the triggers without adding rows.
	w.update(id, transport.UpdateApplicationRequest{MoveIn: domain.Ptr("6 months")})
	if got := len(w.statuses(id, notifications.OfferSubmitted)); got != 1 {
		t.Fatalf("%d rows after repeated triggers, want 1", got)
	}
	w.checkInvariants(id)
}

func TestReassignedContractReversalOnDailySweep(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	id := w.create(buySellRequest()).ID
	w.update(id, transport.UpdateApplicationRequest{
		BuyingAgent: &transport.AgentPatch{Name: "Alice Agent", Email: domain.Ptr("alice@agents.example.com")},
		NewHomePurchase: &transport.NewHomePurchasePatch{
			IsReassignedContract:      domain.Ptr(true),
			CustomerPurchaseCloseDate: domain.DatePtr(w.today().AddDays(4)),
		},
	})
	w.changeStage(id, domain.StageHomewardPurchase)

	if _, err := w.core.Sweeper.Daily(ctx); err != nil {
		t.Fatalf("daily: %v", err)
	}
	rows := w.statuses(id, notifications.PreCustomerClose)
	if len(rows) != 1 || rows[0].Status != domain.DeliverySuppressed || rows[0].Reason != notifications.ReasonReassigned {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	w.update(id, transport.UpdateApplicationRequest{NewHomePurchase: &transport.NewHomePurchasePatch{
		IsReassignedContract: domain.Ptr(false),
	}})
	if _, err := w.core.Sweeper.Daily(ctx); err != nil {
		t.Fatalf("daily: %v", err)
	}
	w.requireSent(id, notifications.PreCustomerClose)
	w.checkInvariants(id)
}

func TestPushedBackAccountMergesThroughSyncEndpoint(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	id := w.create(buySellRequest()).ID

	body := `[{"Id":"001ACC","Homeward_ID__c":"` + id.String() + `","Builder_Company__c":"MHI",` +
		`"Builder_Street__c":"4000 Danli Lane","Outstanding_Loan_Amount__c":null},{"Name":"no id"}]`
	results, err := w.svc.AcceptRecords(ctx, salesforce.RecordAccount, []byte(body))
	w.do("accept records", err)
	if len(results) != 2 || results[0].Status != transport.SyncQueued || results[1].Status != transport.SyncRejected {
		t.Fatalf("unexpected results: %+v", results)
	}

	g := w.graph(id)
	if g.Builder == nil || domain.Deref(g.Builder.Company) != "MHI" {
		t.Fatalf("expected builder MHI, got %+v", g.Builder)
	}
	if g.BuilderAddress == nil || !strings.EqualFold(g.BuilderAddress.Street, "4000 Danli Lane") {
		t.Fatalf("expected the builder address, got %+v", g.BuilderAddress)
	}
	loan := g.CurrentHome.OutstandingLoanAmount
	if !loan.Valid || !loan.Decimal.Equal(decimal.NewFromInt(200000)) {
		t.Fatalf("outstanding loan amount changed to %v", loan)
	}
	if domain.Deref(g.Application.SalesforceID) != "001ACC" {
		t.Fatalf("expected the account id recorded, got %v", g.Application.SalesforceID)
	}
}

func TestOwnerProfileGatesCxManagerThroughSyncEndpoint(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	id := w.create(buySellRequest()).ID

	cx := func(owner string) {
		t.Helper()
		body := `{"Id":"001ACC","Homeward_ID__c":"` + id.String() + `",` + owner + `}`
		results, err := w.svc.AcceptRecords(ctx, salesforce.RecordAccount, []byte(body))
		w.do("accept records", err)
		if len(results) != 1 || results[0].Status != transport.SyncQueued {
			t.Fatalf("unexpected results: %+v", results)
		}
	}

	cx(`"OwnerId":"005CX1","Owner":{"Name":"Casey","Profile":{"Name":"CXA"}}`)
	first := w.graph(id).Application.CxManagerID
	if first == nil {
		t.Fatal("expected a CX manager from a CX profile")
	}

	cx(`"OwnerId":"005AE","Owner":{"Name":"Avery","Profile":{"Name":"Account Executive"}}`)
	if got := w.graph(id).Application.CxManagerID; got == nil || *got != *first {
		t.Fatalf("a non-CX owner replaced the CX manager: %v", got)
	}

	cx(`"OwnerId":"005CX2","Owner":{"Name":"Jordan","Profile":{"Name":"CX Manager"}}`)
	if got := w.graph(id).Application.CxManagerID; got == nil || *got == *first {
		t.Fatalf("expected the new CX owner to replace the manager, got %v", got)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(context.Background(), Options{}, logger.New("development")); err == nil {
		t.Fatal("expected an error without a store")
	}
}
