package notifications

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/events"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/locks"
	"bbys_backend/internal/mailer"
	"bbys_backend/internal/outbox"
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

type recordingSink struct {
	mu     sync.Mutex
	status int
	sent   []mailer.Message
}

func (s *recordingSink) Send(_ context.Context, msg mailer.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.status == 0 {
		return http.StatusOK, nil
	}
	return s.status, nil
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

type harness struct {
	t       *testing.T
	now     time.Time
	st      *memory.Store
	machine *lifecycle.Machine
	sink    *recordingSink
	d       *Dispatcher
	relay   *outbox.Relay
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, now: time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), sink: &recordingSink{}}
	clock := func() time.Time { return h.now }
	log := logger.New("development")
	h.st = memory.New(memory.WithClock(clock))
	h.machine = lifecycle.NewMachine(h.st, log, lifecycle.WithClock(clock))
	h.d = NewDispatcher(h.st, h.sink, locks.NewMemoryLocker(), notificationConfig{}, log, WithClock(clock))
	bus := events.NewInMemoryBus(log)
	NewTriggers(h.st, Inline{Dispatcher: h.d}, log).RegisterHandlers(bus)
	h.relay = outbox.NewRelay(h.st, bus, log)
	if _, err := Seed(context.Background(), h.st); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return h
}

func (h *harness) today() domain.Date { return domain.DateOf(h.now) }

// edit runs fn against the locked application and delivers the resulting events.
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
		h.t.Fatalf("edit: %v", err)
	}
	h.drain()
}

func (h *harness) drain() {
	h.t.Helper()
	if _, err := h.relay.Drain(context.Background()); err != nil {
		h.t.Fatalf("drain: %v", err)
	}
}

func (h *harness) setStage(appID uuid.UUID, stage domain.ApplicationStage) {
	h.t.Helper()
	h.edit(appID, func(_ context.Context, _ *lifecycle.Tx, app *domain.Application) error {
		app.Stage = stage
		return nil
	})
}

// createApplication builds a buy-sell application with a current home and a
// buying agent, owned by a homeward operator.
func (h *harness) createApplication(stage domain.ApplicationStage) domain.Application {
	h.t.Helper()
	ctx := context.Background()
	var app domain.Application
	err := h.machine.Transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		c, err := tx.InsertCustomer(ctx, domain.Customer{Email: "brandon@example.com", FirstName: "Brandon", LastName: "Lee"})
		if err != nil {
			return err
		}
		addr, err := tx.InsertAddress(ctx, domain.Address{Street: "12 Elm Street", City: "Austin", State: "TX", Zip: "78701"})
		if err != nil {
			return err
		}
		home, err := tx.InsertCurrentHome(ctx, domain.CurrentHome{AddressID: &addr.ID})
		if err != nil {
			return err
		}
		agent, err := tx.InsertAgent(ctx, domain.Agent{Name: "Alice Agent", Email: domain.Ptr("alice@agents.example.com")})
		if err != nil {
			return err
		}
		app, err = tx.InsertApplication(ctx, domain.Application{
			CustomerID:          c.ID,
			Stage:               stage,
			ProductOffering:     domain.ProductBuySell,
			HWMortgageCandidate: domain.HWCandidateNo,
			HomewardOwnerEmail:  domain.Ptr("owner@homeward.example.com"),
			CurrentHomeID:       &home.ID,
			BuyingAgentID:       &agent.ID,
		})
		return err
	})
	if err != nil {
		h.t.Fatalf("create application: %v", err)
	}
	h.drain()
	return app
}

func (h *harness) statuses(appID uuid.UUID, name string) []domain.NotificationStatus {
	h.t.Helper()
	n, err := h.st.GetNotificationByName(context.Background(), name)
	if err != nil {
		h.t.Fatalf("notification %s: %v", name, err)
	}
	rows, err := h.st.ListNotificationStatuses(context.Background(), appID, &n.ID)
	if err != nil {
		h.t.Fatalf("statuses: %v", err)
	}
	return rows
}

func (h *harness) countStatus(appID uuid.UUID, name string, status domain.DeliveryStatus) int {
	n := 0
	for _, r := range h.statuses(appID, name) {
		if r.Status == status {
			n++
		}
	}
	return n
}

func (h *harness) requireSent(appID uuid.UUID, names ...string) {
	h.t.Helper()
	for _, name := range names {
		if got := h.countStatus(appID, name, domain.DeliverySent); got != 1 {
			h.t.Errorf("%s: %d SENT rows, want 1 (rows: %+v)", name, got, h.statuses(appID, name))
		}
	}
}

func (h *harness) template(name string) string {
	n, err := h.st.GetNotificationByName(context.Background(), name)
	if err != nil {
		h.t.Fatalf("notification %s: %v", name, err)
	}
	return n.TemplateID
}

func requestOffer(ctx context.Context, tx *lifecycle.Tx, app *domain.Application, takeover bool) error {
	_, err := tx.InsertOffer(ctx, domain.Offer{
		ApplicationID:        app.ID,
		Status:               domain.OfferRequested,
		AlreadyUnderContract: takeover,
		OfferPrice:           decimal.NewNullDecimal(decimal.NewFromInt(480000)),
	})
	return err
}

func TestHappyPathCustomerClose(t *testing.T) {
	h := newHarness(t)
	app := h.createApplication(domain.StageIncomplete)

	h.setStage(app.ID, domain.StageComplete)
	h.setStage(app.ID, domain.StageQualifiedApplication)
	h.requireSent(app.ID, ApplicationUnderReview)

	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, a *domain.Application) error {
		p, err := tx.InsertPreapproval(ctx, domain.Preapproval{
			Amount:               decimal.NewNullDecimal(decimal.NewFromInt(500000)),
			EstimatedDownPayment: decimal.NewNullDecimal(decimal.NewFromInt(50000)),
			VPALApprovalDate:     domain.DatePtr(h.today()),
		})
		a.PreapprovalID = &p.ID
		return err
	})
	h.setStage(app.ID, domain.StageApproved)
	h.requireSent(app.ID, Approval, AgentOfferInstructions)
	if n := h.countStatus(app.ID, HWMortgageCandidateApproval, domain.DeliverySent); n != 0 {
		t.Fatalf("HW approval sent for a non-candidate")
	}

	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, a *domain.Application) error {
		return requestOffer(ctx, tx, a, false)
	})
	h.requireSent(app.ID, OfferSubmitted, OfferSubmittedAgent)

	h.setStage(app.ID, domain.StageOptionPeriod)
	if n := h.countStatus(app.ID, OfferAccepted, domain.DeliveryNotSent); n == 0 {
		t.Fatal("OFFER_ACCEPTED without a purchase should record missing fields")
	}

	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, a *domain.Application) error {
		addr, err := tx.InsertAddress(ctx, domain.Address{Street: "306 Plum Lane", City: "Austin", State: "TX"})
		if err != nil {
			return err
		}
		rent, err := tx.InsertRent(ctx, domain.Rent{
			Type:                  domain.Ptr(domain.RentMonthly),
			AmountMonthsOneAndTwo: decimal.NewNullDecimal(decimal.NewFromInt(5000)),
		})
		if err != nil {
			return err
		}
		nhp, err := tx.InsertNewHomePurchase(ctx, domain.NewHomePurchase{
			AddressID:                &addr.ID,
			RentID:                   &rent.ID,
			ContractPrice:            decimal.NewNullDecimal(decimal.NewFromInt(525000)),
			EarnestDepositPercentage: decimal.NewNullDecimal(decimal.NewFromInt(2)),
			OptionPeriodEndDate:      domain.DatePtr(h.today().AddDays(7)),
		})
		a.NewHomePurchaseID = &nhp.ID
		return err
	})
	h.requireSent(app.ID, OfferAccepted)

	// Re-entering the stage does not send again.
	h.setStage(app.ID, domain.StagePostOption)
	h.setStage(app.ID, domain.StageOptionPeriod)
	h.requireSent(app.ID, OfferAccepted)
	if got := h.sink.count(h.template(OfferAccepted)); got != 1 {
		t.Fatalf("OFFER_ACCEPTED mailed %d times", got)
	}
}

func TestApprovalMessageShape(t *testing.T) {
	h := newHarness(t)
	app := h.createApplication(domain.StageQualifiedApplication)
	h.setStage(app.ID, domain.StageApproved)

	var msg *mailer.Message
	for i, m := range h.sink.sent {
		if m.TemplateID == h.template(Approval) {
			msg = &h.sink.sent[i]
		}
	}
	if msg == nil {
		t.Fatal("approval not mailed")
	}
	if msg.To != "brandon@example.com" || msg.From != "hello@example.com" {
		t.Fatalf("unexpected addressing: %+v", msg)
	}
	if len(msg.Bcc) != 1 || msg.Bcc[0] != "archive@example.com" {
		t.Fatalf("bcc: %v", msg.Bcc)
	}
	if len(msg.ReplyTo) != 1 || msg.ReplyTo[0] != "owner@homeward.example.com" {
		t.Fatalf("reply-to: %v", msg.ReplyTo)
	}
	if msg.CustomProperties["preapproval_amount"] != UnderReview ||
		msg.CustomProperties["estimated_down_payment"] != NotApplicable {
		t.Fatalf("placeholders missing: %v", msg.CustomProperties)
	}
	if msg.CustomProperties["property_street"] != "12 Elm Street" {
		t.Fatalf("street: %v", msg.CustomProperties["property_street"])
	}
}

func TestHWMortgageCandidateGetsCounterpartApproval(t *testing.T) {
	h := newHarness(t)
	app := h.createApplication(domain.StageQualifiedApplication)
	h.edit(app.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.HWMortgageCandidate = domain.HWCandidateYes
		a.Stage = domain.StageApproved
		return nil
	})
	h.requireSent(app.ID, HWMortgageCandidateApproval)
	if rows := h.statuses(app.ID, Approval); len(rows) != 0 {
		t.Fatalf("APPROVAL should not be touched, got %+v", rows)
	}
}

func TestApprovalMissingFieldsRecordedThenSent(t *testing.T) {
	h := newHarness(t)
	app := h.createApplication(domain.StageQualifiedApplication)
	h.edit(app.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.HomewardOwnerEmail = nil
		return nil
	})
	h.setStage(app.ID, domain.StageApproved)

	rows := h.statuses(app.ID, Approval)
	if len(rows) != 1 || rows[0].Status != domain.DeliveryNotSent || rows[0].Reason != "Missing homeward owner email" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	h.edit(app.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.HomewardOwnerEmail = domain.Ptr("owner@homeward.example.com")
		return nil
	})
	h.requireSent(app.ID, Approval)
}

func TestTakeoverOfferSuppressedOnce(t *testing.T) {
	h := newHarness(t)
	app := h.createApplication(domain.StageApproved)

	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, a *domain.Application) error {
		return requestOffer(ctx, tx, a, true)
	})
	rows := h.statuses(app.ID, OfferSubmitted)
	if len(rows) != 1 || rows[0].Status != domain.DeliverySuppressed || rows[0].Reason != ReasonTakeover {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if got := h.sink.count(h.template(OfferSubmitted)); got != 0 {
		t.Fatalf("mailer called %d times for a takeover offer", got)
	}

	// Repeated triggers with the condition unchanged add nothing.
	for i := 0; i < 3; i++ {
		if _, err := h.d.Dispatch(context.Background(), Request{ApplicationID: app.ID, Name: OfferSubmitted}); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	h.edit(app.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.MoveIn = domain.Ptr("3 months")
		return nil
	})
	if got := len(h.statuses(app.ID, OfferSubmitted)); got != 1 {
		t.Fatalf("%d rows after repeated triggers, want 1", got)
	}
	if got := len(h.statuses(app.ID, OfferSubmittedAgent)); got != 1 {
		t.Fatalf("agent variant: %d rows, want 1", got)
	}
}

func TestReassignedContractSuppressionWithReversal(t *testing.T) {
	h := newHarness(t)
	app := h.createApplication(domain.StageApproved)
	var nhpID uuid.UUID
	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, a *domain.Application) error {
		nhp, err := tx.InsertNewHomePurchase(ctx, domain.NewHomePurchase{
			IsReassignedContract:      true,
			CustomerPurchaseCloseDate: domain.DatePtr(h.today().AddDays(4)),
		})
		a.NewHomePurchaseID = &nhp.ID
		a.Stage = domain.StageHomewardPurchase
		nhpID = nhp.ID
		return err
	})

	sweeper := NewSweeper(h.d)
	if _, err := sweeper.Daily(context.Background()); err != nil {
		t.Fatalf("daily: %v", err)
	}
	rows := h.statuses(app.ID, PreCustomerClose)
	if len(rows) != 1 || rows[0].Status != domain.DeliverySuppressed || rows[0].Reason != ReasonReassigned {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	h.edit(app.ID, func(ctx context.Context, tx *lifecycle.Tx, _ *domain.Application) error {
		nhp, err := tx.GetNewHomePurchase(ctx, nhpID)
		if err != nil {
			return err
		}
		nhp.IsReassignedContract = false
		_, err = tx.UpdateNewHomePurchase(ctx, nhp)
		return err
	})
	if _, err := sweeper.Daily(context.Background()); err != nil {
		t.Fatalf("daily: %v", err)
	}
	h.requireSent(app.ID, PreCustomerClose, AgentPreCustomerClose)

	// A third tick leaves the single SENT row in place.
	if _, err := sweeper.Daily(context.Background()); err != nil {
		t.Fatalf("daily: %v", err)
	}
	h.requireSent(app.ID, PreCustomerClose)
}

func TestInactiveNotificationIsNotRecorded(t *testing.T) {
	h := newHarness(t)
	err := h.st.WithTx(context.Background(), func(tx store.Tx) error {
		n, err := tx.GetNotificationByName(context.Background(), ApplicationUnderReview)
		if err != nil {
			return err
		}
		n.IsActive = false
		_, err = tx.UpsertNotification(context.Background(), n)
		return err
	})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	app := h.createApplication(domain.StageComplete)
	h.setStage(app.ID, domain.StageQualifiedApplication)

	if rows := h.statuses(app.ID, ApplicationUnderReview); len(rows) != 0 {
		t.Fatalf("inactive notification recorded rows: %+v", rows)
	}
	if len(h.sink.sent) != 0 {
		t.Fatalf("mailer called for inactive notification")
	}
}

func TestSinkFailureRecordsCodeAndRetries(t *testing.T) {
	h := newHarness(t)
	h.sink.status = http.StatusServiceUnavailable
	app := h.createApplication(domain.StageComplete)
	h.setStage(app.ID, domain.StageQualifiedApplication)

	rows := h.statuses(app.ID, ApplicationUnderReview)
	if len(rows) != 1 || rows[0].Reason != "sink returned 503" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	h.sink.status = http.StatusOK
	if err := h.d.RetryPending(context.Background(), app.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	h.requireSent(app.ID, ApplicationUnderReview)
}

func TestRepeatedSinkFailuresAreEachRecorded(t *testing.T) {
	h := newHarness(t)
	h.sink.status = http.StatusServiceUnavailable
	app := h.createApplication(domain.StageComplete)
	h.setStage(app.ID, domain.StageQualifiedApplication)

	h.now = h.now.Add(time.Hour)
	if err := h.d.RetryPending(context.Background(), app.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	rows := h.statuses(app.ID, ApplicationUnderReview)
	if len(rows) != 2 {
		t.Fatalf("expected one NOT_SENT row per failed attempt, got %+v", rows)
	}
	for _, r := range rows {
		if r.Status != domain.DeliveryNotSent || r.Reason != "sink returned 503" {
			t.Fatalf("unexpected row %+v", r)
		}
	}
	if got := h.sink.count(h.template(ApplicationUnderReview)); got != 2 {
		t.Fatalf("mailer called %d times", got)
	}

	h.now = h.now.Add(time.Hour)
	h.sink.status = http.StatusOK
	if err := h.d.RetryPending(context.Background(), app.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	h.requireSent(app.ID, ApplicationUnderReview)
	if got := h.countStatus(app.ID, ApplicationUnderReview, domain.DeliveryNotSent); got != 2 {
		t.Fatalf("failure history rewritten: %d NOT_SENT rows", got)
	}
}

func TestPhotoUploadDoesNotRetryAfterSinkFailure(t *testing.T) {
	h := newHarness(t)
	h.sink.status = http.StatusBadRequest
	app := h.createApplication(domain.StageIncomplete)
	ctx := context.Background()

	if o, err := h.d.Dispatch(ctx, Request{ApplicationID: app.ID, Name: PhotoUpload}); err != nil || o != OutcomeNotSent {
		t.Fatalf("first dispatch: %v %v", o, err)
	}
	h.sink.status = http.StatusOK
	if o, err := h.d.Dispatch(ctx, Request{ApplicationID: app.ID, Name: PhotoUpload}); err != nil || o != OutcomeSkipped {
		t.Fatalf("second dispatch: %v %v", o, err)
	}
	if got := h.sink.count(h.template(PhotoUpload)); got != 1 {
		t.Fatalf("mailer called %d times", got)
	}
}

func TestConcurrentDispatchSendsOnce(t *testing.T) {
	h := newHarness(t)
	app := h.createApplication(domain.StageComplete)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.d.Dispatch(context.Background(), Request{ApplicationID: app.ID, Name: ApplicationUnderReview}); err != nil {
				t.Errorf("dispatch: %v", err)
			}
		}()
	}
	wg.Wait()
	h.requireSent(app.ID, ApplicationUnderReview)
	if got := h.sink.count(h.template(ApplicationUnderReview)); got != 1 {
		t.Fatalf("mailer called %d times", got)
	}
}

func TestReminderVariants(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	graph := func(age time.Duration, mutate func(g *domain.ApplicationGraph)) *domain.ApplicationGraph {
		g := &domain.ApplicationGraph{Application: domain.Application{CreatedAt: now.Add(-age)}}
		g.Customer.AccountCreatedAt = &now
		if mutate != nil {
			mutate(g)
		}
		return g
	}
	cases := []struct {
		name   string
		g      *domain.ApplicationGraph
		want   string
		wantOK bool
	}{
		{"too young", graph(12*time.Hour, nil), "", false},
		{"one day", graph(30*time.Hour, nil), IncompleteReminder(1), true},
		{"between buckets", graph(50*time.Hour, nil), "", false},
		{"three days", graph(3*24*time.Hour+time.Hour, nil), IncompleteReminder(3), true},
		{"pre-account", graph(7*24*time.Hour, func(g *domain.ApplicationGraph) { g.Customer.AccountCreatedAt = nil }), PreAccountReminder(7), true},
		{"registered client", graph(30*time.Hour, func(g *domain.ApplicationGraph) { g.Application.RegisteredClient = true }), RegisteredClientReminder(1), true},
		{"fast track", graph(30*time.Hour, func(g *domain.ApplicationGraph) { g.Application.PricingID = domain.Ptr(uuid.New()) }), FastTrackResume, true},
		{"fast track only first bucket", graph(3*24*time.Hour, func(g *domain.ApplicationGraph) { g.Application.PricingID = domain.Ptr(uuid.New()) }), IncompleteReminder(3), true},
	}
	for _, tc := range cases {
		got, ok := ReminderFor(tc.g, now)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("%s: got (%q, %v) want (%q, %v)", tc.name, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestDailyReminderSuppressedForApexPartner(t *testing.T) {
	h := newHarness(t)
	app := h.createApplication(domain.StageIncomplete)
	h.edit(app.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.ApexPartnerSlug = domain.Ptr("acme-realty")
		return nil
	})
	h.now = h.now.Add(26 * time.Hour)

	sweeper := NewSweeper(h.d)
	for i := 0; i < 2; i++ {
		if _, err := sweeper.Daily(context.Background()); err != nil {
			t.Fatalf("daily: %v", err)
		}
	}
	rows := h.statuses(app.ID, PreAccountReminder(1))
	if len(rows) != 1 || rows[0].Status != domain.DeliverySuppressed || rows[0].Reason != ReasonApexPartner {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestVPALFollowUpAfterThreeDays(t *testing.T) {
	h := newHarness(t)
	app := h.createApplication(domain.StageQualifiedApplication)
	h.edit(app.ID, func(_ context.Context, _ *lifecycle.Tx, a *domain.Application) error {
		a.MortgageStatus = domain.Ptr(domain.MortgageVPALReadyForReview)
		return nil
	})
	h.requireSent(app.ID, VPALReadyForReview)

	sweeper := NewSweeper(h.d)
	h.now = h.now.Add(48 * time.Hour)
	if _, err := sweeper.Daily(context.Background()); err != nil {
		t.Fatalf("daily: %v", err)
	}
	if rows := h.statuses(app.ID, VPALReadyForReviewFollowUp); len(rows) != 0 {
		t.Fatalf("follow-up sent too early: %+v", rows)
	}

	h.now = h.now.Add(25 * time.Hour)
	if _, err := sweeper.Daily(context.Background()); err != nil {
		t.Fatalf("daily: %v", err)
	}
	h.requireSent(app.ID, VPALReadyForReviewFollowUp)
}

func TestHourlyReferral(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var orphan domain.Pricing
	err := h.st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		orphan, err = tx.InsertPricing(ctx, domain.Pricing{ContactEmail: domain.Ptr("lead@example.com"), AgentEmail: domain.Ptr("agent@example.com")})
		if err != nil {
			return err
		}
		_, err = tx.InsertPricing(ctx, domain.Pricing{ApplicationID: domain.Ptr(uuid.New())})
		return err
	})
	if err != nil {
		t.Fatalf("insert pricing: %v", err)
	}
	h.now = h.now.Add(90 * time.Minute)

	sweeper := NewSweeper(h.d)
	res, err := sweeper.Hourly(ctx)
	if err != nil {
		t.Fatalf("hourly: %v", err)
	}
	if res.Evaluated != 1 || res.Outcomes[OutcomeSent] != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := sweeper.Hourly(ctx); err != nil {
		t.Fatalf("second hourly: %v", err)
	}
	if got := h.sink.count(h.template(IncompleteReferral)); got != 1 {
		t.Fatalf("referral mailed %d times", got)
	}
	p, err := h.st.GetPricing(ctx, orphan.ID)
	if err != nil || p.ReferralNotifiedAt == nil {
		t.Fatalf("referral not marked: %+v %v", p, err)
	}
}
