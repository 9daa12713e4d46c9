// Package lifecycle is the State Machine. Every write goes through a Tx that
// wraps the store transaction: it records stage history, flags transitions
// outside the lifecycle in the audit log, and appends the transition and
// entity-changed events to the outbox of the same transaction.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/events"
	"bbys_backend/internal/outbox"
	"bbys_backend/internal/store"
	"bbys_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sources of a transition, recorded on StageHistory.
const (
	SourceAPI        = "api"
	SourceSalesforce = "salesforce"
	SourceTasks      = "task_engine"
	SourceIntake     = "intake"
	SourceScheduler  = "scheduler"
)

const (
	auditInvalidStage    = "invalid_stage_transition"
	auditInvalidMortgage = "invalid_mortgage_transition"
	auditInvalidOffer    = "invalid_offer_transition"
)

type Machine struct {
	store store.Store
	log   *logger.Logger
	now   func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the clock used for transition instants.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(st store.Store, log *logger.Logger, opts ...Option) *Machine {
	m := &Machine{
		store: st,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying Entity Store for reads.
func (m *Machine) Store() store.Store {
	return m.store
}

// Now returns the machine clock.
func (m *Machine) Now() time.Time {
	return m.now()
}

// Transact runs fn as one unit of work attributed to source.
func (m *Machine) Transact(ctx context.Context, source string, fn func(tx *Tx) error) error {
	return m.store.WithTx(ctx, func(inner store.Tx) error {
		return fn(&Tx{Tx: inner, machine: m, source: source})
	})
}

// Tx is a store.Tx that observes its own writes.
type Tx struct {
	store.Tx
	machine       *Machine
	source        string
	applicationID *uuid.UUID
}

// Source is the origin of the unit of work.
func (t *Tx) Source() string {
	return t.source
}

// ApplicationID is the application the unit of work is scoped to, once known.
func (t *Tx) ApplicationID() *uuid.UUID {
	return t.applicationID
}

func (t *Tx) scope(id uuid.UUID) {
	if t.applicationID == nil {
		t.applicationID = &id
	}
}

// Emit appends an event to the outbox of this transaction.
func (t *Tx) Emit(ctx context.Context, event events.Event) error {
	rec, err := outbox.NewRecord(event, t.applicationID)
	if err != nil {
		return err
	}
	return t.AppendOutbox(ctx, rec)
}

func (t *Tx) event() events.BaseEvent {
	return events.BaseEventAt(t.machine.now())
}

func (t *Tx) flag(ctx context.Context, kind string, entityID uuid.UUID, message string) error {
	t.machine.log.AuditFlag(kind, entityID.String(), message)
	return t.InsertAudit(ctx, domain.AuditEntry{
		Kind:          kind,
		EntityID:      entityID,
		ApplicationID: t.applicationID,
		Message:       message,
	})
}

// Audit records a failed or suspicious side effect against an entity.
func (t *Tx) Audit(ctx context.Context, kind string, entityID uuid.UUID, message string) error {
	return t.flag(ctx, kind, entityID, message)
}

func (t *Tx) changed(ctx context.Context, kind domain.EntityKind, id uuid.UUID, created bool, before, after domain.Snapshot) error {
	changes := domain.Diff(before, after)
	if len(changes) == 0 && !created {
		return nil
	}
	return t.Emit(ctx, events.EntityChanged{
		BaseEvent:     t.event(),
		Kind:          kind,
		EntityID:      id,
		ApplicationID: t.applicationID,
		Created:       created,
		Changes:       changes,
		Source:        t.source,
	})
}

// =============================================================================
// Application
// =============================================================================

func (t *Tx) LockApplication(ctx context.Context, id uuid.UUID) (domain.Application, error) {
	app, err := t.Tx.LockApplication(ctx, id)
	if err != nil {
		return app, err
	}
	t.scope(id)
	return app, nil
}

func (t *Tx) InsertApplication(ctx context.Context, a domain.Application) (domain.Application, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	t.scope(a.ID)
	stored, err := t.Tx.InsertApplication(ctx, a)
	if err != nil {
		return stored, err
	}
	if err := t.recordStage(ctx, stored.ID, nil, stored.Stage); err != nil {
		return stored, err
	}
	if stored.MortgageStatus != nil {
		if err := t.recordMortgage(ctx, stored, nil); err != nil {
			return stored, err
		}
	}
	return stored, t.changed(ctx, domain.KindApplication, stored.ID, true, nil, domain.SnapshotApplication(stored))
}

func (t *Tx) UpdateApplication(ctx context.Context, a domain.Application) (domain.Application, error) {
	t.scope(a.ID)
	before, err := t.Tx.GetApplication(ctx, a.ID)
	if err != nil {
		return a, err
	}
	stored, err := t.Tx.UpdateApplication(ctx, a)
	if err != nil {
		return stored, err
	}
	if before.Stage != stored.Stage {
		prev := before.Stage
		if err := t.recordStage(ctx, stored.ID, &prev, stored.Stage); err != nil {
			return stored, err
		}
	}
	if !sameMortgage(before.MortgageStatus, stored.MortgageStatus) {
		if err := t.recordMortgage(ctx, stored, before.MortgageStatus); err != nil {
			return stored, err
		}
	}
	return stored, t.changed(ctx, domain.KindApplication, stored.ID, false,
		domain.SnapshotApplication(before), domain.SnapshotApplication(stored))
}

func sameMortgage(a, b *domain.MortgageStatus) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// recordStage appends StageHistory with an instant no earlier than the last
// recorded one, flags off-lifecycle moves and emits the transition.
func (t *Tx) recordStage(ctx context.Context, appID uuid.UUID, prev *domain.ApplicationStage, next domain.ApplicationStage) error {
	history, err := t.ListStageHistory(ctx, appID)
	if err != nil {
		return err
	}
	instant := t.machine.now()
	if n := len(history); n > 0 && history[n-1].Instant.After(instant) {
		instant = history[n-1].Instant
	}
	if err := t.InsertStageHistory(ctx, domain.StageHistory{
		ApplicationID: appID,
		PreviousStage: prev,
		NewStage:      next,
		Source:        t.source,
		Instant:       instant,
	}); err != nil {
		return err
	}

	if !StageTransitionAllowed(prev, next) {
		from := "none"
		if prev != nil {
			from = string(*prev)
		}
		if err := t.flag(ctx, auditInvalidStage, appID, fmt.Sprintf("stage %s -> %s via %s", from, next, t.source)); err != nil {
			return err
		}
	}

	return t.Emit(ctx, events.ApplicationStageChanged{
		BaseEvent:     events.BaseEventAt(instant),
		ApplicationID: appID,
		Previous:      prev,
		New:           next,
		Source:        t.source,
	})
}

func (t *Tx) recordMortgage(ctx context.Context, app domain.Application, prev *domain.MortgageStatus) error {
	if !MortgageTransitionAllowed(prev, app.MortgageStatus) {
		msg := fmt.Sprintf("mortgage status %s -> %s via %s", statusText(prev), statusText(app.MortgageStatus), t.source)
		if err := t.flag(ctx, auditInvalidMortgage, app.ID, msg); err != nil {
			return err
		}
	}
	return t.Emit(ctx, events.MortgageStatusChanged{
		BaseEvent:     t.event(),
		ApplicationID: app.ID,
		Previous:      prev,
		New:           app.MortgageStatus,
		Stage:         app.Stage,
	})
}

func statusText[T ~string](p *T) string {
	if p == nil {
		return "none"
	}
	return string(*p)
}

// =============================================================================
// Offer
// =============================================================================

func (t *Tx) InsertOffer(ctx context.Context, o domain.Offer) (domain.Offer, error) {
	t.scope(o.ApplicationID)
	stored, err := t.Tx.InsertOffer(ctx, o)
	if err != nil {
		return stored, err
	}
	if err := t.recordOffer(ctx, stored, nil); err != nil {
		return stored, err
	}
	return stored, t.changed(ctx, domain.KindOffer, stored.ID, true, nil, domain.SnapshotOffer(stored))
}

func (t *Tx) UpdateOffer(ctx context.Context, o domain.Offer) (domain.Offer, error) {
	t.scope(o.ApplicationID)
	before, err := t.Tx.GetOffer(ctx, o.ID)
	if err != nil {
		return o, err
	}
	stored, err := t.Tx.UpdateOffer(ctx, o)
	if err != nil {
		return stored, err
	}
	if before.Status != stored.Status {
		prev := before.Status
		if err := t.recordOffer(ctx, stored, &prev); err != nil {
			return stored, err
		}
	}
	return stored, t.changed(ctx, domain.KindOffer, stored.ID, false, domain.SnapshotOffer(before), domain.SnapshotOffer(stored))
}

func (t *Tx) recordOffer(ctx context.Context, o domain.Offer, prev *domain.OfferStatus) error {
	if !OfferTransitionAllowed(prev, o.Status) {
		msg := fmt.Sprintf("offer status %s -> %s via %s", statusText(prev), o.Status, t.source)
		if err := t.flag(ctx, auditInvalidOffer, o.ID, msg); err != nil {
			return err
		}
	}
	return t.Emit(ctx, events.OfferStatusChanged{
		BaseEvent:     t.event(),
		ApplicationID: o.ApplicationID,
		OfferID:       o.ID,
		Previous:      prev,
		New:           o.Status,
	})
}

// =============================================================================
// Preapproval
// =============================================================================

func (t *Tx) InsertPreapproval(ctx context.Context, p domain.Preapproval) (domain.Preapproval, error) {
	stored, err := t.Tx.InsertPreapproval(ctx, p)
	if err != nil {
		return stored, err
	}
	if err := t.recordAmount(ctx, stored, domain.Preapproval{}); err != nil {
		return stored, err
	}
	return stored, t.changed(ctx, domain.KindPreapproval, stored.ID, true, nil, domain.SnapshotPreapproval(stored))
}

func (t *Tx) UpdatePreapproval(ctx context.Context, p domain.Preapproval) (domain.Preapproval, error) {
	before, err := t.Tx.GetPreapproval(ctx, p.ID)
	if err != nil {
		return p, err
	}
	stored, err := t.Tx.UpdatePreapproval(ctx, p)
	if err != nil {
		return stored, err
	}
	if err := t.recordAmount(ctx, stored, before); err != nil {
		return stored, err
	}
	return stored, t.changed(ctx, domain.KindPreapproval, stored.ID, false,
		domain.SnapshotPreapproval(before), domain.SnapshotPreapproval(stored))
}

func (t *Tx) recordAmount(ctx context.Context, after, before domain.Preapproval) error {
	if t.applicationID == nil || sameAmount(before.Amount, after.Amount) {
		return nil
	}
	return t.Emit(ctx, events.PreapprovalAmountChanged{
		BaseEvent:     t.event(),
		ApplicationID: *t.applicationID,
		PreapprovalID: after.ID,
		Previous:      before.Amount,
		New:           after.Amount,
	})
}

func sameAmount(a, b decimal.NullDecimal) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Decimal.Equal(b.Decimal)
}

// =============================================================================
// Other tracked entities
// =============================================================================

// tracked wraps an insert or update of an entity whose snapshot feeds
// EntityChanged. get is nil for inserts.
func tracked[T any](ctx context.Context, t *Tx, kind domain.EntityKind, v T, id func(T) uuid.UUID,
	get func(context.Context, uuid.UUID) (T, error), write func(context.Context, T) (T, error), snap func(T) domain.Snapshot,
) (T, error) {
	var before domain.Snapshot
	if get != nil {
		prev, err := get(ctx, id(v))
		if err != nil {
			return v, err
		}
		before = snap(prev)
	}
	stored, err := write(ctx, v)
	if err != nil {
		return stored, err
	}
	return stored, t.changed(ctx, kind, id(stored), get == nil, before, snap(stored))
}

func customerID(c domain.Customer) uuid.UUID       { return c.ID }
func currentHomeID(h domain.CurrentHome) uuid.UUID { return h.ID }
func agentID(a domain.Agent) uuid.UUID             { return a.ID }
func loanID(l domain.Loan) uuid.UUID               { return l.ID }
func pricingID(p domain.Pricing) uuid.UUID         { return p.ID }
func newHomeID(n domain.NewHomePurchase) uuid.UUID { return n.ID }
func rentID(r domain.Rent) uuid.UUID               { return r.ID }
func addressID(a domain.Address) uuid.UUID         { return a.ID }
func builderID(b domain.Builder) uuid.UUID         { return b.ID }
func lenderID(l domain.Lender) uuid.UUID           { return l.ID }

func (t *Tx) InsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	return tracked(ctx, t, domain.KindCustomer, c, customerID, nil, t.Tx.InsertCustomer, domain.SnapshotCustomer)
}

func (t *Tx) UpdateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	return tracked(ctx, t, domain.KindCustomer, c, customerID, t.Tx.GetCustomer, t.Tx.UpdateCustomer, domain.SnapshotCustomer)
}

func (t *Tx) InsertCurrentHome(ctx context.Context, h domain.CurrentHome) (domain.CurrentHome, error) {
	return tracked(ctx, t, domain.KindCurrentHome, h, currentHomeID, nil, t.Tx.InsertCurrentHome, domain.SnapshotCurrentHome)
}

func (t *Tx) UpdateCurrentHome(ctx context.Context, h domain.CurrentHome) (domain.CurrentHome, error) {
	return tracked(ctx, t, domain.KindCurrentHome, h, currentHomeID, t.Tx.GetCurrentHome, t.Tx.UpdateCurrentHome, domain.SnapshotCurrentHome)
}

func (t *Tx) InsertAgent(ctx context.Context, a domain.Agent) (domain.Agent, error) {
	return tracked(ctx, t, domain.KindAgent, a, agentID, nil, t.Tx.InsertAgent, domain.SnapshotAgent)
}

func (t *Tx) UpdateAgent(ctx context.Context, a domain.Agent) (domain.Agent, error) {
	return tracked(ctx, t, domain.KindAgent, a, agentID, t.Tx.GetAgent, t.Tx.UpdateAgent, domain.SnapshotAgent)
}

func (t *Tx) InsertLoan(ctx context.Context, l domain.Loan) (domain.Loan, error) {
	t.scope(l.ApplicationID)
	return tracked(ctx, t, domain.KindLoan, l, loanID, nil, t.Tx.InsertLoan, domain.SnapshotLoan)
}

func (t *Tx) UpdateLoan(ctx context.Context, l domain.Loan) (domain.Loan, error) {
	t.scope(l.ApplicationID)
	return tracked(ctx, t, domain.KindLoan, l, loanID, t.Tx.GetLoan, t.Tx.UpdateLoan, domain.SnapshotLoan)
}

func (t *Tx) InsertPricing(ctx context.Context, p domain.Pricing) (domain.Pricing, error) {
	return tracked(ctx, t, domain.KindPricing, p, pricingID, nil, t.Tx.InsertPricing, domain.SnapshotPricing)
}

func (t *Tx) UpdatePricing(ctx context.Context, p domain.Pricing) (domain.Pricing, error) {
	return tracked(ctx, t, domain.KindPricing, p, pricingID, t.Tx.GetPricing, t.Tx.UpdatePricing, domain.SnapshotPricing)
}

func (t *Tx) InsertNewHomePurchase(ctx context.Context, n domain.NewHomePurchase) (domain.NewHomePurchase, error) {
	return tracked(ctx, t, domain.KindNewHomePurchase, n, newHomeID, nil, t.Tx.InsertNewHomePurchase, domain.SnapshotNewHomePurchase)
}

func (t *Tx) UpdateNewHomePurchase(ctx context.Context, n domain.NewHomePurchase) (domain.NewHomePurchase, error) {
	return tracked(ctx, t, domain.KindNewHomePurchase, n, newHomeID, t.Tx.GetNewHomePurchase, t.Tx.UpdateNewHomePurchase, domain.SnapshotNewHomePurchase)
}

func (t *Tx) InsertRent(ctx context.Context, r domain.Rent) (domain.Rent, error) {
	return tracked(ctx, t, domain.KindRent, r, rentID, nil, t.Tx.InsertRent, domain.SnapshotRent)
}

func (t *Tx) UpdateRent(ctx context.Context, r domain.Rent) (domain.Rent, error) {
	return tracked(ctx, t, domain.KindRent, r, rentID, t.Tx.GetRent, t.Tx.UpdateRent, domain.SnapshotRent)
}

func (t *Tx) InsertAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	return tracked(ctx, t, domain.KindAddress, a, addressID, nil, t.Tx.InsertAddress, domain.SnapshotAddress)
}

// UpdateAddress also reports the edit as a change of every current home and
// offer embedding the address, under "address."-prefixed fields.
func (t *Tx) UpdateAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	prev, err := t.Tx.GetAddress(ctx, a.ID)
	if err != nil {
		return a, err
	}
	stored, err := t.Tx.UpdateAddress(ctx, a)
	if err != nil {
		return stored, err
	}
	before, after := domain.SnapshotAddress(prev), domain.SnapshotAddress(stored)
	if err := t.changed(ctx, domain.KindAddress, stored.ID, false, before, after); err != nil {
		return stored, err
	}

	changes := domain.Diff(before, after)
	if len(changes) == 0 {
		return stored, nil
	}
	owners, err := t.Tx.ListAddressOwners(ctx, stored.ID)
	if err != nil {
		return stored, err
	}
	prefixed := make(map[string]domain.FieldChange, len(changes))
	for field, c := range changes {
		prefixed["address."+field] = c
	}
	for _, owner := range owners {
		appID := owner.ApplicationID
		if appID == nil {
			appID = t.applicationID
		}
		if err := t.Emit(ctx, events.EntityChanged{
			BaseEvent:     t.event(),
			Kind:          owner.Kind,
			EntityID:      owner.ID,
			ApplicationID: appID,
			Changes:       prefixed,
			Source:        t.source,
		}); err != nil {
			return stored, err
		}
	}
	return stored, nil
}

func (t *Tx) InsertBuilder(ctx context.Context, b domain.Builder) (domain.Builder, error) {
	return tracked(ctx, t, domain.KindBuilder, b, builderID, nil, t.Tx.InsertBuilder, domain.SnapshotBuilder)
}

func (t *Tx) UpdateBuilder(ctx context.Context, b domain.Builder) (domain.Builder, error) {
	return tracked(ctx, t, domain.KindBuilder, b, builderID, t.Tx.GetBuilder, t.Tx.UpdateBuilder, domain.SnapshotBuilder)
}

func (t *Tx) InsertLender(ctx context.Context, l domain.Lender) (domain.Lender, error) {
	return tracked(ctx, t, domain.KindLender, l, lenderID, nil, t.Tx.InsertLender, domain.SnapshotLender)
}

func (t *Tx) UpdateLender(ctx context.Context, l domain.Lender) (domain.Lender, error) {
	return tracked(ctx, t, domain.KindLender, l, lenderID, t.Tx.GetLender, t.Tx.UpdateLender, domain.SnapshotLender)
}
