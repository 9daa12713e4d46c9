package postgres

import (
	"context"
	"fmt"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/outbox"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

type tx struct {
	queries
	now time.Time
}

func (t *tx) stamp(id *uuid.UUID, created, updated *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if created.IsZero() {
		*created = t.now
	}
	if updated != nil {
		*updated = t.now
	}
}

func insert[T any](ctx context.Context, t *tx, s *sqlbuilder.Struct, table string, v *T, what string) error {
	_, err := exec(ctx, t.db, s.InsertInto(table, v), "insert "+what)
	return err
}

func update[T any](ctx context.Context, t *tx, s *sqlbuilder.Struct, table string, id uuid.UUID, v *T, what string) error {
	ub := s.Update(table, v)
	ub.Where(ub.Equal("id", id))
	return execUpdate(ctx, t.db, ub, what)
}

func (t *tx) LockApplication(ctx context.Context, id uuid.UUID) (domain.Application, error) {
	sb := byID(applicationStruct, tableApplications, id)
	sb.ForUpdate()
	return getOne[domain.Application](ctx, t.db, sb, "application")
}

func (t *tx) InsertApplication(ctx context.Context, a domain.Application) (domain.Application, error) {
	t.stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return a, insert(ctx, t, applicationStruct, tableApplications, &a, "application")
}

func (t *tx) UpdateApplication(ctx context.Context, a domain.Application) (domain.Application, error) {
	a.UpdatedAt = t.now
	return a, update(ctx, t, applicationStruct, tableApplications, a.ID, &a, "application")
}

func (t *tx) InsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	c.Email = domain.NormalizeEmail(c.Email)
	t.stamp(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return c, insert(ctx, t, customerStruct, tableCustomers, &c, "customer")
}

func (t *tx) UpdateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	c.Email = domain.NormalizeEmail(c.Email)
	c.UpdatedAt = t.now
	return c, update(ctx, t, customerStruct, tableCustomers, c.ID, &c, "customer")
}

func (t *tx) InsertAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	t.stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return a, insert(ctx, t, addressStruct, tableAddresses, &a, "address")
}

func (t *tx) UpdateAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	a.UpdatedAt = t.now
	return a, update(ctx, t, addressStruct, tableAddresses, a.ID, &a, "address")
}

func (t *tx) InsertBuilder(ctx context.Context, b domain.Builder) (domain.Builder, error) {
	t.stamp(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	return b, insert(ctx, t, builderStruct, tableBuilders, &b, "builder")
}

func (t *tx) UpdateBuilder(ctx context.Context, b domain.Builder) (domain.Builder, error) {
	b.UpdatedAt = t.now
	return b, update(ctx, t, builderStruct, tableBuilders, b.ID, &b, "builder")
}

func (t *tx) InsertLender(ctx context.Context, l domain.Lender) (domain.Lender, error) {
	t.stamp(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	return l, insert(ctx, t, lenderStruct, tableLenders, &l, "lender")
}

func (t *tx) UpdateLender(ctx context.Context, l domain.Lender) (domain.Lender, error) {
	l.UpdatedAt = t.now
	return l, update(ctx, t, lenderStruct, tableLenders, l.ID, &l, "lender")
}

func (t *tx) InsertAgent(ctx context.Context, a domain.Agent) (domain.Agent, error) {
	t.stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return a, insert(ctx, t, agentStruct, tableAgents, &a, "agent")
}

func (t *tx) UpdateAgent(ctx context.Context, a domain.Agent) (domain.Agent, error) {
	a.UpdatedAt = t.now
	return a, update(ctx, t, agentStruct, tableAgents, a.ID, &a, "agent")
}

func (t *tx) InsertCurrentHome(ctx context.Context, h domain.CurrentHome) (domain.CurrentHome, error) {
	t.stamp(&h.ID, &h.CreatedAt, &h.UpdatedAt)
	return h, insert(ctx, t, currentHomeStruct, tableCurrentHomes, &h, "current home")
}

func (t *tx) UpdateCurrentHome(ctx context.Context, h domain.CurrentHome) (domain.CurrentHome, error) {
	h.UpdatedAt = t.now
	return h, update(ctx, t, currentHomeStruct, tableCurrentHomes, h.ID, &h, "current home")
}

func (t *tx) InsertMarketValuation(ctx context.Context, v domain.MarketValuation) (domain.MarketValuation, error) {
	t.stamp(&v.ID, &v.CreatedAt, nil)
	return v, insert(ctx, t, marketValuationStruct, tableMarketValuations, &v, "market valuation")
}

func (t *tx) UpdateMarketValuation(ctx context.Context, v domain.MarketValuation) (domain.MarketValuation, error) {
	return v, update(ctx, t, marketValuationStruct, tableMarketValuations, v.ID, &v, "market valuation")
}

func (t *tx) DeleteMarketValuation(ctx context.Context, id uuid.UUID) error {
	return t.delete(ctx, tableMarketValuations, id, "market valuation")
}

func (t *tx) InsertPreapproval(ctx context.Context, p domain.Preapproval) (domain.Preapproval, error) {
	t.stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, insert(ctx, t, preapprovalStruct, tablePreapprovals, &p, "preapproval")
}

func (t *tx) UpdatePreapproval(ctx context.Context, p domain.Preapproval) (domain.Preapproval, error) {
	p.UpdatedAt = t.now
	return p, update(ctx, t, preapprovalStruct, tablePreapprovals, p.ID, &p, "preapproval")
}

func (t *tx) InsertNewHomePurchase(ctx context.Context, n domain.NewHomePurchase) (domain.NewHomePurchase, error) {
	t.stamp(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	return n, insert(ctx, t, newHomePurchaseStruct, tableNewHomePurchases, &n, "new home purchase")
}

func (t *tx) UpdateNewHomePurchase(ctx context.Context, n domain.NewHomePurchase) (domain.NewHomePurchase, error) {
	n.UpdatedAt = t.now
	return n, update(ctx, t, newHomePurchaseStruct, tableNewHomePurchases, n.ID, &n, "new home purchase")
}

func (t *tx) InsertRent(ctx context.Context, r domain.Rent) (domain.Rent, error) {
	t.stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return r, insert(ctx, t, rentStruct, tableRents, &r, "rent")
}

func (t *tx) UpdateRent(ctx context.Context, r domain.Rent) (domain.Rent, error) {
	r.UpdatedAt = t.now
	return r, update(ctx, t, rentStruct, tableRents, r.ID, &r, "rent")
}

func (t *tx) InsertOffer(ctx context.Context, o domain.Offer) (domain.Offer, error) {
	t.stamp(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	return o, insert(ctx, t, offerStruct, tableOffers, &o, "offer")
}

func (t *tx) UpdateOffer(ctx context.Context, o domain.Offer) (domain.Offer, error) {
	o.UpdatedAt = t.now
	return o, update(ctx, t, offerStruct, tableOffers, o.ID, &o, "offer")
}

func (t *tx) InsertLoan(ctx context.Context, l domain.Loan) (domain.Loan, error) {
	t.stamp(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	return l, insert(ctx, t, loanStruct, tableLoans, &l, "loan")
}

func (t *tx) UpdateLoan(ctx context.Context, l domain.Loan) (domain.Loan, error) {
	l.UpdatedAt = t.now
	return l, update(ctx, t, loanStruct, tableLoans, l.ID, &l, "loan")
}

func (t *tx) InsertPricing(ctx context.Context, p domain.Pricing) (domain.Pricing, error) {
	t.stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, insert(ctx, t, pricingStruct, tablePricing, &p, "pricing")
}

func (t *tx) UpdatePricing(ctx context.Context, p domain.Pricing) (domain.Pricing, error) {
	p.UpdatedAt = t.now
	return p, update(ctx, t, pricingStruct, tablePricing, p.ID, &p, "pricing")
}

func (t *tx) UpsertSupportUser(ctx context.Context, u domain.InternalSupportUser) (domain.InternalSupportUser, error) {
	if u.SalesforceID != nil {
		existing, err := t.FindSupportUserBySalesforceID(ctx, *u.SalesforceID)
		if err == nil {
			u.ID = existing.ID
			u.CreatedAt = existing.CreatedAt
			u.UpdatedAt = t.now
			return u, update(ctx, t, supportUserStruct, tableSupportUsers, u.ID, &u, "support user")
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return domain.InternalSupportUser{}, err
		}
	}
	t.stamp(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return u, insert(ctx, t, supportUserStruct, tableSupportUsers, &u, "support user")
}

func (t *tx) InsertStakeholder(ctx context.Context, s domain.Stakeholder) (domain.Stakeholder, error) {
	t.stamp(&s.ID, &s.CreatedAt, nil)
	return s, insert(ctx, t, stakeholderStruct, tableStakeholders, &s, "stakeholder")
}

func (t *tx) DeleteStakeholder(ctx context.Context, id uuid.UUID) error {
	return t.delete(ctx, tableStakeholders, id, "stakeholder")
}

func (t *tx) delete(ctx context.Context, table string, id uuid.UUID, what string) error {
	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(db.Equal("id", id))
	tag, err := exec(ctx, t.db, db, "delete "+what)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(what + " not found")
	}
	return nil
}

func (t *tx) UpsertTaskStatus(ctx context.Context, s domain.TaskStatus) error {
	s.UpdatedAt = t.now
	ib := taskStatusStruct.InsertInto(tableTaskStatuses, &s)
	query, args := ib.Build()
	query += ` ON CONFLICT (application_id, name) DO UPDATE SET
		status = EXCLUDED.status,
		is_actionable = EXCLUDED.is_actionable,
		scope = EXCLUDED.scope,
		updated_at = EXCLUDED.updated_at`
	if _, err := t.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert task status: %w", err)
	}
	return nil
}

func (t *tx) InsertStageHistory(ctx context.Context, h domain.StageHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.Instant.IsZero() {
		h.Instant = t.now
	}
	return insert(ctx, t, stageHistoryStruct, tableStageHistory, &h, "stage history")
}

func (t *tx) InsertNote(ctx context.Context, n domain.Note) (domain.Note, error) {
	t.stamp(&n.ID, &n.CreatedAt, nil)
	return n, insert(ctx, t, noteStruct, tableNotes, &n, "note")
}

func (t *tx) InsertAudit(ctx context.Context, e domain.AuditEntry) error {
	t.stamp(&e.ID, &e.CreatedAt, nil)
	return insert(ctx, t, auditEntryStruct, tableAuditEntries, &e, "audit entry")
}

func (t *tx) UpsertNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	existing, err := t.GetNotificationByName(ctx, n.Name)
	switch {
	case err == nil:
		n.ID = existing.ID
		n.CreatedAt = existing.CreatedAt
		n.UpdatedAt = t.now
		return n, update(ctx, t, notificationStruct, tableNotifications, n.ID, &n, "notification")
	case apperr.Is(err, apperr.KindNotFound):
		t.stamp(&n.ID, &n.CreatedAt, &n.UpdatedAt)
		return n, insert(ctx, t, notificationStruct, tableNotifications, &n, "notification")
	default:
		return domain.Notification{}, err
	}
}

func (t *tx) InsertNotificationStatus(ctx context.Context, s domain.NotificationStatus) (domain.NotificationStatus, error) {
	t.stamp(&s.ID, &s.CreatedAt, nil)
	return s, insert(ctx, t, notificationStatusStruct, tableNotificationStatuses, &s, "notification status")
}

var pushedTables = map[domain.EntityKind]string{
	domain.KindApplication: tableApplications,
	domain.KindCurrentHome: tableCurrentHomes,
	domain.KindAgent:       tableAgents,
	domain.KindLoan:        tableLoans,
	domain.KindPricing:     tablePricing,
	domain.KindOffer:       tableOffers,
}

func (t *tx) MarkPushed(ctx context.Context, kind domain.EntityKind, id uuid.UUID, salesforceID string, at time.Time) error {
	table, ok := pushedTables[kind]
	if !ok {
		return apperr.BadRequest("entity kind " + string(kind) + " is not pushed")
	}
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("pushed_to_salesforce_on", at))
	if salesforceID != "" {
		ub.SetMore(ub.Assign("salesforce_id", salesforceID))
	}
	ub.Where(ub.Equal("id", id))
	return execUpdate(ctx, t.db, ub, string(kind))
}

func (t *tx) AppendOutbox(ctx context.Context, rec outbox.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = outbox.StatusPending
	}
	if rec.RunAt.IsZero() {
		rec.RunAt = t.now
	}
	rec.CreatedAt = t.now
	rec.UpdatedAt = t.now
	return insert(ctx, t, outboxStruct, tableOutbox, &rec, "outbox record")
}
