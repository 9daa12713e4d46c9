package memory

import (
	"context"
	"slices"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/outbox"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
)

// tx writes to a private clone of the state; the store publishes it on commit.
type tx struct {
	view
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

func exists[T any](m map[uuid.UUID]T, id uuid.UUID, what string) error {
	if _, ok := m[id]; !ok {
		return apperr.NotFound(what + " not found")
	}
	return nil
}

func (t *tx) LockApplication(ctx context.Context, id uuid.UUID) (domain.Application, error) {
	// The store serializes transactions, so every read is already exclusive.
	return t.GetApplication(ctx, id)
}

func (t *tx) InsertApplication(_ context.Context, a domain.Application) (domain.Application, error) {
	if _, ok := t.st.customers[a.CustomerID]; !ok {
		return domain.Application{}, apperr.NotFound("customer not found")
	}
	t.stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	t.st.applications[a.ID] = cloneApplication(a)
	return a, nil
}

func (t *tx) UpdateApplication(_ context.Context, a domain.Application) (domain.Application, error) {
	if err := exists(t.st.applications, a.ID, "application"); err != nil {
		return domain.Application{}, err
	}
	a.UpdatedAt = t.now
	t.st.applications[a.ID] = cloneApplication(a)
	return a, nil
}

func (t *tx) InsertCustomer(_ context.Context, c domain.Customer) (domain.Customer, error) {
	c.Email = domain.NormalizeEmail(c.Email)
	for _, other := range t.st.customers {
		if other.Email == c.Email {
			return domain.Customer{}, apperr.Conflict("customer email already exists")
		}
	}
	t.stamp(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	t.st.customers[c.ID] = c
	return c, nil
}

func (t *tx) UpdateCustomer(_ context.Context, c domain.Customer) (domain.Customer, error) {
	if err := exists(t.st.customers, c.ID, "customer"); err != nil {
		return domain.Customer{}, err
	}
	c.Email = domain.NormalizeEmail(c.Email)
	for id, other := range t.st.customers {
		if id != c.ID && other.Email == c.Email {
			return domain.Customer{}, apperr.Conflict("customer email already exists")
		}
	}
	c.UpdatedAt = t.now
	t.st.customers[c.ID] = c
	return c, nil
}

func (t *tx) InsertAddress(_ context.Context, a domain.Address) (domain.Address, error) {
	t.stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	t.st.addresses[a.ID] = a
	return a, nil
}

func (t *tx) UpdateAddress(_ context.Context, a domain.Address) (domain.Address, error) {
	if err := exists(t.st.addresses, a.ID, "address"); err != nil {
		return domain.Address{}, err
	}
	a.UpdatedAt = t.now
	t.st.addresses[a.ID] = a
	return a, nil
}

func (t *tx) InsertBuilder(_ context.Context, b domain.Builder) (domain.Builder, error) {
	t.stamp(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	t.st.builders[b.ID] = b
	return b, nil
}

func (t *tx) UpdateBuilder(_ context.Context, b domain.Builder) (domain.Builder, error) {
	if err := exists(t.st.builders, b.ID, "builder"); err != nil {
		return domain.Builder{}, err
	}
	b.UpdatedAt = t.now
	t.st.builders[b.ID] = b
	return b, nil
}

func (t *tx) InsertLender(_ context.Context, l domain.Lender) (domain.Lender, error) {
	t.stamp(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	t.st.lenders[l.ID] = l
	return l, nil
}

func (t *tx) UpdateLender(_ context.Context, l domain.Lender) (domain.Lender, error) {
	if err := exists(t.st.lenders, l.ID, "lender"); err != nil {
		return domain.Lender{}, err
	}
	l.UpdatedAt = t.now
	t.st.lenders[l.ID] = l
	return l, nil
}

func (t *tx) InsertAgent(_ context.Context, a domain.Agent) (domain.Agent, error) {
	t.stamp(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	t.st.agents[a.ID] = a
	return a, nil
}

func (t *tx) UpdateAgent(_ context.Context, a domain.Agent) (domain.Agent, error) {
	if err := exists(t.st.agents, a.ID, "agent"); err != nil {
		return domain.Agent{}, err
	}
	a.UpdatedAt = t.now
	t.st.agents[a.ID] = a
	return a, nil
}

func (t *tx) InsertCurrentHome(_ context.Context, h domain.CurrentHome) (domain.CurrentHome, error) {
	t.stamp(&h.ID, &h.CreatedAt, &h.UpdatedAt)
	t.st.currentHomes[h.ID] = cloneCurrentHome(h)
	return h, nil
}

func (t *tx) UpdateCurrentHome(_ context.Context, h domain.CurrentHome) (domain.CurrentHome, error) {
	if err := exists(t.st.currentHomes, h.ID, "current home"); err != nil {
		return domain.CurrentHome{}, err
	}
	h.UpdatedAt = t.now
	t.st.currentHomes[h.ID] = cloneCurrentHome(h)
	return h, nil
}

func (t *tx) InsertMarketValuation(_ context.Context, v domain.MarketValuation) (domain.MarketValuation, error) {
	if err := exists(t.st.currentHomes, v.CurrentHomeID, "current home"); err != nil {
		return domain.MarketValuation{}, err
	}
	t.stamp(&v.ID, &v.CreatedAt, nil)
	t.st.valuations[v.ID] = v
	return v, nil
}

func (t *tx) UpdateMarketValuation(_ context.Context, v domain.MarketValuation) (domain.MarketValuation, error) {
	if err := exists(t.st.valuations, v.ID, "market valuation"); err != nil {
		return domain.MarketValuation{}, err
	}
	t.st.valuations[v.ID] = v
	return v, nil
}

func (t *tx) DeleteMarketValuation(_ context.Context, id uuid.UUID) error {
	if err := exists(t.st.valuations, id, "market valuation"); err != nil {
		return err
	}
	delete(t.st.valuations, id)
	return nil
}

func (t *tx) InsertPreapproval(_ context.Context, p domain.Preapproval) (domain.Preapproval, error) {
	t.stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	t.st.preapprovals[p.ID] = p
	return p, nil
}

func (t *tx) UpdatePreapproval(_ context.Context, p domain.Preapproval) (domain.Preapproval, error) {
	if err := exists(t.st.preapprovals, p.ID, "preapproval"); err != nil {
		return domain.Preapproval{}, err
	}
	p.UpdatedAt = t.now
	t.st.preapprovals[p.ID] = p
	return p, nil
}

func (t *tx) InsertNewHomePurchase(_ context.Context, n domain.NewHomePurchase) (domain.NewHomePurchase, error) {
	t.stamp(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	t.st.purchases[n.ID] = n
	return n, nil
}

func (t *tx) UpdateNewHomePurchase(_ context.Context, n domain.NewHomePurchase) (domain.NewHomePurchase, error) {
	if err := exists(t.st.purchases, n.ID, "new home purchase"); err != nil {
		return domain.NewHomePurchase{}, err
	}
	n.UpdatedAt = t.now
	t.st.purchases[n.ID] = n
	return n, nil
}

func (t *tx) InsertRent(_ context.Context, r domain.Rent) (domain.Rent, error) {
	t.stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	t.st.rents[r.ID] = r
	return r, nil
}

func (t *tx) UpdateRent(_ context.Context, r domain.Rent) (domain.Rent, error) {
	if err := exists(t.st.rents, r.ID, "rent"); err != nil {
		return domain.Rent{}, err
	}
	r.UpdatedAt = t.now
	t.st.rents[r.ID] = r
	return r, nil
}

func (t *tx) InsertOffer(_ context.Context, o domain.Offer) (domain.Offer, error) {
	if err := exists(t.st.applications, o.ApplicationID, "application"); err != nil {
		return domain.Offer{}, err
	}
	t.stamp(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	t.st.offers[o.ID] = o
	return o, nil
}

func (t *tx) UpdateOffer(_ context.Context, o domain.Offer) (domain.Offer, error) {
	if err := exists(t.st.offers, o.ID, "offer"); err != nil {
		return domain.Offer{}, err
	}
	o.UpdatedAt = t.now
	t.st.offers[o.ID] = o
	return o, nil
}

func (t *tx) InsertLoan(_ context.Context, l domain.Loan) (domain.Loan, error) {
	for _, other := range t.st.loans {
		if other.BlendApplicationID == l.BlendApplicationID && l.BlendApplicationID != "" {
			return domain.Loan{}, apperr.Conflict("loan blend application id already exists")
		}
	}
	t.stamp(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	t.st.loans[l.ID] = l
	return l, nil
}

func (t *tx) UpdateLoan(_ context.Context, l domain.Loan) (domain.Loan, error) {
	if err := exists(t.st.loans, l.ID, "loan"); err != nil {
		return domain.Loan{}, err
	}
	l.UpdatedAt = t.now
	t.st.loans[l.ID] = l
	return l, nil
}

func (t *tx) InsertPricing(_ context.Context, p domain.Pricing) (domain.Pricing, error) {
	t.stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	t.st.pricing[p.ID] = p
	return p, nil
}

func (t *tx) UpdatePricing(_ context.Context, p domain.Pricing) (domain.Pricing, error) {
	if err := exists(t.st.pricing, p.ID, "pricing"); err != nil {
		return domain.Pricing{}, err
	}
	p.UpdatedAt = t.now
	t.st.pricing[p.ID] = p
	return p, nil
}

func (t *tx) UpsertSupportUser(_ context.Context, u domain.InternalSupportUser) (domain.InternalSupportUser, error) {
	if u.SalesforceID != nil {
		for id, existing := range t.st.supportUsers {
			if ptrEquals(existing.SalesforceID, *u.SalesforceID) {
				u.ID = id
				u.CreatedAt = existing.CreatedAt
				break
			}
		}
	}
	t.stamp(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	t.st.supportUsers[u.ID] = u
	return u, nil
}

func (t *tx) InsertStakeholder(_ context.Context, s domain.Stakeholder) (domain.Stakeholder, error) {
	t.stamp(&s.ID, &s.CreatedAt, nil)
	t.st.stakeholders[s.ID] = s
	return s, nil
}

func (t *tx) DeleteStakeholder(_ context.Context, id uuid.UUID) error {
	if err := exists(t.st.stakeholders, id, "stakeholder"); err != nil {
		return err
	}
	delete(t.st.stakeholders, id)
	return nil
}

func (t *tx) UpsertTaskStatus(_ context.Context, s domain.TaskStatus) error {
	s.UpdatedAt = t.now
	t.st.tasks[taskKey{applicationID: s.ApplicationID, name: s.Name}] = s
	return nil
}

func (t *tx) InsertStageHistory(_ context.Context, h domain.StageHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.Instant.IsZero() {
		h.Instant = t.now
	}
	t.st.stageHistory = append(t.st.stageHistory, h)
	return nil
}

func (t *tx) InsertNote(_ context.Context, n domain.Note) (domain.Note, error) {
	t.stamp(&n.ID, &n.CreatedAt, nil)
	t.st.notes = append(t.st.notes, n)
	return n, nil
}

func (t *tx) InsertAudit(_ context.Context, e domain.AuditEntry) error {
	t.stamp(&e.ID, &e.CreatedAt, nil)
	t.st.audit = append(t.st.audit, e)
	return nil
}

func (t *tx) UpsertNotification(_ context.Context, n domain.Notification) (domain.Notification, error) {
	for id, existing := range t.st.notifications {
		if existing.Name == n.Name {
			n.ID = id
			n.CreatedAt = existing.CreatedAt
			break
		}
	}
	t.stamp(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	t.st.notifications[n.ID] = n
	return n, nil
}

func (t *tx) InsertNotificationStatus(_ context.Context, s domain.NotificationStatus) (domain.NotificationStatus, error) {
	if s.Status == domain.DeliverySent {
		for _, existing := range t.st.notificationStatuses {
			if existing.ApplicationID == s.ApplicationID && existing.NotificationID == s.NotificationID &&
				existing.Status == domain.DeliverySent {
				return domain.NotificationStatus{}, apperr.Conflict("notification already sent")
			}
		}
	}
	t.stamp(&s.ID, &s.CreatedAt, nil)
	t.st.notificationStatuses = append(t.st.notificationStatuses, s)
	return s, nil
}

func (t *tx) MarkPushed(_ context.Context, kind domain.EntityKind, id uuid.UUID, salesforceID string, at time.Time) error {
	sf := &salesforceID
	if salesforceID == "" {
		sf = nil
	}
	switch kind {
	case domain.KindApplication:
		return markPushed(t.st.applications, id, func(a *domain.Application) {
			a.PushedToSalesforceOn = &at
			if sf != nil {
				a.SalesforceID = sf
			}
		})
	case domain.KindCurrentHome:
		return markPushed(t.st.currentHomes, id, func(h *domain.CurrentHome) {
			h.PushedToSalesforceOn = &at
			if sf != nil {
				h.SalesforceID = sf
			}
		})
	case domain.KindAgent:
		return markPushed(t.st.agents, id, func(a *domain.Agent) {
			a.PushedToSalesforceOn = &at
			if sf != nil {
				a.SalesforceID = sf
			}
		})
	case domain.KindLoan:
		return markPushed(t.st.loans, id, func(l *domain.Loan) {
			l.PushedToSalesforceOn = &at
			if sf != nil {
				l.SalesforceID = sf
			}
		})
	case domain.KindPricing:
		return markPushed(t.st.pricing, id, func(p *domain.Pricing) {
			p.PushedToSalesforceOn = &at
			if sf != nil {
				p.SalesforceID = sf
			}
		})
	case domain.KindOffer:
		return markPushed(t.st.offers, id, func(o *domain.Offer) {
			o.PushedToSalesforceOn = &at
			if sf != nil {
				o.SalesforceID = sf
			}
		})
	}
	return apperr.BadRequest("entity kind " + string(kind) + " is not pushed")
}

func markPushed[T any](m map[uuid.UUID]T, id uuid.UUID, apply func(*T)) error {
	v, ok := m[id]
	if !ok {
		return apperr.NotFound("entity not found")
	}
	apply(&v)
	m[id] = v
	return nil
}

func (t *tx) AppendOutbox(_ context.Context, rec outbox.Record) error {
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
	rec.Payload = slices.Clone(rec.Payload)
	t.st.outbox = append(t.st.outbox, rec)
	return nil
}
