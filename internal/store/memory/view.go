package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
)

// view implements store.Queries over one state.
type view struct {
	st *state
}

func lookup[T any](m map[uuid.UUID]T, id uuid.UUID, what string) (T, error) {
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, apperr.NotFound(what + " not found")
	}
	return v, nil
}

func findOne[T any](m map[uuid.UUID]T, what string, match func(T) bool) (T, error) {
	for _, id := range sortedKeys(m) {
		if match(m[id]) {
			return m[id], nil
		}
	}
	var zero T
	return zero, apperr.NotFound(what + " not found")
}

func filter[T any](m map[uuid.UUID]T, match func(T) bool, less func(a, b T) bool) []T {
	out := make([]T, 0)
	for _, v := range m {
		if match(v) {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func sortedKeys[T any](m map[uuid.UUID]T) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

func ptrEquals(p *string, want string) bool {
	return p != nil && *p == want
}

func (v view) GetApplication(_ context.Context, id uuid.UUID) (domain.Application, error) {
	a, err := lookup(v.st.applications, id, "application")
	return cloneApplication(a), err
}

func (v view) ListApplicationIDs(_ context.Context, f store.ApplicationFilter) ([]uuid.UUID, error) {
	var agentIDs map[uuid.UUID]bool
	if f.AgentEmail != "" {
		agentIDs = map[uuid.UUID]bool{}
		for id, a := range v.st.agents {
			if a.Email != nil && domain.NormalizeEmail(*a.Email) == domain.NormalizeEmail(f.AgentEmail) {
				agentIDs[id] = true
			}
		}
	}

	out := make([]uuid.UUID, 0)
	for _, id := range sortedKeys(v.st.applications) {
		a := v.st.applications[id]
		if f.AfterID != nil && bytes.Compare(id[:], f.AfterID[:]) <= 0 {
			continue
		}
		if len(f.Stages) > 0 && !a.Stage.In(f.Stages...) {
			continue
		}
		if len(f.MortgageStatuses) > 0 && !mortgageIn(a.MortgageStatus, f.MortgageStatuses) {
			continue
		}
		if f.CreatedFrom != nil && a.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && !a.CreatedAt.Before(*f.CreatedTo) {
			continue
		}
		if !f.IncludeArchived && a.IsArchived() {
			continue
		}
		if agentIDs != nil && !(a.BuyingAgentID != nil && agentIDs[*a.BuyingAgentID]) &&
			!(a.ListingAgentID != nil && agentIDs[*a.ListingAgentID]) {
			continue
		}
		out = append(out, id)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func mortgageIn(m *domain.MortgageStatus, set []domain.MortgageStatus) bool {
	if m == nil {
		return false
	}
	for _, s := range set {
		if *m == s {
			return true
		}
	}
	return false
}

func (v view) FindApplicationBySalesforceID(_ context.Context, salesforceID string) (domain.Application, error) {
	a, err := findOne(v.st.applications, "application", func(a domain.Application) bool {
		return ptrEquals(a.SalesforceID, salesforceID)
	})
	return cloneApplication(a), err
}

func (v view) FindApplicationsByCustomerEmail(_ context.Context, email string) ([]domain.Application, error) {
	want := domain.NormalizeEmail(email)
	apps := filter(v.st.applications, func(a domain.Application) bool {
		c, ok := v.st.customers[a.CustomerID]
		return ok && c.Email == want
	}, func(a, b domain.Application) bool { return a.CreatedAt.Before(b.CreatedAt) })
	for i := range apps {
		apps[i] = cloneApplication(apps[i])
	}
	return apps, nil
}

func (v view) FindApplicationByQuestionnaireID(_ context.Context, responseID string) (domain.Application, error) {
	a, err := findOne(v.st.applications, "application", func(a domain.Application) bool {
		return ptrEquals(a.QuestionnaireResponseID, responseID)
	})
	return cloneApplication(a), err
}

func (v view) GetCustomer(_ context.Context, id uuid.UUID) (domain.Customer, error) {
	return lookup(v.st.customers, id, "customer")
}

func (v view) FindCustomerByEmail(_ context.Context, email string) (domain.Customer, error) {
	want := domain.NormalizeEmail(email)
	return findOne(v.st.customers, "customer", func(c domain.Customer) bool { return c.Email == want })
}

func (v view) GetAddress(_ context.Context, id uuid.UUID) (domain.Address, error) {
	return lookup(v.st.addresses, id, "address")
}

func (v view) GetBuilder(_ context.Context, id uuid.UUID) (domain.Builder, error) {
	return lookup(v.st.builders, id, "builder")
}

func (v view) GetLender(_ context.Context, id uuid.UUID) (domain.Lender, error) {
	return lookup(v.st.lenders, id, "lender")
}

func (v view) GetAgent(_ context.Context, id uuid.UUID) (domain.Agent, error) {
	return lookup(v.st.agents, id, "agent")
}

func (v view) FindAgentBySalesforceID(_ context.Context, salesforceID string) (domain.Agent, error) {
	return findOne(v.st.agents, "agent", func(a domain.Agent) bool { return ptrEquals(a.SalesforceID, salesforceID) })
}

func (v view) FindAgentByEmail(_ context.Context, email string) (domain.Agent, error) {
	want := domain.NormalizeEmail(email)
	return findOne(v.st.agents, "agent", func(a domain.Agent) bool {
		return a.Email != nil && domain.NormalizeEmail(*a.Email) == want
	})
}

func (v view) GetCurrentHome(_ context.Context, id uuid.UUID) (domain.CurrentHome, error) {
	h, err := lookup(v.st.currentHomes, id, "current home")
	return cloneCurrentHome(h), err
}

func (v view) ListMarketValuations(_ context.Context, currentHomeID uuid.UUID) ([]domain.MarketValuation, error) {
	return filter(v.st.valuations,
		func(m domain.MarketValuation) bool { return m.CurrentHomeID == currentHomeID },
		func(a, b domain.MarketValuation) bool { return a.ValuedAt.Before(b.ValuedAt) }), nil
}

func (v view) GetMarketValuation(_ context.Context, id uuid.UUID) (domain.MarketValuation, error) {
	return lookup(v.st.valuations, id, "market valuation")
}

func (v view) GetPreapproval(_ context.Context, id uuid.UUID) (domain.Preapproval, error) {
	return lookup(v.st.preapprovals, id, "preapproval")
}

func (v view) GetNewHomePurchase(_ context.Context, id uuid.UUID) (domain.NewHomePurchase, error) {
	return lookup(v.st.purchases, id, "new home purchase")
}

func (v view) GetRent(_ context.Context, id uuid.UUID) (domain.Rent, error) {
	return lookup(v.st.rents, id, "rent")
}

func (v view) GetOffer(_ context.Context, id uuid.UUID) (domain.Offer, error) {
	return lookup(v.st.offers, id, "offer")
}

func (v view) FindOfferBySalesforceID(_ context.Context, salesforceID string) (domain.Offer, error) {
	return findOne(v.st.offers, "offer", func(o domain.Offer) bool { return ptrEquals(o.SalesforceID, salesforceID) })
}

func (v view) ListAddressOwners(_ context.Context, addressID uuid.UUID) ([]store.AddressOwner, error) {
	out := make([]store.AddressOwner, 0)
	for _, id := range sortedKeys(v.st.currentHomes) {
		h := v.st.currentHomes[id]
		if h.AddressID == nil || *h.AddressID != addressID {
			continue
		}
		owner := store.AddressOwner{Kind: domain.KindCurrentHome, ID: h.ID}
		for _, appID := range sortedKeys(v.st.applications) {
			if app := v.st.applications[appID]; app.CurrentHomeID != nil && *app.CurrentHomeID == h.ID {
				linked := appID
				owner.ApplicationID = &linked
				break
			}
		}
		out = append(out, owner)
	}
	for _, id := range sortedKeys(v.st.offers) {
		o := v.st.offers[id]
		if o.PropertyAddressID != nil && *o.PropertyAddressID == addressID {
			appID := o.ApplicationID
			out = append(out, store.AddressOwner{Kind: domain.KindOffer, ID: o.ID, ApplicationID: &appID})
		}
	}
	return out, nil
}

func (v view) ListOffers(_ context.Context, applicationID uuid.UUID) ([]domain.Offer, error) {
	return filter(v.st.offers,
		func(o domain.Offer) bool { return o.ApplicationID == applicationID },
		func(a, b domain.Offer) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

func (v view) ListOfferClosingLoads(_ context.Context, from, to domain.Date) ([]store.ClosingLoad, error) {
	out := make([]store.ClosingLoad, 0)
	for _, id := range sortedKeys(v.st.offers) {
		o := v.st.offers[id]
		if o.PreferredClosingDate == nil || o.PreferredClosingDate.Before(from) || o.PreferredClosingDate.After(to) {
			continue
		}
		app, ok := v.st.applications[o.ApplicationID]
		if !ok {
			continue
		}
		out = append(out, store.ClosingLoad{Date: *o.PreferredClosingDate, Stage: app.Stage, Status: o.Status})
	}
	return out, nil
}

func (v view) GetLoan(_ context.Context, id uuid.UUID) (domain.Loan, error) {
	return lookup(v.st.loans, id, "loan")
}

func (v view) FindLoanByBlendID(_ context.Context, blendApplicationID string) (domain.Loan, error) {
	return findOne(v.st.loans, "loan", func(l domain.Loan) bool { return l.BlendApplicationID == blendApplicationID })
}

func (v view) ListLoans(_ context.Context, applicationID uuid.UUID) ([]domain.Loan, error) {
	return filter(v.st.loans,
		func(l domain.Loan) bool { return l.ApplicationID == applicationID },
		func(a, b domain.Loan) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

func (v view) GetPricing(_ context.Context, id uuid.UUID) (domain.Pricing, error) {
	return lookup(v.st.pricing, id, "pricing")
}

func (v view) ListPricingCreatedBetween(_ context.Context, from, to time.Time) ([]domain.Pricing, error) {
	return filter(v.st.pricing,
		func(p domain.Pricing) bool { return !p.CreatedAt.Before(from) && p.CreatedAt.Before(to) },
		func(a, b domain.Pricing) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

func (v view) GetSupportUser(_ context.Context, id uuid.UUID) (domain.InternalSupportUser, error) {
	return lookup(v.st.supportUsers, id, "support user")
}

func (v view) FindSupportUserBySalesforceID(_ context.Context, salesforceID string) (domain.InternalSupportUser, error) {
	return findOne(v.st.supportUsers, "support user", func(u domain.InternalSupportUser) bool {
		return ptrEquals(u.SalesforceID, salesforceID)
	})
}

func (v view) ListStakeholders(_ context.Context, applicationID uuid.UUID) ([]domain.Stakeholder, error) {
	return filter(v.st.stakeholders,
		func(s domain.Stakeholder) bool { return s.ApplicationID == applicationID },
		func(a, b domain.Stakeholder) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

func (v view) ListTaskStatuses(_ context.Context, applicationID uuid.UUID) ([]domain.TaskStatus, error) {
	out := make([]domain.TaskStatus, 0)
	for k, t := range v.st.tasks {
		if k.applicationID == applicationID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v view) ListStageHistory(_ context.Context, applicationID uuid.UUID) ([]domain.StageHistory, error) {
	out := make([]domain.StageHistory, 0)
	for _, h := range v.st.stageHistory {
		if h.ApplicationID == applicationID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (v view) ListNotes(_ context.Context, applicationID uuid.UUID) ([]domain.Note, error) {
	out := make([]domain.Note, 0)
	for _, n := range v.st.notes {
		if n.ApplicationID == applicationID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (v view) ListAuditEntries(_ context.Context, entityID uuid.UUID) ([]domain.AuditEntry, error) {
	out := make([]domain.AuditEntry, 0)
	for _, e := range v.st.audit {
		if e.EntityID == entityID || (e.ApplicationID != nil && *e.ApplicationID == entityID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v view) GetNotificationByName(_ context.Context, name string) (domain.Notification, error) {
	return findOne(v.st.notifications, "notification", func(n domain.Notification) bool { return n.Name == name })
}

func (v view) ListNotifications(_ context.Context) ([]domain.Notification, error) {
	return filter(v.st.notifications,
		func(domain.Notification) bool { return true },
		func(a, b domain.Notification) bool { return a.Name < b.Name }), nil
}

func (v view) ListNotificationStatuses(_ context.Context, applicationID uuid.UUID, notificationID *uuid.UUID) ([]domain.NotificationStatus, error) {
	out := make([]domain.NotificationStatus, 0)
	for _, s := range v.st.notificationStatuses {
		if s.ApplicationID != applicationID {
			continue
		}
		if notificationID != nil && s.NotificationID != *notificationID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
