package salesforce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const auditPushFailed = "salesforce_push_failed"

// CRM is the subset of Client the sync flows use.
type CRM interface {
	Query(ctx context.Context, soql string) ([]gjson.Result, error)
	Get(ctx context.Context, object, id string) (gjson.Result, error)
	Create(ctx context.Context, object string, fields map[string]any) (string, error)
	Update(ctx context.Context, object, id string, fields map[string]any) error
}

// Job asks for one entity to be pushed. ApplicationID scopes child records.
type Job struct {
	Kind          domain.EntityKind `json:"kind"`
	EntityID      uuid.UUID         `json:"entity_id"`
	ApplicationID *uuid.UUID        `json:"application_id,omitempty"`
}

// Key orders jobs of one application on the same stream partition.
func (j Job) Key() string {
	if j.ApplicationID != nil {
		return j.ApplicationID.String()
	}
	return j.EntityID.String()
}

// Queue hands push jobs to whatever runs them.
type Queue interface {
	EnqueuePush(ctx context.Context, job Job) error
}

// Inline pushes in the caller's goroutine.
type Inline struct {
	Pusher *Pusher
}

func (i Inline) EnqueuePush(ctx context.Context, job Job) error {
	return i.Pusher.Push(ctx, job)
}

// Pusher writes local entities to the CRM. A record is pushed only when it
// changed after its last successful push.
type Pusher struct {
	store store.Store
	crm   CRM
	log   *logger.Logger
	now   func() time.Time
}

// PusherOption configures a Pusher.
type PusherOption func(*Pusher)

// WithPushClock overrides the clock stamped on pushed records.
func WithPushClock(now func() time.Time) PusherOption {
	return func(p *Pusher) { p.now = now }
}

func NewPusher(st store.Store, crm CRM, log *logger.Logger, opts ...PusherOption) *Pusher {
	p := &Pusher{
		store: st,
		crm:   crm,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push runs one job. Suppressed CRM errors and vanished entities count as
// done; every other error is returned for the caller's retry policy.
func (p *Pusher) Push(ctx context.Context, job Job) error {
	err := p.push(ctx, job)
	if err == nil {
		return nil
	}
	op := "push_" + string(job.Kind)
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		p.log.CRMError(op, apiErr.Code, apiErr.Suppressed(), err)
		if apiErr.Suppressed() {
			return nil
		}
	case apperr.Is(err, apperr.KindNotFound):
		p.log.Warn("salesforce push skipped, entity not found",
			"kind", job.Kind, "entity_id", job.EntityID, "error", err)
		return nil
	default:
		p.log.CRMError(op, "", false, err)
	}
	return err
}

// RecordFailure writes the audit row of a job that exhausted its retries.
func (p *Pusher) RecordFailure(ctx context.Context, job Job, cause error) error {
	return p.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertAudit(ctx, domain.AuditEntry{
			Kind:          auditPushFailed,
			EntityID:      job.EntityID,
			ApplicationID: job.ApplicationID,
			Message:       fmt.Sprintf("push %s: %v", job.Kind, cause),
		})
	})
}

func (p *Pusher) push(ctx context.Context, job Job) error {
	switch job.Kind {
	case domain.KindApplication:
		_, err := p.pushApplication(ctx, job.EntityID, false)
		return err
	case domain.KindCustomer, domain.KindUserLogin:
		return p.pushCustomer(ctx, job.EntityID)
	case domain.KindCurrentHome:
		return p.pushCurrentHome(ctx, job)
	case domain.KindAgent:
		return p.pushAgent(ctx, job)
	case domain.KindLoan:
		return p.pushLoan(ctx, job.EntityID)
	case domain.KindPricing:
		return p.pushPricing(ctx, job.EntityID)
	case domain.KindOffer:
		return p.pushOffer(ctx, job.EntityID)
	}
	return apperr.BadRequest(fmt.Sprintf("unsupported push kind %q", job.Kind))
}

// fresh reports whether the last push happened at or after the last change.
func fresh(pushed *time.Time, updated ...time.Time) bool {
	if pushed == nil {
		return false
	}
	for _, u := range updated {
		if pushed.Before(u) {
			return false
		}
	}
	return true
}

func (p *Pusher) mark(ctx context.Context, kind domain.EntityKind, id uuid.UUID, sfID string, at time.Time) error {
	return p.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.MarkPushed(ctx, kind, id, sfID, at)
	})
}

// lookup is the natural key a record without a CRM id is searched by.
type lookup struct {
	field string
	value string
}

// upsert updates the record with a known id, adopts a record found by the
// lookup key, or creates one. It returns the CRM id.
func (p *Pusher) upsert(ctx context.Context, object string, sfID *string, by lookup, fields map[string]any) (string, error) {
	if id := domain.Deref(sfID); id != "" {
		return id, p.crm.Update(ctx, object, id, fields)
	}
	if by.value != "" {
		soql := fmt.Sprintf("SELECT Id FROM %s WHERE %s = %s LIMIT 1", object, by.field, quote(by.value))
		found, err := p.crm.Query(ctx, soql)
		if err != nil {
			return "", err
		}
		if len(found) > 0 {
			id := found[0].Get("Id").String()
			return id, p.crm.Update(ctx, object, id, fields)
		}
	}
	return p.crm.Create(ctx, object, fields)
}

// pushApplication pushes the person account and returns its CRM id. force
// skips the freshness gate, for parents of child records.
func (p *Pusher) pushApplication(ctx context.Context, id uuid.UUID, force bool) (string, error) {
	at := p.now()
	g, err := store.LoadGraph(ctx, p.store, id)
	if err != nil {
		return "", err
	}
	app := g.Application
	if fresh(app.PushedToSalesforceOn, app.UpdatedAt, g.Customer.UpdatedAt) {
		if !force || domain.Deref(app.SalesforceID) != "" {
			return domain.Deref(app.SalesforceID), nil
		}
	}
	sfID, err := p.upsert(ctx, ObjectAccount, app.SalesforceID,
		lookup{field: "PersonEmail", value: g.Customer.Email},
		AccountFields.Outbound(accountSnapshot(g)))
	if err != nil {
		return "", err
	}
	p.log.Info("salesforce account pushed", "application_id", id, "salesforce_id", sfID)
	return sfID, p.mark(ctx, domain.KindApplication, id, sfID, at)
}

func accountSnapshot(g *domain.ApplicationGraph) domain.Snapshot {
	s := domain.SnapshotApplication(g.Application)
	s["id"] = g.Application.ID.String()
	for k, v := range domain.SnapshotCustomer(g.Customer) {
		s["customer."+k] = v
	}
	if g.ListingAgent != nil {
		s["listing_agent"] = domain.Deref(g.ListingAgent.SalesforceID)
	}
	if g.BuyingAgent != nil {
		s["buying_agent"] = domain.Deref(g.BuyingAgent.SalesforceID)
	}
	return s
}

func (p *Pusher) pushCustomer(ctx context.Context, customerID uuid.UUID) error {
	customer, err := p.store.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	apps, err := p.store.FindApplicationsByCustomerEmail(ctx, customer.Email)
	if err != nil {
		return err
	}
	for _, app := range apps {
		if _, err := p.pushApplication(ctx, app.ID, false); err != nil {
			return err
		}
	}
	return nil
}

// parent returns the CRM account id of a child's application, pushing the
// application first when it has none yet.
func (p *Pusher) parent(ctx context.Context, applicationID uuid.UUID) (string, error) {
	app, err := p.store.GetApplication(ctx, applicationID)
	if err != nil {
		return "", err
	}
	if id := domain.Deref(app.SalesforceID); id != "" {
		return id, nil
	}
	return p.pushApplication(ctx, applicationID, true)
}

func (p *Pusher) pushCurrentHome(ctx context.Context, job Job) error {
	if job.ApplicationID == nil {
		p.log.Warn("salesforce push skipped, current home without application", "current_home_id", job.EntityID)
		return nil
	}
	at := p.now()
	home, err := p.store.GetCurrentHome(ctx, job.EntityID)
	if err != nil {
		return err
	}
	s := domain.SnapshotCurrentHome(home)
	updated := []time.Time{home.UpdatedAt}
	if home.AddressID != nil {
		addr, err := p.store.GetAddress(ctx, *home.AddressID)
		if err != nil {
			return err
		}
		for k, v := range domain.SnapshotAddress(addr) {
			s["address."+k] = v
		}
		updated = append(updated, addr.UpdatedAt)
	}
	if fresh(home.PushedToSalesforceOn, updated...) {
		return nil
	}
	account, err := p.parent(ctx, *job.ApplicationID)
	if err != nil {
		return err
	}
	s["id"] = home.ID.String()
	s["account"] = account
	sfID, err := p.upsert(ctx, ObjectOldHome, home.SalesforceID,
		lookup{field: "Account__c", value: account}, OldHomeFields.Outbound(s))
	if err != nil {
		return err
	}
	return p.mark(ctx, domain.KindCurrentHome, home.ID, sfID, at)
}

func (p *Pusher) pushAgent(ctx context.Context, job Job) error {
	at := p.now()
	agent, err := p.store.GetAgent(ctx, job.EntityID)
	if err != nil {
		return err
	}
	sfID := domain.Deref(agent.SalesforceID)
	if !fresh(agent.PushedToSalesforceOn, agent.UpdatedAt) {
		s := domain.SnapshotAgent(agent)
		s["id"] = agent.ID.String()
		s["first_name"], s["last_name"] = splitName(agent.Name)
		sfID, err = p.upsert(ctx, ObjectContact, agent.SalesforceID,
			lookup{field: "Email", value: domain.Deref(agent.Email)}, ContactFields.Outbound(s))
		if err != nil {
			return err
		}
		if err := p.mark(ctx, domain.KindAgent, agent.ID, sfID, at); err != nil {
			return err
		}
	}
	if job.ApplicationID == nil || sfID == "" {
		return nil
	}
	return p.linkAgent(ctx, *job.ApplicationID, agent.ID, sfID)
}

// linkAgent points the account's agent lookups at the pushed contact.
func (p *Pusher) linkAgent(ctx context.Context, applicationID, agentID uuid.UUID, contactID string) error {
	app, err := p.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	account := domain.Deref(app.SalesforceID)
	if account == "" {
		return nil
	}
	roles := domain.Snapshot{}
	if app.ListingAgentID != nil && *app.ListingAgentID == agentID {
		roles["listing_agent"] = contactID
	}
	if app.BuyingAgentID != nil && *app.BuyingAgentID == agentID {
		roles["buying_agent"] = contactID
	}
	if len(roles) == 0 {
		return nil
	}
	return p.crm.Update(ctx, ObjectAccount, account, AccountFields.Outbound(roles))
}

// splitName splits on the last space; a single word is the last name.
func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	i := strings.LastIndex(name, " ")
	if i < 0 {
		return "", name
	}
	return strings.TrimSpace(name[:i]), name[i+1:]
}

func (p *Pusher) pushLoan(ctx context.Context, id uuid.UUID) error {
	at := p.now()
	loan, err := p.store.GetLoan(ctx, id)
	if err != nil {
		return err
	}
	if fresh(loan.PushedToSalesforceOn, loan.UpdatedAt) {
		return nil
	}
	account, err := p.parent(ctx, loan.ApplicationID)
	if err != nil {
		return err
	}
	s := domain.SnapshotLoan(loan)
	s["id"] = loan.ID.String()
	s["customer"] = account
	sfID, err := p.upsert(ctx, ObjectLoan, loan.SalesforceID,
		lookup{field: "Blend_Application_ID__c", value: loan.BlendApplicationID}, LoanFields.Outbound(s))
	if err != nil {
		return err
	}
	return p.mark(ctx, domain.KindLoan, loan.ID, sfID, at)
}

func (p *Pusher) pushPricing(ctx context.Context, id uuid.UUID) error {
	at := p.now()
	pricing, err := p.store.GetPricing(ctx, id)
	if err != nil {
		return err
	}
	if fresh(pricing.PushedToSalesforceOn, pricing.UpdatedAt) {
		return nil
	}
	s := domain.SnapshotPricing(pricing)
	s["id"] = pricing.ID.String()
	if pricing.ApplicationID != nil {
		if s["account"], err = p.parent(ctx, *pricing.ApplicationID); err != nil {
			return err
		}
	}
	sfID, err := p.upsert(ctx, ObjectQuote, pricing.SalesforceID,
		lookup{field: "Homeward_ID__c", value: pricing.ID.String()}, QuoteFields.Outbound(s))
	if err != nil {
		return err
	}
	return p.mark(ctx, domain.KindPricing, pricing.ID, sfID, at)
}

func (p *Pusher) pushOffer(ctx context.Context, id uuid.UUID) error {
	at := p.now()
	offer, err := p.store.GetOffer(ctx, id)
	if err != nil {
		return err
	}
	s := offerSnapshot(offer)
	updated := []time.Time{offer.UpdatedAt}
	if offer.PropertyAddressID != nil {
		addr, err := p.store.GetAddress(ctx, *offer.PropertyAddressID)
		if err != nil {
			return err
		}
		for k, v := range domain.SnapshotAddress(addr) {
			s["address."+k] = v
		}
		updated = append(updated, addr.UpdatedAt)
	}
	if fresh(offer.PushedToSalesforceOn, updated...) {
		return nil
	}
	if s["account"], err = p.parent(ctx, offer.ApplicationID); err != nil {
		return err
	}
	sfID, err := p.upsert(ctx, ObjectOffer, offer.SalesforceID,
		lookup{field: "Homeward_ID__c", value: offer.ID.String()}, OfferFields.Outbound(s))
	if err != nil {
		return err
	}
	return p.mark(ctx, domain.KindOffer, offer.ID, sfID, at)
}

// offerSnapshot extends the tracked offer fields with the descriptive ones
// the CRM keeps.
func offerSnapshot(o domain.Offer) domain.Snapshot {
	s := domain.SnapshotOffer(o)
	s["id"] = o.ID.String()
	s["contract_type"] = domain.Deref(o.ContractType)
	s["property_type"] = domain.Deref(o.PropertyType)
	s["other_offers"] = domain.Deref(o.OtherOffers)
	s["plan_to_lease_back_to_seller"] = domain.Deref(o.PlanToLeaseBackToSeller)
	s["waive_appraisal"] = domain.Deref(o.WaiveAppraisal)
	s["pda_listing_uuid"] = domain.Deref(o.PDAListingUUID)
	if o.OfferPrice.Valid {
		s["offer_price"] = o.OfferPrice.Decimal.String()
	}
	if o.HomeListPrice.Valid {
		s["home_list_price"] = o.HomeListPrice.Decimal.String()
	}
	if o.LessThanOneAcre != nil {
		s["less_than_one_acre"] = fmt.Sprint(*o.LessThanOneAcre)
	}
	if o.YearBuilt != nil {
		s["year_built"] = fmt.Sprint(*o.YearBuilt)
	}
	if o.HomeSquareFootage != nil {
		s["home_square_footage"] = fmt.Sprint(*o.HomeSquareFootage)
	}
	if o.OfferDeadline != nil {
		s["offer_deadline"] = o.OfferDeadline.UTC().Format(time.RFC3339)
	}
	return s
}
