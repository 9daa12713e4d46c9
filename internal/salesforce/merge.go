package salesforce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/store"
	"bbys_backend/internal/tasks"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/logger"
	"bbys_backend/platform/metrics"
	"bbys_backend/platform/phone"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Record types accepted by Merge.
const (
	RecordAccount     = "Account"
	RecordOldHome     = "OldHome"
	RecordQuote       = "Quote"
	RecordTransaction = "Transaction"
	RecordLoan        = "Loan"
	RecordOffer       = "Offer"
)

// Transaction record types.
const (
	TransactionOffer            = "Offer"
	TransactionHomewardPurchase = "HomewardPurchase"
	TransactionCustomerPurchase = "CustomerPurchase"
	TransactionOldHomeSale      = "OldHomeSale"
)

// ErrSkipped marks a record that was deliberately not merged.
var ErrSkipped = errors.New("salesforce record skipped")

// Merger folds CRM records into the entity store. A null or missing CRM
// value never clears a local one.
type Merger struct {
	machine *lifecycle.Machine
	engine  *tasks.Engine
	crm     CRM
	log     *logger.Logger
}

func NewMerger(machine *lifecycle.Machine, engine *tasks.Engine, crm CRM, log *logger.Logger) *Merger {
	return &Merger{machine: machine, engine: engine, crm: crm, log: log}
}

// Merge folds one record of the given type. ErrSkipped is returned for
// records left alone on purpose, such as ambiguous accounts.
func (m *Merger) Merge(ctx context.Context, recordType string, rec gjson.Result) error {
	var err error
	switch recordType {
	case RecordAccount:
		err = m.MergeAccount(ctx, rec)
	case RecordOldHome:
		err = m.MergeOldHome(ctx, rec)
	case RecordQuote:
		err = m.MergeQuote(ctx, rec)
	case RecordTransaction:
		err = m.MergeTransaction(ctx, rec)
	case RecordLoan:
		err = m.MergeLoan(ctx, rec)
	case RecordOffer:
		err = m.mergeOfferTransaction(ctx, rec)
	default:
		err = apperr.BadRequest(fmt.Sprintf("unknown record type %q", recordType))
	}
	metrics.InboundMerges.WithLabelValues(recordType, mergeResult(err)).Inc()
	return err
}

func mergeResult(err error) string {
	switch {
	case err == nil:
		return "merged"
	case errors.Is(err, ErrSkipped):
		return "skipped"
	default:
		return "error"
	}
}

// Sync fetches a record by CRM id and merges it.
func (m *Merger) Sync(ctx context.Context, recordType, sfID string) error {
	var object, fields string
	switch recordType {
	case RecordAccount:
		object, fields = ObjectAccount, AccountFields.Select()
	case RecordOldHome:
		object, fields = ObjectOldHome, OldHomeFields.Select()
	case RecordQuote:
		object, fields = ObjectQuote, QuoteFields.Select()
	case RecordLoan:
		object, fields = ObjectLoan, LoanFields.Select()
	case RecordTransaction:
		object, fields = ObjectTransaction, transactionSelect()
	case RecordOffer:
		object, fields = ObjectOffer, OfferFields.Select()
	default:
		return apperr.BadRequest(fmt.Sprintf("unknown record type %q", recordType))
	}
	soql := fmt.Sprintf("SELECT %s FROM %s WHERE Id = %s LIMIT 1", fields, object, quote(sfID))
	found, err := m.crm.Query(ctx, soql)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return apperr.NotFound(fmt.Sprintf("%s %s not found in salesforce", object, sfID))
	}
	return m.Merge(ctx, recordType, found[0])
}

// MergeOrSync merges a pushed record, or fetches it first when the CRM sent
// no more than its id.
func (m *Merger) MergeOrSync(ctx context.Context, recordType string, rec gjson.Result) error {
	sfID := rec.Get("Id").String()
	if sfID == "" {
		return apperr.FieldError("Id", "record has no salesforce id")
	}
	fields := 0
	rec.ForEach(func(key, _ gjson.Result) bool {
		if k := key.String(); k != "Id" && k != "attributes" {
			fields++
		}
		return true
	})
	if fields == 0 {
		return m.Sync(ctx, recordType, sfID)
	}
	return m.Merge(ctx, recordType, rec)
}

// ValidRecordType reports whether Merge accepts recordType.
func ValidRecordType(recordType string) bool {
	switch recordType {
	case RecordAccount, RecordOldHome, RecordQuote, RecordTransaction, RecordLoan, RecordOffer:
		return true
	}
	return false
}

func transactionSelect() string {
	seen := map[string]bool{"Id": true}
	fields := []string{"Id", "RecordType.Name"}
	for _, t := range []*Table{OfferFields, HomewardPurchaseFields, CustomerPurchaseFields} {
		for _, f := range strings.Split(t.Select(), ", ") {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return strings.Join(fields, ", ")
}

// upsertEntity inserts next when there is no current row and updates it
// when a tracked field differs.
func upsertEntity[T any](ctx context.Context, current *T, next T, snap func(T) domain.Snapshot,
	insert, update func(context.Context, T) (T, error),
) (T, error) {
	if current == nil {
		return insert(ctx, next)
	}
	if len(domain.Diff(snap(*current), snap(next))) == 0 {
		return next, nil
	}
	return update(ctx, next)
}

var addressKeys = []string{"street", "unit", "city", "state", "zip"}

// mergeAddress updates the address in place or creates it when the payload
// carries any address field. It returns the id to link, if any.
func mergeAddress(ctx context.Context, tx *lifecycle.Tx, current *domain.Address, in Fields) (*uuid.UUID, error) {
	if !in.Has(addressKeys...) {
		if current != nil {
			return &current.ID, nil
		}
		return nil, nil
	}
	var next domain.Address
	if current != nil {
		next = *current
	}
	in.Text("street", &next.Street)
	in.TextPtr("unit", &next.Unit)
	in.Text("city", &next.City)
	in.Text("state", &next.State)
	in.Text("zip", &next.Zip)
	stored, err := upsertEntity(ctx, current, next, domain.SnapshotAddress, tx.InsertAddress, tx.UpdateAddress)
	if err != nil {
		return nil, err
	}
	return &stored.ID, nil
}

// =============================================================================
// Account
// =============================================================================

// remoteUsers are the CRM records fetched before the unit of work opens so
// no transaction is held across CRM calls.
type remoteUsers struct {
	agents  map[string]Fields
	support map[string]Fields
}

// MergeAccount folds a person account into its application graph and
// recomputes the tasks of the application.
func (m *Merger) MergeAccount(ctx context.Context, rec gjson.Result) error {
	sfID := rec.Get("Id").String()
	in := AccountFields.Inbound(rec)

	appID, err := m.resolveAccount(ctx, sfID, in)
	if err != nil {
		return err
	}
	remote, err := m.prefetch(ctx, appID, in)
	if err != nil {
		return err
	}

	return m.machine.Transact(ctx, lifecycle.SourceSalesforce, func(tx *lifecycle.Tx) error {
		app, err := tx.LockApplication(ctx, appID)
		if err != nil {
			return err
		}
		g, err := store.LoadGraphFor(ctx, tx, app)
		if err != nil {
			return err
		}
		if app.SalesforceID == nil && sfID != "" {
			app.SalesforceID = &sfID
		}
		m.mergeApplicationFields(&app, in)

		steps := []func(context.Context, *lifecycle.Tx, *domain.ApplicationGraph, *domain.Application, Fields) error{
			m.mergeCustomer,
			m.mergeBuilder,
			m.mergeLender,
			m.mergeOfferProperty,
			m.mergeCurrentHome,
			m.mergePreapproval,
			m.mergeNewHomePurchase,
			m.mergeTransactionCoordinator,
		}
		for _, step := range steps {
			if err := step(ctx, tx, g, &app, in); err != nil {
				return err
			}
		}
		if err := m.mergeSupportUsers(ctx, tx, &app, in, remote); err != nil {
			return err
		}
		if err := m.mergeAgents(ctx, tx, g, &app, in, remote); err != nil {
			return err
		}
		if applicationChanged(g.Application, app) {
			if _, err := tx.UpdateApplication(ctx, app); err != nil {
				return err
			}
		}
		_, err = m.engine.RecomputeTx(ctx, tx, appID)
		return err
	})
}

func applicationChanged(before, after domain.Application) bool {
	if domain.Deref(before.SalesforceID) != domain.Deref(after.SalesforceID) {
		return true
	}
	return len(domain.Diff(domain.SnapshotApplication(before), domain.SnapshotApplication(after))) > 0
}

// resolveAccount finds the application of an account by CRM id, then by
// local id, then by customer email. Two applications for one email are
// logged and skipped.
func (m *Merger) resolveAccount(ctx context.Context, sfID string, in Fields) (uuid.UUID, error) {
	st := m.machine.Store()
	if sfID != "" {
		app, err := st.FindApplicationBySalesforceID(ctx, sfID)
		if err == nil {
			return app.ID, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return uuid.Nil, err
		}
	}
	if raw, ok := in["id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			app, err := st.GetApplication(ctx, id)
			if err == nil {
				return app.ID, nil
			}
			if !apperr.Is(err, apperr.KindNotFound) {
				return uuid.Nil, err
			}
		}
	}
	email := in["customer.email"]
	if email == "" {
		return uuid.Nil, apperr.NotFound("no application for salesforce account " + sfID)
	}
	apps, err := st.FindApplicationsByCustomerEmail(ctx, email)
	if err != nil {
		return uuid.Nil, err
	}
	switch len(apps) {
	case 0:
		return uuid.Nil, apperr.NotFound("no application for salesforce account " + sfID)
	case 1:
		return apps[0].ID, nil
	}
	m.log.Warn("salesforce account matches several applications, skipped",
		"salesforce_id", sfID, "email", domain.NormalizeEmail(email), "matches", len(apps))
	return uuid.Nil, ErrSkipped
}

// prefetch reads the remote agents and support users the account points at
// that are not known locally yet.
func (m *Merger) prefetch(ctx context.Context, appID uuid.UUID, in Fields) (remoteUsers, error) {
	remote := remoteUsers{agents: map[string]Fields{}, support: map[string]Fields{}}
	st := m.machine.Store()
	g, err := store.LoadGraph(ctx, st, appID)
	if err != nil {
		return remote, err
	}

	for _, pair := range []struct {
		key   string
		local *domain.Agent
	}{{"listing_agent", g.ListingAgent}, {"buying_agent", g.BuyingAgent}} {
		id := in[pair.key]
		if id == "" || (pair.local != nil && domain.Deref(pair.local.SalesforceID) == id) {
			continue
		}
		if _, err := st.FindAgentBySalesforceID(ctx, id); err == nil {
			continue
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return remote, err
		}
		rec, err := m.crm.Get(ctx, ObjectContact, id)
		if err != nil {
			return remote, err
		}
		remote.agents[id] = ContactFields.Inbound(rec)
	}

	for _, key := range []string{"loan_advisor", "approval_specialist"} {
		id := in[key]
		if id == "" {
			continue
		}
		rec, err := m.crm.Get(ctx, ObjectUser, id)
		if err != nil {
			return remote, err
		}
		remote.support[id] = UserFields.Inbound(rec)
	}
	return remote, nil
}

func (m *Merger) mergeApplicationFields(app *domain.Application, in Fields) {
	if v, ok := in["stage"]; ok {
		if stage := domain.ApplicationStage(enumValue(v)); stage.Valid() {
			app.Stage = stage
		} else {
			m.log.Warn("unknown stage from salesforce ignored", "application_id", app.ID, "stage", v)
		}
	}
	if v, ok := in["mortgage_status"]; ok {
		if status := domain.MortgageStatus(enumValue(v)); status.Valid() {
			app.MortgageStatus = &status
		} else {
			m.log.Warn("unknown mortgage status from salesforce ignored", "application_id", app.ID, "mortgage_status", v)
		}
	}
	if v, ok := in["product_offering"]; ok {
		po, valid := domain.ParseProductOffering(v)
		switch {
		case !valid:
		case app.ProductOffering == domain.ProductBuySell && po != domain.ProductBuySell:
			m.log.Warn("salesforce product offering downgrade ignored",
				"application_id", app.ID, "product_offering", v)
		default:
			app.ProductOffering = po
		}
	}
	if v, ok := in["hw_mortgage_candidate"]; ok {
		if c, valid := parseCandidate(v); valid {
			app.HWMortgageCandidate = c
		}
	}
	in.TextPtr("lead_status", &app.LeadStatus)
	in.Decimal("min_price", &app.MinPrice)
	in.Decimal("max_price", &app.MaxPrice)
	in.TextPtr("move_in", &app.MoveIn)
	in.TextPtr("apex_partner_slug", &app.ApexPartnerSlug)
	in.TextPtr("homeward_owner_email", &app.HomewardOwnerEmail)
	in.TextPtr("blend_status", &app.BlendStatus)
	in.TextPtr("property_state", &app.PropertyState)
	in.Bool("registered_client", &app.RegisteredClient)
	in.Time("disclosures_acknowledged_at", &app.DisclosuresAcknowledgedAt)
	in.Time("service_agreement_acknowledged_at", &app.ServiceAgreementAcknowledgedAt)
}

// enumValue turns "Qualified Application" or "qualified_application" into
// QUALIFIED_APPLICATION.
func enumValue(v string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(v), " ", "_"))
}

func parseCandidate(v string) (domain.HWMortgageCandidate, bool) {
	for _, c := range []domain.HWMortgageCandidate{domain.HWCandidateYes, domain.HWCandidateNo, domain.HWCandidateNotDetermined} {
		if strings.EqualFold(strings.TrimSpace(v), string(c)) {
			return c, true
		}
	}
	return "", false
}

func (m *Merger) mergeCustomer(ctx context.Context, tx *lifecycle.Tx, g *domain.ApplicationGraph, _ *domain.Application, in Fields) error {
	c := in.Sub("customer.")
	next := g.Customer
	c.Text("first_name", &next.FirstName)
	if v, ok := c["last_name"]; ok {
		next.LastName = strings.TrimSpace(strings.ReplaceAll(v, "NotProvided", ""))
	}
	if p := phone.Normalize(c["phone"]); p != nil {
		next.Phone = p
	}
	c.TextPtr("co_borrower_email", &next.CoBorrowerEmail)
	_, err := upsertEntity(ctx, &g.Customer, next, domain.SnapshotCustomer, tx.InsertCustomer, tx.UpdateCustomer)
	return err
}

func (m *Merger) mergeBuilder(ctx context.Context, tx *lifecycle.Tx, g *domain.ApplicationGraph, app *domain.Application, in Fields) error {
	b := in.Sub("builder.")
	if len(b) == 0 {
		return nil
	}
	var next domain.Builder
	if g.Builder != nil {
		next = *g.Builder
	}
	b.TextPtr("company", &next.Company)
	b.TextPtr("representative_name", &next.RepresentativeName)
	b.TextPtr("representative_email", &next.RepresentativeEmail)
	if p := phone.Normalize(b["representative_phone"]); p != nil {
		next.RepresentativePhone = p
	}
	addrID, err := mergeAddress(ctx, tx, g.BuilderAddress, b.Sub("address."))
	if err != nil {
		return err
	}
	next.AddressID = addrID
	stored, err := upsertEntity(ctx, g.Builder, next, domain.SnapshotBuilder, tx.InsertBuilder, tx.UpdateBuilder)
	if err != nil {
		return err
	}
	app.BuilderID = &stored.ID
	return nil
}

func (m *Merger) mergeLender(ctx context.Context, tx *lifecycle.Tx, g *domain.ApplicationGraph, app *domain.Application, in Fields) error {
	l := in.Sub("lender.")
	if len(l) == 0 {
		return nil
	}
	var next domain.Lender
	if g.Lender != nil {
		next = *g.Lender
	}
	l.TextPtr("company", &next.Company)
	l.TextPtr("loan_officer_name", &next.LoanOfficerName)
	l.TextPtr("loan_officer_email", &next.LoanOfficerEmail)
	l.TextPtr("loan_officer_phone", &next.LoanOfficerPhone)
	stored, err := upsertEntity(ctx, g.Lender, next, domain.SnapshotLender, tx.InsertLender, tx.UpdateLender)
	if err != nil {
		return err
	}
	app.MortgageLenderID = &stored.ID
	return nil
}

func (m *Merger) mergeOfferProperty(ctx context.Context, tx *lifecycle.Tx, g *domain.ApplicationGraph, app *domain.Application, in Fields) error {
	id, err := mergeAddress(ctx, tx, g.OfferPropertyAddress, in.Sub("offer_property."))
	if err != nil {
		return err
	}
	if id != nil {
		app.OfferPropertyAddressID = id
	}
	return nil
}

func (m *Merger) mergeCurrentHome(ctx context.Context, tx *lifecycle.Tx, g *domain.ApplicationGraph, app *domain.Application, in Fields) error {
	h := in.Sub("current_home.")
	if len(h) == 0 {
		return nil
	}
	var next domain.CurrentHome
	if g.CurrentHome != nil {
		next = *g.CurrentHome
	}
	h.TextPtr("floor_price_type", &next.FloorPriceType)
	h.Decimal("floor_price_amount", &next.FloorPriceAmount)
	h.Decimal("floor_price_preliminary_amount", &next.FloorPricePreliminaryAmount)
	h.Decimal("market_value", &next.MarketValue)
	h.Decimal("outstanding_loan_amount", &next.OutstandingLoanAmount)
	addrID, err := mergeAddress(ctx, tx, g.CurrentHomeAddress, h.Sub("address."))
	if err != nil {
		return err
	}
	next.AddressID = addrID
	stored, err := upsertEntity(ctx, g.CurrentHome, next, domain.SnapshotCurrentHome, tx.InsertCurrentHome, tx.UpdateCurrentHome)
	if err != nil {
		return err
	}
	app.CurrentHomeID = &stored.ID
	return nil
}

func (m *Merger) mergePreapproval(ctx context.Context, tx *lifecycle.Tx, g *domain.ApplicationGraph, app *domain.Application, in Fields) error {
	p := in.Sub("preapproval.")
	if !p.Has("amount", "estimated_down_payment", "vpal_approval_date", "hw_mortgage_conditions") {
		return nil
	}
	var next domain.Preapproval
	if g.Preapproval != nil {
		next = *g.Preapproval
	}
	p.Decimal("amount", &next.Amount)
	p.Decimal("estimated_down_payment", &next.EstimatedDownPayment)
	p.Date("vpal_approval_date", &next.VPALApprovalDate)
	p.TextPtr("hw_mortgage_conditions", &next.HWMortgageConditions)
	stored, err := upsertEntity(ctx, g.Preapproval, next, domain.SnapshotPreapproval, tx.InsertPreapproval, tx.UpdatePreapproval)
	if err != nil {
		return err
	}
	app.PreapprovalID = &stored.ID
	return nil
}

// mergeNewHomePurchase creates the purchase only once a contract date is
// known; otherwise it updates an existing purchase in place.
func (m *Merger) mergeNewHomePurchase(ctx context.Context, tx *lifecycle.Tx, g *domain.ApplicationGraph, app *domain.Application, in Fields) error {
	n := in.Sub("new_home_purchase.")
	if g.NewHomePurchase == nil && !n.Has("option_period_end_date", "homeward_purchase_close_date") {
		return nil
	}
	if len(n) == 0 {
		return nil
	}
	var next domain.NewHomePurchase
	if g.NewHomePurchase != nil {
		next = *g.NewHomePurchase
	}
	n.Date("option_period_end_date", &next.OptionPeriodEndDate)
	n.Date("homeward_purchase_close_date", &next.HomewardPurchaseCloseDate)
	n.Decimal("contract_price", &next.ContractPrice)
	n.Bool("is_reassigned_contract", &next.IsReassignedContract)
	addrID, err := mergeAddress(ctx, tx, g.NewHomeAddress, n.Sub("address."))
	if err != nil {
		return err
	}
	next.AddressID = addrID
	stored, err := upsertEntity(ctx, g.NewHomePurchase, next, domain.SnapshotNewHomePurchase, tx.InsertNewHomePurchase, tx.UpdateNewHomePurchase)
	if err != nil {
		return err
	}
	app.NewHomePurchaseID = &stored.ID
	return nil
}

// mergeTransactionCoordinator replaces the coordinator when the email differs.
func (m *Merger) mergeTransactionCoordinator(ctx context.Context, tx *lifecycle.Tx, g *domain.ApplicationGraph, app *domain.Application, in Fields) error {
	email := domain.NormalizeEmail(in["tc.email"])
	if email == "" {
		return nil
	}
	current := g.TransactionCoordinator()
	if current != nil && domain.NormalizeEmail(current.Email) == email {
		return nil
	}
	if current != nil {
		if err := tx.DeleteStakeholder(ctx, current.ID); err != nil {
			return err
		}
	}
	tc := domain.Stakeholder{
		ApplicationID: app.ID,
		Type:          domain.StakeholderTransactionCoordinator,
		Email:         email,
	}
	in.TextPtr("tc.name", &tc.Name)
	_, err := tx.InsertStakeholder(ctx, tc)
	return err
}

// mergeSupportUsers assigns the CX manager only when the account owner's
// profile is a CX profile; loan advisor and approval specialist follow
// their lookups unconditionally.
func (m *Merger) mergeSupportUsers(ctx context.Context, tx *lifecycle.Tx, app *domain.Application, in Fields, remote remoteUsers) error {
	owner := in["owner"]
	if owner != "" && strings.Contains(strings.ToLower(in["owner.profile"]), "cx") {
		u := domain.InternalSupportUser{Role: domain.RoleCxManager, SalesforceID: &owner, Name: in["owner.name"]}
		in.TextPtr("owner.email", &u.Email)
		in.TextPtr("owner.phone", &u.Phone)
		stored, err := tx.UpsertSupportUser(ctx, u)
		if err != nil {
			return err
		}
		app.CxManagerID = &stored.ID
	}

	for _, assign := range []struct {
		key  string
		role domain.SupportRole
		dst  **uuid.UUID
	}{
		{"loan_advisor", domain.RoleLoanAdvisor, &app.LoanAdvisorID},
		{"approval_specialist", domain.RoleApprovalSpecialist, &app.ApprovalSpecialistID},
	} {
		id := in[assign.key]
		if id == "" {
			continue
		}
		fields := remote.support[id]
		u := domain.InternalSupportUser{Role: assign.role, SalesforceID: &id, Name: fields["name"]}
		fields.TextPtr("email", &u.Email)
		fields.TextPtr("phone", &u.Phone)
		fields.TextPtr("photo_url", &u.PhotoURL)
		fields.TextPtr("bio", &u.Bio)
		fields.TextPtr("schedule_a_call_url", &u.ScheduleACallURL)
		stored, err := tx.UpsertSupportUser(ctx, u)
		if err != nil {
			return err
		}
		*assign.dst = &stored.ID
	}
	return nil
}

// mergeAgents links the agents the account points at. An agent row that
// already exists is adopted as is, never overwritten.
func (m *Merger) mergeAgents(ctx context.Context, tx *lifecycle.Tx, g *domain.ApplicationGraph, app *domain.Application, in Fields, remote remoteUsers) error {
	for _, link := range []struct {
		key   string
		local *domain.Agent
		dst   **uuid.UUID
	}{
		{"listing_agent", g.ListingAgent, &app.ListingAgentID},
		{"buying_agent", g.BuyingAgent, &app.BuyingAgentID},
	} {
		id := in[link.key]
		if id == "" || (link.local != nil && domain.Deref(link.local.SalesforceID) == id) {
			continue
		}
		agent, err := m.resolveAgent(ctx, tx, id, remote.agents[id])
		if err != nil {
			return err
		}
		*link.dst = &agent.ID
	}
	return nil
}

func (m *Merger) resolveAgent(ctx context.Context, tx *lifecycle.Tx, sfID string, fields Fields) (domain.Agent, error) {
	agent, err := tx.FindAgentBySalesforceID(ctx, sfID)
	if err == nil || !apperr.Is(err, apperr.KindNotFound) {
		return agent, err
	}
	if fields == nil {
		return domain.Agent{}, apperr.NotFound("salesforce contact " + sfID + " was not fetched")
	}
	if email := fields["email"]; email != "" {
		agent, err := tx.FindAgentByEmail(ctx, domain.NormalizeEmail(email))
		if err == nil || !apperr.Is(err, apperr.KindNotFound) {
			return agent, err
		}
	}
	next := domain.Agent{Name: fields["name"], SalesforceID: &sfID}
	fields.TextPtr("email", &next.Email)
	fields.TextPtr("company", &next.Company)
	next.Phone = phone.Normalize(fields["phone"])
	return tx.InsertAgent(ctx, next)
}

// =============================================================================
// Old home, quote, loan
// =============================================================================

// applicationForAccount finds the application of a child record's account.
func (m *Merger) applicationForAccount(ctx context.Context, q store.Queries, account string) (domain.Application, error) {
	if account == "" {
		return domain.Application{}, apperr.Validation("record has no account")
	}
	return q.FindApplicationBySalesforceID(ctx, account)
}

// MergeOldHome folds an Old_Home__c record into the current home of its account.
func (m *Merger) MergeOldHome(ctx context.Context, rec gjson.Result) error {
	sfID := rec.Get("Id").String()
	in := OldHomeFields.Inbound(rec)
	app, err := m.applicationForAccount(ctx, m.machine.Store(), in["account"])
	if err != nil {
		return err
	}
	return m.machine.Transact(ctx, lifecycle.SourceSalesforce, func(tx *lifecycle.Tx) error {
		locked, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		g, err := store.LoadGraphFor(ctx, tx, locked)
		if err != nil {
			return err
		}
		var next domain.CurrentHome
		if g.CurrentHome != nil {
			next = *g.CurrentHome
		}
		if next.SalesforceID == nil && sfID != "" {
			next.SalesforceID = &sfID
		}
		in.Decimal("market_value", &next.MarketValue)
		in.Decimal("outstanding_loan_amount", &next.OutstandingLoanAmount)
		in.Decimal("customer_value_opinion", &next.CustomerValueOpinion)
		in.TextPtr("floor_price_type", &next.FloorPriceType)
		in.Decimal("floor_price_amount", &next.FloorPriceAmount)
		in.Decimal("floor_price_preliminary_amount", &next.FloorPricePreliminaryAmount)
		if next.AddressID, err = mergeAddress(ctx, tx, g.CurrentHomeAddress, in.Sub("address.")); err != nil {
			return err
		}
		stored, err := upsertEntity(ctx, g.CurrentHome, next, domain.SnapshotCurrentHome, tx.InsertCurrentHome, tx.UpdateCurrentHome)
		if err != nil {
			return err
		}
		if locked.CurrentHomeID == nil || *locked.CurrentHomeID != stored.ID {
			locked.CurrentHomeID = &stored.ID
			if _, err := tx.UpdateApplication(ctx, locked); err != nil {
				return err
			}
		}
		_, err = m.engine.RecomputeTx(ctx, tx, locked.ID)
		return err
	})
}

// MergeQuote folds a Quote__c record into its pricing, creating the pricing
// when the quote was raised in the CRM.
func (m *Merger) MergeQuote(ctx context.Context, rec gjson.Result) error {
	sfID := rec.Get("Id").String()
	in := QuoteFields.Inbound(rec)
	return m.machine.Transact(ctx, lifecycle.SourceSalesforce, func(tx *lifecycle.Tx) error {
		var current *domain.Pricing
		if raw, ok := in["id"]; ok {
			id, err := uuid.Parse(raw)
			if err != nil {
				return apperr.FieldError("Homeward_ID__c", "not a valid id")
			}
			p, err := tx.GetPricing(ctx, id)
			if err != nil {
				return err
			}
			current = &p
		}
		var next domain.Pricing
		if current != nil {
			next = *current
		}
		if next.SalesforceID == nil && sfID != "" {
			next.SalesforceID = &sfID
		}
		in.TextPtr("contact_email", &next.ContactEmail)
		in.TextPtr("agent_email", &next.AgentEmail)
		if v, ok := in["product_offering"]; ok {
			if po, valid := domain.ParseProductOffering(v); valid {
				next.ProductOffering = &po
			}
		}
		in.Decimal("estimated_home_value", &next.EstimatedHomeValue)
		in.Decimal("estimated_convenience_fee", &next.EstimatedConvenienceFee)

		var app *domain.Application
		if account := in["account"]; account != "" && next.ApplicationID == nil {
			found, err := m.applicationForAccount(ctx, tx, account)
			if err != nil && !apperr.Is(err, apperr.KindNotFound) {
				return err
			}
			if err == nil {
				locked, err := tx.LockApplication(ctx, found.ID)
				if err != nil {
					return err
				}
				app = &locked
				next.ApplicationID = &locked.ID
			}
		}
		stored, err := upsertEntity(ctx, current, next, domain.SnapshotPricing, tx.InsertPricing, tx.UpdatePricing)
		if err != nil {
			return err
		}
		if app != nil && app.PricingID == nil {
			app.PricingID = &stored.ID
			_, err = tx.UpdateApplication(ctx, *app)
		}
		return err
	})
}

// MergeLoan upserts a loan by its origination-system id. The account link
// is mandatory.
func (m *Merger) MergeLoan(ctx context.Context, rec gjson.Result) error {
	sfID := rec.Get("Id").String()
	in := LoanFields.Inbound(rec)
	account, ok := in["customer"]
	if !ok {
		return apperr.FieldError("Customer__c", "loan record has no customer")
	}
	blendID, ok := in["blend_application_id"]
	if !ok {
		return apperr.FieldError("Blend_Application_ID__c", "loan record has no blend application id")
	}
	app, err := m.applicationForAccount(ctx, m.machine.Store(), account)
	if err != nil {
		return err
	}
	return m.machine.Transact(ctx, lifecycle.SourceSalesforce, func(tx *lifecycle.Tx) error {
		if _, err := tx.LockApplication(ctx, app.ID); err != nil {
			return err
		}
		var current *domain.Loan
		existing, err := tx.FindLoanByBlendID(ctx, blendID)
		switch {
		case err == nil:
			current = &existing
		case !apperr.Is(err, apperr.KindNotFound):
			return err
		}
		next := domain.Loan{ApplicationID: app.ID, BlendApplicationID: blendID}
		if current != nil {
			next = *current
		}
		if next.SalesforceID == nil && sfID != "" {
			next.SalesforceID = &sfID
		}
		in.TextPtr("status", &next.Status)
		in.TextPtr("denial_reason", &next.DenialReason)
		in.Decimal("base_convenience_fee", &next.BaseConvenienceFee)
		in.Decimal("estimated_broker_credit", &next.EstimatedBrokerCredit)
		in.Decimal("estimated_mortgage_credit", &next.EstimatedMortgageCredit)
		in.Decimal("estimated_daily_rent", &next.EstimatedDailyRent)
		in.Decimal("estimated_monthly_rent", &next.EstimatedMonthlyRent)
		in.Decimal("estimated_earnest_deposit_percentage", &next.EstimatedEarnestDepositPercentage)
		if _, err := upsertEntity(ctx, current, next, domain.SnapshotLoan, tx.InsertLoan, tx.UpdateLoan); err != nil {
			return err
		}
		_, err = m.engine.RecomputeTx(ctx, tx, app.ID)
		return err
	})
}

// SyncQueue hands pushed-back CRM records to whatever merges them.
type SyncQueue interface {
	EnqueueSync(ctx context.Context, recordType string, record []byte) error
}

// InlineSync merges in the caller's goroutine. Skipped records count as done.
type InlineSync struct {
	Merger *Merger
}

func (i InlineSync) EnqueueSync(ctx context.Context, recordType string, record []byte) error {
	err := i.Merger.MergeOrSync(ctx, recordType, gjson.ParseBytes(record))
	if errors.Is(err, ErrSkipped) {
		return nil
	}
	return err
}
