package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntityKind names an entity type in change events and outbox rows.
type EntityKind string

const (
	KindApplication     EntityKind = "application"
	KindCustomer        EntityKind = "customer"
	KindCurrentHome     EntityKind = "current_home"
	KindAgent           EntityKind = "agent"
	KindLoan            EntityKind = "loan"
	KindPricing         EntityKind = "pricing"
	KindOffer           EntityKind = "offer"
	KindNewHomePurchase EntityKind = "new_home_purchase"
	KindRent            EntityKind = "rent"
	KindPreapproval     EntityKind = "preapproval"
	KindAddress         EntityKind = "address"
	KindBuilder         EntityKind = "builder"
	KindLender          EntityKind = "lender"
	KindSupportUser     EntityKind = "support_user"
	KindStakeholder     EntityKind = "stakeholder"
	KindUserLogin       EntityKind = "user_login"
)

// Snapshot is the tracked fields of an entity rendered as comparable strings.
// An empty string stands for null.
type Snapshot map[string]string

// FieldChange is the before/after pair of one tracked field.
type FieldChange struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Diff returns the fields whose value differs between the snapshots.
func Diff(before, after Snapshot) map[string]FieldChange {
	changes := map[string]FieldChange{}
	for k, a := range after {
		if b := before[k]; b != a {
			changes[k] = FieldChange{Before: b, After: a}
		}
	}
	for k, b := range before {
		if _, ok := after[k]; !ok && b != "" {
			changes[k] = FieldChange{Before: b}
		}
	}
	return changes
}

// SnapshotApplication captures the tracked application fields.
// Push bookkeeping (salesforce id, pushed-on, updated-at) is not tracked.
func SnapshotApplication(a Application) Snapshot {
	filters := append([]string(nil), a.FilterStatus...)
	sort.Strings(filters)
	return Snapshot{
		"stage":                             string(a.Stage),
		"mortgage_status":                   str((*string)(a.MortgageStatus)),
		"lead_status":                       str(a.LeadStatus),
		"product_offering":                  string(a.ProductOffering),
		"min_price":                         dec(a.MinPrice),
		"max_price":                         dec(a.MaxPrice),
		"move_in":                           str(a.MoveIn),
		"hw_mortgage_candidate":             string(a.HWMortgageCandidate),
		"apex_partner_slug":                 str(a.ApexPartnerSlug),
		"homeward_owner_email":              str(a.HomewardOwnerEmail),
		"blend_status":                      str(a.BlendStatus),
		"property_state":                    str(a.PropertyState),
		"filter_status":                     strings.Join(filters, ","),
		"registered_client":                 strconv.FormatBool(a.RegisteredClient),
		"disclosures_acknowledged_at":       ts(a.DisclosuresAcknowledgedAt),
		"service_agreement_acknowledged_at": ts(a.ServiceAgreementAcknowledgedAt),
		"current_home_id":                   uid(a.CurrentHomeID),
		"preapproval_id":                    uid(a.PreapprovalID),
		"new_home_purchase_id":              uid(a.NewHomePurchaseID),
		"builder_id":                        uid(a.BuilderID),
		"mortgage_lender_id":                uid(a.MortgageLenderID),
		"listing_agent_id":                  uid(a.ListingAgentID),
		"buying_agent_id":                   uid(a.BuyingAgentID),
		"cx_manager_id":                     uid(a.CxManagerID),
		"loan_advisor_id":                   uid(a.LoanAdvisorID),
		"approval_specialist_id":            uid(a.ApprovalSpecialistID),
		"offer_property_address_id":         uid(a.OfferPropertyAddressID),
		"pricing_id":                        uid(a.PricingID),
	}
}

// SnapshotCustomer captures the tracked customer fields.
func SnapshotCustomer(c Customer) Snapshot {
	return Snapshot{
		"email":              c.Email,
		"first_name":         c.FirstName,
		"last_name":          c.LastName,
		"phone":              str(c.Phone),
		"co_borrower_email":  str(c.CoBorrowerEmail),
		"account_created_at": ts(c.AccountCreatedAt),
		"last_login_at":      ts(c.LastLoginAt),
	}
}

// SnapshotCurrentHome captures the tracked current-home fields.
func SnapshotCurrentHome(h CurrentHome) Snapshot {
	return Snapshot{
		"address_id":                     uid(h.AddressID),
		"market_value":                   dec(h.MarketValue),
		"outstanding_loan_amount":        dec(h.OutstandingLoanAmount),
		"customer_value_opinion":         dec(h.CustomerValueOpinion),
		"floor_price_type":               str(h.FloorPriceType),
		"floor_price_amount":             dec(h.FloorPriceAmount),
		"floor_price_preliminary_amount": dec(h.FloorPricePreliminaryAmount),
		"images":                         strconv.Itoa(len(h.Images)),
	}
}

// SnapshotAgent captures the tracked agent fields.
func SnapshotAgent(a Agent) Snapshot {
	return Snapshot{
		"name":    a.Name,
		"email":   str(a.Email),
		"phone":   str(a.Phone),
		"company": str(a.Company),
	}
}

// SnapshotLoan captures the tracked loan fields.
func SnapshotLoan(l Loan) Snapshot {
	return Snapshot{
		"status":                               str(l.Status),
		"denial_reason":                        str(l.DenialReason),
		"blend_application_id":                 l.BlendApplicationID,
		"base_convenience_fee":                 dec(l.BaseConvenienceFee),
		"estimated_broker_credit":              dec(l.EstimatedBrokerCredit),
		"estimated_mortgage_credit":            dec(l.EstimatedMortgageCredit),
		"estimated_daily_rent":                 dec(l.EstimatedDailyRent),
		"estimated_monthly_rent":               dec(l.EstimatedMonthlyRent),
		"estimated_earnest_deposit_percentage": dec(l.EstimatedEarnestDepositPercentage),
	}
}

// SnapshotPricing captures the tracked pricing fields.
func SnapshotPricing(p Pricing) Snapshot {
	return Snapshot{
		"application_id":            uid(p.ApplicationID),
		"contact_email":             str(p.ContactEmail),
		"agent_email":               str(p.AgentEmail),
		"product_offering":          str((*string)(p.ProductOffering)),
		"estimated_home_value":      dec(p.EstimatedHomeValue),
		"estimated_convenience_fee": dec(p.EstimatedConvenienceFee),
	}
}

// SnapshotOffer captures the tracked offer fields.
func SnapshotOffer(o Offer) Snapshot {
	return Snapshot{
		"status":                      string(o.Status),
		"property_address_id":         uid(o.PropertyAddressID),
		"offer_price":                 dec(o.OfferPrice),
		"already_under_contract":      strconv.FormatBool(o.AlreadyUnderContract),
		"preferred_closing_date":      date(o.PreferredClosingDate),
		"finance_approved_close_date": date(o.FinanceApprovedCloseDate),
		"funding_type":                str(o.FundingType),
		"new_home_purchase_id":        uid(o.NewHomePurchaseID),
	}
}

// SnapshotNewHomePurchase captures the tracked new-home-purchase fields.
func SnapshotNewHomePurchase(n NewHomePurchase) Snapshot {
	return Snapshot{
		"address_id":                   uid(n.AddressID),
		"option_period_end_date":       date(n.OptionPeriodEndDate),
		"homeward_purchase_close_date": date(n.HomewardPurchaseCloseDate),
		"customer_purchase_close_date": date(n.CustomerPurchaseCloseDate),
		"contract_price":               dec(n.ContractPrice),
		"earnest_deposit_percentage":   dec(n.EarnestDepositPercentage),
		"homeward_purchase_status":     str(n.HomewardPurchaseStatus),
		"customer_purchase_status":     str(n.CustomerPurchaseStatus),
		"is_reassigned_contract":       strconv.FormatBool(n.IsReassignedContract),
		"rent_id":                      uid(n.RentID),
	}
}

// SnapshotRent captures the tracked rent fields.
func SnapshotRent(r Rent) Snapshot {
	return Snapshot{
		"type":                      str((*string)(r.Type)),
		"daily_rental_rate":         dec(r.DailyRentalRate),
		"amount_months_one_and_two": dec(r.AmountMonthsOneAndTwo),
		"stop_rent_date":            date(r.StopRentDate),
		"total_waived_rent":         dec(r.TotalWaivedRent),
		"total_leaseback_credit":    dec(r.TotalLeasebackCredit),
	}
}

// SnapshotPreapproval captures the tracked preapproval fields.
func SnapshotPreapproval(p Preapproval) Snapshot {
	return Snapshot{
		"amount":                 dec(p.Amount),
		"estimated_down_payment": dec(p.EstimatedDownPayment),
		"vpal_approval_date":     date(p.VPALApprovalDate),
		"hw_mortgage_conditions": str(p.HWMortgageConditions),
	}
}

// SnapshotAddress captures the tracked address fields.
func SnapshotAddress(a Address) Snapshot {
	return Snapshot{
		"street": a.Street,
		"unit":   str(a.Unit),
		"city":   a.City,
		"state":  a.State,
		"zip":    a.Zip,
	}
}

// SnapshotBuilder captures the tracked builder fields.
func SnapshotBuilder(b Builder) Snapshot {
	return Snapshot{
		"company":              str(b.Company),
		"representative_name":  str(b.RepresentativeName),
		"representative_email": str(b.RepresentativeEmail),
		"representative_phone": str(b.RepresentativePhone),
		"address_id":           uid(b.AddressID),
	}
}

// SnapshotLender captures the tracked lender fields.
func SnapshotLender(l Lender) Snapshot {
	return Snapshot{
		"company":            str(l.Company),
		"loan_officer_name":  str(l.LoanOfficerName),
		"loan_officer_email": str(l.LoanOfficerEmail),
		"loan_officer_phone": str(l.LoanOfficerPhone),
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func dec(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func date(d *Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func ts(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func uid(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
