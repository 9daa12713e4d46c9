// Package domain holds the entities, enumerations and pure helpers of the
// buy-before-you-sell application lifecycle.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

var emailFolder = cases.Fold()

// NormalizeEmail trims and case-folds an email so it can serve as a natural key.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}

// Customer is the person behind an application.
type Customer struct {
	ID               uuid.UUID  `db:"id"`
	Email            string     `db:"email"`
	FirstName        string     `db:"first_name"`
	LastName         string     `db:"last_name"`
	Phone            *string    `db:"phone"`
	CoBorrowerEmail  *string    `db:"co_borrower_email"`
	AccountCreatedAt *time.Time `db:"account_created_at"`
	LastLoginAt      *time.Time `db:"last_login_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// Name returns the display name.
func (c Customer) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// HasAccount reports whether the customer has registered a login.
func (c Customer) HasAccount() bool {
	return c.AccountCreatedAt != nil
}

// Application is the top-level case for one customer.
type Application struct {
	ID                             uuid.UUID           `db:"id"`
	CustomerID                     uuid.UUID           `db:"customer_id"`
	Stage                          ApplicationStage    `db:"stage"`
	MortgageStatus                 *MortgageStatus     `db:"mortgage_status"`
	LeadStatus                     *string             `db:"lead_status"`
	ProductOffering                ProductOffering     `db:"product_offering"`
	MinPrice                       decimal.NullDecimal `db:"min_price"`
	MaxPrice                       decimal.NullDecimal `db:"max_price"`
	MoveIn                         *string             `db:"move_in"`
	HWMortgageCandidate            HWMortgageCandidate `db:"hw_mortgage_candidate"`
	ApexPartnerSlug                *string             `db:"apex_partner_slug"`
	HomewardOwnerEmail             *string             `db:"homeward_owner_email"`
	QuestionnaireResponseID        *string             `db:"questionnaire_response_id"`
	BlendStatus                    *string             `db:"blend_status"`
	PropertyState                  *string             `db:"property_state"`
	FilterStatus                   []string            `db:"filter_status"`
	RegisteredClient               bool                `db:"registered_client"`
	DisclosuresAcknowledgedAt      *time.Time          `db:"disclosures_acknowledged_at"`
	ServiceAgreementAcknowledgedAt *time.Time          `db:"service_agreement_acknowledged_at"`
	CurrentHomeID                  *uuid.UUID          `db:"current_home_id"`
	PreapprovalID                  *uuid.UUID          `db:"preapproval_id"`
	NewHomePurchaseID              *uuid.UUID          `db:"new_home_purchase_id"`
	BuilderID                      *uuid.UUID          `db:"builder_id"`
	MortgageLenderID               *uuid.UUID          `db:"mortgage_lender_id"`
	ListingAgentID                 *uuid.UUID          `db:"listing_agent_id"`
	BuyingAgentID                  *uuid.UUID          `db:"buying_agent_id"`
	CxManagerID                    *uuid.UUID          `db:"cx_manager_id"`
	LoanAdvisorID                  *uuid.UUID          `db:"loan_advisor_id"`
	ApprovalSpecialistID           *uuid.UUID          `db:"approval_specialist_id"`
	OfferPropertyAddressID         *uuid.UUID          `db:"offer_property_address_id"`
	PricingID                      *uuid.UUID          `db:"pricing_id"`
	SalesforceID                   *string             `db:"salesforce_id"`
	PushedToSalesforceOn           *time.Time          `db:"pushed_to_salesforce_on"`
	CreatedAt                      time.Time           `db:"created_at"`
	UpdatedAt                      time.Time           `db:"updated_at"`
}

// IsArchived reports whether the Archived filter marker is set.
func (a Application) IsArchived() bool {
	for _, f := range a.FilterStatus {
		if f == FilterArchived {
			return true
		}
	}
	return false
}

// HasApexPartner reports whether the application came from a branded partner site.
func (a Application) HasApexPartner() bool {
	return a.ApexPartnerSlug != nil && strings.TrimSpace(*a.ApexPartnerSlug) != ""
}

// Address is a postal address shared by several entities.
type Address struct {
	ID        uuid.UUID `db:"id"`
	Street    string    `db:"street"`
	Unit      *string   `db:"unit"`
	City      string    `db:"city"`
	State     string    `db:"state"`
	Zip       string    `db:"zip"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// OneLine formats the address for templates.
func (a Address) OneLine() string {
	parts := []string{strings.TrimSpace(a.Street)}
	if a.Unit != nil && *a.Unit != "" {
		parts[0] += " " + *a.Unit
	}
	locality := strings.TrimSpace(strings.Join([]string{a.City, a.State}, ", "))
	if strings.Trim(locality, ", ") != "" {
		parts = append(parts, strings.Trim(locality, ", "))
	}
	if a.Zip != "" {
		parts = append(parts, a.Zip)
	}
	return strings.Join(parts, ", ")
}

// Builder is a new-construction builder the customer buys from.
type Builder struct {
	ID                  uuid.UUID  `db:"id"`
	Company             *string    `db:"company"`
	RepresentativeName  *string    `db:"representative_name"`
	RepresentativeEmail *string    `db:"representative_email"`
	RepresentativePhone *string    `db:"representative_phone"`
	AddressID           *uuid.UUID `db:"address_id"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// Lender is the mortgage lender of the customer.
type Lender struct {
	ID               uuid.UUID `db:"id"`
	Company          *string   `db:"company"`
	LoanOfficerName  *string   `db:"loan_officer_name"`
	LoanOfficerEmail *string   `db:"loan_officer_email"`
	LoanOfficerPhone *string   `db:"loan_officer_phone"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Agent is a real estate agent. The role comes from the application link.
type Agent struct {
	ID                   uuid.UUID  `db:"id"`
	Name                 string     `db:"name"`
	Email                *string    `db:"email"`
	Phone                *string    `db:"phone"`
	Company              *string    `db:"company"`
	SalesforceID         *string    `db:"salesforce_id"`
	PushedToSalesforceOn *time.Time `db:"pushed_to_salesforce_on"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// CurrentHome is the home the customer sells after buying.
type CurrentHome struct {
	ID                          uuid.UUID           `db:"id"`
	AddressID                   *uuid.UUID          `db:"address_id"`
	MarketValue                 decimal.NullDecimal `db:"market_value"`
	OutstandingLoanAmount       decimal.NullDecimal `db:"outstanding_loan_amount"`
	CustomerValueOpinion        decimal.NullDecimal `db:"customer_value_opinion"`
	FloorPriceType              *string             `db:"floor_price_type"`
	FloorPriceAmount            decimal.NullDecimal `db:"floor_price_amount"`
	FloorPricePreliminaryAmount decimal.NullDecimal `db:"floor_price_preliminary_amount"`
	Attributes                  map[string]any      `db:"attributes"`
	Images                      []string            `db:"images"`
	SalesforceID                *string             `db:"salesforce_id"`
	PushedToSalesforceOn        *time.Time          `db:"pushed_to_salesforce_on"`
	CreatedAt                   time.Time           `db:"created_at"`
	UpdatedAt                   time.Time           `db:"updated_at"`
}

// MarketValuation is an appraisal-style estimate of the current home.
type MarketValuation struct {
	ID            uuid.UUID       `db:"id"`
	CurrentHomeID uuid.UUID       `db:"current_home_id"`
	Value         decimal.Decimal `db:"value"`
	Source        string          `db:"source"`
	ValuedAt      time.Time       `db:"valued_at"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Offer is an offer on a new home made on the customer's behalf.
type Offer struct {
	ID                       uuid.UUID           `db:"id"`
	ApplicationID            uuid.UUID           `db:"application_id"`
	Status                   OfferStatus         `db:"status"`
	PropertyAddressID        *uuid.UUID          `db:"property_address_id"`
	OfferPrice               decimal.NullDecimal `db:"offer_price"`
	ContractType             *string             `db:"contract_type"`
	PropertyType             *string             `db:"property_type"`
	LessThanOneAcre          *bool               `db:"less_than_one_acre"`
	YearBuilt                *int                `db:"year_built"`
	HomeSquareFootage        *int                `db:"home_square_footage"`
	HomeListPrice            decimal.NullDecimal `db:"home_list_price"`
	OfferDeadline            *time.Time          `db:"offer_deadline"`
	OtherOffers              *string             `db:"other_offers"`
	PlanToLeaseBackToSeller  *string             `db:"plan_to_lease_back_to_seller"`
	WaiveAppraisal           *string             `db:"waive_appraisal"`
	AlreadyUnderContract     bool                `db:"already_under_contract"`
	PreferredClosingDate     *Date               `db:"preferred_closing_date"`
	FinanceApprovedCloseDate *Date               `db:"finance_approved_close_date"`
	FundingType              *string             `db:"funding_type"`
	PDAListingUUID           *string             `db:"pda_listing_uuid"`
	NewHomePurchaseID        *uuid.UUID          `db:"new_home_purchase_id"`
	SalesforceID             *string             `db:"salesforce_id"`
	PushedToSalesforceOn     *time.Time          `db:"pushed_to_salesforce_on"`
	CreatedAt                time.Time           `db:"created_at"`
	UpdatedAt                time.Time           `db:"updated_at"`
}

// NewHomePurchase holds the contract details of the home bought for the customer.
type NewHomePurchase struct {
	ID                        uuid.UUID           `db:"id"`
	AddressID                 *uuid.UUID          `db:"address_id"`
	OptionPeriodEndDate       *Date               `db:"option_period_end_date"`
	HomewardPurchaseCloseDate *Date               `db:"homeward_purchase_close_date"`
	CustomerPurchaseCloseDate *Date               `db:"customer_purchase_close_date"`
	ContractPrice             decimal.NullDecimal `db:"contract_price"`
	EarnestDepositPercentage  decimal.NullDecimal `db:"earnest_deposit_percentage"`
	HomewardPurchaseStatus    *string             `db:"homeward_purchase_status"`
	CustomerPurchaseStatus    *string             `db:"customer_purchase_status"`
	IsReassignedContract      bool                `db:"is_reassigned_contract"`
	RentID                    *uuid.UUID          `db:"rent_id"`
	SalesforceID              *string             `db:"salesforce_id"`
	CreatedAt                 time.Time           `db:"created_at"`
	UpdatedAt                 time.Time           `db:"updated_at"`
}

// Rent describes leaseback rent owed while the customer lives in the new home.
type Rent struct {
	ID                    uuid.UUID           `db:"id"`
	Type                  *RentType           `db:"type"`
	DailyRentalRate       decimal.NullDecimal `db:"daily_rental_rate"`
	AmountMonthsOneAndTwo decimal.NullDecimal `db:"amount_months_one_and_two"`
	StopRentDate          *Date               `db:"stop_rent_date"`
	TotalWaivedRent       decimal.NullDecimal `db:"total_waived_rent"`
	TotalLeasebackCredit  decimal.NullDecimal `db:"total_leaseback_credit"`
	CreatedAt             time.Time           `db:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at"`
}

// Preapproval is a mortgage pre-qualification.
type Preapproval struct {
	ID                   uuid.UUID           `db:"id"`
	Amount               decimal.NullDecimal `db:"amount"`
	EstimatedDownPayment decimal.NullDecimal `db:"estimated_down_payment"`
	VPALApprovalDate     *Date               `db:"vpal_approval_date"`
	HWMortgageConditions *string             `db:"hw_mortgage_conditions"`
	CreatedAt            time.Time           `db:"created_at"`
	UpdatedAt            time.Time           `db:"updated_at"`
}

// Loan is a loan file tracked in the loan origination system.
type Loan struct {
	ID                                uuid.UUID           `db:"id"`
	ApplicationID                     uuid.UUID           `db:"application_id"`
	Status                            *string             `db:"status"`
	DenialReason                      *string             `db:"denial_reason"`
	BlendApplicationID                string              `db:"blend_application_id"`
	BaseConvenienceFee                decimal.NullDecimal `db:"base_convenience_fee"`
	EstimatedBrokerCredit             decimal.NullDecimal `db:"estimated_broker_credit"`
	EstimatedMortgageCredit           decimal.NullDecimal `db:"estimated_mortgage_credit"`
	EstimatedDailyRent                decimal.NullDecimal `db:"estimated_daily_rent"`
	EstimatedMonthlyRent              decimal.NullDecimal `db:"estimated_monthly_rent"`
	EstimatedEarnestDepositPercentage decimal.NullDecimal `db:"estimated_earnest_deposit_percentage"`
	SalesforceID                      *string             `db:"salesforce_id"`
	PushedToSalesforceOn              *time.Time          `db:"pushed_to_salesforce_on"`
	CreatedAt                         time.Time           `db:"created_at"`
	UpdatedAt                         time.Time           `db:"updated_at"`
}

// Active reports whether the loan is outside the terminal-denial set.
func (l Loan) Active() bool {
	if l.Status == nil {
		return true
	}
	_, denied := loanDenialStatuses[*l.Status]
	return !denied
}

// Notification is a catalog entry of the mailer.
type Notification struct {
	ID         uuid.UUID `db:"id"`
	Name       string    `db:"name"`
	TemplateID string    `db:"template_id"`
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// NotificationStatus is one append-only outcome for (application, notification).
type NotificationStatus struct {
	ID             uuid.UUID      `db:"id"`
	ApplicationID  uuid.UUID      `db:"application_id"`
	NotificationID uuid.UUID      `db:"notification_id"`
	Status         DeliveryStatus `db:"status"`
	Reason         string         `db:"reason"`
	CreatedAt      time.Time      `db:"created_at"`
}

// StageHistory is one append-only stage transition.
type StageHistory struct {
	ID            uuid.UUID         `db:"id"`
	ApplicationID uuid.UUID         `db:"application_id"`
	PreviousStage *ApplicationStage `db:"previous_stage"`
	NewStage      ApplicationStage  `db:"new_stage"`
	Source        string            `db:"source"`
	Instant       time.Time         `db:"instant"`
}

// TaskStatus is the derived state of one task of one application.
type TaskStatus struct {
	ApplicationID uuid.UUID `db:"application_id"`
	Name          TaskName  `db:"name"`
	Status        TaskState `db:"status"`
	IsActionable  bool      `db:"is_actionable"`
	Scope         *string   `db:"scope"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// InternalSupportUser is an operator employee assigned to an application.
type InternalSupportUser struct {
	ID               uuid.UUID   `db:"id"`
	Role             SupportRole `db:"role"`
	SalesforceID     *string     `db:"salesforce_id"`
	Name             string      `db:"name"`
	Phone            *string     `db:"phone"`
	Email            *string     `db:"email"`
	PhotoURL         *string     `db:"photo_url"`
	Bio              *string     `db:"bio"`
	ScheduleACallURL *string     `db:"schedule_a_call_url"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

// Stakeholder is an additional party such as a transaction coordinator.
type Stakeholder struct {
	ID            uuid.UUID       `db:"id"`
	ApplicationID uuid.UUID       `db:"application_id"`
	Type          StakeholderType `db:"type"`
	Email         string          `db:"email"`
	Name          *string         `db:"name"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Pricing is a fast-track estimate, possibly before an application exists.
type Pricing struct {
	ID                      uuid.UUID           `db:"id"`
	ApplicationID           *uuid.UUID          `db:"application_id"`
	ContactEmail            *string             `db:"contact_email"`
	AgentEmail              *string             `db:"agent_email"`
	ProductOffering         *ProductOffering    `db:"product_offering"`
	EstimatedHomeValue      decimal.NullDecimal `db:"estimated_home_value"`
	EstimatedConvenienceFee decimal.NullDecimal `db:"estimated_convenience_fee"`
	ReferralNotifiedAt      *time.Time          `db:"referral_notified_at"`
	SalesforceID            *string             `db:"salesforce_id"`
	PushedToSalesforceOn    *time.Time          `db:"pushed_to_salesforce_on"`
	CreatedAt               time.Time           `db:"created_at"`
	UpdatedAt               time.Time           `db:"updated_at"`
}

// Note is a human comment on an application.
type Note struct {
	ID            uuid.UUID  `db:"id"`
	ApplicationID uuid.UUID  `db:"application_id"`
	AuthorID      *uuid.UUID `db:"author_id"`
	Body          string     `db:"body"`
	CreatedAt     time.Time  `db:"created_at"`
}

// AuditEntry records an accepted-but-flagged write or a failed side effect.
type AuditEntry struct {
	ID            uuid.UUID  `db:"id"`
	Kind          string     `db:"kind"`
	EntityID      uuid.UUID  `db:"entity_id"`
	ApplicationID *uuid.UUID `db:"application_id"`
	Message       string     `db:"message"`
	CreatedAt     time.Time  `db:"created_at"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p or the zero value.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
