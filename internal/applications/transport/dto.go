// Package transport holds the request and response shapes of the
// applications API. Field names follow the CRM-facing snake_case contract.
package transport

import (
	"time"

	"bbys_backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Requests
// =============================================================================

type AddressInput struct {
	Street string  `json:"street" validate:"required,max=200"`
	Unit   *string `json:"unit,omitempty" validate:"omitempty,max=40"`
	City   string  `json:"city" validate:"required,max=120"`
	State  string  `json:"state" validate:"required,usstate"`
	Zip    string  `json:"zip" validate:"required,max=10"`
}

type CustomerInput struct {
	Email           string  `json:"email" validate:"required,email"`
	FirstName       string  `json:"first_name" validate:"required,max=120"`
	LastName        string  `json:"last_name" validate:"max=120"`
	Phone           *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	CoBorrowerEmail *string `json:"co_borrower_email,omitempty" validate:"omitempty,email"`
}

type CurrentHomeInput struct {
	Address                     *AddressInput       `json:"address,omitempty"`
	MarketValue                 decimal.NullDecimal `json:"market_value" validate:"omitempty,gte=0"`
	OutstandingLoanAmount       decimal.NullDecimal `json:"outstanding_loan_amount" validate:"omitempty,gte=0"`
	CustomerValueOpinion        decimal.NullDecimal `json:"customer_value_opinion" validate:"omitempty,gte=0"`
	FloorPriceType              *string             `json:"floor_price_type,omitempty" validate:"omitempty,max=60"`
	FloorPriceAmount            decimal.NullDecimal `json:"floor_price_amount" validate:"omitempty,gte=0"`
	FloorPricePreliminaryAmount decimal.NullDecimal `json:"floor_price_preliminary_amount" validate:"omitempty,gte=0"`
	Attributes                  map[string]any      `json:"attributes,omitempty"`
	Images                      []string            `json:"images,omitempty" validate:"omitempty,dive,url"`
}

// CreateApplicationRequest is the normalized application produced by the
// admin UI or the questionnaire intake.
type CreateApplicationRequest struct {
	Customer                CustomerInput              `json:"customer"`
	ProductOffering         domain.ProductOffering     `json:"product_offering" validate:"required,oneof=buy-only buy-sell"`
	MinPrice                decimal.NullDecimal        `json:"min_price" validate:"omitempty,gte=0"`
	MaxPrice                decimal.NullDecimal        `json:"max_price" validate:"omitempty,gte=0"`
	MoveIn                  *string                    `json:"move_in,omitempty" validate:"omitempty,max=60"`
	HWMortgageCandidate     domain.HWMortgageCandidate `json:"hw_mortgage_candidate,omitempty" validate:"omitempty,oneof=Yes No Not-Determined"`
	ApexPartnerSlug         *string                    `json:"apex_partner_slug,omitempty" validate:"omitempty,max=120"`
	HomewardOwnerEmail      *string                    `json:"homeward_owner_email,omitempty" validate:"omitempty,email"`
	PropertyState           *string                    `json:"property_state,omitempty" validate:"omitempty,usstate"`
	QuestionnaireResponseID *string                    `json:"questionnaire_response_id,omitempty" validate:"omitempty,max=120"`
	CurrentHome             *CurrentHomeInput          `json:"current_home,omitempty"`
}

// Clearable child objects carry Clear to unlink the child. An omitted child
// is left alone.
type BuilderPatch struct {
	Clear               bool          `json:"clear"`
	Company             *string       `json:"company,omitempty" validate:"omitempty,max=200"`
	RepresentativeName  *string       `json:"representative_name,omitempty" validate:"omitempty,max=120"`
	RepresentativeEmail *string       `json:"representative_email,omitempty" validate:"omitempty,email"`
	RepresentativePhone *string       `json:"representative_phone,omitempty" validate:"omitempty,max=40"`
	Address             *AddressInput `json:"address,omitempty"`
}

type LenderPatch struct {
	Clear            bool    `json:"clear"`
	Company          *string `json:"company,omitempty" validate:"omitempty,max=200"`
	LoanOfficerName  *string `json:"loan_officer_name,omitempty" validate:"omitempty,max=120"`
	LoanOfficerEmail *string `json:"loan_officer_email,omitempty" validate:"omitempty,email"`
	LoanOfficerPhone *string `json:"loan_officer_phone,omitempty" validate:"omitempty,max=40"`
}

type AgentPatch struct {
	Clear   bool    `json:"clear"`
	Name    string  `json:"name" validate:"max=120"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Company *string `json:"company,omitempty" validate:"omitempty,max=200"`
}

type PreapprovalPatch struct {
	Clear                bool                `json:"clear"`
	Amount               decimal.NullDecimal `json:"amount" validate:"omitempty,gte=0"`
	EstimatedDownPayment decimal.NullDecimal `json:"estimated_down_payment" validate:"omitempty,gte=0"`
	VPALApprovalDate     *domain.Date        `json:"vpal_approval_date,omitempty"`
	HWMortgageConditions *string             `json:"hw_mortgage_conditions,omitempty" validate:"omitempty,max=2000"`
}

type RentInput struct {
	Type                  *domain.RentType    `json:"type,omitempty" validate:"omitempty,oneof=Monthly Deferred Waived"`
	DailyRentalRate       decimal.NullDecimal `json:"daily_rental_rate" validate:"omitempty,gte=0"`
	AmountMonthsOneAndTwo decimal.NullDecimal `json:"amount_months_one_and_two" validate:"omitempty,gte=0"`
	StopRentDate          *domain.Date        `json:"stop_rent_date,omitempty"`
	TotalWaivedRent       decimal.NullDecimal `json:"total_waived_rent" validate:"omitempty,gte=0"`
	TotalLeasebackCredit  decimal.NullDecimal `json:"total_leaseback_credit" validate:"omitempty,gte=0"`
}

type NewHomePurchasePatch struct {
	Clear                     bool                `json:"clear"`
	Address                   *AddressInput       `json:"address,omitempty"`
	OptionPeriodEndDate       *domain.Date        `json:"option_period_end_date,omitempty"`
	HomewardPurchaseCloseDate *domain.Date        `json:"homeward_purchase_close_date,omitempty"`
	CustomerPurchaseCloseDate *domain.Date        `json:"customer_purchase_close_date,omitempty"`
	ContractPrice             decimal.NullDecimal `json:"contract_price" validate:"omitempty,gte=0"`
	EarnestDepositPercentage  decimal.NullDecimal `json:"earnest_deposit_percentage" validate:"omitempty,gte=0,lte=100"`
	HomewardPurchaseStatus    *string             `json:"homeward_purchase_status,omitempty" validate:"omitempty,max=60"`
	CustomerPurchaseStatus    *string             `json:"customer_purchase_status,omitempty" validate:"omitempty,max=60"`
	IsReassignedContract      *bool               `json:"is_reassigned_contract,omitempty"`
	Rent                      *RentInput          `json:"rent,omitempty"`
}

// UpdateApplicationRequest patches an application. Stage changes go
// through ChangeStageRequest.
type UpdateApplicationRequest struct {
	LeadStatus           *string                     `json:"lead_status,omitempty" validate:"omitempty,max=60"`
	MortgageStatus       *domain.MortgageStatus      `json:"mortgage_status,omitempty"`
	ProductOffering      *domain.ProductOffering     `json:"product_offering,omitempty" validate:"omitempty,oneof=buy-only buy-sell"`
	MinPrice             decimal.NullDecimal         `json:"min_price" validate:"omitempty,gte=0"`
	MaxPrice             decimal.NullDecimal         `json:"max_price" validate:"omitempty,gte=0"`
	MoveIn               *string                     `json:"move_in,omitempty" validate:"omitempty,max=60"`
	HWMortgageCandidate  *domain.HWMortgageCandidate `json:"hw_mortgage_candidate,omitempty" validate:"omitempty,oneof=Yes No Not-Determined"`
	HomewardOwnerEmail   *string                     `json:"homeward_owner_email,omitempty" validate:"omitempty,email"`
	BlendStatus          *string                     `json:"blend_status,omitempty" validate:"omitempty,max=120"`
	PropertyState        *string                     `json:"property_state,omitempty" validate:"omitempty,usstate"`
	Builder              *BuilderPatch               `json:"builder,omitempty"`
	Lender               *LenderPatch                `json:"mortgage_lender,omitempty"`
	OfferPropertyAddress *AddressInput               `json:"offer_property_address,omitempty"`
	Preapproval          *PreapprovalPatch           `json:"preapproval,omitempty"`
	NewHomePurchase      *NewHomePurchasePatch       `json:"new_home_purchase,omitempty"`
	ListingAgent         *AgentPatch                 `json:"listing_agent,omitempty"`
	BuyingAgent          *AgentPatch                 `json:"buying_agent,omitempty"`
}

type ChangeStageRequest struct {
	Stage   domain.ApplicationStage `json:"stage" validate:"required"`
	Comment string                  `json:"comment" validate:"max=5000"`
}

// AcknowledgeRequest names the document the customer acknowledged.
type AcknowledgeRequest struct {
	Document string `json:"document" validate:"required,oneof=disclosures service_agreement"`
}

// RegisterClientRequest is an agent registering a buyer client.
type RegisterClientRequest struct {
	Customer        CustomerInput          `json:"customer"`
	ProductOffering domain.ProductOffering `json:"product_offering" validate:"required,oneof=buy-only buy-sell"`
	AgentName       string                 `json:"agent_name" validate:"required,max=120"`
	AgentPhone      *string                `json:"agent_phone,omitempty" validate:"omitempty,max=40"`
	AgentCompany    *string                `json:"agent_company,omitempty" validate:"omitempty,max=200"`
	ApexPartnerSlug *string                `json:"apex_partner_slug,omitempty" validate:"omitempty,max=120"`
}

type LoginEventRequest struct {
	ApplicationID uuid.UUID `json:"application_id" validate:"required"`
}

type MarketValuationRequest struct {
	Value    decimal.Decimal `json:"value" validate:"gt=0"`
	Source   string          `json:"source" validate:"required,max=120"`
	ValuedAt time.Time       `json:"valued_at" validate:"required"`
}

type OfferRequest struct {
	Status                   *domain.OfferStatus `json:"status,omitempty"`
	PropertyAddress          *AddressInput       `json:"property_address,omitempty"`
	OfferPrice               decimal.NullDecimal `json:"offer_price" validate:"omitempty,gt=0"`
	ContractType             *string             `json:"contract_type,omitempty" validate:"omitempty,max=60"`
	PropertyType             *string             `json:"property_type,omitempty" validate:"omitempty,max=60"`
	LessThanOneAcre          *bool               `json:"less_than_one_acre,omitempty"`
	YearBuilt                *int                `json:"year_built,omitempty" validate:"omitempty,gte=1700,lte=2100"`
	HomeSquareFootage        *int                `json:"home_square_footage,omitempty" validate:"omitempty,gt=0"`
	HomeListPrice            decimal.NullDecimal `json:"home_list_price" validate:"omitempty,gt=0"`
	OfferDeadline            *time.Time          `json:"offer_deadline,omitempty"`
	OtherOffers              *string             `json:"other_offers,omitempty" validate:"omitempty,max=60"`
	PlanToLeaseBackToSeller  *string             `json:"plan_to_lease_back_to_seller,omitempty" validate:"omitempty,max=60"`
	WaiveAppraisal           *string             `json:"waive_appraisal,omitempty" validate:"omitempty,max=60"`
	AlreadyUnderContract     *bool               `json:"already_under_contract,omitempty"`
	PreferredClosingDate     *domain.Date        `json:"preferred_closing_date,omitempty"`
	FinanceApprovedCloseDate *domain.Date        `json:"finance_approved_close_date,omitempty"`
	FundingType              *string             `json:"funding_type,omitempty" validate:"omitempty,max=60"`
	PDAListingUUID           *string             `json:"pda_listing_uuid,omitempty" validate:"omitempty,max=60"`
}

type PricingRequest struct {
	ApplicationID           *uuid.UUID              `json:"application_id,omitempty"`
	ContactEmail            *string                 `json:"contact_email,omitempty" validate:"omitempty,email"`
	AgentEmail              *string                 `json:"agent_email,omitempty" validate:"omitempty,email"`
	ProductOffering         *domain.ProductOffering `json:"product_offering,omitempty" validate:"omitempty,oneof=buy-only buy-sell"`
	EstimatedHomeValue      decimal.NullDecimal     `json:"estimated_home_value" validate:"omitempty,gte=0"`
	EstimatedConvenienceFee decimal.NullDecimal     `json:"estimated_convenience_fee" validate:"omitempty,gte=0"`
}

// =============================================================================
// Responses
// =============================================================================

type AddressResponse struct {
	ID     uuid.UUID `json:"id"`
	Street string    `json:"street"`
	Unit   *string   `json:"unit,omitempty"`
	City   string    `json:"city"`
	State  string    `json:"state"`
	Zip    string    `json:"zip"`
}

type CustomerResponse struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Phone           *string    `json:"phone,omitempty"`
	CoBorrowerEmail *string    `json:"co_borrower_email,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

type CurrentHomeResponse struct {
	ID                          uuid.UUID           `json:"id"`
	Address                     *AddressResponse    `json:"address,omitempty"`
	MarketValue                 decimal.NullDecimal `json:"market_value"`
	OutstandingLoanAmount       decimal.NullDecimal `json:"outstanding_loan_amount"`
	CustomerValueOpinion        decimal.NullDecimal `json:"customer_value_opinion"`
	FloorPriceType              *string             `json:"floor_price_type,omitempty"`
	FloorPriceAmount            decimal.NullDecimal `json:"floor_price_amount"`
	FloorPricePreliminaryAmount decimal.NullDecimal `json:"floor_price_preliminary_amount"`
	Attributes                  map[string]any      `json:"attributes,omitempty"`
	Images                      []string            `json:"images"`
}

type AgentResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   *string   `json:"email,omitempty"`
	Phone   *string   `json:"phone,omitempty"`
	Company *string   `json:"company,omitempty"`
}

type SupportUserResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            *string   `json:"email,omitempty"`
	Phone            *string   `json:"phone,omitempty"`
	PhotoURL         *string   `json:"photo_url,omitempty"`
	Bio              *string   `json:"bio,omitempty"`
	ScheduleACallURL *string   `json:"schedule_a_call_url,omitempty"`
}

type OfferResponse struct {
	ID                       uuid.UUID           `json:"id"`
	Status                   domain.OfferStatus  `json:"status"`
	PropertyAddress          *AddressResponse    `json:"property_address,omitempty"`
	OfferPrice               decimal.NullDecimal `json:"offer_price"`
	AlreadyUnderContract     bool                `json:"already_under_contract"`
	PreferredClosingDate     *domain.Date        `json:"preferred_closing_date,omitempty"`
	FinanceApprovedCloseDate *domain.Date        `json:"finance_approved_close_date,omitempty"`
	ContractType             *string             `json:"contract_type,omitempty"`
	PropertyType             *string             `json:"property_type,omitempty"`
	HomeListPrice            decimal.NullDecimal `json:"home_list_price"`
	CreatedAt                time.Time           `json:"created_at"`
}

type TaskResponse struct {
	Name         domain.TaskName  `json:"name"`
	Status       domain.TaskState `json:"status"`
	IsActionable bool             `json:"is_actionable"`
	Scope        *string          `json:"scope,omitempty"`
}

type ApplicationResponse struct {
	ID                             uuid.UUID                  `json:"id"`
	Stage                          domain.ApplicationStage    `json:"stage"`
	MortgageStatus                 *domain.MortgageStatus     `json:"mortgage_status,omitempty"`
	LeadStatus                     *string                    `json:"lead_status,omitempty"`
	ProductOffering                domain.ProductOffering     `json:"product_offering"`
	MinPrice                       decimal.NullDecimal        `json:"min_price"`
	MaxPrice                       decimal.NullDecimal        `json:"max_price"`
	MoveIn                         *string                    `json:"move_in,omitempty"`
	HWMortgageCandidate            domain.HWMortgageCandidate `json:"hw_mortgage_candidate"`
	ApexPartnerSlug                *string                    `json:"apex_partner_slug,omitempty"`
	FilterStatus                   []string                   `json:"filter_status"`
	RegisteredClient               bool                       `json:"registered_client"`
	DisclosuresAcknowledgedAt      *time.Time                 `json:"disclosures_acknowledged_at,omitempty"`
	ServiceAgreementAcknowledgedAt *time.Time                 `json:"service_agreement_acknowledged_at,omitempty"`
	Customer                       CustomerResponse           `json:"customer"`
	CurrentHome                    *CurrentHomeResponse       `json:"current_home,omitempty"`
	ListingAgent                   *AgentResponse             `json:"listing_agent,omitempty"`
	BuyingAgent                    *AgentResponse             `json:"buying_agent,omitempty"`
	CxManager                      *SupportUserResponse       `json:"cx_manager,omitempty"`
	LoanAdvisor                    *SupportUserResponse       `json:"loan_advisor,omitempty"`
	Offers                         []OfferResponse            `json:"offers"`
	Tasks                          []TaskResponse             `json:"tasks"`
	SalesforceID                   *string                    `json:"salesforce_id,omitempty"`
	CreatedAt                      time.Time                  `json:"created_at"`
	UpdatedAt                      time.Time                  `json:"updated_at"`
}

type MarketValuationResponse struct {
	ID       uuid.UUID       `json:"id"`
	Value    decimal.Decimal `json:"value"`
	Source   string          `json:"source"`
	ValuedAt time.Time       `json:"valued_at"`
}

type PricingResponse struct {
	ID                      uuid.UUID               `json:"id"`
	ApplicationID           *uuid.UUID              `json:"application_id,omitempty"`
	ContactEmail            *string                 `json:"contact_email,omitempty"`
	ProductOffering         *domain.ProductOffering `json:"product_offering,omitempty"`
	EstimatedHomeValue      decimal.NullDecimal     `json:"estimated_home_value"`
	EstimatedConvenienceFee decimal.NullDecimal     `json:"estimated_convenience_fee"`
	CreatedAt               time.Time               `json:"created_at"`
}

// SyncResult is the per-record outcome of a CRM push-back.
type SyncResult struct {
	SalesforceID string `json:"salesforce_id,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

const (
	SyncQueued   = "queued"
	SyncRejected = "rejected"
)
