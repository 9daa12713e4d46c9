package domain

import "strings"

// ApplicationStage is the lifecycle stage of an application.
type ApplicationStage string

const (
	StageIncomplete           ApplicationStage = "INCOMPLETE"
	StageComplete             ApplicationStage = "COMPLETE"
	StageQualifiedApplication ApplicationStage = "QUALIFIED_APPLICATION"
	StageFloorPriceRequested  ApplicationStage = "FLOOR_PRICE_REQUESTED"
	StageFloorPriceCompleted  ApplicationStage = "FLOOR_PRICE_COMPLETED"
	StageApproved             ApplicationStage = "APPROVED"
	StageOfferRequested       ApplicationStage = "OFFER_REQUESTED"
	StageOfferSubmitted       ApplicationStage = "OFFER_SUBMITTED"
	StageOptionPeriod         ApplicationStage = "OPTION_PERIOD"
	StagePostOption           ApplicationStage = "POST_OPTION"
	StageHomewardPurchase     ApplicationStage = "HOMEWARD_PURCHASE"
	StageCustomerClosed       ApplicationStage = "CUSTOMER_CLOSED"
	StageTrash                ApplicationStage = "TRASH"
)

// StageOrder is the main line of the lifecycle. TRASH is a side branch.
var StageOrder = []ApplicationStage{
	StageIncomplete,
	StageComplete,
	StageQualifiedApplication,
	StageFloorPriceRequested,
	StageFloorPriceCompleted,
	StageApproved,
	StageOfferRequested,
	StageOfferSubmitted,
	StageOptionPeriod,
	StagePostOption,
	StageHomewardPurchase,
	StageCustomerClosed,
}

// Rank is the position on the main line, or -1 for TRASH and unknown values.
func (s ApplicationStage) Rank() int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s ApplicationStage) Valid() bool {
	return s == StageTrash || s.Rank() >= 0
}

// AtLeast reports whether s is on the main line at or after other.
func (s ApplicationStage) AtLeast(other ApplicationStage) bool {
	r := s.Rank()
	return r >= 0 && r >= other.Rank()
}

// Terminal reports whether no further transitions are expected.
func (s ApplicationStage) Terminal() bool {
	return s == StageCustomerClosed || s == StageTrash
}

// In reports whether s is one of stages.
func (s ApplicationStage) In(stages ...ApplicationStage) bool {
	for _, st := range stages {
		if s == st {
			return true
		}
	}
	return false
}

// MortgageStatus tracks the verified pre-approval workflow.
type MortgageStatus string

const (
	MortgageVPALStarted        MortgageStatus = "VPAL_STARTED"
	MortgageVPALAppIncomplete  MortgageStatus = "VPAL_APP_INCOMPLETE"
	MortgageVPALReadyForReview MortgageStatus = "VPAL_READY_FOR_REVIEW"
	MortgageVPALSuspended      MortgageStatus = "VPAL_SUSPENDED"
	MortgagePrequalified       MortgageStatus = "PREQUALIFIED"
	MortgageApproved           MortgageStatus = "APPROVED"
)

// Valid reports whether m is a known mortgage status.
func (m MortgageStatus) Valid() bool {
	switch m {
	case MortgageVPALStarted, MortgageVPALAppIncomplete, MortgageVPALReadyForReview,
		MortgageVPALSuspended, MortgagePrequalified, MortgageApproved:
		return true
	}
	return false
}

// OfferStatus is the status of an offer on a new home.
type OfferStatus string

const (
	OfferIncomplete             OfferStatus = "INCOMPLETE"
	OfferRequested              OfferStatus = "REQUESTED"
	OfferMOPComplete            OfferStatus = "MOP_COMPLETE"
	OfferApproved               OfferStatus = "APPROVED"
	OfferBackupPositionAccepted OfferStatus = "BACKUP_POSITION_ACCEPTED"
	OfferWon                    OfferStatus = "WON"
	OfferLost                   OfferStatus = "LOST"
	OfferDenied                 OfferStatus = "DENIED"
	OfferCancelled              OfferStatus = "CANCELLED"
)

// Valid reports whether o is a known offer status.
func (o OfferStatus) Valid() bool {
	switch o {
	case OfferIncomplete, OfferRequested, OfferMOPComplete, OfferApproved,
		OfferBackupPositionAccepted, OfferWon, OfferLost, OfferDenied, OfferCancelled:
		return true
	}
	return false
}

// In reports whether o is one of statuses.
func (o OfferStatus) In(statuses ...OfferStatus) bool {
	for _, st := range statuses {
		if o == st {
			return true
		}
	}
	return false
}

// ProductOffering is the program the customer enrolled in.
type ProductOffering string

const (
	ProductBuyOnly ProductOffering = "buy-only"
	ProductBuySell ProductOffering = "buy-sell"
)

// ParseProductOffering accepts the local form and the CRM form (BUY_ONLY, Buy-Sell).
func ParseProductOffering(raw string) (ProductOffering, bool) {
	v := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	switch ProductOffering(v) {
	case ProductBuyOnly, ProductBuySell:
		return ProductOffering(v), true
	}
	return "", false
}

// HWMortgageCandidate says whether the operator's own mortgage arm handles the loan.
type HWMortgageCandidate string

const (
	HWCandidateYes           HWMortgageCandidate = "Yes"
	HWCandidateNo            HWMortgageCandidate = "No"
	HWCandidateNotDetermined HWMortgageCandidate = "Not-Determined"
)

// DeliveryStatus is the outcome recorded for a notification attempt.
type DeliveryStatus string

const (
	DeliverySent       DeliveryStatus = "SENT"
	DeliveryNotSent    DeliveryStatus = "NOT_SENT"
	DeliverySuppressed DeliveryStatus = "SUPPRESSED"
)

// TaskName identifies one customer-facing checklist item.
type TaskName string

const (
	TaskPhotoUpload      TaskName = "PHOTO_UPLOAD"
	TaskExistingProperty TaskName = "EXISTING_PROPERTY"
	TaskMortgage         TaskName = "MORTGAGE"
	TaskDisclosures      TaskName = "DISCLOSURES"
	TaskBuyingSituation  TaskName = "BUYING_SITUATION"
	TaskRealEstateAgent  TaskName = "REAL_ESTATE_AGENT"
)

// TaskState is the progress of a task.
type TaskState string

const (
	TaskNotStarted  TaskState = "NOT_STARTED"
	TaskInProgress  TaskState = "IN_PROGRESS"
	TaskUnderReview TaskState = "UNDER_REVIEW"
	TaskCompleted   TaskState = "COMPLETED"
)

// SupportRole is the role of an internal support user.
type SupportRole string

const (
	RoleCxManager          SupportRole = "CxManager"
	RoleLoanAdvisor        SupportRole = "LoanAdvisor"
	RoleApprovalSpecialist SupportRole = "ApprovalSpecialist"
)

// AgentRole is the side an agent represents on an application.
type AgentRole string

const (
	AgentListing AgentRole = "listing"
	AgentBuying  AgentRole = "buying"
)

// StakeholderType classifies additional parties on an application.
type StakeholderType string

const StakeholderTransactionCoordinator StakeholderType = "TRANSACTION_COORDINATOR"

// RentType is how leaseback rent is charged.
type RentType string

const (
	RentMonthly  RentType = "Monthly"
	RentDeferred RentType = "Deferred"
	RentWaived   RentType = "Waived"
)

// FilterArchived is the filter_status marker for archived applications.
const FilterArchived = "Archived"

// loanDenialStatuses are the terminal statuses that make a loan inactive.
var loanDenialStatuses = map[string]struct{}{
	"Denied":    {},
	"Withdrawn": {},
	"Cancelled": {},
}
