package notifications

import (
	"strings"
	"time"

	"bbys_backend/internal/domain"
)

// Audience is who receives a notification.
type Audience int

const (
	AudienceCustomer Audience = iota
	AudienceAgent
	AudienceValuationsDesk
)

// Suppression reasons.
const (
	ReasonApexPartner = "Application has apex partner slug"
	ReasonReassigned  = "Application is reassigned contract"
	ReasonTakeover    = "Offer is takeover"
)

// Input is what a definition sees when it is evaluated.
type Input struct {
	Graph      *domain.ApplicationGraph
	Offer      *domain.Offer
	Statuses   []domain.NotificationStatus
	Now        time.Time
	Today      domain.Date
	AppBaseURL string
}

// Requirement is one precondition. Reason is recorded when Met is false.
type Requirement struct {
	Reason string
	Met    func(in Input) bool
}

// Rule is one suppression rule. Reason is recorded when Applies is true.
type Rule struct {
	Reason  string
	Applies func(in Input) bool
}

// Definition describes one catalog notification.
type Definition struct {
	Name     string
	Audience Audience
	// Eligible reports whether the triggering condition still holds. It gates
	// re-attempts after a NOT_SENT or SUPPRESSED outcome.
	Eligible func(in Input) bool
	Require  []Requirement
	Suppress []Rule
	Vars     func(in Input) vars
	// Scheduled definitions are re-evaluated by the sweeps only.
	Scheduled bool
	// NoRetry stops re-attempts once the sink has failed.
	NoRetry bool
}

var (
	needsHomewardOwner = Requirement{
		Reason: "Missing homeward owner email",
		Met: func(in Input) bool {
			return strings.TrimSpace(domain.Deref(in.Graph.Application.HomewardOwnerEmail)) != ""
		},
	}
	needsStreet = Requirement{
		Reason: "Missing property address",
		Met: func(in Input) bool {
			_, ok := in.Graph.PropertyStreet()
			return ok
		},
	}
	needsPreapprovalAmount = Requirement{
		Reason: "Missing preapproval amount",
		Met:    func(in Input) bool { return in.Graph.Preapproval != nil && in.Graph.Preapproval.Amount.Valid },
	}
	needsNewHomePurchase = Requirement{
		Reason: "Missing new home purchase",
		Met:    func(in Input) bool { return in.Graph.NewHomePurchase != nil },
	}
	needsApprovalSpecialist = Requirement{
		Reason: "Missing approval specialist",
		Met:    func(in Input) bool { return in.Graph.ApprovalSpecialist != nil },
	}
	needsOffer = Requirement{
		Reason: "Missing offer",
		Met:    func(in Input) bool { return in.Offer != nil },
	}

	apexPartner = Rule{
		Reason:  ReasonApexPartner,
		Applies: func(in Input) bool { return in.Graph.Application.HasApexPartner() },
	}
	reassignedContract = Rule{
		Reason: ReasonReassigned,
		Applies: func(in Input) bool {
			return in.Graph.NewHomePurchase != nil && in.Graph.NewHomePurchase.IsReassignedContract
		},
	}
	takeoverOffer = Rule{
		Reason:  ReasonTakeover,
		Applies: func(in Input) bool { return in.Offer != nil && in.Offer.AlreadyUnderContract },
	}
)

// newHomeRequirements are the fields OFFER_ACCEPTED needs from the purchase.
var newHomeRequirements = []Requirement{
	needsNewHomePurchase,
	{Reason: "Missing contract price", Met: func(in Input) bool {
		return in.Graph.NewHomePurchase != nil && in.Graph.NewHomePurchase.ContractPrice.Valid
	}},
	{Reason: "Missing rent amount", Met: func(in Input) bool {
		return in.Graph.Rent != nil && in.Graph.Rent.AmountMonthsOneAndTwo.Valid
	}},
	{Reason: "Missing rent type", Met: func(in Input) bool {
		return in.Graph.Rent != nil && in.Graph.Rent.Type != nil
	}},
	{Reason: "Missing earnest deposit percentage", Met: func(in Input) bool {
		return in.Graph.NewHomePurchase != nil && in.Graph.NewHomePurchase.EarnestDepositPercentage.Valid
	}},
	{Reason: "Missing option period end date", Met: func(in Input) bool {
		return in.Graph.NewHomePurchase != nil && in.Graph.NewHomePurchase.OptionPeriodEndDate != nil
	}},
	{Reason: "Missing new home address", Met: func(in Input) bool {
		return in.Graph.NewHomeAddress != nil && strings.TrimSpace(in.Graph.NewHomeAddress.Street) != ""
	}},
}

func stageIs(stages ...domain.ApplicationStage) func(Input) bool {
	return func(in Input) bool { return in.Graph.Application.Stage.In(stages...) }
}

func qualifiedWithMortgage(status domain.MortgageStatus) func(Input) bool {
	return func(in Input) bool {
		a := in.Graph.Application
		return a.Stage == domain.StageQualifiedApplication && a.MortgageStatus != nil && *a.MortgageStatus == status
	}
}

// approvedWith selects between the two approval variants.
func approvedWith(hwCandidate bool) func(Input) bool {
	return func(in Input) bool {
		a := in.Graph.Application
		return a.Stage == domain.StageApproved && (a.HWMortgageCandidate == domain.HWCandidateYes) == hwCandidate
	}
}

func offerRequested(in Input) bool {
	return in.Offer != nil && in.Offer.Status == domain.OfferRequested
}

func photoTaskDone(in Input) bool {
	t, ok := in.Graph.Task(domain.TaskPhotoUpload)
	return ok && t.Status == domain.TaskCompleted
}

func always(Input) bool { return true }

func merged(parts ...func(Input) vars) func(Input) vars {
	return func(in Input) vars {
		v := baseVars(in)
		for _, p := range parts {
			v.merge(p(in))
		}
		return v
	}
}

var definitions = map[string]Definition{}

func register(defs ...Definition) {
	for _, d := range defs {
		if d.Vars == nil {
			d.Vars = merged()
		}
		if d.Eligible == nil {
			d.Eligible = always
		}
		definitions[d.Name] = d
	}
}

// Lookup returns the definition of a notification name.
func Lookup(name string) (Definition, bool) {
	d, ok := definitions[name]
	return d, ok
}

func init() {
	closeRules := []Rule{reassignedContract}

	register(
		Definition{Name: ApplicationUnderReview, Eligible: stageIs(domain.StageQualifiedApplication)},
		Definition{
			Name:     ApplicationComplete,
			Eligible: stageIs(domain.StageComplete),
			Require:  []Requirement{needsApprovalSpecialist},
		},
		Definition{
			Name:     Approval,
			Eligible: approvedWith(false),
			Require:  []Requirement{needsHomewardOwner, needsStreet},
			Vars:     merged(approvalVars),
		},
		Definition{
			Name:     HWMortgageCandidateApproval,
			Eligible: approvedWith(true),
			Require:  []Requirement{needsHomewardOwner, needsStreet},
			Vars:     merged(approvalVars),
		},
		Definition{
			Name:     AgentOfferInstructions,
			Audience: AudienceAgent,
			Eligible: stageIs(domain.StageApproved),
			Vars:     merged(approvalVars),
		},
		Definition{
			Name:     OfferSubmitted,
			Eligible: offerRequested,
			Require:  []Requirement{needsOffer},
			Suppress: []Rule{takeoverOffer},
			Vars:     merged(offerVars),
		},
		Definition{
			Name:     OfferSubmittedAgent,
			Audience: AudienceAgent,
			Eligible: offerRequested,
			Require:  []Requirement{needsOffer},
			Suppress: []Rule{takeoverOffer},
			Vars:     merged(offerVars),
		},
		Definition{
			Name: OfferRequestedUnacknowledgedSA,
			Eligible: func(in Input) bool {
				return offerRequested(in) && in.Graph.Application.ServiceAgreementAcknowledgedAt == nil
			},
			Require: []Requirement{needsOffer},
			Vars:    merged(offerVars),
		},
		Definition{
			Name:     OfferAccepted,
			Eligible: stageIs(domain.StageOptionPeriod),
			Require:  newHomeRequirements,
			Vars:     merged(offerVars, purchaseVars),
		},
		Definition{
			Name:     PurchasePriceUpdated,
			Require:  []Requirement{needsPreapprovalAmount},
			Vars:     merged(approvalVars),
			Eligible: func(in Input) bool { return in.Graph.Preapproval != nil },
		},
		Definition{
			Name:     HomewardClose,
			Eligible: stageIs(domain.StageHomewardPurchase),
			Require:  []Requirement{needsNewHomePurchase},
			Suppress: closeRules,
			Vars:     merged(purchaseVars),
		},
		Definition{
			Name:     CustomerClose,
			Eligible: stageIs(domain.StageCustomerClosed),
			Require:  []Requirement{needsNewHomePurchase},
			Suppress: closeRules,
			Vars:     merged(purchaseVars),
		},
		Definition{
			Name:     AgentCustomerClose,
			Audience: AudienceAgent,
			Eligible: stageIs(domain.StageCustomerClosed),
			Require:  []Requirement{needsNewHomePurchase},
			Suppress: closeRules,
			Vars:     merged(purchaseVars),
		},
		Definition{
			Name:      PreHomewardClose,
			Scheduled: true,
			Eligible:  preHomewardCloseDue,
			Require:   []Requirement{needsNewHomePurchase},
			Suppress:  closeRules,
			Vars:      merged(purchaseVars),
		},
		Definition{
			Name:      PreCustomerClose,
			Scheduled: true,
			Eligible:  preCustomerCloseDue,
			Require:   []Requirement{needsNewHomePurchase},
			Suppress:  closeRules,
			Vars:      merged(purchaseVars),
		},
		Definition{
			Name:      AgentPreCustomerClose,
			Audience:  AudienceAgent,
			Scheduled: true,
			Eligible:  preCustomerCloseDue,
			Require:   []Requirement{needsNewHomePurchase},
			Suppress:  closeRules,
			Vars:      merged(purchaseVars),
		},
		Definition{Name: VPALIncomplete, Eligible: qualifiedWithMortgage(domain.MortgageVPALAppIncomplete)},
		Definition{Name: VPALSuspended, Eligible: qualifiedWithMortgage(domain.MortgageVPALSuspended)},
		Definition{Name: VPALReadyForReview, Eligible: qualifiedWithMortgage(domain.MortgageVPALReadyForReview)},
		Definition{
			Name:      VPALReadyForReviewFollowUp,
			Scheduled: true,
			Eligible:  qualifiedWithMortgage(domain.MortgageVPALReadyForReview),
		},
		Definition{
			Name:      ExpiringApproval,
			Scheduled: true,
			Eligible:  approvalExpiring,
			Vars:      merged(approvalVars),
		},
		Definition{
			Name:     PhotoUpload,
			Audience: AudienceValuationsDesk,
			Eligible: photoTaskDone,
			NoRetry:  true,
		},
		Definition{
			Name:     RegisteredClientWelcome,
			Eligible: func(in Input) bool { return in.Graph.Application.RegisteredClient },
			Suppress: []Rule{apexPartner},
		},
		Definition{
			Name:      FastTrackResume,
			Scheduled: true,
			Eligible:  stageIs(domain.StageIncomplete),
			Suppress:  []Rule{apexPartner},
		},
	)
	for _, days := range ReminderDays {
		register(
			Definition{Name: IncompleteReminder(days), Scheduled: true, Eligible: stageIs(domain.StageIncomplete), Suppress: []Rule{apexPartner}},
			Definition{Name: PreAccountReminder(days), Scheduled: true, Eligible: stageIs(domain.StageIncomplete), Suppress: []Rule{apexPartner}},
			Definition{Name: RegisteredClientReminder(days), Scheduled: true, Eligible: stageIs(domain.StageIncomplete), Suppress: []Rule{apexPartner}},
		)
	}
}

func preHomewardCloseDue(in Input) bool {
	n := in.Graph.NewHomePurchase
	return in.Graph.Application.Stage.In(domain.StageOptionPeriod, domain.StagePostOption) &&
		n != nil && n.HomewardPurchaseCloseDate != nil && !n.HomewardPurchaseCloseDate.After(in.Today.AddDays(5))
}

func preCustomerCloseDue(in Input) bool {
	n := in.Graph.NewHomePurchase
	return in.Graph.Application.Stage == domain.StageHomewardPurchase &&
		n != nil && n.CustomerPurchaseCloseDate != nil && !n.CustomerPurchaseCloseDate.After(in.Today.AddDays(7))
}

func approvalExpiring(in Input) bool {
	p := in.Graph.Preapproval
	return in.Graph.Application.Stage == domain.StageApproved &&
		p != nil && p.VPALApprovalDate != nil && !p.VPALApprovalDate.After(in.Today.AddDays(-50))
}
