package lifecycle

import "bbys_backend/internal/domain"

// StageTransitionAllowed reports whether from -> to follows the lifecycle:
// one step forward on the main line, or any non-terminal stage to TRASH.
// A nil from is the initial stage of a new application.
func StageTransitionAllowed(from *domain.ApplicationStage, to domain.ApplicationStage) bool {
	if from == nil {
		return to == domain.StageIncomplete || to.Valid()
	}
	if !to.Valid() {
		return false
	}
	if to == domain.StageTrash {
		return !from.Terminal()
	}
	// TE moves a COMPLETE application back when a task regresses.
	if *from == domain.StageComplete && to == domain.StageIncomplete {
		return true
	}
	fr, tr := from.Rank(), to.Rank()
	return fr >= 0 && tr == fr+1
}

var mortgageTransitions = map[domain.MortgageStatus][]domain.MortgageStatus{
	domain.MortgageVPALStarted:        {domain.MortgageVPALAppIncomplete, domain.MortgageVPALReadyForReview},
	domain.MortgageVPALAppIncomplete:  {domain.MortgageVPALReadyForReview, domain.MortgageVPALSuspended},
	domain.MortgageVPALReadyForReview: {domain.MortgageVPALSuspended, domain.MortgagePrequalified, domain.MortgageVPALAppIncomplete},
	domain.MortgageVPALSuspended:      {domain.MortgageVPALReadyForReview, domain.MortgagePrequalified},
	domain.MortgagePrequalified:       {domain.MortgageApproved},
}

// MortgageTransitionAllowed reports whether from -> to is a known VPAL step.
// Any first status is allowed.
func MortgageTransitionAllowed(from, to *domain.MortgageStatus) bool {
	if to == nil {
		return from == nil
	}
	if !to.Valid() {
		return false
	}
	if from == nil {
		return true
	}
	for _, next := range mortgageTransitions[*from] {
		if next == *to {
			return true
		}
	}
	return false
}

var offerTransitions = map[domain.OfferStatus][]domain.OfferStatus{
	domain.OfferIncomplete:  {domain.OfferRequested, domain.OfferCancelled},
	domain.OfferRequested:   {domain.OfferMOPComplete, domain.OfferDenied, domain.OfferCancelled},
	domain.OfferMOPComplete: {domain.OfferApproved, domain.OfferDenied, domain.OfferCancelled},
	domain.OfferApproved: {
		domain.OfferBackupPositionAccepted, domain.OfferWon, domain.OfferLost,
		domain.OfferDenied, domain.OfferCancelled,
	},
	domain.OfferBackupPositionAccepted: {domain.OfferWon, domain.OfferLost, domain.OfferCancelled},
}

// OfferTransitionAllowed reports whether from -> to follows the offer flow.
// A new offer may start at any known status.
func OfferTransitionAllowed(from *domain.OfferStatus, to domain.OfferStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == nil {
		return true
	}
	for _, next := range offerTransitions[*from] {
		if next == to {
			return true
		}
	}
	return false
}
