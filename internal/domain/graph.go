package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ApplicationGraph is an application loaded together with everything it references.
// Task, notification and CRM rules are pure functions over a graph.
type ApplicationGraph struct {
	Application          Application
	Customer             Customer
	CurrentHome          *CurrentHome
	CurrentHomeAddress   *Address
	Preapproval          *Preapproval
	NewHomePurchase      *NewHomePurchase
	NewHomeAddress       *Address
	Rent                 *Rent
	Builder              *Builder
	BuilderAddress       *Address
	Lender               *Lender
	ListingAgent         *Agent
	BuyingAgent          *Agent
	OfferPropertyAddress *Address
	Offers               []Offer
	Loans                []Loan
	Stakeholders         []Stakeholder
	CxManager            *InternalSupportUser
	LoanAdvisor          *InternalSupportUser
	ApprovalSpecialist   *InternalSupportUser
	Pricing              *Pricing
	Tasks                []TaskStatus
}

// PropertyStreet returns the first street derivable from the new-home purchase,
// the current home or the offer property address, in that order.
func (g *ApplicationGraph) PropertyStreet() (string, bool) {
	for _, addr := range []*Address{g.NewHomeAddress, g.CurrentHomeAddress, g.OfferPropertyAddress} {
		if addr != nil && strings.TrimSpace(addr.Street) != "" {
			return strings.TrimSpace(addr.Street), true
		}
	}
	return "", false
}

// Task returns the stored status of the named task.
func (g *ApplicationGraph) Task(name TaskName) (TaskStatus, bool) {
	for _, t := range g.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskStatus{}, false
}

// Offer returns the offer with the given id.
func (g *ApplicationGraph) Offer(id uuid.UUID) *Offer {
	for i := range g.Offers {
		if g.Offers[i].ID == id {
			return &g.Offers[i]
		}
	}
	return nil
}

// LatestOffer returns the most recently created offer.
func (g *ApplicationGraph) LatestOffer() *Offer {
	var latest *Offer
	for i := range g.Offers {
		if latest == nil || g.Offers[i].CreatedAt.After(latest.CreatedAt) {
			latest = &g.Offers[i]
		}
	}
	return latest
}

// ActiveLoans returns loans outside the terminal-denial set.
func (g *ApplicationGraph) ActiveLoans() []Loan {
	out := make([]Loan, 0, len(g.Loans))
	for _, l := range g.Loans {
		if l.Active() {
			out = append(out, l)
		}
	}
	return out
}

// TransactionCoordinator returns the TC stakeholder, if any.
func (g *ApplicationGraph) TransactionCoordinator() *Stakeholder {
	for i := range g.Stakeholders {
		if g.Stakeholders[i].Type == StakeholderTransactionCoordinator {
			return &g.Stakeholders[i]
		}
	}
	return nil
}
