// Package tasks is the Task Engine. Task states are pure functions of the
// application graph; the engine writes the differences and closes the loop
// on the INCOMPLETE/COMPLETE boundary of the application stage.
package tasks

import (
	"strings"

	"bbys_backend/internal/domain"
)

// MinPhotos is the number of current-home images that completes PHOTO_UPLOAD.
const MinPhotos = 5

// Blend statuses that drive the mortgage task.
const (
	BlendApplicationCreated  = "APPLICATION_CREATED"
	BlendApplicationArchived = "APPLICATION_ARCHIVED"
	BlendGettingStarted      = "getting started"
	BlendBorrowerSubmitted   = "Application completed (Borrower Submit)"
)

// Desired is the computed state of one task.
type Desired struct {
	Name         domain.TaskName
	Status       domain.TaskState
	IsActionable bool
	Scope        *string
	// Unknown is set when the rule could not decide and the stored state
	// must be kept.
	Unknown bool
}

// Rules computes the tasks of an application.
type Rules struct {
	mortgageStates map[string]struct{}
}

// NewRules builds the rule set. mortgageStates lists the property states
// (two-letter codes, any case) in which the MORTGAGE task applies.
func NewRules(mortgageStates []string) Rules {
	set := make(map[string]struct{}, len(mortgageStates))
	for _, s := range mortgageStates {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return Rules{mortgageStates: set}
}

// Compute returns the desired tasks in a stable order. Tasks that do not
// apply to the application are omitted.
func (r Rules) Compute(g *domain.ApplicationGraph) []Desired {
	out := make([]Desired, 0, 6)
	if hasCurrentHome(g) {
		out = append(out, existingProperty(g), photoUpload(g))
	}
	disclosures := disclosuresTask(g)
	out = append(out, disclosures, buyingSituation(g), realEstateAgent(g))
	if scope, ok := r.mortgageScope(g); ok {
		out = append(out, mortgage(g, disclosures.Status == domain.TaskCompleted, scope))
	}
	return out
}

// Gating reports whether a task counts toward the COMPLETE stage.
// MORTGAGE only completes after approval and never gates completion.
func Gating(name domain.TaskName) bool {
	return name != domain.TaskMortgage
}

func hasCurrentHome(g *domain.ApplicationGraph) bool {
	return g.CurrentHome != nil || g.Application.ProductOffering == domain.ProductBuySell
}

func existingProperty(g *domain.ApplicationGraph) Desired {
	d := Desired{Name: domain.TaskExistingProperty, Status: domain.TaskNotStarted, IsActionable: true}
	if g.CurrentHome != nil && g.CurrentHome.CustomerValueOpinion.Valid {
		d.Status = domain.TaskCompleted
	}
	return d
}

func photoUpload(g *domain.ApplicationGraph) Desired {
	d := Desired{Name: domain.TaskPhotoUpload, Status: domain.TaskNotStarted, IsActionable: true}
	if g.CurrentHome == nil {
		return d
	}
	switch n := len(g.CurrentHome.Images); {
	case n >= MinPhotos:
		d.Status = domain.TaskCompleted
	case n > 0:
		d.Status = domain.TaskInProgress
	}
	return d
}

func disclosuresTask(g *domain.ApplicationGraph) Desired {
	d := Desired{Name: domain.TaskDisclosures, Status: domain.TaskNotStarted, IsActionable: true}
	if g.Application.DisclosuresAcknowledgedAt != nil {
		d.Status = domain.TaskCompleted
	}
	return d
}

func buyingSituation(g *domain.ApplicationGraph) Desired {
	a := g.Application
	filled := 0
	for _, ok := range []bool{a.MinPrice.Valid, a.MaxPrice.Valid, a.MoveIn != nil && *a.MoveIn != ""} {
		if ok {
			filled++
		}
	}
	d := Desired{Name: domain.TaskBuyingSituation, Status: domain.TaskNotStarted, IsActionable: true}
	switch filled {
	case 3:
		d.Status = domain.TaskCompleted
	case 0:
	default:
		d.Status = domain.TaskInProgress
	}
	return d
}

func realEstateAgent(g *domain.ApplicationGraph) Desired {
	d := Desired{Name: domain.TaskRealEstateAgent, Status: domain.TaskNotStarted, IsActionable: true}
	agent := g.BuyingAgent
	if agent == nil {
		agent = g.ListingAgent
	}
	if agent == nil {
		return d
	}
	if strings.TrimSpace(agent.Name) != "" && agent.Email != nil && *agent.Email != "" {
		d.Status = domain.TaskCompleted
	} else {
		d.Status = domain.TaskInProgress
	}
	return d
}

func (r Rules) mortgageScope(g *domain.ApplicationGraph) (string, bool) {
	if g.Application.PropertyState == nil {
		return "", false
	}
	state := strings.ToUpper(strings.TrimSpace(*g.Application.PropertyState))
	_, ok := r.mortgageStates[state]
	return state, ok
}

func mortgage(g *domain.ApplicationGraph, disclosuresDone bool, scope string) Desired {
	d := Desired{
		Name:         domain.TaskMortgage,
		Status:       domain.TaskNotStarted,
		IsActionable: disclosuresDone,
		Scope:        &scope,
	}
	if !disclosuresDone || g.Application.BlendStatus == nil {
		return d
	}
	switch status := strings.TrimSpace(*g.Application.BlendStatus); {
	case status == BlendApplicationCreated, status == BlendApplicationArchived,
		strings.EqualFold(status, BlendGettingStarted):
		d.Status = domain.TaskInProgress
	case status == BlendBorrowerSubmitted:
		d.Status = domain.TaskUnderReview
		if g.Application.Stage.AtLeast(domain.StageApproved) {
			d.Status = domain.TaskCompleted
		}
	default:
		d.Unknown = true
	}
	return d
}
