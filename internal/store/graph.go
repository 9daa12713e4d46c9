package store

import (
	"context"
	"fmt"

	"bbys_backend/internal/domain"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
)

// LoadGraph reads an application together with every entity it references.
// Dangling references load as nil.
func LoadGraph(ctx context.Context, q Queries, applicationID uuid.UUID) (*domain.ApplicationGraph, error) {
	app, err := q.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return loadGraphFor(ctx, q, app)
}

// LoadGraphFor is LoadGraph for an application already read, e.g. under lock.
func LoadGraphFor(ctx context.Context, q Queries, app domain.Application) (*domain.ApplicationGraph, error) {
	return loadGraphFor(ctx, q, app)
}

func loadGraphFor(ctx context.Context, q Queries, app domain.Application) (*domain.ApplicationGraph, error) {
	g := &domain.ApplicationGraph{Application: app}

	customer, err := q.GetCustomer(ctx, app.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	g.Customer = customer

	if g.CurrentHome, err = optional(ctx, app.CurrentHomeID, q.GetCurrentHome); err != nil {
		return nil, fmt.Errorf("load current home: %w", err)
	}
	if g.CurrentHome != nil {
		if g.CurrentHomeAddress, err = optional(ctx, g.CurrentHome.AddressID, q.GetAddress); err != nil {
			return nil, fmt.Errorf("load current home address: %w", err)
		}
	}
	if g.Preapproval, err = optional(ctx, app.PreapprovalID, q.GetPreapproval); err != nil {
		return nil, fmt.Errorf("load preapproval: %w", err)
	}
	if g.NewHomePurchase, err = optional(ctx, app.NewHomePurchaseID, q.GetNewHomePurchase); err != nil {
		return nil, fmt.Errorf("load new home purchase: %w", err)
	}
	if g.NewHomePurchase != nil {
		if g.NewHomeAddress, err = optional(ctx, g.NewHomePurchase.AddressID, q.GetAddress); err != nil {
			return nil, fmt.Errorf("load new home address: %w", err)
		}
		if g.Rent, err = optional(ctx, g.NewHomePurchase.RentID, q.GetRent); err != nil {
			return nil, fmt.Errorf("load rent: %w", err)
		}
	}
	if g.Builder, err = optional(ctx, app.BuilderID, q.GetBuilder); err != nil {
		return nil, fmt.Errorf("load builder: %w", err)
	}
	if g.Builder != nil {
		if g.BuilderAddress, err = optional(ctx, g.Builder.AddressID, q.GetAddress); err != nil {
			return nil, fmt.Errorf("load builder address: %w", err)
		}
	}
	if g.Lender, err = optional(ctx, app.MortgageLenderID, q.GetLender); err != nil {
		return nil, fmt.Errorf("load lender: %w", err)
	}
	if g.ListingAgent, err = optional(ctx, app.ListingAgentID, q.GetAgent); err != nil {
		return nil, fmt.Errorf("load listing agent: %w", err)
	}
	if g.BuyingAgent, err = optional(ctx, app.BuyingAgentID, q.GetAgent); err != nil {
		return nil, fmt.Errorf("load buying agent: %w", err)
	}
	if g.OfferPropertyAddress, err = optional(ctx, app.OfferPropertyAddressID, q.GetAddress); err != nil {
		return nil, fmt.Errorf("load offer property address: %w", err)
	}
	if g.CxManager, err = optional(ctx, app.CxManagerID, q.GetSupportUser); err != nil {
		return nil, fmt.Errorf("load cx manager: %w", err)
	}
	if g.LoanAdvisor, err = optional(ctx, app.LoanAdvisorID, q.GetSupportUser); err != nil {
		return nil, fmt.Errorf("load loan advisor: %w", err)
	}
	if g.ApprovalSpecialist, err = optional(ctx, app.ApprovalSpecialistID, q.GetSupportUser); err != nil {
		return nil, fmt.Errorf("load approval specialist: %w", err)
	}
	if g.Pricing, err = optional(ctx, app.PricingID, q.GetPricing); err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}

	if g.Offers, err = q.ListOffers(ctx, app.ID); err != nil {
		return nil, fmt.Errorf("load offers: %w", err)
	}
	if g.Loans, err = q.ListLoans(ctx, app.ID); err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	if g.Stakeholders, err = q.ListStakeholders(ctx, app.ID); err != nil {
		return nil, fmt.Errorf("load stakeholders: %w", err)
	}
	if g.Tasks, err = q.ListTaskStatuses(ctx, app.ID); err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return g, nil
}

func optional[T any](ctx context.Context, id *uuid.UUID, get func(context.Context, uuid.UUID) (T, error)) (*T, error) {
	if id == nil {
		return nil, nil
	}
	v, err := get(ctx, *id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}
