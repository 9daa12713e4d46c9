package service

import (
	"context"

	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/closingdates"
	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
)

// CreateOffer adds an offer to an application. A new offer without a status
// starts INCOMPLETE.
func (s *Service) CreateOffer(ctx context.Context, appID uuid.UUID, req transport.OfferRequest) (transport.OfferResponse, error) {
	if err := checkOfferStatus(req.Status); err != nil {
		return transport.OfferResponse{}, err
	}

	var offer domain.Offer
	_, err := s.transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) (uuid.UUID, error) {
		app, err := tx.LockApplication(ctx, appID)
		if err != nil {
			return uuid.Nil, err
		}
		next := domain.Offer{ApplicationID: app.ID, Status: domain.OfferIncomplete}
		if err := applyOffer(ctx, tx, &next, req); err != nil {
			return uuid.Nil, err
		}
		// The window is anchored on the creation instant the store assigns.
		stored, err := tx.InsertOffer(ctx, next)
		if err != nil {
			return uuid.Nil, err
		}
		if stored.PreferredClosingDate != nil {
			if err := s.restrictor.Validate(ctx, app.ProductOffering, stored.CreatedAt, *stored.PreferredClosingDate); err != nil {
				return uuid.Nil, err
			}
		}
		offer = stored
		return app.ID, nil
	})
	if err != nil {
		return transport.OfferResponse{}, err
	}
	return s.offerResponse(ctx, offer)
}

// UpdateOffer patches an offer. A changed preferred closing date is checked
// against the window of the offer's creation.
func (s *Service) UpdateOffer(ctx context.Context, offerID uuid.UUID, req transport.OfferRequest) (transport.OfferResponse, error) {
	if err := checkOfferStatus(req.Status); err != nil {
		return transport.OfferResponse{}, err
	}

	var offer domain.Offer
	_, err := s.transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) (uuid.UUID, error) {
		current, err := tx.GetOffer(ctx, offerID)
		if err != nil {
			return uuid.Nil, err
		}
		app, err := tx.LockApplication(ctx, current.ApplicationID)
		if err != nil {
			return uuid.Nil, err
		}
		next := current
		if err := applyOffer(ctx, tx, &next, req); err != nil {
			return uuid.Nil, err
		}
		if req.PreferredClosingDate != nil && !sameDate(current.PreferredClosingDate, next.PreferredClosingDate) {
			if err := s.restrictor.Validate(ctx, app.ProductOffering, current.CreatedAt, *next.PreferredClosingDate); err != nil {
				return uuid.Nil, err
			}
		}
		offer, err = tx.UpdateOffer(ctx, next)
		return app.ID, err
	})
	if err != nil {
		return transport.OfferResponse{}, err
	}
	return s.offerResponse(ctx, offer)
}

func checkOfferStatus(status *domain.OfferStatus) error {
	if status != nil && !status.Valid() {
		return apperr.FieldError("status", "unknown offer status")
	}
	return nil
}

func sameDate(a, b *domain.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func applyOffer(ctx context.Context, tx *lifecycle.Tx, o *domain.Offer, req transport.OfferRequest) error {
	if req.Status != nil {
		o.Status = *req.Status
	}
	if req.PropertyAddress != nil {
		id, err := writeAddress(ctx, tx, o.PropertyAddressID, *req.PropertyAddress)
		if err != nil {
			return err
		}
		o.PropertyAddressID = &id
	}
	setDecimal(&o.OfferPrice, req.OfferPrice)
	setString(&o.ContractType, req.ContractType)
	setString(&o.PropertyType, req.PropertyType)
	if req.LessThanOneAcre != nil {
		o.LessThanOneAcre = domain.Ptr(*req.LessThanOneAcre)
	}
	if req.YearBuilt != nil {
		o.YearBuilt = domain.Ptr(*req.YearBuilt)
	}
	if req.HomeSquareFootage != nil {
		o.HomeSquareFootage = domain.Ptr(*req.HomeSquareFootage)
	}
	setDecimal(&o.HomeListPrice, req.HomeListPrice)
	setTime(&o.OfferDeadline, req.OfferDeadline)
	setString(&o.OtherOffers, req.OtherOffers)
	setString(&o.PlanToLeaseBackToSeller, req.PlanToLeaseBackToSeller)
	setString(&o.WaiveAppraisal, req.WaiveAppraisal)
	if req.AlreadyUnderContract != nil {
		o.AlreadyUnderContract = *req.AlreadyUnderContract
	}
	setDate(&o.PreferredClosingDate, req.PreferredClosingDate)
	setDate(&o.FinanceApprovedCloseDate, req.FinanceApprovedCloseDate)
	setString(&o.FundingType, req.FundingType)
	setString(&o.PDAListingUUID, req.PDAListingUUID)
	return nil
}

func (s *Service) offerResponse(ctx context.Context, o domain.Offer) (transport.OfferResponse, error) {
	var addr *domain.Address
	if o.PropertyAddressID != nil {
		a, err := s.machine.Store().GetAddress(ctx, *o.PropertyAddressID)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return transport.OfferResponse{}, err
		}
		if err == nil {
			addr = &a
		}
	}
	return toOfferResponse(o, addr), nil
}

// ListOffers returns the offers of an application.
func (s *Service) ListOffers(ctx context.Context, appID uuid.UUID) ([]transport.OfferResponse, error) {
	if _, err := s.machine.Store().GetApplication(ctx, appID); err != nil {
		return nil, err
	}
	offers, err := s.machine.Store().ListOffers(ctx, appID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.OfferResponse, 0, len(offers))
	for _, o := range offers {
		r, err := s.offerResponse(ctx, o)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ClosingWindow returns the allowed closing dates for an offer. The customer
// and the agents of the application may read it.
func (s *Service) ClosingWindow(ctx context.Context, actor Actor, offerID uuid.UUID) (closingdates.Window, error) {
	st := s.machine.Store()
	offer, err := st.GetOffer(ctx, offerID)
	if err != nil {
		return closingdates.Window{}, err
	}
	g, err := store.LoadGraph(ctx, st, offer.ApplicationID)
	if err != nil {
		return closingdates.Window{}, err
	}
	if authorizeOwner(actor, g.Customer) != nil {
		if err := authorizeAgent(actor, g); err != nil {
			return closingdates.Window{}, err
		}
	}
	return s.restrictor.Window(ctx, g.Application.ProductOffering, offer.CreatedAt)
}

// =============================================================================
// Pricing
// =============================================================================

// CreatePricing stores a fast-track estimate and links it to its application
// when one is named.
func (s *Service) CreatePricing(ctx context.Context, req transport.PricingRequest) (transport.PricingResponse, error) {
	var stored domain.Pricing
	err := s.machine.Transact(ctx, lifecycle.SourceAPI, func(tx *lifecycle.Tx) error {
		var app *domain.Application
		if req.ApplicationID != nil {
			locked, err := tx.LockApplication(ctx, *req.ApplicationID)
			if err != nil {
				return err
			}
			app = &locked
		}

		p := domain.Pricing{
			EstimatedHomeValue:      req.EstimatedHomeValue,
			EstimatedConvenienceFee: req.EstimatedConvenienceFee,
		}
		setEmail(&p.ContactEmail, req.ContactEmail)
		setEmail(&p.AgentEmail, req.AgentEmail)
		if req.ProductOffering != nil {
			p.ProductOffering = domain.Ptr(*req.ProductOffering)
		}
		if app != nil {
			p.ApplicationID = &app.ID
		}
		var err error
		if stored, err = tx.InsertPricing(ctx, p); err != nil {
			return err
		}
		if app == nil {
			return nil
		}
		app.PricingID = &stored.ID
		_, err = tx.UpdateApplication(ctx, *app)
		return err
	})
	if err != nil {
		return transport.PricingResponse{}, err
	}
	return toPricingResponse(stored), nil
}

// GetPricing returns one estimate.
func (s *Service) GetPricing(ctx context.Context, id uuid.UUID) (transport.PricingResponse, error) {
	p, err := s.machine.Store().GetPricing(ctx, id)
	if err != nil {
		return transport.PricingResponse{}, err
	}
	return toPricingResponse(p), nil
}
