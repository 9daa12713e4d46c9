package service

import (
	"context"
	"strings"

	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/domain"
	"bbys_backend/internal/lifecycle"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/phone"

	"github.com/google/uuid"
)

// patchChildren applies the nested patches of an update. A child with Clear
// set is unlinked; the row stays for history and CRM references.
func (s *Service) patchChildren(ctx context.Context, tx *lifecycle.Tx, app *domain.Application, req transport.UpdateApplicationRequest) error {
	if p := req.Builder; p != nil {
		if err := s.patchBuilder(ctx, tx, app, *p); err != nil {
			return err
		}
	}
	if p := req.Lender; p != nil {
		if err := s.patchLender(ctx, tx, app, *p); err != nil {
			return err
		}
	}
	if req.OfferPropertyAddress != nil {
		id, err := writeAddress(ctx, tx, app.OfferPropertyAddressID, *req.OfferPropertyAddress)
		if err != nil {
			return err
		}
		app.OfferPropertyAddressID = &id
	}
	if p := req.Preapproval; p != nil {
		if err := s.patchPreapproval(ctx, tx, app, *p); err != nil {
			return err
		}
	}
	if p := req.NewHomePurchase; p != nil {
		if err := s.patchNewHome(ctx, tx, app, *p); err != nil {
			return err
		}
	}
	if p := req.ListingAgent; p != nil {
		if err := s.patchAgent(ctx, tx, &app.ListingAgentID, *p); err != nil {
			return err
		}
	}
	if p := req.BuyingAgent; p != nil {
		if err := s.patchAgent(ctx, tx, &app.BuyingAgentID, *p); err != nil {
			return err
		}
	}
	return nil
}

// writeAddress updates the address at id, or inserts one when id is nil.
func writeAddress(ctx context.Context, tx *lifecycle.Tx, id *uuid.UUID, in transport.AddressInput) (uuid.UUID, error) {
	addr := domain.Address{}
	if id != nil {
		current, err := tx.GetAddress(ctx, *id)
		if err != nil {
			return uuid.Nil, err
		}
		addr = current
	}
	addr.Street = strings.TrimSpace(in.Street)
	addr.Unit = trimmed(in.Unit)
	addr.City = strings.TrimSpace(in.City)
	addr.State = strings.ToUpper(strings.TrimSpace(in.State))
	addr.Zip = strings.TrimSpace(in.Zip)

	if id != nil {
		stored, err := tx.UpdateAddress(ctx, addr)
		return stored.ID, err
	}
	stored, err := tx.InsertAddress(ctx, addr)
	return stored.ID, err
}

func (s *Service) patchBuilder(ctx context.Context, tx *lifecycle.Tx, app *domain.Application, p transport.BuilderPatch) error {
	if p.Clear {
		app.BuilderID = nil
		return nil
	}
	var b domain.Builder
	if app.BuilderID != nil {
		current, err := tx.GetBuilder(ctx, *app.BuilderID)
		if err != nil {
			return err
		}
		b = current
	}
	setString(&b.Company, p.Company)
	setString(&b.RepresentativeName, p.RepresentativeName)
	setEmail(&b.RepresentativeEmail, p.RepresentativeEmail)
	if p.RepresentativePhone != nil {
		b.RepresentativePhone = phone.Normalize(*p.RepresentativePhone)
	}
	if p.Address != nil {
		id, err := writeAddress(ctx, tx, b.AddressID, *p.Address)
		if err != nil {
			return err
		}
		b.AddressID = &id
	}

	if app.BuilderID != nil {
		_, err := tx.UpdateBuilder(ctx, b)
		return err
	}
	stored, err := tx.InsertBuilder(ctx, b)
	if err != nil {
		return err
	}
	app.BuilderID = &stored.ID
	return nil
}

func (s *Service) patchLender(ctx context.Context, tx *lifecycle.Tx, app *domain.Application, p transport.LenderPatch) error {
	if p.Clear {
		app.MortgageLenderID = nil
		return nil
	}
	var l domain.Lender
	if app.MortgageLenderID != nil {
		current, err := tx.GetLender(ctx, *app.MortgageLenderID)
		if err != nil {
			return err
		}
		l = current
	}
	setString(&l.Company, p.Company)
	setString(&l.LoanOfficerName, p.LoanOfficerName)
	setEmail(&l.LoanOfficerEmail, p.LoanOfficerEmail)
	if p.LoanOfficerPhone != nil {
		l.LoanOfficerPhone = phone.Normalize(*p.LoanOfficerPhone)
	}

	if app.MortgageLenderID != nil {
		_, err := tx.UpdateLender(ctx, l)
		return err
	}
	stored, err := tx.InsertLender(ctx, l)
	if err != nil {
		return err
	}
	app.MortgageLenderID = &stored.ID
	return nil
}

func (s *Service) patchPreapproval(ctx context.Context, tx *lifecycle.Tx, app *domain.Application, p transport.PreapprovalPatch) error {
	if p.Clear {
		app.PreapprovalID = nil
		return nil
	}
	var pa domain.Preapproval
	if app.PreapprovalID != nil {
		current, err := tx.GetPreapproval(ctx, *app.PreapprovalID)
		if err != nil {
			return err
		}
		pa = current
	}
	setDecimal(&pa.Amount, p.Amount)
	setDecimal(&pa.EstimatedDownPayment, p.EstimatedDownPayment)
	setDate(&pa.VPALApprovalDate, p.VPALApprovalDate)
	setString(&pa.HWMortgageConditions, p.HWMortgageConditions)

	if app.PreapprovalID != nil {
		_, err := tx.UpdatePreapproval(ctx, pa)
		return err
	}
	stored, err := tx.InsertPreapproval(ctx, pa)
	if err != nil {
		return err
	}
	app.PreapprovalID = &stored.ID
	return nil
}

func (s *Service) patchNewHome(ctx context.Context, tx *lifecycle.Tx, app *domain.Application, p transport.NewHomePurchasePatch) error {
	if p.Clear {
		app.NewHomePurchaseID = nil
		return nil
	}
	var n domain.NewHomePurchase
	if app.NewHomePurchaseID != nil {
		current, err := tx.GetNewHomePurchase(ctx, *app.NewHomePurchaseID)
		if err != nil {
			return err
		}
		n = current
	}
	if p.Address != nil {
		id, err := writeAddress(ctx, tx, n.AddressID, *p.Address)
		if err != nil {
			return err
		}
		n.AddressID = &id
	}
	setDate(&n.OptionPeriodEndDate, p.OptionPeriodEndDate)
	setDate(&n.HomewardPurchaseCloseDate, p.HomewardPurchaseCloseDate)
	setDate(&n.CustomerPurchaseCloseDate, p.CustomerPurchaseCloseDate)
	setDecimal(&n.ContractPrice, p.ContractPrice)
	setDecimal(&n.EarnestDepositPercentage, p.EarnestDepositPercentage)
	setString(&n.HomewardPurchaseStatus, p.HomewardPurchaseStatus)
	setString(&n.CustomerPurchaseStatus, p.CustomerPurchaseStatus)
	if p.IsReassignedContract != nil {
		n.IsReassignedContract = *p.IsReassignedContract
	}
	if p.Rent != nil {
		id, err := writeRent(ctx, tx, n.RentID, *p.Rent)
		if err != nil {
			return err
		}
		n.RentID = &id
	}

	if app.NewHomePurchaseID != nil {
		_, err := tx.UpdateNewHomePurchase(ctx, n)
		return err
	}
	stored, err := tx.InsertNewHomePurchase(ctx, n)
	if err != nil {
		return err
	}
	app.NewHomePurchaseID = &stored.ID
	return nil
}

func writeRent(ctx context.Context, tx *lifecycle.Tx, id *uuid.UUID, in transport.RentInput) (uuid.UUID, error) {
	var r domain.Rent
	if id != nil {
		current, err := tx.GetRent(ctx, *id)
		if err != nil {
			return uuid.Nil, err
		}
		r = current
	}
	if in.Type != nil {
		r.Type = domain.Ptr(*in.Type)
	}
	setDecimal(&r.DailyRentalRate, in.DailyRentalRate)
	setDecimal(&r.AmountMonthsOneAndTwo, in.AmountMonthsOneAndTwo)
	setDate(&r.StopRentDate, in.StopRentDate)
	setDecimal(&r.TotalWaivedRent, in.TotalWaivedRent)
	setDecimal(&r.TotalLeasebackCredit, in.TotalLeasebackCredit)

	if id != nil {
		stored, err := tx.UpdateRent(ctx, r)
		return stored.ID, err
	}
	stored, err := tx.InsertRent(ctx, r)
	return stored.ID, err
}

// patchAgent edits the linked agent in place. A different email links the
// agent already known by that email, or a new one.
func (s *Service) patchAgent(ctx context.Context, tx *lifecycle.Tx, link **uuid.UUID, p transport.AgentPatch) error {
	if p.Clear {
		*link = nil
		return nil
	}
	var a domain.Agent
	linked := *link != nil
	if linked {
		current, err := tx.GetAgent(ctx, **link)
		if err != nil {
			return err
		}
		a = current
	}

	if p.Email != nil {
		email := domain.NormalizeEmail(*p.Email)
		if email != "" && email != domain.NormalizeEmail(domain.Deref(a.Email)) {
			other, err := tx.FindAgentByEmail(ctx, email)
			switch {
			case err == nil:
				a, linked = other, true
			case apperr.Is(err, apperr.KindNotFound):
				a, linked = domain.Agent{Email: &email}, false
			default:
				return err
			}
		}
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		a.Name = name
	}
	if p.Phone != nil {
		a.Phone = phone.Normalize(*p.Phone)
	}
	setString(&a.Company, p.Company)
	if strings.TrimSpace(a.Name) == "" {
		return apperr.FieldError("name", "agent name is required")
	}

	if linked {
		stored, err := tx.UpdateAgent(ctx, a)
		if err != nil {
			return err
		}
		*link = &stored.ID
		return nil
	}
	stored, err := tx.InsertAgent(ctx, a)
	if err != nil {
		return err
	}
	*link = &stored.ID
	return nil
}

// writeCurrentHome creates or edits the current home of app.
func (s *Service) writeCurrentHome(ctx context.Context, tx *lifecycle.Tx, app *domain.Application, in transport.CurrentHomeInput) error {
	var h domain.CurrentHome
	if app.CurrentHomeID != nil {
		current, err := tx.GetCurrentHome(ctx, *app.CurrentHomeID)
		if err != nil {
			return err
		}
		h = current
	}
	if in.Address != nil {
		id, err := writeAddress(ctx, tx, h.AddressID, *in.Address)
		if err != nil {
			return err
		}
		h.AddressID = &id
	}
	setDecimal(&h.MarketValue, in.MarketValue)
	setDecimal(&h.OutstandingLoanAmount, in.OutstandingLoanAmount)
	setDecimal(&h.CustomerValueOpinion, in.CustomerValueOpinion)
	setString(&h.FloorPriceType, in.FloorPriceType)
	setDecimal(&h.FloorPriceAmount, in.FloorPriceAmount)
	setDecimal(&h.FloorPricePreliminaryAmount, in.FloorPricePreliminaryAmount)
	if len(in.Attributes) > 0 {
		merged := make(map[string]any, len(h.Attributes)+len(in.Attributes))
		for k, v := range h.Attributes {
			merged[k] = v
		}
		for k, v := range in.Attributes {
			merged[k] = v
		}
		h.Attributes = merged
	}
	if in.Images != nil {
		h.Images = append([]string(nil), in.Images...)
	}

	if app.CurrentHomeID != nil {
		_, err := tx.UpdateCurrentHome(ctx, h)
		return err
	}
	stored, err := tx.InsertCurrentHome(ctx, h)
	if err != nil {
		return err
	}
	app.CurrentHomeID = &stored.ID
	return nil
}
