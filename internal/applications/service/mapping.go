package service

import (
	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/domain"
)

func toAddressResponse(a *domain.Address) *transport.AddressResponse {
	if a == nil {
		return nil
	}
	return &transport.AddressResponse{
		ID:     a.ID,
		Street: a.Street,
		Unit:   a.Unit,
		City:   a.City,
		State:  a.State,
		Zip:    a.Zip,
	}
}

func toAgentResponse(a *domain.Agent) *transport.AgentResponse {
	if a == nil {
		return nil
	}
	return &transport.AgentResponse{ID: a.ID, Name: a.Name, Email: a.Email, Phone: a.Phone, Company: a.Company}
}

func toSupportUserResponse(u *domain.InternalSupportUser) *transport.SupportUserResponse {
	if u == nil {
		return nil
	}
	return &transport.SupportUserResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Phone:            u.Phone,
		PhotoURL:         u.PhotoURL,
		Bio:              u.Bio,
		ScheduleACallURL: u.ScheduleACallURL,
	}
}

func toOfferResponse(o domain.Offer, addr *domain.Address) transport.OfferResponse {
	return transport.OfferResponse{
		ID:                       o.ID,
		Status:                   o.Status,
		PropertyAddress:          toAddressResponse(addr),
		OfferPrice:               o.OfferPrice,
		AlreadyUnderContract:     o.AlreadyUnderContract,
		PreferredClosingDate:     o.PreferredClosingDate,
		FinanceApprovedCloseDate: o.FinanceApprovedCloseDate,
		ContractType:             o.ContractType,
		PropertyType:             o.PropertyType,
		HomeListPrice:            o.HomeListPrice,
		CreatedAt:                o.CreatedAt,
	}
}

func toValuationResponse(v domain.MarketValuation) transport.MarketValuationResponse {
	return transport.MarketValuationResponse{ID: v.ID, Value: v.Value, Source: v.Source, ValuedAt: v.ValuedAt}
}

func toPricingResponse(p domain.Pricing) transport.PricingResponse {
	return transport.PricingResponse{
		ID:                      p.ID,
		ApplicationID:           p.ApplicationID,
		ContactEmail:            p.ContactEmail,
		ProductOffering:         p.ProductOffering,
		EstimatedHomeValue:      p.EstimatedHomeValue,
		EstimatedConvenienceFee: p.EstimatedConvenienceFee,
		CreatedAt:               p.CreatedAt,
	}
}

// toApplicationResponse flattens a graph. Offer addresses other than the
// application's offer property address are not part of the graph and are
// left out of the list view.
func toApplicationResponse(g *domain.ApplicationGraph) transport.ApplicationResponse {
	a := g.Application
	resp := transport.ApplicationResponse{
		ID:                             a.ID,
		Stage:                          a.Stage,
		MortgageStatus:                 a.MortgageStatus,
		LeadStatus:                     a.LeadStatus,
		ProductOffering:                a.ProductOffering,
		MinPrice:                       a.MinPrice,
		MaxPrice:                       a.MaxPrice,
		MoveIn:                         a.MoveIn,
		HWMortgageCandidate:            a.HWMortgageCandidate,
		ApexPartnerSlug:                a.ApexPartnerSlug,
		FilterStatus:                   append([]string{}, a.FilterStatus...),
		RegisteredClient:               a.RegisteredClient,
		DisclosuresAcknowledgedAt:      a.DisclosuresAcknowledgedAt,
		ServiceAgreementAcknowledgedAt: a.ServiceAgreementAcknowledgedAt,
		Customer: transport.CustomerResponse{
			ID:              g.Customer.ID,
			Email:           g.Customer.Email,
			FirstName:       g.Customer.FirstName,
			LastName:        g.Customer.LastName,
			Phone:           g.Customer.Phone,
			CoBorrowerEmail: g.Customer.CoBorrowerEmail,
			LastLoginAt:     g.Customer.LastLoginAt,
		},
		ListingAgent: toAgentResponse(g.ListingAgent),
		BuyingAgent:  toAgentResponse(g.BuyingAgent),
		CxManager:    toSupportUserResponse(g.CxManager),
		LoanAdvisor:  toSupportUserResponse(g.LoanAdvisor),
		Offers:       make([]transport.OfferResponse, 0, len(g.Offers)),
		Tasks:        make([]transport.TaskResponse, 0, len(g.Tasks)),
		SalesforceID: a.SalesforceID,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}

	if h := g.CurrentHome; h != nil {
		resp.CurrentHome = &transport.CurrentHomeResponse{
			ID:                          h.ID,
			Address:                     toAddressResponse(g.CurrentHomeAddress),
			MarketValue:                 h.MarketValue,
			OutstandingLoanAmount:       h.OutstandingLoanAmount,
			CustomerValueOpinion:        h.CustomerValueOpinion,
			FloorPriceType:              h.FloorPriceType,
			FloorPriceAmount:            h.FloorPriceAmount,
			FloorPricePreliminaryAmount: h.FloorPricePreliminaryAmount,
			Attributes:                  h.Attributes,
			Images:                      append([]string{}, h.Images...),
		}
	}
	for _, o := range g.Offers {
		var addr *domain.Address
		if g.OfferPropertyAddress != nil && o.PropertyAddressID != nil && *o.PropertyAddressID == g.OfferPropertyAddress.ID {
			addr = g.OfferPropertyAddress
		}
		resp.Offers = append(resp.Offers, toOfferResponse(o, addr))
	}
	for _, t := range g.Tasks {
		resp.Tasks = append(resp.Tasks, transport.TaskResponse{
			Name:         t.Name,
			Status:       t.Status,
			IsActionable: t.IsActionable,
			Scope:        t.Scope,
		})
	}
	return resp
}
