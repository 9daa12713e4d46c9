package notifications

import (
	"strings"

	"bbys_backend/internal/domain"
	"bbys_backend/platform/phone"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Placeholders for approval figures that are not known yet.
const (
	UnderReview   = "Under Review"
	NotApplicable = "Not Applicable"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// Money formats an amount as US dollars, dropping zero cents.
func Money(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return printer.Sprintf("$%d", d.IntPart())
	}
	f, _ := d.Round(2).Float64()
	return printer.Sprintf("$%.2f", f)
}

func moneyOr(d decimal.NullDecimal, fallback string) string {
	if !d.Valid {
		return fallback
	}
	return Money(d.Decimal)
}

func dateOr(d *domain.Date, fallback string) string {
	if d == nil {
		return fallback
	}
	return d.Time().Format("January 2, 2006")
}

func percentOr(d decimal.NullDecimal, fallback string) string {
	if !d.Valid {
		return fallback
	}
	return d.Decimal.String() + "%"
}

type vars map[string]any

func (v vars) merge(other vars) vars {
	for k, val := range other {
		v[k] = val
	}
	return v
}

func baseVars(in Input) vars {
	g := in.Graph
	v := vars{
		"customer_first_name": g.Customer.FirstName,
		"customer_name":       g.Customer.Name(),
		"customer_email":      g.Customer.Email,
		"application_url":     strings.TrimRight(in.AppBaseURL, "/") + "/applications/" + g.Application.ID.String(),
		"product_offering":    string(g.Application.ProductOffering),
	}
	if street, ok := g.PropertyStreet(); ok {
		v["property_street"] = street
	}
	addSupport(v, "cx_manager", g.CxManager)
	addSupport(v, "loan_advisor", g.LoanAdvisor)
	addSupport(v, "approval_specialist", g.ApprovalSpecialist)
	if agent := primaryAgent(g); agent != nil {
		v["agent_name"] = agent.Name
		v["agent_email"] = domain.Deref(agent.Email)
		v["agent_phone"] = phone.Display(domain.Deref(agent.Phone))
	}
	return v
}

func addSupport(v vars, prefix string, u *domain.InternalSupportUser) {
	if u == nil {
		return
	}
	v[prefix+"_name"] = u.Name
	v[prefix+"_email"] = domain.Deref(u.Email)
	v[prefix+"_phone"] = phone.Display(domain.Deref(u.Phone))
	v[prefix+"_photo_url"] = domain.Deref(u.PhotoURL)
	v[prefix+"_schedule_a_call_url"] = domain.Deref(u.ScheduleACallURL)
}

// approvalVars carries the preapproval figures with their placeholders.
func approvalVars(in Input) vars {
	g := in.Graph
	v := vars{
		"preapproval_amount":     UnderReview,
		"estimated_down_payment": NotApplicable,
		"vpal_approval_date":     NotApplicable,
		"max_price":              moneyOr(g.Application.MaxPrice, NotApplicable),
		"hw_mortgage_conditions": NotApplicable,
	}
	if p := g.Preapproval; p != nil {
		v["preapproval_amount"] = moneyOr(p.Amount, UnderReview)
		v["estimated_down_payment"] = moneyOr(p.EstimatedDownPayment, NotApplicable)
		v["vpal_approval_date"] = dateOr(p.VPALApprovalDate, NotApplicable)
		if p.HWMortgageConditions != nil && *p.HWMortgageConditions != "" {
			v["hw_mortgage_conditions"] = *p.HWMortgageConditions
		}
	}
	return v
}

func offerVars(in Input) vars {
	o := in.Offer
	if o == nil {
		return vars{}
	}
	v := vars{
		"offer_price":            moneyOr(o.OfferPrice, NotApplicable),
		"preferred_closing_date": dateOr(o.PreferredClosingDate, NotApplicable),
		"offer_status":           string(o.Status),
	}
	if in.Graph.OfferPropertyAddress != nil {
		v["offer_property_address"] = in.Graph.OfferPropertyAddress.OneLine()
	}
	return v
}

func purchaseVars(in Input) vars {
	g := in.Graph
	n := g.NewHomePurchase
	if n == nil {
		return vars{}
	}
	v := vars{
		"contract_price":               moneyOr(n.ContractPrice, NotApplicable),
		"earnest_deposit_percentage":   percentOr(n.EarnestDepositPercentage, NotApplicable),
		"option_period_end_date":       dateOr(n.OptionPeriodEndDate, NotApplicable),
		"homeward_purchase_close_date": dateOr(n.HomewardPurchaseCloseDate, NotApplicable),
		"customer_purchase_close_date": dateOr(n.CustomerPurchaseCloseDate, NotApplicable),
	}
	if g.NewHomeAddress != nil {
		v["new_home_address"] = g.NewHomeAddress.OneLine()
	}
	if r := g.Rent; r != nil {
		v["rent_amount"] = moneyOr(r.AmountMonthsOneAndTwo, NotApplicable)
		v["rent_type"] = string(domain.Deref(r.Type))
		v["daily_rental_rate"] = moneyOr(r.DailyRentalRate, NotApplicable)
	}
	return v
}

func primaryAgent(g *domain.ApplicationGraph) *domain.Agent {
	if g.BuyingAgent != nil {
		return g.BuyingAgent
	}
	return g.ListingAgent
}
