// Package closingdates computes the window and the restricted dates for an
// offer's preferred closing date.
package closingdates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"

	"github.com/shopspring/decimal"
)

// Field is the offer field validated by the restrictor.
const Field = "preferred_closing_date"

// CapacityLimit is the weighted number of closings above which a date is full.
var CapacityLimit = decimal.NewFromInt(15)

var (
	pipelineWeight = decimal.RequireFromString("0.45")
	contractWeight = decimal.NewFromInt(1)
)

const windowMonths = 18

// Window is the allowed range of closing dates and the restricted dates in it.
type Window struct {
	Earliest   domain.Date   `json:"earliest_possible_close_date"`
	Latest     domain.Date   `json:"latest_possible_close_date"`
	Restricted []domain.Date `json:"restricted_close_dates"`
}

// Restrictor evaluates closing-date rules against the offers in the store.
type Restrictor struct {
	q store.Queries
}

func New(q store.Queries) *Restrictor {
	return &Restrictor{q: q}
}

// Bounds returns the earliest and latest closing dates for an offer created at
// created under the given product.
func Bounds(product domain.ProductOffering, created time.Time) (domain.Date, domain.Date) {
	day := domain.DateOf(created)
	lead := 21
	if product == domain.ProductBuyOnly {
		lead = 17
	}
	return day.AddDays(lead), day.AddMonths(windowMonths)
}

// Weight is the contribution of one offer to the capacity of its date.
func Weight(stage domain.ApplicationStage, status domain.OfferStatus) decimal.Decimal {
	switch {
	case stage.In(domain.StageQualifiedApplication, domain.StageFloorPriceRequested, domain.StageFloorPriceCompleted,
		domain.StageApproved, domain.StageOfferRequested, domain.StageOfferSubmitted) &&
		status.In(domain.OfferRequested, domain.OfferMOPComplete, domain.OfferApproved, domain.OfferBackupPositionAccepted):
		return pipelineWeight
	case stage.In(domain.StageOptionPeriod, domain.StagePostOption) && status == domain.OfferWon:
		return contractWeight
	}
	return decimal.Zero
}

// Window computes the bounds and restricted dates for an offer.
func (r *Restrictor) Window(ctx context.Context, product domain.ProductOffering, created time.Time) (Window, error) {
	earliest, latest := Bounds(product, created)
	restricted, err := r.Restricted(ctx, earliest, latest)
	if err != nil {
		return Window{}, err
	}
	return Window{Earliest: earliest, Latest: latest, Restricted: restricted}, nil
}

// Restricted returns the weekends, holidays and full dates in [from, to], sorted.
func (r *Restrictor) Restricted(ctx context.Context, from, to domain.Date) ([]domain.Date, error) {
	full, err := r.atCapacity(ctx, from, to)
	if err != nil {
		return nil, err
	}
	set := map[domain.Date]struct{}{}
	for d := from; !d.After(to); d = d.AddDays(1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			set[d] = struct{}{}
		}
	}
	for year := from.Year; year <= to.Year; year++ {
		for _, h := range Holidays(year) {
			if !h.Before(from) && !h.After(to) {
				set[h] = struct{}{}
			}
		}
	}
	for _, d := range full {
		set[d] = struct{}{}
	}

	out := make([]domain.Date, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *Restrictor) atCapacity(ctx context.Context, from, to domain.Date) ([]domain.Date, error) {
	loads, err := r.q.ListOfferClosingLoads(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("closing loads: %w", err)
	}
	sums := map[domain.Date]decimal.Decimal{}
	for _, l := range loads {
		sums[l.Date] = sums[l.Date].Add(Weight(l.Stage, l.Status))
	}
	var full []domain.Date
	for d, sum := range sums {
		if sum.GreaterThan(CapacityLimit) {
			full = append(full, d)
		}
	}
	return full, nil
}

// Validate checks a preferred closing date. Violations are InvalidInput
// errors keyed by Field, with one message per rule.
func (r *Restrictor) Validate(ctx context.Context, product domain.ProductOffering, created time.Time, date domain.Date) error {
	earliest, latest := Bounds(product, created)
	if date.Before(earliest) {
		return apperr.FieldError(Field, fmt.Sprintf("preferred closing date of %s cannot be before %s", date, earliest))
	}
	if date.After(latest) {
		return apperr.FieldError(Field, fmt.Sprintf("preferred closing date of %s cannot be after %s", date, latest))
	}
	restricted, err := r.Restricted(ctx, date, date)
	if err != nil {
		return err
	}
	if len(restricted) > 0 {
		return apperr.FieldError(Field, fmt.Sprintf("preferred closing date of %s cannot be on a restricted date", date))
	}
	return nil
}
