package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/locks"
	"bbys_backend/internal/mailer"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	sweepPageSize  = 200
	followUpAfter  = 72 * time.Hour
	referralMinAge = time.Hour
	referralMaxAge = 2 * time.Hour
)

// SweepResult summarizes one periodic sweep.
type SweepResult struct {
	Evaluated int
	Outcomes  map[Outcome]int
}

func (r *SweepResult) add(o Outcome) {
	if r.Outcomes == nil {
		r.Outcomes = map[Outcome]int{}
	}
	r.Outcomes[o]++
}

// Sweeper runs the time-window notifications. Each candidate goes through the
// same decision procedure as event-driven sends, so overlapping sweeps are
// harmless.
type Sweeper struct {
	d *Dispatcher
}

func NewSweeper(d *Dispatcher) *Sweeper {
	return &Sweeper{d: d}
}

var closeWindowDefinitions = []string{PreHomewardClose, PreCustomerClose, AgentPreCustomerClose, ExpiringApproval}

// Daily evaluates the close-date, approval-expiry, reminder and VPAL
// follow-up windows.
func (s *Sweeper) Daily(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.d.now()
	today := domain.DateIn(now, s.d.loc)
	var errs []error

	windowStages := store.ApplicationFilter{Stages: []domain.ApplicationStage{
		domain.StageOptionPeriod, domain.StagePostOption, domain.StageHomewardPurchase, domain.StageApproved,
	}}
	err := s.each(ctx, windowStages, func(g *domain.ApplicationGraph) error {
		in := Input{Graph: g, Now: now, Today: today}
		for _, name := range closeWindowDefinitions {
			def, _ := Lookup(name)
			if !def.Eligible(in) {
				continue
			}
			if err := s.dispatch(ctx, &res, Request{ApplicationID: g.Application.ID, Name: name}); err != nil {
				return err
			}
		}
		return nil
	})
	errs = append(errs, err)

	from, to := now.Add(-time.Duration(ReminderDays[len(ReminderDays)-1]+1)*24*time.Hour), now.Add(-time.Duration(ReminderDays[0])*24*time.Hour)
	incomplete := store.ApplicationFilter{
		Stages:      []domain.ApplicationStage{domain.StageIncomplete},
		CreatedFrom: &from,
		CreatedTo:   &to,
	}
	err = s.each(ctx, incomplete, func(g *domain.ApplicationGraph) error {
		name, ok := ReminderFor(g, now)
		if !ok {
			return nil
		}
		return s.dispatch(ctx, &res, Request{ApplicationID: g.Application.ID, Name: name})
	})
	errs = append(errs, err)

	vpal := store.ApplicationFilter{
		Stages:           []domain.ApplicationStage{domain.StageQualifiedApplication},
		MortgageStatuses: []domain.MortgageStatus{domain.MortgageVPALReadyForReview},
	}
	err = s.each(ctx, vpal, func(g *domain.ApplicationGraph) error {
		due, err := s.followUpDue(ctx, g.Application.ID, now)
		if err != nil || !due {
			return err
		}
		return s.dispatch(ctx, &res, Request{ApplicationID: g.Application.ID, Name: VPALReadyForReviewFollowUp})
	})
	errs = append(errs, err)

	return res, errors.Join(errs...)
}

// ReminderFor picks the reminder an incomplete application is due for, if
// its age falls inside one of the day buckets.
func ReminderFor(g *domain.ApplicationGraph, now time.Time) (string, bool) {
	age := now.Sub(g.Application.CreatedAt)
	for _, days := range ReminderDays {
		low := time.Duration(days) * 24 * time.Hour
		if age < low || age >= low+24*time.Hour {
			continue
		}
		switch {
		case g.Application.RegisteredClient:
			return RegisteredClientReminder(days), true
		case days == ReminderDays[0] && g.Application.PricingID != nil:
			return FastTrackResume, true
		case !g.Customer.HasAccount():
			return PreAccountReminder(days), true
		default:
			return IncompleteReminder(days), true
		}
	}
	return "", false
}

// followUpDue reports whether VPAL_READY_FOR_REVIEW went out long enough ago.
func (s *Sweeper) followUpDue(ctx context.Context, applicationID uuid.UUID, now time.Time) (bool, error) {
	n, err := s.d.store.GetNotificationByName(ctx, VPALReadyForReview)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rows, err := s.d.store.ListNotificationStatuses(ctx, applicationID, &n.ID)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Status == domain.DeliverySent && !r.CreatedAt.After(now.Add(-followUpAfter)) {
			return true, nil
		}
	}
	return false, nil
}

// Hourly sends INCOMPLETE_REFERRAL for pricing quotes that did not turn into
// an application within the hour.
func (s *Sweeper) Hourly(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.d.now()
	pricings, err := s.d.store.ListPricingCreatedBetween(ctx, now.Add(-referralMaxAge), now.Add(-referralMinAge))
	if err != nil {
		return res, err
	}
	var errs []error
	for _, p := range pricings {
		if p.ApplicationID != nil || p.ReferralNotifiedAt != nil {
			continue
		}
		res.Evaluated++
		key := "referral:" + p.ID.String()
		err := locks.WithLock(ctx, s.d.locker, key, lockTTL, lockWait, func(ctx context.Context) error {
			o, err := s.referral(ctx, p.ID)
			if err == nil {
				res.add(o)
			}
			return err
		})
		if err != nil {
			s.d.log.Error("referral notification failed", "pricing_id", p.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func (s *Sweeper) referral(ctx context.Context, pricingID uuid.UUID) (Outcome, error) {
	d := s.d
	p, err := d.store.GetPricing(ctx, pricingID)
	if err != nil {
		return "", err
	}
	if p.ApplicationID != nil || p.ReferralNotifiedAt != nil {
		return OutcomeAlreadySent, nil
	}
	n, err := d.store.GetNotificationByName(ctx, IncompleteReferral)
	if apperr.Is(err, apperr.KindNotFound) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}
	if !n.IsActive {
		return OutcomeInactive, nil
	}

	to := domain.Deref(p.AgentEmail)
	if to == "" {
		to = d.cfg.GetReferralsDeskEmail()
	}
	if to == "" {
		d.log.Warn("referral has no recipient", "pricing_id", p.ID)
		return OutcomeMissing, nil
	}
	msg := mailer.Message{
		TemplateID: n.TemplateID,
		To:         to,
		From:       d.cfg.GetMailFromAddress(),
		CustomProperties: map[string]any{
			"contact_email":        domain.Deref(p.ContactEmail),
			"estimated_home_value": moneyOr(p.EstimatedHomeValue, NotApplicable),
			"product_offering":     string(domain.Deref(p.ProductOffering)),
		},
	}
	if bcc := d.cfg.GetArchiveBCC(); bcc != "" {
		msg.Bcc = []string{bcc}
	}

	status, sendErr := d.sink.Send(ctx, msg)
	if status != http.StatusOK {
		metrics.Notifications.WithLabelValues(n.Name, string(domain.DeliveryNotSent)).Inc()
		d.log.Warn("mailer rejected referral", "pricing_id", p.ID, "status", status, "error", sendErr)
		return OutcomeNotSent, nil
	}
	err = d.store.WithTx(ctx, func(tx store.Tx) error {
		at := d.now()
		p.ReferralNotifiedAt = &at
		_, err := tx.UpdatePricing(ctx, p)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("mark referral notified: %w", err)
	}
	metrics.Notifications.WithLabelValues(n.Name, string(domain.DeliverySent)).Inc()
	return OutcomeSent, nil
}

func (s *Sweeper) dispatch(ctx context.Context, res *SweepResult, req Request) error {
	o, err := s.d.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	res.add(o)
	return nil
}

// each pages through the matching applications. A failure on one application
// is logged and does not stop the sweep.
func (s *Sweeper) each(ctx context.Context, filter store.ApplicationFilter, fn func(g *domain.ApplicationGraph) error) error {
	filter.Limit = sweepPageSize
	var errs []error
	for {
		ids, err := s.d.store.ListApplicationIDs(ctx, filter)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			g, err := store.LoadGraph(ctx, s.d.store, id)
			if err == nil {
				err = fn(g)
			}
			if err != nil {
				s.d.log.Error("sweep failed for application", "application_id", id, "error", err)
				errs = append(errs, err)
			}
		}
		if len(ids) < sweepPageSize {
			return errors.Join(errs...)
		}
		last := ids[len(ids)-1]
		filter.AfterID = &last
	}
}
