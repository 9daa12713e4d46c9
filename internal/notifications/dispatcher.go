// Package notifications is the Notification Dispatcher. Every send goes
// through one decision procedure per (application, notification): catalog
// activation, SENT idempotence, preconditions, suppression rules, the mailer
// call and an append-only outcome row.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/locks"
	"bbys_backend/internal/mailer"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/config"
	"bbys_backend/platform/logger"
	"bbys_backend/platform/metrics"

	"github.com/google/uuid"
)

// Outcome is the result of one dispatch decision.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeNotSent     Outcome = "not_sent"
	OutcomeSuppressed  Outcome = "suppressed"
	OutcomeMissing     Outcome = "missing"
	OutcomeInactive    Outcome = "inactive"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeSkipped     Outcome = "skipped"
)

const (
	sinkFailurePrefix = "sink returned"
	lockTTL           = 2 * time.Minute
	lockWait          = 30 * time.Second
)

// Request addresses one dispatch. OfferID narrows offer notifications to the
// triggering offer; the latest offer is used otherwise.
type Request struct {
	ApplicationID uuid.UUID  `json:"application_id"`
	Name          string     `json:"name"`
	OfferID       *uuid.UUID `json:"offer_id,omitempty"`
}

type Dispatcher struct {
	store  store.Store
	sink   mailer.Sink
	locker locks.Locker
	cfg    config.NotificationConfig
	log    *logger.Logger
	now    func() time.Time
	loc    *time.Location
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the dispatcher clock.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLocation sets the zone in which "today" is computed.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

func NewDispatcher(st store.Store, sink mailer.Sink, locker locks.Locker, cfg config.NotificationConfig, log *logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  st,
		sink:   sink,
		locker: locker,
		cfg:    cfg,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the decision procedure for one request. Concurrent dispatches
// of the same (application, notification) are serialized.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	def, ok := Lookup(req.Name)
	if !ok {
		return OutcomeSkipped, apperr.BadRequest(fmt.Sprintf("unknown notification %q", req.Name))
	}
	var outcome Outcome
	key := "notification:" + req.ApplicationID.String() + ":" + req.Name
	err := locks.WithLock(ctx, d.locker, key, lockTTL, lockWait, func(ctx context.Context) error {
		var err error
		outcome, err = d.dispatch(ctx, def, req)
		return err
	})
	return outcome, err
}

func (d *Dispatcher) dispatch(ctx context.Context, def Definition, req Request) (Outcome, error) {
	n, err := d.store.GetNotificationByName(ctx, def.Name)
	if apperr.Is(err, apperr.KindNotFound) {
		d.log.Warn("notification missing from catalog", "notification", def.Name)
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}
	if !n.IsActive {
		d.log.Info("notification inactive", "notification", def.Name, "application_id", req.ApplicationID)
		metrics.Notifications.WithLabelValues(def.Name, string(OutcomeInactive)).Inc()
		return OutcomeInactive, nil
	}

	in, err := d.input(ctx, req, n.ID)
	if err != nil {
		return "", err
	}
	if hasStatus(in.Statuses, domain.DeliverySent) {
		return OutcomeAlreadySent, nil
	}
	if def.NoRetry && lastSinkFailure(in.Statuses) {
		return OutcomeSkipped, nil
	}

	var missing []string
	for _, r := range def.Require {
		if !r.Met(in) {
			missing = append(missing, r.Reason)
		}
	}
	msg, recipientMissing := d.message(def, n, in)
	if recipientMissing != "" {
		missing = append(missing, recipientMissing)
	}
	if len(missing) > 0 {
		for _, reason := range missing {
			if err := d.record(ctx, in, n, domain.DeliveryNotSent, reason); err != nil {
				return "", err
			}
		}
		return OutcomeMissing, nil
	}

	for _, rule := range def.Suppress {
		if rule.Applies(in) {
			if err := d.record(ctx, in, n, domain.DeliverySuppressed, rule.Reason); err != nil {
				return "", err
			}
			return OutcomeSuppressed, nil
		}
	}

	status, sendErr := d.sink.Send(ctx, msg)
	if status == http.StatusOK {
		err := d.record(ctx, in, n, domain.DeliverySent, "")
		if apperr.Is(err, apperr.KindConflict) {
			return OutcomeAlreadySent, nil
		}
		if err != nil {
			return "", err
		}
		return OutcomeSent, nil
	}

	reason := fmt.Sprintf("%s %d", sinkFailurePrefix, status)
	d.log.Warn("mailer rejected notification", "notification", def.Name,
		"application_id", req.ApplicationID, "status", status, "error", sendErr)
	if err := d.record(ctx, in, n, domain.DeliveryNotSent, reason); err != nil {
		return "", err
	}
	return OutcomeNotSent, nil
}

// input loads the graph and history a definition is evaluated against.
func (d *Dispatcher) input(ctx context.Context, req Request, notificationID uuid.UUID) (Input, error) {
	graph, err := store.LoadGraph(ctx, d.store, req.ApplicationID)
	if err != nil {
		return Input{}, err
	}
	statuses, err := d.store.ListNotificationStatuses(ctx, req.ApplicationID, &notificationID)
	if err != nil {
		return Input{}, err
	}
	now := d.now()
	in := Input{
		Graph:      graph,
		Statuses:   statuses,
		Now:        now,
		Today:      domain.DateIn(now, d.loc),
		AppBaseURL: d.cfg.GetAppBaseURL(),
	}
	if req.OfferID != nil {
		in.Offer = graph.Offer(*req.OfferID)
	} else {
		in.Offer = graph.LatestOffer()
	}
	return in, nil
}

// message builds the mailer payload. It returns the precondition reason when
// the audience has no address.
func (d *Dispatcher) message(def Definition, n domain.Notification, in Input) (mailer.Message, string) {
	g := in.Graph
	msg := mailer.Message{
		TemplateID:       n.TemplateID,
		From:             d.cfg.GetMailFromAddress(),
		CustomProperties: def.Vars(in),
		ContactProperties: map[string]string{
			"firstname": g.Customer.FirstName,
			"lastname":  g.Customer.LastName,
		},
	}
	if bcc := d.cfg.GetArchiveBCC(); bcc != "" {
		msg.Bcc = []string{bcc}
	}
	if owner := strings.TrimSpace(domain.Deref(g.Application.HomewardOwnerEmail)); owner != "" {
		msg.ReplyTo = []string{owner}
	} else if g.CxManager != nil && g.CxManager.Email != nil {
		msg.ReplyTo = []string{*g.CxManager.Email}
	}

	switch def.Audience {
	case AudienceAgent:
		agent := primaryAgent(g)
		if agent == nil || strings.TrimSpace(domain.Deref(agent.Email)) == "" {
			return msg, "Missing agent email"
		}
		msg.To = *agent.Email
		msg.ContactProperties = map[string]string{"firstname": agent.Name}
	case AudienceValuationsDesk:
		desk := d.cfg.GetValuationsDeskEmail()
		if desk == "" {
			return msg, "Missing valuations desk email"
		}
		msg.To = desk
	default:
		if strings.TrimSpace(g.Customer.Email) == "" {
			return msg, "Missing customer email"
		}
		msg.To = g.Customer.Email
		if co := strings.TrimSpace(domain.Deref(g.Customer.CoBorrowerEmail)); co != "" {
			msg.Cc = []string{co}
		}
	}
	return msg, ""
}

// record appends an outcome row. A NOT_SENT or SUPPRESSED row identical to
// an earlier one is not appended again, so repeated triggers under the same
// condition leave a single row.
func (d *Dispatcher) record(ctx context.Context, in Input, n domain.Notification, status domain.DeliveryStatus, reason string) error {
	appID := in.Graph.Application.ID
	// Precondition and suppression outcomes are written once; every sink
	// failure is its own delivery attempt.
	if status != domain.DeliverySent && !strings.HasPrefix(reason, sinkFailurePrefix) {
		for _, s := range in.Statuses {
			if s.Status == status && s.Reason == reason {
				return nil
			}
		}
	}
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.InsertNotificationStatus(ctx, domain.NotificationStatus{
			ApplicationID:  appID,
			NotificationID: n.ID,
			Status:         status,
			Reason:         reason,
		})
		return err
	})
	if err != nil {
		return err
	}
	metrics.Notifications.WithLabelValues(n.Name, string(status)).Inc()
	d.log.NotificationOutcome(appID.String(), n.Name, string(status), reason)
	return nil
}

// RetryPending re-attempts the event-driven notifications of an application
// whose latest outcome is NOT_SENT or SUPPRESSED and whose trigger still holds.
func (d *Dispatcher) RetryPending(ctx context.Context, applicationID uuid.UUID) error {
	rows, err := d.store.ListNotificationStatuses(ctx, applicationID, nil)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	catalog, err := d.store.ListNotifications(ctx)
	if err != nil {
		return err
	}
	names := make(map[uuid.UUID]string, len(catalog))
	for _, n := range catalog {
		names[n.ID] = n.Name
	}

	sent := map[uuid.UUID]bool{}
	var order []uuid.UUID
	for _, r := range rows {
		if _, seen := sent[r.NotificationID]; !seen {
			order = append(order, r.NotificationID)
		}
		sent[r.NotificationID] = sent[r.NotificationID] || r.Status == domain.DeliverySent
	}

	graph, err := store.LoadGraph(ctx, d.store, applicationID)
	if err != nil {
		return err
	}
	now := d.now()
	in := Input{Graph: graph, Now: now, Today: domain.DateIn(now, d.loc), Offer: graph.LatestOffer()}

	var errs []error
	for _, id := range order {
		if sent[id] {
			continue
		}
		def, ok := Lookup(names[id])
		if !ok || def.Scheduled || !def.Eligible(in) {
			continue
		}
		if _, err := d.Dispatch(ctx, Request{ApplicationID: applicationID, Name: def.Name}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", def.Name, err))
		}
	}
	return errors.Join(errs...)
}

func hasStatus(rows []domain.NotificationStatus, status domain.DeliveryStatus) bool {
	for _, r := range rows {
		if r.Status == status {
			return true
		}
	}
	return false
}

func lastSinkFailure(rows []domain.NotificationStatus) bool {
	if len(rows) == 0 {
		return false
	}
	last := rows[len(rows)-1]
	return last.Status == domain.DeliveryNotSent && strings.HasPrefix(last.Reason, sinkFailurePrefix)
}
