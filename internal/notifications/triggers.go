package notifications

import (
	"context"
	"errors"

	"bbys_backend/internal/domain"
	"bbys_backend/internal/events"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"
	"bbys_backend/platform/logger"

	"github.com/google/uuid"
)

// Enqueuer hands dispatch work to whatever runs it: inline in tests and
// single-process setups, or the task queue in production.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, req Request) error
	EnqueueRetry(ctx context.Context, applicationID uuid.UUID) error
}

// Inline runs dispatches in the caller's goroutine.
type Inline struct {
	Dispatcher *Dispatcher
}

func (i Inline) EnqueueDispatch(ctx context.Context, req Request) error {
	_, err := i.Dispatcher.Dispatch(ctx, req)
	return err
}

func (i Inline) EnqueueRetry(ctx context.Context, applicationID uuid.UUID) error {
	return i.Dispatcher.RetryPending(ctx, applicationID)
}

// Triggers maps committed lifecycle events to dispatch requests.
type Triggers struct {
	queries store.Queries
	queue   Enqueuer
	log     *logger.Logger
}

func NewTriggers(q store.Queries, queue Enqueuer, log *logger.Logger) *Triggers {
	return &Triggers{queries: q, queue: queue, log: log}
}

// RegisterHandlers subscribes the triggers to the events they react to.
func (t *Triggers) RegisterHandlers(bus events.Subscriber) {
	bus.Subscribe(events.NameStageChanged, t)
	bus.Subscribe(events.NameMortgageStatusChanged, t)
	bus.Subscribe(events.NameOfferStatusChanged, t)
	bus.Subscribe(events.NamePreapprovalAmountChange, t)
	bus.Subscribe(events.NameTaskCompleted, t)
	bus.Subscribe(events.NameRegisteredClientCreated, t)
	bus.Subscribe(events.NameEntityChanged, t)
}

func (t *Triggers) Handle(ctx context.Context, event events.Event) error {
	reqs, err := t.requests(ctx, event)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var errs []error
	for _, req := range reqs {
		if err := t.queue.EnqueueDispatch(ctx, req); err != nil {
			t.log.Error("enqueue notification failed", "notification", req.Name,
				"application_id", req.ApplicationID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Triggers) requests(ctx context.Context, event events.Event) ([]Request, error) {
	switch e := event.(type) {
	case events.ApplicationStageChanged:
		return t.onStage(ctx, e)

	case events.MortgageStatusChanged:
		if e.Stage != domain.StageQualifiedApplication || e.New == nil {
			return nil, nil
		}
		var name string
		switch *e.New {
		case domain.MortgageVPALAppIncomplete:
			name = VPALIncomplete
		case domain.MortgageVPALSuspended:
			name = VPALSuspended
		case domain.MortgageVPALReadyForReview:
			name = VPALReadyForReview
		default:
			return nil, nil
		}
		return []Request{{ApplicationID: e.ApplicationID, Name: name}}, nil

	case events.OfferStatusChanged:
		if e.New != domain.OfferRequested || (e.Previous != nil && *e.Previous == domain.OfferRequested) {
			return nil, nil
		}
		offerID := e.OfferID
		reqs := []Request{
			{ApplicationID: e.ApplicationID, Name: OfferSubmitted, OfferID: &offerID},
			{ApplicationID: e.ApplicationID, Name: OfferSubmittedAgent, OfferID: &offerID},
		}
		app, err := t.queries.GetApplication(ctx, e.ApplicationID)
		if err != nil {
			return nil, err
		}
		if app.ServiceAgreementAcknowledgedAt == nil {
			reqs = append(reqs, Request{ApplicationID: e.ApplicationID, Name: OfferRequestedUnacknowledgedSA, OfferID: &offerID})
		}
		return reqs, nil

	case events.PreapprovalAmountChanged:
		if !e.Increased() {
			return nil, nil
		}
		return []Request{{ApplicationID: e.ApplicationID, Name: PurchasePriceUpdated}}, nil

	case events.TaskCompleted:
		if e.Task != domain.TaskPhotoUpload {
			return nil, nil
		}
		return []Request{{ApplicationID: e.ApplicationID, Name: PhotoUpload}}, nil

	case events.RegisteredClientCreated:
		return []Request{{ApplicationID: e.ApplicationID, Name: RegisteredClientWelcome}}, nil

	case events.EntityChanged:
		// Field edits can remedy a missing precondition or lift a suppression.
		if e.ApplicationID == nil {
			return nil, nil
		}
		return nil, t.queue.EnqueueRetry(ctx, *e.ApplicationID)
	}
	return nil, nil
}

func (t *Triggers) onStage(ctx context.Context, e events.ApplicationStageChanged) ([]Request, error) {
	one := func(names ...string) []Request {
		out := make([]Request, 0, len(names))
		for _, n := range names {
			out = append(out, Request{ApplicationID: e.ApplicationID, Name: n})
		}
		return out
	}
	switch e.New {
	case domain.StageComplete:
		return one(ApplicationComplete), nil
	case domain.StageQualifiedApplication:
		return one(ApplicationUnderReview), nil
	case domain.StageApproved:
		app, err := t.queries.GetApplication(ctx, e.ApplicationID)
		if err != nil {
			return nil, err
		}
		approval := Approval
		if app.HWMortgageCandidate == domain.HWCandidateYes {
			approval = HWMortgageCandidateApproval
		}
		return one(approval, AgentOfferInstructions), nil
	case domain.StageOptionPeriod:
		return one(OfferAccepted), nil
	case domain.StageHomewardPurchase:
		return one(HomewardClose), nil
	case domain.StageCustomerClosed:
		return one(CustomerClose, AgentCustomerClose), nil
	}
	return nil, nil
}
