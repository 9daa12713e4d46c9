// Package events defines the domain events the lifecycle writes to the
// outbox, their codec, and aliases of the platform bus types.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"bbys_backend/internal/domain"
	"bbys_backend/platform/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Subscriber  = events.Subscriber
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	BaseEventAt    = events.BaseEventAt
	NewInMemoryBus = events.NewInMemoryBus
)

const (
	NameStageChanged            = "application.stage.changed"
	NameMortgageStatusChanged   = "application.mortgage_status.changed"
	NameOfferStatusChanged      = "offer.status.changed"
	NamePreapprovalAmountChange = "preapproval.amount.changed"
	NameTaskCompleted           = "task.completed"
	NameEntityChanged           = "entity.changed"
	NameRegisteredClientCreated = "application.registered_client.created"
	NameUserLoggedIn            = "customer.logged_in"
)

// =============================================================================
// State Machine Events
// =============================================================================

// ApplicationStageChanged is published after a committed change of Application.stage.
type ApplicationStageChanged struct {
	BaseEvent
	ApplicationID uuid.UUID                `json:"applicationId"`
	Previous      *domain.ApplicationStage `json:"previous,omitempty"`
	New           domain.ApplicationStage  `json:"new"`
	Source        string                   `json:"source"`
}

func (e ApplicationStageChanged) EventName() string { return NameStageChanged }

// MortgageStatusChanged is published after a committed change of Application.mortgage_status.
// Stage is the application stage at the time of the change.
type MortgageStatusChanged struct {
	BaseEvent
	ApplicationID uuid.UUID               `json:"applicationId"`
	Previous      *domain.MortgageStatus  `json:"previous,omitempty"`
	New           *domain.MortgageStatus  `json:"new,omitempty"`
	Stage         domain.ApplicationStage `json:"stage"`
}

func (e MortgageStatusChanged) EventName() string { return NameMortgageStatusChanged }

// OfferStatusChanged is published when an offer is created or its status changes.
// Previous is nil for a newly created offer.
type OfferStatusChanged struct {
	BaseEvent
	ApplicationID uuid.UUID           `json:"applicationId"`
	OfferID       uuid.UUID           `json:"offerId"`
	Previous      *domain.OfferStatus `json:"previous,omitempty"`
	New           domain.OfferStatus  `json:"new"`
}

func (e OfferStatusChanged) EventName() string { return NameOfferStatusChanged }

// PreapprovalAmountChanged is published when the preapproval amount of an application changes.
type PreapprovalAmountChanged struct {
	BaseEvent
	ApplicationID uuid.UUID           `json:"applicationId"`
	PreapprovalID uuid.UUID           `json:"preapprovalId"`
	Previous      decimal.NullDecimal `json:"previous"`
	New           decimal.NullDecimal `json:"new"`
}

func (e PreapprovalAmountChanged) EventName() string { return NamePreapprovalAmountChange }

// Increased reports whether an existing amount went up. A first amount is
// not an increase.
func (e PreapprovalAmountChanged) Increased() bool {
	if !e.New.Valid || !e.Previous.Valid {
		return false
	}
	return e.New.Decimal.GreaterThan(e.Previous.Decimal)
}

// =============================================================================
// Task Engine Events
// =============================================================================

// TaskCompleted is published when a task transitions to COMPLETED.
type TaskCompleted struct {
	BaseEvent
	ApplicationID uuid.UUID       `json:"applicationId"`
	Task          domain.TaskName `json:"task"`
}

func (e TaskCompleted) EventName() string { return NameTaskCompleted }

// =============================================================================
// Entity Store Events
// =============================================================================

// EntityChanged carries the tracked-field diff of one committed write.
type EntityChanged struct {
	BaseEvent
	Kind          domain.EntityKind             `json:"kind"`
	EntityID      uuid.UUID                     `json:"entityId"`
	ApplicationID *uuid.UUID                    `json:"applicationId,omitempty"`
	Created       bool                          `json:"created"`
	Changes       map[string]domain.FieldChange `json:"changes"`
	Source        string                        `json:"source"`
}

func (e EntityChanged) EventName() string { return NameEntityChanged }

// Changed reports whether field is part of the diff.
func (e EntityChanged) Changed(field string) bool {
	_, ok := e.Changes[field]
	return ok
}

// RegisteredClientCreated is published when an agent registers a client.
type RegisteredClientCreated struct {
	BaseEvent
	ApplicationID uuid.UUID `json:"applicationId"`
	AgentID       uuid.UUID `json:"agentId"`
}

func (e RegisteredClientCreated) EventName() string { return NameRegisteredClientCreated }

// UserLoggedIn is published when a customer signs in to the portal.
type UserLoggedIn struct {
	BaseEvent
	ApplicationID uuid.UUID `json:"applicationId"`
	CustomerID    uuid.UUID `json:"customerId"`
	At            time.Time `json:"at"`
}

func (e UserLoggedIn) EventName() string { return NameUserLoggedIn }

// =============================================================================
// Codec
// =============================================================================

var decoders = map[string]func([]byte) (Event, error){
	NameStageChanged:            decodeAs[ApplicationStageChanged],
	NameMortgageStatusChanged:   decodeAs[MortgageStatusChanged],
	NameOfferStatusChanged:      decodeAs[OfferStatusChanged],
	NamePreapprovalAmountChange: decodeAs[PreapprovalAmountChanged],
	NameTaskCompleted:           decodeAs[TaskCompleted],
	NameEntityChanged:           decodeAs[EntityChanged],
	NameRegisteredClientCreated: decodeAs[RegisteredClientCreated],
	NameUserLoggedIn:            decodeAs[UserLoggedIn],
}

func decodeAs[T Event](payload []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// Decode rebuilds an event from its name and JSON payload, as stored in the outbox.
func Decode(name string, payload []byte) (Event, error) {
	decode, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("unknown event %q", name)
	}
	e, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return e, nil
}
