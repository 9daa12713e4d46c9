// Package outbox is the post-commit hand-off between the Entity Store and the
// workers. Mutations append records inside their transaction; a relay later
// decodes each record into a domain event and publishes it on the bus.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bbys_backend/internal/events"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// MaxAttempts bounds redelivery of a record whose handlers keep failing.
const MaxAttempts = 5

type Record struct {
	ID            uuid.UUID       `db:"id"`
	Kind          string          `db:"kind"`
	ApplicationID *uuid.UUID      `db:"application_id"`
	Payload       json.RawMessage `db:"payload"`
	RunAt         time.Time       `db:"run_at"`
	Status        Status          `db:"status"`
	Attempts      int             `db:"attempts"`
	LastError     *string         `db:"last_error"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// NewRecord encodes an event into a pending record.
func NewRecord(event events.Event, applicationID *uuid.UUID) (Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s: %w", event.EventName(), err)
	}
	return Record{
		ID:            uuid.New(),
		Kind:          event.EventName(),
		ApplicationID: applicationID,
		Payload:       payload,
		RunAt:         event.OccurredAt(),
		Status:        StatusPending,
	}, nil
}

// Event decodes the record payload.
func (r Record) Event() (events.Event, error) {
	return events.Decode(r.Kind, r.Payload)
}

// Repository is the storage side of the outbox.
type Repository interface {
	ClaimPending(ctx context.Context, limit int) ([]Record, error)
	GetOutboxRecord(ctx context.Context, id uuid.UUID) (Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}
