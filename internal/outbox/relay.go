package outbox

import (
	"context"

	"bbys_backend/internal/events"
	"bbys_backend/platform/logger"
	"bbys_backend/platform/metrics"

	"github.com/google/uuid"
)

const claimBatch = 50

// Relay publishes outbox records on the bus synchronously.
type Relay struct {
	repo Repository
	bus  events.Bus
	log  *logger.Logger
}

func NewRelay(repo Repository, bus events.Bus, log *logger.Logger) *Relay {
	return &Relay{repo: repo, bus: bus, log: log}
}

// Deliver publishes one record and records the outcome. Handler failures
// put the record back to pending until MaxAttempts is reached.
func (r *Relay) Deliver(ctx context.Context, id uuid.UUID) error {
	rec, err := r.repo.GetOutboxRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == StatusSucceeded || rec.Status == StatusFailed {
		return nil
	}
	if err := r.repo.MarkProcessing(ctx, id); err != nil {
		return err
	}

	event, err := rec.Event()
	if err != nil {
		metrics.OutboxRecords.WithLabelValues("undecodable").Inc()
		return r.repo.MarkFailed(ctx, id, err.Error())
	}

	if err := r.bus.PublishSync(ctx, event); err != nil {
		msg := err.Error()
		r.log.Warn("outbox handlers failed", "outbox_id", id, "kind", rec.Kind, "attempt", rec.Attempts+1, "error", err)
		if rec.Attempts+1 >= MaxAttempts {
			metrics.OutboxRecords.WithLabelValues("failed").Inc()
			return r.repo.MarkFailed(ctx, id, msg)
		}
		metrics.OutboxRecords.WithLabelValues("retry").Inc()
		return r.repo.MarkPending(ctx, id, &msg)
	}

	metrics.OutboxRecords.WithLabelValues("succeeded").Inc()
	return r.repo.MarkSucceeded(ctx, id)
}

// Drain delivers pending records until none are left or a delivery pass
// produces no progress. Handlers may append new records; those are picked up
// by the next pass. It returns the number of records delivered.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	delivered := 0
	for pass := 0; pass < 64; pass++ {
		records, err := r.repo.ClaimPending(ctx, claimBatch)
		if err != nil {
			return delivered, err
		}
		if len(records) == 0 {
			return delivered, nil
		}
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return delivered, err
			}
			if err := r.Deliver(ctx, rec.ID); err != nil {
				r.log.Error("outbox delivery failed", "outbox_id", rec.ID, "error", err)
				continue
			}
			delivered++
		}
	}
	return delivered, nil
}
