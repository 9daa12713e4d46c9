package postgres

import (
	"context"
	"fmt"

	"bbys_backend/internal/outbox"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
)

const outboxColumns = `o.id, o.kind, o.application_id, o.payload, o.run_at, o.status, o.attempts, o.last_error, o.created_at, o.updated_at`

const claimPendingSQL = `WITH cte AS (
	SELECT id
	FROM outbox
	WHERE status = 'pending'
	ORDER BY run_at ASC
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
UPDATE outbox o
SET status = 'enqueued', updated_at = now()
FROM cte
WHERE o.id = cte.id
RETURNING ` + outboxColumns

// ClaimPending moves up to limit due records to enqueued. Concurrent
// dispatchers skip rows another claim holds.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	if limit < 1 {
		limit = 50
	}

	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgxTx.Rollback(ctx) }()

	records, err := claimPending(ctx, pgxTx, limit)
	if err != nil {
		return nil, err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func claimPending(ctx context.Context, db querier, limit int) ([]outbox.Record, error) {
	rows, err := db.Query(ctx, claimPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[outbox.Record])
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	return records, nil
}

func (s *Store) GetOutboxRecord(ctx context.Context, id uuid.UUID) (outbox.Record, error) {
	return getOne[outbox.Record](ctx, s.pool, byID(outboxStruct, tableOutbox, id), "outbox record")
}

func (s *Store) setOutbox(ctx context.Context, id uuid.UUID, assignments func(ub *sqlbuilder.UpdateBuilder) []string) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableOutbox)
	ub.Set(append(assignments(ub), "updated_at = now()")...)
	ub.Where(ub.Equal("id", id))
	return execUpdate(ctx, s.pool, ub, "outbox record")
}

func (s *Store) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.setOutbox(ctx, id, func(ub *sqlbuilder.UpdateBuilder) []string {
		return []string{ub.Assign("status", outbox.StatusProcessing), ub.Incr("attempts")}
	})
}

func (s *Store) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return s.setOutbox(ctx, id, func(ub *sqlbuilder.UpdateBuilder) []string {
		return []string{ub.Assign("status", outbox.StatusSucceeded), "last_error = NULL"}
	})
}

func (s *Store) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	return s.setOutbox(ctx, id, func(ub *sqlbuilder.UpdateBuilder) []string {
		return []string{ub.Assign("status", outbox.StatusPending), ub.Assign("last_error", lastError)}
	})
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return s.setOutbox(ctx, id, func(ub *sqlbuilder.UpdateBuilder) []string {
		return []string{ub.Assign("status", outbox.StatusFailed), ub.Assign("last_error", lastError)}
	})
}
