// Package memory is an in-process Entity Store. Transactions run against a
// copy of the state and publish it on commit, so readers never observe a
// partial unit of work. It backs tests and local runs without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bbys_backend/internal/outbox"
	"bbys_backend/internal/store"
	"bbys_backend/platform/apperr"

	"github.com/google/uuid"
)

// Store implements store.Store.
type Store struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	state   *state
	nowFn   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) current() view {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.state}
}

// mutate applies fn to a copy of the state and publishes it when fn succeeds.
func (s *Store) mutate(fn func(st *state) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current().st.clone()
	if err := fn(next); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.mutate(func(st *state) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(&tx{view: view{st: st}, now: s.nowFn()})
	})
}

func (s *Store) Ping(context.Context) error { return nil }

// =============================================================================
// outbox.Repository
// =============================================================================

func (s *Store) ClaimPending(_ context.Context, limit int) ([]outbox.Record, error) {
	if limit < 1 {
		limit = 50
	}
	var claimed []outbox.Record
	err := s.mutate(func(st *state) error {
		idx := make([]int, 0)
		for i, rec := range st.outbox {
			if rec.Status == outbox.StatusPending {
				idx = append(idx, i)
			}
		}
		sort.SliceStable(idx, func(a, b int) bool { return st.outbox[idx[a]].RunAt.Before(st.outbox[idx[b]].RunAt) })
		if len(idx) > limit {
			idx = idx[:limit]
		}
		now := s.nowFn()
		for _, i := range idx {
			st.outbox[i].Status = outbox.StatusEnqueued
			st.outbox[i].UpdatedAt = now
			claimed = append(claimed, st.outbox[i])
		}
		return nil
	})
	return claimed, err
}

func (s *Store) GetOutboxRecord(_ context.Context, id uuid.UUID) (outbox.Record, error) {
	for _, rec := range s.current().st.outbox {
		if rec.ID == id {
			return rec, nil
		}
	}
	return outbox.Record{}, apperr.NotFound("outbox record not found")
}

func (s *Store) updateOutbox(id uuid.UUID, apply func(*outbox.Record)) error {
	return s.mutate(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == id {
				apply(&st.outbox[i])
				st.outbox[i].UpdatedAt = s.nowFn()
				return nil
			}
		}
		return apperr.NotFound("outbox record not found")
	})
}

func (s *Store) MarkProcessing(_ context.Context, id uuid.UUID) error {
	return s.updateOutbox(id, func(r *outbox.Record) {
		r.Status = outbox.StatusProcessing
		r.Attempts++
	})
}

func (s *Store) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	return s.updateOutbox(id, func(r *outbox.Record) {
		r.Status = outbox.StatusSucceeded
		r.LastError = nil
	})
}

func (s *Store) MarkPending(_ context.Context, id uuid.UUID, lastError *string) error {
	return s.updateOutbox(id, func(r *outbox.Record) {
		r.Status = outbox.StatusPending
		r.LastError = lastError
	})
}

func (s *Store) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return s.updateOutbox(id, func(r *outbox.Record) {
		r.Status = outbox.StatusFailed
		r.LastError = &lastError
	})
}

// OutboxRecords returns every outbox record in append order.
func (s *Store) OutboxRecords() []outbox.Record {
	return append([]outbox.Record(nil), s.current().st.outbox...)
}

var _ store.Store = (*Store)(nil)
