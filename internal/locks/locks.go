// Package locks provides per-key mutual exclusion for side effects that must
// not run twice concurrently, such as one (application, notification) send.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired is returned when the key is held by someone else.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld is returned when releasing a lock that expired or was taken over.
	ErrNotHeld = errors.New("lock not held")
)

// Lock is a held key.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker acquires keys without blocking.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// WithLock runs fn while holding key, retrying acquisition with capped
// exponential backoff for up to wait.
func WithLock(ctx context.Context, l Locker, key string, ttl, wait time.Duration, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(wait)
	backoff := 10 * time.Millisecond
	for {
		lock, err := l.Acquire(ctx, key, ttl)
		if err == nil {
			defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
			return fn(ctx)
		}
		if !errors.Is(err, ErrNotAcquired) || !time.Now().Before(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > 500*time.Millisecond {
			backoff = 500 * time.Millisecond
		}
	}
}

// =============================================================================
// Redis
// =============================================================================

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker holds keys with SET NX PX and releases them with a
// compare-and-delete script so a holder never deletes someone else's key.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisLocker(rdb redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

type redisLock struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock := &redisLock{rdb: l.rdb, key: l.prefix + key, token: uuid.NewString()}
	ok, err := l.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return lock, nil
}

func (l *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// =============================================================================
// In-process
// =============================================================================

// MemoryLocker is a Locker for a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	token   uuid.UUID
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]memoryEntry{}, now: time.Now}
}

type memoryLock struct {
	owner *MemoryLocker
	key   string
	token uuid.UUID
}

func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return nil, ErrNotAcquired
	}
	token := uuid.New()
	m.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &memoryLock{owner: m, key: key, token: token}, nil
}

func (l *memoryLock) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	e, ok := l.owner.held[l.key]
	if !ok || e.token != l.token {
		return ErrNotHeld
	}
	delete(l.owner.held, l.key)
	return nil
}
