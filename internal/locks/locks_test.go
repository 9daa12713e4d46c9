package locks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, "test:"), mr
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	lock, err := l.Acquire(ctx, "app:1:APPROVAL", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "app:1:APPROVAL", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("test:app:1:APPROVAL") {
		t.Fatal("key still present after release")
	}
}

func TestRedisReleaseAfterTakeoverFails(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	lock, err := l.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := l.Acquire(ctx, "k", time.Minute); err != nil {
		t.Fatalf("re-acquire after expiry: %v", err)
	}
	if err := lock.Release(ctx); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if _, err := l.Acquire(context.Background(), "k", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(context.Background(), "k", time.Second); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := l.Acquire(context.Background(), "k", time.Second); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
}

func TestWithLockSerializesCallers(t *testing.T) {
	l := NewMemoryLocker()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), l, "k", time.Minute, 5*time.Second, func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("with lock: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxInside.Load() != 1 {
		t.Fatalf("max concurrent holders = %d", maxInside.Load())
	}
}

func TestWithLockGivesUpAfterWait(t *testing.T) {
	l := NewMemoryLocker()
	if _, err := l.Acquire(context.Background(), "k", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	err := WithLock(context.Background(), l, "k", time.Minute, 30*time.Millisecond, func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
}
