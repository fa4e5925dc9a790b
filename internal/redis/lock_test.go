package redisclient

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func openTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := strings.TrimSpace(os.Getenv("RESERVATION_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("RESERVATION_TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), addr, "", "")
	if err != nil {
		t.Fatalf("NewRedisClient error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSlotLockKey(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000042")
	if got, want := SlotLockKey(id), "lock:slot:00000000-0000-0000-0000-000000000042"; got != want {
		t.Fatalf("SlotLockKey = %q, want %q", got, want)
	}
}

func TestNopLocker(t *testing.T) {
	boom := errors.New("boom")
	called := false
	err := NopLocker().WithSlotLock(context.Background(), uuid.New(), func(context.Context) error {
		called = true
		return boom
	})
	if !called || !errors.Is(err, boom) {
		t.Fatalf("called = %v err = %v, want fn called and its error returned", called, err)
	}
}

func TestRedisSlotLocker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisSlotLocker(client, time.Second, 100*time.Millisecond)
	called := false
	err := locker.WithSlotLock(context.Background(), uuid.New(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("err = %v, want %v", err, ErrLockNotAcquired)
	}
	if called {
		t.Fatalf("fn ran without the lock")
	}
}

func TestRedisSlotLocker_Contention(t *testing.T) {
	client := openTestRedis(t)
	locker := NewRedisSlotLocker(client, 2*time.Second, 50*time.Millisecond)
	slotID := uuid.New()
	ctx := context.Background()

	var inner atomic.Int32
	err := locker.WithSlotLock(ctx, slotID, func(ctx context.Context) error {
		// A second caller gives up once its wait runs out.
		err := locker.WithSlotLock(ctx, slotID, func(context.Context) error {
			inner.Add(1)
			return nil
		})
		if !errors.Is(err, ErrLockNotAcquired) {
			t.Errorf("nested err = %v, want %v", err, ErrLockNotAcquired)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithSlotLock error: %v", err)
	}
	if inner.Load() != 0 {
		t.Fatalf("nested fn ran while lock was held")
	}

	if n, err := client.Exists(ctx, SlotLockKey(slotID)).Result(); err != nil || n != 0 {
		t.Fatalf("lock key still present after release: n = %d err = %v", n, err)
	}
	if err := locker.WithSlotLock(ctx, slotID, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("WithSlotLock after release error: %v", err)
	}
}

func TestWindowCounter(t *testing.T) {
	client := openTestRedis(t)
	ctx := context.Background()
	counter := NewWindowCounter(client, 2, time.Minute, "rl:test:"+uuid.NewString())

	for i := 0; i < 2; i++ {
		ok, err := counter.Allow(ctx, "10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("request %d: ok = %v err = %v", i, ok, err)
		}
	}
	if ok, err := counter.Allow(ctx, "10.0.0.1"); err != nil || ok {
		t.Fatalf("third request: ok = %v err = %v, want rejected", ok, err)
	}
	if ok, err := counter.Allow(ctx, "10.0.0.2"); err != nil || !ok {
		t.Fatalf("other key: ok = %v err = %v, want allowed", ok, err)
	}
}
