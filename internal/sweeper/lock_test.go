package sweeper

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type fakeLockStore struct {
	values map[string]string
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}}
}

func (f *fakeLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(ctx context.Context, key string) (string, error) {
	value, exists := f.values[key]
	if !exists {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeLockStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockAcquireIsExclusive(t *testing.T) {
	store := newFakeLockStore()
	ctx := context.Background()

	first, err := NewRedisLock(store, "stockroom:lock:sweeper", time.Minute)
	if err != nil {
		t.Fatalf("build lock: %v", err)
	}
	second, err := NewRedisLock(store, "stockroom:lock:sweeper", time.Minute)
	if err != nil {
		t.Fatalf("build lock: %v", err)
	}

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second instance must not acquire a held lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseOnlyWhenOwned(t *testing.T) {
	store := newFakeLockStore()
	ctx := context.Background()

	lock, err := NewRedisLock(store, "stockroom:lock:sweeper", time.Minute)
	if err != nil {
		t.Fatalf("build lock: %v", err)
	}
	if ok, err := lock.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// Simulate TTL expiry plus takeover by another instance.
	store.values["stockroom:lock:sweeper"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["stockroom:lock:sweeper"] != "someone-else" {
		t.Fatal("release must not delete a lock it no longer owns")
	}
}

func TestRedisLockReleaseWithoutAcquireIsNoOp(t *testing.T) {
	store := newFakeLockStore()
	lock, err := NewRedisLock(store, "stockroom:lock:sweeper", time.Minute)
	if err != nil {
		t.Fatalf("build lock: %v", err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "key", time.Minute); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := NewRedisLock(newFakeLockStore(), "", time.Minute); err == nil {
		t.Fatal("expected error without key")
	}
}
