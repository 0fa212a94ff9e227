package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestClientLifecycle(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}
	ctx := context.Background()

	if err := client.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := client.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "v" {
		t.Fatalf("unexpected value %s", got)
	}

	if err := client.Del(ctx, "k"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "k"); !IsNil(err) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}

func TestClientSetNX(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "lock", "holder-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first setnx should win, got ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "lock", "holder-b", time.Minute)
	if err != nil {
		t.Fatalf("second setnx errored: %v", err)
	}
	if ok {
		t.Fatal("second setnx should lose")
	}
	if mock.data["lock"] != "holder-a" {
		t.Fatalf("lock value clobbered: %s", mock.data["lock"])
	}
}

func TestClientUninitialized(t *testing.T) {
	client := &Client{}
	ctx := context.Background()

	if err := client.Set(ctx, "k", "v", 0); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.Get(ctx, "k"); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Ping(ctx); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}

	if got := client.CacheKey("availability", "prod-1"); got != "stockroom:cache:availability:prod-1" {
		t.Fatalf("unexpected cache key %s", got)
	}
	if got := client.CacheKey("availability", ""); got != "stockroom:cache:availability" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := client.LockKey("sweeper"); got != "stockroom:lock:sweeper" {
		t.Fatalf("unexpected lock key %s", got)
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
