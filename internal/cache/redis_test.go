package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newRedisBackend(t *testing.T) (*miniredis.Miniredis, Backend) {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	backend, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close(context.Background()) })
	return server, backend
}

func TestRedisBackendRequiresAddress(t *testing.T) {
	if _, err := NewRedis(RedisConfig{}); err == nil {
		t.Fatalf("expected error for missing address")
	}
}

func TestRedisBackendSetGet(t *testing.T) {
	_, backend := newRedisBackend(t)
	ctx := context.Background()

	entry := Entry{
		Value:     []byte("payload"),
		Tags:      []string{"page:/blog"},
		CreatedAt: time.Now().UTC(),
	}
	if err := backend.Set(ctx, "response:/blog", entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := backend.Get(ctx, "response:/blog")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected redis hit")
	}
	if string(got.Value) != "payload" || got.Tags[0] != "page:/blog" {
		t.Fatalf("unexpected entry: %#v", got)
	}

	stats, err := backend.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Kind != "redis" || stats.Keys != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestRedisBackendTTLExpiry(t *testing.T) {
	server, backend := newRedisBackend(t)
	ctx := context.Background()

	now := time.Now()
	entry := Entry{Value: []byte("v"), CreatedAt: now.UTC(), ExpiresAt: now.Add(500 * time.Millisecond)}
	if err := backend.Set(ctx, "key", entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	server.FastForward(time.Second)
	if _, ok, err := backend.Get(ctx, "key"); err != nil {
		t.Fatalf("get after ttl: %v", err)
	} else if ok {
		t.Fatalf("expected entry to expire")
	}

	stats, err := backend.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Keys != 0 {
		t.Fatalf("expected expired entry gone, got %d keys", stats.Keys)
	}
}

func TestRedisBackendAlreadyExpiredSetIsNoop(t *testing.T) {
	server, backend := newRedisBackend(t)
	ctx := context.Background()

	entry := Entry{Value: []byte("v"), ExpiresAt: time.Now().Add(-time.Second)}
	if err := backend.Set(ctx, "key", entry); err != nil {
		t.Fatalf("set: %v", err)
	}
	if server.Exists("key") {
		t.Fatalf("expected already-expired entry to not be stored")
	}
}

func TestRedisBackendCorruptPayloadPurged(t *testing.T) {
	server, backend := newRedisBackend(t)
	ctx := context.Background()

	if err := server.Set("key", "not json"); err != nil {
		t.Fatalf("seed corrupt payload: %v", err)
	}
	if _, _, err := backend.Get(ctx, "key"); err == nil {
		t.Fatalf("expected decode error for corrupt payload")
	}
	if server.Exists("key") {
		t.Fatalf("expected corrupt payload to be purged")
	}
}

func TestRedisBackendClear(t *testing.T) {
	_, backend := newRedisBackend(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		if err := backend.Set(ctx, key, Entry{Value: []byte(key)}); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := backend.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stats, _ := backend.Stats(ctx)
	if stats.Keys != 0 {
		t.Fatalf("expected empty db after clear, got %d keys", stats.Keys)
	}
}
