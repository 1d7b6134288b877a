package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBackendSetGet(t *testing.T) {
	backend := NewMemory()
	ctx := context.Background()

	entry := Entry{Value: []byte("rendered"), Tags: []string{"page:home"}, CreatedAt: time.Now().UTC()}
	if err := backend.Set(ctx, "template:page:/home:abc", entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := backend.Get(ctx, "template:page:/home:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if string(got.Value) != "rendered" || len(got.Tags) != 1 || got.Tags[0] != "page:home" {
		t.Fatalf("unexpected entry: %#v", got)
	}

	stats, err := backend.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Kind != "memory" || stats.Keys != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	if err := backend.Delete(ctx, "template:page:/home:abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := backend.Get(ctx, "template:page:/home:abc"); ok {
		t.Fatalf("expected delete to remove key")
	}

	if err := backend.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMemoryBackendLazyExpiry(t *testing.T) {
	backend := NewMemory()
	ctx := context.Background()

	now := time.Now()
	entry := Entry{Value: []byte("v"), CreatedAt: now.UTC(), ExpiresAt: now.Add(10 * time.Millisecond)}
	if err := backend.Set(ctx, "key", entry); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, ok, err := backend.Get(ctx, "key"); err != nil {
		t.Fatalf("get: %v", err)
	} else if ok {
		t.Fatalf("expected entry to expire")
	}

	stats, err := backend.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Keys != 0 {
		t.Fatalf("expected expired entry to be dropped on read, got %d keys", stats.Keys)
	}
}

func TestMemoryBackendClear(t *testing.T) {
	backend := NewMemory()
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := backend.Set(ctx, key, Entry{Value: []byte(key)}); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := backend.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stats, _ := backend.Stats(ctx)
	if stats.Keys != 0 {
		t.Fatalf("expected empty backend after clear, got %d keys", stats.Keys)
	}
}

func TestMemoryBackendCopiesValues(t *testing.T) {
	backend := NewMemory()
	ctx := context.Background()

	value := []byte("original")
	if err := backend.Set(ctx, "key", Entry{Value: value}); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'X'

	got, ok, _ := backend.Get(ctx, "key")
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(got.Value) != "original" {
		t.Fatalf("stored value aliased caller slice: %q", got.Value)
	}
}
