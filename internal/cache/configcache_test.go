package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSource(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestConfigCacheCachesLoads(t *testing.T) {
	path := writeSource(t, `{"title":"home"}`)
	manager := NewManager(NewMemory(), testLogger(), nil)

	loads := 0
	cc := NewConfigCache(manager, testLogger(), path, time.Hour, func(context.Context) (map[string]any, error) {
		loads++
		return map[string]any{"title": "home"}, nil
	})

	ctx := context.Background()
	for range 3 {
		value, err := cc.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if value["title"] != "home" {
			t.Fatalf("unexpected value %#v", value)
		}
	}
	if loads != 1 {
		t.Fatalf("expected one source load, got %d", loads)
	}
}

func TestConfigCacheReloadsWhenMtimeAdvances(t *testing.T) {
	path := writeSource(t, `{"v":1}`)
	manager := NewManager(NewMemory(), testLogger(), nil)

	loads := 0
	cc := NewConfigCache(manager, testLogger(), path, time.Hour, func(context.Context) (map[string]any, error) {
		loads++
		return map[string]any{"load": loads}, nil
	})

	ctx := context.Background()
	if _, err := cc.Load(ctx); err != nil {
		t.Fatalf("first load: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"v":2}`), 0o600); err != nil {
		t.Fatalf("rewrite source: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("advance mtime: %v", err)
	}

	if _, err := cc.Load(ctx); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected reload after mtime advance, loads=%d", loads)
	}
}

func TestConfigCacheInvalidateForcesReload(t *testing.T) {
	path := writeSource(t, `{}`)
	manager := NewManager(NewMemory(), testLogger(), nil)

	loads := 0
	cc := NewConfigCache(manager, testLogger(), path, time.Hour, func(context.Context) (map[string]any, error) {
		loads++
		return map[string]any{}, nil
	})

	ctx := context.Background()
	_, _ = cc.Load(ctx)
	cc.Invalidate(ctx)
	_, _ = cc.Load(ctx)

	if loads != 2 {
		t.Fatalf("expected reload after invalidate, loads=%d", loads)
	}
}

func TestConfigCacheLoaderErrorPropagates(t *testing.T) {
	path := writeSource(t, `{}`)
	manager := NewManager(NewMemory(), testLogger(), nil)

	wantErr := errors.New("parse failed")
	cc := NewConfigCache(manager, testLogger(), path, time.Hour, func(context.Context) (map[string]any, error) {
		return nil, wantErr
	})

	if _, err := cc.Load(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error to propagate, got %v", err)
	}
}

func TestConfigCacheWithoutLoader(t *testing.T) {
	manager := NewManager(NewMemory(), testLogger(), nil)
	cc := NewConfigCache(manager, testLogger(), "/nope", time.Hour, nil)

	if _, err := cc.Load(context.Background()); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("expected ErrNoLoader, got %v", err)
	}
}

func TestConfigCacheInfo(t *testing.T) {
	path := writeSource(t, `{}`)
	manager := NewManager(NewMemory(), testLogger(), nil)
	cc := NewConfigCache(manager, testLogger(), path, 5*time.Minute, func(context.Context) (map[string]any, error) {
		return map[string]any{}, nil
	})

	_, _ = cc.Load(context.Background())
	info := cc.Info()
	if info.SourcePath != path || !info.FileExists {
		t.Fatalf("unexpected info %#v", info)
	}
	if info.TTLSeconds != 300 {
		t.Fatalf("expected ttl 300, got %d", info.TTLSeconds)
	}
	if info.SourceMtime.IsZero() {
		t.Fatalf("expected source mtime to be tracked after load")
	}
}
