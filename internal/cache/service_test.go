package cache

import (
	"context"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := testLogger()
	manager := NewManager(NewMemory(), logger, nil)
	templates := NewTemplateCache(manager, logger, time.Hour)
	responses := NewResponseCache(manager, logger, time.Hour, 0)
	svc := NewService(logger, manager, nil, templates, responses)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func TestNewBackendKinds(t *testing.T) {
	ctx := context.Background()

	memory, err := NewBackend(BackendOptions{Kind: "memory"})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if stats, _ := memory.Stats(ctx); stats.Kind != "memory" {
		t.Fatalf("unexpected backend %#v", stats)
	}

	defaulted, err := NewBackend(BackendOptions{})
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if stats, _ := defaulted.Stats(ctx); stats.Kind != "memory" {
		t.Fatalf("expected empty kind to default to memory, got %#v", stats)
	}

	file, err := NewBackend(BackendOptions{Kind: "file", FileDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	if stats, _ := file.Stats(ctx); stats.Kind != "file" {
		t.Fatalf("unexpected backend %#v", stats)
	}

	if _, err := NewBackend(BackendOptions{Kind: "sqlite"}); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}
}

func TestServiceStatsIncludesComponents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	calls := 0
	_, _ = svc.Templates().Fragment(ctx, "nav", nil, countingRender(&calls, "nav"), 0)

	stats := svc.Stats(ctx)
	if stats.Manager.Sets != 1 {
		t.Fatalf("expected one set recorded, got %#v", stats.Manager)
	}
	if stats.Health.Status != "healthy" {
		t.Fatalf("unexpected health %#v", stats.Health)
	}
	if _, ok := stats.Components["template"]; !ok {
		t.Fatalf("expected template component stats")
	}
	if _, ok := stats.Components["response"]; !ok {
		t.Fatalf("expected response component stats")
	}
	if _, ok := stats.Components["config"]; ok {
		t.Fatalf("expected no config component without a config layer")
	}
}

func TestServiceClearScopes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	calls := 0
	_, _ = svc.Templates().Fragment(ctx, "nav", nil, countingRender(&calls, "nav"), 0)
	_, _, _ = svc.Responses().CacheResponse(ctx, "/home", "", staticRender("body", nil), 0, true)

	if n, err := svc.Clear(ctx, "template"); err != nil || n != 1 {
		t.Fatalf("template clear: n=%d err=%v", n, err)
	}
	if n, err := svc.Clear(ctx, "response"); err != nil || n != 1 {
		t.Fatalf("response clear: n=%d err=%v", n, err)
	}
	if _, err := svc.Clear(ctx, "config"); err == nil {
		t.Fatalf("expected error clearing absent config layer")
	}
	if n, err := svc.Clear(ctx, "all"); err != nil || n != -1 {
		t.Fatalf("all clear: n=%d err=%v", n, err)
	}
	if _, err := svc.Clear(ctx, "bogus"); err == nil {
		t.Fatalf("expected error for unknown scope")
	}
}
