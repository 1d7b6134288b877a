package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/offpress/pagecache/internal/cache"
	"github.com/offpress/pagecache/internal/config"
	"github.com/offpress/pagecache/internal/templates"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestBuildBackendMemory(t *testing.T) {
	backend := buildBackend(testLogger(), config.CacheConfig{Backend: "memory"})
	require.NotNil(t, backend)

	stats, err := backend.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, "memory", stats.Kind)
}

func TestBuildBackendFile(t *testing.T) {
	dir := t.TempDir()
	backend := buildBackend(testLogger(), config.CacheConfig{
		Backend: "file",
		File:    config.FileCacheConfig{Directory: dir},
	})
	require.NotNil(t, backend)

	stats, err := backend.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, "file", stats.Kind)
}

func TestBuildBackendFallsBackToMemory(t *testing.T) {
	backend := buildBackend(testLogger(), config.CacheConfig{
		Backend: "redis",
		Redis:   config.RedisCacheConfig{Address: "127.0.0.1:1"},
	})
	require.NotNil(t, backend)

	stats, err := backend.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, "memory", stats.Kind)
}

func TestRegisterPageWarmerPrimesTemplateCache(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("warmed {{ .page }}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.html"), []byte("{{ bad"), 0o600))

	source, err := templates.NewSource(root)
	require.NoError(t, err)

	logger := testLogger()
	manager := cache.NewManager(cache.NewMemory(), logger, nil)
	templateCache := cache.NewTemplateCache(manager, logger, time.Hour)

	registerPageWarmer(templateCache, templates.NewRenderer(source), source)
	result := templateCache.Warm(context.Background())

	require.Equal(t, 1, result.Total)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, templateCache.Info().TrackedKeys)
}
