package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchSourceNotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: one"), 0o600))

	changed := make(chan struct{}, 1)
	watcher, err := WatchSource(context.Background(), path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	// Give the watcher a moment to arm before mutating the file.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("title: two"), 0o600))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected change notification")
	}
}

func TestWatchSourceIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: one"), 0o600))

	changed := make(chan struct{}, 1)
	watcher, err := WatchSource(context.Background(), path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))

	select {
	case <-changed:
		t.Fatalf("sibling file change must not notify")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatchSourceRequiresCallbackAndPath(t *testing.T) {
	_, err := WatchSource(context.Background(), "x", nil, nil)
	require.Error(t, err)

	_, err = WatchSource(context.Background(), "", func() {}, nil)
	require.Error(t, err)
}

func TestWatchSourceStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: one"), 0o600))

	watcher, err := WatchSource(context.Background(), path, func() {}, nil)
	require.NoError(t, err)

	watcher.Stop()
	watcher.Stop()
}
