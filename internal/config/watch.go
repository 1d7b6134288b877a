package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces editor write bursts into one change notification.
const debounceWindow = 200 * time.Millisecond

// SourceWatcher monitors a single content source file and invokes the
// supplied callback whenever it changes, so caches can be invalidated ahead
// of the next mtime check. Stop must be called to release the watcher.
type SourceWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *SourceWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchSource wires fsnotify around the given file. The watch is placed on
// the parent directory because editors commonly replace files via rename,
// which drops a watch held on the file itself.
func WatchSource(ctx context.Context, path string, onChange func(), onError func(error)) (*SourceWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch source requires a change callback")
	}
	if path == "" {
		return nil, fmt.Errorf("config: watch source requires a path")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch source: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("config: watch source: %w", err)
	}

	done := make(chan struct{})
	w := &SourceWatcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch source close: %w", err))
			}
		}()

		var debounce *time.Timer
		var debounceCh <-chan time.Time
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				abs, err := filepath.Abs(event.Name)
				if err != nil || abs != target {
					continue
				}
				if !event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove) {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(debounceWindow)
					debounceCh = debounce.C
				} else {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(debounceWindow)
				}
			case <-debounceCh:
				debounce = nil
				debounceCh = nil
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config: watch source: %w", err))
				}
			}
		}
	}()

	return w, nil
}
