package cache

import (
	"context"
	"sync"
	"time"
)

// memoryBackend keeps entries in a mutex-guarded map. Expiry is lazy: an
// expired entry is dropped the moment a Get observes it. The map grows without
// bound under sustained miss churn; no eviction policy is applied.
type memoryBackend struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemory constructs the in-process backend.
func NewMemory() Backend {
	return &memoryBackend{entries: make(map[string]Entry)}
}

func (m *memoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired(time.Now()) {
		delete(m.entries, key)
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.entries[key] = cloneEntry(entry)
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}

func (m *memoryBackend) Stats(_ context.Context) (BackendStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := BackendStats{Kind: "memory", Keys: int64(len(m.entries))}
	now := time.Now()
	for _, entry := range m.entries {
		stats.SizeBytes += int64(len(entry.Value))
		if entry.Expired(now) {
			stats.ExpiredKeys++
		}
	}
	return stats, nil
}

func (m *memoryBackend) Close(context.Context) error {
	return nil
}
