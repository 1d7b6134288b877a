package cache

import (
	"context"
	"time"
)

// Entry is the unit of storage shared by every backend. Value carries the
// serialized payload; the cache layers above decide what the bytes mean.
// A zero ExpiresAt means the entry never expires.
type Entry struct {
	Value     []byte    `json:"value"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// BackendStats carries backend-specific counters for the stats surface.
// Fields that do not apply to a backend stay zero.
type BackendStats struct {
	Kind        string `json:"kind"`
	Keys        int64  `json:"keys"`
	ExpiredKeys int64  `json:"expiredKeys,omitempty"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
	Directory   string `json:"directory,omitempty"`
}

// Backend is the uniform storage contract behind the cache manager. Expiry is
// carried in the entry itself so every implementation applies the same lazy
// expiry rule: a Get must never return an expired entry.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (BackendStats, error)
	Close(ctx context.Context) error
}

func cloneEntry(in Entry) Entry {
	out := Entry{CreatedAt: in.CreatedAt, ExpiresAt: in.ExpiresAt}
	if len(in.Value) > 0 {
		out.Value = make([]byte, len(in.Value))
		copy(out.Value, in.Value)
	}
	if len(in.Tags) > 0 {
		out.Tags = make([]string, len(in.Tags))
		copy(out.Tags, in.Tags)
	}
	return out
}
