package cache

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// degradedErrorRatePercent is the error-rate threshold that flips the health
// status from healthy to degraded.
const degradedErrorRatePercent = 5.0

// Observer receives per-operation telemetry from the manager. The metrics
// recorder satisfies it; a nil observer disables instrumentation.
type Observer interface {
	ObserveCacheOperation(operation, result string, elapsed time.Duration)
}

// Stats is the manager-level counter snapshot exposed to admin tooling.
type Stats struct {
	Hits          uint64       `json:"hits"`
	Misses        uint64       `json:"misses"`
	Sets          uint64       `json:"sets"`
	Deletes       uint64       `json:"deletes"`
	Clears        uint64       `json:"clears"`
	Errors        uint64       `json:"errors"`
	HitRate       float64      `json:"hitRate"`
	UptimeSeconds int64        `json:"uptimeSeconds"`
	CreatedAt     time.Time    `json:"createdAt"`
	Backend       BackendStats `json:"backend"`
}

// Health summarizes whether the backend is behaving, derived from the error
// rate across all operations.
type Health struct {
	Status          string   `json:"status"`
	ErrorRate       float64  `json:"errorRate"`
	TotalOperations uint64   `json:"totalOperations"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Manager owns exactly one backend and is the only component the specialized
// caches talk to. Backend failures on Get/Set/Delete are absorbed: counted,
// logged at warning level, and degraded to a miss or no-op so cache
// unavailability slows callers down but never breaks them. Clear propagates
// its error because administrative tooling needs to see full-clear failures.
type Manager struct {
	backend  Backend
	logger   *slog.Logger
	observer Observer

	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
	clears  atomic.Uint64
	errors  atomic.Uint64

	createdAt atomic.Int64
}

// NewManager wraps the backend with statistics and the error-swallowing
// contract. The observer may be nil.
func NewManager(backend Backend, logger *slog.Logger, observer Observer) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		backend:  backend,
		logger:   logger.With(slog.String("component", "cache_manager")),
		observer: observer,
	}
	m.createdAt.Store(time.Now().UnixNano())
	return m
}

// Get returns the stored value for key. Backend failures are reported as
// misses. The error return is reserved for caller mistakes (ErrInvalidKey).
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrInvalidKey
	}
	start := time.Now()
	entry, found, err := m.backend.Get(ctx, key)
	if err != nil {
		m.errors.Add(1)
		m.misses.Add(1)
		m.logger.Warn("backend get failed, treating as miss", slog.String("key", key), slog.Any("error", err))
		m.observe("get", "error", start)
		return nil, false, nil
	}
	if !found {
		m.misses.Add(1)
		m.observe("get", "miss", start)
		return nil, false, nil
	}
	m.hits.Add(1)
	m.observe("get", "hit", start)
	return entry.Value, true, nil
}

// Set stores value under key. A ttl of zero or less means no expiry. Tags are
// persisted with the entry so backends can surface them; the reverse index
// for tag invalidation lives with the template cache.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	if key == "" {
		return ErrInvalidKey
	}
	now := time.Now()
	entry := Entry{Value: value, Tags: tags, CreatedAt: now.UTC()}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	start := time.Now()
	if err := m.backend.Set(ctx, key, entry); err != nil {
		m.errors.Add(1)
		m.logger.Warn("backend set failed, value not cached", slog.String("key", key), slog.Any("error", err))
		m.observe("set", "error", start)
		return nil
	}
	m.sets.Add(1)
	m.observe("set", "success", start)
	return nil
}

// Delete removes key. Backend failures degrade to a silent no-op.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	start := time.Now()
	if err := m.backend.Delete(ctx, key); err != nil {
		m.errors.Add(1)
		m.logger.Warn("backend delete failed", slog.String("key", key), slog.Any("error", err))
		m.observe("delete", "error", start)
		return nil
	}
	m.deletes.Add(1)
	m.observe("delete", "success", start)
	return nil
}

// Clear drops every entry in the backend. Unlike the other operations the
// error is returned to the caller.
func (m *Manager) Clear(ctx context.Context) error {
	start := time.Now()
	if err := m.backend.Clear(ctx); err != nil {
		m.errors.Add(1)
		m.observe("clear", "error", start)
		return err
	}
	m.clears.Add(1)
	m.observe("clear", "success", start)
	m.logger.Info("cache cleared")
	return nil
}

// GetOrSet returns the cached value for key or computes, stores, and returns
// it. Concurrent misses for the same key each run compute independently;
// there is no single-flight coordination.
func (m *Manager) GetOrSet(ctx context.Context, key string, ttl time.Duration, tags []string, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	value, found, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		return value, nil
	}
	value, err = compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.Set(ctx, key, value, ttl, tags...); err != nil {
		return nil, err
	}
	return value, nil
}

// GetStats snapshots the counters plus backend-specific statistics. Backend
// stat failures are logged and leave the backend section at its kind only.
func (m *Manager) GetStats(ctx context.Context) Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()
	created := time.Unix(0, m.createdAt.Load())

	stats := Stats{
		Hits:          hits,
		Misses:        misses,
		Sets:          m.sets.Load(),
		Deletes:       m.deletes.Load(),
		Clears:        m.clears.Load(),
		Errors:        m.errors.Load(),
		UptimeSeconds: int64(time.Since(created).Seconds()),
		CreatedAt:     created.UTC(),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = roundPercent(float64(hits) / float64(total) * 100)
	}
	backendStats, err := m.backend.Stats(ctx)
	if err != nil {
		m.logger.Warn("backend stats unavailable", slog.Any("error", err))
	}
	stats.Backend = backendStats
	return stats
}

// GetHealth derives a healthy or degraded status from the error rate and
// attaches operator-facing recommendations.
func (m *Manager) GetHealth() Health {
	hits := m.hits.Load()
	misses := m.misses.Load()
	total := hits + misses + m.sets.Load() + m.deletes.Load()

	health := Health{Status: "healthy", TotalOperations: total}
	if total > 0 {
		health.ErrorRate = roundPercent(float64(m.errors.Load()) / float64(total) * 100)
	}
	if health.ErrorRate > degradedErrorRatePercent {
		health.Status = "degraded"
		health.Recommendations = append(health.Recommendations,
			"high error rate: check backend connectivity and storage permissions")
	}
	if requests := hits + misses; requests > 0 {
		if hitRate := float64(hits) / float64(requests) * 100; hitRate < 50 {
			health.Recommendations = append(health.Recommendations,
				"low cache hit rate: consider adjusting TTLs or key strategy")
		}
	}
	return health
}

// ResetStats zeroes every counter and restarts the uptime clock.
func (m *Manager) ResetStats() {
	m.hits.Store(0)
	m.misses.Store(0)
	m.sets.Store(0)
	m.deletes.Store(0)
	m.clears.Store(0)
	m.errors.Store(0)
	m.createdAt.Store(time.Now().UnixNano())
	m.logger.Info("cache statistics reset")
}

// Close releases the backend.
func (m *Manager) Close(ctx context.Context) error {
	return m.backend.Close(ctx)
}

func (m *Manager) observe(operation, result string, start time.Time) {
	if m.observer == nil {
		return
	}
	m.observer.ObserveCacheOperation(operation, result, time.Since(start))
}

func roundPercent(v float64) float64 {
	return math.Round(v*100) / 100
}
