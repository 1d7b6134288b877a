package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LoadFunc parses the configuration source and returns the structure to
// cache. Errors propagate to the Load caller untouched; the cache never
// masks a failing loader.
type LoadFunc func(ctx context.Context) (map[string]any, error)

// ConfigCache caches a parsed configuration structure keyed by its source
// path and invalidates automatically when the source file's modification
// time advances. Edits through channels that do not touch mtime require an
// explicit Invalidate.
type ConfigCache struct {
	manager *Manager
	logger  *slog.Logger
	path    string
	key     string
	ttl     time.Duration
	load    LoadFunc

	mu    sync.Mutex
	mtime time.Time
}

// ConfigCacheInfo is the stats snapshot for the config layer.
type ConfigCacheInfo struct {
	SourcePath  string    `json:"sourcePath"`
	TTLSeconds  int64     `json:"ttlSeconds"`
	FileExists  bool      `json:"fileExists"`
	SourceMtime time.Time `json:"sourceMtime,omitzero"`
}

// NewConfigCache builds a config cache over the given source path. A ttl of
// zero means entries only fall out on mtime changes or explicit invalidation.
func NewConfigCache(manager *Manager, logger *slog.Logger, sourcePath string, ttl time.Duration, load LoadFunc) *ConfigCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigCache{
		manager: manager,
		logger:  logger.With(slog.String("component", "config_cache"), slog.String("source", sourcePath)),
		path:    sourcePath,
		key:     ConfigKey(sourcePath),
		ttl:     ttl,
		load:    load,
	}
}

// Load returns the parsed configuration, re-reading the source only when the
// cache is cold or the file's mtime moved forward since the last fill.
func (c *ConfigCache) Load(ctx context.Context) (map[string]any, error) {
	if c.load == nil {
		return nil, ErrNoLoader
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if mtime, ok := c.sourceMtime(); ok && mtime.After(c.mtime) {
		if !c.mtime.IsZero() {
			c.logger.Info("config source modified, invalidating cache")
		}
		_ = c.manager.Delete(ctx, c.key)
		c.mtime = mtime
	}

	if cached, found, _ := c.manager.Get(ctx, c.key); found {
		var value map[string]any
		if err := json.Unmarshal(cached, &value); err == nil {
			return value, nil
		}
		// Undecodable cached payload: drop it and fall through to a reload.
		_ = c.manager.Delete(ctx, c.key)
	}

	value, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(value); err == nil {
		_ = c.manager.Set(ctx, c.key, payload, c.ttl)
	}
	return value, nil
}

// Invalidate drops the cached structure, for callers that changed the source
// through a channel that does not advance mtime.
func (c *ConfigCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.manager.Delete(ctx, c.key)
	if mtime, ok := c.sourceMtime(); ok {
		c.mtime = mtime
	}
	c.logger.Info("config cache invalidated")
}

// Info reports the layer's configuration for the stats surface.
func (c *ConfigCache) Info() ConfigCacheInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := os.Stat(c.path)
	return ConfigCacheInfo{
		SourcePath:  c.path,
		TTLSeconds:  int64(c.ttl.Seconds()),
		FileExists:  err == nil,
		SourceMtime: c.mtime,
	}
}

func (c *ConfigCache) sourceMtime() (time.Time, bool) {
	info, err := os.Stat(c.path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
