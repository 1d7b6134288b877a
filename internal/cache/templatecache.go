package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RenderFunc produces the markup for a fragment or page from its render
// context. The cache stores the output verbatim and never inspects it.
type RenderFunc func(ctx context.Context, context map[string]any) (string, error)

// WarmResult reports the outcome of a cache warming pass.
type WarmResult struct {
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// TemplateCacheInfo is the stats snapshot for the template layer.
type TemplateCacheInfo struct {
	TrackedKeys       int   `json:"trackedKeys"`
	TrackedTags       int   `json:"trackedTags"`
	Warmers           int   `json:"warmers"`
	DefaultTTLSeconds int64 `json:"defaultTtlSeconds"`
}

// TemplateCache caches rendered fragments and pages keyed by template
// identity plus a context hash, with two in-process reverse indexes: one from
// dependency tag to keys for precise invalidation, one from owner (fragment
// id or page url) to keys so every context variant can be dropped at once.
// The indexes are process-local; with a shared backend each process tracks
// only the entries it cached itself.
type TemplateCache struct {
	manager    *Manager
	logger     *slog.Logger
	defaultTTL time.Duration

	mu         sync.Mutex
	byTag      map[string]map[string]struct{}
	byOwner    map[string]map[string]struct{}
	tagsByKey  map[string][]string
	ownerByKey map[string]string

	warmers map[string]func(context.Context) error
}

// NewTemplateCache builds the template layer with the given default TTL
// (zero means no expiry).
func NewTemplateCache(manager *Manager, logger *slog.Logger, defaultTTL time.Duration) *TemplateCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateCache{
		manager:    manager,
		logger:     logger.With(slog.String("component", "template_cache")),
		defaultTTL: defaultTTL,
		byTag:      make(map[string]map[string]struct{}),
		byOwner:    make(map[string]map[string]struct{}),
		tagsByKey:  make(map[string][]string),
		ownerByKey: make(map[string]string),
		warmers:    make(map[string]func(context.Context) error),
	}
}

// Fragment returns the cached rendering of templateID for the given context,
// invoking render on a miss and tagging the entry with its dependencies.
func (t *TemplateCache) Fragment(ctx context.Context, templateID string, tctx map[string]any, render RenderFunc, ttl time.Duration, dependencies ...string) (string, error) {
	key := FragmentKey(templateID, ContextHash(tctx))
	return t.fill(ctx, key, "fragment:"+templateID, tctx, render, ttl, dependencies)
}

// Page is Fragment for whole pages: same keyspace and index mechanics, keyed
// by URL instead of template identity.
func (t *TemplateCache) Page(ctx context.Context, url string, tctx map[string]any, render RenderFunc, ttl time.Duration, dependencies ...string) (string, error) {
	key := PageKey(url, ContextHash(tctx))
	return t.fill(ctx, key, "page:"+url, tctx, render, ttl, dependencies)
}

func (t *TemplateCache) fill(ctx context.Context, key, owner string, tctx map[string]any, render RenderFunc, ttl time.Duration, dependencies []string) (string, error) {
	if cached, found, err := t.manager.Get(ctx, key); err != nil {
		return "", err
	} else if found {
		return string(cached), nil
	}

	rendered, err := render(ctx, tctx)
	if err != nil {
		return "", err
	}
	if ttl == 0 {
		ttl = t.defaultTTL
	}
	if err := t.manager.Set(ctx, key, []byte(rendered), ttl, dependencies...); err != nil {
		return "", err
	}
	t.register(key, owner, dependencies)
	return rendered, nil
}

// InvalidateFragment removes every cached variant of templateID regardless
// of context hash and returns the number of entries dropped.
func (t *TemplateCache) InvalidateFragment(ctx context.Context, templateID string) int {
	return t.invalidateOwner(ctx, "fragment:"+templateID)
}

// InvalidatePage removes every cached variant of the page at url.
func (t *TemplateCache) InvalidatePage(ctx context.Context, url string) int {
	return t.invalidateOwner(ctx, "page:"+url)
}

// InvalidateByDependency removes exactly the entries tagged with tag and
// clears the tag from the reverse index. An unknown tag is a no-op. Delete
// failures are absorbed by the manager; the index entry is cleared either
// way so stale tag references cannot accumulate.
func (t *TemplateCache) InvalidateByDependency(ctx context.Context, tag string) int {
	t.mu.Lock()
	keys := make([]string, 0, len(t.byTag[tag]))
	for key := range t.byTag[tag] {
		keys = append(keys, key)
	}
	for _, key := range keys {
		t.unregisterLocked(key)
	}
	delete(t.byTag, tag)
	t.mu.Unlock()

	for _, key := range keys {
		_ = t.manager.Delete(ctx, key)
	}
	if len(keys) > 0 {
		t.logger.Info("invalidated entries by dependency",
			slog.String("tag", tag), slog.Int("entries", len(keys)))
	}
	return len(keys)
}

// InvalidateAll drops every entry this cache has tracked, fragments and
// pages alike.
func (t *TemplateCache) InvalidateAll(ctx context.Context) int {
	t.mu.Lock()
	keys := make([]string, 0, len(t.ownerByKey))
	for key := range t.ownerByKey {
		keys = append(keys, key)
	}
	for _, key := range keys {
		t.unregisterLocked(key)
	}
	t.mu.Unlock()

	for _, key := range keys {
		_ = t.manager.Delete(ctx, key)
	}
	return len(keys)
}

// RegisterWarmer records a named render pass for cache warming.
func (t *TemplateCache) RegisterWarmer(name string, warm func(context.Context) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warmers[name] = warm
}

// Warm runs every registered warmer, continuing past failures so one broken
// renderer cannot block the rest of the warm-up.
func (t *TemplateCache) Warm(ctx context.Context) WarmResult {
	t.mu.Lock()
	warmers := make(map[string]func(context.Context) error, len(t.warmers))
	for name, warm := range t.warmers {
		warmers[name] = warm
	}
	t.mu.Unlock()

	result := WarmResult{Total: len(warmers)}
	for name, warm := range warmers {
		if err := warm(ctx); err != nil {
			result.Failed++
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Errors[name] = err.Error()
			t.logger.Warn("cache warming failed", slog.String("warmer", name), slog.Any("error", err))
			continue
		}
		result.Successful++
	}
	t.logger.Info("cache warming complete",
		slog.Int("successful", result.Successful), slog.Int("total", result.Total))
	return result
}

// Info reports index sizes for the stats surface.
func (t *TemplateCache) Info() TemplateCacheInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TemplateCacheInfo{
		TrackedKeys:       len(t.ownerByKey),
		TrackedTags:       len(t.byTag),
		Warmers:           len(t.warmers),
		DefaultTTLSeconds: int64(t.defaultTTL.Seconds()),
	}
}

func (t *TemplateCache) invalidateOwner(ctx context.Context, owner string) int {
	t.mu.Lock()
	keys := make([]string, 0, len(t.byOwner[owner]))
	for key := range t.byOwner[owner] {
		keys = append(keys, key)
	}
	for _, key := range keys {
		t.unregisterLocked(key)
	}
	t.mu.Unlock()

	for _, key := range keys {
		_ = t.manager.Delete(ctx, key)
	}
	return len(keys)
}

// register records the key in both reverse indexes, replacing any previous
// registration so the indexes always reflect the entry's latest tags.
func (t *TemplateCache) register(key, owner string, tags []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.unregisterLocked(key)

	t.ownerByKey[key] = owner
	if t.byOwner[owner] == nil {
		t.byOwner[owner] = make(map[string]struct{})
	}
	t.byOwner[owner][key] = struct{}{}

	if len(tags) > 0 {
		t.tagsByKey[key] = append([]string(nil), tags...)
		for _, tag := range tags {
			if t.byTag[tag] == nil {
				t.byTag[tag] = make(map[string]struct{})
			}
			t.byTag[tag][key] = struct{}{}
		}
	}
}

func (t *TemplateCache) unregisterLocked(key string) {
	for _, tag := range t.tagsByKey[key] {
		if keys, ok := t.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(t.byTag, tag)
			}
		}
	}
	delete(t.tagsByKey, key)

	if owner, ok := t.ownerByKey[key]; ok {
		if keys, ok := t.byOwner[owner]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(t.byOwner, owner)
			}
		}
		delete(t.ownerByKey, key)
	}
}
