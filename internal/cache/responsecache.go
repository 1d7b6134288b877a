package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ResponseRenderFunc produces a response body and optional headers. A
// renderer-supplied Cache-Control header is honored: no-store style
// directives suppress caching and max-age caps the TTL.
type ResponseRenderFunc func(ctx context.Context) (body string, headers map[string]string, err error)

// CachedResponse is the stored record for one URL variant. The ETag is a
// content hash of Body, so identical bodies always carry identical ETags.
type CachedResponse struct {
	Body         string            `json:"body"`
	Headers      map[string]string `json:"headers,omitempty"`
	ETag         string            `json:"etag"`
	LastModified time.Time         `json:"lastModified"`
}

// ConditionalResult classifies the outcome of a conditional request lookup.
type ConditionalResult int

const (
	// ConditionalNoRecord means nothing is cached; the caller renders normally.
	ConditionalNoRecord ConditionalResult = iota
	// ConditionalNotModified means the client's validators still match; the
	// caller answers 304 without a body.
	ConditionalNotModified
	// ConditionalModified means the cached body should be delivered in full.
	ConditionalModified
)

// ResponseCacheInfo is the stats snapshot for the response layer.
type ResponseCacheInfo struct {
	TrackedKeys       int   `json:"trackedKeys"`
	DefaultTTLSeconds int64 `json:"defaultTtlSeconds"`
	MaxAgeSeconds     int   `json:"maxAgeSeconds"`
}

// ResponseInfo describes one cached response without exposing its body.
type ResponseInfo struct {
	URL           string    `json:"url"`
	ETag          string    `json:"etag"`
	LastModified  time.Time `json:"lastModified"`
	ContentLength int       `json:"contentLength"`
}

// ResponseCache caches fully rendered response bodies keyed by URL plus an
// optional variant discriminator and answers conditional requests from the
// stored validators. Keys are tracked in-process so the layer can be cleared
// without a backend scan.
type ResponseCache struct {
	manager    *Manager
	logger     *slog.Logger
	defaultTTL time.Duration
	maxAge     int

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewResponseCache builds the response layer. maxAge feeds the Cache-Control
// header sent to clients and defaults to the TTL when zero.
func NewResponseCache(manager *Manager, logger *slog.Logger, defaultTTL time.Duration, maxAge int) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAge <= 0 {
		maxAge = int(defaultTTL.Seconds())
	}
	return &ResponseCache{
		manager:    manager,
		logger:     logger.With(slog.String("component", "response_cache")),
		defaultTTL: defaultTTL,
		maxAge:     maxAge,
		keys:       make(map[string]struct{}),
	}
}

// ETagFor derives the content hash used as ETag. Equal bodies yield equal
// tags; distinct bodies collide only with cryptographic improbability.
func ETagFor(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])[:16]
}

// CacheResponse returns the cached record for url, rendering and storing it
// on a miss. The bool reports whether the record came from cache.
func (r *ResponseCache) CacheResponse(ctx context.Context, url, variant string, render ResponseRenderFunc, ttl time.Duration, public bool) (CachedResponse, bool, error) {
	key := ResponseKey(url, variant)

	if cached, found, err := r.manager.Get(ctx, key); err != nil {
		return CachedResponse{}, false, err
	} else if found {
		var record CachedResponse
		if err := json.Unmarshal(cached, &record); err == nil {
			return record, true, nil
		}
		_ = r.manager.Delete(ctx, key)
	}

	body, headers, err := render(ctx)
	if err != nil {
		return CachedResponse{}, false, err
	}

	record := CachedResponse{
		Body:         body,
		ETag:         ETagFor(body),
		LastModified: time.Now().UTC().Truncate(time.Second),
	}
	record.Headers = r.responseHeaders(headers, record, public)

	if ttl == 0 {
		ttl = r.defaultTTL
	}
	ttl, storable := parseCacheControl(headerValue(headers, "Cache-Control")).capTTL(ttl)
	if !storable {
		return record, false, nil
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return CachedResponse{}, false, fmt.Errorf("cache: encode response: %w", err)
	}
	if err := r.manager.Set(ctx, key, payload, ttl); err != nil {
		return CachedResponse{}, false, err
	}
	r.track(key)
	return record, false, nil
}

// HandleConditional resolves a conditional request for url against the
// cached record. If-None-Match wins over If-Modified-Since, mirroring HTTP
// validator precedence.
func (r *ResponseCache) HandleConditional(ctx context.Context, url, variant, ifNoneMatch, ifModifiedSince string) (ConditionalResult, CachedResponse) {
	key := ResponseKey(url, variant)
	cached, found, _ := r.manager.Get(ctx, key)
	if !found {
		return ConditionalNoRecord, CachedResponse{}
	}
	var record CachedResponse
	if err := json.Unmarshal(cached, &record); err != nil {
		_ = r.manager.Delete(ctx, key)
		return ConditionalNoRecord, CachedResponse{}
	}

	if etag := normalizeETag(ifNoneMatch); etag != "" && etag == record.ETag {
		return ConditionalNotModified, record
	}
	if ifModifiedSince != "" {
		if since, err := http.ParseTime(ifModifiedSince); err == nil && !since.Before(record.LastModified) {
			return ConditionalNotModified, record
		}
	}
	return ConditionalModified, record
}

// Invalidate drops the cached record for url. Returns whether a record was
// tracked for that key.
func (r *ResponseCache) Invalidate(ctx context.Context, url, variant string) bool {
	key := ResponseKey(url, variant)
	_ = r.manager.Delete(ctx, key)

	r.mu.Lock()
	_, tracked := r.keys[key]
	delete(r.keys, key)
	r.mu.Unlock()
	if tracked {
		r.logger.Info("invalidated response", slog.String("url", url))
	}
	return tracked
}

// Clear drops every response this process has cached.
func (r *ResponseCache) Clear(ctx context.Context) int {
	r.mu.Lock()
	keys := make([]string, 0, len(r.keys))
	for key := range r.keys {
		keys = append(keys, key)
	}
	r.keys = make(map[string]struct{})
	r.mu.Unlock()

	for _, key := range keys {
		_ = r.manager.Delete(ctx, key)
	}
	return len(keys)
}

// Info describes the cached record for url without returning the body.
func (r *ResponseCache) Info(ctx context.Context, url, variant string) (ResponseInfo, bool) {
	cached, found, _ := r.manager.Get(ctx, ResponseKey(url, variant))
	if !found {
		return ResponseInfo{}, false
	}
	var record CachedResponse
	if err := json.Unmarshal(cached, &record); err != nil {
		return ResponseInfo{}, false
	}
	return ResponseInfo{
		URL:           url,
		ETag:          record.ETag,
		LastModified:  record.LastModified,
		ContentLength: len(record.Body),
	}, true
}

// LayerInfo reports the layer's configuration for the stats surface.
func (r *ResponseCache) LayerInfo() ResponseCacheInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ResponseCacheInfo{
		TrackedKeys:       len(r.keys),
		DefaultTTLSeconds: int64(r.defaultTTL.Seconds()),
		MaxAgeSeconds:     r.maxAge,
	}
}

// CacheControl builds the Cache-Control header the layer attaches to
// delivered responses.
func (r *ResponseCache) CacheControl(public bool) string {
	scope := "private"
	if public {
		scope = "public"
	}
	return fmt.Sprintf("%s, max-age=%d, must-revalidate", scope, r.maxAge)
}

func (r *ResponseCache) responseHeaders(rendered map[string]string, record CachedResponse, public bool) map[string]string {
	headers := make(map[string]string, len(rendered)+4)
	for name, value := range rendered {
		headers[name] = value
	}
	if headerValue(headers, "Content-Type") == "" {
		headers["Content-Type"] = "text/html; charset=utf-8"
	}
	if headerValue(headers, "Cache-Control") == "" {
		headers["Cache-Control"] = r.CacheControl(public)
	}
	headers["ETag"] = `"` + record.ETag + `"`
	headers["Last-Modified"] = record.LastModified.Format(http.TimeFormat)
	return headers
}

func (r *ResponseCache) track(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key] = struct{}{}
}

// normalizeETag strips weak-validator prefixes and quotes so client-supplied
// If-None-Match values compare against the stored hash.
func normalizeETag(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "W/")
	return strings.Trim(value, `"`)
}

func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}
