package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
)

// Key construction conventions shared by the specialized caches. Fragments
// and pages live in the same keyspace and differ only by prefix, which is
// what lets the template cache invalidate either shape with one index.

// FragmentKey builds the cache key for a rendered template fragment.
func FragmentKey(templateID, contextHash string) string {
	return "template:fragment:" + templateID + ":" + contextHash
}

// PageKey builds the cache key for a fully rendered page.
func PageKey(url, contextHash string) string {
	return "template:page:" + url + ":" + contextHash
}

// ResponseKey builds the cache key for an HTTP response body. The variant
// discriminates renderings of the same URL, typically the query string.
func ResponseKey(url, variant string) string {
	if variant == "" {
		return "response:" + url
	}
	return "response:" + url + "?" + variant
}

// ConfigKey builds the cache key for a parsed configuration source.
func ConfigKey(sourcePath string) string {
	return "config:" + sourcePath
}

// ContextHash computes a deterministic, order-independent hash over a render
// context. Keys are sorted and values JSON-encoded so nested maps and slices
// hash stably regardless of insertion order.
func ContextHash(context map[string]any) string {
	h := fnv.New64a()

	keys := make([]string, 0, len(context))
	for key := range context {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		_, _ = h.Write([]byte(key))
		_, _ = h.Write([]byte{'='})
		encoded, err := json.Marshal(context[key])
		if err == nil {
			_, _ = h.Write(encoded)
		}
		_, _ = h.Write([]byte{'|'})
	}

	return fmt.Sprintf("%016x", h.Sum64())
}
