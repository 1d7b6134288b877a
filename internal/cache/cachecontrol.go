package cache

import (
	"strconv"
	"strings"
	"time"
)

// cacheDirectives is the subset of Cache-Control the response cache honors
// when a renderer supplies its own header: don't-store directives win, then
// s-maxage, then max-age.
type cacheDirectives struct {
	noStore bool
	hasAge  bool
	maxAge  time.Duration
}

func parseCacheControl(header string) cacheDirectives {
	var d cacheDirectives
	if header == "" {
		return d
	}
	var sharedAge *time.Duration
	for part := range strings.SplitSeq(header, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		switch {
		case part == "no-cache" || part == "no-store" || part == "private":
			d.noStore = true
		case strings.HasPrefix(part, "max-age="):
			if seconds, err := strconv.Atoi(part[len("max-age="):]); err == nil && seconds >= 0 {
				d.hasAge = true
				d.maxAge = time.Duration(seconds) * time.Second
			}
		case strings.HasPrefix(part, "s-maxage="):
			if seconds, err := strconv.Atoi(part[len("s-maxage="):]); err == nil && seconds >= 0 {
				age := time.Duration(seconds) * time.Second
				sharedAge = &age
			}
		}
	}
	// s-maxage addresses shared caches directly and outranks max-age.
	if sharedAge != nil {
		d.hasAge = true
		d.maxAge = *sharedAge
	}
	return d
}

// capTTL applies the directives to the configured ttl. The second return is
// false when the response must not be stored at all.
func (d cacheDirectives) capTTL(ttl time.Duration) (time.Duration, bool) {
	if d.noStore {
		return 0, false
	}
	if !d.hasAge {
		return ttl, true
	}
	if d.maxAge == 0 {
		return 0, false
	}
	if ttl <= 0 || d.maxAge < ttl {
		return d.maxAge, true
	}
	return ttl, true
}
