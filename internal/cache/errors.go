package cache

import "errors"

var (
	// ErrInvalidKey marks a caller programming error: empty or otherwise
	// malformed cache keys are rejected up front instead of being swallowed
	// like backend failures.
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrNoLoader is returned when a config cache is asked to load without a
	// load function attached.
	ErrNoLoader = errors.New("cache: no load function configured")
)
