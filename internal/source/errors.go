package source

import "errors"

// Sentinel kinds for source errors.
var (
	// ErrNoEvent means the shard currently has no event to track.
	ErrNoEvent = errors.New("no recent event")

	// ErrFetch wraps transport-level failures after the retry budget.
	ErrFetch = errors.New("fetch failed")

	// ErrDecode wraps malformed payloads.
	ErrDecode = errors.New("decode failed")
)
