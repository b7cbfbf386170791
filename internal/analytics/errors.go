package analytics

import "errors"

// ErrQuery wraps read-side failures that are not lookup misses. Unknown
// players and events surface as store.ErrNotFound.
var ErrQuery = errors.New("analytics query failed")
