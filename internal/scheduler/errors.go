package scheduler

import "errors"

// Construction errors.
var (
	ErrNoShards   = errors.New("scheduler: at least one shard is required")
	ErrNoIngestor = errors.New("scheduler: ingestor is required")
)
