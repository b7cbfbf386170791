package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrMissingShard = errors.New("missing shard parameter")
	ErrUnknownShard = errors.New("shard has no tracked event")
)
