package store

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrOpen wraps failures to open or migrate the database.
	ErrOpen = errors.New("store open failed")

	// ErrNotFound marks a lookup for an unknown event or player, distinct
	// from I/O failures.
	ErrNotFound = errors.New("not found")

	// ErrIngest wraps failures inside the ingest transaction.
	ErrIngest = errors.New("ingest failed")
)
