package store

import (
	"time"

	"github.com/nijika-dev/trackstar/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithTopN sets the number of tracked leaderboard positions; ranks beyond it
// are logged as the sentinel value.
func WithTopN(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithInactivityThreshold sets the minimum update gap recorded as an
// activity interval. The comparison is inclusive.
func WithInactivityThreshold(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.inactivity = d
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}
