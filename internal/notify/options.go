package notify

import (
	"time"

	"github.com/nijika-dev/trackstar/pkg/logger"
)

// Option applies a configuration option to the Notifier.
type Option func(*Notifier)

// WithSpikeThreshold sets the single-delta value above which a reading
// counts as an anomaly spike.
func WithSpikeThreshold(v int64) Option {
	return func(n *Notifier) {
		if v > 0 {
			n.spikeThreshold = v
		}
	}
}

// WithTopN sets how many leaderboard positions the spike scan covers.
func WithTopN(v int) Option {
	return func(n *Notifier) {
		if v > 0 {
			n.topN = v
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.log = l
		}
	}
}
