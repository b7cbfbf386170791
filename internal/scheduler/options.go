package scheduler

import (
	"time"

	"github.com/nijika-dev/trackstar/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithPollInterval sets the fast ingestion cadence.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithEventCheckInterval sets the slow event-switch cadence.
func WithEventCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.eventCheckInterval = d
		}
	}
}

// WithBackfillHint sets the sampling hint for the first cycle after an
// event switch.
func WithBackfillHint(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.backfillHint = d
		}
	}
}

// WithSteadyHint sets the sampling hint for steady-state cycles.
func WithSteadyHint(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.steadyHint = d
		}
	}
}

// WithNotifier sets the post-ingest change notifier.
func WithNotifier(n CycleNotifier) Option {
	return func(s *Scheduler) {
		s.notifier = n
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}
