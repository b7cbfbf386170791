package analytics

import (
	"time"

	"github.com/nijika-dev/trackstar/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithVelocityWindow sets the trailing window for velocity computations.
func WithVelocityWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.velocityWindow = d
		}
	}
}

// WithDeltaCount sets the default number of recent deltas returned.
func WithDeltaCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.deltaCount = n
		}
	}
}

// WithIntervalWindows sets the default window set for interval statistics.
func WithIntervalWindows(ws []time.Duration) Option {
	return func(s *Service) {
		if len(ws) > 0 {
			s.intervalWindows = ws
		}
	}
}

// WithTopN sets the number of tracked leaderboard positions.
func WithTopN(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithInactivityThreshold sets the idle duration that opens a trailing
// interval in the detail view.
func WithInactivityThreshold(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.inactivity = d
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}
