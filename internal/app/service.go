// Package service wires the tracker together: store, source adapters,
// scheduler, analytics, and notifier. It implements the dependencies
// required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nijika-dev/trackstar/internal/analytics"
	"github.com/nijika-dev/trackstar/internal/config"
	"github.com/nijika-dev/trackstar/internal/notify"
	"github.com/nijika-dev/trackstar/internal/scheduler"
	"github.com/nijika-dev/trackstar/internal/source"
	"github.com/nijika-dev/trackstar/internal/store"
	"github.com/nijika-dev/trackstar/pkg/logger"
	"github.com/nijika-dev/trackstar/pkg/metrics"
)

// Service owns the component lifecycle for the tracker.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     *store.Store
	analytics *analytics.Service
	notifier  *notify.Notifier
	sched     *scheduler.Scheduler

	// Configuration
	storePath          string
	shards             map[string]config.ShardConfig
	topN               int
	pollInterval       time.Duration
	eventCheckInterval time.Duration
	inactivity         time.Duration
	velocityWindow     time.Duration
	spikeThreshold     int64
	deltaCount         int
	fetchTimeout       time.Duration
	fetchRetries       int
	backfillHint       time.Duration
	steadyHint         time.Duration
	sink               notify.Sink

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStorePath sets the SQLite database location.
func WithStorePath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.storePath = path
		}
	}
}

// WithShards sets the tracked shard set.
func WithShards(shards map[string]config.ShardConfig) Option {
	return func(s *Service) {
		if len(shards) > 0 {
			s.shards = shards
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

// WithCadences sets the fast poll and slow event-check intervals.
func WithCadences(poll, eventCheck time.Duration) Option {
	return func(s *Service) {
		if poll > 0 {
			s.pollInterval = poll
		}
		if eventCheck > 0 {
			s.eventCheckInterval = eventCheck
		}
	}
}

// WithThresholds sets the inactivity and anomaly-spike thresholds.
func WithThresholds(inactivity time.Duration, spike int64) Option {
	return func(s *Service) {
		if inactivity > 0 {
			s.inactivity = inactivity
		}
		if spike > 0 {
			s.spikeThreshold = spike
		}
	}
}

// WithVelocityWindow sets the trailing velocity window.
func WithVelocityWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.velocityWindow = d
		}
	}
}

// WithDeltaCount sets the recent-delta listing length.
func WithDeltaCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.deltaCount = n
		}
	}
}

// WithFetchBudget sets the per-fetch timeout and retry budget.
func WithFetchBudget(timeout time.Duration, retries int) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.fetchTimeout = timeout
		}
		if retries >= 0 {
			s.fetchRetries = retries
		}
	}
}

// WithSamplingHints sets the backfill and steady sampling hints forwarded to
// the source.
func WithSamplingHints(backfill, steady time.Duration) Option {
	return func(s *Service) {
		if backfill > 0 {
			s.backfillHint = backfill
		}
		if steady > 0 {
			s.steadyHint = steady
		}
	}
}

// WithSink sets the notification sink. Defaults to the logging sink.
func WithSink(sink notify.Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	cfg := config.New(context.Background())
	s := &Service{
		storePath:          cfg.StorePath,
		shards:             cfg.Shards,
		topN:               cfg.TopN,
		pollInterval:       time.Duration(cfg.PollIntervalSeconds) * time.Second,
		eventCheckInterval: time.Duration(cfg.EventCheckIntervalSeconds) * time.Second,
		inactivity:         time.Duration(cfg.InactivityThresholdSeconds) * time.Second,
		velocityWindow:     time.Duration(cfg.VelocityWindowSeconds) * time.Second,
		spikeThreshold:     cfg.SpikeThreshold,
		deltaCount:         cfg.RecentDeltaCount,
		fetchTimeout:       time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		fetchRetries:       cfg.FetchRetries,
		backfillHint:       time.Duration(cfg.BackfillHintMS) * time.Millisecond,
		steadyHint:         time.Duration(cfg.SteadyHintMS) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig builds the option set matching a loaded configuration.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithStorePath(cfg.StorePath),
		WithShards(cfg.Shards),
		WithTopN(cfg.TopN),
		WithCadences(
			time.Duration(cfg.PollIntervalSeconds)*time.Second,
			time.Duration(cfg.EventCheckIntervalSeconds)*time.Second,
		),
		WithThresholds(
			time.Duration(cfg.InactivityThresholdSeconds)*time.Second,
			cfg.SpikeThreshold,
		),
		WithVelocityWindow(time.Duration(cfg.VelocityWindowSeconds) * time.Second),
		WithDeltaCount(cfg.RecentDeltaCount),
		WithFetchBudget(time.Duration(cfg.FetchTimeoutSeconds)*time.Second, cfg.FetchRetries),
		WithSamplingHints(
			time.Duration(cfg.BackfillHintMS)*time.Millisecond,
			time.Duration(cfg.SteadyHintMS)*time.Millisecond,
		),
	}
}

// Start opens the store and launches the per-shard polling loops.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting tracker service...")

	st, err := store.Open(s.storePath,
		store.WithTopN(s.topN),
		store.WithInactivityThreshold(s.inactivity),
		store.WithLogger(s.logger.Named("store")),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = st

	s.analytics, err = analytics.New(st,
		analytics.WithTopN(s.topN),
		analytics.WithVelocityWindow(s.velocityWindow),
		analytics.WithDeltaCount(s.deltaCount),
		analytics.WithInactivityThreshold(s.inactivity),
	)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("analytics: %w", err)
	}

	s.notifier, err = notify.New(st, s.sink,
		notify.WithSpikeThreshold(s.spikeThreshold),
		notify.WithTopN(s.topN),
	)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("notifier: %w", err)
	}

	shards, err := s.buildShards()
	if err != nil {
		_ = st.Close()
		return err
	}
	s.sched, err = scheduler.New(shards, st,
		scheduler.WithPollInterval(s.pollInterval),
		scheduler.WithEventCheckInterval(s.eventCheckInterval),
		scheduler.WithBackfillHint(s.backfillHint),
		scheduler.WithSteadyHint(s.steadyHint),
		scheduler.WithNotifier(s.notifier),
		scheduler.WithLogger(s.logger.Named("scheduler")),
	)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("scheduler: %w", err)
	}
	s.sched.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "tracker service started",
		logger.Int("shards", len(s.shards)),
		logger.Duration("pollInterval", s.pollInterval),
		logger.Duration("eventCheckInterval", s.eventCheckInterval),
	)
	return nil
}

// buildShards constructs one source adapter per configured shard.
func (s *Service) buildShards() ([]scheduler.Shard, error) {
	out := make([]scheduler.Shard, 0, len(s.shards))
	for name, sc := range s.shards {
		cfg := source.Config{
			ServerID:  sc.ServerID,
			BaseURL:   sc.BaseURL,
			UserID:    sc.UserID,
			Signature: sc.Signature,
			Timeout:   s.fetchTimeout,
			Retries:   s.fetchRetries,
		}
		var adapter source.Adapter
		switch sc.Flavor {
		case "client":
			adapter = source.NewClient(cfg)
		default:
			adapter = source.NewMirror(cfg)
		}
		out = append(out, scheduler.Shard{Name: name, Adapter: adapter})
	}
	return out, nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping tracker service...")

	if s.sched != nil {
		s.sched.Stop()
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "tracker service stopped")
}

// TrackedEvent returns the shard's currently tracked event id.
func (s *Service) TrackedEvent(shard string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sched == nil {
		return "", false
	}
	return s.sched.Tracked(shard)
}

// TopN returns the current leaderboard slice with velocities.
func (s *Service) TopN(ctx context.Context, shard, eventID string, n int) ([]analytics.Entry, error) {
	return s.analytics.TopN(ctx, shard, eventID, n)
}

// PlayerDetail returns the detail view for one leaderboard position.
func (s *Service) PlayerDetail(ctx context.Context, shard, eventID string, position int) (analytics.Detail, error) {
	return s.analytics.PlayerDetail(ctx, shard, eventID, position)
}

// DailyBreakdown returns a player's local-day activity buckets.
func (s *Service) DailyBreakdown(ctx context.Context, shard, eventID string, uid int64, tz string) ([]analytics.DayBucket, error) {
	return s.analytics.DailyBreakdown(ctx, shard, eventID, uid, tz)
}

// MonthlyTop returns the shard's current monthly leaderboard.
func (s *Service) MonthlyTop(ctx context.Context, shard string, n int) (analytics.MonthlyView, error) {
	return s.analytics.MonthlyTop(ctx, shard, n)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started": s.started,
		"shards":  len(s.shards),
		"topN":    s.topN,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	events := make(map[string]string, len(s.shards))
	monthlies := make(map[string]string, len(s.shards))
	for name := range s.shards {
		id, ok := s.sched.Tracked(name)
		if !ok {
			continue
		}
		events[name] = id
		if n, err := s.store.PlayerCount(ctx, name, id); err == nil {
			stats["players_"+name] = n
			metrics.UpdateTrackedPlayers(name, n)
		}
		if mid, ok := s.sched.TrackedMonthly(name); ok {
			monthlies[name] = mid
		}
	}
	stats["trackedEvents"] = events
	stats["trackedMonthlies"] = monthlies
	return stats
}
