// Package scheduler drives the per-shard polling loops: a slow event-switch
// check and a fast snapshot-ingestion cycle. Shards run fully concurrently
// and share no mutable state beyond the store.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/source"
	"github.com/nijika-dev/trackstar/internal/store"
	"github.com/nijika-dev/trackstar/pkg/logger"
	"github.com/nijika-dev/trackstar/pkg/metrics"
)

// Default cadences and hints; override with options.
const (
	defaultPollInterval       = time.Minute
	defaultEventCheckInterval = time.Hour
	defaultBackfillHint       = time.Minute
	defaultSteadyHint         = 240 * time.Hour
)

// Ingestor is the store surface the scheduler writes through.
type Ingestor interface {
	EnsureEvent(ctx context.Context, shard string, meta model.EventMeta) error
	IngestSnapshot(ctx context.Context, shard, eventID string, snap model.Snapshot, observedAt time.Time) (store.IngestResult, error)
	EnsureMonthly(ctx context.Context, shard string, meta model.MonthlyMeta) error
	RecentMonthly(ctx context.Context, shard string, now time.Time) (model.MonthlyMeta, error)
	IngestMonthlySnapshot(ctx context.Context, shard, monthlyID string, snap model.Snapshot, observedAt time.Time) (store.MonthlyIngestResult, error)
}

// CycleNotifier runs the post-ingest change scan after a successful cycle.
type CycleNotifier interface {
	Cycle(ctx context.Context, shard, eventID string, eventType model.EventType, since, now time.Time) error
}

// tracked is the per-shard current-event pointer. Written only by the slow
// loop, read once per fast cycle.
type tracked struct {
	mu   sync.Mutex
	meta model.EventMeta
	set  bool
}

func (t *tracked) get() (model.EventMeta, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.meta, t.set
}

func (t *tracked) put(meta model.EventMeta) {
	t.mu.Lock()
	t.meta = meta
	t.set = true
	t.mu.Unlock()
}

// trackedMonthly is the per-shard current-monthly pointer, refreshed by the
// slow loop for shards whose adapter serves monthlys.
type trackedMonthly struct {
	mu   sync.Mutex
	meta model.MonthlyMeta
	set  bool
}

func (t *trackedMonthly) get() (model.MonthlyMeta, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.meta, t.set
}

func (t *trackedMonthly) put(meta model.MonthlyMeta) {
	t.mu.Lock()
	t.meta = meta
	t.set = true
	t.mu.Unlock()
}

// shardState is the fast loop's private bookkeeping. Only the fast loop
// touches it, so no locking is needed beyond the tracked pointer.
type shardState struct {
	failures    int
	skipLeft    int
	firstCycle  bool
	lastEvent   string
	lastSuccess time.Time
}

// Shard binds one shard name to its source adapter.
type Shard struct {
	Name    string
	Adapter source.Adapter
}

// Scheduler owns the polling loops for a set of shards.
type Scheduler struct {
	shards   []Shard
	ingestor Ingestor
	notifier CycleNotifier

	pollInterval       time.Duration
	eventCheckInterval time.Duration
	backfillHint       time.Duration
	steadyHint         time.Duration
	now                func() time.Time
	log                logger.Logger

	trackedByShard map[string]*tracked
	monthlyByShard map[string]*trackedMonthly
	wg             sync.WaitGroup
	cancel         context.CancelFunc
	startOnce      sync.Once
	stopOnce       sync.Once
}

// New creates a scheduler for the given shards.
func New(shards []Shard, ing Ingestor, opts ...Option) (*Scheduler, error) {
	if len(shards) == 0 {
		return nil, ErrNoShards
	}
	if ing == nil {
		return nil, ErrNoIngestor
	}
	s := &Scheduler{
		shards:             shards,
		ingestor:           ing,
		pollInterval:       defaultPollInterval,
		eventCheckInterval: defaultEventCheckInterval,
		backfillHint:       defaultBackfillHint,
		steadyHint:         defaultSteadyHint,
		now:                time.Now,
		log:                logger.Named("scheduler"),
		trackedByShard:     make(map[string]*tracked, len(shards)),
		monthlyByShard:     make(map[string]*trackedMonthly, len(shards)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, sh := range s.shards {
		s.trackedByShard[sh.Name] = &tracked{}
		s.monthlyByShard[sh.Name] = &trackedMonthly{}
	}
	return s, nil
}

// Start launches the two loops per shard. Both loops run their first cycle
// immediately so tracking does not wait a full interval after start.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		for _, sh := range s.shards {
			s.wg.Add(2)
			go s.runEventLoop(ctx, sh)
			go s.runPollLoop(ctx, sh)
		}
	})
}

// Stop cancels scheduling and waits for loops to exit. In-flight cycles
// finish or fail atomically.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// Tracked returns the shard's current event id, if any.
func (s *Scheduler) Tracked(shard string) (string, bool) {
	t, ok := s.trackedByShard[shard]
	if !ok {
		return "", false
	}
	meta, set := t.get()
	return meta.ID, set
}

// TrackedMonthly returns the shard's current monthly id, if any.
func (s *Scheduler) TrackedMonthly(shard string) (string, bool) {
	t, ok := s.monthlyByShard[shard]
	if !ok {
		return "", false
	}
	meta, set := t.get()
	return meta.ID, set
}

func (s *Scheduler) runEventLoop(ctx context.Context, sh Shard) {
	defer s.wg.Done()

	s.checkEventSwitch(ctx, sh)
	s.checkMonthlySwitch(ctx, sh)
	ticker := time.NewTicker(s.eventCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkEventSwitch(ctx, sh)
			s.checkMonthlySwitch(ctx, sh)
		}
	}
}

func (s *Scheduler) runPollLoop(ctx context.Context, sh Shard) {
	defer s.wg.Done()

	state := &shardState{}
	// One cycle up front; polling must not wait a full interval after start.
	s.pollCycle(ctx, sh, state)
	s.pollMonthly(ctx, sh)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollCycle(ctx, sh, state)
			s.pollMonthly(ctx, sh)
		}
	}
}

// checkEventSwitch fetches the shard's current event id and, when it moved,
// initializes the new event's storage before swapping the tracked pointer.
// Failures log and defer to the next scheduled check.
func (s *Scheduler) checkEventSwitch(ctx context.Context, sh Shard) {
	t := s.trackedByShard[sh.Name]

	id, err := sh.Adapter.RecentEventID(ctx)
	if err != nil {
		if !errors.Is(err, source.ErrNoEvent) {
			s.log.Warn(ctx, "event check failed",
				logger.String("shard", sh.Name), logger.Error(err))
		}
		return
	}
	if meta, set := t.get(); set && meta.ID == id {
		return
	}

	meta, err := sh.Adapter.EventMeta(ctx, id)
	if err != nil {
		s.log.Warn(ctx, "event metadata fetch failed",
			logger.String("shard", sh.Name), logger.String("event", id), logger.Error(err))
		return
	}
	if err := s.ingestor.EnsureEvent(ctx, sh.Name, meta); err != nil {
		s.log.Error(ctx, "event init failed",
			logger.String("shard", sh.Name), logger.String("event", id), logger.Error(err))
		return
	}

	t.put(meta)
	metrics.RecordEventSwitch(sh.Name)
	s.log.Info(ctx, "tracking event",
		logger.String("shard", sh.Name),
		logger.String("event", id),
		logger.String("name", meta.Name),
		logger.String("type", string(meta.Type)),
	)
}

// checkMonthlySwitch refreshes the shard's monthly listing and tracked
// monthly pointer. Shards whose adapter serves no monthlys are skipped.
func (s *Scheduler) checkMonthlySwitch(ctx context.Context, sh Shard) {
	msrc, ok := sh.Adapter.(source.MonthlySource)
	if !ok {
		return
	}

	metas, err := msrc.RecentMonthlies(ctx)
	if err != nil {
		s.log.Warn(ctx, "monthly check failed",
			logger.String("shard", sh.Name), logger.Error(err))
		return
	}
	for _, m := range metas {
		if err := s.ingestor.EnsureMonthly(ctx, sh.Name, m); err != nil {
			s.log.Error(ctx, "monthly init failed",
				logger.String("shard", sh.Name), logger.String("monthly", m.ID), logger.Error(err))
			return
		}
	}

	meta, err := s.ingestor.RecentMonthly(ctx, sh.Name, s.now())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn(ctx, "recent monthly lookup failed",
				logger.String("shard", sh.Name), logger.Error(err))
		}
		return
	}

	t := s.monthlyByShard[sh.Name]
	if prev, set := t.get(); set && prev.ID == meta.ID {
		return
	}
	t.put(meta)
	s.log.Info(ctx, "tracking monthly",
		logger.String("shard", sh.Name),
		logger.String("monthly", meta.ID),
		logger.String("name", meta.Name),
	)
}

// pollMonthly fetches and ingests the tracked monthly's top once per fast
// cycle. Failures log and defer to the next tick; monthlys carry no skip
// policy of their own.
func (s *Scheduler) pollMonthly(ctx context.Context, sh Shard) {
	msrc, ok := sh.Adapter.(source.MonthlySource)
	if !ok {
		return
	}
	meta, set := s.monthlyByShard[sh.Name].get()
	if !set {
		return
	}
	now := s.now()
	if now.Before(meta.StartAt) {
		return
	}

	snap, err := msrc.MonthlySnapshot(ctx, meta.ID)
	if err != nil {
		metrics.RecordFetch(sh.Name, false)
		s.log.Warn(ctx, "monthly fetch failed",
			logger.String("shard", sh.Name), logger.String("monthly", meta.ID), logger.Error(err))
		return
	}
	metrics.RecordFetch(sh.Name, true)

	if _, err := s.ingestor.IngestMonthlySnapshot(ctx, sh.Name, meta.ID, snap, now); err != nil {
		s.log.Error(ctx, "monthly ingest failed",
			logger.String("shard", sh.Name), logger.String("monthly", meta.ID), logger.Error(err))
	}
}

// pollCycle runs one fast cycle: capture the tracked event, apply the skip
// policy, fetch, ingest, notify. Any fetch error is treated as transient.
func (s *Scheduler) pollCycle(ctx context.Context, sh Shard, state *shardState) {
	meta, set := s.trackedByShard[sh.Name].get()
	if !set {
		return
	}
	now := s.now()
	if now.Before(meta.StartAt) {
		return
	}

	if meta.ID != state.lastEvent {
		state.lastEvent = meta.ID
		state.firstCycle = true
		state.lastSuccess = meta.StartAt
		state.failures = 0
		state.skipLeft = 0
	}

	if state.skipLeft > 0 {
		state.skipLeft--
		metrics.RecordCycleSkipped(sh.Name)
		return
	}

	hint := s.steadyHint
	if state.firstCycle {
		hint = s.backfillHint
	}

	snap, err := sh.Adapter.Snapshot(ctx, meta.ID, hint)
	if err != nil {
		state.failures++
		state.skipLeft = state.failures
		metrics.RecordFetch(sh.Name, false)
		s.log.Warn(ctx, "snapshot fetch failed",
			logger.String("shard", sh.Name),
			logger.String("event", meta.ID),
			logger.Int("failures", state.failures),
			logger.Error(err),
		)
		return
	}
	metrics.RecordFetch(sh.Name, true)

	if _, err := s.ingestor.IngestSnapshot(ctx, sh.Name, meta.ID, snap, now); err != nil {
		state.failures++
		state.skipLeft = state.failures
		s.log.Error(ctx, "ingest failed",
			logger.String("shard", sh.Name), logger.String("event", meta.ID), logger.Error(err))
		return
	}

	since := state.lastSuccess
	state.lastSuccess = now
	state.failures = 0
	state.firstCycle = false

	if s.notifier != nil {
		if err := s.notifier.Cycle(ctx, sh.Name, meta.ID, meta.Type, since, now); err != nil {
			s.log.Warn(ctx, "notify cycle failed",
				logger.String("shard", sh.Name), logger.Error(err))
		}
	}
}
