// Package analytics implements the read-side computations over the event
// store: leaderboard views with velocity, recent score deltas, windowed
// interval statistics, daily breakdowns, and the per-rank detail view.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/domain/rank"
	"github.com/nijika-dev/trackstar/internal/store"
	"github.com/nijika-dev/trackstar/pkg/logger"
)

// Defaults; override with options.
const (
	defaultVelocityWindow = time.Hour
	defaultDeltaCount     = 20
	defaultTopN           = 10
	defaultInactivity     = 20 * time.Minute
)

var defaultIntervalWindows = []time.Duration{
	time.Hour, 2 * time.Hour, 12 * time.Hour, 24 * time.Hour,
}

// Service answers analytics queries against the store.
type Service struct {
	store *store.Store

	velocityWindow  time.Duration
	deltaCount      int
	intervalWindows []time.Duration
	topN            int
	inactivity      time.Duration
	now             func() time.Time
	log             logger.Logger
}

// New creates an analytics service backed by the given store.
func New(st *store.Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: store is required", ErrQuery)
	}
	s := &Service{
		store:           st,
		velocityWindow:  defaultVelocityWindow,
		deltaCount:      defaultDeltaCount,
		intervalWindows: defaultIntervalWindows,
		topN:            defaultTopN,
		inactivity:      defaultInactivity,
		now:             time.Now,
		log:             logger.Named("analytics"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Velocity is a windowed score gain. Available is false when the player's
// latest entry into the tracked top-N falls inside the window, because the
// gain would conflate pre-entry accumulation with live play.
type Velocity struct {
	Value     int64
	Available bool
}

// Entry is one leaderboard row with its derived velocity.
type Entry struct {
	Player       model.Player
	Rank         int
	Velocity     Velocity
	VelocityRank int
}

// TopN returns the current leaderboard slice. Each entry carries its rank,
// velocity over the configured window, and a velocity rank computed over
// available velocities only; paused entries keep rank 0.
func (s *Service) TopN(ctx context.Context, shard, eventID string, n int) ([]Entry, error) {
	players, err := s.store.TopPlayers(ctx, shard, eventID, n)
	if err != nil {
		return nil, fmt.Errorf("%w: top players: %w", ErrQuery, err)
	}

	standings := make([]rank.Standing, len(players))
	for i, p := range players {
		standings[i] = rank.Standing{UID: p.UID, Score: p.Score, LastUpdate: p.LastUpdate}
	}
	ranks := rank.Compute(standings)

	asOf := s.now()
	entries := make([]Entry, len(players))
	for i, p := range players {
		v, err := s.PlayerVelocity(ctx, shard, eventID, p.UID, asOf, s.velocityWindow)
		if err != nil {
			return nil, err
		}
		entries[i] = Entry{Player: p, Rank: ranks[p.UID], Velocity: v}
	}
	applyVelocityRanks(entries)
	return entries, nil
}

// PlayerVelocity computes score gained over the trailing window ending at
// asOf. The gain is the current score minus the highest reading observed
// before the window start.
func (s *Service) PlayerVelocity(ctx context.Context, shard, eventID string, uid int64, asOf time.Time, window time.Duration) (Velocity, error) {
	if window <= 0 {
		window = s.velocityWindow
	}
	from := asOf.Add(-window)

	entries, err := s.store.EntryTimes(ctx, shard, eventID, uid)
	if err != nil {
		return Velocity{}, fmt.Errorf("%w: entry times: %w", ErrQuery, err)
	}
	if len(entries) > 0 && entries[0].After(from) {
		return Velocity{Available: false}, nil
	}

	p, err := s.store.Player(ctx, shard, eventID, uid)
	if err != nil {
		return Velocity{}, err
	}
	base, err := s.store.MaxValueBefore(ctx, shard, eventID, uid, from)
	if err != nil {
		return Velocity{}, fmt.Errorf("%w: baseline: %w", ErrQuery, err)
	}
	return Velocity{Value: p.Score - base, Available: true}, nil
}

// applyVelocityRanks assigns ranks by velocity descending over the available
// entries. Ties share a rank.
func applyVelocityRanks(entries []Entry) {
	idx := make([]int, 0, len(entries))
	for i := range entries {
		if entries[i].Velocity.Available {
			idx = append(idx, i)
		}
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && entries[idx[j]].Velocity.Value > entries[idx[j-1]].Velocity.Value; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	for pos, i := range idx {
		if pos > 0 && entries[i].Velocity.Value == entries[idx[pos-1]].Velocity.Value {
			entries[i].VelocityRank = entries[idx[pos-1]].VelocityRank
			continue
		}
		entries[i].VelocityRank = pos + 1
	}
}

// Delta is one point-to-point score change.
type Delta struct {
	At    time.Time
	Value int64
}

// RecentDeltas returns up to count consecutive score deltas, newest first.
// Readings coincident with the player's top-N entry timestamps are excluded
// before pairing.
func (s *Service) RecentDeltas(ctx context.Context, shard, eventID string, uid int64, count int) ([]Delta, error) {
	if count <= 0 {
		count = s.deltaCount
	}
	entries, err := s.store.EntryTimes(ctx, shard, eventID, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: entry times: %w", ErrQuery, err)
	}
	readings, err := s.store.RecentReadings(ctx, shard, eventID, uid, count+len(entries)+1)
	if err != nil {
		return nil, fmt.Errorf("%w: readings: %w", ErrQuery, err)
	}
	readings = excludeEntryCoincident(readings, entries)

	var out []Delta
	for i := 0; i+1 < len(readings) && len(out) < count; i++ {
		out = append(out, Delta{
			At:    readings[i].At,
			Value: readings[i].Value - readings[i+1].Value,
		})
	}
	return out, nil
}

// WindowStats summarizes scoring activity inside one trailing window.
type WindowStats struct {
	Window    time.Duration
	Changes   int
	MeanGap   time.Duration
	MeanDelta float64
}

// IntervalStats computes per-window change statistics ending at now. A window
// is omitted when it would reach back before the event start or before the
// player's most recent top-N entry.
func (s *Service) IntervalStats(ctx context.Context, shard, eventID string, uid int64, windows []time.Duration) ([]WindowStats, error) {
	if len(windows) == 0 {
		windows = s.intervalWindows
	}
	meta, err := s.store.Event(ctx, shard, eventID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.EntryTimes(ctx, shard, eventID, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: entry times: %w", ErrQuery, err)
	}

	asOf := s.now()
	var out []WindowStats
	for _, w := range windows {
		from := asOf.Add(-w)
		if from.Before(meta.StartAt) {
			continue
		}
		if len(entries) > 0 && from.Before(entries[0]) {
			continue
		}
		readings, err := s.store.ReadingsBetween(ctx, shard, eventID, uid, from, asOf.Add(time.Second))
		if err != nil {
			return nil, fmt.Errorf("%w: readings: %w", ErrQuery, err)
		}
		st := WindowStats{Window: w, Changes: len(readings)}
		if n := len(readings); n >= 2 {
			first, last := readings[0], readings[n-1]
			st.MeanGap = last.At.Sub(first.At) / time.Duration(n-1)
			st.MeanDelta = float64(last.Value-first.Value) / float64(n-1)
		}
		out = append(out, st)
	}
	return out, nil
}

// Detail is the full view of one leaderboard position.
type Detail struct {
	Entry          Entry
	PointUpDelta   int64
	PointDownDelta int64
	RecentDeltas   []Delta
	WindowStats    []WindowStats
	OpenInterval   *model.ActivityInterval
}

// PlayerDetail returns the detail view for the position-th player on the
// leaderboard (1-based). Returns store.ErrNotFound when the position is not
// currently occupied. The open trailing interval is present when the player
// has been idle longer than the inactivity threshold.
func (s *Service) PlayerDetail(ctx context.Context, shard, eventID string, position int) (Detail, error) {
	if position < 1 || position > s.topN {
		return Detail{}, fmt.Errorf("%w: position %d", store.ErrNotFound, position)
	}
	entries, err := s.TopN(ctx, shard, eventID, s.topN)
	if err != nil {
		return Detail{}, err
	}
	if position > len(entries) {
		return Detail{}, fmt.Errorf("%w: position %d", store.ErrNotFound, position)
	}

	e := entries[position-1]
	d := Detail{Entry: e}
	if position > 1 {
		d.PointUpDelta = entries[position-2].Player.Score - e.Player.Score
	}
	if position < len(entries) {
		d.PointDownDelta = e.Player.Score - entries[position].Player.Score
	}

	if d.RecentDeltas, err = s.RecentDeltas(ctx, shard, eventID, e.Player.UID, s.deltaCount); err != nil {
		return Detail{}, err
	}
	if d.WindowStats, err = s.IntervalStats(ctx, shard, eventID, e.Player.UID, nil); err != nil {
		return Detail{}, err
	}

	now := s.now()
	if idle := now.Sub(e.Player.LastUpdate); idle >= s.inactivity {
		d.OpenInterval = &model.ActivityInterval{
			UID:   e.Player.UID,
			Start: e.Player.LastUpdate,
			End:   now,
		}
	}
	return d, nil
}

func excludeEntryCoincident(readings []model.PointReading, entries []time.Time) []model.PointReading {
	if len(entries) == 0 {
		return readings
	}
	at := make(map[int64]struct{}, len(entries))
	for _, t := range entries {
		at[t.Unix()] = struct{}{}
	}
	out := readings[:0]
	for _, r := range readings {
		if _, hit := at[r.At.Unix()]; hit {
			continue
		}
		out = append(out, r)
	}
	return out
}
