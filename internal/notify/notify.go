// Package notify diffs each successful ingestion cycle into rank-change and
// anomaly-spike events for an external sink. Delivery to concrete recipients
// is the sink implementor's concern.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/store"
	"github.com/nijika-dev/trackstar/pkg/logger"
	"github.com/nijika-dev/trackstar/pkg/metrics"
)

// Default thresholds; override with options.
const (
	defaultSpikeThreshold = 16000
	defaultTopN           = 10
)

// RankChange is one player's rank movement inside a cycle.
type RankChange struct {
	UID  int64
	Name string
	From int
	To   int
}

// RankChangeEvent bundles all rank movements of one cycle.
type RankChangeEvent struct {
	ID      string
	Shard   string
	EventID string
	At      time.Time
	Changes []RankChange
}

// Spike is one anomalous single-reading score jump.
type Spike struct {
	UID   int64
	Name  string
	Rank  int
	Delta int64
	At    time.Time
}

// AnomalySpikeEvent bundles the first qualifying spike per top-N player in
// one cycle.
type AnomalySpikeEvent struct {
	ID      string
	Shard   string
	EventID string
	At      time.Time
	Spikes  []Spike
}

// Sink receives change events. Implementations must not block indefinitely.
type Sink interface {
	OnRankChange(ctx context.Context, ev RankChangeEvent) error
	OnAnomalySpike(ctx context.Context, ev AnomalySpikeEvent) error
}

// Notifier scans the store after each successful cycle and emits events.
type Notifier struct {
	store *store.Store
	sink  Sink

	spikeThreshold int64
	topN           int
	now            func() time.Time
	log            logger.Logger
}

// New creates a notifier writing to sink. A nil sink falls back to LogSink.
func New(st *store.Store, sink Sink, opts ...Option) (*Notifier, error) {
	if st == nil {
		return nil, fmt.Errorf("notify: store is required")
	}
	n := &Notifier{
		store:          st,
		sink:           sink,
		spikeThreshold: defaultSpikeThreshold,
		topN:           defaultTopN,
		now:            time.Now,
		log:            logger.Named("notify"),
	}
	if n.sink == nil {
		n.sink = NewLogSink(n.log)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Cycle runs the post-ingest scan for one shard: rank transitions logged in
// (since, now] become one RankChangeEvent, and for challenge events each
// top-N player's deltas since the previous success are scanned for the first
// spike above the threshold. Both scans are best effort per event kind; a
// sink failure is returned after the remaining scans run.
func (n *Notifier) Cycle(ctx context.Context, shard, eventID string, eventType model.EventType, since, now time.Time) error {
	var firstErr error

	if err := n.rankChanges(ctx, shard, eventID, since, now); err != nil {
		firstErr = err
	}
	if eventType == model.EventChallenge {
		if err := n.spikes(ctx, shard, eventID, since); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *Notifier) rankChanges(ctx context.Context, shard, eventID string, since, now time.Time) error {
	transitions, err := n.store.TransitionsBetween(ctx, shard, eventID, since, now)
	if err != nil {
		return fmt.Errorf("notify: transitions: %w", err)
	}
	if len(transitions) == 0 {
		return nil
	}

	ev := RankChangeEvent{
		ID:      uuid.NewString(),
		Shard:   shard,
		EventID: eventID,
		At:      n.now(),
	}
	for _, t := range transitions {
		name := ""
		if p, err := n.store.Player(ctx, shard, eventID, t.UID); err == nil {
			name = p.Name
		}
		ev.Changes = append(ev.Changes, RankChange{UID: t.UID, Name: name, From: t.From, To: t.To})
	}

	if err := n.sink.OnRankChange(ctx, ev); err != nil {
		return fmt.Errorf("notify: rank change sink: %w", err)
	}
	metrics.RecordNotification("rank_change")
	return nil
}

func (n *Notifier) spikes(ctx context.Context, shard, eventID string, since time.Time) error {
	players, err := n.store.TopPlayers(ctx, shard, eventID, n.topN)
	if err != nil {
		return fmt.Errorf("notify: top players: %w", err)
	}

	var spikes []Spike
	for i, p := range players {
		entries, err := n.store.EntryTimes(ctx, shard, eventID, p.UID)
		if err != nil {
			return fmt.Errorf("notify: entry times: %w", err)
		}
		readings, err := n.store.ReadingsBetween(ctx, shard, eventID, p.UID, since, n.now().Add(time.Second))
		if err != nil {
			return fmt.Errorf("notify: readings: %w", err)
		}
		// The latest pre-window reading anchors the scan so a jump landing on
		// the first in-window reading still yields a delta.
		base, err := n.store.LatestReadingBefore(ctx, shard, eventID, p.UID, since)
		switch {
		case err == nil:
			readings = append([]model.PointReading{base}, readings...)
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("notify: baseline reading: %w", err)
		}
		readings = dropEntryCoincident(readings, entries)

		for j := 1; j < len(readings); j++ {
			delta := readings[j].Value - readings[j-1].Value
			if delta > n.spikeThreshold {
				spikes = append(spikes, Spike{
					UID:   p.UID,
					Name:  p.Name,
					Rank:  i + 1,
					Delta: delta,
					At:    readings[j].At,
				})
				break
			}
		}
	}
	if len(spikes) == 0 {
		return nil
	}

	ev := AnomalySpikeEvent{
		ID:      uuid.NewString(),
		Shard:   shard,
		EventID: eventID,
		At:      n.now(),
		Spikes:  spikes,
	}
	if err := n.sink.OnAnomalySpike(ctx, ev); err != nil {
		return fmt.Errorf("notify: spike sink: %w", err)
	}
	metrics.RecordNotification("anomaly_spike")
	return nil
}

func dropEntryCoincident(readings []model.PointReading, entries []time.Time) []model.PointReading {
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
