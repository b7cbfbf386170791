package notify_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/notify"
	"github.com/nijika-dev/trackstar/internal/store"
	. "github.com/smartystreets/goconvey/convey"
)

var eventStart = time.Unix(1_700_000_000, 0)

type fakeSink struct {
	rankEvents  []notify.RankChangeEvent
	spikeEvents []notify.AnomalySpikeEvent
	rankErr     error
}

func (f *fakeSink) OnRankChange(_ context.Context, ev notify.RankChangeEvent) error {
	if f.rankErr != nil {
		return f.rankErr
	}
	f.rankEvents = append(f.rankEvents, ev)
	return nil
}

func (f *fakeSink) OnAnomalySpike(_ context.Context, ev notify.AnomalySpikeEvent) error {
	f.spikeEvents = append(f.spikeEvents, ev)
	return nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ensureEvent(t *testing.T, s *store.Store, typ model.EventType) {
	t.Helper()
	err := s.EnsureEvent(context.Background(), "jp", model.EventMeta{
		ID:      "e1",
		Name:    "test event",
		Type:    typ,
		StartAt: eventStart,
		EndAt:   eventStart.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ensure event: %v", err)
	}
}

func ingest(t *testing.T, s *store.Store, observed time.Duration, readings ...model.PointReading) {
	t.Helper()
	players := make([]model.PlayerInfo, 0, len(readings))
	seen := map[int64]bool{}
	for _, r := range readings {
		if !seen[r.UID] {
			players = append(players, model.PlayerInfo{UID: r.UID, Name: "p"})
			seen[r.UID] = true
		}
	}
	_, err := s.IngestSnapshot(context.Background(), "jp", "e1", model.Snapshot{
		Players: players,
		Points:  readings,
	}, eventStart.Add(observed))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
}

func reading(uid, value int64, offset time.Duration) model.PointReading {
	return model.PointReading{UID: uid, Value: value, At: eventStart.Add(offset)}
}

func TestRankChangeBundling(t *testing.T) {
	ctx := context.Background()

	Convey("Given a cycle that reordered two players", t, func() {
		s := openStore(t)
		ensureEvent(t, s, model.EventVersus)
		ingest(t, s, 10*time.Second,
			reading(1, 100, 10*time.Second),
			reading(2, 90, 10*time.Second),
		)
		ingest(t, s, 60*time.Second, reading(2, 150, 60*time.Second))

		sink := &fakeSink{}
		n, err := notify.New(s, sink)
		So(err, ShouldBeNil)

		Convey("When the notifier scans the overtake window", func() {
			err := n.Cycle(ctx, "jp", "e1", model.EventVersus,
				eventStart.Add(10*time.Second), eventStart.Add(60*time.Second))

			Convey("Then one event bundles both movements", func() {
				So(err, ShouldBeNil)
				So(sink.rankEvents, ShouldHaveLength, 1)
				ev := sink.rankEvents[0]
				So(ev.ID, ShouldNotBeBlank)
				So(ev.Changes, ShouldHaveLength, 2)
			})
		})

		Convey("When the window holds no transitions", func() {
			err := n.Cycle(ctx, "jp", "e1", model.EventVersus,
				eventStart.Add(100*time.Second), eventStart.Add(200*time.Second))

			Convey("Then no event is emitted", func() {
				So(err, ShouldBeNil)
				So(sink.rankEvents, ShouldBeEmpty)
			})
		})

		Convey("When the sink rejects the event", func() {
			sink.rankErr = errors.New("webhook down")
			err := n.Cycle(ctx, "jp", "e1", model.EventVersus,
				eventStart.Add(10*time.Second), eventStart.Add(60*time.Second))

			Convey("Then the cycle reports the failure", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestAnomalySpikes(t *testing.T) {
	ctx := context.Background()

	spikeFixture := func(t *testing.T, typ model.EventType) *store.Store {
		s := openStore(t)
		ensureEvent(t, s, typ)
		ingest(t, s, 10*time.Second,
			reading(1, 100, 5*time.Second),
			reading(1, 200, 10*time.Second),
		)
		ingest(t, s, 60*time.Second, reading(1, 20000, 60*time.Second))
		return s
	}

	Convey("Given a challenge event with an outsized single jump", t, func() {
		s := spikeFixture(t, model.EventChallenge)
		sink := &fakeSink{}
		n, err := notify.New(s, sink, notify.WithSpikeThreshold(16000))
		So(err, ShouldBeNil)

		Convey("When the notifier scans a window covering the jump", func() {
			err := n.Cycle(ctx, "jp", "e1", model.EventChallenge,
				eventStart.Add(4*time.Second), eventStart.Add(65*time.Second))

			Convey("Then one spike event carries the first qualifying delta", func() {
				So(err, ShouldBeNil)
				So(sink.spikeEvents, ShouldHaveLength, 1)
				ev := sink.spikeEvents[0]
				So(ev.Spikes, ShouldHaveLength, 1)
				So(ev.Spikes[0].UID, ShouldEqual, 1)
				So(ev.Spikes[0].Rank, ShouldEqual, 1)
				So(ev.Spikes[0].Delta, ShouldEqual, 19900)
			})
		})

		Convey("When the threshold sits above the jump", func() {
			n2, err := notify.New(s, sink, notify.WithSpikeThreshold(50000))
			So(err, ShouldBeNil)
			err = n2.Cycle(ctx, "jp", "e1", model.EventChallenge,
				eventStart.Add(4*time.Second), eventStart.Add(65*time.Second))

			Convey("Then no spike event is emitted", func() {
				So(err, ShouldBeNil)
				So(sink.spikeEvents, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a jump whose baseline reading precedes the scan window", t, func() {
		s := openStore(t)
		ensureEvent(t, s, model.EventChallenge)
		ingest(t, s, 10*time.Second,
			reading(1, 100, 5*time.Second),
			reading(1, 200, 10*time.Second),
		)
		ingest(t, s, 40*time.Second, reading(1, 300, 40*time.Second))
		ingest(t, s, 90*time.Second, reading(1, 20000, 90*time.Second))

		sink := &fakeSink{}
		n, err := notify.New(s, sink, notify.WithSpikeThreshold(16000))
		So(err, ShouldBeNil)

		Convey("When the notifier scans a window opening after the baseline", func() {
			err := n.Cycle(ctx, "jp", "e1", model.EventChallenge,
				eventStart.Add(60*time.Second), eventStart.Add(95*time.Second))

			Convey("Then the first in-window reading still yields the delta", func() {
				So(err, ShouldBeNil)
				So(sink.spikeEvents, ShouldHaveLength, 1)
				ev := sink.spikeEvents[0]
				So(ev.Spikes, ShouldHaveLength, 1)
				So(ev.Spikes[0].UID, ShouldEqual, 1)
				So(ev.Spikes[0].Delta, ShouldEqual, 19700)
				So(ev.Spikes[0].At.Unix(), ShouldEqual, eventStart.Add(90*time.Second).Unix())
			})
		})
	})

	Convey("Given the same jump on a non-challenge event", t, func() {
		s := spikeFixture(t, model.EventVersus)
		sink := &fakeSink{}
		n, err := notify.New(s, sink, notify.WithSpikeThreshold(16000))
		So(err, ShouldBeNil)

		Convey("When the notifier scans the window", func() {
			err := n.Cycle(ctx, "jp", "e1", model.EventVersus,
				eventStart.Add(4*time.Second), eventStart.Add(65*time.Second))

			Convey("Then the spike scan does not run", func() {
				So(err, ShouldBeNil)
				So(sink.spikeEvents, ShouldBeEmpty)
			})
		})
	})
}
