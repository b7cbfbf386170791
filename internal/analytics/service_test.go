package analytics_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nijika-dev/trackstar/internal/analytics"
	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/store"
	. "github.com/smartystreets/goconvey/convey"
)

var eventStart = time.Date(2023, 11, 15, 6, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, store.WithInactivityThreshold(1200*time.Second))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ensureEvent(t *testing.T, s *store.Store) {
	t.Helper()
	err := s.EnsureEvent(context.Background(), "jp", model.EventMeta{
		ID:      "e1",
		Name:    "test event",
		Type:    model.EventChallenge,
		StartAt: eventStart,
		EndAt:   eventStart.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ensure event: %v", err)
	}
}

func ingest(t *testing.T, s *store.Store, observed time.Duration, uid int64, readings ...model.PointReading) {
	t.Helper()
	_, err := s.IngestSnapshot(context.Background(), "jp", "e1", model.Snapshot{
		Players: []model.PlayerInfo{{UID: uid, Name: "p"}},
		Points:  readings,
	}, eventStart.Add(observed))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
}

func at(value int64, offset time.Duration) func(uid int64) model.PointReading {
	return func(uid int64) model.PointReading {
		return model.PointReading{UID: uid, Value: value, At: eventStart.Add(offset)}
	}
}

func TestVelocity(t *testing.T) {
	ctx := context.Background()

	Convey("Given a player with backfilled history entering the top-N at t=500", t, func() {
		s := openStore(t)
		ensureEvent(t, s)
		ingest(t, s, 500*time.Second, 1,
			at(100, 100*time.Second)(1),
			at(200, 300*time.Second)(1),
			at(300, 500*time.Second)(1),
		)

		Convey("When asking for velocity with the entry inside the window", func() {
			svc, err := analytics.New(s, analytics.WithClock(func() time.Time {
				return eventStart.Add(2300 * time.Second)
			}))
			So(err, ShouldBeNil)

			v, err := svc.PlayerVelocity(ctx, "jp", "e1", 1,
				eventStart.Add(2300*time.Second), 3600*time.Second)

			Convey("Then the result is the unavailable sentinel", func() {
				So(err, ShouldBeNil)
				So(v.Available, ShouldBeFalse)
			})
		})

		Convey("When the entry has aged out of the window", func() {
			ingest(t, s, 4000*time.Second, 1, at(400, 4000*time.Second)(1))

			svc, err := analytics.New(s)
			So(err, ShouldBeNil)

			v, err := svc.PlayerVelocity(ctx, "jp", "e1", 1,
				eventStart.Add(4500*time.Second), time.Hour)

			Convey("Then velocity is the gain over the window", func() {
				So(err, ShouldBeNil)
				So(v.Available, ShouldBeTrue)
				So(v.Value, ShouldEqual, 100)
			})
		})

		Convey("When asking for an unknown player", func() {
			svc, err := analytics.New(s)
			So(err, ShouldBeNil)

			_, err = svc.PlayerVelocity(ctx, "jp", "e1", 99,
				eventStart.Add(4500*time.Second), time.Hour)

			Convey("Then it reports not found", func() {
				So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestRecentDeltas(t *testing.T) {
	ctx := context.Background()

	Convey("Given readings where one coincides with the top-N entry", t, func() {
		s := openStore(t)
		ensureEvent(t, s)
		ingest(t, s, 500*time.Second, 1,
			at(100, 100*time.Second)(1),
			at(200, 300*time.Second)(1),
			at(300, 500*time.Second)(1),
		)
		ingest(t, s, 4000*time.Second, 1, at(400, 4000*time.Second)(1))

		svc, err := analytics.New(s)
		So(err, ShouldBeNil)

		Convey("When listing recent deltas", func() {
			deltas, err := svc.RecentDeltas(ctx, "jp", "e1", 1, 20)

			Convey("Then the entry-coincident reading is excluded from pairing", func() {
				So(err, ShouldBeNil)
				So(deltas, ShouldHaveLength, 2)
				So(deltas[0].Value, ShouldEqual, 200)
				So(deltas[0].At.Unix(), ShouldEqual, eventStart.Add(4000*time.Second).Unix())
				So(deltas[1].Value, ShouldEqual, 100)
			})
		})

		Convey("When asking for a single delta", func() {
			deltas, err := svc.RecentDeltas(ctx, "jp", "e1", 1, 1)

			Convey("Then only the newest is returned", func() {
				So(err, ShouldBeNil)
				So(deltas, ShouldHaveLength, 1)
				So(deltas[0].Value, ShouldEqual, 200)
			})
		})
	})
}

func TestTopN(t *testing.T) {
	ctx := context.Background()

	Convey("Given two players, one freshly entered", t, func() {
		s := openStore(t)
		ensureEvent(t, s)
		ingest(t, s, 100*time.Second, 1, at(500, 100*time.Second)(1))
		ingest(t, s, 5000*time.Second, 1, at(900, 5000*time.Second)(1))
		ingest(t, s, 5100*time.Second, 2, at(600, 5100*time.Second)(2))

		svc, err := analytics.New(s, analytics.WithClock(func() time.Time {
			return eventStart.Add(5200 * time.Second)
		}))
		So(err, ShouldBeNil)

		Convey("When listing the top players", func() {
			entries, err := svc.TopN(ctx, "jp", "e1", 10)

			Convey("Then ranks follow score order", func() {
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].Player.UID, ShouldEqual, 1)
				So(entries[0].Rank, ShouldEqual, 1)
				So(entries[1].Player.UID, ShouldEqual, 2)
				So(entries[1].Rank, ShouldEqual, 2)
			})

			Convey("Then the newcomer is paused and excluded from velocity ranking", func() {
				So(err, ShouldBeNil)
				So(entries[0].Velocity.Available, ShouldBeTrue)
				So(entries[0].VelocityRank, ShouldEqual, 1)
				So(entries[1].Velocity.Available, ShouldBeFalse)
				So(entries[1].VelocityRank, ShouldEqual, 0)
			})
		})
	})
}

func TestIntervalStats(t *testing.T) {
	ctx := context.Background()

	Convey("Given a player with sparse activity", t, func() {
		s := openStore(t)
		ensureEvent(t, s)
		ingest(t, s, 500*time.Second, 1, at(300, 500*time.Second)(1))
		ingest(t, s, 4000*time.Second, 1, at(400, 4000*time.Second)(1))

		svc, err := analytics.New(s, analytics.WithClock(func() time.Time {
			return eventStart.Add(4500 * time.Second)
		}))
		So(err, ShouldBeNil)

		Convey("When asking for 1h and 2h windows", func() {
			stats, err := svc.IntervalStats(ctx, "jp", "e1", 1,
				[]time.Duration{time.Hour, 2 * time.Hour})

			Convey("Then the window reaching past the event start is omitted", func() {
				So(err, ShouldBeNil)
				So(stats, ShouldHaveLength, 1)
				So(stats[0].Window, ShouldEqual, time.Hour)
				So(stats[0].Changes, ShouldEqual, 1)
			})
		})
	})
}

func TestPlayerDetail(t *testing.T) {
	ctx := context.Background()

	Convey("Given a three-player leaderboard", t, func() {
		s := openStore(t)
		ensureEvent(t, s)
		ingest(t, s, 100*time.Second, 1, at(500, 100*time.Second)(1))
		ingest(t, s, 110*time.Second, 2, at(300, 110*time.Second)(2))
		ingest(t, s, 120*time.Second, 3, at(100, 120*time.Second)(3))

		svc, err := analytics.New(s,
			analytics.WithInactivityThreshold(1200*time.Second),
			analytics.WithClock(func() time.Time {
				return eventStart.Add(5000 * time.Second)
			}),
		)
		So(err, ShouldBeNil)

		Convey("When asking for the second position", func() {
			d, err := svc.PlayerDetail(ctx, "jp", "e1", 2)

			Convey("Then the neighbour gaps are reported", func() {
				So(err, ShouldBeNil)
				So(d.Entry.Player.UID, ShouldEqual, 2)
				So(d.PointUpDelta, ShouldEqual, 200)
				So(d.PointDownDelta, ShouldEqual, 200)
			})

			Convey("Then the long idle period opens a trailing interval", func() {
				So(err, ShouldBeNil)
				So(d.OpenInterval, ShouldNotBeNil)
				So(d.OpenInterval.Start.Unix(), ShouldEqual, eventStart.Add(110*time.Second).Unix())
				So(d.OpenInterval.End.Unix(), ShouldEqual, eventStart.Add(5000*time.Second).Unix())
			})
		})

		Convey("When asking for an unoccupied position", func() {
			_, err := svc.PlayerDetail(ctx, "jp", "e1", 7)

			Convey("Then it reports not found", func() {
				So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestDailyBreakdown(t *testing.T) {
	ctx := context.Background()

	Convey("Given activity spread over two days", t, func() {
		s := openStore(t)
		ensureEvent(t, s)
		ingest(t, s, time.Hour, 1,
			at(100, time.Hour)(1),
			at(200, 2*time.Hour)(1),
		)
		ingest(t, s, 25*time.Hour, 1, at(300, 25*time.Hour)(1))

		svc, err := analytics.New(s, analytics.WithClock(func() time.Time {
			return eventStart.Add(30 * time.Hour)
		}))
		So(err, ShouldBeNil)

		Convey("When asking for a UTC breakdown", func() {
			buckets, err := svc.DailyBreakdown(ctx, "jp", "e1", 1, "UTC")

			Convey("Then there is one bucket per local day", func() {
				So(err, ShouldBeNil)
				So(buckets, ShouldHaveLength, 2)
			})

			Convey("Then day one aggregates its readings", func() {
				So(err, ShouldBeNil)
				So(buckets[0].Changes, ShouldEqual, 2)
				So(buckets[0].ScoreDelta, ShouldEqual, 200)
			})

			Convey("Then hours before the event start are not applicable", func() {
				So(err, ShouldBeNil)
				So(buckets[0].Hourly[0], ShouldEqual, analytics.HourNotApplicable)
				So(buckets[0].Hourly[7], ShouldEqual, 1)
				So(buckets[0].Hourly[8], ShouldEqual, 1)
			})

			Convey("Then day two carries the remaining delta", func() {
				So(err, ShouldBeNil)
				So(buckets[1].Changes, ShouldEqual, 1)
				So(buckets[1].ScoreDelta, ShouldEqual, 100)
			})
		})

		Convey("When asking with a bogus timezone", func() {
			_, err := svc.DailyBreakdown(ctx, "jp", "e1", 1, "Not/AZone")

			Convey("Then the query fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
