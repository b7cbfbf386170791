package source_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/source"
	. "github.com/smartystreets/goconvey/convey"
)

const eventRows = `[
	[176, "versus", "old event", 0, 1699000000000, 1699600000000],
	[177, "challenge", "new event", 0, 1700000000000, 1700600000000]
]`

const rankingRows = `[[
	["alice", 0, 25, "hi", 0, 1000, 11],
	["bob", 0, 30, "", 0, 900, 12]
]]`

func clientFor(ts *httptest.Server) *source.Client {
	return source.NewClient(source.Config{
		BaseURL:   ts.URL,
		UserID:    "10001",
		Signature: "sig",
		Timeout:   time.Second,
		Retries:   1,
	},
		source.WithClientVersion("7.1.0"),
		source.WithClientClock(func() time.Time { return time.Unix(1_700_000_100, 0) }),
	)
}

func TestClientRecentEventID(t *testing.T) {
	ctx := context.Background()

	Convey("Given a game API listing two events", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(eventRows))
		}))
		defer ts.Close()

		Convey("When asking for the recent event", func() {
			id, err := clientFor(ts).RecentEventID(ctx)

			Convey("Then the latest start wins", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "177")
			})
		})
	})

	Convey("Given an empty listing", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		}))
		defer ts.Close()

		Convey("When asking for the recent event", func() {
			_, err := clientFor(ts).RecentEventID(ctx)

			Convey("Then it reports no event", func() {
				So(errors.Is(err, source.ErrNoEvent), ShouldBeTrue)
			})
		})
	})
}

func TestClientEventMeta(t *testing.T) {
	ctx := context.Background()

	Convey("Given a game API listing", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(eventRows))
		}))
		defer ts.Close()

		Convey("When resolving a listed event", func() {
			meta, err := clientFor(ts).EventMeta(ctx, "177")

			Convey("Then positional fields map to named ones", func() {
				So(err, ShouldBeNil)
				So(meta.Name, ShouldEqual, "new event")
				So(meta.Type, ShouldEqual, model.EventChallenge)
				So(meta.StartAt.UnixMilli(), ShouldEqual, 1700000000000)
			})
		})

		Convey("When resolving an unknown event", func() {
			_, err := clientFor(ts).EventMeta(ctx, "999")

			Convey("Then it reports no event", func() {
				So(errors.Is(err, source.ErrNoEvent), ShouldBeTrue)
			})
		})
	})
}

const monthlyRows = `[
	3,
	[41, "monthly nov", 0, 0, 0, 1700000000000, 1702600000000],
	[42, "monthly dec", 0, 0, 0, 1702600000000, 1705200000000]
]`

func TestClientRecentMonthlies(t *testing.T) {
	ctx := context.Background()

	Convey("Given a game API mixing scalars into the monthly listing", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(monthlyRows))
		}))
		defer ts.Close()

		Convey("When listing the monthlies", func() {
			metas, err := clientFor(ts).RecentMonthlies(ctx)

			Convey("Then only the period rows decode", func() {
				So(err, ShouldBeNil)
				So(metas, ShouldHaveLength, 2)
				So(metas[0].ID, ShouldEqual, "41")
				So(metas[0].Name, ShouldEqual, "monthly nov")
				So(metas[0].StartAt.UnixMilli(), ShouldEqual, 1700000000000)
				So(metas[1].ID, ShouldEqual, "42")
			})
		})
	})
}

func TestClientMonthlySnapshot(t *testing.T) {
	ctx := context.Background()

	Convey("Given a game API serving a wrapped monthly ranking", t, func() {
		var gotPath atomic.Value
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath.Store(r.URL.Path)
			w.Write([]byte(rankingRows))
		}))
		defer ts.Close()

		Convey("When fetching the monthly snapshot", func() {
			snap, err := clientFor(ts).MonthlySnapshot(ctx, "41")

			Convey("Then rows decode like the event ranking", func() {
				So(err, ShouldBeNil)
				So(snap.Players, ShouldHaveLength, 2)
				So(snap.Players[0].UID, ShouldEqual, 11)
				So(snap.Points[0].Value, ShouldEqual, 1000)
				So(snap.Points[0].At.Unix(), ShouldEqual, 1_700_000_100)
			})

			Convey("Then the request targets the monthly ranking path", func() {
				So(gotPath.Load().(string), ShouldEqual, "/user/10001/monthlyranking/41/ranking")
			})
		})
	})
}

func TestClientSnapshot(t *testing.T) {
	ctx := context.Background()

	Convey("Given a game API serving a wrapped ranking payload", t, func() {
		var gotPath atomic.Value
		var gotHeaders atomic.Value
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath.Store(r.URL.Path)
			gotHeaders.Store(r.Header.Clone())
			w.Write([]byte(rankingRows))
		}))
		defer ts.Close()

		Convey("When fetching a snapshot", func() {
			snap, err := clientFor(ts).Snapshot(ctx, "177", time.Minute)

			Convey("Then rows decode into players and fetch-time readings", func() {
				So(err, ShouldBeNil)
				So(snap.Players, ShouldHaveLength, 2)
				So(snap.Players[0].UID, ShouldEqual, 11)
				So(snap.Players[0].Name, ShouldEqual, "alice")
				So(snap.Players[0].Introduction, ShouldEqual, "hi")
				So(snap.Players[0].StaticRank, ShouldEqual, 25)
				So(snap.Points[0].Value, ShouldEqual, 1000)
				So(snap.Points[0].At.Unix(), ShouldEqual, 1_700_000_100)
			})

			Convey("Then the request carries the game headers and user path", func() {
				So(gotPath.Load().(string), ShouldEqual, "/user/10001/event/177/ranking")
				h := gotHeaders.Load().(http.Header)
				So(h.Get("X-ClientVersion"), ShouldEqual, "7.1.0")
				So(h.Get("X-Signature"), ShouldEqual, "sig")
				So(h.Get("Accept"), ShouldEqual, "application/octet-stream")
			})
		})
	})
}
