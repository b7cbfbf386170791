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

const recentJSON = `{"events": {
	"176": {"startAt": ["1699000000000", null, null, null]},
	"177": {"startAt": ["1700000000000", "1700100000000", null, null]},
	"90":  {"startAt": [null, "1600000000000", null, null]}
}}`

const eventJSON = `{
	"eventName": ["event jp", "event en", null, null],
	"eventType": "challenge",
	"startAt": ["1700000000000", "1700100000000", null, null],
	"endAt": ["1700600000000", "1700700000000", null, null]
}`

const topJSON = `{
	"users": [
		{"uid": 11, "name": "alice", "introduction": "hi", "rank": 25},
		{"uid": 12, "name": "bob", "introduction": "", "rank": 30}
	],
	"points": [
		{"uid": 11, "value": 1000, "time": 1700000060000},
		{"uid": 12, "value": 900, "time": 1700000060000}
	]
}`

func mirrorFor(ts *httptest.Server, serverID int) *source.Mirror {
	return source.NewMirror(source.Config{
		ServerID: serverID,
		BaseURL:  ts.URL,
		Timeout:  time.Second,
		Retries:  1,
	})
}

func TestMirrorRecentEventID(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mirror serving the recent-events digest", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(recentJSON))
		}))
		defer ts.Close()

		Convey("When asking for server 0", func() {
			id, err := mirrorFor(ts, 0).RecentEventID(ctx)

			Convey("Then the latest started event wins", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "177")
			})
		})

		Convey("When asking for a server with no dates at all", func() {
			_, err := mirrorFor(ts, 3).RecentEventID(ctx)

			Convey("Then it reports no event", func() {
				So(errors.Is(err, source.ErrNoEvent), ShouldBeTrue)
			})
		})
	})
}

func TestMirrorEventMeta(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mirror serving event detail", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/events/177.json" {
				w.Write([]byte(eventJSON))
				return
			}
			http.NotFound(w, r)
		}))
		defer ts.Close()

		Convey("When resolving for server 1", func() {
			meta, err := mirrorFor(ts, 1).EventMeta(ctx, "177")

			Convey("Then the per-server fields are picked", func() {
				So(err, ShouldBeNil)
				So(meta.ID, ShouldEqual, "177")
				So(meta.Name, ShouldEqual, "event en")
				So(meta.Type, ShouldEqual, model.EventChallenge)
				So(meta.StartAt.UnixMilli(), ShouldEqual, 1700100000000)
				So(meta.EndAt.UnixMilli(), ShouldEqual, 1700700000000)
			})
		})

		Convey("When the event never ran on the server", func() {
			_, err := mirrorFor(ts, 2).EventMeta(ctx, "177")

			Convey("Then it reports no event", func() {
				So(errors.Is(err, source.ErrNoEvent), ShouldBeTrue)
			})
		})
	})
}

func TestMirrorSnapshot(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mirror serving leaderboard data", t, func() {
		var gotQuery atomic.Value
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery.Store(r.URL.RawQuery)
			w.Write([]byte(topJSON))
		}))
		defer ts.Close()

		Convey("When fetching a snapshot with a one-minute hint", func() {
			snap, err := mirrorFor(ts, 0).Snapshot(ctx, "177", time.Minute)

			Convey("Then players and readings are normalized", func() {
				So(err, ShouldBeNil)
				So(snap.Players, ShouldHaveLength, 2)
				So(snap.Players[0].UID, ShouldEqual, 11)
				So(snap.Players[0].Name, ShouldEqual, "alice")
				So(snap.Players[0].StaticRank, ShouldEqual, 25)
				So(snap.Points, ShouldHaveLength, 2)
				So(snap.Points[0].Value, ShouldEqual, 1000)
				So(snap.Points[0].At.UnixMilli(), ShouldEqual, 1700000060000)
			})

			Convey("Then the hint is forwarded in milliseconds", func() {
				So(gotQuery.Load().(string), ShouldContainSubstring, "interval=60000")
				So(gotQuery.Load().(string), ShouldContainSubstring, "server=0")
				So(gotQuery.Load().(string), ShouldContainSubstring, "event=177")
			})
		})
	})
}

func TestMirrorRetries(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mirror that fails once then recovers", t, func() {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(recentJSON))
		}))
		defer ts.Close()

		Convey("When fetching with a retry budget of one", func() {
			id, err := mirrorFor(ts, 0).RecentEventID(ctx)

			Convey("Then the retry succeeds", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "177")
				So(calls.Load(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a mirror that always fails", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		Convey("When the budget is exhausted", func() {
			_, err := mirrorFor(ts, 0).RecentEventID(ctx)

			Convey("Then a fetch error is returned", func() {
				So(errors.Is(err, source.ErrFetch), ShouldBeTrue)
			})
		})
	})

	Convey("Given a mirror serving garbage", t, func() {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write([]byte("<html>not json</html>"))
		}))
		defer ts.Close()

		Convey("When decoding fails", func() {
			_, err := mirrorFor(ts, 0).RecentEventID(ctx)

			Convey("Then the decode error is not retried", func() {
				So(errors.Is(err, source.ErrDecode), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 1)
			})
		})
	})
}
