package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nijika-dev/trackstar/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaults(t *testing.T) {
	Convey("Given no file and no environment overrides", t, func() {
		Convey("When loading the configuration", func() {
			cfg, err := config.Load(context.Background())

			Convey("Then the defaults apply", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9080")
				So(cfg.TopN, ShouldEqual, 10)
				So(cfg.PollIntervalSeconds, ShouldEqual, 60)
				So(cfg.InactivityThresholdSeconds, ShouldEqual, 1200)
				So(cfg.SpikeThreshold, ShouldEqual, 16000)
				So(cfg.Timezone, ShouldEqual, "Asia/Hong_Kong")
				So(cfg.Shards, ShouldContainKey, "jp")
				So(cfg.Shards["en"].ServerID, ShouldEqual, 1)
				So(cfg.Shards["en"].Flavor, ShouldEqual, "mirror")
			})
		})
	})
}

func TestEnvOverrides(t *testing.T) {
	Convey("Given environment overrides", t, func() {
		t.Setenv("TRACKSTAR_ADDR", ":7000")
		t.Setenv("TRACKSTAR_TOP_N", "20")
		t.Setenv("TRACKSTAR_LOG_LEVEL", "debug")

		Convey("When loading the configuration", func() {
			cfg, err := config.Load(context.Background())

			Convey("Then env values win over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7000")
				So(cfg.TopN, ShouldEqual, 20)
				So(cfg.LogLevel, ShouldEqual, "debug")
			})
		})
	})
}

func TestFileLayer(t *testing.T) {
	Convey("Given a YAML config file", t, func() {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := []byte(`
addr: ":8088"
top_n: 30
shards:
  jp:
    server_id: 0
    flavor: mirror
`)
		So(os.WriteFile(path, content, 0o600), ShouldBeNil)
		t.Setenv("TRACKSTAR_CONFIG", path)

		Convey("When loading the configuration", func() {
			cfg, err := config.Load(context.Background())

			Convey("Then file values apply over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":8088")
				So(cfg.TopN, ShouldEqual, 30)
			})
		})

		Convey("When an env var overrides the file", func() {
			t.Setenv("TRACKSTAR_ADDR", ":9999")
			cfg, err := config.Load(context.Background())

			Convey("Then env wins", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9999")
			})
		})
	})

	Convey("Given a missing config file path", t, func() {
		t.Setenv("TRACKSTAR_CONFIG", "/nonexistent/config.yaml")

		Convey("When loading", func() {
			_, err := config.Load(context.Background())

			Convey("Then loading fails", func() {
				So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
			})
		})
	})
}

func TestValidation(t *testing.T) {
	Convey("Given invalid settings", t, func() {
		cases := []struct{ key, val string }{
			{"TRACKSTAR_ADDR", ""},
			{"TRACKSTAR_TOP_N", "0"},
			{"TRACKSTAR_POLL_INTERVAL_SECONDS", "0"},
			{"TRACKSTAR_INACTIVITY_THRESHOLD_SECONDS", "-5"},
		}
		for _, tc := range cases {
			Convey("When "+tc.key+" is "+tc.val, func() {
				t.Setenv(tc.key, tc.val)
				_, err := config.Load(context.Background())

				Convey("Then validation rejects it", func() {
					So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
				})
			})
		}
	})

	Convey("Given a client shard without a base URL", t, func() {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := []byte(`
shards:
  jp:
    server_id: 0
    flavor: client
`)
		So(os.WriteFile(path, content, 0o600), ShouldBeNil)
		t.Setenv("TRACKSTAR_CONFIG", path)

		Convey("When loading", func() {
			_, err := config.Load(context.Background())

			Convey("Then validation rejects it", func() {
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})
		})
	})
}
