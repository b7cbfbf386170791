// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import "context"

// ShardConfig describes one tracked game-server region and how to fetch it.
type ShardConfig struct {
	// ServerID is the numeric region index used by the remote source.
	ServerID int `koanf:"server_id"`

	// Flavor selects the source adapter: "mirror" or "client".
	Flavor string `koanf:"flavor"`

	// BaseURL overrides the source endpoint. Empty uses the flavor default.
	BaseURL string `koanf:"base_url"`

	// UserID and Signature authenticate the client flavor. Unused by mirror.
	UserID    string `koanf:"user_id"`
	Signature string `koanf:"signature"`
}

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StorePath locates the SQLite database file.
	StorePath string `koanf:"store_path"`

	// Shards maps shard names to their fetch configuration.
	Shards map[string]ShardConfig `koanf:"shards"`

	// TopN is the number of leaderboard positions tracked per event.
	TopN int `koanf:"top_n"`

	// PollIntervalSeconds is the fast ingest cadence per shard.
	PollIntervalSeconds int `koanf:"poll_interval_seconds"`

	// EventCheckIntervalSeconds is the slow event-switch discovery cadence.
	EventCheckIntervalSeconds int `koanf:"event_check_interval_seconds"`

	// InactivityThresholdSeconds is the minimum gap between two score
	// advances that records an inactivity interval. Inclusive.
	InactivityThresholdSeconds int `koanf:"inactivity_threshold_seconds"`

	// VelocityWindowSeconds is the trailing window for score velocity.
	VelocityWindowSeconds int `koanf:"velocity_window_seconds"`

	// SpikeThreshold is the single-delta score jump that flags an anomaly
	// for challenge events.
	SpikeThreshold int64 `koanf:"spike_threshold"`

	// RecentDeltaCount bounds the recent point-to-point delta listing.
	RecentDeltaCount int `koanf:"recent_delta_count"`

	// FetchTimeoutSeconds bounds each remote fetch.
	FetchTimeoutSeconds int `koanf:"fetch_timeout_seconds"`

	// FetchRetries is the fixed retry budget per fetch.
	FetchRetries int `koanf:"fetch_retries"`

	// BackfillHintMS and SteadyHintMS are the sampling-interval hints sent to
	// the source: fine-grained on the first cycle after an event switch,
	// coarse afterwards.
	BackfillHintMS int64 `koanf:"backfill_hint_ms"`
	SteadyHintMS   int64 `koanf:"steady_hint_ms"`

	// Timezone names the location used for daily breakdown buckets.
	Timezone string `koanf:"timezone"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// Default configuration values. Thresholds follow the observed event pacing:
// 20 minutes of silence counts as a break, a 16000-point single jump on a
// challenge event is suspicious.
const (
	defaultTopN                = 10
	defaultPollInterval        = 60
	defaultEventCheckInterval  = 3600
	defaultInactivityThreshold = 1200
	defaultVelocityWindow      = 3600
	defaultSpikeThreshold      = 16000
	defaultRecentDeltaCount    = 20
	defaultFetchTimeout        = 4
	defaultFetchRetries        = 2
	defaultBackfillHintMS      = 60_000
	defaultSteadyHintMS        = 864_000_000
)

// New creates a Config using defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:  "info",
		Addr:      ":9080",
		StorePath: "trackstar.db",
		Shards: map[string]ShardConfig{
			"jp": {ServerID: 0, Flavor: "mirror"},
			"en": {ServerID: 1, Flavor: "mirror"},
			"tw": {ServerID: 2, Flavor: "mirror"},
			"cn": {ServerID: 3, Flavor: "mirror"},
		},
		TopN:                       defaultTopN,
		PollIntervalSeconds:        defaultPollInterval,
		EventCheckIntervalSeconds:  defaultEventCheckInterval,
		InactivityThresholdSeconds: defaultInactivityThreshold,
		VelocityWindowSeconds:      defaultVelocityWindow,
		SpikeThreshold:             defaultSpikeThreshold,
		RecentDeltaCount:           defaultRecentDeltaCount,
		FetchTimeoutSeconds:        defaultFetchTimeout,
		FetchRetries:               defaultFetchRetries,
		BackfillHintMS:             defaultBackfillHintMS,
		SteadyHintMS:               defaultSteadyHintMS,
		Timezone:                   "Asia/Hong_Kong",
		MaxLeaderboardLimit:        100,
	}
}
