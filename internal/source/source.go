// Package source normalizes remote leaderboard fetches into snapshots.
//
// Two interchangeable flavors exist: a public JSON mirror and the direct
// game-client API. The engine depends only on the Adapter contract; the
// flavor is selected per shard configuration.
package source

import (
	"context"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
)

// Adapter fetches the current event and leaderboard snapshots for one shard.
// Every call is bounded by the adapter's timeout and fixed retry budget; any
// returned error is transient from the caller's point of view unless it is
// one of this package's sentinel kinds.
type Adapter interface {
	// RecentEventID returns the id of the shard's most recent event.
	// Returns ErrNoEvent when the shard has no running or upcoming event.
	RecentEventID(ctx context.Context) (string, error)

	// EventMeta resolves metadata for an event id.
	EventMeta(ctx context.Context, eventID string) (model.EventMeta, error)

	// Snapshot fetches the current top players and their point readings.
	// hint is the sampling-interval hint forwarded to the source: fine
	// granularity backfills history, coarse granularity returns only the
	// latest readings.
	Snapshot(ctx context.Context, eventID string, hint time.Duration) (model.Snapshot, error)
}

// MonthlySource is the optional monthly-leaderboard capability. Only the
// client flavor implements it; the public mirror does not serve monthlys.
// Callers discover the capability with a type assertion on the Adapter.
type MonthlySource interface {
	// RecentMonthlies returns the monthly periods the source currently
	// lists, running and upcoming alike.
	RecentMonthlies(ctx context.Context) ([]model.MonthlyMeta, error)

	// MonthlySnapshot fetches the current monthly top players and their
	// point readings.
	MonthlySnapshot(ctx context.Context, monthlyID string) (model.Snapshot, error)
}

// Config carries the per-shard settings shared by both flavors.
type Config struct {
	ServerID  int
	BaseURL   string
	UserID    string
	Signature string
	Timeout   time.Duration
	Retries   int
}

// Default fetch bounds.
const (
	defaultTimeout = 4 * time.Second
	defaultRetries = 2
)
