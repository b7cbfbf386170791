// Package model contains domain models passed between layers.
package model

import "time"

// EventType categorizes a competitive event. Anomaly-spike scanning only
// applies to challenge events.
type EventType string

// Known event types.
const (
	EventChallenge   EventType = "challenge"
	EventVersus      EventType = "versus"
	EventLiveTry     EventType = "live_try"
	EventMissionLive EventType = "mission_live"
	EventFestival    EventType = "festival"
	EventMedley      EventType = "medley"
)

// EventMeta describes one time-boxed ranking period within a shard.
// Created once when first observed; immutable afterwards.
type EventMeta struct {
	ID      string
	Name    string
	Type    EventType
	StartAt time.Time
	EndAt   time.Time
}

// MonthlyMeta describes one monthly ranking period within a shard. Monthly
// leaderboards share the snapshot shape with events but derive no rank log
// or inactivity intervals.
type MonthlyMeta struct {
	ID      string
	Name    string
	StartAt time.Time
	EndAt   time.Time
}

// PlayerInfo is the registry portion of a snapshot row: identity fields
// refreshed on every poll, never the score.
type PlayerInfo struct {
	UID          int64
	Name         string
	Introduction string
	StaticRank   int
}

// PointReading is one immutable score observation. Re-observing an identical
// (player, value) pair is a no-op.
type PointReading struct {
	UID   int64
	Value int64
	At    time.Time
}

// Snapshot is one poll cycle's fetched leaderboard state.
type Snapshot struct {
	Players []PlayerInfo
	Points  []PointReading
}

// Player is the stored per-event registry row with current state.
type Player struct {
	UID          int64
	Name         string
	Introduction string
	StaticRank   int
	Score        int64
	LastUpdate   time.Time
}

// ActivityInterval is a detected inactivity gap between two consecutive
// score advances of one player.
type ActivityInterval struct {
	UID        int64
	Start      time.Time
	End        time.Time
	ScoreDelta int64
}

// RankTransition is a logged change in a player's leaderboard rank.
// Ranks beyond the tracked top-N are stored as the sentinel RankOutside.
type RankTransition struct {
	UID  int64
	At   time.Time
	From int
	To   int
}

// RankOutside marks a rank outside the tracked top-N, and seeds the rank
// log for players never ranked before.
const RankOutside = -1
