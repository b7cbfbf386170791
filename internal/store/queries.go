package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
)

// TopPlayers returns the current leaderboard slice ordered by score
// descending, ties broken by earliest last update.
func (s *Store) TopPlayers(ctx context.Context, shard, eventID string, n int) ([]model.Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, name, introduction, static_rank, score, last_update FROM players
		WHERE shard = ? AND event_id = ?
		ORDER BY score DESC, last_update ASC
		LIMIT ?`, shard, eventID, n)
	if err != nil {
		return nil, fmt.Errorf("select top players: %w", err)
	}
	defer rows.Close()

	var out []model.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Player returns one registry row. Returns ErrNotFound for unknown players.
func (s *Store) Player(ctx context.Context, shard, eventID string, uid int64) (model.Player, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, name, introduction, static_rank, score, last_update FROM players
		WHERE shard = ? AND event_id = ? AND uid = ?`, shard, eventID, uid)

	var p model.Player
	var upd int64
	err := row.Scan(&p.UID, &p.Name, &p.Introduction, &p.StaticRank, &p.Score, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, ErrNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("select player: %w", err)
	}
	p.LastUpdate = time.Unix(upd, 0)
	return p, nil
}

// PlayerCount returns the number of players registered for the event.
func (s *Store) PlayerCount(ctx context.Context, shard, eventID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM players WHERE shard = ? AND event_id = ?`,
		shard, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

// MaxValueBefore returns the highest reading value observed strictly before
// cutoff, or 0 when the player has no earlier readings.
func (s *Store) MaxValueBefore(ctx context.Context, shard, eventID string, uid int64, cutoff time.Time) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(value), 0) FROM points
		WHERE shard = ? AND event_id = ? AND uid = ? AND at < ?`,
		shard, eventID, uid, cutoff.Unix()).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("max value before: %w", err)
	}
	return v, nil
}

// LatestReadingBefore returns the newest reading observed strictly before
// cutoff. Returns ErrNotFound when the player has no earlier readings.
func (s *Store) LatestReadingBefore(ctx context.Context, shard, eventID string, uid int64, cutoff time.Time) (model.PointReading, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, value, at FROM points
		WHERE shard = ? AND event_id = ? AND uid = ? AND at < ?
		ORDER BY at DESC
		LIMIT 1`, shard, eventID, uid, cutoff.Unix())

	var r model.PointReading
	var at int64
	err := row.Scan(&r.UID, &r.Value, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PointReading{}, ErrNotFound
	}
	if err != nil {
		return model.PointReading{}, fmt.Errorf("select latest reading: %w", err)
	}
	r.At = time.Unix(at, 0)
	return r, nil
}

// RecentReadings returns up to limit readings, newest first.
func (s *Store) RecentReadings(ctx context.Context, shard, eventID string, uid int64, limit int) ([]model.PointReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, value, at FROM points
		WHERE shard = ? AND event_id = ? AND uid = ?
		ORDER BY at DESC
		LIMIT ?`, shard, eventID, uid, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent readings: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

// ReadingsBetween returns readings with at in [from, to), oldest first.
func (s *Store) ReadingsBetween(ctx context.Context, shard, eventID string, uid int64, from, to time.Time) ([]model.PointReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, value, at FROM points
		WHERE shard = ? AND event_id = ? AND uid = ? AND at >= ? AND at < ?
		ORDER BY at ASC`, shard, eventID, uid, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("select readings: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

// CountReadingsSince returns the number of readings at or after since.
func (s *Store) CountReadingsSince(ctx context.Context, shard, eventID string, uid int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM points
		WHERE shard = ? AND event_id = ? AND uid = ? AND at >= ?`,
		shard, eventID, uid, since.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

// Intervals returns all detected inactivity intervals for a player, oldest
// first.
func (s *Store) Intervals(ctx context.Context, shard, eventID string, uid int64) ([]model.ActivityInterval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, start_at, end_at, score_delta FROM intervals
		WHERE shard = ? AND event_id = ? AND uid = ?
		ORDER BY start_at ASC`, shard, eventID, uid)
	if err != nil {
		return nil, fmt.Errorf("select intervals: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityInterval
	for rows.Next() {
		var iv model.ActivityInterval
		var start, end int64
		if err := rows.Scan(&iv.UID, &start, &end, &iv.ScoreDelta); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		iv.Start = time.Unix(start, 0)
		iv.End = time.Unix(end, 0)
		out = append(out, iv)
	}
	return out, rows.Err()
}

// TransitionsBetween returns all rank transitions for the event with at in
// (from, to], oldest first, across every player.
func (s *Store) TransitionsBetween(ctx context.Context, shard, eventID string, from, to time.Time) ([]model.RankTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, at, from_rank, to_rank FROM rank_log
		WHERE shard = ? AND event_id = ? AND at > ? AND at <= ?
		ORDER BY at ASC`, shard, eventID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("select transitions: %w", err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// PlayerTransitions returns the full rank history of one player, oldest
// first, seed rows included.
func (s *Store) PlayerTransitions(ctx context.Context, shard, eventID string, uid int64) ([]model.RankTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, at, from_rank, to_rank FROM rank_log
		WHERE shard = ? AND event_id = ? AND uid = ?
		ORDER BY at ASC`, shard, eventID, uid)
	if err != nil {
		return nil, fmt.Errorf("select player transitions: %w", err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// EntryTimes returns the times the player entered the tracked top-N from
// outside, newest first.
func (s *Store) EntryTimes(ctx context.Context, shard, eventID string, uid int64) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at FROM rank_log
		WHERE shard = ? AND event_id = ? AND uid = ? AND from_rank < 1 AND to_rank >= 1
		ORDER BY at DESC`, shard, eventID, uid)
	if err != nil {
		return nil, fmt.Errorf("select entry times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var at int64
		if err := rows.Scan(&at); err != nil {
			return nil, fmt.Errorf("scan entry time: %w", err)
		}
		out = append(out, time.Unix(at, 0))
	}
	return out, rows.Err()
}

func scanPlayer(rows *sql.Rows) (model.Player, error) {
	var p model.Player
	var upd int64
	if err := rows.Scan(&p.UID, &p.Name, &p.Introduction, &p.StaticRank, &p.Score, &upd); err != nil {
		return model.Player{}, fmt.Errorf("scan player: %w", err)
	}
	p.LastUpdate = time.Unix(upd, 0)
	return p, nil
}

func scanReadings(rows *sql.Rows) ([]model.PointReading, error) {
	var out []model.PointReading
	for rows.Next() {
		var r model.PointReading
		var at int64
		if err := rows.Scan(&r.UID, &r.Value, &at); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.At = time.Unix(at, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanTransitions(rows *sql.Rows) ([]model.RankTransition, error) {
	var out []model.RankTransition
	for rows.Next() {
		var t model.RankTransition
		var at int64
		if err := rows.Scan(&t.UID, &at, &t.From, &t.To); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.At = time.Unix(at, 0)
		out = append(out, t)
	}
	return out, rows.Err()
}
