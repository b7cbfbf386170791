package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nijika-dev/trackstar/internal/derive"
	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/domain/rank"
	"github.com/nijika-dev/trackstar/pkg/metrics"
)

// IngestResult summarizes the effects of one snapshot ingestion.
type IngestResult struct {
	PlayersUpserted  int
	ReadingsInserted int
	Advanced         []derive.Advance
	Intervals        []model.ActivityInterval
	Transitions      []model.RankTransition
}

// IngestSnapshot applies one poll cycle's snapshot in a single transaction:
// player registry upserts, point reading inserts with (player, value)
// dedupe, monotonic score advances, and the derivation pass (inactivity
// intervals plus one full rank recomputation for the whole batch). The call
// succeeds or fails as a unit; a failure leaves prior state untouched.
func (s *Store) IngestSnapshot(ctx context.Context, shard, eventID string, snap model.Snapshot, observedAt time.Time) (IngestResult, error) {
	started := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: begin: %w", ErrIngest, err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventStart int64
	err = tx.QueryRowContext(ctx, `SELECT start_at FROM events WHERE shard = ? AND id = ?`,
		shard, eventID).Scan(&eventStart)
	if errors.Is(err, sql.ErrNoRows) {
		return IngestResult{}, fmt.Errorf("%w: event %s/%s", ErrNotFound, shard, eventID)
	}
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: select event: %w", ErrIngest, err)
	}

	var res IngestResult
	if err := s.upsertPlayers(ctx, tx, shard, eventID, snap.Players, eventStart, &res); err != nil {
		return IngestResult{}, err
	}
	if err := s.applyReadings(ctx, tx, shard, eventID, snap.Points, &res); err != nil {
		return IngestResult{}, err
	}
	if len(res.Advanced) > 0 {
		if err := s.logTransitions(ctx, tx, shard, eventID, observedAt, &res); err != nil {
			return IngestResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return IngestResult{}, fmt.Errorf("%w: commit: %w", ErrIngest, err)
	}

	metrics.RecordIngestLatency(float64(time.Since(started).Milliseconds()))
	metrics.RecordPlayersUpserted(res.PlayersUpserted)
	metrics.RecordReadingsInserted(res.ReadingsInserted)
	metrics.RecordActivityIntervals(len(res.Intervals))
	metrics.RecordRankTransitions(len(res.Transitions))
	return res, nil
}

// upsertPlayers refreshes the registry: create-if-absent with score 0 and
// last_update at event start, metadata refresh on existing rows, and a
// sentinel seed row in the rank log for first sightings.
func (s *Store) upsertPlayers(ctx context.Context, tx *sql.Tx, shard, eventID string, players []model.PlayerInfo, eventStart int64, res *IngestResult) error {
	for _, p := range players {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO players (shard, event_id, uid, name, introduction, static_rank, score, last_update)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT (shard, event_id, uid) DO UPDATE SET
				name = excluded.name,
				introduction = excluded.introduction,
				static_rank = excluded.static_rank`,
			shard, eventID, p.UID, p.Name, p.Introduction, p.StaticRank, eventStart)
		if err != nil {
			return fmt.Errorf("%w: upsert player %d: %w", ErrIngest, p.UID, err)
		}

		// Seed the rank log so the first real transition has a baseline.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rank_log (shard, event_id, uid, at, from_rank, to_rank)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (shard, event_id, uid, at) DO NOTHING`,
			shard, eventID, p.UID, eventStart, model.RankOutside, model.RankOutside)
		if err != nil {
			return fmt.Errorf("%w: seed rank %d: %w", ErrIngest, p.UID, err)
		}
		res.PlayersUpserted++
	}
	return nil
}

// applyReadings inserts point readings oldest-first and advances player
// state for every reading that exceeds the stored score. Regressions and
// duplicates are silent no-ops. Inactivity intervals are detected per
// accepted advance, so a backfilled batch yields one interval per
// qualifying gap.
func (s *Store) applyReadings(ctx context.Context, tx *sql.Tx, shard, eventID string, points []model.PointReading, res *IngestResult) error {
	ordered := make([]model.PointReading, len(points))
	copy(ordered, points)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].At.Before(ordered[j].At) })

	for _, pt := range ordered {
		ins, err := tx.ExecContext(ctx, `
			INSERT INTO points (shard, event_id, uid, value, at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (shard, event_id, uid, value) DO NOTHING`,
			shard, eventID, pt.UID, pt.Value, pt.At.Unix())
		if err != nil {
			return fmt.Errorf("%w: insert reading: %w", ErrIngest, err)
		}
		if n, err := ins.RowsAffected(); err == nil && n > 0 {
			res.ReadingsInserted++
		}

		var oldScore, oldUpdate int64
		err = tx.QueryRowContext(ctx, `
			SELECT score, last_update FROM players
			WHERE shard = ? AND event_id = ? AND uid = ?`,
			shard, eventID, pt.UID).Scan(&oldScore, &oldUpdate)
		if errors.Is(err, sql.ErrNoRows) {
			// Reading for a player the snapshot did not register; skip.
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: select player %d: %w", ErrIngest, pt.UID, err)
		}
		if pt.Value <= oldScore {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE players SET score = ?, last_update = ?
			WHERE shard = ? AND event_id = ? AND uid = ?`,
			pt.Value, pt.At.Unix(), shard, eventID, pt.UID); err != nil {
			return fmt.Errorf("%w: advance player %d: %w", ErrIngest, pt.UID, err)
		}

		adv := derive.Advance{
			UID:       pt.UID,
			OldScore:  oldScore,
			NewScore:  pt.Value,
			OldUpdate: time.Unix(oldUpdate, 0),
			NewUpdate: pt.At,
		}
		res.Advanced = append(res.Advanced, adv)

		if iv, ok := derive.Interval(adv, s.inactivity); ok {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO intervals (shard, event_id, uid, start_at, end_at, score_delta)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (shard, event_id, uid, start_at) DO NOTHING`,
				shard, eventID, iv.UID, iv.Start.Unix(), iv.End.Unix(), iv.ScoreDelta); err != nil {
				return fmt.Errorf("%w: insert interval %d: %w", ErrIngest, iv.UID, err)
			}
			res.Intervals = append(res.Intervals, iv)
		}
	}
	return nil
}

// logTransitions runs the batched rank recomputation over the whole
// leaderboard and appends transitions where the capped rank moved.
func (s *Store) logTransitions(ctx context.Context, tx *sql.Tx, shard, eventID string, observedAt time.Time, res *IngestResult) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT uid, score, last_update FROM players
		WHERE shard = ? AND event_id = ?`, shard, eventID)
	if err != nil {
		return fmt.Errorf("%w: select standings: %w", ErrIngest, err)
	}
	var standings []rank.Standing
	for rows.Next() {
		var st rank.Standing
		var upd int64
		if err := rows.Scan(&st.UID, &st.Score, &upd); err != nil {
			_ = rows.Close()
			return fmt.Errorf("%w: scan standing: %w", ErrIngest, err)
		}
		st.LastUpdate = time.Unix(upd, 0)
		standings = append(standings, st)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("%w: standings: %w", ErrIngest, err)
	}

	logged, err := s.lastLoggedRanks(ctx, tx, shard, eventID)
	if err != nil {
		return err
	}

	transitions := derive.Transitions(standings, logged, s.topN, observedAt)
	for _, t := range transitions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rank_log (shard, event_id, uid, at, from_rank, to_rank)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (shard, event_id, uid, at) DO UPDATE SET to_rank = excluded.to_rank`,
			shard, eventID, t.UID, t.At.Unix(), t.From, t.To); err != nil {
			return fmt.Errorf("%w: log transition %d: %w", ErrIngest, t.UID, err)
		}
	}
	res.Transitions = transitions
	return nil
}

// lastLoggedRanks returns the most recently logged to_rank per player.
func (s *Store) lastLoggedRanks(ctx context.Context, tx *sql.Tx, shard, eventID string) (map[int64]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT r.uid, r.to_rank FROM rank_log r
		WHERE r.shard = ? AND r.event_id = ? AND r.at = (
			SELECT MAX(r2.at) FROM rank_log r2
			WHERE r2.shard = r.shard AND r2.event_id = r.event_id AND r2.uid = r.uid
		)`, shard, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: select logged ranks: %w", ErrIngest, err)
	}
	defer rows.Close()

	logged := make(map[int64]int)
	for rows.Next() {
		var uid int64
		var to int
		if err := rows.Scan(&uid, &to); err != nil {
			return nil, fmt.Errorf("%w: scan logged rank: %w", ErrIngest, err)
		}
		logged[uid] = to
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: logged ranks: %w", ErrIngest, err)
	}
	return logged, nil
}
