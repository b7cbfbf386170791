package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/pkg/metrics"
)

// monthlyStartGrace lets a monthly be selected as current slightly before it
// starts, so the first poll does not miss the opening minutes.
const monthlyStartGrace = 4 * time.Hour

// MonthlyIngestResult summarizes the effects of one monthly snapshot
// ingestion.
type MonthlyIngestResult struct {
	PlayersUpserted  int
	ReadingsInserted int
	Advanced         int
}

// EnsureMonthly creates the monthly row if absent. Idempotent; an existing
// monthly is never modified.
func (s *Store) EnsureMonthly(ctx context.Context, shard string, meta model.MonthlyMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monthlies (shard, id, name, start_at, end_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (shard, id) DO NOTHING`,
		shard, meta.ID, meta.Name, meta.StartAt.Unix(), meta.EndAt.Unix())
	if err != nil {
		return fmt.Errorf("ensure monthly: %w", err)
	}
	return nil
}

// RecentMonthly returns the shard's newest monthly whose start falls within
// the grace horizon of now. Returns ErrNotFound when none qualifies.
func (s *Store) RecentMonthly(ctx context.Context, shard string, now time.Time) (model.MonthlyMeta, error) {
	var (
		meta       model.MonthlyMeta
		start, end int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, start_at, end_at FROM monthlies
		WHERE shard = ? AND start_at <= ?
		ORDER BY start_at DESC
		LIMIT 1`, shard, now.Add(monthlyStartGrace).Unix()).
		Scan(&meta.ID, &meta.Name, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MonthlyMeta{}, ErrNotFound
	}
	if err != nil {
		return model.MonthlyMeta{}, fmt.Errorf("select recent monthly: %w", err)
	}
	meta.StartAt = time.Unix(start, 0)
	meta.EndAt = time.Unix(end, 0)
	return meta, nil
}

// IngestMonthlySnapshot applies one monthly poll in a single transaction:
// registry upserts, point inserts with (player, value) dedupe, and monotonic
// score advances. Monthlies derive no rank log or intervals.
func (s *Store) IngestMonthlySnapshot(ctx context.Context, shard, monthlyID string, snap model.Snapshot, observedAt time.Time) (MonthlyIngestResult, error) {
	started := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MonthlyIngestResult{}, fmt.Errorf("%w: begin: %w", ErrIngest, err)
	}
	defer func() { _ = tx.Rollback() }()

	var monthlyStart int64
	err = tx.QueryRowContext(ctx, `SELECT start_at FROM monthlies WHERE shard = ? AND id = ?`,
		shard, monthlyID).Scan(&monthlyStart)
	if errors.Is(err, sql.ErrNoRows) {
		return MonthlyIngestResult{}, fmt.Errorf("%w: monthly %s/%s", ErrNotFound, shard, monthlyID)
	}
	if err != nil {
		return MonthlyIngestResult{}, fmt.Errorf("%w: select monthly: %w", ErrIngest, err)
	}

	var res MonthlyIngestResult
	for _, p := range snap.Players {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO monthly_players (shard, monthly_id, uid, name, introduction, static_rank, score, last_update)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT (shard, monthly_id, uid) DO UPDATE SET
				name = excluded.name,
				introduction = excluded.introduction,
				static_rank = excluded.static_rank`,
			shard, monthlyID, p.UID, p.Name, p.Introduction, p.StaticRank, monthlyStart)
		if err != nil {
			return MonthlyIngestResult{}, fmt.Errorf("%w: upsert monthly player %d: %w", ErrIngest, p.UID, err)
		}
		res.PlayersUpserted++
	}

	ordered := make([]model.PointReading, len(snap.Points))
	copy(ordered, snap.Points)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].At.Before(ordered[j].At) })

	for _, pt := range ordered {
		ins, err := tx.ExecContext(ctx, `
			INSERT INTO monthly_points (shard, monthly_id, uid, value, at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (shard, monthly_id, uid, value) DO NOTHING`,
			shard, monthlyID, pt.UID, pt.Value, pt.At.Unix())
		if err != nil {
			return MonthlyIngestResult{}, fmt.Errorf("%w: insert monthly reading: %w", ErrIngest, err)
		}
		if n, err := ins.RowsAffected(); err == nil && n > 0 {
			res.ReadingsInserted++
		}

		var oldScore int64
		err = tx.QueryRowContext(ctx, `
			SELECT score FROM monthly_players
			WHERE shard = ? AND monthly_id = ? AND uid = ?`,
			shard, monthlyID, pt.UID).Scan(&oldScore)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return MonthlyIngestResult{}, fmt.Errorf("%w: select monthly player %d: %w", ErrIngest, pt.UID, err)
		}
		if pt.Value <= oldScore {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE monthly_players SET score = ?, last_update = ?
			WHERE shard = ? AND monthly_id = ? AND uid = ?`,
			pt.Value, pt.At.Unix(), shard, monthlyID, pt.UID); err != nil {
			return MonthlyIngestResult{}, fmt.Errorf("%w: advance monthly player %d: %w", ErrIngest, pt.UID, err)
		}
		res.Advanced++
	}

	if err := tx.Commit(); err != nil {
		return MonthlyIngestResult{}, fmt.Errorf("%w: commit: %w", ErrIngest, err)
	}

	metrics.RecordIngestLatency(float64(time.Since(started).Milliseconds()))
	metrics.RecordPlayersUpserted(res.PlayersUpserted)
	metrics.RecordReadingsInserted(res.ReadingsInserted)
	return res, nil
}

// TopMonthlyPlayers returns the monthly leaderboard slice ordered by score
// descending, ties broken by earliest last update.
func (s *Store) TopMonthlyPlayers(ctx context.Context, shard, monthlyID string, n int) ([]model.Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, name, introduction, static_rank, score, last_update FROM monthly_players
		WHERE shard = ? AND monthly_id = ?
		ORDER BY score DESC, last_update ASC
		LIMIT ?`, shard, monthlyID, n)
	if err != nil {
		return nil, fmt.Errorf("select top monthly players: %w", err)
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
