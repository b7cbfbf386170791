package analytics

import (
	"context"
	"fmt"

	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/domain/rank"
)

// MonthlyEntry is one monthly leaderboard row. Monthlies carry no velocity;
// the source serves no backfilled history to derive one from.
type MonthlyEntry struct {
	Player model.Player
	Rank   int
}

// MonthlyView is the current monthly leaderboard slice with its period.
type MonthlyView struct {
	Monthly model.MonthlyMeta
	Entries []MonthlyEntry
}

// MonthlyTop returns the shard's current monthly leaderboard. Returns
// store.ErrNotFound when the shard tracks no monthly.
func (s *Service) MonthlyTop(ctx context.Context, shard string, n int) (MonthlyView, error) {
	meta, err := s.store.RecentMonthly(ctx, shard, s.now())
	if err != nil {
		return MonthlyView{}, err
	}
	players, err := s.store.TopMonthlyPlayers(ctx, shard, meta.ID, n)
	if err != nil {
		return MonthlyView{}, fmt.Errorf("%w: top monthly players: %w", ErrQuery, err)
	}

	standings := make([]rank.Standing, len(players))
	for i, p := range players {
		standings[i] = rank.Standing{UID: p.UID, Score: p.Score, LastUpdate: p.LastUpdate}
	}
	ranks := rank.Compute(standings)

	view := MonthlyView{Monthly: meta, Entries: make([]MonthlyEntry, len(players))}
	for i, p := range players {
		view.Entries[i] = MonthlyEntry{Player: p, Rank: ranks[p.UID]}
	}
	return view, nil
}
