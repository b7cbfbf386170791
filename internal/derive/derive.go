// Package derive holds the derivation logic run inside the ingest
// transaction: inactivity interval detection and rank transition
// computation. Both are pure so the algorithms stay independently testable.
package derive

import (
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/domain/rank"
)

// Advance records one accepted score advance for a player: the monotonic
// update that moved score/lastUpdate forward.
type Advance struct {
	UID       int64
	OldScore  int64
	NewScore  int64
	OldUpdate time.Time
	NewUpdate time.Time
}

// Interval reports the inactivity interval implied by an advance, if the gap
// between the two update times meets the threshold. A gap exactly equal to
// the threshold counts as inactive.
func Interval(a Advance, threshold time.Duration) (model.ActivityInterval, bool) {
	if threshold <= 0 {
		return model.ActivityInterval{}, false
	}
	gap := a.NewUpdate.Sub(a.OldUpdate)
	if gap < threshold {
		return model.ActivityInterval{}, false
	}
	return model.ActivityInterval{
		UID:        a.UID,
		Start:      a.OldUpdate,
		End:        a.NewUpdate,
		ScoreDelta: a.NewScore - a.OldScore,
	}, true
}

// Transitions recomputes ranks over the whole leaderboard and returns a
// transition for every player whose capped rank differs from the most
// recently logged one. lastLogged maps UID to the previous to_rank; players
// missing from it are treated as never ranked (sentinel). The recomputation
// covers all standings because one player's advance can shift others'
// relative position even though their own score did not change.
func Transitions(standings []rank.Standing, lastLogged map[int64]int, topN int, at time.Time) []model.RankTransition {
	ranks := rank.Compute(standings)

	var out []model.RankTransition
	for _, s := range standings {
		capped := rank.Cap(ranks[s.UID], topN, model.RankOutside)
		prev, ok := lastLogged[s.UID]
		if !ok {
			prev = model.RankOutside
		}
		if capped == prev {
			continue
		}
		out = append(out, model.RankTransition{
			UID:  s.UID,
			At:   at,
			From: prev,
			To:   capped,
		})
	}
	return out
}
