// Package rank implements leaderboard rank computation.
//
// Ranks follow competition ordering: tied scores share a rank and the next
// distinct score's rank increments by the number of tied entries, so a
// two-way tie for first is followed by rank 3.
package rank

import (
	"sort"
	"time"
)

// Standing is one ranked row: a score with its tie-break timestamp.
type Standing struct {
	UID        int64
	Score      int64
	LastUpdate time.Time
}

// Compute returns the rank of every standing, keyed by UID. Ordering is
// score descending; LastUpdate ascending breaks ties for stable iteration
// only and does not affect the rank value.
func Compute(standings []Standing) map[int64]int {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].LastUpdate.Before(sorted[j].LastUpdate)
	})

	ranks := make(map[int64]int, len(sorted))
	for i, s := range sorted {
		if i > 0 && s.Score == sorted[i-1].Score {
			ranks[s.UID] = ranks[sorted[i-1].UID]
			continue
		}
		ranks[s.UID] = i + 1
	}
	return ranks
}

// Cap maps ranks beyond topN (or invalid ranks) to the sentinel value.
func Cap(r, topN, sentinel int) int {
	if r < 1 || r > topN {
		return sentinel
	}
	return r
}

// Inside reports whether r is a tracked top-N rank rather than the sentinel.
func Inside(r, topN int) bool {
	return r >= 1 && r <= topN
}
