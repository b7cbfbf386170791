package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
)

// HourNotApplicable marks histogram hours outside the event lifetime.
const HourNotApplicable = -1

// DayBucket is one local-calendar day of a player's event activity.
type DayBucket struct {
	Date        time.Time
	ScoreDelta  int64
	Changes     int
	Hourly      [24]int
	Inactivity  time.Duration
	Intervals   []model.ActivityInterval
	Transitions []model.RankTransition
}

// DailyBreakdown partitions the event lifetime into local-midnight day
// buckets for one player. Hours outside the event window are marked not
// applicable; rank transitions exclude the sentinel seed rows written at
// event start.
func (s *Service) DailyBreakdown(ctx context.Context, shard, eventID string, uid int64, tz string) ([]DayBucket, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrQuery, tz, err)
	}
	meta, err := s.store.Event(ctx, shard, eventID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Player(ctx, shard, eventID, uid); err != nil {
		return nil, err
	}

	intervals, err := s.store.Intervals(ctx, shard, eventID, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: intervals: %w", ErrQuery, err)
	}
	transitions, err := s.store.PlayerTransitions(ctx, shard, eventID, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: transitions: %w", ErrQuery, err)
	}

	end := meta.EndAt
	if now := s.now(); now.Before(end) {
		end = now
	}

	var out []DayBucket
	for day := midnightOf(meta.StartAt, loc); day.Before(end); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		b := DayBucket{Date: day}

		readings, err := s.store.ReadingsBetween(ctx, shard, eventID, uid, day, next)
		if err != nil {
			return nil, fmt.Errorf("%w: readings: %w", ErrQuery, err)
		}
		b.Changes = len(readings)
		if len(readings) > 0 {
			base, err := s.store.MaxValueBefore(ctx, shard, eventID, uid, day)
			if err != nil {
				return nil, fmt.Errorf("%w: baseline: %w", ErrQuery, err)
			}
			b.ScoreDelta = readings[len(readings)-1].Value - base
		}

		for h := 0; h < 24; h++ {
			hStart := day.Add(time.Duration(h) * time.Hour)
			hEnd := hStart.Add(time.Hour)
			if hEnd.Before(meta.StartAt) || !hStart.Before(meta.EndAt) {
				b.Hourly[h] = HourNotApplicable
				continue
			}
			for _, r := range readings {
				if !r.At.Before(hStart) && r.At.Before(hEnd) {
					b.Hourly[h]++
				}
			}
		}

		for _, iv := range intervals {
			if overlap := overlapDuration(iv.Start, iv.End, day, next); overlap > 0 {
				b.Inactivity += overlap
				b.Intervals = append(b.Intervals, iv)
			}
		}
		for _, t := range transitions {
			if t.At.Equal(meta.StartAt) {
				continue
			}
			if !t.At.Before(day) && t.At.Before(next) {
				b.Transitions = append(b.Transitions, t)
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func midnightOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

func overlapDuration(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}
