package notify

import (
	"context"

	"github.com/nijika-dev/trackstar/pkg/logger"
)

// LogSink writes events to the structured log. It is the default sink when
// no external delivery is wired.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a logging sink.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Named("notify.sink")
	}
	return &LogSink{log: l}
}

func (s *LogSink) OnRankChange(ctx context.Context, ev RankChangeEvent) error {
	s.log.Info(ctx, "rank changes",
		logger.String("id", ev.ID),
		logger.String("shard", ev.Shard),
		logger.String("event", ev.EventID),
		logger.Int("changes", len(ev.Changes)),
	)
	return nil
}

func (s *LogSink) OnAnomalySpike(ctx context.Context, ev AnomalySpikeEvent) error {
	s.log.Warn(ctx, "anomaly spikes",
		logger.String("id", ev.ID),
		logger.String("shard", ev.Shard),
		logger.String("event", ev.EventID),
		logger.Int("spikes", len(ev.Spikes)),
	)
	return nil
}
