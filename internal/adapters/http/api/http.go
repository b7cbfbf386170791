// Package api declares HTTP contracts and route registration helpers for
// the read-side query surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nijika-dev/trackstar/internal/analytics"
	"github.com/nijika-dev/trackstar/internal/store"
)

// Dependencies bundles the read operations the handlers need. Keeping an
// interface here keeps the handler layer loosely coupled to the analytics
// implementation.
type Dependencies interface {
	TrackedEvent(shard string) (string, bool)
	TopN(ctx context.Context, shard, eventID string, n int) ([]analytics.Entry, error)
	PlayerDetail(ctx context.Context, shard, eventID string, position int) (analytics.Detail, error)
	DailyBreakdown(ctx context.Context, shard, eventID string, uid int64, tz string) ([]analytics.DayBucket, error)
	MonthlyTop(ctx context.Context, shard string, n int) (analytics.MonthlyView, error)
}

// Server wires HTTP routes for the query API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	playerHandler      *PlayerHandler
	dailyHandler       *DailyHandler
	monthlyHandler     *MonthlyHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int, defaultTZ string) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		playerHandler:      NewPlayerHandler(deps),
		dailyHandler:       NewDailyHandler(deps, defaultTZ),
		monthlyHandler:     NewMonthlyHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/player", MetricsMiddleware(s.playerHandler.HandleGetPlayer, "player"))
	mux.HandleFunc("/daily", MetricsMiddleware(s.dailyHandler.HandleGetDaily, "daily"))
	mux.HandleFunc("/monthly", MetricsMiddleware(s.monthlyHandler.HandleGetMonthly, "monthly"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeQueryError translates analytics/store errors to HTTP statuses.
func writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}

// entryResponse is the JSON shape of one leaderboard entry.
type entryResponse struct {
	UID          int64  `json:"uid"`
	Name         string `json:"name"`
	Introduction string `json:"introduction,omitempty"`
	StaticRank   int    `json:"static_rank,omitempty"`
	Rank         int    `json:"rank"`
	Score        int64  `json:"score"`
	LastUpdate   string `json:"last_update"`
	Velocity     *int64 `json:"velocity"`
	VelocityRank int    `json:"velocity_rank,omitempty"`
}

func toEntryResponse(e analytics.Entry) entryResponse {
	out := entryResponse{
		UID:          e.Player.UID,
		Name:         e.Player.Name,
		Introduction: e.Player.Introduction,
		StaticRank:   e.Player.StaticRank,
		Rank:         e.Rank,
		Score:        e.Player.Score,
		LastUpdate:   e.Player.LastUpdate.UTC().Format(time.RFC3339),
		VelocityRank: e.VelocityRank,
	}
	if e.Velocity.Available {
		v := e.Velocity.Value
		out.Velocity = &v
	}
	return out
}
