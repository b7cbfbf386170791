package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nijika-dev/trackstar/internal/analytics"
)

// MonthlyHandler handles monthly leaderboard requests.
type MonthlyHandler struct {
	deps     Dependencies
	maxLimit int
}

// NewMonthlyHandler creates a new monthly handler.
func NewMonthlyHandler(deps Dependencies, maxLimit int) *MonthlyHandler {
	return &MonthlyHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetMonthly handles GET /monthly?shard=S&limit=N requests.
func (h *MonthlyHandler) HandleGetMonthly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	shard := r.URL.Query().Get("shard")
	if shard == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrMissingShard)
		return
	}
	n := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		n = v
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", ErrBadRequest)
		return
	}

	view, err := h.deps.MonthlyTop(r.Context(), shard, n)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthlyResponse(view))
}

// monthlyResponse is the JSON shape of the monthly leaderboard view.
type monthlyResponse struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	StartAt string                 `json:"start_at"`
	EndAt   string                 `json:"end_at"`
	Players []monthlyEntryResponse `json:"players"`
}

type monthlyEntryResponse struct {
	UID          int64  `json:"uid"`
	Name         string `json:"name"`
	Introduction string `json:"introduction,omitempty"`
	Rank         int    `json:"rank"`
	Score        int64  `json:"score"`
	LastUpdate   string `json:"last_update"`
}

func toMonthlyResponse(v analytics.MonthlyView) monthlyResponse {
	out := monthlyResponse{
		ID:      v.Monthly.ID,
		Name:    v.Monthly.Name,
		StartAt: v.Monthly.StartAt.UTC().Format(time.RFC3339),
		EndAt:   v.Monthly.EndAt.UTC().Format(time.RFC3339),
		Players: make([]monthlyEntryResponse, len(v.Entries)),
	}
	for i, e := range v.Entries {
		out.Players[i] = monthlyEntryResponse{
			UID:          e.Player.UID,
			Name:         e.Player.Name,
			Introduction: e.Player.Introduction,
			Rank:         e.Rank,
			Score:        e.Player.Score,
			LastUpdate:   e.Player.LastUpdate.UTC().Format(time.RFC3339),
		}
	}
	return out
}
