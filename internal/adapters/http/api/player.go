package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nijika-dev/trackstar/internal/analytics"
)

// PlayerHandler handles per-rank detail requests.
type PlayerHandler struct {
	deps Dependencies
}

// NewPlayerHandler creates a new player detail handler.
func NewPlayerHandler(deps Dependencies) *PlayerHandler {
	return &PlayerHandler{deps: deps}
}

type deltaResponse struct {
	At    string `json:"at"`
	Value int64  `json:"value"`
}

type windowStatsResponse struct {
	WindowSeconds  int64   `json:"window_seconds"`
	Changes        int     `json:"changes"`
	MeanGapSeconds float64 `json:"mean_gap_seconds"`
	MeanDelta      float64 `json:"mean_delta"`
}

type intervalResponse struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	ScoreDelta int64  `json:"score_delta"`
}

type detailResponse struct {
	Entry          entryResponse         `json:"entry"`
	PointUpDelta   int64                 `json:"point_up_delta"`
	PointDownDelta int64                 `json:"point_down_delta"`
	RecentDeltas   []deltaResponse       `json:"recent_deltas"`
	WindowStats    []windowStatsResponse `json:"window_stats"`
	OpenInterval   *intervalResponse     `json:"open_interval,omitempty"`
}

// HandleGetPlayer handles GET /player?shard=S&rank=N requests.
func (h *PlayerHandler) HandleGetPlayer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	shard := r.URL.Query().Get("shard")
	if shard == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrMissingShard)
		return
	}
	position, err := strconv.Atoi(r.URL.Query().Get("rank"))
	if err != nil || position < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	eventID, ok := h.deps.TrackedEvent(shard)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrUnknownShard)
		return
	}
	d, err := h.deps.PlayerDetail(r.Context(), shard, eventID, position)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailResponse(d))
}

func toDetailResponse(d analytics.Detail) detailResponse {
	out := detailResponse{
		Entry:          toEntryResponse(d.Entry),
		PointUpDelta:   d.PointUpDelta,
		PointDownDelta: d.PointDownDelta,
	}
	for _, delta := range d.RecentDeltas {
		out.RecentDeltas = append(out.RecentDeltas, deltaResponse{
			At:    delta.At.UTC().Format(time.RFC3339),
			Value: delta.Value,
		})
	}
	for _, ws := range d.WindowStats {
		out.WindowStats = append(out.WindowStats, windowStatsResponse{
			WindowSeconds:  int64(ws.Window / time.Second),
			Changes:        ws.Changes,
			MeanGapSeconds: ws.MeanGap.Seconds(),
			MeanDelta:      ws.MeanDelta,
		})
	}
	if d.OpenInterval != nil {
		out.OpenInterval = &intervalResponse{
			Start:      d.OpenInterval.Start.UTC().Format(time.RFC3339),
			End:        d.OpenInterval.End.UTC().Format(time.RFC3339),
			ScoreDelta: d.OpenInterval.ScoreDelta,
		}
	}
	return out
}
