package api

import (
	"net/http"
	"strconv"
	"time"
)

// DailyHandler handles daily breakdown requests.
type DailyHandler struct {
	deps      Dependencies
	defaultTZ string
}

// NewDailyHandler creates a new daily breakdown handler.
func NewDailyHandler(deps Dependencies, defaultTZ string) *DailyHandler {
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	return &DailyHandler{deps: deps, defaultTZ: defaultTZ}
}

type transitionResponse struct {
	At   string `json:"at"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

type dayBucketResponse struct {
	Date              string               `json:"date"`
	ScoreDelta        int64                `json:"score_delta"`
	Changes           int                  `json:"changes"`
	Hourly            [24]int              `json:"hourly"`
	InactivitySeconds int64                `json:"inactivity_seconds"`
	Intervals         []intervalResponse   `json:"intervals"`
	Transitions       []transitionResponse `json:"transitions"`
}

// HandleGetDaily handles GET /daily?shard=S&uid=U&tz=Z requests. The uid
// parameter also accepts rank=N to address the N-th leaderboard position.
func (h *DailyHandler) HandleGetDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	shard := r.URL.Query().Get("shard")
	if shard == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrMissingShard)
		return
	}
	tz := r.URL.Query().Get("tz")
	if tz == "" {
		tz = h.defaultTZ
	}

	eventID, ok := h.deps.TrackedEvent(shard)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrUnknownShard)
		return
	}

	uid, err := h.resolveUID(w, r, shard, eventID)
	if err != nil {
		return
	}
	buckets, err := h.deps.DailyBreakdown(r.Context(), shard, eventID, uid, tz)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	out := make([]dayBucketResponse, len(buckets))
	for i, b := range buckets {
		resp := dayBucketResponse{
			Date:              b.Date.Format("2006-01-02"),
			ScoreDelta:        b.ScoreDelta,
			Changes:           b.Changes,
			Hourly:            b.Hourly,
			InactivitySeconds: int64(b.Inactivity / time.Second),
		}
		for _, iv := range b.Intervals {
			resp.Intervals = append(resp.Intervals, intervalResponse{
				Start:      iv.Start.UTC().Format(time.RFC3339),
				End:        iv.End.UTC().Format(time.RFC3339),
				ScoreDelta: iv.ScoreDelta,
			})
		}
		for _, t := range b.Transitions {
			resp.Transitions = append(resp.Transitions, transitionResponse{
				At:   t.At.UTC().Format(time.RFC3339),
				From: t.From,
				To:   t.To,
			})
		}
		out[i] = resp
	}
	writeJSON(w, http.StatusOK, out)
}

// resolveUID extracts a player uid from either the uid or rank query
// parameter. Writes the error response itself on failure.
func (h *DailyHandler) resolveUID(w http.ResponseWriter, r *http.Request, shard, eventID string) (int64, error) {
	if uidStr := r.URL.Query().Get("uid"); uidStr != "" {
		uid, err := strconv.ParseInt(uidStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return 0, ErrBadRequest
		}
		return uid, nil
	}

	position, err := strconv.Atoi(r.URL.Query().Get("rank"))
	if err != nil || position < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return 0, ErrBadRequest
	}
	d, err := h.deps.PlayerDetail(r.Context(), shard, eventID, position)
	if err != nil {
		writeQueryError(w, err)
		return 0, err
	}
	return d.Entry.Player.UID, nil
}
