package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
)

const defaultMirrorBaseURL = "https://bestdori.com"

// Mirror fetches leaderboard data from the public JSON mirror.
type Mirror struct {
	baseURL  string
	serverID int
	retries  int
	client   *http.Client
}

// NewMirror creates a mirror-flavor adapter.
func NewMirror(cfg Config, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		baseURL:  cfg.BaseURL,
		serverID: cfg.ServerID,
		retries:  cfg.Retries,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
	if m.baseURL == "" {
		m.baseURL = defaultMirrorBaseURL
	}
	if m.client.Timeout <= 0 {
		m.client.Timeout = defaultTimeout
	}
	if m.retries <= 0 {
		m.retries = defaultRetries
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MirrorOption applies a configuration option to the Mirror.
type MirrorOption func(*Mirror)

// WithMirrorHTTPClient overrides the HTTP client, mostly for tests.
func WithMirrorHTTPClient(c *http.Client) MirrorOption {
	return func(m *Mirror) {
		if c != nil {
			m.client = c
		}
	}
}

// recentEventsDigest mirrors /api/news/dynamic/recent.json. Per-server
// values arrive as strings, numbers, or null depending on the region.
type recentEventsDigest struct {
	Events map[string]struct {
		StartAt []json.RawMessage `json:"startAt"`
	} `json:"events"`
}

// eventDetail mirrors /api/events/{id}.json.
type eventDetail struct {
	EventName []json.RawMessage `json:"eventName"`
	EventType string            `json:"eventType"`
	StartAt   []json.RawMessage `json:"startAt"`
	EndAt     []json.RawMessage `json:"endAt"`
}

// snapshotPayload mirrors /api/eventtop/data.
type snapshotPayload struct {
	Users []struct {
		UID          int64  `json:"uid"`
		Name         string `json:"name"`
		Introduction string `json:"introduction"`
		Rank         int    `json:"rank"`
	} `json:"users"`
	Points []struct {
		UID   int64 `json:"uid"`
		Value int64 `json:"value"`
		Time  int64 `json:"time"`
	} `json:"points"`
}

// RecentEventID returns the id of the event with the latest start date for
// this shard's server, skipping events the server never ran.
func (m *Mirror) RecentEventID(ctx context.Context) (string, error) {
	var digest recentEventsDigest
	if err := m.getJSON(ctx, m.baseURL+"/api/news/dynamic/recent.json", &digest); err != nil {
		return "", err
	}

	var bestID string
	var bestStart int64
	for id, ev := range digest.Events {
		start, ok := millisAt(ev.StartAt, m.serverID)
		if !ok {
			continue
		}
		if bestID == "" || start > bestStart {
			bestID, bestStart = id, start
		}
	}
	if bestID == "" {
		return "", ErrNoEvent
	}
	return bestID, nil
}

// EventMeta resolves name, type and dates for an event id. Returns ErrNoEvent
// when the event never ran on this shard's server.
func (m *Mirror) EventMeta(ctx context.Context, eventID string) (model.EventMeta, error) {
	var detail eventDetail
	if err := m.getJSON(ctx, fmt.Sprintf("%s/api/events/%s.json", m.baseURL, eventID), &detail); err != nil {
		return model.EventMeta{}, err
	}

	start, ok := millisAt(detail.StartAt, m.serverID)
	if !ok {
		return model.EventMeta{}, ErrNoEvent
	}
	end, _ := millisAt(detail.EndAt, m.serverID)
	name, _ := stringAt(detail.EventName, m.serverID)

	return model.EventMeta{
		ID:      eventID,
		Name:    name,
		Type:    model.EventType(detail.EventType),
		StartAt: time.UnixMilli(start),
		EndAt:   time.UnixMilli(end),
	}, nil
}

// Snapshot fetches the current leaderboard top with the given sampling hint.
func (m *Mirror) Snapshot(ctx context.Context, eventID string, hint time.Duration) (model.Snapshot, error) {
	url := fmt.Sprintf("%s/api/eventtop/data?server=%d&event=%s&mid=0&interval=%d",
		m.baseURL, m.serverID, eventID, hint.Milliseconds())

	var payload snapshotPayload
	if err := m.getJSON(ctx, url, &payload); err != nil {
		return model.Snapshot{}, err
	}

	snap := model.Snapshot{
		Players: make([]model.PlayerInfo, 0, len(payload.Users)),
		Points:  make([]model.PointReading, 0, len(payload.Points)),
	}
	for _, u := range payload.Users {
		snap.Players = append(snap.Players, model.PlayerInfo{
			UID:          u.UID,
			Name:         u.Name,
			Introduction: u.Introduction,
			StaticRank:   u.Rank,
		})
	}
	for _, p := range payload.Points {
		snap.Points = append(snap.Points, model.PointReading{
			UID:   p.UID,
			Value: p.Value,
			At:    time.UnixMilli(p.Time),
		})
	}
	return snap, nil
}

// getJSON fetches url and decodes the body, retrying transport failures up
// to the fixed budget. Decode failures are not retried.
func (m *Mirror) getJSON(ctx context.Context, url string, v any) error {
	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFetch, err)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFetch, lastErr)
}

// millisAt extracts a per-server millisecond timestamp from a raw array.
// The mirror serves these as strings, numbers, or null.
func millisAt(raw []json.RawMessage, idx int) (int64, bool) {
	if idx < 0 || idx >= len(raw) {
		return 0, false
	}
	return parseMillis(raw[idx])
}

func parseMillis(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return ms, true
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	return 0, false
}

func stringAt(raw []json.RawMessage, idx int) (string, bool) {
	if idx < 0 || idx >= len(raw) || string(raw[idx]) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw[idx], &s); err != nil {
		return "", false
	}
	return s, true
}
