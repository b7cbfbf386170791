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

// Client fetches leaderboard data from the game API directly. Payloads are
// positional arrays; fields are decoded by index into named records.
type Client struct {
	baseURL   string
	userID    string
	signature string
	version   string
	retries   int
	client    *http.Client
	now       func() time.Time
}

// NewClient creates a client-flavor adapter.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   cfg.BaseURL,
		userID:    cfg.UserID,
		signature: cfg.Signature,
		retries:   cfg.Retries,
		client:    &http.Client{Timeout: cfg.Timeout},
		now:       time.Now,
	}
	if c.client.Timeout <= 0 {
		c.client.Timeout = defaultTimeout
	}
	if c.retries <= 0 {
		c.retries = defaultRetries
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientOption applies a configuration option to the Client.
type ClientOption func(*Client)

// WithClientHTTPClient overrides the HTTP client, mostly for tests.
func WithClientHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithClientVersion sets the client version sent with each request.
func WithClientVersion(v string) ClientOption {
	return func(c *Client) { c.version = v }
}

// WithClientClock overrides the wall clock, for tests.
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// RecentEventID returns the id of the latest event the game API lists.
func (c *Client) RecentEventID(ctx context.Context) (string, error) {
	rows, err := c.getRows(ctx, c.baseURL+"/event")
	if err != nil {
		return "", err
	}

	var bestID string
	var bestStart int64
	for _, row := range rows {
		id, ok := intField(row, 0)
		if !ok {
			continue
		}
		start, ok := intField(row, 4)
		if !ok {
			continue
		}
		if bestID == "" || start > bestStart {
			bestID, bestStart = strconv.FormatInt(id, 10), start
		}
	}
	if bestID == "" {
		return "", ErrNoEvent
	}
	return bestID, nil
}

// EventMeta resolves metadata by scanning the event listing.
func (c *Client) EventMeta(ctx context.Context, eventID string) (model.EventMeta, error) {
	rows, err := c.getRows(ctx, c.baseURL+"/event")
	if err != nil {
		return model.EventMeta{}, err
	}
	for _, row := range rows {
		id, ok := intField(row, 0)
		if !ok || strconv.FormatInt(id, 10) != eventID {
			continue
		}
		typ, _ := stringField(row, 1)
		name, _ := stringField(row, 2)
		start, _ := intField(row, 4)
		end, _ := intField(row, 5)
		return model.EventMeta{
			ID:      eventID,
			Name:    name,
			Type:    model.EventType(typ),
			StartAt: time.UnixMilli(start),
			EndAt:   time.UnixMilli(end),
		}, nil
	}
	return model.EventMeta{}, ErrNoEvent
}

// Snapshot fetches the current ranking. The game API returns no per-reading
// timestamps, so readings are stamped with the fetch time; the sampling hint
// is not supported by this flavor.
func (c *Client) Snapshot(ctx context.Context, eventID string, _ time.Duration) (model.Snapshot, error) {
	url := fmt.Sprintf("%s/user/%s/event/%s/ranking", c.baseURL, c.userID, eventID)
	rows, err := c.getWrappedRows(ctx, url)
	if err != nil {
		return model.Snapshot{}, err
	}
	return rankingToSnapshot(rows, c.now()), nil
}

// RecentMonthlies lists the monthly periods the game API serves. The listing
// mixes metadata scalars with period rows; non-row elements are skipped.
func (c *Client) RecentMonthlies(ctx context.Context) ([]model.MonthlyMeta, error) {
	body, err := c.getBody(ctx, c.baseURL+"/monthlyranking")
	if err != nil {
		return nil, err
	}
	var items []any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	var out []model.MonthlyMeta
	for _, it := range items {
		row, ok := it.([]any)
		if !ok {
			continue
		}
		id, ok := intField(row, 0)
		if !ok {
			continue
		}
		name, _ := stringField(row, 1)
		start, _ := intField(row, 5)
		end, _ := intField(row, 6)
		out = append(out, model.MonthlyMeta{
			ID:      strconv.FormatInt(id, 10),
			Name:    name,
			StartAt: time.UnixMilli(start),
			EndAt:   time.UnixMilli(end),
		})
	}
	return out, nil
}

// MonthlySnapshot fetches the monthly ranking. Rows share the event ranking
// layout; readings are stamped with the fetch time.
func (c *Client) MonthlySnapshot(ctx context.Context, monthlyID string) (model.Snapshot, error) {
	url := fmt.Sprintf("%s/user/%s/monthlyranking/%s/ranking", c.baseURL, c.userID, monthlyID)
	rows, err := c.getWrappedRows(ctx, url)
	if err != nil {
		return model.Snapshot{}, err
	}
	return rankingToSnapshot(rows, c.now()), nil
}

// rankingToSnapshot decodes positional ranking rows into a snapshot, stamping
// every reading with at.
func rankingToSnapshot(rows [][]any, at time.Time) model.Snapshot {
	snap := model.Snapshot{
		Players: make([]model.PlayerInfo, 0, len(rows)),
		Points:  make([]model.PointReading, 0, len(rows)),
	}
	for _, row := range rows {
		uid, ok := intField(row, 6)
		if !ok {
			continue
		}
		name, _ := stringField(row, 0)
		staticRank, _ := intField(row, 2)
		intro, _ := stringField(row, 3)
		value, _ := intField(row, 5)
		snap.Players = append(snap.Players, model.PlayerInfo{
			UID:          uid,
			Name:         name,
			Introduction: intro,
			StaticRank:   int(staticRank),
		})
		snap.Points = append(snap.Points, model.PointReading{UID: uid, Value: value, At: at})
	}
	return snap
}

// getRows fetches url with the game headers and decodes a positional-array
// payload.
func (c *Client) getRows(ctx context.Context, url string) ([][]any, error) {
	body, err := c.getBody(ctx, url)
	if err != nil {
		return nil, err
	}
	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return rows, nil
}

// getWrappedRows decodes a payload wrapped one array level deeper, as the
// ranking endpoint serves it.
func (c *Client) getWrappedRows(ctx context.Context, url string) ([][]any, error) {
	body, err := c.getBody(ctx, url)
	if err != nil {
		return nil, err
	}
	var wrapped [][][]any
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(wrapped) == 0 {
		return nil, nil
	}
	return wrapped[0], nil
}

// getBody fetches url, retrying transport failures up to the fixed budget.
func (c *Client) getBody(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Accept", "application/octet-stream")
		req.Header.Set("X-ClientVersion", c.version)
		req.Header.Set("X-Signature", c.signature)

		resp, err := c.client.Do(req)
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
		return body, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrFetch, lastErr)
}

func intField(row []any, idx int) (int64, bool) {
	if idx < 0 || idx >= len(row) {
		return 0, false
	}
	switch v := row[idx].(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func stringField(row []any, idx int) (string, bool) {
	if idx < 0 || idx >= len(row) {
		return "", false
	}
	s, ok := row[idx].(string)
	return s, ok
}
