package seeding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/questrank/internal/adapters/http/identity"
	"github.com/okian/questrank/internal/domain/model"
)

// Client talks to a running questrank service.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient returns a Client for baseURL. A non-empty secret signs caller
// tokens; otherwise the caller is sent in the X-User-ID header.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks the service answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/healthz", "")
	return err
}

// Leaderboard fetches the snapshot for period and limit as seen by caller.
// A negative limit leaves the service default in place.
func (c *Client) Leaderboard(ctx context.Context, period model.Period, limit int, caller string) (model.Snapshot, error) {
	q := url.Values{}
	q.Set("period", string(period))
	if limit >= 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.get(ctx, "/leaderboard?"+q.Encode(), caller)
	if err != nil {
		return model.Snapshot{}, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode leaderboard: %w", err)
	}
	return snap, nil
}

// Rank fetches userID's entry for period.
func (c *Client) Rank(ctx context.Context, period model.Period, userID string) (model.RankedEntry, error) {
	body, err := c.get(ctx, "/rank/"+url.PathEscape(userID)+"?period="+string(period), "")
	if err != nil {
		return model.RankedEntry{}, err
	}
	var e model.RankedEntry
	if err := json.Unmarshal(body, &e); err != nil {
		return model.RankedEntry{}, fmt.Errorf("decode rank: %w", err)
	}
	return e, nil
}

// NotifyChanged posts a fact-change notification so cached leaderboards
// are dropped.
func (c *Client) NotifyChanged(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{"event_id": "seed-" + uuid.NewString()})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/facts/changed", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, body)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, caller string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if caller != "" {
		if err := c.identify(req, caller); err != nil {
			return nil, err
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: HTTP %d: %s", ErrUnavailable, path, resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) identify(req *http.Request, caller string) error {
	if c.secret == "" {
		req.Header.Set(identity.HeaderUserID, caller)
		return nil
	}
	token, err := identity.Sign(c.secret, caller, time.Minute)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
