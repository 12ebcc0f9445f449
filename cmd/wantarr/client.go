package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client wraps HTTP calls to wantarrd's read-only admin API
// (internal/adminapi): GET /admin/events and GET /admin/stats.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new wantarrd API client.
func NewClient(serverURL string) *Client {
	return &Client{
		baseURL: serverURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) get(path string, result any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// EventResponse mirrors internal/adminapi.eventResponse.
type EventResponse struct {
	ID         int64  `json:"id"`
	EventType  string `json:"event_type"`
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	Payload    string `json:"payload"`
	OccurredAt string `json:"occurred_at"`
}

// QueueStatsResponse mirrors internal/adminapi.queueStatsResponse.
type QueueStatsResponse struct {
	Queued  map[string]int `json:"queued"`
	Running map[string]int `json:"running"`
}

// StatsResponse mirrors internal/adminapi.statsResponse.
type StatsResponse struct {
	Queue        *QueueStatsResponse `json:"queue,omitempty"`
	ItemsByState map[string]int      `json:"items_by_state,omitempty"`
}

// Events fetches events at or after since. A zero since fetches
// wantarrd's default window (the last hour).
func (c *Client) Events(since time.Time) ([]EventResponse, error) {
	path := "/admin/events"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.Format(time.RFC3339))
	}
	var resp []EventResponse
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Stats fetches the current queue depth and per-state item counts.
func (c *Client) Stats() (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.get("/admin/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
