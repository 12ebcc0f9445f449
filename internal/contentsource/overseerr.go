// Package contentsource implements providers.ContentSource adapters:
// external request/watchlist services that yield newly Requested items
// for the admission bus (spec.md §4.10).
package contentsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/providers"
)

// ItemStore is the subset of internal/store.Store Overseerr needs to
// skip requests that already exist (original_source's
// media_items.get_imdbid check in Overseerr.run).
type ItemStore interface {
	GetByIMDB(imdbID string) (*item.MediaItem, error)
}

// OverseerrConfig configures an Overseerr content source.
type OverseerrConfig struct {
	URL    string
	APIKey string
}

type overseerrRequestsResponse struct {
	Results []overseerrRequest `json:"results"`
}

type overseerrRequest struct {
	ID     int `json:"id"`
	Status int `json:"status"` // 2 == approved
	Media  struct {
		Status int `json:"status"` // 3 == pending
		TMDBID int `json:"tmdbId"`
		TVDBID int `json:"tvdbId"`
		Type   string `json:"mediaType"` // "movie" | "tv"
	} `json:"media"`
}

type overseerrExternalIDs struct {
	IMDBID string `json:"imdbId"`
}

// Overseerr polls Overseerr's pending-approval request queue and
// resolves each request's IMDb id via its TMDb/TVDb external ids,
// mirroring original_source/backend/program/content/overseerr.py's
// Overseerr.run.
type Overseerr struct {
	cfg        OverseerrConfig
	store      ItemStore
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOverseerr builds an Overseerr content source.
func NewOverseerr(cfg OverseerrConfig, store ItemStore, logger *slog.Logger) *Overseerr {
	if logger == nil {
		logger = slog.Default()
	}
	return &Overseerr{
		cfg:        cfg,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "contentsource", "source", "overseerr"),
	}
}

func (o *Overseerr) Key() string { return string(providers.NameOverseerr) }

// Initialized reports whether Overseerr is configured: a URL and an
// API key of Overseerr's fixed 68-character length (original_source's
// Overseerr.validate: "len(self.settings.api_key) != 68").
func (o *Overseerr) Initialized() bool {
	return o.cfg.URL != "" && len(o.cfg.APIKey) == 68
}

// Validate pings /api/v1/auth/me.
func (o *Overseerr) Validate(ctx context.Context) bool {
	if !o.Initialized() {
		return false
	}
	req, err := o.newRequest(ctx, http.MethodGet, "/api/v1/auth/me")
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Run is a no-op: Overseerr is a ContentSource, not a state-machine
// step any item passes through, so it never appears as a
// NextService target.
func (o *Overseerr) Run(ctx context.Context, it *item.MediaItem) (<-chan *item.MediaItem, error) {
	ch := make(chan *item.MediaItem)
	close(ch)
	return ch, nil
}

// Poll fetches every pending request and yields one Requested
// MediaItem per imdb id not already known to the store.
func (o *Overseerr) Poll(ctx context.Context) (<-chan *item.MediaItem, error) {
	requests, err := o.fetchRequests(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan *item.MediaItem, len(requests))
	defer close(ch)

	now := time.Now()
	for _, r := range requests {
		// status == 2 (approved) and media.status == 3 (pending) is
		// the original's pending-approval filter; anything else is
		// either not yet approved or already being handled elsewhere.
		if r.Status != 2 || r.Media.Status != 3 {
			continue
		}

		imdbID, err := o.resolveIMDBID(ctx, r)
		if err != nil || imdbID == "" {
			o.logger.Debug("overseerr request has no resolvable imdb id", "request_id", r.ID, "error", err)
			continue
		}

		if _, err := o.store.GetByIMDB(imdbID); err == nil {
			continue // already requested
		}

		ch <- &item.MediaItem{
			Kind:        kindFor(r.Media.Type),
			IMDBID:      imdbID,
			RequestedAt: &now,
			RequestedBy: string(providers.NameOverseerr),
		}
	}
	return ch, nil
}

func kindFor(mediaType string) item.Kind {
	if mediaType == "tv" {
		return item.KindShow
	}
	return item.KindMovie
}

// resolveIMDBID looks up a request's imdb id through Overseerr's
// movie/tv detail endpoint's externalIds, keyed by the request's
// tmdbId for both movies and series; tvdbId is not used.
func (o *Overseerr) resolveIMDBID(ctx context.Context, r overseerrRequest) (string, error) {
	var path string
	switch r.Media.Type {
	case "movie":
		path = fmt.Sprintf("/api/v1/movie/%d", r.Media.TMDBID)
	case "tv":
		path = fmt.Sprintf("/api/v1/tv/%d", r.Media.TMDBID)
	default:
		return "", fmt.Errorf("unsupported media type %q", r.Media.Type)
	}

	req, err := o.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return "", err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var detail struct {
		ExternalIDs overseerrExternalIDs `json:"externalIds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return "", fmt.Errorf("decode media detail: %w", err)
	}
	return detail.ExternalIDs.IMDBID, nil
}

func (o *Overseerr) fetchRequests(ctx context.Context) ([]overseerrRequest, error) {
	req, err := o.newRequest(ctx, http.MethodGet, "/api/v1/request?take=10000&filter=unavailable")
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body overseerrRequestsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}
	return body.Results, nil
}

func (o *Overseerr) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(o.cfg.URL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", o.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// deleteRequest removes an Overseerr request. Exposed for a future
// compat layer but not called by Poll itself: original_source's
// delete_request fires when an imdb id can never be resolved, a
// capability this source keeps private rather than one core packages
// call into (see DESIGN.md Open Question decision #3).
func (o *Overseerr) deleteRequest(ctx context.Context, requestID int) error {
	req, err := o.newRequest(ctx, http.MethodDelete, "/api/v1/request/"+strconv.Itoa(requestID))
	if err != nil {
		return err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete request %d: unexpected status %d", requestID, resp.StatusCode)
	}
	return nil
}

var _ providers.ContentSource = (*Overseerr)(nil)
