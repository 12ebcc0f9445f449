// Package downloader implements the Cached-Torrent Selector's debrid
// side (spec.md §4.7, C8): a Real-Debrid HTTP client satisfying
// providers.Downloader, and the per-item orchestration that runs
// internal/selector.Select over the client's instant-availability
// response and drives the add-magnet/select-files handshake.
//
// Grounded on internal/download/sabnzbd.go's HTTP client shape
// (url.Values-built requests, doRequest/JSON decode, slog fields) and
// original_source/backend/program/downloaders/realdebrid.py's
// endpoint set.
package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vmunix/wantarr/internal/providers"
	"github.com/vmunix/wantarr/internal/selector"
)

// RealDebridClient talks to the Real-Debrid REST API.
type RealDebridClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewRealDebridClient creates a client against Real-Debrid's public
// API (or a compatible proxy, for tests).
func NewRealDebridClient(baseURL, apiKey string, log *slog.Logger) *RealDebridClient {
	if log == nil {
		log = slog.Default()
	}
	return &RealDebridClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		log:     log.With("component", "downloader", "client", "realdebrid"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *RealDebridClient) Key() string                       { return string(providers.NameDownloader) }
func (c *RealDebridClient) Initialized() bool                 { return c.apiKey != "" }
func (c *RealDebridClient) Validate(ctx context.Context) bool { return c.Initialized() }

// IsCached queries Real-Debrid's instant-availability endpoint for a
// single infohash and reports whether any cached variant is listed for
// it; Containers returns the variants themselves.
func (c *RealDebridClient) IsCached(ctx context.Context, infohash string) (bool, error) {
	var resp map[string][]map[string][]map[string]rdAvailabilityFile
	if err := c.doRequest(ctx, http.MethodGet, "/torrents/instantAvailability/"+strings.ToLower(infohash), nil, &resp); err != nil {
		return false, err
	}
	variants, ok := resp[strings.ToLower(infohash)]
	return ok && len(variants) > 0, nil
}

// Containers returns one selector.Container per Real-Debrid "rd"
// variant group reported for infohash, preserving the grouping
// selector.SortContainersByFileCount/Select need to try each variant
// independently.
func (c *RealDebridClient) Containers(ctx context.Context, infohash string) ([]selector.Container, error) {
	var resp map[string][]map[string][]map[string]rdAvailabilityFile
	if err := c.doRequest(ctx, http.MethodGet, "/torrents/instantAvailability/"+strings.ToLower(infohash), nil, &resp); err != nil {
		return nil, err
	}
	var out []selector.Container
	for _, variants := range resp[strings.ToLower(infohash)] {
		for _, groups := range variants {
			for _, group := range groups {
				var files []selector.File
				for _, f := range group {
					files = append(files, selector.File{Filename: f.Filename, Bytes: f.Filesize})
				}
				out = append(out, selector.Container{Files: files})
			}
		}
	}
	return out, nil
}

func (c *RealDebridClient) AddMagnet(ctx context.Context, infohash string) (string, error) {
	magnet := "magnet:?xt=urn:btih:" + infohash
	var resp rdAddMagnetResponse
	params := url.Values{"magnet": {magnet}}
	if err := c.doRequest(ctx, http.MethodPost, "/torrents/addMagnet", params, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("realdebrid add_magnet: empty torrent id")
	}
	return resp.ID, nil
}

func (c *RealDebridClient) SelectFiles(ctx context.Context, torrentID string, files []providers.TorrentFile) error {
	ids := make([]string, 0, len(files))
	for i, f := range files {
		if f.Selected {
			ids = append(ids, fmt.Sprintf("%d", i+1))
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("realdebrid select_files: no files selected")
	}
	params := url.Values{"files": {strings.Join(ids, ",")}}
	var resp struct{}
	return c.doRequest(ctx, http.MethodPost, "/torrents/selectFiles/"+torrentID, params, &resp)
}

func (c *RealDebridClient) GetTorrentInfo(ctx context.Context, torrentID string) (providers.TorrentInfo, error) {
	var resp rdTorrentInfoResponse
	if err := c.doRequest(ctx, http.MethodGet, "/torrents/info/"+torrentID, nil, &resp); err != nil {
		return providers.TorrentInfo{}, err
	}
	files := make([]providers.TorrentFile, 0, len(resp.Files))
	for _, f := range resp.Files {
		files = append(files, providers.TorrentFile{
			Path:     strings.TrimPrefix(f.Path, "/"),
			Bytes:    f.Bytes,
			Selected: f.Selected == 1,
		})
	}
	alt := ""
	if len(resp.Links) > 0 {
		alt = resp.Links[0]
	}
	return providers.TorrentInfo{
		ID:                  resp.ID,
		Filename:            resp.Filename,
		AlternativeFilename: alt,
		Files:               files,
	}, nil
}

func (c *RealDebridClient) GetTorrents(ctx context.Context) (map[string]providers.TorrentInfo, error) {
	var resp []rdTorrentSummary
	if err := c.doRequest(ctx, http.MethodGet, "/torrents", nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]providers.TorrentInfo, len(resp))
	for _, t := range resp {
		out[strings.ToLower(t.Hash)] = providers.TorrentInfo{ID: t.ID, Filename: t.Filename}
	}
	return out, nil
}

func (c *RealDebridClient) doRequest(ctx context.Context, method, path string, params url.Values, result any) error {
	start := time.Now()
	reqURL := c.baseURL + path
	var body strings.Reader
	if method == http.MethodPost && params != nil {
		body = *strings.NewReader(params.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("api request failed", "path", path, "error", err)
		return fmt.Errorf("realdebrid request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		c.log.Debug("api unexpected status", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.log.Debug("api request complete", "path", path, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

type rdAvailabilityFile struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

type rdAddMagnetResponse struct {
	ID string `json:"id"`
}

type rdTorrentInfoResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Links    []string `json:"links"`
	Files    []struct {
		ID       int    `json:"id"`
		Path     string `json:"path"`
		Bytes    int64  `json:"bytes"`
		Selected int    `json:"selected"`
	} `json:"files"`
}

type rdTorrentSummary struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
}
