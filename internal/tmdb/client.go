package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.themoviedb.org"
const defaultCacheTTL = 24 * time.Hour

// ErrNotFound is returned when a movie doesn't exist in TMDB.
var ErrNotFound = errors.New("movie not found")

// Client is a TMDB API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *cache
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithCacheTTL sets the cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = newCache(ttl)
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log.With("component", "tmdb")
	}
}

// NewClient creates a new TMDB client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: newCache(defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMovie fetches movie metadata by TMDB ID.
func (c *Client) GetMovie(ctx context.Context, tmdbID int64) (*Movie, error) {
	// Check cache first
	if movie, ok := c.cache.get(tmdbID); ok {
		if c.log != nil {
			c.log.Debug("cache hit", "tmdb_id", tmdbID, "title", movie.Title)
		}
		return movie, nil
	}

	start := time.Now()

	// Build request
	url := fmt.Sprintf("%s/3/movie/%d?api_key=%s", c.baseURL, tmdbID, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Execute
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.log != nil {
			c.log.Debug("request failed", "tmdb_id", tmdbID, "error", err)
		}
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	// Handle errors
	if resp.StatusCode == http.StatusNotFound {
		if c.log != nil {
			c.log.Debug("not found", "tmdb_id", tmdbID)
		}
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		if c.log != nil {
			c.log.Debug("api error", "tmdb_id", tmdbID, "status", resp.StatusCode)
		}
		return nil, fmt.Errorf("TMDB API error: %s", resp.Status)
	}

	// Decode
	var movie Movie
	if err := json.NewDecoder(resp.Body).Decode(&movie); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if c.log != nil {
		c.log.Debug("fetched movie", "tmdb_id", tmdbID, "title", movie.Title, "duration_ms", time.Since(start).Milliseconds())
	}

	// Cache and return
	c.cache.set(tmdbID, &movie)
	return &movie, nil
}

// findResponse is TMDB's /find/{external_id} response shape.
type findResponse struct {
	MovieResults []struct {
		ID int64 `json:"id"`
	} `json:"movie_results"`
	TVResults []struct {
		ID            int64  `json:"id"`
		Name          string `json:"name"`
		FirstAirDate  string `json:"first_air_date"`
	} `json:"tv_results"`
}

// TVResult is the minimal TV-side information TMDB's find endpoint
// returns for an imdb id: enough to tell internal/indexer the item is
// a Show and seed its title/year before the indexer resolves the
// season/episode skeleton via TVDB (pkg/tvdb).
type TVResult struct {
	ID    int64
	Name  string
	Year  int
}

// FindByIMDB resolves an imdb id to a TMDB movie id via TMDB's
// external-id lookup, so an item that only carries an IMDb id
// (content sources yield IMDb ids exclusively) can still be indexed
// through GetMovie. It returns ErrNotFound if imdbID has no movie
// result, including when it matches a TV show (see FindTVByIMDB).
func (c *Client) FindByIMDB(ctx context.Context, imdbID string) (int64, error) {
	found, err := c.find(ctx, imdbID)
	if err != nil {
		return 0, err
	}
	if len(found.MovieResults) == 0 {
		return 0, ErrNotFound
	}
	return found.MovieResults[0].ID, nil
}

// FindTVByIMDB resolves an imdb id to TMDB's TV-side find result,
// the show-equivalent of FindByIMDB.
func (c *Client) FindTVByIMDB(ctx context.Context, imdbID string) (TVResult, error) {
	found, err := c.find(ctx, imdbID)
	if err != nil {
		return TVResult{}, err
	}
	if len(found.TVResults) == 0 {
		return TVResult{}, ErrNotFound
	}
	r := found.TVResults[0]
	year := 0
	if len(r.FirstAirDate) >= 4 {
		if y, err := strconv.Atoi(r.FirstAirDate[:4]); err == nil {
			year = y
		}
	}
	return TVResult{ID: r.ID, Name: r.Name, Year: year}, nil
}

func (c *Client) find(ctx context.Context, imdbID string) (findResponse, error) {
	url := fmt.Sprintf("%s/3/find/%s?api_key=%s&external_source=imdb_id", c.baseURL, imdbID, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return findResponse{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return findResponse{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return findResponse{}, fmt.Errorf("TMDB API error: %s", resp.Status)
	}

	var found findResponse
	if err := json.NewDecoder(resp.Body).Decode(&found); err != nil {
		return findResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return found, nil
}
