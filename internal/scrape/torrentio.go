package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vmunix/wantarr/internal/item"
)

// torrentioStream is one entry of a Torrentio-style JSON catalog
// response: a human-readable release title and its infohash, the same
// shape pack example `godver3-strmr`'s debrid search service
// normalizes every scraper backend's raw result into (Title/InfoHash
// fields).
type torrentioStream struct {
	Title    string `json:"title"`
	InfoHash string `json:"infoHash"`
}

type torrentioResponse struct {
	Streams []torrentioStream `json:"streams"`
}

// TorrentioConfig configures a TorrentioScraper.
type TorrentioConfig struct {
	BaseURL    string // e.g. "https://torrentio.strem.fun"
	Profile    Profile
	RPS        float64
	Burst      int
	Thresholds Thresholds
}

// TorrentioScraper implements providers.Scraper against a single
// Stremio-addon-style JSON endpoint keyed by IMDb id (and season/
// episode for series), demonstrating the same eligibility/ranking/
// reporting pipeline as JackettScraper with a much simpler fetch.
type TorrentioScraper struct {
	cfg        TorrentioConfig
	hashcache  HashBlacklistChecker
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewTorrentioScraper builds a TorrentioScraper.
func NewTorrentioScraper(cfg TorrentioConfig, hashcache HashBlacklistChecker, logger *slog.Logger) *TorrentioScraper {
	if logger == nil {
		logger = slog.Default()
	}
	t := &TorrentioScraper{
		cfg:        cfg,
		hashcache:  hashcache,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "scrape", "scraper", "torrentio"),
		now:        time.Now,
	}
	if cfg.RPS > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), maxInt(cfg.Burst, 1))
	}
	return t
}

func (t *TorrentioScraper) Key() string                        { return "Scraping" }
func (t *TorrentioScraper) Initialized() bool                  { return t.cfg.BaseURL != "" }
func (t *TorrentioScraper) Validate(ctx context.Context) bool  { return t.Initialized() }
func (t *TorrentioScraper) ShouldScrape(it *item.MediaItem) bool {
	return ShouldScrape(it, t.cfg.Thresholds, t.now())
}
func (t *TorrentioScraper) ShouldSubmit(it *item.MediaItem) bool { return eligible(it, t.now()) }

// Run queries the addon's catalog endpoint for it's IMDb id and ranks
// the returned streams.
func (t *TorrentioScraper) Run(ctx context.Context, it *item.MediaItem) (<-chan *item.MediaItem, error) {
	if !eligible(it, t.now()) {
		ch := make(chan *item.MediaItem)
		close(ch)
		return ch, nil
	}
	if it.IMDBID == "" {
		ch := make(chan *item.MediaItem)
		close(ch)
		return ch, nil
	}
	if t.limiter != nil && !t.limiter.Allow() {
		return nil, ErrRateLimited
	}

	candidates, err := t.fetch(ctx, it)
	if err != nil {
		t.logger.Warn("torrentio fetch failed", "imdb_id", it.IMDBID, "error", err)
		candidates = nil
	}

	isBlacklisted := func(hash string) bool {
		if t.hashcache == nil {
			return false
		}
		bl, err := t.hashcache.IsBlacklisted(ctx, hash)
		return err == nil && bl
	}

	ranked := rank(it, candidates, t.cfg.Profile, isBlacklisted)
	Report(it, ranked, t.now())

	ch := make(chan *item.MediaItem, 1)
	ch <- it
	close(ch)
	return ch, nil
}

// fetch builds the addon's "<type>/<imdbID>[:season:episode].json"
// stream URL and decodes its JSON body.
func (t *TorrentioScraper) fetch(ctx context.Context, it *item.MediaItem) ([]Candidate, error) {
	kind := "movie"
	id := it.IMDBID
	if it.Kind == item.KindEpisode {
		kind = "series"
		season, episode := targetSeasonEpisode(it)
		id = fmt.Sprintf("%s:%d:%d", it.IMDBID, season, episode)
	} else if it.Kind == item.KindSeason {
		kind = "series"
	}

	url := strings.TrimSuffix(t.cfg.BaseURL, "/") + "/stream/" + kind + "/" + id + ".json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body torrentioResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]Candidate, 0, len(body.Streams))
	for _, s := range body.Streams {
		if s.InfoHash == "" {
			continue
		}
		out = append(out, Candidate{InfoHash: strings.ToLower(s.InfoHash), RawTitle: s.Title})
	}
	return out, nil
}
