package scrape

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vmunix/wantarr/internal/item"
)

// torznabResponse is the subset of a Torznab/Jackett search response
// this client needs: every rssItem plus its torznab:attr extensions
// (infohash, magneturl), fields a plain-Newznab client doesn't surface.
// Structurally grounded on the teacher's pkg/newznab/client.go
// rssResponse/rssChannel/rssItem shape, reimplemented here rather than
// extended in place since Jackett's torrent-specific attrs are not
// part of the Newznab dialect that package's callers relied on.
type torznabResponse struct {
	XMLName xml.Name       `xml:"rss"`
	Channel torznabChannel `xml:"channel"`
}

type torznabChannel struct {
	Items []torznabItem `xml:"item"`
}

type torznabItem struct {
	Title string         `xml:"title"`
	Attrs []torznabAttr  `xml:"http://torznab.com/schemas/2015/feed attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (it torznabItem) attr(name string) string {
	for _, a := range it.Attrs {
		if strings.EqualFold(a.Name, name) {
			return a.Value
		}
	}
	return ""
}

// JackettIndexer is one Torznab-speaking endpoint Jackett proxies.
type JackettIndexer struct {
	Name    string
	BaseURL string
	APIKey  string
	// RPS/Burst configure this indexer's own rate.Limiter, since
	// spec.md §4.6 calls out Jackett "parallelizes across indexers
	// with a per-indexer limiter" distinct from the scraper-wide one.
	RPS   float64
	Burst int
}

// JackettConfig configures a JackettScraper.
type JackettConfig struct {
	Indexers []JackettIndexer
	Profile  Profile
	// RPS/Burst bound the scraper as a whole, on top of each indexer's
	// own limiter.
	RPS       float64
	Burst     int
	Thresholds Thresholds
	Categories CategorySet
}

// CategorySet is the Torznab category ids to query per item kind.
type CategorySet struct {
	Movie  []int
	Series []int
}

// DefaultCategories mirrors Torznab's standard Movies/TV category
// ranges.
var DefaultCategories = CategorySet{
	Movie:  []int{2000, 2010, 2020, 2030, 2040, 2045, 2050},
	Series: []int{5000, 5010, 5020, 5030, 5040, 5045, 5050, 5070},
}

// HashBlacklistChecker is the subset of internal/hashcache.Cache a
// scraper needs to drop already-blacklisted candidates before
// ranking.
type HashBlacklistChecker interface {
	IsBlacklisted(ctx context.Context, infohash string) (bool, error)
}

// JackettScraper implements providers.Scraper by fanning a query out
// to every configured Torznab indexer in parallel, grounded on
// internal/search/indexer.go's IndexerPool.Search (parallel clients,
// merged results/errors, per-client error isolation).
type JackettScraper struct {
	cfg        JackettConfig
	hashcache  HashBlacklistChecker
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	indexerLimiters map[string]*rate.Limiter
	now        func() time.Time
}

// NewJackettScraper builds a JackettScraper. hashcache may be nil, in
// which case no blacklist filtering is applied (tests only).
func NewJackettScraper(cfg JackettConfig, hashcache HashBlacklistChecker, logger *slog.Logger) *JackettScraper {
	if cfg.Categories.Movie == nil && cfg.Categories.Series == nil {
		cfg.Categories = DefaultCategories
	}
	if logger == nil {
		logger = slog.Default()
	}

	j := &JackettScraper{
		cfg:             cfg,
		hashcache:       hashcache,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		logger:          logger.With("component", "scrape", "scraper", "jackett"),
		indexerLimiters: make(map[string]*rate.Limiter, len(cfg.Indexers)),
		now:             time.Now,
	}
	if cfg.RPS > 0 {
		j.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), maxInt(cfg.Burst, 1))
	}
	for _, idx := range cfg.Indexers {
		if idx.RPS > 0 {
			j.indexerLimiters[idx.Name] = rate.NewLimiter(rate.Limit(idx.RPS), maxInt(idx.Burst, 1))
		}
	}
	return j
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (j *JackettScraper) Key() string { return "Scraping" }

func (j *JackettScraper) Initialized() bool { return len(j.cfg.Indexers) > 0 }

func (j *JackettScraper) Validate(ctx context.Context) bool { return j.Initialized() }

func (j *JackettScraper) ShouldScrape(it *item.MediaItem) bool {
	return ShouldScrape(it, j.cfg.Thresholds, j.now())
}

func (j *JackettScraper) ShouldSubmit(it *item.MediaItem) bool {
	return eligible(it, j.now())
}

// Run queries every indexer in parallel, ranks the merged candidates,
// and emits it once with the new streams merged in. The returned
// channel yields exactly one item, or none (it is closed empty) when
// the item is not eligible for scraping; a scraper never fans a single
// submission out into several.
func (j *JackettScraper) Run(ctx context.Context, it *item.MediaItem) (<-chan *item.MediaItem, error) {
	if !eligible(it, j.now()) {
		ch := make(chan *item.MediaItem)
		close(ch)
		return ch, nil
	}

	if j.limiter != nil && !j.limiter.Allow() {
		return nil, ErrRateLimited
	}

	query := queryText(it)
	categories := j.cfg.Categories.Movie
	if it.Kind == item.KindEpisode || it.Kind == item.KindSeason {
		categories = j.cfg.Categories.Series
	}

	candidates, _ := j.searchAll(ctx, query, categories)

	isBlacklisted := func(hash string) bool {
		if j.hashcache == nil {
			return false
		}
		bl, err := j.hashcache.IsBlacklisted(ctx, hash)
		return err == nil && bl
	}

	ranked := rank(it, candidates, j.cfg.Profile, isBlacklisted)
	Report(it, ranked, j.now())

	ch := make(chan *item.MediaItem, 1)
	ch <- it
	close(ch)
	return ch, nil
}

// searchAll fans query out to every indexer concurrently, honoring
// each indexer's own limiter (soft: skip it this round rather than
// block the others).
func (j *JackettScraper) searchAll(ctx context.Context, query string, categories []int) ([]Candidate, []error) {
	type result struct {
		candidates []Candidate
		err        error
	}
	results := make(chan result, len(j.cfg.Indexers))
	var wg sync.WaitGroup

	for _, idx := range j.cfg.Indexers {
		idx := idx
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lim, ok := j.indexerLimiters[idx.Name]; ok && !lim.Allow() {
				results <- result{}
				return
			}
			cands, err := j.searchOne(ctx, idx, query, categories)
			if err != nil {
				j.logger.Warn("indexer search failed", "indexer", idx.Name, "error", err)
			}
			results <- result{candidates: cands, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []Candidate
	var errs []error
	for r := range results {
		all = append(all, r.candidates...)
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	return all, errs
}

func (j *JackettScraper) searchOne(ctx context.Context, idx JackettIndexer, query string, categories []int) ([]Candidate, error) {
	u, err := url.Parse(strings.TrimSuffix(idx.BaseURL, "/") + "/api")
	if err != nil {
		return nil, fmt.Errorf("invalid indexer url: %w", err)
	}
	params := url.Values{}
	params.Set("apikey", idx.APIKey)
	params.Set("t", "search")
	if query != "" {
		params.Set("q", query)
	}
	if len(categories) > 0 {
		cats := make([]string, len(categories))
		for i, c := range categories {
			cats[i] = strconv.Itoa(c)
		}
		params.Set("cat", strings.Join(cats, ","))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer %s: %w", idx.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer %s: unexpected status %d", idx.Name, resp.StatusCode)
	}

	var rss torznabResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("indexer %s: decode response: %w", idx.Name, err)
	}

	out := make([]Candidate, 0, len(rss.Channel.Items))
	for _, it := range rss.Channel.Items {
		hash := strings.ToLower(it.attr("infohash"))
		if hash == "" {
			continue
		}
		out = append(out, Candidate{InfoHash: hash, RawTitle: it.Title})
	}
	return out, nil
}

// queryText is the search string submitted to every indexer: the top
// title the candidate must match (Show title for Season/Episode,
// Movie title otherwise).
func queryText(it *item.MediaItem) string {
	return topTitle(it)
}
