package contentsource

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/providers"
)

const plexMetadataBaseURL = "https://metadata.provider.plex.tv"

// watchlistResponse is the XML shape of
// /library/sections/watchlist/all and /library/metadata/{ratingKey}.
type watchlistResponse struct {
	XMLName  xml.Name `xml:"MediaContainer"`
	Metadata []struct {
		RatingKey string `xml:"ratingKey,attr"`
		Guid      []struct {
			ID string `xml:"id,attr"`
		} `xml:"Guid"`
	} `xml:"Video"`
}

// PlexWatchlist polls a user's Plex discover watchlist, resolving each
// entry's rating key to an imdb id via a second metadata lookup,
// mirroring original_source/backend/program/content/
// plex_watchlist.py's PlexWatchlist (RSS fallback omitted: no RSS URL
// is exposed in SymlinkConfig's equivalent section, the watchlist API
// alone is the primary and always-available path).
type PlexWatchlist struct {
	token      string
	enabled    bool
	baseURL    string // metadata.provider.plex.tv, overridable in tests
	store      ItemStore
	httpClient *http.Client
	logger     *slog.Logger

	mu   sync.Mutex
	seen map[string]bool // imdb ids already yielded this process (original's recurring_items)
}

// NewPlexWatchlist builds a PlexWatchlist content source.
func NewPlexWatchlist(token string, enabled bool, store ItemStore, logger *slog.Logger) *PlexWatchlist {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlexWatchlist{
		token:      token,
		enabled:    enabled,
		baseURL:    plexMetadataBaseURL,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "contentsource", "source", "plex_watchlist"),
		seen:       make(map[string]bool),
	}
}

func (p *PlexWatchlist) Key() string       { return string(providers.NamePlexWatchlist) }
func (p *PlexWatchlist) Initialized() bool { return p.enabled && p.token != "" }

func (p *PlexWatchlist) Validate(ctx context.Context) bool { return p.Initialized() }

// Run is a no-op: PlexWatchlist is a ContentSource, never a
// state-machine step.
func (p *PlexWatchlist) Run(ctx context.Context, it *item.MediaItem) (<-chan *item.MediaItem, error) {
	ch := make(chan *item.MediaItem)
	close(ch)
	return ch, nil
}

// Poll fetches the watchlist and yields one Requested MediaItem per
// imdb id not already seen this process or already in the store.
func (p *PlexWatchlist) Poll(ctx context.Context) (<-chan *item.MediaItem, error) {
	ratingKeys, err := p.fetchWatchlistRatingKeys(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan *item.MediaItem, len(ratingKeys))
	defer close(ch)

	now := time.Now()
	for _, ratingKey := range ratingKeys {
		imdbID, err := p.ratingKeyToIMDBID(ctx, ratingKey)
		if err != nil || imdbID == "" {
			p.logger.Debug("could not resolve watchlist entry to imdb id", "rating_key", ratingKey, "error", err)
			continue
		}

		p.mu.Lock()
		alreadySeen := p.seen[imdbID]
		p.seen[imdbID] = true
		p.mu.Unlock()
		if alreadySeen {
			continue
		}

		if _, err := p.store.GetByIMDB(imdbID); err == nil {
			continue
		}

		ch <- &item.MediaItem{
			Kind:        item.KindMovie, // refined by the metadata indexer once aired_at/type is known
			IMDBID:      imdbID,
			RequestedAt: &now,
			RequestedBy: string(providers.NamePlexWatchlist),
		}
	}
	return ch, nil
}

func (p *PlexWatchlist) fetchWatchlistRatingKeys(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/library/sections/watchlist/all?X-Plex-Token=%s&includeFields=title,year,ratingkey&includeElements=Guid&sort=watchlistedAt:desc",
		p.baseURL, p.token)

	var body watchlistResponse
	if err := p.get(ctx, url, &body); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(body.Metadata))
	for _, m := range body.Metadata {
		if m.RatingKey != "" {
			keys = append(keys, m.RatingKey)
		}
	}
	return keys, nil
}

// ratingKeyToIMDBID resolves one watchlist entry's rating key to its
// imdb guid, mirroring _ratingkey_to_imdbid's second per-item lookup.
func (p *PlexWatchlist) ratingKeyToIMDBID(ctx context.Context, ratingKey string) (string, error) {
	url := fmt.Sprintf("%s/library/metadata/%s?X-Plex-Token=%s&includeGuids=1&includeFields=guid,title,year&includeElements=Guid",
		p.baseURL, ratingKey, p.token)

	var body watchlistResponse
	if err := p.get(ctx, url, &body); err != nil {
		return "", err
	}
	if len(body.Metadata) == 0 {
		return "", fmt.Errorf("no metadata for rating key %s", ratingKey)
	}
	for _, guid := range body.Metadata[0].Guid {
		if strings.HasPrefix(guid.ID, "imdb://") {
			return strings.TrimPrefix(guid.ID, "imdb://"), nil
		}
	}
	return "", nil
}

func (p *PlexWatchlist) get(ctx context.Context, url string, out *watchlistResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return xml.NewDecoder(resp.Body).Decode(out)
}

var _ providers.ContentSource = (*PlexWatchlist)(nil)
