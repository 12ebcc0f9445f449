// Package indexer implements the TraktIndexer role
// (providers.MetadataIndexer): given an item carrying only an imdb id
// (every content source yields exactly that), it fills in
// title/year/genres/aired_at and, for a Show, the season/episode
// skeleton (spec.md §4.3). original_source resolves all of this
// through a single Trakt client; this rework splits movies to TMDB
// (internal/tmdb) and series to TVDB (pkg/tvdb).
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/providers"
	"github.com/vmunix/wantarr/internal/tmdb"
	"github.com/vmunix/wantarr/pkg/tvdb"
)

// MovieClient is the subset of internal/tmdb.Client Indexer needs.
type MovieClient interface {
	FindByIMDB(ctx context.Context, imdbID string) (int64, error)
	FindTVByIMDB(ctx context.Context, imdbID string) (tmdb.TVResult, error)
	GetMovie(ctx context.Context, tmdbID int64) (*tmdb.Movie, error)
}

// ShowClient is the subset of pkg/tvdb.Client Indexer needs to resolve
// a show's TVDB id and episode skeleton once TMDB has told it the
// show's name/year.
type ShowClient interface {
	Search(ctx context.Context, query string) ([]tvdb.SearchResult, error)
	GetSeries(ctx context.Context, tvdbID int) (*tvdb.Series, error)
	GetEpisodes(ctx context.Context, tvdbID int) ([]tvdb.Episode, error)
}

// Indexer implements providers.MetadataIndexer.
type Indexer struct {
	movies MovieClient
	shows  ShowClient
	logger *slog.Logger
	now    func() time.Time
}

// New builds an Indexer. Either client may be nil to disable that
// half (e.g. a deployment indexing movies only).
func New(movies MovieClient, shows ShowClient, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		movies: movies,
		shows:  shows,
		logger: logger.With("component", "indexer"),
		now:    time.Now,
	}
}

func (idx *Indexer) Key() string                       { return string(providers.NameTraktIndexer) }
func (idx *Indexer) Initialized() bool                 { return idx.movies != nil || idx.shows != nil }
func (idx *Indexer) Validate(ctx context.Context) bool  { return idx.Initialized() }

// Run wraps Index so Indexer can also serve as a plain providers.Service.
func (idx *Indexer) Run(ctx context.Context, it *item.MediaItem) (<-chan *item.MediaItem, error) {
	indexed, err := idx.Index(ctx, it)
	ch := make(chan *item.MediaItem, 1)
	if err != nil {
		close(ch)
		return ch, err
	}
	ch <- indexed
	close(ch)
	return ch, nil
}

// Index fills in it's title/year/genres/aired_at (and, for a Show, its
// season/episode skeleton) from it.IMDBID. A Show is indexed as a show
// directly; a Movie or an item with no Kind goes through the
// movie-then-show probe; any other Kind is returned unchanged.
func (idx *Indexer) Index(ctx context.Context, it *item.MediaItem) (*item.MediaItem, error) {
	if it.IMDBID == "" {
		return nil, fmt.Errorf("indexer: item has no imdb id")
	}

	switch it.Kind {
	case item.KindShow:
		return idx.indexShow(ctx, it)
	case item.KindMovie, "":
		return idx.indexAuto(ctx, it)
	default:
		return it, nil
	}
}

// indexAuto probes TMDB's movie, then TV, results for it.IMDBID,
// since a freshly-requested item's Kind defaults to Movie until the
// indexer confirms otherwise (see internal/contentsource).
func (idx *Indexer) indexAuto(ctx context.Context, it *item.MediaItem) (*item.MediaItem, error) {
	if idx.movies == nil {
		return it, nil
	}

	if tmdbID, err := idx.movies.FindByIMDB(ctx, it.IMDBID); err == nil {
		return idx.fillMovie(ctx, it, tmdbID)
	}

	tv, err := idx.movies.FindTVByIMDB(ctx, it.IMDBID)
	if err != nil {
		return nil, fmt.Errorf("indexer: imdb id %s matched neither a movie nor a show", it.IMDBID)
	}
	it.Kind = item.KindShow
	it.Title = tv.Name
	it.Year = tv.Year
	return idx.indexShow(ctx, it)
}

func (idx *Indexer) fillMovie(ctx context.Context, it *item.MediaItem, tmdbID int64) (*item.MediaItem, error) {
	movie, err := idx.movies.GetMovie(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch movie %d: %w", tmdbID, err)
	}

	it.Kind = item.KindMovie
	it.TMDBID = fmt.Sprintf("%d", movie.ID)
	it.Title = movie.Title
	it.Year = movie.Year()
	it.Genres = genreNames(movie.Genres)
	if aired, ok := parseDate(movie.ReleaseDate); ok {
		it.AiredAt = &aired
	}
	now := idx.now()
	it.IndexedAt = &now
	return it, nil
}

// indexShow resolves it's TVDB id (searching by the title/year TMDB
// already supplied) and rebuilds its Seasons/Episodes skeleton from
// TVDB's episode list, grouping by season number.
func (idx *Indexer) indexShow(ctx context.Context, it *item.MediaItem) (*item.MediaItem, error) {
	if idx.shows == nil {
		now := idx.now()
		it.IndexedAt = &now
		return it, nil
	}

	results, err := idx.shows.Search(ctx, it.Title)
	if err != nil {
		return nil, fmt.Errorf("indexer: tvdb search %q: %w", it.Title, err)
	}
	match, ok := bestShowMatch(results, it.Title, it.Year)
	if !ok {
		return nil, fmt.Errorf("indexer: no tvdb match for %q (%d)", it.Title, it.Year)
	}

	series, err := idx.shows.GetSeries(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch tvdb series %d: %w", match.ID, err)
	}
	episodes, err := idx.shows.GetEpisodes(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch tvdb episodes %d: %w", match.ID, err)
	}

	it.Kind = item.KindShow
	it.TVDBID = fmt.Sprintf("%d", series.ID)
	if it.Title == "" {
		it.Title = series.Name
	}
	if it.Year == 0 {
		it.Year = series.Year
	}
	it.Seasons = buildSeasons(episodes)

	now := idx.now()
	it.IndexedAt = &now
	return it, nil
}

// buildSeasons groups TVDB episodes by season number into the
// Season/Episode MediaItem skeleton internal/transition walks.
func buildSeasons(episodes []tvdb.Episode) []*item.MediaItem {
	bySeason := map[int]*item.MediaItem{}
	var order []int

	for _, ep := range episodes {
		season, ok := bySeason[ep.Season]
		if !ok {
			season = &item.MediaItem{Kind: item.KindSeason, Number: ep.Season}
			bySeason[ep.Season] = season
			order = append(order, ep.Season)
		}
		aired := ep.AirDate
		episode := &item.MediaItem{
			Kind:    item.KindEpisode,
			Number:  ep.Episode,
			Title:   ep.Name,
			AiredAt: &aired,
			Parent:  season,
		}
		season.Episodes = append(season.Episodes, episode)
	}

	seasons := make([]*item.MediaItem, 0, len(order))
	for _, n := range order {
		seasons = append(seasons, bySeason[n])
	}
	return seasons
}

func bestShowMatch(results []tvdb.SearchResult, title string, year int) (tvdb.SearchResult, bool) {
	want := strings.ToLower(strings.TrimSpace(title))
	for _, r := range results {
		if strings.ToLower(strings.TrimSpace(r.Name)) != want {
			continue
		}
		if year != 0 && r.Year != 0 && absInt(r.Year-year) > 1 {
			continue
		}
		return r, true
	}
	return tvdb.SearchResult{}, false
}

func genreNames(genres []tmdb.Genre) []string {
	names := make([]string, 0, len(genres))
	for _, g := range genres {
		names = append(names, g.Name)
	}
	return names
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var _ providers.MetadataIndexer = (*Indexer)(nil)
