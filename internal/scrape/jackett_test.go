package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/wantarr/internal/item"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const torznabBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:torznab="http://torznab.com/schemas/2015/feed">
<channel>
<item>
<title>%s</title>
<torznab:attr name="infohash" value="%s"/>
</item>
</channel>
</rss>`

func torznabServer(t *testing.T, title, hash string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, torznabBody, title, hash)
	}))
}

type fakeHashBlacklist struct {
	blacklisted map[string]bool
}

func (f *fakeHashBlacklist) IsBlacklisted(ctx context.Context, infohash string) (bool, error) {
	return f.blacklisted[infohash], nil
}

func TestJackettScraperMergesResultsAcrossIndexers(t *testing.T) {
	srv1 := torznabServer(t, "Correct Movie 2020 1080p WEB-DL", "hash1")
	defer srv1.Close()
	srv2 := torznabServer(t, "Correct Movie 2020 2160p WEB-DL", "hash2")
	defer srv2.Close()

	scraper := NewJackettScraper(JackettConfig{
		Indexers: []JackettIndexer{
			{Name: "idx1", BaseURL: srv1.URL},
			{Name: "idx2", BaseURL: srv2.URL},
		},
		Profile: Profile{Specs: []Spec{{}}},
	}, nil, testLogger())

	past := time.Now().Add(-time.Hour)
	movie := &item.MediaItem{Kind: item.KindMovie, Title: "Correct Movie", AiredAt: &past}

	ch, err := scraper.Run(context.Background(), movie)
	require.NoError(t, err)
	out := <-ch

	assert.Contains(t, out.Streams, "hash1")
	assert.Contains(t, out.Streams, "hash2")
	assert.NotNil(t, out.ScrapedAt)
	assert.Equal(t, 1, out.ScrapedTimes)
}

func TestJackettScraperSkipsUnreleasedItem(t *testing.T) {
	srv := torznabServer(t, "Correct Movie 2020 1080p WEB-DL", "hash1")
	defer srv.Close()

	scraper := NewJackettScraper(JackettConfig{
		Indexers: []JackettIndexer{{Name: "idx1", BaseURL: srv.URL}},
		Profile:  Profile{Specs: []Spec{{}}},
	}, nil, testLogger())

	future := time.Now().Add(time.Hour)
	movie := &item.MediaItem{Kind: item.KindMovie, Title: "Correct Movie", AiredAt: &future}

	ch, err := scraper.Run(context.Background(), movie)
	require.NoError(t, err)
	out, ok := <-ch
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestJackettScraperFiltersBlacklistedHash(t *testing.T) {
	srv := torznabServer(t, "Correct Movie 2020 1080p WEB-DL", "hash1")
	defer srv.Close()

	scraper := NewJackettScraper(JackettConfig{
		Indexers: []JackettIndexer{{Name: "idx1", BaseURL: srv.URL}},
		Profile:  Profile{Specs: []Spec{{}}},
	}, &fakeHashBlacklist{blacklisted: map[string]bool{"hash1": true}}, testLogger())

	past := time.Now().Add(-time.Hour)
	movie := &item.MediaItem{Kind: item.KindMovie, Title: "Correct Movie", AiredAt: &past}

	ch, err := scraper.Run(context.Background(), movie)
	require.NoError(t, err)
	out := <-ch
	assert.NotContains(t, out.Streams, "hash1")
}

func TestJackettScraperHardRateLimitReturnsErrRateLimited(t *testing.T) {
	srv := torznabServer(t, "Correct Movie 2020 1080p WEB-DL", "hash1")
	defer srv.Close()

	scraper := NewJackettScraper(JackettConfig{
		Indexers: []JackettIndexer{{Name: "idx1", BaseURL: srv.URL}},
		Profile:  Profile{Specs: []Spec{{}}},
		RPS:      1,
		Burst:    1,
	}, nil, testLogger())

	past := time.Now().Add(-time.Hour)
	movie := &item.MediaItem{Kind: item.KindMovie, Title: "Correct Movie", AiredAt: &past}

	_, err := scraper.Run(context.Background(), movie)
	require.NoError(t, err)

	_, err = scraper.Run(context.Background(), movie)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestJackettScraperOneIndexerFailureDoesNotDropOthers(t *testing.T) {
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()
	goodSrv := torznabServer(t, "Correct Movie 2020 1080p WEB-DL", "hash1")
	defer goodSrv.Close()

	scraper := NewJackettScraper(JackettConfig{
		Indexers: []JackettIndexer{
			{Name: "bad", BaseURL: badSrv.URL},
			{Name: "good", BaseURL: goodSrv.URL},
		},
		Profile: Profile{Specs: []Spec{{}}},
	}, nil, testLogger())

	past := time.Now().Add(-time.Hour)
	movie := &item.MediaItem{Kind: item.KindMovie, Title: "Correct Movie", AiredAt: &past}

	ch, err := scraper.Run(context.Background(), movie)
	require.NoError(t, err)
	out := <-ch
	assert.Contains(t, out.Streams, "hash1")
}

func TestJackettScraperShouldScrapeAndShouldSubmit(t *testing.T) {
	scraper := NewJackettScraper(JackettConfig{
		Indexers:   []JackettIndexer{{Name: "idx1", BaseURL: "http://example.invalid"}},
		Thresholds: DefaultThresholds,
	}, nil, testLogger())

	past := time.Now().Add(-time.Hour)
	movie := &item.MediaItem{Kind: item.KindMovie, AiredAt: &past}
	assert.True(t, scraper.ShouldScrape(movie))
	assert.True(t, scraper.ShouldSubmit(movie))

	show := &item.MediaItem{Kind: item.KindShow, AiredAt: &past}
	assert.False(t, scraper.ShouldSubmit(show))
}
