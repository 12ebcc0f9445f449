package contentsource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plexWatchlistServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/library/sections/watchlist/all", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<MediaContainer><Video ratingKey="123"></Video></MediaContainer>`)
	})
	mux.HandleFunc("/library/metadata/123", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<MediaContainer><Video ratingKey="123"><Guid id="imdb://tt0500"/></Video></MediaContainer>`)
	})
	return httptest.NewServer(mux)
}

func newTestPlexWatchlist(t *testing.T, store ItemStore) (*PlexWatchlist, *httptest.Server) {
	t.Helper()
	srv := plexWatchlistServer(t)
	p := NewPlexWatchlist("test-token", true, store, testLogger())
	p.baseURL = srv.URL
	return p, srv
}

func TestPlexWatchlist_Initialized(t *testing.T) {
	p := NewPlexWatchlist("token", true, &fakeStore{}, testLogger())
	assert.True(t, p.Initialized())

	disabled := NewPlexWatchlist("token", false, &fakeStore{}, testLogger())
	assert.False(t, disabled.Initialized())

	noToken := NewPlexWatchlist("", true, &fakeStore{}, testLogger())
	assert.False(t, noToken.Initialized())
}

func TestPlexWatchlist_Poll_ResolvesIMDBIDAndDedupes(t *testing.T) {
	p, srv := newTestPlexWatchlist(t, &fakeStore{})
	defer srv.Close()

	ch, err := p.Poll(context.Background())
	require.NoError(t, err)
	var got []string
	for it := range ch {
		got = append(got, it.IMDBID)
	}
	require.Equal(t, []string{"tt0500"}, got)

	// Second poll: already seen this process, yields nothing new.
	ch, err = p.Poll(context.Background())
	require.NoError(t, err)
	var second []string
	for it := range ch {
		second = append(second, it.IMDBID)
	}
	assert.Empty(t, second)
}

func TestPlexWatchlist_Poll_SkipsItemsAlreadyInStore(t *testing.T) {
	p, srv := newTestPlexWatchlist(t, &fakeStore{known: map[string]bool{"tt0500": true}})
	defer srv.Close()

	ch, err := p.Poll(context.Background())
	require.NoError(t, err)
	var got []string
	for it := range ch {
		got = append(got, it.IMDBID)
	}
	assert.Empty(t, got)
}

func TestPlexWatchlist_TokenPassedAsQueryParam(t *testing.T) {
	var sawToken string
	mux := http.NewServeMux()
	mux.HandleFunc("/library/sections/watchlist/all", func(w http.ResponseWriter, r *http.Request) {
		sawToken = r.URL.Query().Get("X-Plex-Token")
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<MediaContainer></MediaContainer>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewPlexWatchlist("my-secret-token", true, &fakeStore{}, testLogger())
	p.baseURL = srv.URL
	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-secret-token", sawToken)
}
