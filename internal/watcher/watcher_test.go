package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/wantarr/internal/item"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu      sync.Mutex
	byIMDB  map[string]*item.MediaItem
	trees   map[int64]*item.MediaItem
	deleted []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{byIMDB: map[string]*item.MediaItem{}, trees: map[int64]*item.MediaItem{}}
}

func (f *fakeStore) GetByIMDB(imdbID string) (*item.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.byIMDB[imdbID]
	if !ok {
		return nil, os.ErrNotExist
	}
	return it, nil
}

func (f *fakeStore) Tree(id int64) (*item.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.trees[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return it, nil
}

func (f *fakeStore) Delete(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) deletedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.deleted))
	copy(out, f.deleted)
	return out
}

func newTestWatcher(t *testing.T, store Store) (*Watcher, string, chan string) {
	t.Helper()
	library := t.TempDir()
	w, err := New(Config{LibraryPath: library, Debounce: 30 * time.Millisecond}, store, testLogger())
	require.NoError(t, err)

	handled := make(chan string, 16)
	w.onHandled = func(path string) { handled <- path }

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(func() {
		cancel()
		w.Close()
	})
	return w, library, handled
}

func waitHandled(t *testing.T, handled chan string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-handled:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for removal %d/%d to be handled", i+1, n)
		}
	}
}

func TestExtractIMDBIDFromMoviePath(t *testing.T) {
	id, ok := extractIMDBID("/library/movies/The Matrix (1999) {imdb-tt0133093}/The Matrix (1999) {imdb-tt0133093}.mkv")
	require.True(t, ok)
	assert.Equal(t, "tt0133093", id)
}

func TestExtractIMDBIDMissingReturnsFalse(t *testing.T) {
	_, ok := extractIMDBID("/library/movies/unrelated/file.mkv")
	assert.False(t, ok)
}

func TestExtractSeasonEpisodeFromFilename(t *testing.T) {
	season, episode, ok := extractSeasonEpisode("Foo (2020) - s02e03 - title.mkv")
	require.True(t, ok)
	assert.Equal(t, 2, season)
	assert.Equal(t, 3, episode)
}

func TestDedupeDescendantsKeepsOnlyTopmostAncestor(t *testing.T) {
	paths := []string{
		"/lib/shows/Foo/Season 02/ep1.mkv",
		"/lib/shows/Foo/Season 02",
		"/lib/shows/Foo/Season 02/ep2.mkv",
	}
	out := dedupeDescendants(paths)
	assert.Equal(t, []string{"/lib/shows/Foo/Season 02"}, out)
}

func TestDedupeDescendantsKeepsUnrelatedPaths(t *testing.T) {
	paths := []string{"/lib/movies/A", "/lib/movies/B"}
	out := dedupeDescendants(paths)
	assert.ElementsMatch(t, []string{"/lib/movies/A", "/lib/movies/B"}, out)
}

func TestWatcherRemovesMovieOnSymlinkDeletion(t *testing.T) {
	store := newFakeStore()
	store.byIMDB["tt0133093"] = &item.MediaItem{ID: 42, Kind: item.KindMovie}

	_, library, handled := newTestWatcher(t, store)

	dir := filepath.Join(library, "movies", "The Matrix (1999) {imdb-tt0133093}")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	file := filepath.Join(dir, "The Matrix (1999) {imdb-tt0133093}.mkv")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	require.NoError(t, os.Remove(file))

	waitHandled(t, handled, 1)
	assert.Equal(t, []int64{42}, store.deletedIDs())
}

func TestWatcherRemovesEpisodeOnSymlinkDeletion(t *testing.T) {
	show := &item.MediaItem{ID: 1, Kind: item.KindShow}
	season := &item.MediaItem{ID: 2, Kind: item.KindSeason, Number: 2, Parent: show}
	ep := &item.MediaItem{ID: 3, Kind: item.KindEpisode, Number: 3, Parent: season}
	season.Episodes = []*item.MediaItem{ep}
	show.Seasons = []*item.MediaItem{season}

	store := newFakeStore()
	store.byIMDB["tt0000001"] = show
	store.trees[1] = show

	_, library, handled := newTestWatcher(t, store)

	dir := filepath.Join(library, "shows", "Foo (2020) {imdb-tt0000001}", "Season 02")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	file := filepath.Join(dir, "Foo (2020) - s02e03 - title.mkv")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	require.NoError(t, os.Remove(file))

	waitHandled(t, handled, 1)
	assert.Equal(t, []int64{3}, store.deletedIDs())
}

func TestWatcherDebouncesDirectoryAndChildDeletion(t *testing.T) {
	show := &item.MediaItem{ID: 1, Kind: item.KindShow}
	season := &item.MediaItem{ID: 2, Kind: item.KindSeason, Number: 2, Parent: show}
	ep1 := &item.MediaItem{ID: 3, Kind: item.KindEpisode, Number: 1, Parent: season}
	ep2 := &item.MediaItem{ID: 4, Kind: item.KindEpisode, Number: 2, Parent: season}
	season.Episodes = []*item.MediaItem{ep1, ep2}
	show.Seasons = []*item.MediaItem{season}

	store := newFakeStore()
	store.byIMDB["tt0000002"] = show
	store.trees[1] = show

	_, library, handled := newTestWatcher(t, store)

	showDir := filepath.Join(library, "shows", "Bar (2021) {imdb-tt0000002}")
	seasonDir := filepath.Join(showDir, "Season 02")
	require.NoError(t, os.MkdirAll(seasonDir, 0o755))
	f1 := filepath.Join(seasonDir, "Bar (2021) - s02e01 - one.mkv")
	f2 := filepath.Join(seasonDir, "Bar (2021) - s02e02 - two.mkv")
	require.NoError(t, os.WriteFile(f1, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(f2, []byte("x"), 0o644))

	require.NoError(t, os.RemoveAll(seasonDir))

	waitHandled(t, handled, 1)
	assert.Equal(t, []int64{2}, store.deletedIDs(), "only the season directory itself should be removed, not its files individually")
}

func TestWatcherIgnoresDeletionsWithoutIMDBMarker(t *testing.T) {
	store := newFakeStore()
	_, library, handled := newTestWatcher(t, store)

	dir := filepath.Join(library, "movies", "unrelated")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	file := filepath.Join(dir, "file.mkv")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.NoError(t, os.Remove(file))

	waitHandled(t, handled, 1)
	assert.Empty(t, store.deletedIDs())
}
