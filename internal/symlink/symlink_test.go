package symlink

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/wantarr/internal/item"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBlacklister struct {
	blacklisted []string
}

func (f *fakeBlacklister) Blacklist(ctx context.Context, infohash string) error {
	f.blacklisted = append(f.blacklisted, infohash)
	return nil
}

func newTestMaterializer(t *testing.T, hashcache HashBlacklister) (*Materializer, string, string) {
	t.Helper()
	rclone := t.TempDir()
	library := t.TempDir()
	m, err := New(Config{
		RclonePath:   rclone,
		LibraryPath:  library,
		PollInterval: time.Millisecond,
		PollTimeout:  20 * time.Millisecond,
		WalkAfter:    10 * time.Millisecond,
	}, hashcache, testLogger())
	require.NoError(t, err)
	return m, rclone, library
}

func runAndWait(t *testing.T, m *Materializer, it *item.MediaItem) *item.MediaItem {
	t.Helper()
	out, err := m.Run(context.Background(), it)
	require.NoError(t, err)
	select {
	case got := <-out:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not complete in time")
		return nil
	}
}

func aired(year int) *time.Time {
	tm := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &tm
}

func TestNewRejectsRelativePaths(t *testing.T) {
	_, err := New(Config{RclonePath: "relative", LibraryPath: "also/relative"}, nil, testLogger())
	assert.Error(t, err)
}

func TestNewCreatesLibraryRoots(t *testing.T) {
	_, _, library := newTestMaterializer(t, nil)
	for _, dir := range []string{"movies", "shows", "anime_movies", "anime_shows"} {
		info, err := os.Stat(filepath.Join(library, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestDetectMountLayoutPrefersZurgAllFolder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "__all__"), 0o755))
	assert.Equal(t, filepath.Join(root, "__all__"), detectMountLayout(root))
}

func TestDetectMountLayoutFallsBackToTorrentsFolder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "torrents"), 0o755))
	assert.Equal(t, filepath.Join(root, "torrents"), detectMountLayout(root))
}

func TestDetectMountLayoutLeavesStandardRootUnchanged(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, root, detectMountLayout(root))
}

func TestSymlinkMovieCreatesSymlinkAtExpectedPath(t *testing.T) {
	m, rclone, library := newTestMaterializer(t, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(rclone, "release-folder"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rclone, "release-folder", "Movie.2020.mkv"), []byte("x"), 0o644))

	it := &item.MediaItem{
		Kind:    item.KindMovie,
		Title:   "Movie",
		IMDBID:  "tt001",
		AiredAt: aired(2020),
		File:    "Movie.2020.mkv",
		Folder:  "release-folder",
	}

	got := runAndWait(t, m, it)
	require.True(t, got.Symlinked)
	require.NotNil(t, got.SymlinkedAt)
	assert.Equal(t, 1, got.SymlinkedTimes)

	dest := filepath.Join(library, "movies", "Movie (2020) {imdb-tt001}", "Movie (2020) {imdb-tt001}.mkv")
	target, err := os.Readlink(dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rclone, "release-folder", "Movie.2020.mkv"), target)
	assert.Equal(t, filepath.Join(library, "movies", "Movie (2020) {imdb-tt001}"), got.UpdateFolder)
}

func TestSymlinkEpisodeCreatesSymlinkUnderSeasonFolder(t *testing.T) {
	m, rclone, library := newTestMaterializer(t, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(rclone, "release-folder"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rclone, "release-folder", "Show.S01E02.mkv"), []byte("x"), 0o644))

	show := &item.MediaItem{Kind: item.KindShow, Title: "Show", IMDBID: "tt777", AiredAt: aired(2019)}
	season := &item.MediaItem{Kind: item.KindSeason, Number: 1, Parent: show}
	show.Seasons = []*item.MediaItem{season}
	ep := &item.MediaItem{
		Kind:   item.KindEpisode,
		Number: 2,
		Title:  "Pilot",
		Parent: season,
		File:   "Show.S01E02.mkv",
		Folder: "release-folder",
	}
	season.Episodes = []*item.MediaItem{ep}

	got := runAndWait(t, m, ep)
	require.True(t, got.Symlinked)

	dest := filepath.Join(library, "shows", "Show (2019) {imdb-tt777}", "Season 01", "Show (2019) - s01e02 - Pilot.mkv")
	_, err := os.Lstat(dest)
	assert.NoError(t, err)
}

func TestLocateSourceFallsBackToAlternativeFolder(t *testing.T) {
	m, rclone, _ := newTestMaterializer(t, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(rclone, "alt-folder"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rclone, "alt-folder", "Movie.2021.mkv"), []byte("x"), 0o644))

	it := &item.MediaItem{
		Kind:              item.KindMovie,
		Title:             "Movie",
		IMDBID:            "tt002",
		AiredAt:           aired(2021),
		File:              "Movie.2021.mkv",
		Folder:            "missing-folder",
		AlternativeFolder: "alt-folder",
	}

	err := m.locateSource(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, "alt-folder", it.Folder)
}

func TestLocateSourceFallsBackToFileFileLayout(t *testing.T) {
	m, rclone, _ := newTestMaterializer(t, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(rclone, "Movie.2021.mkv"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rclone, "Movie.2021.mkv", "Movie.2021.mkv"), []byte("x"), 0o644))

	it := &item.MediaItem{File: "Movie.2021.mkv"}

	err := m.locateSource(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, "Movie.2021.mkv", it.Folder)
}

func TestLocateSourceSearchesEntireMountAfterWalkDelay(t *testing.T) {
	m, rclone, _ := newTestMaterializer(t, nil)

	nested := filepath.Join(rclone, "nested", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "Movie.2022.mkv"), []byte("x"), 0o644))

	it := &item.MediaItem{File: "Movie.2022.mkv", Folder: "unrelated"}

	err := m.locateSource(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("nested", "deep"), it.Folder)
}

func TestSymlinkSourceNotFoundReturnsErrorAndIncrementsTimes(t *testing.T) {
	m, _, _ := newTestMaterializer(t, nil)
	it := &item.MediaItem{Kind: item.KindMovie, Title: "Missing", IMDBID: "tt003", AiredAt: aired(2020), File: "gone.mkv", Folder: "nowhere"}

	got := runAndWait(t, m, it)
	assert.False(t, got.Symlinked)
	assert.Equal(t, 1, got.SymlinkedTimes)
}

func TestRetryBudgetExhaustionBlacklistsAndResets(t *testing.T) {
	fb := &fakeBlacklister{}
	m, _, _ := newTestMaterializer(t, fb)

	it := &item.MediaItem{
		Kind:           item.KindMovie,
		Title:          "Stuck",
		IMDBID:         "tt004",
		AiredAt:        aired(2020),
		File:           "gone.mkv",
		Folder:         "nowhere",
		SymlinkedTimes: 3,
		Streams:        map[string]item.Stream{"abc123": {}},
		ActiveStream:   item.ActiveStream{InfoHash: "abc123"},
	}

	got := runAndWait(t, m, it)
	assert.False(t, got.Symlinked)
	assert.Empty(t, got.Streams)
	assert.True(t, got.ActiveStream.Empty())
	require.Len(t, fb.blacklisted, 1)
	assert.Equal(t, "abc123", fb.blacklisted[0])
}

func TestSeasonCompoundSymlinksAllEpisodesWhenFullyDownloaded(t *testing.T) {
	m, rclone, library := newTestMaterializer(t, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(rclone, "release-folder"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rclone, "release-folder", "Show.S01E01.mkv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rclone, "release-folder", "Show.S01E02.mkv"), []byte("x"), 0o644))

	show := &item.MediaItem{Kind: item.KindShow, Title: "Show", IMDBID: "tt888", AiredAt: aired(2018)}
	season := &item.MediaItem{Kind: item.KindSeason, Number: 1, Parent: show}
	show.Seasons = []*item.MediaItem{season}
	ep1 := &item.MediaItem{Kind: item.KindEpisode, Number: 1, Title: "One", Parent: season, File: "Show.S01E01.mkv", Folder: "release-folder"}
	ep2 := &item.MediaItem{Kind: item.KindEpisode, Number: 2, Title: "Two", Parent: season, File: "Show.S01E02.mkv", Folder: "release-folder"}
	season.Episodes = []*item.MediaItem{ep1, ep2}

	got := runAndWait(t, m, season)
	assert.Nil(t, got.AiredAt)
	assert.True(t, ep1.Symlinked)
	assert.True(t, ep2.Symlinked)

	for _, ep := range []*item.MediaItem{ep1, ep2} {
		_, err := os.Lstat(filepath.Join(library, "shows", "Show (2018) {imdb-tt888}", "Season 01", "Show (2018) - s01e0"+string(rune('0'+ep.Number))+" - "+ep.Title+".mkv"))
		assert.NoError(t, err)
	}
}

func TestSeasonWithIncompleteEpisodesIsNotTreatedAsCompound(t *testing.T) {
	m, _, _ := newTestMaterializer(t, nil)

	show := &item.MediaItem{Kind: item.KindShow, Title: "Show", IMDBID: "tt999", AiredAt: aired(2018)}
	season := &item.MediaItem{Kind: item.KindSeason, Number: 1, Parent: show}
	show.Seasons = []*item.MediaItem{season}
	ep1 := &item.MediaItem{Kind: item.KindEpisode, Number: 1, Parent: season, File: "Show.S01E01.mkv", Folder: "release-folder"}
	ep2 := &item.MediaItem{Kind: item.KindEpisode, Number: 2, Parent: season}
	season.Episodes = []*item.MediaItem{ep1, ep2}

	got := runAndWait(t, m, season)
	assert.False(t, got.Symlinked)
	assert.False(t, ep1.Symlinked)
}

func TestCreateSymlinkIsIdempotentAcrossRepeatedRuns(t *testing.T) {
	m, rclone, library := newTestMaterializer(t, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(rclone, "release-folder"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rclone, "release-folder", "Movie.2023.mkv"), []byte("x"), 0o644))

	it := &item.MediaItem{Kind: item.KindMovie, Title: "Movie", IMDBID: "tt005", AiredAt: aired(2023), File: "Movie.2023.mkv", Folder: "release-folder"}

	first := runAndWait(t, m, it)
	require.True(t, first.Symlinked)

	second := runAndWait(t, m, first)
	require.True(t, second.Symlinked)
	assert.Equal(t, 2, second.SymlinkedTimes)

	dest := filepath.Join(library, "movies", "Movie (2023) {imdb-tt005}", "Movie (2023) {imdb-tt005}.mkv")
	target, err := os.Readlink(dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rclone, "release-folder", "Movie.2023.mkv"), target)
}

func TestDetermineFilenameRejectsNonPrimaryEpisodeOfMultiEpisodeFile(t *testing.T) {
	show := &item.MediaItem{Kind: item.KindShow, Title: "Show", AiredAt: aired(2020)}
	season := &item.MediaItem{Kind: item.KindSeason, Number: 1, Parent: show}
	ep := &item.MediaItem{Kind: item.KindEpisode, Number: 2, Parent: season, File: "Show.S01E01-E03.mkv"}

	_, err := determineFilename(ep)
	require.Error(t, err)
}

func TestDetermineFilenameProducesEpisodeRangeForPrimaryEpisode(t *testing.T) {
	show := &item.MediaItem{Kind: item.KindShow, Title: "Show", AiredAt: aired(2020)}
	season := &item.MediaItem{Kind: item.KindSeason, Number: 1, Parent: show}
	ep := &item.MediaItem{Kind: item.KindEpisode, Number: 1, Title: "Multi", Parent: season, File: "Show.S01E01-E03.mkv"}

	name, err := determineFilename(ep)
	require.NoError(t, err)
	assert.Contains(t, name, "s01e01-e03")
}
