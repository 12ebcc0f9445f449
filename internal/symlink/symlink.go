// Package symlink implements the Symlink Materializer (spec.md §4.8,
// C9): it locates a downloaded file under a debrid rclone mount and
// creates a symlink for it inside a four-root library tree
// (movies/shows/anime_movies/anime_shows), giving up and forcing a
// rescrape after repeated failures.
//
// Grounded on original_source/backend/program/symlink.go's Symlinker
// (file_check, _determine_file_name, _symlink, _create_item_folders).
package symlink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmunix/wantarr/internal/events"
	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/providers"
	"github.com/vmunix/wantarr/pkg/release"
)

var (
	// ErrInvalidFile is returned when an item's File is empty or the
	// "None.mkv" sentinel the scrape/download steps never actually
	// produced a usable filename for.
	ErrInvalidFile = errors.New("symlink: invalid file, needs rescrape")
	// ErrSourceNotFound is returned when locateSource exhausts its poll
	// budget and exhaustive walk without finding the file.
	ErrSourceNotFound = errors.New("symlink: source file not found")
	// ErrNotPrimaryEpisode is returned for an Episode whose File covers
	// a multi-episode range but does not start at this episode's
	// number; only the range's first episode gets materialized.
	ErrNotPrimaryEpisode = errors.New("symlink: not the primary episode of its file")
)

// HashBlacklister blacklists an infohash so the selector never offers
// it again. internal/hashcache.Cache satisfies this.
type HashBlacklister interface {
	Blacklist(ctx context.Context, infohash string) error
}

// Config configures a Materializer. RclonePath and LibraryPath must be
// absolute, existing directories (spec.md §4.8).
type Config struct {
	RclonePath  string
	LibraryPath string

	// PollInterval/PollTimeout/WalkAfter default to 5s/90s/30s, the
	// values spec.md §4.8 step 1 names. Tests override them to keep
	// the file-not-found path fast.
	PollInterval time.Duration
	PollTimeout  time.Duration
	WalkAfter    time.Duration
}

// Materializer is the Symlinker service (providers.NameSymlinker).
type Materializer struct {
	rclonePath  string
	libraryPath string

	moviesRoot      string
	showsRoot       string
	animeMoviesRoot string
	animeShowsRoot  string

	hashcache HashBlacklister
	eventLog  EventLog
	logger    *slog.Logger

	pollInterval time.Duration
	pollTimeout  time.Duration
	walkAfter    time.Duration

	sleep func(time.Duration)
	now   func() time.Time
}

// EventLog is the subset of internal/events.EventLog Materializer needs
// to record a StreamBlacklisted audit event (spec.md invariant I4).
type EventLog interface {
	Append(e events.DomainEvent) (int64, error)
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithEventLog records a StreamBlacklisted event every time Materializer
// gives up on an item and blacklists its active stream. Omit to run
// without the admin audit trail.
func WithEventLog(log EventLog) Option {
	return func(m *Materializer) {
		m.eventLog = log
	}
}

// New validates cfg, detects the rclone mount's layout, and creates
// the four library roots.
func New(cfg Config, hashcache HashBlacklister, logger *slog.Logger, opts ...Option) (*Materializer, error) {
	if cfg.RclonePath == "" || cfg.LibraryPath == "" {
		return nil, fmt.Errorf("symlink: rclone_path and library_path are required")
	}
	if !filepath.IsAbs(cfg.RclonePath) || !filepath.IsAbs(cfg.LibraryPath) {
		return nil, fmt.Errorf("symlink: rclone_path and library_path must be absolute")
	}
	if _, err := os.Stat(cfg.RclonePath); err != nil {
		return nil, fmt.Errorf("symlink: rclone_path does not exist: %w", err)
	}
	if _, err := os.Stat(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("symlink: library_path does not exist: %w", err)
	}

	pollInterval, pollTimeout, walkAfter := cfg.PollInterval, cfg.PollTimeout, cfg.WalkAfter
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 90 * time.Second
	}
	if walkAfter <= 0 {
		walkAfter = 30 * time.Second
	}

	m := &Materializer{
		rclonePath:      detectMountLayout(cfg.RclonePath),
		libraryPath:     cfg.LibraryPath,
		moviesRoot:      filepath.Join(cfg.LibraryPath, "movies"),
		showsRoot:       filepath.Join(cfg.LibraryPath, "shows"),
		animeMoviesRoot: filepath.Join(cfg.LibraryPath, "anime_movies"),
		animeShowsRoot:  filepath.Join(cfg.LibraryPath, "anime_shows"),
		hashcache:       hashcache,
		logger:          logger,
		pollInterval:    pollInterval,
		pollTimeout:     pollTimeout,
		walkAfter:       walkAfter,
		sleep:           time.Sleep,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, dir := range []string{m.moviesRoot, m.showsRoot, m.animeMoviesRoot, m.animeShowsRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("symlink: create library folder %s: %w", dir, err)
		}
	}
	return m, nil
}

// detectMountLayout rebinds root to a Zurg-style "__all__" subdirectory
// or a standard "torrents" subdirectory when present, per spec.md
// §4.8's layout-detection step.
func detectMountLayout(root string) string {
	if info, err := os.Stat(filepath.Join(root, "__all__")); err == nil && info.IsDir() {
		return filepath.Join(root, "__all__")
	}
	if info, err := os.Stat(filepath.Join(root, "torrents")); err == nil && info.IsDir() {
		return filepath.Join(root, "torrents")
	}
	return root
}

// Key, Initialized, Validate satisfy providers.Service.
func (m *Materializer) Key() string { return string(providers.NameSymlinker) }

func (m *Materializer) Initialized() bool {
	return m.rclonePath != "" && m.libraryPath != ""
}

func (m *Materializer) Validate(ctx context.Context) bool {
	return m.Initialized()
}

// Run materializes it (and, for a Season/Show, every ready descendant)
// and returns it on the channel once every attempt has resolved.
func (m *Materializer) Run(ctx context.Context, it *item.MediaItem) (<-chan *item.MediaItem, error) {
	out := make(chan *item.MediaItem, 1)
	go func() {
		defer close(out)
		m.symlinkTree(ctx, it)
		select {
		case out <- it:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// symlinkTree dispatches compound items per spec.md §4.8's "Compound
// items" rule: a Season symlinks every episode once all are
// downloaded; a Show recurses over its seasons. Anything else is a
// single attempt.
func (m *Materializer) symlinkTree(ctx context.Context, it *item.MediaItem) bool {
	switch it.Kind {
	case item.KindShow:
		ok := true
		for _, season := range it.Seasons {
			if !m.symlinkTree(ctx, season) {
				ok = false
			}
		}
		return ok
	case item.KindSeason:
		if allEpisodesDownloaded(it.Episodes) {
			ok := true
			for _, ep := range it.Episodes {
				if !m.attempt(ctx, ep) {
					ok = false
				}
			}
			return ok
		}
		return m.attempt(ctx, it)
	default:
		return m.attempt(ctx, it)
	}
}

func allEpisodesDownloaded(episodes []*item.MediaItem) bool {
	if len(episodes) == 0 {
		return false
	}
	for _, ep := range episodes {
		if ep.File == "" || ep.Folder == "" {
			return false
		}
	}
	return true
}

// attempt runs a single symlink attempt for a Movie or Episode,
// enforcing the retry budget (spec.md §4.8's "Retry budget"): an item
// already symlinked three times without reaching Completed is reset
// and its active stream blacklisted instead of being tried again.
func (m *Materializer) attempt(ctx context.Context, it *item.MediaItem) bool {
	if it.SymlinkedTimes >= 3 {
		m.logger.Warn("symlink retry budget exhausted, forcing rescrape", "title", it.Title, "times", it.SymlinkedTimes)
		m.giveUp(ctx, it)
		return false
	}

	if err := m.symlinkSingle(ctx, it); err != nil {
		m.logger.Warn("symlink attempt failed", "title", it.Title, "error", err)
		it.SymlinkedTimes++
		if it.SymlinkedTimes >= 3 {
			m.giveUp(ctx, it)
		}
		return false
	}
	return true
}

// giveUp resets an item's download/scrape progress and blacklists its
// active stream, per spec.md §4.8 step 1's blacklist_item and the
// retry-budget paragraph.
func (m *Materializer) giveUp(ctx context.Context, it *item.MediaItem) {
	infohash := it.ActiveStream.InfoHash
	it.ResetForRescrape()
	if infohash == "" {
		m.logger.Error("cannot blacklist, no active stream hash", "title", it.Title)
		return
	}
	if m.hashcache == nil {
		return
	}
	if err := m.hashcache.Blacklist(ctx, infohash); err != nil {
		m.logger.Error("blacklist failed", "infohash", infohash, "error", err)
		return
	}
	if m.eventLog != nil && it.ID != 0 {
		ev := events.NewStreamBlacklisted(it.ID, infohash, "symlink retry budget exhausted")
		if _, err := m.eventLog.Append(ev); err != nil {
			m.logger.Warn("append blacklist event failed", "infohash", infohash, "error", err)
		}
	}
}

// symlinkSingle locates the source file, computes the destination
// path, and creates the symlink for a single Movie or Episode. On
// success it stamps symlinked/symlinked_at/symlinked_times.
func (m *Materializer) symlinkSingle(ctx context.Context, it *item.MediaItem) error {
	if it.File == "" || it.File == "None.mkv" {
		return fmt.Errorf("%w: %q", ErrInvalidFile, it.File)
	}

	if err := m.locateSource(ctx, it); err != nil {
		return err
	}

	filename, err := determineFilename(it)
	if err != nil {
		return err
	}
	ext := strings.TrimPrefix(filepath.Ext(it.File), ".")
	symlinkFilename := fmt.Sprintf("%s.%s", filename, ext)

	destination, err := m.createItemFolders(it, symlinkFilename)
	if err != nil {
		return err
	}
	source := filepath.Join(m.rclonePath, it.Folder, it.File)

	if err := createSymlink(source, destination); err != nil {
		return err
	}

	it.Symlinked = true
	now := m.now()
	it.SymlinkedAt = &now
	it.SymlinkedTimes++
	return nil
}

// locateSource finds item's source file under the rclone mount,
// following spec.md §4.8 step 1's fallback chain (folder, then
// alternative_folder, then file/file) and retry policy (poll every
// PollInterval up to PollTimeout, plus one exhaustive walk after
// WalkAfter). On success it.Folder is rewritten to whichever path
// matched.
func (m *Materializer) locateSource(ctx context.Context, it *item.MediaItem) error {
	if it.Folder != "" && it.AlternativeFolder != "" && it.Folder == it.AlternativeFolder {
		it.AlternativeFolder = strings.TrimSuffix(it.File, filepath.Ext(it.File))
	}

	deadline := m.now().Add(m.pollTimeout)
	walkAt := m.now().Add(m.walkAfter)
	walked := false

	for {
		if it.Folder != "" && fileExists(filepath.Join(m.rclonePath, it.Folder, it.File)) {
			return nil
		}
		if it.AlternativeFolder != "" && fileExists(filepath.Join(m.rclonePath, it.AlternativeFolder, it.File)) {
			it.Folder = it.AlternativeFolder
			return nil
		}
		if fileExists(filepath.Join(m.rclonePath, it.File, it.File)) {
			it.Folder = it.File
			return nil
		}

		now := m.now()
		if !walked && !now.Before(walkAt) {
			walked = true
			if folder, ok := m.walkForFile(it.File); ok {
				it.Folder = folder
				return nil
			}
		}
		if !now.Before(deadline) {
			return fmt.Errorf("%w: %s/%s", ErrSourceNotFound, it.Folder, it.File)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		m.sleep(m.pollInterval)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// walkForFile exhaustively searches the rclone mount for filename,
// spec.md §4.8 step 1's final fallback.
func (m *Materializer) walkForFile(filename string) (string, bool) {
	var found string
	_ = filepath.WalkDir(m.rclonePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != "" || d.IsDir() {
			return nil
		}
		if d.Name() != filename {
			return nil
		}
		if rel, relErr := filepath.Rel(m.rclonePath, filepath.Dir(path)); relErr == nil {
			found = rel
		}
		return nil
	})
	return found, found != ""
}

// determineFilename computes the destination basename (without
// extension), per spec.md §4.8 step 2.
func determineFilename(it *item.MediaItem) (string, error) {
	switch it.Kind {
	case item.KindMovie:
		if it.AiredAt == nil {
			return "", fmt.Errorf("symlink: movie %q missing aired_at", it.Title)
		}
		return fmt.Sprintf("%s (%d) {imdb-%s}", it.Title, it.AiredAt.Year(), it.IMDBID), nil

	case item.KindEpisode:
		season := it.Parent
		if season == nil || season.Parent == nil {
			return "", fmt.Errorf("symlink: episode %q has no parent season/show", it.Title)
		}
		show := season.Parent
		if show.AiredAt == nil {
			return "", fmt.Errorf("symlink: show %q missing aired_at", show.Title)
		}

		epString := ""
		if info := release.Parse(it.File); info != nil && len(info.Episodes) > 0 && info.Episodes[0] == it.Number {
			if len(info.Episodes) > 1 {
				epString = fmt.Sprintf("e%02d-e%02d", info.Episodes[0], info.Episodes[len(info.Episodes)-1])
			} else {
				epString = fmt.Sprintf("e%02d", it.Number)
			}
		}
		if epString == "" {
			return "", fmt.Errorf("%w: %s", ErrNotPrimaryEpisode, it.Title)
		}
		return fmt.Sprintf("%s (%d) - s%02d%s - %s", show.Title, show.AiredAt.Year(), season.Number, epString, it.Title), nil

	default:
		return "", fmt.Errorf("symlink: unsupported item kind %s", it.Kind)
	}
}

// createItemFolders creates the destination directory for it (the
// anime variant when applicable) and returns the full destination
// path for filename, per spec.md §4.8 step 3. It stamps
// it.UpdateFolder with the directory, for the library updater.
func (m *Materializer) createItemFolders(it *item.MediaItem, filename string) (string, error) {
	switch it.Kind {
	case item.KindMovie:
		root := m.moviesRoot
		if it.IsAnime {
			root = m.animeMoviesRoot
		}
		movieFolder := fmt.Sprintf("%s (%d) {imdb-%s}", strings.ReplaceAll(it.Title, "/", "-"), it.AiredAt.Year(), it.IMDBID)
		destFolder := filepath.Join(root, movieFolder)
		if err := os.MkdirAll(destFolder, 0o755); err != nil {
			return "", fmt.Errorf("symlink: create movie folder: %w", err)
		}
		it.UpdateFolder = destFolder
		return filepath.Join(destFolder, strings.ReplaceAll(filename, "/", "-")), nil

	case item.KindEpisode:
		season := it.Parent
		show := season.Parent
		root := m.showsRoot
		if show.IsAnime {
			root = m.animeShowsRoot
		}
		showFolder := fmt.Sprintf("%s (%d) {imdb-%s}", strings.ReplaceAll(show.Title, "/", "-"), show.AiredAt.Year(), show.IMDBID)
		seasonFolder := fmt.Sprintf("Season %02d", season.Number)
		destFolder := filepath.Join(root, showFolder, seasonFolder)
		if err := os.MkdirAll(destFolder, 0o755); err != nil {
			return "", fmt.Errorf("symlink: create season folder: %w", err)
		}
		it.UpdateFolder = destFolder
		return filepath.Join(destFolder, strings.ReplaceAll(filename, "/", "-")), nil

	default:
		return "", fmt.Errorf("symlink: unsupported item kind %s", it.Kind)
	}
}

// createSymlink removes any pre-existing entry at destination, links
// it to source, and verifies by re-reading the link, per spec.md
// §4.8 step 4.
func createSymlink(source, destination string) error {
	if _, err := os.Lstat(destination); err == nil {
		if err := os.Remove(destination); err != nil {
			return fmt.Errorf("symlink: remove existing entry at %s: %w", destination, err)
		}
	}
	if err := os.Symlink(source, destination); err != nil {
		return fmt.Errorf("symlink: create %s -> %s: %w", destination, source, err)
	}
	target, err := os.Readlink(destination)
	if err != nil {
		return fmt.Errorf("symlink: verify %s: %w", destination, err)
	}
	if target != source {
		return fmt.Errorf("symlink: verify %s: points to %s, want %s", destination, target, source)
	}
	return nil
}
