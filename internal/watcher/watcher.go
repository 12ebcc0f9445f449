// Package watcher implements the Filesystem Watcher (spec.md §4.9,
// C10): it observes library_path for symlink deletions and turns each
// one into a store removal, deriving the affected item from the path
// layout the Symlinker (internal/symlink) writes.
//
// Grounded on original_source/backend/program/symlink.go's
// DeleteHandler/on_symlink_deleted (a TODO stub in the original —
// spec.md §4.9 specifies the removal behavior this package supplies)
// and on the teacher's worker-pool/service package shape.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vmunix/wantarr/internal/item"
)

var (
	imdbSegmentRegex   = regexp.MustCompile(`\{imdb-(tt\d+)\}`)
	seasonEpisodeRegex = regexp.MustCompile(`(?i)s(\d{2})e(\d{2})`)
	seasonDirRegex     = regexp.MustCompile(`(?i)^season (\d+)$`)
)

// Store is the subset of internal/store.Store the watcher depends on.
type Store interface {
	GetByIMDB(imdbID string) (*item.MediaItem, error)
	Tree(id int64) (*item.MediaItem, error)
	Delete(id int64) error
}

// Config configures a Watcher.
type Config struct {
	LibraryPath string
	// Debounce is how long to wait after the last removal event before
	// acting, so a directory deleted together with its contents is
	// handled once (spec.md §4.9's "debounce parent-after-child
	// deletions"). Defaults to 2s.
	Debounce time.Duration
}

// Watcher observes LibraryPath recursively for symlink/directory
// deletions and removes the corresponding item tree from the store.
type Watcher struct {
	libraryPath string
	debounce    time.Duration
	store       Store
	logger      *slog.Logger
	fsw         *fsnotify.Watcher

	mu      sync.Mutex
	pending []string
	timer   *time.Timer

	// onHandled, when set, is called after each removal event is fully
	// processed (including a no-op event). Tests use it to synchronize
	// without sleeping past the debounce window.
	onHandled func(path string)
}

// New creates a Watcher and starts watching LibraryPath and every
// directory beneath it.
func New(cfg Config, store Store, logger *slog.Logger) (*Watcher, error) {
	if cfg.LibraryPath == "" {
		return nil, errors.New("watcher: library_path is required")
	}
	if _, err := os.Stat(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("watcher: library_path does not exist: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		libraryPath: cfg.LibraryPath,
		debounce:    debounce,
		store:       store,
		logger:      logger,
		fsw:         fsw,
	}
	if err := w.addRecursive(cfg.LibraryPath); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watcher: watch %s: %w", cfg.LibraryPath, err)
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Run processes filesystem events until ctx is canceled or the
// underlying watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("watch new directory failed", "path", ev.Name, "error", err)
			}
		}
		return
	}
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.enqueueRemoval(ev.Name)
	}
}

// enqueueRemoval batches removal paths and schedules a debounced flush
// so a directory deleted together with its contents is acted on once.
func (w *Watcher) enqueueRemoval(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, path)
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	} else {
		w.timer.Reset(w.debounce)
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := w.pending
	w.pending = nil
	w.timer = nil
	w.mu.Unlock()

	for _, p := range dedupeDescendants(paths) {
		w.handleRemoval(p)
		if w.onHandled != nil {
			w.onHandled(p)
		}
	}
}

// dedupeDescendants drops any path that is nested under another path
// in the same batch, keeping only the topmost ancestor of each
// deleted subtree.
func dedupeDescendants(paths []string) []string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var kept []string
	for _, p := range sorted {
		descendant := false
		for _, k := range kept {
			if strings.HasPrefix(p, k+string(filepath.Separator)) {
				descendant = true
				break
			}
		}
		if !descendant {
			kept = append(kept, p)
		}
	}
	return kept
}

// handleRemoval derives the affected item from path and removes it
// (and its subtree) from the store, per spec.md §4.9.
func (w *Watcher) handleRemoval(path string) {
	imdbID, ok := extractIMDBID(path)
	if !ok {
		w.logger.Debug("deletion outside library layout, ignoring", "path", path)
		return
	}

	root, err := w.store.GetByIMDB(imdbID)
	if err != nil {
		w.logger.Warn("deleted path has no matching item", "imdb_id", imdbID, "path", path, "error", err)
		return
	}

	target := root
	if root.Kind == item.KindShow {
		base := filepath.Base(path)
		season, episode, hasEpisode := extractSeasonEpisode(base)
		seasonDir := seasonDirRegex.FindStringSubmatch(base)
		if !hasEpisode && seasonDir == nil {
			w.logger.Debug("show-level deletion without season or episode marker, removing whole show", "imdb_id", imdbID, "path", path)
		} else {
			tree, err := w.store.Tree(root.ID)
			if err != nil {
				w.logger.Error("load show tree for removal failed", "imdb_id", imdbID, "error", err)
				return
			}
			var found *item.MediaItem
			if hasEpisode {
				found = findEpisode(tree, season, episode)
			} else {
				season, _ = strconv.Atoi(seasonDir[1])
				for _, s := range tree.Seasons {
					if s.Number == season {
						found = s
					}
				}
			}
			if found == nil {
				w.logger.Warn("no matching season or episode for deleted path", "imdb_id", imdbID, "season", season, "episode", episode, "path", path)
				return
			}
			target = found
		}
	}

	if err := w.store.Delete(target.ID); err != nil {
		w.logger.Error("delete item failed", "id", target.ID, "path", path, "error", err)
		return
	}
	w.logger.Info("removed item after symlink deletion", "imdb_id", imdbID, "id", target.ID, "kind", target.Kind, "path", path)
}

// extractIMDBID finds the "{imdb-ttXXXXXXX}" marker the Symlinker
// embeds in movie and show folder names (internal/symlink).
func extractIMDBID(path string) (string, bool) {
	m := imdbSegmentRegex.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// extractSeasonEpisode derives season/episode numbers from an
// "sNNeNN" marker in filename, per spec.md §4.9.
func extractSeasonEpisode(filename string) (season, episode int, ok bool) {
	m := seasonEpisodeRegex.FindStringSubmatch(filename)
	if m == nil {
		return 0, 0, false
	}
	season, _ = strconv.Atoi(m[1])
	episode, _ = strconv.Atoi(m[2])
	return season, episode, true
}

func findEpisode(show *item.MediaItem, season, episode int) *item.MediaItem {
	for _, s := range show.Seasons {
		if s.Number != season {
			continue
		}
		for _, e := range s.Episodes {
			if e.Number == episode {
				return e
			}
		}
	}
	return nil
}
