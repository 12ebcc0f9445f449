// Package plex implements the Updater role (providers.LibraryUpdater):
// after the Symlinker materializes an item's files, it triggers a
// partial Plex library scan of the item's folder and resolves the
// item's key/guid from Plex's library so the state machine can derive
// Completed once update_folder reads "updated" (original_source's
// program/plex.py Plex._update_sections: "section.update(item.folder)").
package plex

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vmunix/wantarr/internal/importer"
	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/providers"
)

// updateFolderDone is the marker Refresh returns once a scan has been
// triggered for an item, mirroring the Python original's
// item.update_folder = "updated".
const updateFolderDone = "updated"

// Client is the subset of importer.PlexClient's API Updater drives.
// Narrowed so tests can supply a fake without an HTTP server.
type Client interface {
	ScanPath(ctx context.Context, filePath string) error
	Search(ctx context.Context, query string) ([]importer.PlexItem, error)
	GetIdentity(ctx context.Context) (*importer.Identity, error)
}

// Updater implements providers.LibraryUpdater, driving a Client through
// the scan-then-match handshake for each item the Symlinker hands it.
type Updater struct {
	client      Client
	initialized bool
	logger      *slog.Logger
}

// NewUpdater builds an Updater around client. initialized reports
// whether Plex is configured at all (empty base URL/token upstream
// means the caller never constructed a real client), matching
// providers.Service.Initialized's contract.
func NewUpdater(client Client, initialized bool, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		client:      client,
		initialized: initialized,
		logger:      logger.With("component", "plex_updater"),
	}
}

func (u *Updater) Key() string       { return string(providers.NameUpdater) }
func (u *Updater) Initialized() bool { return u.initialized }

// Validate pings Plex's identity endpoint.
func (u *Updater) Validate(ctx context.Context) bool {
	if !u.initialized {
		return false
	}
	_, err := u.client.GetIdentity(ctx)
	return err == nil
}

// Run drives Refresh and stamps the resulting key/guid/update_folder
// onto it, the same orchestration shape as internal/downloader.Service.Run.
func (u *Updater) Run(ctx context.Context, it *item.MediaItem) (<-chan *item.MediaItem, error) {
	ch := make(chan *item.MediaItem, 1)

	key, guid, updateFolder, err := u.Refresh(ctx, it)
	if err != nil {
		close(ch)
		return ch, err
	}

	it.Key = key
	it.GUID = guid
	it.UpdateFolder = updateFolder

	ch <- it
	close(ch)
	return ch, nil
}

// Refresh triggers a partial scan of it.Folder and looks up the
// matching library entry's rating key and guid. A scan failure is
// returned as an error (the caller retries on the next pass); a
// lookup miss still reports update_folder as done, since the scan
// itself succeeded and Plex may simply not have finished indexing yet
// (original_source never blocks update_folder on the match succeeding,
// only on the scan call itself).
func (u *Updater) Refresh(ctx context.Context, it *item.MediaItem) (key, guid, updateFolder string, err error) {
	if it.Folder == "" {
		return "", "", "", nil
	}
	if err := u.client.ScanPath(ctx, it.Folder); err != nil {
		return "", "", "", err
	}

	title, year := searchTarget(it)
	if title == "" {
		return "", "", updateFolderDone, nil
	}

	results, err := u.client.Search(ctx, title)
	if err != nil {
		u.logger.Warn("plex search failed", "title", title, "error", err)
		return "", "", updateFolderDone, nil
	}

	if match, ok := bestMatch(results, title, year); ok {
		return match.RatingKey, match.Guid, updateFolderDone, nil
	}
	return "", "", updateFolderDone, nil
}

var _ providers.LibraryUpdater = (*Updater)(nil)

// searchTarget returns the title/year to search Plex for: the owning
// Show's for a Season or Episode (walking item.Parent, the same
// substitution internal/transition makes for a Season), the item's own
// otherwise.
func searchTarget(it *item.MediaItem) (string, int) {
	switch it.Kind {
	case item.KindSeason, item.KindEpisode:
		top := it
		for top.Parent != nil {
			top = top.Parent
		}
		return top.Title, top.Year
	default:
		return it.Title, it.Year
	}
}

// bestMatch picks the first result whose normalized title matches
// title, and whose year matches within one year when year is known
// (mirrors importer.PlexClient.FindMovie's tolerance, re-derived here
// since FindMovie doesn't expose the matched item's guid).
func bestMatch(results []importer.PlexItem, title string, year int) (importer.PlexItem, bool) {
	want := normalize(title)
	for _, r := range results {
		if normalize(r.Title) != want {
			continue
		}
		if year != 0 && r.Year != 0 && abs(r.Year-year) > 1 {
			continue
		}
		return r, true
	}
	return importer.PlexItem{}, false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
