// Package providers declares the external-adapter interfaces the core
// orchestration packages depend on (spec.md §6.1), and the fixed set
// of service identifiers the state-transition function and worker
// pools dispatch on.
package providers

import (
	"context"

	"github.com/vmunix/wantarr/internal/item"
)

// Name identifies a service in the transition table and worker pool
// registry. Values mirror the Python originals' class names so the
// transition table (internal/transition) reads the same as
// state_transition.py's decision list.
type Name string

const (
	NameTraktIndexer    Name = "TraktIndexer"
	NameScraping        Name = "Scraping"
	NameDownloader      Name = "Downloader"
	NameSymlinker       Name = "Symlinker"
	NameUpdater         Name = "Updater"
	NamePostProcessing  Name = "PostProcessing"
	NameOverseerr       Name = "Overseerr"
	NamePlexWatchlist   Name = "PlexWatchlist"
	NameListrr          Name = "Listrr"
	NameMdblist         Name = "Mdblist"
	NameSymlinkLibrary  Name = "SymlinkLibrary"
	NameTraktContent    Name = "TraktContent"

	// NameRetryLibrary tags the admission-bus event the scheduler's
	// retry sweep emits for a stuck item (spec.md §4.10: "emit
	// Event('RetryLibrary', id)"). It is not a content source: the
	// item it carries already exists in the store, so Process routes
	// it purely off the item's current state.
	NameRetryLibrary Name = "RetryLibrary"
)

// ContentSources lists the services whose emitted events always route
// to the metadata indexer regardless of the item's current state
// (state_transition.py's source_services tuple).
var ContentSources = map[Name]bool{
	NameOverseerr:      true,
	NamePlexWatchlist:  true,
	NameListrr:         true,
	NameMdblist:        true,
	NameSymlinkLibrary: true,
	NameTraktContent:   true,
}

// Service is the interface every provider adapter implements.
type Service interface {
	Key() string
	Initialized() bool
	Validate(ctx context.Context) bool
	Run(ctx context.Context, it *item.MediaItem) (<-chan *item.MediaItem, error)
}

// Scraper augments Service with the scheduling-delay and submission
// gates the state-transition function consults (§4.4, §4.6).
type Scraper interface {
	Service
	ShouldScrape(it *item.MediaItem) bool
	ShouldSubmit(it *item.MediaItem) bool
}

// TorrentFile describes one file inside a debrid container, the unit
// select_files/get_torrent_info operate on.
type TorrentFile struct {
	Path     string
	Bytes    int64
	Selected bool
}

// TorrentInfo is the normalized shape get_torrent_info returns.
type TorrentInfo struct {
	ID                  string
	Filename            string
	AlternativeFilename string
	Files               []TorrentFile
}

// Downloader augments Service with the debrid-cache operations the
// Cached-Torrent Selector and download step (§4.7) depend on.
type Downloader interface {
	Service
	IsCached(ctx context.Context, infohash string) (bool, error)
	AddMagnet(ctx context.Context, infohash string) (torrentID string, err error)
	SelectFiles(ctx context.Context, torrentID string, files []TorrentFile) error
	GetTorrentInfo(ctx context.Context, torrentID string) (TorrentInfo, error)
	GetTorrents(ctx context.Context) (map[string]TorrentInfo, error)
}

// MetadataIndexer is the TraktIndexer role: fills in title/year/genres/
// aired_at and, for Shows, the season/episode skeleton.
type MetadataIndexer interface {
	Service
	Index(ctx context.Context, it *item.MediaItem) (*item.MediaItem, error)
}

// LibraryUpdater is the Updater role: refreshes the external library
// (e.g. Plex) after the Symlinker materializes files, and returns the
// key/guid/update_folder markers that drive Completed derivation.
type LibraryUpdater interface {
	Service
	Refresh(ctx context.Context, it *item.MediaItem) (key, guid, updateFolder string, err error)
}

// ContentSource yields newly Requested items (content.* in the
// original): Overseerr requests, Plex watchlist entries, list
// services, or (SymlinkLibrary) items reverse-constructed from an
// on-disk scan.
type ContentSource interface {
	Service
	Poll(ctx context.Context) (<-chan *item.MediaItem, error)
}

// PostProcessor is the PostProcessing/Subliminal role: optional
// per-item work run after Completed, gated so it never re-runs for an
// item it has already processed.
type PostProcessor interface {
	Service
	ShouldSubmit(it *item.MediaItem) bool
	Process(ctx context.Context, it *item.MediaItem) error
}
