// Package item implements the polymorphic media item tree (Movie, Show,
// Season, Episode) and the pure function that derives lifecycle State
// from an item's attributes.
package item

import "time"

// Kind discriminates the variants of MediaItem.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindShow    Kind = "show"
	KindSeason  Kind = "season"
	KindEpisode Kind = "episode"
)

// Stream is a candidate torrent discovered by a scraper, keyed by infohash
// in MediaItem.Streams.
type Stream struct {
	RawTitle string
	Rank     int
	FetchOK  bool
}

// ActiveStream is the torrent chosen for an item by the downloader.
type ActiveStream struct {
	InfoHash            string
	TorrentID           string
	Filename            string
	AlternativeFilename string
}

// Empty reports whether no stream has been selected yet.
func (a ActiveStream) Empty() bool {
	return a.InfoHash == ""
}

// MediaItem is a single node in the Movie | Show -> Season -> Episode tree.
// Ownership is exclusive: a Show owns its Seasons, a Season owns its
// Episodes. ParentID is a weak back-pointer (not ownership).
type MediaItem struct {
	ID       int64
	Kind     Kind
	ParentID int64 // 0 for roots (Movie, Show)
	Number   int   // Season/Episode number; unused for Movie/Show

	IMDBID string
	TMDBID string
	TVDBID string

	Title    string
	Year     int
	AiredAt  *time.Time
	Genres   []string
	Language string
	Country  string
	Network  string
	IsAnime  bool

	RequestedAt *time.Time
	RequestedBy string

	IndexedAt      *time.Time
	ScrapedAt      *time.Time
	ScrapedTimes   int
	Symlinked      bool
	SymlinkedAt    *time.Time
	SymlinkedTimes int

	Streams      map[string]Stream
	ActiveStream ActiveStream

	File               string
	Folder             string
	AlternativeFolder  string

	Key          string
	GUID         string
	UpdateFolder string

	LastState State

	// Children, populated when loaded as a tree. Empty for leaves.
	Seasons  []*MediaItem // Kind == KindShow
	Episodes []*MediaItem // Kind == KindSeason

	// Parent is the in-memory back-reference to the owning node,
	// populated alongside Seasons/Episodes when a tree is loaded
	// (store.Tree). nil for roots or when loaded standalone. Used by
	// internal/transition to substitute a Season's parent Show, the
	// same way the Python original walks item.parent.
	Parent *MediaItem
}

// IsReleased reports whether m has an aired_at at or before now; an
// item with no aired_at is not released.
func (m *MediaItem) IsReleased(now time.Time) bool {
	if m.AiredAt == nil {
		return false
	}
	return !m.AiredAt.After(now)
}

// IsScraped reports whether any streams have been recorded.
func (m *MediaItem) IsScraped() bool {
	return len(m.Streams) > 0
}

// BlacklistStream removes a stream from the item so it is never
// reconsidered, per spec invariant I4 (a blacklisted hash never appears
// in active_stream again) — callers are expected to also blacklist the
// hash in the process-wide hash cache.
func (m *MediaItem) BlacklistStream(infohash string) {
	delete(m.Streams, infohash)
	if m.ActiveStream.InfoHash == infohash {
		m.ActiveStream = ActiveStream{}
	}
}

// ResetForRescrape clears download/scrape progress so the item restarts
// from Scraping on its next pass. Used by the symlinker's retry-budget
// exhaustion (spec §4.8).
func (m *MediaItem) ResetForRescrape() {
	m.Streams = map[string]Stream{}
	m.ActiveStream = ActiveStream{}
	m.File = ""
	m.Folder = ""
	m.AlternativeFolder = ""
	m.SymlinkedTimes = 0
	m.ScrapedTimes = 0
}

// CopyMetadataIfAbsent fills in metadata attributes on m that are
// currently unset, from other. Used by the state-transition merge step
// (spec §4.4) when reconciling a freshly indexed item into the store's
// existing copy.
func (m *MediaItem) CopyMetadataIfAbsent(other *MediaItem) {
	if m.Title == "" {
		m.Title = other.Title
	}
	if m.TVDBID == "" {
		m.TVDBID = other.TVDBID
	}
	if m.TMDBID == "" {
		m.TMDBID = other.TMDBID
	}
	if m.Network == "" {
		m.Network = other.Network
	}
	if m.Country == "" {
		m.Country = other.Country
	}
	if m.Language == "" {
		m.Language = other.Language
	}
	if m.AiredAt == nil {
		m.AiredAt = other.AiredAt
	}
	if len(m.Genres) == 0 {
		m.Genres = other.Genres
	}
	if !m.IsAnime {
		m.IsAnime = other.IsAnime
	}
}
