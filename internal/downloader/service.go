package downloader

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vmunix/wantarr/internal/events"
	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/providers"
	"github.com/vmunix/wantarr/internal/selector"
)

// Client is the subset of RealDebridClient's API Service drives.
// Narrowed so tests can supply a fake without an HTTP server; it
// omits providers.Service's Run, which RealDebridClient does not
// implement (Service.Run is the only orchestration entry point).
type Client interface {
	Key() string
	Initialized() bool
	Validate(ctx context.Context) bool
	IsCached(ctx context.Context, infohash string) (bool, error)
	Containers(ctx context.Context, infohash string) ([]selector.Container, error)
	AddMagnet(ctx context.Context, infohash string) (string, error)
	SelectFiles(ctx context.Context, torrentID string, files []providers.TorrentFile) error
	GetTorrentInfo(ctx context.Context, torrentID string) (providers.TorrentInfo, error)
	GetTorrents(ctx context.Context) (map[string]providers.TorrentInfo, error)
}

// HashCache is the subset of internal/hashcache.Cache Service needs.
type HashCache interface {
	IsBlacklisted(ctx context.Context, infohash string) (bool, error)
	Blacklist(ctx context.Context, infohash string) error
	IsDownloaded(ctx context.Context, infohash string) (bool, error)
	MarkDownloaded(ctx context.Context, infohash string) error
}

// Service implements providers.Downloader: it runs
// internal/selector.Select over each of an item's streams, in rank
// order, until one is accepted, then drives the add-magnet/select-
// files handshake (spec.md §4.7).
type Service struct {
	client    Client
	hashcache HashCache
	cfg       selector.Config
	logger    *slog.Logger
	now       func() time.Time
	eventLog  EventLog
}

// EventLog is the subset of internal/events.EventLog Service needs to
// record a StreamBlacklisted audit event (spec.md invariant I4).
type EventLog interface {
	Append(e events.DomainEvent) (int64, error)
}

// Option configures a Service.
type Option func(*Service)

// WithEventLog records a StreamBlacklisted event every time Service
// blacklists an infohash. Omit to run without the admin audit trail.
func WithEventLog(log EventLog) Option {
	return func(s *Service) {
		s.eventLog = log
	}
}

// NewService builds a Service. cfg bounds the file filter and picks
// the Real-Debrid/AllDebrid season-coverage strictness (selector.Config).
func NewService(client Client, hashcache HashCache, cfg selector.Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		client:    client,
		hashcache: hashcache,
		cfg:       cfg,
		logger:    logger.With("component", "downloader"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Key() string                       { return string(providers.NameDownloader) }
func (s *Service) Initialized() bool                 { return s.client.Initialized() }
func (s *Service) Validate(ctx context.Context) bool { return s.client.Validate(ctx) }

// The remaining providers.Downloader methods delegate straight to the
// underlying client; Service only adds the per-item orchestration in
// Run.
func (s *Service) IsCached(ctx context.Context, infohash string) (bool, error) {
	return s.client.IsCached(ctx, infohash)
}
func (s *Service) AddMagnet(ctx context.Context, infohash string) (string, error) {
	return s.client.AddMagnet(ctx, infohash)
}
func (s *Service) SelectFiles(ctx context.Context, torrentID string, files []providers.TorrentFile) error {
	return s.client.SelectFiles(ctx, torrentID, files)
}
func (s *Service) GetTorrentInfo(ctx context.Context, torrentID string) (providers.TorrentInfo, error) {
	return s.client.GetTorrentInfo(ctx, torrentID)
}
func (s *Service) GetTorrents(ctx context.Context) (map[string]providers.TorrentInfo, error) {
	return s.client.GetTorrents(ctx)
}

// Run tries each infohash in it.Streams, highest rank first, until one
// container satisfies the item. A confirmed-good hash is recorded
// downloaded; a hash whose container passes availability but whose
// add_magnet/select_files handshake doesn't actually contain the
// matched files is blacklisted and the item's streams are cleared so
// the next pass restarts from scraping (spec.md §4.7, "On any
// exception or mismatch").
func (s *Service) Run(ctx context.Context, it *item.MediaItem) (<-chan *item.MediaItem, error) {
	ch := make(chan *item.MediaItem, 1)

	if already, ok := s.alreadyDownloaded(ctx, it); ok {
		ch <- already
		close(ch)
		return ch, nil
	}

	for _, hash := range rankedHashes(it) {
		if blacklisted, err := s.hashcache.IsBlacklisted(ctx, hash); err != nil || blacklisted {
			continue
		}

		decision, torrentID, info, ok, mismatched := s.resolve(ctx, it, hash)
		if mismatched {
			// Streams already cleared by resolve; stop trying the
			// remaining ranked candidates and let the next pass
			// restart from scraping.
			break
		}
		if !ok {
			continue
		}

		applyBindings(it, hash, torrentID, info, decision)
		if err := s.hashcache.MarkDownloaded(ctx, hash); err != nil {
			s.logger.Warn("mark_downloaded failed", "infohash", hash, "error", err)
		}
		ch <- it
		close(ch)
		return ch, nil
	}

	close(ch)
	return ch, nil
}

func (s *Service) alreadyDownloaded(ctx context.Context, it *item.MediaItem) (*item.MediaItem, bool) {
	if it.ActiveStream.Empty() || it.ActiveStream.TorrentID == "" {
		return nil, false
	}
	downloaded, err := s.hashcache.IsDownloaded(ctx, it.ActiveStream.InfoHash)
	if err != nil || !downloaded {
		return nil, false
	}
	return it, true
}

// resolve tries the existing-torrent path first (provider's torrent
// list already contains this hash), then falls back to a fresh
// instant-availability + add_magnet handshake. ok=false with
// mismatched=false means hash simply doesn't satisfy it (try the next
// ranked candidate); mismatched=true means hash has been blacklisted
// and item.streams already cleared (spec.md §4.7's "On any exception
// or mismatch" outcome) — the caller must stop trying further
// candidates.
func (s *Service) resolve(ctx context.Context, it *item.MediaItem, hash string) (decision selector.Decision, torrentID string, info providers.TorrentInfo, ok, mismatched bool) {
	now := s.now()

	if existingID, existing, found := s.findExisting(ctx, hash); found {
		container := containerFromInfo(existing)
		d := selector.Select(it, container, s.cfg, now)
		if d.Accepted && verifyHandshake(existing, d) {
			return d, existingID, existing, true, false
		}
		s.blacklistAndReset(ctx, it, hash)
		return selector.Decision{}, "", providers.TorrentInfo{}, false, true
	}

	containers, err := s.client.Containers(ctx, hash)
	if err != nil {
		s.logger.Debug("instant availability failed", "infohash", hash, "error", err)
		return selector.Decision{}, "", providers.TorrentInfo{}, false, false
	}
	selector.SortContainersByFileCount(containers)

	var d selector.Decision
	accepted := false
	for _, c := range containers {
		d = selector.Select(it, c, s.cfg, now)
		if d.Accepted {
			accepted = true
			break
		}
	}
	if !accepted {
		return selector.Decision{}, "", providers.TorrentInfo{}, false, false
	}

	torrentID, err = s.client.AddMagnet(ctx, hash)
	if err != nil {
		s.logger.Warn("add_magnet failed", "infohash", hash, "error", err)
		return selector.Decision{}, "", providers.TorrentInfo{}, false, false
	}

	files := torrentFilesFor(d)
	if err := s.client.SelectFiles(ctx, torrentID, files); err != nil {
		s.logger.Warn("select_files failed", "infohash", hash, "torrent_id", torrentID, "error", err)
		s.blacklistAndReset(ctx, it, hash)
		return selector.Decision{}, "", providers.TorrentInfo{}, false, true
	}

	gotInfo, err := s.client.GetTorrentInfo(ctx, torrentID)
	if err != nil || !verifyHandshake(gotInfo, d) {
		s.blacklistAndReset(ctx, it, hash)
		return selector.Decision{}, "", providers.TorrentInfo{}, false, true
	}

	return d, torrentID, gotInfo, true, false
}

func (s *Service) findExisting(ctx context.Context, hash string) (torrentID string, info providers.TorrentInfo, ok bool) {
	torrents, err := s.client.GetTorrents(ctx)
	if err != nil {
		return "", providers.TorrentInfo{}, false
	}
	existing, found := torrents[strings.ToLower(hash)]
	if !found {
		return "", providers.TorrentInfo{}, false
	}
	info, err = s.client.GetTorrentInfo(ctx, existing.ID)
	if err != nil {
		return "", providers.TorrentInfo{}, false
	}
	return existing.ID, info, true
}

// blacklistAndReset implements spec.md §4.7's mismatch outcome: the
// hash is permanently blacklisted and item.streams is cleared
// entirely (not just the offending hash) so the next pass restarts
// from scraping rather than retrying the remaining, already-ranked
// candidates against a provider that just proved unreliable for this
// item.
func (s *Service) blacklistAndReset(ctx context.Context, it *item.MediaItem, hash string) {
	if err := s.hashcache.Blacklist(ctx, hash); err != nil {
		s.logger.Warn("blacklist failed", "infohash", hash, "error", err)
	} else if s.eventLog != nil && it.ID != 0 {
		ev := events.NewStreamBlacklisted(it.ID, hash, "handshake mismatch")
		if _, err := s.eventLog.Append(ev); err != nil {
			s.logger.Warn("append blacklist event failed", "infohash", hash, "error", err)
		}
	}
	it.Streams = map[string]item.Stream{}
	it.ActiveStream = item.ActiveStream{}
}

// verifyHandshake checks info.Files actually contains the files
// decision matched, mirroring spec.md §4.7's existing-torrent
// detection check ("file.selected == 1 ... else blacklist").
func verifyHandshake(info providers.TorrentInfo, decision selector.Decision) bool {
	selected := map[string]bool{}
	for _, f := range info.Files {
		if f.Selected {
			selected[f.Path] = true
		}
	}
	for _, b := range decision.Bindings {
		if !selected[b.Filename] {
			return false
		}
	}
	return true
}

func containerFromInfo(info providers.TorrentInfo) selector.Container {
	files := make([]selector.File, 0, len(info.Files))
	for _, f := range info.Files {
		files = append(files, selector.File{Filename: f.Path, Bytes: f.Bytes})
	}
	return selector.Container{Files: files}
}

func torrentFilesFor(decision selector.Decision) []providers.TorrentFile {
	want := map[string]bool{}
	for _, b := range decision.Bindings {
		want[b.Filename] = true
	}
	files := make([]providers.TorrentFile, 0, len(want))
	for name := range want {
		files = append(files, providers.TorrentFile{Path: name, Selected: true})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// applyBindings stamps item.file/item.folder (and each bound
// episode's file) from a successful handshake (spec.md §4.7,
// "Outcome").
func applyBindings(it *item.MediaItem, hash, torrentID string, info providers.TorrentInfo, decision selector.Decision) {
	it.ActiveStream = item.ActiveStream{
		InfoHash:            hash,
		TorrentID:           torrentID,
		Filename:            info.Filename,
		AlternativeFilename: info.AlternativeFilename,
	}
	it.Folder = info.Filename
	it.AlternativeFolder = info.AlternativeFilename

	if it.Kind == item.KindMovie || it.Kind == item.KindEpisode {
		if len(decision.Bindings) > 0 {
			it.File = decision.Bindings[0].Filename
		}
		return
	}

	byNumber := map[int]string{}
	for _, b := range decision.Bindings {
		byNumber[b.EpisodeNumber] = b.Filename
	}
	episodes := it.Episodes
	if it.Kind == item.KindShow {
		for _, season := range it.Seasons {
			for _, ep := range season.Episodes {
				episodes = append(episodes, ep)
			}
		}
	}
	for _, ep := range episodes {
		if fn, ok := byNumber[ep.Number]; ok {
			ep.File = fn
			ep.Folder = it.Folder
		}
	}
}

// rankedHashes returns it.Streams' infohashes sorted by descending
// rank (highest-ranked candidate tried first).
func rankedHashes(it *item.MediaItem) []string {
	hashes := make([]string, 0, len(it.Streams))
	for h := range it.Streams {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return it.Streams[hashes[i]].Rank > it.Streams[hashes[j]].Rank
	})
	return hashes
}

var _ providers.Downloader = (*Service)(nil)
