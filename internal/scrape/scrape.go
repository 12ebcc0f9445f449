// Package scrape implements the Scrapers (spec.md §4.6, C6's Scraping
// service): several polymorphic sources of candidate torrents, sharing
// one eligibility/ranking/reporting pipeline and differing only in how
// each fetches raw release titles.
//
// Grounded on the teacher's internal/search package: search.go's
// Searcher.Search (parse-then-score-then-filter-then-sort pipeline)
// and indexer.go's IndexerPool.Search (fan out to every configured
// client in parallel, merge results and errors). The per-item
// eligibility/aired-gate/reporting wrapper and the multi-candidate
// ranking into item.Streams are new, following spec.md §4.6 since the
// teacher's search package answers one-shot queries rather than
// maintaining per-item scrape state.
package scrape

import (
	"errors"
	"time"

	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/pkg/release"
)

// ErrRateLimited is returned by a scraper's Run when its hard
// rate-limit condition trips. The runner handles it like any other Run
// error: the worker pool logs the job as failed, and the event is not
// re-admitted with a later run_at.
var ErrRateLimited = errors.New("scrape: rate limit exceeded")

// Candidate is one raw result returned by a scraper backend before
// ranking: a title string and the infohash it resolves to.
type Candidate struct {
	InfoHash string
	RawTitle string
}

// topTitle returns the title a candidate's parsed release must match
// (spec.md §4.6's "correct-title match"): the Show's title for a
// Season or Episode, the item's own title for a Movie.
func topTitle(it *item.MediaItem) string {
	switch it.Kind {
	case item.KindSeason, item.KindEpisode:
		if it.Parent != nil {
			return it.Parent.Title
		}
	}
	return it.Title
}

// eligible reports whether it should be submitted to a scraper at
// all: Shows are never scraped directly (scraping happens per
// Season/Episode/Movie), and nothing airing in the future is worth
// querying for.
func eligible(it *item.MediaItem, now time.Time) bool {
	if it.Kind == item.KindShow {
		return false
	}
	return it.IsReleased(now)
}

// rank parses each candidate's raw title, discards anything that
// doesn't belong to this item (wrong movie/series, wrong season/
// episode, banned codec/quality, wrong title) or is already
// blacklisted, scores the remainder against profile, and returns the
// survivors as item.Streams ready to merge.
func rank(it *item.MediaItem, candidates []Candidate, profile Profile, isBlacklisted func(infohash string) bool) map[string]item.Stream {
	target := topTitle(it)
	season, episode := targetSeasonEpisode(it)

	out := make(map[string]item.Stream, len(candidates))
	for _, c := range candidates {
		if c.InfoHash == "" || isBlacklisted != nil && isBlacklisted(c.InfoHash) {
			continue
		}

		info := release.Parse(c.RawTitle)
		if !seasonEpisodeMatches(it.Kind, info, season, episode) {
			continue
		}

		m := release.Match(info.Title, target)
		if m.Confidence == release.ConfidenceNone {
			continue
		}

		score := profile.Score(*info)
		if score <= 0 {
			continue
		}

		out[c.InfoHash] = item.Stream{RawTitle: c.RawTitle, Rank: score, FetchOK: true}
	}
	return out
}

// targetSeasonEpisode returns the season/episode number a ranked
// candidate must reference, or (0, 0) for a Movie (no constraint).
func targetSeasonEpisode(it *item.MediaItem) (season, episode int) {
	switch it.Kind {
	case item.KindEpisode:
		if it.Parent != nil {
			season = it.Parent.Number
		}
		episode = it.Number
	case item.KindSeason:
		season = it.Number
	}
	return season, episode
}

// seasonEpisodeMatches applies spec.md §4.6's "wrong season/episode"
// rejection per item kind.
func seasonEpisodeMatches(kind item.Kind, info *release.Info, season, episode int) bool {
	switch kind {
	case item.KindMovie:
		return info.Season == 0 && len(info.Episodes) == 0
	case item.KindEpisode:
		if info.Season != 0 && info.Season != season {
			return false
		}
		if len(info.Episodes) == 0 {
			return info.Episode == episode || (info.IsCompleteSeason && info.Season == season)
		}
		for _, e := range info.Episodes {
			if e == episode {
				return true
			}
		}
		return false
	case item.KindSeason:
		return info.Season == 0 || info.Season == season || info.IsCompleteSeason
	}
	return false
}

// Report stamps the bookkeeping fields a completed scrape attempt
// always updates, merges ranked candidates into the item's streams,
// and returns the updated item, per spec.md §4.6's "Reporting"
// paragraph.
func Report(it *item.MediaItem, ranked map[string]item.Stream, now time.Time) *item.MediaItem {
	if it.Streams == nil {
		it.Streams = map[string]item.Stream{}
	}
	for hash, s := range ranked {
		it.Streams[hash] = s
	}
	t := now
	it.ScrapedAt = &t
	it.ScrapedTimes++
	return it
}

// Thresholds implements spec.md §4.4's should_scrape backoff ladder:
// attempts 1-2 use a flat 5s delay, 3-5 use After2, 6-10 use After5,
// beyond that After10.
type Thresholds struct {
	After2  time.Duration
	After5  time.Duration
	After10 time.Duration
}

// DefaultThresholds matches the Python original's settings defaults
// (1h / 4h / 24h).
var DefaultThresholds = Thresholds{After2: time.Hour, After5: 4 * time.Hour, After10: 24 * time.Hour}

func (t Thresholds) thresholdFor(attempt int) time.Duration {
	switch {
	case attempt <= 2:
		return 5 * time.Second
	case attempt <= 5:
		return t.After2
	case attempt <= 10:
		return t.After5
	default:
		return t.After10
	}
}

// ShouldScrape implements Scraping.should_scrape (spec.md §4.4): true
// iff it has aired and enough time has passed since the last scrape
// for the current attempt count.
func ShouldScrape(it *item.MediaItem, thresholds Thresholds, now time.Time) bool {
	if !it.IsReleased(now) {
		return false
	}
	if it.ScrapedAt == nil {
		return true
	}
	return now.Sub(*it.ScrapedAt) >= thresholds.thresholdFor(it.ScrapedTimes)
}
