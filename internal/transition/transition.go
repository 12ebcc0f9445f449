// Package transition implements the pure state-transition function
// (spec.md §4.4, C6): given the store's existing copy of an item (if
// any), the service that emitted the event, and the freshly-yielded
// item, it decides the next service to run and which items to submit
// to it. It never touches the store, the event bus, or any network
// client — every external fact it needs arrives via Deps.
//
// Ported from original_source/src/program/state_transition.py's
// process_event, substituting Go idioms (no exceptions, explicit
// item.Parent back-references) for the Python original's attribute
// walks.
package transition

import (
	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/providers"
)

// Deps are the external predicates the transition function consults.
// All are pure with respect to the item passed in; none may mutate it
// or perform I/O with side effects visible to the caller.
type Deps struct {
	// IndexerShouldSubmit mirrors TraktIndexer.should_submit: whether a
	// content-source-emitted item that already exists in the store
	// still needs (re-)indexing.
	IndexerShouldSubmit func(existing *item.MediaItem) bool

	// CanScrape mirrors Scraping.can_we_scrape: whether it is currently
	// worth submitting it to a scraper (not already scraped too
	// recently, not Unreleased, etc).
	CanScrape func(it *item.MediaItem) bool

	// SubliminalEnabled mirrors
	// settings_manager.settings.post_processing.subliminal.enabled.
	SubliminalEnabled bool

	// PostProcessShouldSubmit mirrors Subliminal.should_submit.
	PostProcessShouldSubmit func(it *item.MediaItem) bool

	// Notify mirrors post_processing.notify(item), called once an item
	// reaches Completed. May be nil.
	Notify func(it *item.MediaItem)
}

// Result is the pure function's output: the (possibly merged) updated
// item, the service to run next ("" if none), and the items to submit
// to it.
type Result struct {
	UpdatedItem    *item.MediaItem
	NextService    providers.Name
	ItemsToSubmit  []*item.MediaItem
}

var noFurtherProcessing = Result{}

// Process is the pure decision function. existing is the store's
// current copy of the item (nil if this is the first time it's been
// seen); emittedBy is the service that produced it; it is the
// freshly-yielded item to reconcile.
func Process(existing *item.MediaItem, emittedBy providers.Name, it *item.MediaItem, deps Deps) Result {
	updated := it

	if providers.ContentSources[emittedBy] || it.State() == item.StateRequested {
		next := providers.NameTraktIndexer
		target := it
		ex := existing
		if it.Kind == item.KindSeason {
			target = it.Parent
			if existing != nil {
				ex = existing.Parent
			} else {
				ex = nil
			}
		}
		if ex != nil && deps.IndexerShouldSubmit != nil && !deps.IndexerShouldSubmit(ex) {
			return noFurtherProcessing
		}
		return Result{UpdatedItem: nil, NextService: next, ItemsToSubmit: []*item.MediaItem{target}}
	}

	state := it.State()

	switch {
	case state == item.StateUnknown || state == item.StatePartiallyCompleted:
		var toSubmit []*item.MediaItem
		switch it.Kind {
		case item.KindShow:
			for _, season := range it.Seasons {
				if season.State() != item.StateCompleted {
					sub := Process(season, emittedBy, season, deps)
					toSubmit = append(toSubmit, sub.ItemsToSubmit...)
				}
			}
		case item.KindSeason:
			for _, episode := range it.Episodes {
				if episode.State() != item.StateCompleted {
					sub := Process(episode, emittedBy, episode, deps)
					toSubmit = append(toSubmit, sub.ItemsToSubmit...)
				}
			}
		}
		return Result{UpdatedItem: updated, ItemsToSubmit: toSubmit}

	case state == item.StateIndexed:
		next := providers.NameScraping
		var toSubmit []*item.MediaItem

		if existing != nil {
			if existing.IndexedAt == nil {
				if it.Kind == item.KindShow || it.Kind == item.KindSeason {
					fillMissingChildren(existing, it)
				}
				existing.CopyMetadataIfAbsent(it)
				existing.IndexedAt = it.IndexedAt
				updated = existing
				it = existing
			}
			if existing.State() == item.StateCompleted {
				return Result{UpdatedItem: existing}
			}
			canScrape := deps.CanScrape != nil && deps.CanScrape(existing)
			switch {
			case emittedBy != providers.NameScraping && canScrape:
				toSubmit = []*item.MediaItem{existing}
			case it.Kind == item.KindShow:
				for _, season := range it.Seasons {
					if season.State() != item.StateCompleted && deps.CanScrape != nil && deps.CanScrape(season) {
						toSubmit = append(toSubmit, season)
					}
				}
			case it.Kind == item.KindSeason:
				for _, episode := range it.Episodes {
					if episode.State() != item.StateCompleted && deps.CanScrape != nil && deps.CanScrape(episode) {
						toSubmit = append(toSubmit, episode)
					}
				}
			}
		} else {
			toSubmit = []*item.MediaItem{it}
		}
		return Result{UpdatedItem: updated, NextService: next, ItemsToSubmit: toSubmit}

	case state == item.StateScraped:
		return Result{UpdatedItem: updated, NextService: providers.NameDownloader, ItemsToSubmit: []*item.MediaItem{it}}

	case state == item.StateDownloaded:
		return Result{UpdatedItem: updated, NextService: providers.NameSymlinker, ItemsToSubmit: []*item.MediaItem{it}}

	case state == item.StateSymlinked:
		return Result{UpdatedItem: updated, NextService: providers.NameUpdater, ItemsToSubmit: []*item.MediaItem{it}}

	case state == item.StateCompleted:
		if deps.Notify != nil {
			deps.Notify(it)
		}
		if emittedBy == providers.NamePostProcessing {
			return noFurtherProcessing
		}
		if !deps.SubliminalEnabled {
			return Result{UpdatedItem: updated}
		}
		next := providers.NamePostProcessing
		var toSubmit []*item.MediaItem
		should := deps.PostProcessShouldSubmit
		switch it.Kind {
		case item.KindMovie, item.KindEpisode:
			if should != nil && should(it) {
				toSubmit = []*item.MediaItem{it}
			}
		case item.KindShow:
			for _, season := range it.Seasons {
				for _, episode := range season.Episodes {
					if episode.State() == item.StateCompleted && should != nil && should(episode) {
						toSubmit = append(toSubmit, episode)
					}
				}
			}
		case item.KindSeason:
			for _, episode := range it.Episodes {
				if episode.State() == item.StateCompleted && should != nil && should(episode) {
					toSubmit = append(toSubmit, episode)
				}
			}
		}
		if len(toSubmit) == 0 {
			return noFurtherProcessing
		}
		return Result{UpdatedItem: updated, NextService: next, ItemsToSubmit: toSubmit}
	}

	return Result{UpdatedItem: updated}
}

// fillMissingChildren copies dst's absent Seasons/Episodes from src,
// used when merging a freshly-indexed Show/Season into the store's
// existing copy so newly discovered seasons/episodes are not lost.
func fillMissingChildren(dst, src *item.MediaItem) {
	switch dst.Kind {
	case item.KindShow:
		if len(dst.Seasons) == 0 {
			dst.Seasons = src.Seasons
		}
	case item.KindSeason:
		if len(dst.Episodes) == 0 {
			dst.Episodes = src.Episodes
		}
	}
}
