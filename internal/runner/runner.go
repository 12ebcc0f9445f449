// Package runner wires internal/events.Bus, internal/worker.Manager and
// internal/transition.Process into the single dispatch loop spec.md §5
// describes: pop the earliest ready event, run the service it names (if
// any), feed its output back through Process, persist the result, and
// admit whatever event Process decides comes next. Grounded on
// internal/server/runner.go's errgroup-based component lifecycle, the
// teacher's equivalent assembly point for its own adapters/handlers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmunix/wantarr/internal/events"
	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/providers"
	"github.com/vmunix/wantarr/internal/transition"
	"github.com/vmunix/wantarr/internal/worker"
)

// ItemStore is the subset of internal/store.Store the runner needs.
type ItemStore interface {
	GetByID(id int64) (*item.MediaItem, error)
	UpsertTree(m *item.MediaItem) error
	SaveLastState(id int64) error
}

// Bus is the subset of internal/events.Bus the runner needs.
type Bus interface {
	Next() (events.Event, bool)
	Add(ev events.Event) (bool, error)
	Done(ev events.Event) error
}

// Pools dispatches a job to the bounded pool for a service, matching
// internal/worker.Manager's signature.
type Pools interface {
	PoolFor(service providers.Name) *worker.Pool
}

// EventLog is the subset of internal/events.EventLog the runner needs to
// append durable audit events for the admin surface's GET /admin/events.
type EventLog interface {
	Append(e events.DomainEvent) (int64, error)
}

// lifecycleEventType maps a reached item.State to the domain event type
// emitted for it (spec.md's notable lifecycle boundaries). States with no
// entry here (Unknown, Indexed, PartiallyCompleted, Failed, Unreleased) aren't
// boundaries worth a durable audit record.
var lifecycleEventType = map[item.State]string{
	item.StateRequested:  events.EventItemRequested,
	item.StateScraped:    events.EventItemScraped,
	item.StateDownloaded: events.EventItemDownloaded,
	item.StateSymlinked:  events.EventItemSymlinked,
	item.StateCompleted:  events.EventItemCompleted,
}

// Config configures a Runner.
type Config struct {
	// Services maps every providers.Name with a real adapter to run
	// (TraktIndexer, Scraping, Downloader, Symlinker, Updater,
	// PostProcessing) to that adapter. An event whose EmittedBy is
	// absent from this map (a content source, or RetryLibrary) has no
	// provider to run: the runner advances the transition function
	// directly off the item's current stored state, exactly as
	// state_transition.py does for its "source_services" and retry
	// paths.
	Services map[providers.Name]providers.Service
	Deps     transition.Deps
	// PollInterval is how often the runner checks the bus for ready
	// events. Defaults to 250ms.
	PollInterval time.Duration
	// Log receives a durable ItemTransitioned event for every lifecycle
	// boundary advance crosses, for the admin surface's GET /admin/events. May
	// be nil, in which case no events are appended.
	Log EventLog
}

// Runner owns the dispatch loop.
type Runner struct {
	store  ItemStore
	bus    Bus
	pools  Pools
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New builds a Runner. Call Run to start the dispatch loop.
func New(store ItemStore, bus Bus, pools Pools, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Runner{store: store, bus: bus, pools: pools, cfg: cfg, logger: logger.With("component", "runner"), now: time.Now}
}

// Run drains the bus on cfg.PollInterval until ctx is canceled, then
// returns nil at once; it does not wait for jobs already submitted to
// the pools.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain pops and dispatches every currently-ready event.
func (r *Runner) drain(ctx context.Context) {
	for {
		ev, ok := r.bus.Next()
		if !ok {
			return
		}
		r.dispatch(ctx, ev)
	}
}

func (r *Runner) dispatch(ctx context.Context, ev events.Event) {
	pool := r.pools.PoolFor(ev.EmittedBy)
	if err := pool.Submit(ctx, func(ctx context.Context) error {
		return r.process(ctx, ev)
	}, func(error) {
		if err := r.bus.Done(ev); err != nil {
			r.logger.Error("release tree failed", "service", ev.EmittedBy, "item_id", ev.ItemID, "error", err)
		}
	}); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("submit failed", "service", ev.EmittedBy, "error", err)
	}
}

// process runs the provider named by ev.EmittedBy (if any provider is
// registered for it) and feeds every item it yields through
// transition.Process, persisting the result and admitting whatever
// comes next.
func (r *Runner) process(ctx context.Context, ev events.Event) error {
	var existing *item.MediaItem
	if ev.ItemID != 0 {
		tree, err := r.store.GetByID(ev.ItemID)
		if err != nil {
			return fmt.Errorf("runner: load item %d: %w", ev.ItemID, err)
		}
		existing = tree
	}

	service, ok := r.cfg.Services[ev.EmittedBy]
	if !ok {
		// Content source / RetryLibrary event: nothing to run, just
		// re-evaluate the item already sitting in the store.
		if existing == nil {
			return fmt.Errorf("runner: event from %s names no provider and no stored item", ev.EmittedBy)
		}
		return r.advance(existing, ev.EmittedBy, existing)
	}

	if !service.Initialized() || !service.Validate(ctx) {
		return fmt.Errorf("runner: service %s not ready", ev.EmittedBy)
	}

	input := existing
	if input == nil {
		input = &item.MediaItem{IMDBID: ev.IMDBID}
	}
	ch, err := service.Run(ctx, input)
	if err != nil {
		return fmt.Errorf("runner: %s run: %w", ev.EmittedBy, err)
	}

	for out := range ch {
		if err := r.advance(existing, ev.EmittedBy, out); err != nil {
			r.logger.Error("advance failed", "service", ev.EmittedBy, "error", err)
		}
	}
	return nil
}

// advance runs the pure transition function and carries out its
// decision: persist the merged item (if any) and admit an event for
// each item it says to submit next.
func (r *Runner) advance(existing *item.MediaItem, emittedBy providers.Name, it *item.MediaItem) error {
	result := transition.Process(existing, emittedBy, it, r.cfg.Deps)

	if result.UpdatedItem != nil {
		if err := r.store.UpsertTree(result.UpdatedItem); err != nil {
			return fmt.Errorf("runner: persist item: %w", err)
		}
		if err := r.store.SaveLastState(result.UpdatedItem.ID); err != nil {
			return fmt.Errorf("runner: save last_state: %w", err)
		}
		r.logTransition(existing, result.UpdatedItem)
	}

	now := r.now()
	for _, sub := range result.ItemsToSubmit {
		if sub.ID == 0 {
			r.logger.Warn("skipping submit for unpersisted item", "title", sub.Title)
			continue
		}
		if _, err := r.bus.Add(events.Event{EmittedBy: result.NextService, ItemID: sub.ID, RunAt: now}); err != nil {
			r.logger.Warn("admit failed", "item_id", sub.ID, "next_service", result.NextService, "error", err)
		}
	}
	return nil
}

// logTransition appends an ItemTransitioned event when updated crosses a
// boundary in lifecycleEventType that existing hadn't already reached.
// Recursing into children isn't needed: every Season/Episode advance call
// passes through here on its own, since Process recurses per-item too.
func (r *Runner) logTransition(existing, updated *item.MediaItem) {
	if r.cfg.Log == nil || updated == nil || updated.ID == 0 {
		return
	}
	newState := updated.State()
	eventType, ok := lifecycleEventType[newState]
	if !ok {
		return
	}
	if existing != nil && existing.State() == newState {
		return
	}
	ev := events.NewItemTransitioned(eventType, updated.ID, updated.IMDBID, updated.Title, string(newState))
	if _, err := r.cfg.Log.Append(ev); err != nil {
		r.logger.Warn("append event failed", "item_id", updated.ID, "event_type", eventType, "error", err)
	}
}
