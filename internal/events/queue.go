package events

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vmunix/wantarr/internal/providers"
)

// Event is a job descriptor carried by the admission Bus: the service
// that emitted it, the item to process, and the earliest time it may
// run. ItemID is 0 for an item the store has never persisted (a
// freshly-seen content-source item); IMDBID is then the only identity
// available, mirroring original_source's _get_item_ids fallback.
type Event struct {
	EmittedBy providers.Name
	ItemID    int64
	IMDBID    string
	RunAt     time.Time
}

// IDResolver resolves an item id to the id of its tree root (the
// top-level Movie/Show), so the Bus can enforce at-most-one in-flight
// job per item tree regardless of which node (show, season, episode)
// an event names. Backed by internal/store.Store.RootID.
type IDResolver interface {
	RootID(itemID int64) (int64, error)
}

type queuedEvent struct {
	event Event
	key   string
}

// Bus is a de-duplicating admission queue: Add rejects an event whose
// item tree already has a queued or running job, Next returns the
// earliest ready event and moves it to the running set, Done/Cancel
// release it. Grounded on
// original_source/src/utils/event_manager.py's EventManager
// (add_event/next/submit_job/cancel_job), with the thread-pool-future
// bookkeeping replaced by the caller's own internal/worker pools: the
// Bus only tracks admission state, not execution.
type Bus struct {
	resolver IDResolver

	mu      sync.Mutex
	queued  []queuedEvent
	running map[string]Event
}

// NewBus creates an empty Bus backed by resolver.
func NewBus(resolver IDResolver) *Bus {
	return &Bus{resolver: resolver, running: make(map[string]Event)}
}

func (b *Bus) key(ev Event) (string, error) {
	if ev.ItemID != 0 {
		root, err := b.resolver.RootID(ev.ItemID)
		if err != nil {
			return "", fmt.Errorf("resolve tree for event: %w", err)
		}
		return fmt.Sprintf("id:%d", root), nil
	}
	if ev.IMDBID == "" {
		return "", fmt.Errorf("event has neither item id nor imdb id")
	}
	return "imdb:" + ev.IMDBID, nil
}

// Add enqueues ev unless its tree already has a queued or running job,
// in which case it is dropped and admitted reports false.
func (b *Bus) Add(ev Event) (admitted bool, err error) {
	key, err := b.key(ev)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.running[key]; ok {
		return false, nil
	}
	for _, q := range b.queued {
		if q.key == key {
			return false, nil
		}
	}
	b.queued = append(b.queued, queuedEvent{event: ev, key: key})
	return true, nil
}

// Next pops and returns the earliest-ready queued event, moving it
// into the running set. ok is false if the queue is empty or the
// earliest event's RunAt has not yet arrived.
func (b *Bus) Next() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queued) == 0 {
		return Event{}, false
	}
	sort.Slice(b.queued, func(i, j int) bool {
		return b.queued[i].event.RunAt.Before(b.queued[j].event.RunAt)
	})
	head := b.queued[0]
	if time.Now().Before(head.event.RunAt) {
		return Event{}, false
	}
	b.queued = b.queued[1:]
	b.running[head.key] = head.event
	return head.event, true
}

// Done releases itemID's tree from the running set, admitting future
// events for the same tree. Called from a worker pool's completion
// callback once the service has finished processing the item.
func (b *Bus) Done(ev Event) error {
	key, err := b.key(ev)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.running, key)
	return nil
}

// Cancel removes itemID's tree from both the queued and running sets,
// used when an item is deleted from the library mid-flight.
func (b *Bus) Cancel(itemID int64) error {
	root, err := b.resolver.RootID(itemID)
	if err != nil {
		return fmt.Errorf("resolve tree for cancel: %w", err)
	}
	key := fmt.Sprintf("id:%d", root)

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.running, key)
	filtered := b.queued[:0]
	for _, q := range b.queued {
		if q.key != key {
			filtered = append(filtered, q)
		}
	}
	b.queued = filtered
	return nil
}

// Len returns the number of queued (not yet running) events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queued)
}

// QueueStats summarizes admission queue depth per emitting service,
// consumed by internal/adminapi's GET /admin/stats.
type QueueStats struct {
	Queued  map[providers.Name]int
	Running map[providers.Name]int
}

// Stats snapshots the current queued/running counts grouped by the
// service that emitted each event.
func (b *Bus) Stats() QueueStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := QueueStats{Queued: map[providers.Name]int{}, Running: map[providers.Name]int{}}
	for _, q := range b.queued {
		stats.Queued[q.event.EmittedBy]++
	}
	for _, ev := range b.running {
		stats.Running[ev.EmittedBy]++
	}
	return stats
}
