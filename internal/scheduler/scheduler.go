// Package scheduler implements the Scheduler (spec.md §4.10, C7): a
// single background timer that drives content-source polling, the
// retry sweep for stuck items, and daily maintenance, all on a
// per-task interval with misfire coalescing.
//
// Grounded on github.com/go-co-op/gocron/v2, the scheduling library
// declared by pack repos `jatassi-SlipStream` (go.mod) and used by
// `sirrobot01-decypharr`'s pkg/debrid/debrid-cache.go (gocron.Scheduler
// field, gocron.NewScheduler construction/shutdown).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/vmunix/wantarr/internal/events"
	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/providers"
	"github.com/vmunix/wantarr/internal/store"
)

// retrySweepKinds and retrySweepExclude implement spec.md §4.10's
// retry-sweep selection: "ids of items in state ∉ {Completed,
// Unreleased} of type ∈ {movie, show}".
var (
	retrySweepKinds   = []item.Kind{item.KindMovie, item.KindShow}
	retrySweepExclude = []item.State{item.StateCompleted, item.StateUnreleased}
)

// RetryStore is the subset of internal/store.Store the retry sweep
// needs.
type RetryStore interface {
	IterWhere(f store.Filter) ([]int64, error)
}

// Bus is the subset of internal/events.Bus the scheduler needs to
// admit a retry event.
type Bus interface {
	Add(ev events.Event) (bool, error)
}

// ContentSourceConfig binds a content source to its poll interval and
// the providers.Name the admission bus should record as its emitter.
type ContentSourceConfig struct {
	Source   providers.ContentSource
	Name     providers.Name
	Interval time.Duration
}

// Config configures a Scheduler. Every callback is optional except the
// content sources themselves; a nil callback simply skips that task.
type Config struct {
	ContentSources []ContentSourceConfig
	// OnContentItem receives each item a content source yields, so the
	// caller can persist it and route it into the admission bus/worker
	// pools (spec.md §4.10: "yielded items enter the bus with emitter =
	// SourceClass").
	OnContentItem func(ctx context.Context, source providers.Name, it *item.MediaItem)

	// RetrySweepInterval defaults to 10 minutes.
	RetrySweepInterval time.Duration
	// RetryBatchSize defaults to 1000.
	RetryBatchSize int

	// DailyMaintenance runs once per day (log rotation, store vacuum/
	// analyze, spec.md §4.10).
	DailyMaintenance func(ctx context.Context) error

	// RepairInterval enables the optional symlink-repair sweep when
	// positive (spec.md §4.10's "repair_interval hours").
	RepairInterval time.Duration
	RepairSweep    func(ctx context.Context) error
}

// Scheduler owns a single gocron.Scheduler running every configured
// task.
type Scheduler struct {
	cfg    Config
	store  RetryStore
	bus    Bus
	logger *slog.Logger
	gs     gocron.Scheduler
	now    func() time.Time
}

// New builds the scheduler and registers every task from cfg, but does
// not start it; call Start.
func New(cfg Config, st RetryStore, bus Bus, logger *slog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create gocron scheduler: %w", err)
	}

	s := &Scheduler{cfg: cfg, store: st, bus: bus, logger: logger, gs: gs, now: time.Now}

	for _, cs := range cfg.ContentSources {
		cs := cs
		if cs.Interval <= 0 {
			continue
		}
		if _, err := gs.NewJob(
			gocron.DurationJob(cs.Interval),
			gocron.NewTask(func() { s.pollContentSource(context.Background(), cs) }),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("scheduler: schedule content source %s: %w", cs.Name, err)
		}
	}

	retryInterval := cfg.RetrySweepInterval
	if retryInterval <= 0 {
		retryInterval = 10 * time.Minute
	}
	if _, err := gs.NewJob(
		gocron.DurationJob(retryInterval),
		gocron.NewTask(func() { s.retrySweep(context.Background()) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("scheduler: schedule retry sweep: %w", err)
	}

	if cfg.DailyMaintenance != nil {
		if _, err := gs.NewJob(
			gocron.DurationJob(24*time.Hour),
			gocron.NewTask(func() {
				if err := cfg.DailyMaintenance(context.Background()); err != nil {
					logger.Error("daily maintenance failed", "error", err)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("scheduler: schedule daily maintenance: %w", err)
		}
	}

	if cfg.RepairInterval > 0 && cfg.RepairSweep != nil {
		if _, err := gs.NewJob(
			gocron.DurationJob(cfg.RepairInterval),
			gocron.NewTask(func() {
				if err := cfg.RepairSweep(context.Background()); err != nil {
					logger.Error("symlink repair sweep failed", "error", err)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("scheduler: schedule repair sweep: %w", err)
		}
	}

	return s, nil
}

// Start begins running every registered task on its interval.
func (s *Scheduler) Start() { s.gs.Start() }

// Shutdown stops all tasks and waits for in-flight runs to finish.
func (s *Scheduler) Shutdown() error { return s.gs.Shutdown() }

// pollContentSource invokes one content source and forwards every
// yielded item to cfg.OnContentItem.
func (s *Scheduler) pollContentSource(ctx context.Context, cs ContentSourceConfig) {
	if !cs.Source.Initialized() || !cs.Source.Validate(ctx) {
		s.logger.Warn("content source not ready, skipping poll", "source", cs.Name)
		return
	}

	ch, err := cs.Source.Poll(ctx)
	if err != nil {
		s.logger.Error("content source poll failed", "source", cs.Name, "error", err)
		return
	}

	n := 0
	for it := range ch {
		if s.cfg.OnContentItem != nil {
			s.cfg.OnContentItem(ctx, cs.Name, it)
		}
		n++
	}
	s.logger.Info("content source poll complete", "source", cs.Name, "items", n)
}

// retrySweep selects stuck items and admits a retry event for each,
// per spec.md §4.10's retry-sweep paragraph.
func (s *Scheduler) retrySweep(ctx context.Context) {
	batch := s.cfg.RetryBatchSize
	if batch <= 0 {
		batch = 1000
	}

	emitted := 0
	for _, kind := range retrySweepKinds {
		offset := 0
		for {
			ids, err := s.store.IterWhere(store.Filter{
				Kind:       kind,
				ExcludeSet: retrySweepExclude,
				Limit:      batch,
				Offset:     offset,
			})
			if err != nil {
				s.logger.Error("retry sweep query failed", "kind", kind, "error", err)
				break
			}
			for _, id := range ids {
				if _, err := s.bus.Add(events.Event{EmittedBy: providers.NameRetryLibrary, ItemID: id, RunAt: s.now()}); err != nil {
					s.logger.Warn("retry sweep admit failed", "id", id, "error", err)
				}
				emitted++
			}
			if len(ids) < batch {
				break
			}
			offset += batch
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
	s.logger.Info("retry sweep complete", "emitted", emitted)
}
