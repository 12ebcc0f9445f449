// Package worker provides bounded, per-service goroutine pools that
// dispatch jobs submitted through internal/events.Bus. Grounded on
// original_source/src/utils/event_manager.py's
// _find_or_create_executor: one pool per service, sized by an
// <SERVICE>_MAX_WORKERS environment variable, created lazily on first
// use rather than all up front.
package worker

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/vmunix/wantarr/internal/providers"
)

// Pool bounds the number of concurrently running jobs for one
// service. Submitting blocks only long enough to acquire a free slot
// (or until ctx is done); the job itself always runs in its own
// goroutine.
type Pool struct {
	service providers.Name
	sem     chan struct{}
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewPool creates a Pool for service with maxWorkers concurrent slots.
// maxWorkers below 1 is treated as 1, matching the Python original's
// ThreadPoolExecutor default.
func NewPool(service providers.Name, maxWorkers int, logger *slog.Logger) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		service: service,
		sem:     make(chan struct{}, maxWorkers),
		logger:  logger.With("pool", string(service)),
	}
}

// Submit runs job in a pooled goroutine once a slot is free, then
// calls done with its result. done may be nil. Submit itself returns
// once the job has been launched, not once it completes; it returns
// ctx.Err() if ctx is done before a slot frees up.
func (p *Pool) Submit(ctx context.Context, job func(context.Context) error, done func(error)) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()

		err := job(ctx)
		if err != nil {
			p.logger.Error("job failed", "error", err)
		}
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// Wait blocks until every job this pool has launched has returned.
func (p *Pool) Wait() { p.wg.Wait() }

// Manager finds or creates the Pool for a service, mirroring
// _find_or_create_executor's lazy, keyed-by-service-name executor
// cache.
type Manager struct {
	mu     sync.Mutex
	pools  map[providers.Name]*Pool
	logger *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{pools: make(map[providers.Name]*Pool), logger: logger}
}

// PoolFor returns the Pool for service, creating it (sized from its
// <SERVICE>_MAX_WORKERS environment variable, default 1) on first
// call.
func (m *Manager) PoolFor(service providers.Name) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[service]; ok {
		return p
	}
	max := MaxWorkersFromEnv(service, 1)
	p := NewPool(service, max, m.logger)
	m.pools[service] = p
	m.logger.Debug("created worker pool", "service", service, "max_workers", max)
	return p
}

// Wait blocks until every pool the Manager has created has drained.
func (m *Manager) Wait() {
	m.mu.Lock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	for _, p := range pools {
		p.Wait()
	}
}

// MaxWorkersFromEnv reads "<SERVICE>_MAX_WORKERS" (service upper-cased)
// and returns fallback if it is unset or not a positive integer.
func MaxWorkersFromEnv(service providers.Name, fallback int) int {
	envVar := strings.ToUpper(string(service)) + "_MAX_WORKERS"
	if v := os.Getenv(envVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
