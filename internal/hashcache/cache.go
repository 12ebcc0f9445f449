// Package hashcache provides the process-wide, persistent three-state
// infohash cache (unknown / blacklisted / downloaded) spec.md assigns
// to the Hash Cache (C3): a blacklisted hash is never retried for any
// item, and a downloaded hash short-circuits the download check when a
// matching active_stream is already recorded.
//
// Grounded on the teacher's internal/metadata/cache.go SQLite-backed
// cache shape, with the TTL dropped: spec.md's blacklist entries are
// permanent, not expiring.
package hashcache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	statusBlacklisted = "blacklisted"
	statusDownloaded  = "downloaded"
)

// Cache is the shared hash cache. One instance is created at daemon
// startup and injected into every component that needs it (spec.md
// §9: "model as injected services with a clear init/teardown").
type Cache struct {
	db *sql.DB
}

// New creates a Cache over an already-migrated database handle.
func New(db *sql.DB) *Cache {
	return &Cache{db: db}
}

func (c *Cache) status(ctx context.Context, infohash string) (string, bool, error) {
	var status string
	err := c.db.QueryRowContext(ctx, "SELECT status FROM hash_cache WHERE infohash = ?", infohash).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hash cache lookup %s: %w", infohash, err)
	}
	return status, true, nil
}

// IsBlacklisted reports whether infohash must never be retried.
func (c *Cache) IsBlacklisted(ctx context.Context, infohash string) (bool, error) {
	status, ok, err := c.status(ctx, infohash)
	if err != nil {
		return false, err
	}
	return ok && status == statusBlacklisted, nil
}

// IsDownloaded reports whether infohash has already been confirmed
// downloaded for some item, used to short-circuit a redundant
// availability check when an item's active_stream already names it.
func (c *Cache) IsDownloaded(ctx context.Context, infohash string) (bool, error) {
	status, ok, err := c.status(ctx, infohash)
	if err != nil {
		return false, err
	}
	return ok && status == statusDownloaded, nil
}

// Blacklist permanently marks infohash as unusable. Idempotent: a hash
// already marked downloaded is NOT downgraded (a confirmed-good hash
// never becomes blacklisted by a later, unrelated mismatch report).
func (c *Cache) Blacklist(ctx context.Context, infohash string) error {
	return c.setStatus(ctx, infohash, statusBlacklisted, false)
}

// MarkDownloaded records infohash as a confirmed, fully-downloaded
// stream.
func (c *Cache) MarkDownloaded(ctx context.Context, infohash string) error {
	return c.setStatus(ctx, infohash, statusDownloaded, true)
}

func (c *Cache) setStatus(ctx context.Context, infohash, status string, overwriteDownloaded bool) error {
	if !overwriteDownloaded {
		downloaded, err := c.IsDownloaded(ctx, infohash)
		if err != nil {
			return err
		}
		if downloaded {
			return nil
		}
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO hash_cache (infohash, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(infohash) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		infohash, status, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("hash cache set %s=%s: %w", infohash, status, err)
	}
	return nil
}
