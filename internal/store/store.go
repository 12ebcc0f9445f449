// Package store persists the item tree (internal/item) to SQLite,
// enforcing the orphan and numbering invariants spec.md assigns to the
// Item Store (C2). scraped_times and symlinked_times are written as
// given, with no check that they never decrease. Grounded on the teacher's
// internal/library package: a querier interface shared by *sql.DB and
// *sql.Tx, and free functions taking querier that Store/Tx both expose.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// querier abstracts *sql.DB and *sql.Tx for shared query logic.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// Store provides access to the item tree.
//
// Upsert and the other writers take no lock. WithTreeLock offers a
// per-root mutex for callers that want one; writers to one tree are
// serialized by the event bus, which admits one job per item-tree root
// (keyed by RootID). No journal-mode pragma is set.
type Store struct {
	db *sql.DB

	mu        sync.Mutex
	treeLocks map[int64]*sync.Mutex
}

// NewStore creates a Store over an already-migrated database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, treeLocks: make(map[int64]*sync.Mutex)}
}

// lockTree returns the mutex guarding writes to the tree rooted at
// rootID, creating one on first use. rootID is the top-level Movie or
// Show id; callers resolve it before calling this.
func (s *Store) lockTree(rootID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.treeLocks[rootID]
	if !ok {
		l = &sync.Mutex{}
		s.treeLocks[rootID] = l
	}
	return l
}

// WithTreeLock runs fn while holding the write lock for the item tree
// rooted at rootID.
func (s *Store) WithTreeLock(rootID int64, fn func() error) error {
	l := s.lockTree(rootID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// Begin starts a transaction.
func (s *Store) Begin() (*Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a database transaction with the same methods as Store.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return ErrDuplicateNumber
	}
	if strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return ErrOrphan
	}
	return err
}

// RootID returns the id of the top-level Movie/Show that id belongs
// to, walking parent_id until it hits a root. Exposed as RootID, which
// the event bus uses as its one-job-per-tree admission key.
func rootID(q querier, id int64) (int64, error) {
	cur := id
	for {
		var parentID sql.NullInt64
		err := q.QueryRow("SELECT parent_id FROM items WHERE id = ?", cur).Scan(&parentID)
		if err != nil {
			return 0, fmt.Errorf("resolve root of %d: %w", id, mapSQLiteError(err))
		}
		if !parentID.Valid {
			return cur, nil
		}
		cur = parentID.Int64
	}
}

// RootID is the exported form of rootID, for callers (e.g. the event
// bus) that need the write-serialization key before calling Upsert.
func (s *Store) RootID(id int64) (int64, error) { return rootID(s.db, id) }
