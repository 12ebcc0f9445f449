package store

import "errors"

var (
	// ErrNotFound indicates the requested item does not exist.
	ErrNotFound = errors.New("item not found")

	// ErrOrphan indicates a Season/Episode was upserted without its
	// required parent already present. Spec invariant: a Season has
	// exactly one parent Show, an Episode exactly one parent Season;
	// orphans are rejected at upsert.
	ErrOrphan = errors.New("item has no parent")

	// ErrDuplicateNumber indicates a Season/Episode number collides
	// with a sibling under the same parent.
	ErrDuplicateNumber = errors.New("duplicate season/episode number")
)
