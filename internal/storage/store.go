package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when nothing has been persisted yet.
var ErrNotFound = errors.New("storage: document not found")

// ErrRevisionConflict is returned by a versioned write when the stored
// revision no longer matches the one the caller read.
var ErrRevisionConflict = errors.New("storage: revision conflict")

// AnyRevision disables the revision comparison on Write (last write wins).
const AnyRevision uint64 = 0

// Backend persists the quota collection as a single opaque document.
// Every write replaces the whole document; there is no partial update.
type Backend interface {
	// Read returns the current document or ErrNotFound.
	Read(ctx context.Context) (*Document, error)
	// Write replaces the document. When expected is not AnyRevision the write
	// only succeeds if the stored revision equals expected; otherwise
	// ErrRevisionConflict is returned. The new revision is returned.
	Write(ctx context.Context, data []byte, expected uint64) (uint64, error)
	Close() error
}
