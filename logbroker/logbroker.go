// Package logbroker defines Db, the server-side authoritative
// append-only change log: one log per stream, cursor-based pull,
// idempotent append.
package logbroker

import (
	"context"
	"errors"

	"github.com/go-mizu/rippledb/change"
)

// ErrValidation wraps every reason the Db rejects a request: an empty
// stream name (Append or Pull), an empty changes slice, or a
// malformed Change.
var ErrValidation = errors.New("logbroker: validation failed")

// ErrConflict is raised if the server rejects an append on stream
// state grounds other than idempotent replay. The reference in-memory
// Db never raises it; adapters with stricter stream invariants may.
var ErrConflict = errors.New("logbroker: conflict")

// Cursor is an opaque, server-issued position in a stream's log.
// Clients persist it to resume pulls; comparing cursors is not
// required outside the Db implementation.
type Cursor string

// NoCursor is the "from the beginning" sentinel.
const NoCursor Cursor = ""

// AppendRequest is the input to Append.
type AppendRequest struct {
	Stream string
	// IdempotencyKey, if non-empty, makes a retried Append with the
	// same key on the same stream a no-op.
	IdempotencyKey string
	Changes        []change.Change
}

// AppendResult is the output of Append.
type AppendResult struct {
	// Accepted is the number of changes actually appended: len(Changes)
	// on success, 0 on an idempotent replay.
	Accepted int
}

// PullRequest is the input to Pull.
type PullRequest struct {
	Stream string
	Cursor Cursor
	// Limit caps the number of changes returned. Zero means the Db's
	// own default.
	Limit int
}

// PullResult is the output of Pull.
type PullResult struct {
	Changes []change.Change
	// NextCursor points at the last returned change. When no changes
	// are returned it echoes the request's Cursor, so a caught-up
	// caller keeps its position; a stream with no log yields NoCursor.
	NextCursor Cursor
}

// Db is the server-side authoritative log broker.
type Db interface {
	// Append appends req.Changes to req.Stream's log in order,
	// assigning sequence numbers. Atomic per request: either every
	// change is appended or none is.
	Append(ctx context.Context, req AppendRequest) (AppendResult, error)

	// Pull returns up to req.Limit changes strictly after req.Cursor.
	// Read-only and idempotent.
	Pull(ctx context.Context, req PullRequest) (PullResult, error)
}
