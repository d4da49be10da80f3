// Package store defines the client-side Store contract: the local
// truth store that applies Changes transactionally, serves row and
// list reads, and emits post-commit events.
package store

import (
	"context"
	"errors"

	"github.com/go-mizu/rippledb/change"
)

// ErrNotFound is returned by row reads for an absent or deleted
// record. It is not used for list reads, which simply omit missing
// rows.
var ErrNotFound = errors.New("store: not found")

// ErrValidation wraps every reason apply_changes rejects a batch: a
// malformed Change fails change.Validate, or the batch itself is
// empty. The whole batch is rejected; no partial apply.
var ErrValidation = errors.New("store: validation failed")

// EventKind classifies a post-commit Event.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is the post-commit notification emitted after a successful
// Store.Apply.
type Event struct {
	Entity string
	Kind   EventKind
	ID     string
}

// Row is a by-value snapshot of a record's visible fields. Mutating
// a Row never affects the Store it came from.
type Row = map[string]any

// Query selects rows for ListRows. The reference in-memory Store supports
// {Entity: "..."}; adapters may extend this with additional
// adapter-specific fields. Lists are always re-run on invalidation, so
// no adapter needs to introspect a query to invalidate it precisely.
type Query struct {
	Entity string
}

// Listener receives every post-commit Event. Handlers must not call
// Apply synchronously from within a Listener.
type Listener func(Event)

// Unsubscribe detaches a previously registered Listener.
type Unsubscribe func()

// Store is the client-side local truth store.
type Store interface {
	// Apply applies every change in batch atomically: either all
	// commit as one step or none do. Events fire strictly after
	// commit, never during apply, in record-update order.
	Apply(ctx context.Context, batch []change.Change) error

	// GetRow returns a snapshot of entity/id's values, or ErrNotFound
	// if it does not exist or is deleted.
	GetRow(ctx context.Context, entity, id string) (Row, error)

	// GetRows is the bulk form of GetRow: missing or deleted ids are
	// simply absent from the result map.
	GetRows(ctx context.Context, entity string, ids []string) (map[string]Row, error)

	// ListRows returns every non-deleted row matching q.
	ListRows(ctx context.Context, q Query) ([]Row, error)

	// OnEvent registers a Listener for every post-commit Event and
	// returns a handle to unsubscribe it.
	OnEvent(l Listener) Unsubscribe
}
