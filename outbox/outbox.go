// Package outbox defines Outbox, the local per-stream FIFO of
// Changes awaiting push to the server.
package outbox

import (
	"context"

	"github.com/go-mizu/rippledb/change"
)

// Entry is one Change awaiting push, bound to the stream it targets.
type Entry struct {
	Stream string
	Change change.Change
}

// Outbox is a per-replica, per-stream FIFO. Entries are exclusively
// owned by the Replicator and removed only by Drain.
type Outbox interface {
	// Push appends entry to the tail of its stream's FIFO.
	Push(ctx context.Context, entry Entry) error

	// Drain atomically removes and returns every entry currently
	// queued for stream, in FIFO order.
	Drain(ctx context.Context, stream string) ([]Entry, error)

	// Requeue puts entries back at the head of stream's FIFO,
	// preserving their relative order, ahead of anything pushed since
	// they were drained.
	Requeue(ctx context.Context, stream string, entries []Entry) error

	// Size reports the number of entries currently queued for stream.
	Size(ctx context.Context, stream string) (int, error)
}
