// Package memory provides the reference in-memory Outbox: one slice
// per stream, held in a map keyed by stream name. Durable implementations should
// co-commit each entry with its local apply so a crash cannot leave
// divergent local state and outbox; this one trades that durability
// for zero setup.
package memory

import (
	"context"
	"sync"

	"github.com/go-mizu/rippledb/outbox"
)

// Outbox is a single-process, in-memory Outbox.
type Outbox struct {
	mu      sync.Mutex
	entries map[string][]outbox.Entry
}

// New returns an empty Outbox.
func New() *Outbox {
	return &Outbox{entries: make(map[string][]outbox.Entry)}
}

var _ outbox.Outbox = (*Outbox)(nil)

// Push implements outbox.Outbox.
func (o *Outbox) Push(ctx context.Context, entry outbox.Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[entry.Stream] = append(o.entries[entry.Stream], entry)
	return nil
}

// Drain implements outbox.Outbox.
func (o *Outbox) Drain(ctx context.Context, stream string) ([]outbox.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	drained := o.entries[stream]
	delete(o.entries, stream)
	if len(drained) == 0 {
		return nil, nil
	}
	return drained, nil
}

// Requeue implements outbox.Outbox.
func (o *Outbox) Requeue(ctx context.Context, stream string, entries []outbox.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[stream] = append(append([]outbox.Entry{}, entries...), o.entries[stream]...)
	return nil
}

// Size implements outbox.Outbox.
func (o *Outbox) Size(ctx context.Context, stream string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries[stream]), nil
}
