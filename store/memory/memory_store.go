// Package memory provides the reference in-memory Store. It is the
// only persistence this module ships; durable SQL/KV adapters
// implement the same contract elsewhere.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/merge"
	"github.com/go-mizu/rippledb/store"
)

// Store is a single-writer-per-Store, in-memory implementation of
// store.Store. Apply serializes with itself and with reads via a
// single RWMutex; snapshots returned from reads are by value.
type Store struct {
	mu        sync.RWMutex
	records   map[change.Key]*merge.Record
	listeners map[int]store.Listener
	nextID    int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		records:   make(map[change.Key]*merge.Record),
		listeners: make(map[int]store.Listener),
	}
}

var _ store.Store = (*Store)(nil)

// keyState tracks what happened to one (entity, id) across a single
// Apply batch, so that exactly one Event can be derived per touched
// key after the whole batch commits.
type keyState struct {
	wasNew        bool
	deletedBefore bool
	anyWrite      bool
}

// Apply implements store.Store. See classify for the event-kind
// derivation rules.
func (s *Store) Apply(ctx context.Context, batch []change.Change) error {
	if len(batch) == 0 {
		return fmt.Errorf("%w: empty batch", store.ErrValidation)
	}
	for _, c := range batch {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
	}

	s.mu.Lock()

	states := make(map[change.Key]*keyState)
	touchOrder := make([]change.Key, 0, len(batch))

	for _, c := range batch {
		key := c.RecordKey()

		ks, seen := states[key]
		if !seen {
			rec, existed := s.records[key]
			ks = &keyState{wasNew: !existed}
			if existed {
				ks.deletedBefore = rec.Deleted
			}
			states[key] = ks
			touchOrder = append(touchOrder, key)
		}

		rec, ok := s.records[key]
		if !ok {
			rec = merge.NewRecord()
			s.records[key] = rec
		}

		written, _ := merge.Apply(rec, c)
		if len(written) > 0 {
			ks.anyWrite = true
		}
	}

	events := make([]store.Event, 0, len(touchOrder))
	for _, key := range touchOrder {
		ks := states[key]
		rec := s.records[key]
		events = append(events, store.Event{
			Entity: key.Entity,
			ID:     key.EntityID,
			Kind:   classify(ks, rec.Deleted),
		})
	}

	listeners := make([]store.Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	// Events fire strictly after commit, never during apply, in
	// record-update order.
	for _, e := range events {
		for _, l := range listeners {
			l(e)
		}
	}
	return nil
}

// classify derives the Event.Kind for one touched key: a key that did
// not exist before and got a field write is an insert; a live key that
// became deleted is a delete; everything else, a re-applied delete
// included, is an update. A resurrected record counts as an insert,
// since from a reader's perspective the row reappears and needs the
// same invalidation a genuinely new row would (see DESIGN.md).
func classify(ks *keyState, finalDeleted bool) store.EventKind {
	switch {
	case ks.wasNew && ks.anyWrite:
		return store.EventInsert
	case !ks.deletedBefore && finalDeleted:
		return store.EventDelete
	case ks.deletedBefore && !finalDeleted:
		return store.EventInsert
	default:
		return store.EventUpdate
	}
}

// GetRow implements store.Store.
func (s *Store) GetRow(ctx context.Context, entity, id string) (store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[change.Key{Entity: entity, EntityID: id}]
	if !ok || !rec.Visible() {
		return nil, store.ErrNotFound
	}
	return snapshot(rec), nil
}

// GetRows implements store.Store.
func (s *Store) GetRows(ctx context.Context, entity string, ids []string) (map[string]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]store.Row, len(ids))
	for _, id := range ids {
		rec, ok := s.records[change.Key{Entity: entity, EntityID: id}]
		if !ok || !rec.Visible() {
			continue
		}
		out[id] = snapshot(rec)
	}
	return out, nil
}

// ListRows implements store.Store.
func (s *Store) ListRows(ctx context.Context, q store.Query) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Row
	for key, rec := range s.records {
		if key.Entity != q.Entity || !rec.Visible() {
			continue
		}
		out = append(out, snapshot(rec))
	}
	return out, nil
}

// OnEvent implements store.Store.
func (s *Store) OnEvent(l store.Listener) store.Unsubscribe {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func snapshot(rec *merge.Record) store.Row {
	row := make(store.Row, len(rec.Values))
	for k, v := range rec.Values {
		row[k] = v
	}
	return row
}
