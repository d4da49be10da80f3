// Package loader implements a per-tick batch loader: many Load(id)
// calls within one tick coalesce into a single
// store.GetRows(entity, unique_ids), so a UI list render doesn't pay
// an N+1 round trip per row.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-mizu/rippledb/store"
)

// Scheduler abstracts the environment-specific tick a Loader flushes
// on. The microtask and frame variants are implementable on top of
// any runtime's scheduler; AutoScheduler always uses the microtask
// variant.
type Scheduler interface {
	Schedule(fn func())
}

// MicrotaskScheduler flushes on the next iteration of the default Go
// scheduler, via a zero-delay goroutine dispatch, the closest analog
// to a microtask available here.
type MicrotaskScheduler struct{}

// Schedule implements Scheduler.
func (MicrotaskScheduler) Schedule(fn func()) { go fn() }

// FrameScheduler flushes after one frame interval (default 16ms,
// approximating 60fps), for callers pacing loads to a render loop.
type FrameScheduler struct {
	Interval time.Duration
}

// Schedule implements Scheduler.
func (f FrameScheduler) Schedule(fn func()) {
	interval := f.Interval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	time.AfterFunc(interval, fn)
}

// AutoScheduler delegates to MicrotaskScheduler; it exists as the
// named default so call sites read as "auto" rather than a specific
// strategy.
type AutoScheduler struct{}

// Schedule implements Scheduler.
func (AutoScheduler) Schedule(fn func()) { MicrotaskScheduler{}.Schedule(fn) }

type pendingCall struct {
	id     string
	result chan<- rowResult
}

type rowResult struct {
	row store.Row
	ok  bool
	err error
}

// Loader batches Load calls for one (store, entity) pair within a
// scheduler tick.
type Loader struct {
	st        store.Store
	entity    string
	scheduler Scheduler

	mu      sync.Mutex
	pending []pendingCall
	flushed bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithScheduler overrides the default AutoScheduler.
func WithScheduler(s Scheduler) Option {
	return func(l *Loader) { l.scheduler = s }
}

// New builds a Loader over st for entity.
func New(st store.Store, entity string, opts ...Option) *Loader {
	l := &Loader{st: st, entity: entity, scheduler: AutoScheduler{}}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load enqueues id into the pending set and schedules a flush if one
// is not already pending. The returned Row is nil with ok=false if
// the entity was absent or deleted; an error from the underlying
// GetRows rejects every pending caller in that flush with the same
// error.
func (l *Loader) Load(ctx context.Context, id string) (store.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	ch := make(chan rowResult, 1)

	l.mu.Lock()
	l.pending = append(l.pending, pendingCall{id: id, result: ch})
	needsSchedule := !l.flushed
	if needsSchedule {
		l.flushed = true
	}
	l.mu.Unlock()

	// Scheduled outside the lock: a synchronous Scheduler (e.g. one
	// that flushes inline for tests) would otherwise deadlock against
	// flush's own lock acquisition.
	if needsSchedule {
		l.scheduler.Schedule(func() { l.flush(ctx) })
	}

	select {
	case res := <-ch:
		return res.row, res.ok, res.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// LoadMany calls store.GetRows immediately, bypassing scheduling, for
// callers that already have the full id set.
func (l *Loader) LoadMany(ctx context.Context, ids []string) (map[string]store.Row, error) {
	unique := dedupe(ids)
	rows, err := l.st.GetRows(ctx, l.entity, unique)
	if err != nil {
		return nil, fmt.Errorf("loader: get_rows: %w", err)
	}
	return rows, nil
}

func (l *Loader) flush(ctx context.Context) {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.flushed = false
	l.mu.Unlock()

	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.id
	}

	rows, err := l.st.GetRows(ctx, l.entity, dedupe(ids))
	for _, c := range batch {
		if err != nil {
			c.result <- rowResult{err: fmt.Errorf("loader: get_rows: %w", err)}
			continue
		}
		row, ok := rows[c.id]
		c.result <- rowResult{row: row, ok: ok}
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
