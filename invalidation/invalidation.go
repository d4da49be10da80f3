// Package invalidation wires Store events to cache invalidations:
// row queries invalidate precisely by id, list queries invalidate via
// a caller-built dependency Registry, and both are coalesced behind a
// debounce window.
package invalidation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-mizu/rippledb/store"
)

// Key is an invalidation target: a list-query prefix such as
// {"todo"} or {"dashboard"}, or a precise row key such as
// {"todo", "1"}.
type Key []string

// Invalidator receives one invalidation per flushed key. Implementations
// typically forward to a UI cache (e.g. evict a query-client key).
type Invalidator func(ctx context.Context, key Key)

// entry is one {query_key, deps} row in a Registry.
type entry struct {
	queryKey Key
	deps     map[string]struct{}
}

// Registry is a fluent, append-only builder mapping list-query key
// prefixes to the entity names they depend on. It may be mutated at
// runtime.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Depends appends {queryKey, entities} to the registry and returns
// the Registry for chaining.
func (r *Registry) Depends(queryKey Key, entities ...string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	deps := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		deps[e] = struct{}{}
	}
	r.entries = append(r.entries, entry{queryKey: append(Key{}, queryKey...), deps: deps})
	return r
}

// listKeysFor returns every registered query key whose deps intersect
// touched.
func (r *Registry) listKeysFor(touched map[string]struct{}) []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Key
	for _, e := range r.entries {
		for entityName := range touched {
			if _, ok := e.deps[entityName]; ok {
				out = append(out, e.queryKey)
				break
			}
		}
	}
	return out
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithDebounce overrides the default 50ms coalescing window.
// WithDebounce(0) flushes synchronously after every event.
func WithDebounce(d time.Duration) Option {
	return func(c *Coalescer) { c.debounce = d }
}

// WithRowInvalidation toggles per-row key invalidation (default true).
func WithRowInvalidation(enabled bool) Option {
	return func(c *Coalescer) { c.invalidateRows = enabled }
}

// WithLogger injects a structured logger for isolated invalidator
// panics/errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coalescer) { c.logger = l }
}

const defaultDebounce = 50 * time.Millisecond

// Coalescer buffers Store events for a debounce window, then flushes
// one invalidation per touched entity prefix, one per dependent list
// key, and (if enabled) one per touched row.
type Coalescer struct {
	registry       *Registry
	invalidate     Invalidator
	debounce       time.Duration
	invalidateRows bool
	logger         *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	touched map[string]struct{}
	rows    []Key
	rowSeen map[string]struct{}
}

// NewCoalescer builds a Coalescer that invalidates through invalidate,
// resolving list dependencies via registry.
func NewCoalescer(registry *Registry, invalidate Invalidator, opts ...Option) *Coalescer {
	c := &Coalescer{
		registry:       registry,
		invalidate:     invalidate,
		debounce:       defaultDebounce,
		invalidateRows: true,
		logger:         slog.Default(),
		touched:        make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Wire registers the Coalescer as a Listener on st, returning an
// Unsubscribe handle.
func (c *Coalescer) Wire(st store.Store) store.Unsubscribe {
	return st.OnEvent(c.handle)
}

func (c *Coalescer) handle(e store.Event) {
	c.mu.Lock()
	c.touched[e.Entity] = struct{}{}
	if c.invalidateRows {
		// One row key per (entity, id) per window, however many events
		// arrive for it.
		rk := e.Entity + "\x00" + e.ID
		if _, dup := c.rowSeen[rk]; !dup {
			if c.rowSeen == nil {
				c.rowSeen = make(map[string]struct{})
			}
			c.rowSeen[rk] = struct{}{}
			c.rows = append(c.rows, Key{e.Entity, e.ID})
		}
	}

	if c.debounce <= 0 {
		touched, rows := c.drainLocked()
		c.mu.Unlock()
		c.flush(touched, rows)
		return
	}

	if c.timer == nil {
		c.timer = time.AfterFunc(c.debounce, c.onTimer)
	}
	c.mu.Unlock()
}

func (c *Coalescer) onTimer() {
	c.mu.Lock()
	touched, rows := c.drainLocked()
	c.mu.Unlock()
	c.flush(touched, rows)
}

// drainLocked must be called with c.mu held. It resets the buffered
// state and returns what had accumulated.
func (c *Coalescer) drainLocked() (map[string]struct{}, []Key) {
	touched := c.touched
	rows := c.rows
	c.touched = make(map[string]struct{})
	c.rows = nil
	c.rowSeen = nil
	c.timer = nil
	return touched, rows
}

func (c *Coalescer) flush(touched map[string]struct{}, rows []Key) {
	if len(touched) == 0 {
		return
	}

	// Entity prefixes, dependent list keys, then rows. Each distinct
	// key is invalidated exactly once per flush.
	var keys []Key
	for entityName := range touched {
		keys = append(keys, Key{entityName})
	}
	keys = append(keys, c.registry.listKeysFor(touched)...)
	keys = append(keys, rows...)

	ctx := context.Background()
	emitted := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		k := strings.Join(key, "\x00")
		if _, dup := emitted[k]; dup {
			continue
		}
		emitted[k] = struct{}{}
		c.safeInvalidate(ctx, key)
	}
}

// safeInvalidate isolates a panicking Invalidator so one misbehaving
// callback cannot corrupt the coalescer's state.
func (c *Coalescer) safeInvalidate(ctx context.Context, key Key) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("invalidation callback panicked", slog.Any("key", key), slog.Any("panic", r))
		}
	}()
	c.invalidate(ctx, key)
}
