// Package hlc implements hybrid logical clocks: monotonic
// wall-clock-plus-logical timestamps that give replicas a total,
// causality-respecting order without trusting wall clocks.
package hlc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrOverflow is returned by Tick and Observe when the logical counter
// would overflow uint32. Non-recoverable without operator
// intervention.
var ErrOverflow = errors.New("hlc: logical counter overflow")

// Timestamp is a hybrid logical clock reading. Comparison is
// lexicographic over (Wall, Logical, Node).
type Timestamp struct {
	Wall    uint64
	Logical uint32
	Node    string
}

// Compare returns -1, 0, or 1 as a sorts before, equals, or sorts
// after b.
func Compare(a, b Timestamp) int {
	if a.Wall != b.Wall {
		if a.Wall < b.Wall {
			return -1
		}
		return 1
	}
	if a.Logical != b.Logical {
		if a.Logical < b.Logical {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Node, b.Node)
}

// Less reports whether a sorts strictly before b.
func Less(a, b Timestamp) bool { return Compare(a, b) < 0 }

// Zero is the sentinel "no timestamp observed yet" value.
var Zero = Timestamp{}

// String renders the canonical wire form "<wall>:<logical>:<node>".
func (t Timestamp) String() string {
	return fmt.Sprintf("%d:%d:%s", t.Wall, t.Logical, t.Node)
}

// Parse accepts the canonical "<wall>:<logical>:<node>" string form.
// Wire producers may also emit a structured object; decoding that
// form is the transport layer's job (see transport/http's
// WireTimestamp, which accepts both on ingest and always emits the
// string form).
func Parse(s string) (Timestamp, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Timestamp{}, fmt.Errorf("hlc: malformed timestamp %q", s)
	}
	wall, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("hlc: malformed wall in %q: %w", s, err)
	}
	logical, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Timestamp{}, fmt.Errorf("hlc: malformed logical in %q: %w", s, err)
	}
	if parts[2] == "" {
		return Timestamp{}, fmt.Errorf("hlc: empty node in %q", s)
	}
	return Timestamp{Wall: wall, Logical: uint32(logical), Node: parts[2]}, nil
}

// Persister durably records the last-seen timestamp for a node so
// that a restarted process can reinitialize without violating
// monotonicity.
type Persister interface {
	Load(ctx context.Context, node string) (Timestamp, error)
	Save(ctx context.Context, ts Timestamp) error
}

// Clock is process-wide per-node HLC state. The zero value is not
// usable; construct with New.
type Clock struct {
	mu        sync.Mutex
	node      string
	wall      uint64
	logical   uint32
	persister Persister
}

// Option configures a Clock.
type Option func(*Clock)

// WithPersister injects durable storage for the clock's last-seen
// timestamp. On New, the persisted value (if any) seeds the clock so
// that every subsequent Tick dominates every pre-restart tick.
func WithPersister(p Persister) Option {
	return func(c *Clock) { c.persister = p }
}

// New creates a Clock for node with wall=0, logical=0, then applies
// opts. If a Persister is configured, its last-seen timestamp for
// node is loaded and copied into the clock's wall and logical state,
// so the next Tick strictly dominates it.
func New(ctx context.Context, node string, opts ...Option) (*Clock, error) {
	if node == "" {
		return nil, errors.New("hlc: node id must not be empty")
	}
	c := &Clock{node: node}
	for _, o := range opts {
		o(c)
	}
	if c.persister != nil {
		last, err := c.persister.Load(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("hlc: loading persisted state: %w", err)
		}
		if last != Zero {
			c.wall = last.Wall
			c.logical = last.Logical
		}
	}
	return c, nil
}

// Node returns the clock's stable node identifier.
func (c *Clock) Node() string {
	return c.node
}

// Tick produces a new timestamp dominating every timestamp previously
// returned by Tick or folded in by Observe on this clock: the wall
// component is max(last wall, now), and the logical counter increments
// when the wall could not advance.
func (c *Clock) Tick(ctx context.Context, now time.Time) (Timestamp, error) {
	nowMs := uint64(now.UnixMilli())

	c.mu.Lock()
	defer c.mu.Unlock()

	newWall := c.wall
	if nowMs > newWall {
		newWall = nowMs
	}

	var newLogical uint32
	if newWall == c.wall {
		if c.logical == math.MaxUint32 {
			return Timestamp{}, ErrOverflow
		}
		newLogical = c.logical + 1
	} else {
		newLogical = 0
	}

	c.wall, c.logical = newWall, newLogical
	ts := Timestamp{Wall: newWall, Logical: newLogical, Node: c.node}
	if c.persister != nil {
		if err := c.persister.Save(ctx, ts); err != nil {
			return Timestamp{}, fmt.Errorf("hlc: persisting tick: %w", err)
		}
	}
	return ts, nil
}

// Observe folds an incoming timestamp into the clock's state so that
// the next Tick strictly dominates it. It returns the updated local
// timestamp, useful for logging causal join points. The returned
// value is not safe to hand out as a fresh event timestamp for this
// node: its Node field is this clock's node while its wall/logical
// were derived from someone else's clock.
func (c *Clock) Observe(ctx context.Context, incoming Timestamp, now time.Time) (Timestamp, error) {
	nowMs := uint64(now.UnixMilli())

	c.mu.Lock()
	defer c.mu.Unlock()

	maxPrior := c.wall
	if incoming.Wall > maxPrior {
		maxPrior = incoming.Wall
	}
	newWall := maxPrior
	if nowMs > newWall {
		newWall = nowMs
	}

	var newLogical uint32
	if newWall > maxPrior {
		newLogical = 0
	} else {
		l := c.logical
		if incoming.Logical > l {
			l = incoming.Logical
		}
		if l == math.MaxUint32 {
			return Timestamp{}, ErrOverflow
		}
		newLogical = l + 1
	}

	c.wall, c.logical = newWall, newLogical
	ts := Timestamp{Wall: newWall, Logical: newLogical, Node: c.node}
	if c.persister != nil {
		if err := c.persister.Save(ctx, ts); err != nil {
			return Timestamp{}, fmt.Errorf("hlc: persisting observe: %w", err)
		}
	}
	return ts, nil
}

// Snapshot returns the clock's current (wall, logical) state without
// advancing it, for diagnostics.
func (c *Clock) Snapshot() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Timestamp{Wall: c.wall, Logical: c.logical, Node: c.node}
}
