// Package memory provides the reference in-memory Db. It is the only
// log this module ships; durable SQL/KV log adapters implement the
// same contract elsewhere.
package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/logbroker"
)

// entry is one appended change together with the opaque, lexically
// sortable token that becomes its Cursor. Because entropy is drawn
// from a per-stream ulid.Monotonic source, entries appended in order
// always compare greater than every entry before them, even within
// the same millisecond.
type entry struct {
	id ulid.ULID
	c  change.Change
}

type streamLog struct {
	entries []entry
	mono    io.Reader
	replies map[string]logbroker.AppendResult
}

// Db is a single-process, in-memory Db. It serializes all Append and
// Pull calls with one mutex.
type Db struct {
	mu      sync.Mutex
	streams map[string]*streamLog
	limit   int
	broker  logbroker.PokeBroker
}

const defaultLimit = 256

// Option configures a Db.
type Option func(*Db)

// WithBroker announces every successful, non-replayed Append on b
// with the stream's new head cursor. Defaults to a NopBroker.
func WithBroker(b logbroker.PokeBroker) Option {
	return func(d *Db) { d.broker = b }
}

// New returns an empty Db.
func New(opts ...Option) *Db {
	d := &Db{streams: make(map[string]*streamLog), limit: defaultLimit, broker: logbroker.NopBroker{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

var _ logbroker.Db = (*Db)(nil)

func (d *Db) streamFor(stream string) *streamLog {
	s, ok := d.streams[stream]
	if !ok {
		s = &streamLog{mono: ulid.Monotonic(rand.Reader, 0), replies: make(map[string]logbroker.AppendResult)}
		d.streams[stream] = s
	}
	return s
}

// Append implements logbroker.Db.
func (d *Db) Append(ctx context.Context, req logbroker.AppendRequest) (logbroker.AppendResult, error) {
	if req.Stream == "" {
		return logbroker.AppendResult{}, fmt.Errorf("%w: empty stream", logbroker.ErrValidation)
	}
	if len(req.Changes) == 0 {
		return logbroker.AppendResult{}, fmt.Errorf("%w: empty changes", logbroker.ErrValidation)
	}
	for _, c := range req.Changes {
		if err := c.Validate(); err != nil {
			return logbroker.AppendResult{}, fmt.Errorf("%w: %v", logbroker.ErrValidation, err)
		}
	}

	d.mu.Lock()

	s := d.streamFor(req.Stream)

	if req.IdempotencyKey != "" {
		if _, replayed := s.replies[req.IdempotencyKey]; replayed {
			d.mu.Unlock()
			return logbroker.AppendResult{Accepted: 0}, nil
		}
	}

	// Mint every cursor before touching the log so a failure cannot
	// leave a half-appended request behind.
	minted := make([]entry, 0, len(req.Changes))
	for _, c := range req.Changes {
		id, err := ulid.New(ulid.Now(), s.mono)
		if err != nil {
			d.mu.Unlock()
			return logbroker.AppendResult{}, fmt.Errorf("logbroker: minting cursor: %w", err)
		}
		minted = append(minted, entry{id: id, c: c})
	}
	s.entries = append(s.entries, minted...)

	result := logbroker.AppendResult{Accepted: len(req.Changes)}
	if req.IdempotencyKey != "" {
		s.replies[req.IdempotencyKey] = result
	}
	head := logbroker.Cursor(s.entries[len(s.entries)-1].id.String())
	d.mu.Unlock()

	d.broker.Poke(req.Stream, head)
	return result, nil
}

// Pull implements logbroker.Db.
func (d *Db) Pull(ctx context.Context, req logbroker.PullRequest) (logbroker.PullResult, error) {
	if req.Stream == "" {
		return logbroker.PullResult{}, fmt.Errorf("%w: empty stream", logbroker.ErrValidation)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.streams[req.Stream]
	if !ok {
		return logbroker.PullResult{NextCursor: logbroker.NoCursor}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = d.limit
	}

	if len(s.entries) == 0 {
		return logbroker.PullResult{NextCursor: logbroker.NoCursor}, nil
	}

	after := string(req.Cursor)
	start := 0
	if after != "" {
		start = sort.Search(len(s.entries), func(i int) bool {
			return s.entries[i].id.String() > after
		})
	}

	end := start + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}

	// When changes are returned the next cursor points at the last of
	// them. When nothing new is available the caller's cursor is echoed
	// back unchanged, so repeated syncs stabilize instead of
	// oscillating.
	next := req.Cursor
	changes := make([]change.Change, 0, end-start)
	for i := start; i < end; i++ {
		changes = append(changes, s.entries[i].c)
	}
	if end > start {
		next = logbroker.Cursor(s.entries[end-1].id.String())
	}

	return logbroker.PullResult{Changes: changes, NextCursor: next}, nil
}
