// Package replicator implements the pull→apply→push sync loop: a
// Replicator keeps one local Store eventually consistent with one
// server stream across an untrusted transport.
package replicator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/logbroker"
	"github.com/go-mizu/rippledb/outbox"
	"github.com/go-mizu/rippledb/store"
)

// ErrTransport wraps every failure from Remote.Pull or Remote.Append.
// The Replicator surfaces it without retrying; a higher-level policy
// decides backoff.
var ErrTransport = errors.New("replicator: transport failure")

// Remote is the server-side contract a Replicator syncs against. A
// logbroker.Db satisfies it directly for same-process wiring; an HTTP
// or other transport client satisfies it for cross-process sync.
type Remote interface {
	Pull(ctx context.Context, req logbroker.PullRequest) (logbroker.PullResult, error)
	Append(ctx context.Context, req logbroker.AppendRequest) (logbroker.AppendResult, error)
}

// CursorStore persists the last-applied Cursor per stream so a
// restarted replicator resumes instead of re-pulling the world.
type CursorStore interface {
	Load(ctx context.Context, stream string) (logbroker.Cursor, error)
	Save(ctx context.Context, stream string, cursor logbroker.Cursor) error
}

// IdempotencyKeyFunc generates a stable key per drained batch so an
// append retried after a partial failure is a safe no-op on the
// server.
type IdempotencyKeyFunc func(stream string, changes []change.Change) string

// DefaultIdempotencyKeyFunc hashes the ordered HLCs of changes, so
// the same batch drained and retried produces the same key without
// the caller having to remember it across attempts.
func DefaultIdempotencyKeyFunc(stream string, changes []change.Change) string {
	h := sha256.New()
	h.Write([]byte(stream))
	for _, c := range changes {
		h.Write([]byte{0})
		h.Write([]byte(c.Entity))
		h.Write([]byte{0})
		h.Write([]byte(c.EntityID))
		h.Write([]byte{0})
		h.Write([]byte(c.Kind))
		h.Write([]byte{0})
		h.Write([]byte(c.HLC.String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Result is the outcome of one Sync call.
type Result struct {
	NextCursor logbroker.Cursor
	Pulled     int
	Pushed     int
}

// Replicator is bound to one stream and keeps it synced between a
// local Store and a Remote, via a local Outbox.
type Replicator struct {
	stream      string
	store       store.Store
	remote      Remote
	outbox      outbox.Outbox
	cursors     CursorStore
	pullLimit   int
	keyFn       IdempotencyKeyFunc
	logger      *slog.Logger

	mu sync.Mutex // serializes Sync calls on this Replicator
}

// Option configures a Replicator.
type Option func(*Replicator)

// WithPullLimit overrides the default pull_limit (500).
func WithPullLimit(n int) Option {
	return func(r *Replicator) { r.pullLimit = n }
}

// WithIdempotencyKeyFunc overrides DefaultIdempotencyKeyFunc.
func WithIdempotencyKeyFunc(fn IdempotencyKeyFunc) Option {
	return func(r *Replicator) { r.keyFn = fn }
}

// WithLogger injects a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Replicator) { r.logger = l }
}

const defaultPullLimit = 500

// New binds a Replicator to stream, store, remote, outbox, and
// cursors.
func New(streamName string, st store.Store, remote Remote, ob outbox.Outbox, cursors CursorStore, opts ...Option) *Replicator {
	r := &Replicator{
		stream:    streamName,
		store:     st,
		remote:    remote,
		outbox:    ob,
		cursors:   cursors,
		pullLimit: defaultPullLimit,
		keyFn:     DefaultIdempotencyKeyFunc,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// PushLocal applies c to the local store and, only if that succeeds,
// enqueues it in the outbox. The local apply happens first so the UI
// reflects the write immediately.
func (r *Replicator) PushLocal(ctx context.Context, c change.Change) error {
	if err := r.store.Apply(ctx, []change.Change{c}); err != nil {
		return err
	}
	return r.outbox.Push(ctx, outbox.Entry{Stream: r.stream, Change: c})
}

// Sync runs one pull→apply→push cycle. Calls on the same Replicator
// are serialized: a Sync in flight blocks a concurrent caller until
// it completes, rather than racing or rejecting outright.
func (r *Replicator) Sync(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cursor, err := r.cursors.Load(ctx, r.stream)
	if err != nil {
		return Result{}, fmt.Errorf("replicator: loading cursor: %w", err)
	}

	pulled, err := r.remote.Pull(ctx, logbroker.PullRequest{
		Stream: r.stream,
		Cursor: cursor,
		Limit:  r.pullLimit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: pull: %w", ErrTransport, err)
	}

	nextCursor := cursor
	if len(pulled.Changes) > 0 {
		if err := r.store.Apply(ctx, pulled.Changes); err != nil {
			return Result{}, fmt.Errorf("replicator: applying pulled changes: %w", err)
		}
		if err := r.cursors.Save(ctx, r.stream, pulled.NextCursor); err != nil {
			return Result{}, fmt.Errorf("replicator: saving cursor: %w", err)
		}
		nextCursor = pulled.NextCursor
	}

	pending, err := r.outbox.Drain(ctx, r.stream)
	if err != nil {
		return Result{}, fmt.Errorf("replicator: draining outbox: %w", err)
	}

	pushed := 0
	if len(pending) > 0 {
		changes := make([]change.Change, len(pending))
		for i, e := range pending {
			changes[i] = e.Change
		}

		res, err := r.remote.Append(ctx, logbroker.AppendRequest{
			Stream:         r.stream,
			IdempotencyKey: r.keyFn(r.stream, changes),
			Changes:        changes,
		})
		if err != nil {
			if rqErr := r.outbox.Requeue(ctx, r.stream, pending); rqErr != nil {
				r.logger.Error("replicator: requeue after push failure also failed",
					slog.String("stream", r.stream), slog.Any("error", rqErr))
			}
			return Result{}, fmt.Errorf("%w: append: %w", ErrTransport, err)
		}
		pushed = res.Accepted
	}

	r.logger.Info("sync complete",
		slog.String("stream", r.stream), slog.Int("pulled", len(pulled.Changes)), slog.Int("pushed", pushed))

	return Result{NextCursor: nextCursor, Pulled: len(pulled.Changes), Pushed: pushed}, nil
}
