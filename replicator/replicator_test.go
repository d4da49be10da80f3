package replicator

import (
	"context"
	"errors"
	"testing"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/hlc"
	logbrokermem "github.com/go-mizu/rippledb/logbroker/memory"
	outboxmem "github.com/go-mizu/rippledb/outbox/memory"
	storemem "github.com/go-mizu/rippledb/store/memory"

	"github.com/go-mizu/rippledb/logbroker"
)

type memCursorStore struct {
	cursors map[string]logbroker.Cursor
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: make(map[string]logbroker.Cursor)}
}

func (m *memCursorStore) Load(ctx context.Context, stream string) (logbroker.Cursor, error) {
	return m.cursors[stream], nil
}

func (m *memCursorStore) Save(ctx context.Context, stream string, cursor logbroker.Cursor) error {
	m.cursors[stream] = cursor
	return nil
}

func ts(wall uint64, node string) hlc.Timestamp {
	return hlc.Timestamp{Wall: wall, Node: node}
}

func upsert(id, title string, wall uint64, node string) change.Change {
	return change.MakeUpsert(change.UpsertParams{
		Stream: "s", Entity: "todo", EntityID: id,
		Patch: map[string]any{"title": title}, HLC: ts(wall, node),
	})
}

func TestPushLocal_AppliesThenEnqueues(t *testing.T) {
	ctx := context.Background()
	st := storemem.New()
	db := logbrokermem.New()
	ob := outboxmem.New()
	cs := newMemCursorStore()
	r := New("s", st, db, ob, cs)

	if err := r.PushLocal(ctx, upsert("1", "hello", 1, "a")); err != nil {
		t.Fatalf("PushLocal: %v", err)
	}

	row, err := st.GetRow(ctx, "todo", "1")
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if row["title"] != "hello" {
		t.Fatalf("expected local apply to take effect, got %v", row["title"])
	}

	n, _ := ob.Size(ctx, "s")
	if n != 1 {
		t.Fatalf("expected outbox to hold 1 entry, got %d", n)
	}
}

func TestSync_PullOnly(t *testing.T) {
	ctx := context.Background()
	db := logbrokermem.New()
	db.Append(ctx, logbroker.AppendRequest{Stream: "s", Changes: []change.Change{upsert("1", "hello", 1000, "a")}})

	st := storemem.New()
	ob := outboxmem.New()
	cs := newMemCursorStore()
	r := New("s", st, db, ob, cs)

	res, err := r.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Pulled != 1 {
		t.Fatalf("expected 1 pulled, got %d", res.Pulled)
	}
	row, err := st.GetRow(ctx, "todo", "1")
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if row["title"] != "hello" {
		t.Fatalf("unexpected row: %v", row)
	}

	saved, _ := cs.Load(ctx, "s")
	if saved != res.NextCursor {
		t.Fatalf("expected cursor persisted, got %v want %v", saved, res.NextCursor)
	}
}

func TestSync_PushOnly(t *testing.T) {
	ctx := context.Background()
	db := logbrokermem.New()

	st := storemem.New()
	ob := outboxmem.New()
	cs := newMemCursorStore()
	r := New("s", st, db, ob, cs)

	if err := r.PushLocal(ctx, upsert("1", "hello", 1000, "a")); err != nil {
		t.Fatalf("PushLocal: %v", err)
	}

	res, err := r.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Pushed != 1 {
		t.Fatalf("expected 1 pushed, got %d", res.Pushed)
	}

	pulled, err := db.Pull(ctx, logbroker.PullRequest{Stream: "s"})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(pulled.Changes) != 1 || pulled.Changes[0].EntityID != "1" {
		t.Fatalf("expected the pushed change on the server log, got %+v", pulled.Changes)
	}
}

func TestSync_CreateThenReplicate_TwoReplicas(t *testing.T) {
	ctx := context.Background()
	db := logbrokermem.New()

	aStore := storemem.New()
	aOutbox := outboxmem.New()
	aReplicator := New("s", aStore, db, aOutbox, newMemCursorStore())

	bStore := storemem.New()
	bOutbox := outboxmem.New()
	bReplicator := New("s", bStore, db, bOutbox, newMemCursorStore())

	if err := aReplicator.PushLocal(ctx, upsert("1", "hello", 1000, "a")); err != nil {
		t.Fatalf("PushLocal: %v", err)
	}
	if _, err := aReplicator.Sync(ctx); err != nil {
		t.Fatalf("A sync: %v", err)
	}
	if _, err := bReplicator.Sync(ctx); err != nil {
		t.Fatalf("B sync: %v", err)
	}

	row, err := bStore.GetRow(ctx, "todo", "1")
	if err != nil {
		t.Fatalf("B GetRow: %v", err)
	}
	if row["title"] != "hello" {
		t.Fatalf("expected B to observe A's write, got %v", row["title"])
	}
}

type failingRemote struct {
	logbroker.Db
	pullErr   error
	appendErr error
}

func (f *failingRemote) Pull(ctx context.Context, req logbroker.PullRequest) (logbroker.PullResult, error) {
	if f.pullErr != nil {
		return logbroker.PullResult{}, f.pullErr
	}
	return f.Db.Pull(ctx, req)
}

func (f *failingRemote) Append(ctx context.Context, req logbroker.AppendRequest) (logbroker.AppendResult, error) {
	if f.appendErr != nil {
		return logbroker.AppendResult{}, f.appendErr
	}
	return f.Db.Append(ctx, req)
}

func TestSync_PushFailure_RequeuesAtHeadPreservingOrder(t *testing.T) {
	ctx := context.Background()
	db := logbrokermem.New()
	remote := &failingRemote{Db: db, appendErr: errors.New("connection reset")}

	st := storemem.New()
	ob := outboxmem.New()
	r := New("s", st, remote, ob, newMemCursorStore())

	r.PushLocal(ctx, upsert("1", "a", 1, "a"))
	r.PushLocal(ctx, upsert("2", "b", 2, "a"))

	_, err := r.Sync(ctx)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}

	n, _ := ob.Size(ctx, "s")
	if n != 2 {
		t.Fatalf("expected both entries restored to outbox, got %d", n)
	}

	drained, _ := ob.Drain(ctx, "s")
	if len(drained) != 2 || drained[0].Change.EntityID != "1" || drained[1].Change.EntityID != "2" {
		t.Fatalf("expected original order preserved, got %+v", drained)
	}
}

func TestSync_IdempotentRetry_SameKeyOnRetry(t *testing.T) {
	ctx := context.Background()
	db := logbrokermem.New()

	st := storemem.New()
	ob := outboxmem.New()
	r := New("s", st, db, ob, newMemCursorStore())

	r.PushLocal(ctx, upsert("1", "a", 1, "a"))
	if _, err := r.Sync(ctx); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// Simulate the caller believing the push was lost and re-pushing
	// the identical change; the idempotency key is derived from
	// content, not a per-attempt random value, so the replay is a
	// safe no-op on the server.
	r.PushLocal(ctx, upsert("1", "a", 1, "a"))
	res, err := r.Sync(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Pushed != 0 {
		t.Fatalf("expected idempotent replay to accept 0, got %d", res.Pushed)
	}

	pulled, err := db.Pull(ctx, logbroker.PullRequest{Stream: "s"})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(pulled.Changes) != 1 {
		t.Fatalf("expected the log to contain the batch exactly once, got %d entries", len(pulled.Changes))
	}
}
