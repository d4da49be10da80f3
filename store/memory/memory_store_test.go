package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/hlc"
	"github.com/go-mizu/rippledb/store"
)

func ts(wall uint64, logical uint32, node string) hlc.Timestamp {
	return hlc.Timestamp{Wall: wall, Logical: logical, Node: node}
}

func upsert(entity, id string, patch map[string]any, t hlc.Timestamp) change.Change {
	return change.MakeUpsert(change.UpsertParams{
		Stream: "s", Entity: entity, EntityID: id, Patch: patch, HLC: t,
	})
}

func del(entity, id string, t hlc.Timestamp) change.Change {
	return change.MakeDelete(change.DeleteParams{Stream: "s", Entity: entity, EntityID: id, HLC: t})
}

func TestApply_ThenGetRow(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Apply(ctx, []change.Change{
		upsert("todo", "1", map[string]any{"id": "1", "title": "hello"}, ts(1000, 0, "a")),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	row, err := s.GetRow(ctx, "todo", "1")
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if row["title"] != "hello" {
		t.Errorf("expected title hello, got %v", row["title"])
	}
}

func TestApply_RejectsEmptyBatch(t *testing.T) {
	s := New()
	if err := s.Apply(context.Background(), nil); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestApply_RejectsMalformedChange_NoPartialApply(t *testing.T) {
	s := New()
	ctx := context.Background()

	bad := change.Change{Stream: "s", Entity: "todo", EntityID: "2", Kind: change.Upsert}
	batch := []change.Change{
		upsert("todo", "1", map[string]any{"title": "ok"}, ts(1, 0, "a")),
		bad,
	}

	if err := s.Apply(ctx, batch); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := s.GetRow(ctx, "todo", "1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no partial apply, but row 1 exists: %v", err)
	}
}

func TestGetRow_NotFound(t *testing.T) {
	s := New()
	if _, err := s.GetRow(context.Background(), "todo", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRow_DeletedIsAbsent(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Apply(ctx, []change.Change{upsert("todo", "1", map[string]any{"title": "x"}, ts(1, 0, "a"))})
	s.Apply(ctx, []change.Change{del("todo", "1", ts(2, 0, "a"))})

	if _, err := s.GetRow(ctx, "todo", "1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted row to read as absent, got %v", err)
	}
}

func TestGetRows_BulkSkipsMissingAndDeleted(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Apply(ctx, []change.Change{
		upsert("todo", "1", map[string]any{"title": "a"}, ts(1, 0, "a")),
		upsert("todo", "2", map[string]any{"title": "b"}, ts(1, 0, "a")),
	})
	s.Apply(ctx, []change.Change{del("todo", "2", ts(2, 0, "a"))})

	rows, err := s.GetRows(ctx, "todo", []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d: %v", len(rows), rows)
	}
	if _, ok := rows["1"]; !ok {
		t.Error("expected row 1 present")
	}
}

func TestListRows_FiltersByEntityAndVisibility(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Apply(ctx, []change.Change{
		upsert("todo", "1", map[string]any{"title": "a"}, ts(1, 0, "a")),
		upsert("todo", "2", map[string]any{"title": "b"}, ts(1, 0, "a")),
		upsert("user", "1", map[string]any{"name": "z"}, ts(1, 0, "a")),
	})
	s.Apply(ctx, []change.Change{del("todo", "2", ts(2, 0, "a"))})

	rows, err := s.ListRows(ctx, store.Query{Entity: "todo"})
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 visible todo, got %d", len(rows))
	}
}

func TestOnEvent_FiresAfterCommitWithCorrectKinds(t *testing.T) {
	s := New()
	ctx := context.Background()

	var mu sync.Mutex
	var events []store.Event
	unsub := s.OnEvent(func(e store.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	defer unsub()

	s.Apply(ctx, []change.Change{upsert("todo", "1", map[string]any{"title": "a"}, ts(1, 0, "a"))})
	s.Apply(ctx, []change.Change{upsert("todo", "1", map[string]any{"title": "b"}, ts(2, 0, "a"))})
	s.Apply(ctx, []change.Change{del("todo", "1", ts(3, 0, "a"))})
	s.Apply(ctx, []change.Change{del("todo", "1", ts(4, 0, "a"))}) // re-delete already-deleted

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	want := []store.EventKind{store.EventInsert, store.EventUpdate, store.EventDelete, store.EventUpdate}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("event %d: kind = %q, want %q", i, events[i].Kind, k)
		}
	}
}

func TestOnEvent_AtMostOnePerKeyPerBatch(t *testing.T) {
	s := New()
	ctx := context.Background()

	var events []store.Event
	s.OnEvent(func(e store.Event) { events = append(events, e) })

	s.Apply(ctx, []change.Change{
		upsert("todo", "1", map[string]any{"title": "a"}, ts(1, 0, "a")),
		upsert("todo", "1", map[string]any{"done": true}, ts(2, 0, "a")),
		upsert("todo", "2", map[string]any{"title": "x"}, ts(1, 0, "a")),
	})

	if len(events) != 2 {
		t.Fatalf("expected 2 events (one per touched key), got %d: %+v", len(events), events)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	s := New()
	ctx := context.Background()

	var n int
	unsub := s.OnEvent(func(e store.Event) { n++ })
	s.Apply(ctx, []change.Change{upsert("todo", "1", map[string]any{"a": 1}, ts(1, 0, "a"))})
	unsub()
	s.Apply(ctx, []change.Change{upsert("todo", "2", map[string]any{"a": 1}, ts(1, 0, "a"))})

	if n != 1 {
		t.Fatalf("expected 1 delivered event after unsubscribe, got %d", n)
	}
}

func TestSnapshot_IsByValue(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Apply(ctx, []change.Change{upsert("todo", "1", map[string]any{"title": "a"}, ts(1, 0, "a"))})

	row, _ := s.GetRow(ctx, "todo", "1")
	row["title"] = "mutated"

	row2, _ := s.GetRow(ctx, "todo", "1")
	if row2["title"] != "a" {
		t.Fatalf("mutating a returned row affected the store: %v", row2["title"])
	}
}

func TestConcurrentApplyAndRead(t *testing.T) {
	s := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A' + i%26))
			s.Apply(ctx, []change.Change{upsert("todo", id, map[string]any{"i": i}, ts(uint64(i), 0, "a"))})
		}(i)
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ListRows(ctx, store.Query{Entity: "todo"})
		}()
	}
	wg.Wait()
}
