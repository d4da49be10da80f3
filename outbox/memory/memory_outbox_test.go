package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/hlc"
	"github.com/go-mizu/rippledb/outbox"
)

func entry(id string) outbox.Entry {
	return outbox.Entry{
		Stream: "s",
		Change: change.MakeUpsert(change.UpsertParams{
			Stream: "s", Entity: "todo", EntityID: id,
			Patch: map[string]any{"title": id},
			HLC:   hlc.Timestamp{Wall: 1, Node: "a"},
		}),
	}
}

func TestPushThenDrain_FIFOOrder(t *testing.T) {
	o := New()
	ctx := context.Background()
	o.Push(ctx, entry("1"))
	o.Push(ctx, entry("2"))
	o.Push(ctx, entry("3"))

	drained, err := o.Drain(ctx, "s")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(drained) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(drained))
	}
	for i, id := range []string{"1", "2", "3"} {
		if drained[i].Change.EntityID != id {
			t.Errorf("entry %d: got %q, want %q", i, drained[i].Change.EntityID, id)
		}
	}
}

func TestDrain_IsAtomicRemoveAndReturn(t *testing.T) {
	o := New()
	ctx := context.Background()
	o.Push(ctx, entry("1"))

	o.Drain(ctx, "s")

	n, err := o.Size(ctx, "s")
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty after drain, got size %d", n)
	}
}

func TestDrain_EmptyStreamReturnsNil(t *testing.T) {
	o := New()
	drained, err := o.Drain(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(drained) != 0 {
		t.Fatalf("expected no entries, got %v", drained)
	}
}

func TestRequeue_RestoresAtHead_PreservingOrder(t *testing.T) {
	o := New()
	ctx := context.Background()
	o.Push(ctx, entry("1"))
	o.Push(ctx, entry("2"))

	drained, _ := o.Drain(ctx, "s")

	o.Push(ctx, entry("3")) // pushed after the drain that failed to transmit
	o.Requeue(ctx, "s", drained)

	final, _ := o.Drain(ctx, "s")
	want := []string{"1", "2", "3"}
	if len(final) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(final), final)
	}
	for i, id := range want {
		if final[i].Change.EntityID != id {
			t.Errorf("entry %d: got %q, want %q", i, final[i].Change.EntityID, id)
		}
	}
}

func TestSize_TracksPerStream(t *testing.T) {
	o := New()
	ctx := context.Background()
	o.Push(ctx, outbox.Entry{Stream: "a", Change: entry("1").Change})
	o.Push(ctx, outbox.Entry{Stream: "b", Change: entry("2").Change})

	na, _ := o.Size(ctx, "a")
	nb, _ := o.Size(ctx, "b")
	if na != 1 || nb != 1 {
		t.Fatalf("expected per-stream isolation, got a=%d b=%d", na, nb)
	}
}

func TestConcurrentPushAndDrain(t *testing.T) {
	o := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o.Push(ctx, entry(string(rune('A'+i%26))))
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Drain(ctx, "s")
		}()
	}
	wg.Wait()
}
