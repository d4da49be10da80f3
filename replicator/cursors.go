package replicator

import (
	"context"
	"sync"

	"github.com/go-mizu/rippledb/logbroker"
)

// MemoryCursorStore is an in-process CursorStore. It loses its
// position on restart, which only costs a full re-pull; durable
// adapters persist the cursor next to the local store's data.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]logbroker.Cursor
}

// NewMemoryCursorStore returns an empty MemoryCursorStore.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]logbroker.Cursor)}
}

var _ CursorStore = (*MemoryCursorStore)(nil)

// Load implements CursorStore. An unknown stream yields NoCursor.
func (m *MemoryCursorStore) Load(ctx context.Context, stream string) (logbroker.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[stream], nil
}

// Save implements CursorStore.
func (m *MemoryCursorStore) Save(ctx context.Context, stream string, cursor logbroker.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[stream] = cursor
	return nil
}
