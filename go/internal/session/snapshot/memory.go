package snapshot

import (
	"context"

	"github.com/sasha-s/go-deadlock"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    deadlock.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, blob []byte) error {
	cp := append([]byte(nil), blob...)
	m.mu.Lock()
	m.blobs[sessionID] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[sessionID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.blobs, sessionID)
	m.mu.Unlock()
	return nil
}
