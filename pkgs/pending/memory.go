package pending

import (
	"context"
	"sync"
)

// MemoryStore keeps the slot in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	slot Submission
}

// NewMemoryStore returns an empty in-memory slot.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (Submission, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot, !m.slot.IsZero(), nil
}

func (m *MemoryStore) Save(_ context.Context, s Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slot = s
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slot = Submission{}
	return nil
}
