package position

import (
	"context"
	"sync"

	"crypto-trading-assistant/internal/types"
)

type MemoryStore struct {
	mu        sync.Mutex
	positions []types.Position
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) ([]types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Position(nil), m.positions...), nil
}

func (m *MemoryStore) Save(_ context.Context, positions []types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append([]types.Position(nil), positions...)
	return nil
}
