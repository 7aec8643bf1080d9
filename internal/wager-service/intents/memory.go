package intents

import (
	"context"
	"fmt"
	"sync"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

type MemoryStore struct {
	mu   sync.Mutex
	data map[string]domain.Intent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]domain.Intent)}
}

func (m *MemoryStore) Create(_ context.Context, in domain.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[in.ID]; ok {
		return fmt.Errorf("intent %s already exists", in.ID)
	}
	m.data[in.ID] = in
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (domain.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.data[id]
	if !ok {
		return domain.Intent{}, fmt.Errorf("%w: %s", domain.ErrUnknownIntent, id)
	}
	return in, nil
}

func (m *MemoryStore) Resolve(_ context.Context, id string, to domain.IntentState, mutate func(*domain.Intent)) (domain.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.data[id]
	if !ok {
		return domain.Intent{}, fmt.Errorf("%w: %s", domain.ErrUnknownIntent, id)
	}
	if err := resolve(&in, to, mutate); err != nil {
		return in, err
	}
	m.data[id] = in
	return in, nil
}
