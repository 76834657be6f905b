package rating

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps ratings in process. Used when no Redis or Postgres is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	ratings map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ratings: make(map[string]int)}
}

func (m *MemoryStore) Get(ctx context.Context, playerID string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.ratings[strings.TrimSpace(playerID)]
	return r, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, playerID string, rating int) error {
	m.mu.Lock()
	m.ratings[strings.TrimSpace(playerID)] = rating
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Top(ctx context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	items := make([]Entry, 0, len(m.ratings))
	for id, r := range m.ratings {
		items = append(items, Entry{PlayerID: id, Rating: r})
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].Rating != items[j].Rating {
			return items[i].Rating > items[j].Rating
		}
		return items[i].PlayerID < items[j].PlayerID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryStore) Close() error { return nil }
