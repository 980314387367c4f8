package password

import (
	"context"
	"slices"
	"sync"
)

// InMemoryHistoryStore keeps password history per user, newest first.
type InMemoryHistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*HistoryEntry
}

func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{entries: make(map[string][]*HistoryEntry)}
}

func (s *InMemoryHistoryStore) Record(_ context.Context, entry *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *entry
	s.entries[entry.UserID] = append([]*HistoryEntry{&clone}, s.entries[entry.UserID]...)
	return nil
}

func (s *InMemoryHistoryStore) ListRecent(_ context.Context, userID string, limit int) ([]*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.entries[userID]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		clone := *entry
		out = append(out, &clone)
	}
	return out, nil
}

func (s *InMemoryHistoryStore) TrimToRecent(_ context.Context, userID string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[userID]
	if len(entries) > keep {
		s.entries[userID] = slices.Clone(entries[:keep])
	}
	return nil
}
