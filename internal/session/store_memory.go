package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"authgate/pkg/sentinel"
)

// InMemoryStore keeps sessions in memory for tests and dev mode. A single
// mutex makes CreateReplacing naturally atomic.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

func (s *InMemoryStore) CreateReplacing(_ context.Context, sess *Session) (CreateStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats CreateStats

	// Fixation defense: a re-login from the same device never reuses a live
	// session row.
	for id, existing := range s.sessions {
		if existing.UserID == sess.UserID &&
			existing.IPAddress == sess.IPAddress &&
			existing.UserAgent == sess.UserAgent {
			delete(s.sessions, id)
			stats.ReplacedDevice = true
			break
		}
	}

	// LRU eviction at the cap.
	for s.countLocked(sess.UserID) >= MaxActiveSessions {
		oldest := s.oldestLocked(sess.UserID)
		if oldest == nil {
			break
		}
		delete(s.sessions, oldest.ID)
		stats.Evicted++
	}

	cloned := *sess
	s.sessions[sess.ID] = &cloned
	return stats, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	cloned := *sess
	return &cloned, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	delete(s.sessions, id)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			cloned := *sess
			out = append(out, &cloned)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (s *InMemoryStore) Touch(_ context.Context, id string, now time.Time, ip, userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	sess.LastActivity = now
	sess.IPAddress = ip
	sess.UserAgent = userAgent
	return nil
}

func (s *InMemoryStore) DeleteInactiveSince(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) countLocked(userID string) int {
	n := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) oldestLocked(userID string) *Session {
	var oldest *Session
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		if oldest == nil || sess.LastActivity.Before(oldest.LastActivity) {
			oldest = sess
		}
	}
	return oldest
}
