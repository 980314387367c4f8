package user

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"authgate/pkg/sentinel"
)

// InMemoryStore keeps users in memory for tests and dev mode.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemoryStore constructs an empty in-memory user store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*User)}
}

func (s *InMemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email %q taken: %w", u.Email, sentinel.ErrConflict)
		}
	}
	cloned := *u
	s.users[u.ID] = &cloned
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", id, sentinel.ErrNotFound)
	}
	cloned := *u
	return &cloned, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cloned := *u
			return &cloned, nil
		}
	}
	return nil, fmt.Errorf("user with email %q: %w", email, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return fmt.Errorf("user %q: %w", u.ID, sentinel.ErrNotFound)
	}
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email %q taken: %w", u.Email, sentinel.ErrConflict)
		}
	}
	cloned := *u
	s.users[u.ID] = &cloned
	return nil
}

func (s *InMemoryStore) IncrementFailedLogins(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, fmt.Errorf("user %q: %w", id, sentinel.ErrNotFound)
	}
	u.FailedLoginAttempts++
	return u.FailedLoginAttempts, nil
}
