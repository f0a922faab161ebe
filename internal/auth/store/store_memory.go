package store

import (
	"context"
	"sync"

	"github.com/Bikorwhat/ecommerce/internal/auth"
)

// InMemoryUserStore keeps users in a map keyed by username. Intended for
// tests and single-process development runs.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]auth.LocalUser
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]auth.LocalUser)}
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (*auth.LocalUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *InMemoryUserStore) Create(_ context.Context, user *auth.LocalUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return ErrAlreadyExists
	}
	s.users[user.Username] = *user
	return nil
}
