package prefs

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns a volatile in-memory Store.
// Useful for tests and for demo runs that should not leave state behind.
func NewMemoryStore() Store {
	return &memoryStore{values: make(map[string]string)}
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (s *memoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}
