// Package storage provides the persistent key/value stores that hold the
// attested key handle between app launches.
//
// Every implementation must be safe for concurrent use. Concurrent writers
// to the same key are not serialized beyond the store's own atomicity: the
// last write wins.
package storage

import (
	"context"
	"errors"
	"sync"
)

// Store is a persistent key/value store.
type Store interface {
	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("storage: not found")

// MemoryStore is an in-memory implementation of Store.
// Values live for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

// Set stores value under key.
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return "", ErrNotFound
	}
	return value, nil
}

// Remove deletes key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Len returns the number of stored values (for testing/monitoring).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
