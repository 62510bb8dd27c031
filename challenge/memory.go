package challenge

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
// Suitable for single-instance deployments. For distributed systems,
// use the redis package.
type MemoryStore struct {
	mu      sync.Mutex
	grants  map[string]Grant
	closeCh chan struct{}
	closed  bool
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store that drops expired grants every
// cleanupInterval (default: 1 minute).
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval == 0 {
		cleanupInterval = time.Minute
	}

	s := &MemoryStore{
		grants:  make(map[string]Grant),
		closeCh: make(chan struct{}),
		now:     time.Now,
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

func (s *MemoryStore) Put(ctx context.Context, challenge string, grant Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.grants[challenge] = grant
	return nil
}

func (s *MemoryStore) Lookup(ctx context.Context, challenge string) (Grant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[challenge]
	return g, ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, challenge string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[challenge]; !ok {
		return false, nil
	}
	delete(s.grants, challenge)
	return true, nil
}

// Len returns the number of outstanding grants.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.grants)
}

// Close stops the cleanup loop. Further Puts fail with ErrClosed.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.closeCh)
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.dropExpired()
		case <-s.closeCh:
			return
		}
	}
}

func (s *MemoryStore) dropExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for challenge, g := range s.grants {
		if now.After(g.ExpiresAt) {
			delete(s.grants, challenge)
		}
	}
}
