package ios

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"
	"time"
)

// KeyStore holds the simulator's attestation private keys, standing in for
// the Secure Enclave. Implementations should be thread-safe.
type KeyStore interface {
	// Store saves a new key. Returns ErrKeyExists if keyID is taken.
	Store(ctx context.Context, keyID string, key *StoredKey) error

	// Load retrieves a key by key ID.
	Load(ctx context.Context, keyID string) (*StoredKey, error)

	// MarkAttested flags the key as attested. Returns ErrKeyAlreadyAttested
	// if it already was, so a key can be attested only once.
	MarkAttested(ctx context.Context, keyID string) error

	// IncrementCounter atomically increments and returns the new counter value.
	IncrementCounter(ctx context.Context, keyID string) (uint32, error)
}

// StoredKey is a simulated hardware key with its attestation state.
type StoredKey struct {
	// KeyID is the base64 SHA-256 of the uncompressed public key.
	KeyID string

	// PrivateKey never leaves the store in the real service.
	PrivateKey *ecdsa.PrivateKey

	// Attested is set once the key has been attested.
	Attested bool

	// Counter is the assertion counter.
	Counter uint32

	// CreatedAt is when the key was generated.
	CreatedAt time.Time

	// LastUsedAt is when the key last produced an assertion.
	LastUsedAt time.Time
}

// Common errors for KeyStore implementations.
var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrKeyExists          = errors.New("key already exists")
	ErrKeyAlreadyAttested = errors.New("key already attested")
)

// MemoryKeyStore is an in-memory implementation of KeyStore.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*StoredKey
}

// NewMemoryKeyStore creates a new in-memory key store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		keys: make(map[string]*StoredKey),
	}
}

// Store saves a key for the given key ID.
func (s *MemoryKeyStore) Store(ctx context.Context, keyID string, key *StoredKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[keyID]; exists {
		return ErrKeyExists
	}

	keyCopy := *key
	keyCopy.KeyID = keyID
	keyCopy.CreatedAt = time.Now()
	s.keys[keyID] = &keyCopy
	return nil
}

// Load retrieves a key by key ID.
func (s *MemoryKeyStore) Load(ctx context.Context, keyID string) (*StoredKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, exists := s.keys[keyID]
	if !exists {
		return nil, ErrKeyNotFound
	}

	keyCopy := *key
	return &keyCopy, nil
}

// MarkAttested flags the key as attested.
func (s *MemoryKeyStore) MarkAttested(ctx context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, exists := s.keys[keyID]
	if !exists {
		return ErrKeyNotFound
	}
	if key.Attested {
		return ErrKeyAlreadyAttested
	}
	key.Attested = true
	return nil
}

// IncrementCounter atomically increments and returns the new counter value.
func (s *MemoryKeyStore) IncrementCounter(ctx context.Context, keyID string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, exists := s.keys[keyID]
	if !exists {
		return 0, ErrKeyNotFound
	}

	key.Counter++
	key.LastUsedAt = time.Now()
	return key.Counter, nil
}
