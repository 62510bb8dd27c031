package ios

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kacy/device-attestation-client/storage"
)

// Default storage keys for simulator state kept in a storage.Store.
const (
	DefaultKeyPrefix    = "appattest.simulator.key."
	DefaultAuthorityKey = "appattest.simulator.authority"
)

// StoreKeyStore is a KeyStore that keeps each key as a JSON record in a
// storage.Store, so simulator keys outlive the process when the store does.
//
// Read-modify-write updates are serialized within one StoreKeyStore only.
type StoreKeyStore struct {
	mu        sync.Mutex
	store     storage.Store
	keyPrefix string
}

var _ KeyStore = (*StoreKeyStore)(nil)

// storedKeyRecord is the persisted form of a StoredKey.
type storedKeyRecord struct {
	PrivateKey []byte    `json:"private_key"`
	Attested   bool      `json:"attested"`
	Counter    uint32    `json:"counter"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// NewStoreKeyStore creates a key store over store. An empty keyPrefix
// selects DefaultKeyPrefix.
func NewStoreKeyStore(store storage.Store, keyPrefix string) *StoreKeyStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &StoreKeyStore{store: store, keyPrefix: keyPrefix}
}

// Store saves a key for the given key ID.
func (s *StoreKeyStore) Store(ctx context.Context, keyID string, key *StoredKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.Get(ctx, s.keyPrefix+keyID); err == nil {
		return ErrKeyExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to check key: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(key.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	return s.save(ctx, keyID, &storedKeyRecord{
		PrivateKey: der,
		CreatedAt:  time.Now().UTC(),
	})
}

// Load retrieves a key by key ID.
func (s *StoreKeyStore) Load(ctx context.Context, keyID string) (*StoredKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx, keyID)
	if err != nil {
		return nil, err
	}
	priv, err := x509.ParseECPrivateKey(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &StoredKey{
		KeyID:      keyID,
		PrivateKey: priv,
		Attested:   rec.Attested,
		Counter:    rec.Counter,
		CreatedAt:  rec.CreatedAt,
		LastUsedAt: rec.LastUsedAt,
	}, nil
}

// MarkAttested flags the key as attested.
func (s *StoreKeyStore) MarkAttested(ctx context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx, keyID)
	if err != nil {
		return err
	}
	if rec.Attested {
		return ErrKeyAlreadyAttested
	}
	rec.Attested = true
	return s.save(ctx, keyID, rec)
}

// IncrementCounter increments and returns the new counter value.
func (s *StoreKeyStore) IncrementCounter(ctx context.Context, keyID string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx, keyID)
	if err != nil {
		return 0, err
	}
	rec.Counter++
	rec.LastUsedAt = time.Now().UTC()
	if err := s.save(ctx, keyID, rec); err != nil {
		return 0, err
	}
	return rec.Counter, nil
}

// Delete removes a key.
func (s *StoreKeyStore) Delete(ctx context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(ctx, keyID); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, s.keyPrefix+keyID); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (s *StoreKeyStore) load(ctx context.Context, keyID string) (*storedKeyRecord, error) {
	raw, err := s.store.Get(ctx, s.keyPrefix+keyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	var rec storedKeyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key data: %w", err)
	}
	return &rec, nil
}

func (s *StoreKeyStore) save(ctx context.Context, keyID string, rec *storedKeyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal key data: %w", err)
	}
	if err := s.store.Set(ctx, s.keyPrefix+keyID, string(data)); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

// authorityRecord is the persisted form of an Authority.
type authorityRecord struct {
	Root            []byte `json:"root"`
	Intermediate    []byte `json:"intermediate"`
	IntermediateKey []byte `json:"intermediate_key"`
}

// LoadOrCreateAuthority returns the Authority saved under key in store,
// creating and saving a new one when none exists. An empty key selects
// DefaultAuthorityKey.
func LoadOrCreateAuthority(ctx context.Context, store storage.Store, key string) (*Authority, error) {
	if key == "" {
		key = DefaultAuthorityKey
	}

	raw, err := store.Get(ctx, key)
	switch {
	case err == nil:
		return parseAuthority(raw)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to load authority: %w", err)
	}

	a, err := NewAuthority()
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(a.intermediateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intermediate key: %w", err)
	}
	data, err := json.Marshal(authorityRecord{
		Root:            a.root.Raw,
		Intermediate:    a.intermediate.Raw,
		IntermediateKey: keyDER,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authority: %w", err)
	}
	if err := store.Set(ctx, key, string(data)); err != nil {
		return nil, fmt.Errorf("failed to store authority: %w", err)
	}
	return a, nil
}

func parseAuthority(raw string) (*Authority, error) {
	var rec authorityRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authority: %w", err)
	}
	root, err := x509.ParseCertificate(rec.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse root certificate: %w", err)
	}
	intermediate, err := x509.ParseCertificate(rec.Intermediate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse intermediate certificate: %w", err)
	}
	intKey, err := x509.ParseECPrivateKey(rec.IntermediateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse intermediate key: %w", err)
	}
	pub, ok := intermediate.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(&intKey.PublicKey) {
		return nil, errors.New("intermediate key does not match its certificate")
	}
	return &Authority{
		root:            root,
		intermediate:    intermediate,
		intermediateKey: intKey,
	}, nil
}
