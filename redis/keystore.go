package redis

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kacy/device-attestation-client/ios"
)

// KeyStoreConfig holds configuration for the Redis key store.
type KeyStoreConfig struct {
	// Client is the Redis client (required).
	Client Cmdable

	// KeyPrefix is prepended to all Redis keys (default: "appattest:key:").
	KeyPrefix string

	// TTL is how long keys are stored (default: 0 = no expiration).
	// Set this if you want keys to automatically expire.
	TTL time.Duration
}

// KeyStore is a Redis-backed implementation of ios.KeyStore, so several
// simulator processes can share the same simulated Secure Enclave.
//
// Each key uses three Redis keys: the key material (JSON), an attested
// marker written with SETNX, and a counter advanced with INCR.
type KeyStore struct {
	client    Cmdable
	keyPrefix string
	ttl       time.Duration
}

var _ ios.KeyStore = (*KeyStore)(nil)

// storedKeyData is the JSON-serializable representation of a stored key.
type storedKeyData struct {
	PrivateKeyDER string    `json:"private_key"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewKeyStore creates a new Redis-backed key store.
func NewKeyStore(cfg KeyStoreConfig) (*KeyStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "appattest:key:"
	}

	return &KeyStore{
		client:    cfg.Client,
		keyPrefix: keyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

// Store saves a key for the given key ID.
func (s *KeyStore) Store(ctx context.Context, keyID string, key *ios.StoredKey) error {
	der, err := x509.MarshalECPrivateKey(key.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	jsonData, err := json.Marshal(storedKeyData{
		PrivateKeyDER: base64.StdEncoding.EncodeToString(der),
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal key data: %w", err)
	}

	// Use SetNX to prevent overwriting existing keys
	ok, err := s.client.SetNX(ctx, s.dataKey(keyID), jsonData, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	if !ok {
		return ios.ErrKeyExists
	}

	return nil
}

// Load retrieves a key by key ID.
func (s *KeyStore) Load(ctx context.Context, keyID string) (*ios.StoredKey, error) {
	jsonData, err := s.client.Get(ctx, s.dataKey(keyID)).Result()
	if err != nil {
		if isNil(err) {
			return nil, ios.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to load key: %w", err)
	}

	var data storedKeyData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key data: %w", err)
	}

	der, err := base64.StdEncoding.DecodeString(data.PrivateKeyDER)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	privateKey, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	attested, err := s.exists(ctx, s.attestedKey(keyID))
	if err != nil {
		return nil, err
	}

	counter, err := s.counter(ctx, keyID)
	if err != nil {
		return nil, err
	}

	return &ios.StoredKey{
		KeyID:      keyID,
		PrivateKey: privateKey,
		Attested:   attested,
		Counter:    counter,
		CreatedAt:  data.CreatedAt,
	}, nil
}

// MarkAttested flags the key as attested.
func (s *KeyStore) MarkAttested(ctx context.Context, keyID string) error {
	found, err := s.exists(ctx, s.dataKey(keyID))
	if err != nil {
		return err
	}
	if !found {
		return ios.ErrKeyNotFound
	}

	ok, err := s.client.SetNX(ctx, s.attestedKey(keyID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to mark key attested: %w", err)
	}
	if !ok {
		return ios.ErrKeyAlreadyAttested
	}
	return nil
}

// IncrementCounter atomically increments and returns the new counter value.
func (s *KeyStore) IncrementCounter(ctx context.Context, keyID string) (uint32, error) {
	found, err := s.exists(ctx, s.dataKey(keyID))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ios.ErrKeyNotFound
	}

	counterKey := s.counterKey(keyID)
	n, err := s.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	if s.ttl > 0 {
		if _, err := s.client.Expire(ctx, counterKey, s.ttl).Result(); err != nil {
			return 0, fmt.Errorf("failed to set counter expiry: %w", err)
		}
	}

	return uint32(n), nil
}

// Delete removes a key and its attestation state.
func (s *KeyStore) Delete(ctx context.Context, keyID string) error {
	n, err := s.client.Del(ctx, s.dataKey(keyID), s.attestedKey(keyID), s.counterKey(keyID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if n == 0 {
		return ios.ErrKeyNotFound
	}

	return nil
}

func (s *KeyStore) counter(ctx context.Context, keyID string) (uint32, error) {
	raw, err := s.client.Get(ctx, s.counterKey(keyID)).Result()
	if err != nil {
		if isNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load counter: %w", err)
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value: %w", err)
	}
	return uint32(n), nil
}

func (s *KeyStore) exists(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.Get(ctx, key).Result(); err != nil {
		if isNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return true, nil
}

func (s *KeyStore) dataKey(keyID string) string     { return s.keyPrefix + keyID }
func (s *KeyStore) attestedKey(keyID string) string { return s.keyPrefix + keyID + ":attested" }
func (s *KeyStore) counterKey(keyID string) string  { return s.keyPrefix + keyID + ":counter" }
