package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kacy/device-attestation-client/storage"
)

// StoreConfig holds configuration for the Redis storage backend.
type StoreConfig struct {
	// Client is the Redis client (required).
	Client Cmdable

	// KeyPrefix is prepended to all Redis keys (default: "appattest:store:").
	KeyPrefix string

	// TTL is how long values are kept (default: 0 = no expiration).
	TTL time.Duration
}

// Store is a Redis-backed implementation of storage.Store. Every operation
// is a single Redis command, so concurrent writers never observe a torn value.
type Store struct {
	client    Cmdable
	keyPrefix string
	ttl       time.Duration
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new Redis-backed store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "appattest:store:"
	}

	return &Store{
		client:    cfg.Client,
		keyPrefix: keyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Get returns the value under key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if err != nil {
		if isNil(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.client.Del(ctx, s.keyPrefix+key).Result(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
