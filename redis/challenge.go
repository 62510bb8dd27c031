package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kacy/device-attestation-client/challenge"
)

// ChallengeStoreConfig holds configuration for the Redis challenge store.
type ChallengeStoreConfig struct {
	// Client is the Redis client (required).
	Client Cmdable

	// KeyPrefix is prepended to all Redis keys (default: "appattest:challenge:").
	KeyPrefix string
}

// ChallengeStore is a Redis-backed implementation of challenge.Store.
// Suitable for distributed deployments where multiple bridge instances
// need to share challenge state.
//
// Grants expire in Redis at their own deadline. Single use rests on DEL
// reporting how many keys it removed.
type ChallengeStore struct {
	client    Cmdable
	keyPrefix string
	now       func() time.Time
}

var _ challenge.Store = (*ChallengeStore)(nil)

// NewChallengeStore creates a new Redis-backed challenge store.
func NewChallengeStore(cfg ChallengeStoreConfig) (*ChallengeStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "appattest:challenge:"
	}

	return &ChallengeStore{
		client:    cfg.Client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

// Put stores grant until its deadline.
func (s *ChallengeStore) Put(ctx context.Context, c string, grant challenge.Grant) error {
	ttl := grant.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return challenge.ErrExpired
	}

	jsonData, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal grant: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+c, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// Lookup returns the grant stored for c.
func (s *ChallengeStore) Lookup(ctx context.Context, c string) (challenge.Grant, bool, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+c).Result()
	if err != nil {
		if isNil(err) {
			return challenge.Grant{}, false, nil
		}
		return challenge.Grant{}, false, fmt.Errorf("failed to get challenge: %w", err)
	}

	var grant challenge.Grant
	if err := json.Unmarshal([]byte(data), &grant); err != nil {
		return challenge.Grant{}, false, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return grant, true, nil
}

// Delete consumes c. Only the caller whose DEL removed the key gets true.
func (s *ChallengeStore) Delete(ctx context.Context, c string) (bool, error) {
	n, err := s.client.Del(ctx, s.keyPrefix+c).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete challenge: %w", err)
	}
	return n > 0, nil
}
