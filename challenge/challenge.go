// Package challenge issues single-use attestation challenges on behalf of
// a relying party.
//
// A challenge is redeemed at most once, by the key handle it was issued
// for, and only before it expires.
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownChallenge = errors.New("challenge was not issued or was already redeemed")
	ErrExpired          = errors.New("challenge expired")
	ErrKeyMismatch      = errors.New("challenge was issued for a different key")
	ErrClosed           = errors.New("challenge store is closed")
)

// Grant is what a Store keeps per outstanding challenge.
type Grant struct {
	KeyID     string    `json:"key_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store keeps outstanding challenges.
type Store interface {
	// Put records grant under challenge.
	Put(ctx context.Context, challenge string, grant Grant) error

	// Lookup returns the grant for challenge, if present.
	Lookup(ctx context.Context, challenge string) (Grant, bool, error)

	// Delete removes challenge and reports whether this call removed it.
	// Exactly one of several concurrent Deletes of the same challenge
	// reports true.
	Delete(ctx context.Context, challenge string) (bool, error)
}

// Config holds configuration for the issuer.
type Config struct {
	// Store keeps outstanding challenges (default: a MemoryStore owned by the issuer).
	Store Store

	// TTL is how long challenges remain redeemable (default: 5 minutes).
	TTL time.Duration

	// CleanupInterval is how often the default MemoryStore drops expired
	// challenges (default: 1 minute).
	CleanupInterval time.Duration

	// Size is the number of random bytes in a challenge (default: 32).
	Size int
}

// Issuer hands out challenges and redeems them.
type Issuer struct {
	store Store
	owned *MemoryStore
	ttl   time.Duration
	size  int
	now   func() time.Time
}

// NewIssuer creates an issuer over cfg.Store.
func NewIssuer(cfg Config) *Issuer {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	size := cfg.Size
	if size == 0 {
		size = 32
	}

	iss := &Issuer{
		store: cfg.Store,
		ttl:   ttl,
		size:  size,
		now:   time.Now,
	}
	if iss.store == nil {
		iss.owned = NewMemoryStore(cfg.CleanupInterval)
		iss.store = iss.owned
	}
	return iss
}

// Issue returns a fresh base64url challenge bound to keyID.
func (i *Issuer) Issue(ctx context.Context, keyID string) (string, error) {
	b := make([]byte, i.size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	challenge := base64.RawURLEncoding.EncodeToString(b)

	if err := i.store.Put(ctx, challenge, Grant{KeyID: keyID, ExpiresAt: i.now().Add(i.ttl)}); err != nil {
		return "", err
	}
	return challenge, nil
}

// Redeem consumes challenge for keyID. A challenge presented with the
// wrong key stays redeemable by its own key.
func (i *Issuer) Redeem(ctx context.Context, keyID, challenge string) error {
	g, ok, err := i.store.Lookup(ctx, challenge)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownChallenge
	}
	if i.now().After(g.ExpiresAt) {
		if _, err := i.store.Delete(ctx, challenge); err != nil {
			return err
		}
		return ErrExpired
	}
	if g.KeyID != keyID {
		return ErrKeyMismatch
	}

	removed, err := i.store.Delete(ctx, challenge)
	if err != nil {
		return err
	}
	if !removed {
		// Redeemed concurrently.
		return ErrUnknownChallenge
	}
	return nil
}

// Close releases the default store. Stores passed in Config are left to
// the caller.
func (i *Issuer) Close() {
	if i.owned != nil {
		i.owned.Close()
	}
}
