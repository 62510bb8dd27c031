package attestation

import (
	"context"
	"errors"
	"fmt"

	"github.com/kacy/device-attestation-client/storage"
)

// DefaultStorageKey is the storage key of the single persisted key handle.
const DefaultStorageKey = "CapgoAppAttestKeyId"

// KeySlot holds the one key handle persisted per app installation.
type KeySlot struct {
	store    storage.Store
	key      string
	presence Presence
}

// NewKeySlot returns a slot backed by store. An empty key selects
// DefaultStorageKey; a nil store selects a process-lifetime memory store.
func NewKeySlot(store storage.Store, key string) *KeySlot {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	if key == "" {
		key = DefaultStorageKey
	}
	return &KeySlot{store: store, key: key}
}

// WithPresence sets the rule Store applies to handles (default: RejectBlank).
func (s *KeySlot) WithPresence(p Presence) *KeySlot {
	s.presence = p
	return s
}

// Key returns the storage key of the slot.
func (s *KeySlot) Key() string {
	return s.key
}

// Store persists keyID, replacing any previous handle.
func (s *KeySlot) Store(ctx context.Context, keyID string) error {
	if err := s.presence.RequireKeyID(keyID); err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.key, keyID); err != nil {
		return fmt.Errorf("failed to store key id: %w", err)
	}
	return nil
}

// Load returns the persisted handle and whether one is present.
func (s *KeySlot) Load(ctx context.Context) (string, bool, error) {
	keyID, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load key id: %w", err)
	}
	return keyID, true, nil
}

// Clear removes the persisted handle. Clearing an empty slot succeeds.
func (s *KeySlot) Clear(ctx context.Context) error {
	if err := s.store.Remove(ctx, s.key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to clear key id: %w", err)
	}
	return nil
}
