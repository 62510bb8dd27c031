// Package web provides the fallback backend for runtimes without a
// hardware trust root.
//
// Key handles are random UUIDs and are persisted in local storage, but
// attestations and assertions always fail with
// attestation.ErrAttestationUnavailable.
package web

import (
	"context"

	"github.com/google/uuid"

	attestation "github.com/kacy/device-attestation-client"
	"github.com/kacy/device-attestation-client/storage"
)

// Config holds configuration for the web backend.
type Config struct {
	// Store persists the key handle (default: in-memory store).
	Store storage.Store

	// StorageKey overrides attestation.DefaultStorageKey.
	StorageKey string
}

// Backend is the web fallback implementation of attestation.Backend.
type Backend struct {
	slot *attestation.KeySlot
}

var _ attestation.Backend = (*Backend)(nil)

// New creates a new web backend.
func New(cfg Config) *Backend {
	return &Backend{slot: attestation.NewKeySlot(cfg.Store, cfg.StorageKey)}
}

// IsSupported always reports false.
func (b *Backend) IsSupported(ctx context.Context) bool {
	return false
}

// GenerateKey returns a freshly generated random handle on every call.
func (b *Backend) GenerateKey(ctx context.Context, opts attestation.PrepareOptions) (*attestation.NativeKey, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, attestation.NewError(attestation.ErrKeyGenerationFailed, err)
	}
	return &attestation.NativeKey{KeyID: id.String()}, nil
}

// AttestKey always fails.
func (b *Backend) AttestKey(ctx context.Context, opts attestation.CreateAttestationOptions) (*attestation.NativeAttestation, error) {
	return nil, attestation.ErrAttestationUnavailable
}

// GenerateAssertion always fails.
func (b *Backend) GenerateAssertion(ctx context.Context, opts attestation.CreateAssertionOptions) (*attestation.NativeAssertion, error) {
	return nil, attestation.ErrAttestationUnavailable
}

// StoreKeyID persists the handle in local storage.
func (b *Backend) StoreKeyID(ctx context.Context, opts attestation.StoreKeyIDOptions) error {
	return b.slot.Store(ctx, opts.KeyID)
}

// StoredKeyID returns the handle from local storage.
func (b *Backend) StoredKeyID(ctx context.Context) (string, bool, error) {
	return b.slot.Load(ctx)
}

// ClearStoredKeyID removes the handle from local storage.
func (b *Backend) ClearStoredKeyID(ctx context.Context) error {
	return b.slot.Clear(ctx)
}
