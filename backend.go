package attestation

import "context"

// Backend is implemented by each platform's native bridge (ios, android, web).
//
// Results use the native field names of the underlying services. Client
// normalizes them into the unified result shapes; nothing outside the
// Backend implementations and Client should depend on these types.
type Backend interface {
	// IsSupported reports whether native attestation is available.
	IsSupported(ctx context.Context) bool

	// GenerateKey creates a new key handle. It does not persist it.
	GenerateKey(ctx context.Context, opts PrepareOptions) (*NativeKey, error)

	// AttestKey binds opts.Challenge to opts.KeyID.
	AttestKey(ctx context.Context, opts CreateAttestationOptions) (*NativeAttestation, error)

	// GenerateAssertion binds opts.Payload to opts.KeyID.
	GenerateAssertion(ctx context.Context, opts CreateAssertionOptions) (*NativeAssertion, error)

	// StoreKeyID persists the key handle.
	StoreKeyID(ctx context.Context, opts StoreKeyIDOptions) error

	// StoredKeyID returns the persisted key handle and whether one exists.
	StoredKeyID(ctx context.Context) (string, bool, error)

	// ClearStoredKeyID removes the persisted key handle.
	ClearStoredKeyID(ctx context.Context) error
}

// NativeKey is the native key generation result.
type NativeKey struct {
	KeyID string
}

// NativeAttestation is the native attestation result. KeyID and Challenge
// may be empty when the native layer does not echo them.
type NativeAttestation struct {
	Attestation string
	KeyID       string
	Challenge   string
}

// NativeAssertion is the native assertion result.
type NativeAssertion struct {
	Assertion string
	KeyID     string
}
