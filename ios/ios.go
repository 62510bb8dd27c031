// Package ios provides the Apple App Attest backend.
//
// The backend talks to a Service, the callback-style surface of
// DCAppAttestService. On a device that is the system framework; in this
// module the Simulator implements it in software with a development
// certificate authority.
//
// See: https://developer.apple.com/documentation/devicecheck/establishing_your_app_s_integrity
package ios

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/sirupsen/logrus"

	attestation "github.com/kacy/device-attestation-client"
	"github.com/kacy/device-attestation-client/internal/completion"
	"github.com/kacy/device-attestation-client/storage"
)

// Service is the native App Attest service. Each method reports its
// outcome by calling completion, possibly from another goroutine.
type Service interface {
	IsSupported() bool
	GenerateKey(completion func(keyID string, err error))
	AttestKey(keyID string, clientDataHash []byte, completion func(attestationObject []byte, err error))
	GenerateAssertion(keyID string, clientDataHash []byte, completion func(assertionObject []byte, err error))
}

// Config holds configuration for the iOS backend.
type Config struct {
	// Service is the native App Attest service (required).
	Service Service

	// Store persists the key handle, like UserDefaults (default: in-memory store).
	Store storage.Store

	// StorageKey overrides attestation.DefaultStorageKey.
	StorageKey string

	// Logger receives duplicate completion warnings (default: logrus standard logger).
	Logger logrus.FieldLogger
}

// Backend is the App Attest implementation of attestation.Backend.
type Backend struct {
	service Service
	slot    *attestation.KeySlot
	log     logrus.FieldLogger
}

var _ attestation.Backend = (*Backend)(nil)

// New creates a new iOS backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Service == nil {
		return nil, errors.New("app attest service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Backend{
		service: cfg.Service,
		slot:    attestation.NewKeySlot(cfg.Store, cfg.StorageKey).WithPresence(attestation.RejectEmpty),
		log:     logger.WithField("platform", attestation.PlatformIOS),
	}, nil
}

// IsSupported reports the service's own capability check.
func (b *Backend) IsSupported(ctx context.Context) bool {
	return b.service.IsSupported()
}

// GenerateKey creates a new hardware key. cloudProjectNumber is ignored.
func (b *Backend) GenerateKey(ctx context.Context, opts attestation.PrepareOptions) (*attestation.NativeKey, error) {
	if !b.service.IsSupported() {
		return nil, attestation.ErrNotSupported
	}

	keyID, err := completion.Await(ctx, func(done func(string, error)) {
		b.service.GenerateKey(done)
	}, b.duplicate("generate_key"))
	if err != nil {
		return nil, attestation.NewError(attestation.ErrKeyGenerationFailed, err)
	}
	if keyID == "" {
		return nil, attestation.ErrMissingGeneratedValue
	}
	return &attestation.NativeKey{KeyID: keyID}, nil
}

// AttestKey attests opts.KeyID over SHA-256(opts.Challenge). The token is
// the base64 attestation object.
func (b *Backend) AttestKey(ctx context.Context, opts attestation.CreateAttestationOptions) (*attestation.NativeAttestation, error) {
	if !b.service.IsSupported() {
		return nil, attestation.ErrNotSupported
	}
	if err := attestation.RejectEmpty.ValidateAttestation(opts); err != nil {
		return nil, err
	}
	clientDataHash, err := attestation.ClientDataHash(opts.Challenge)
	if err != nil {
		return nil, err
	}

	obj, err := completion.Await(ctx, func(done func([]byte, error)) {
		b.service.AttestKey(opts.KeyID, clientDataHash, done)
	}, b.duplicate("attest_key"))
	if err != nil {
		return nil, attestation.NewError(attestation.ErrAttestationFailed, err)
	}
	if len(obj) == 0 {
		return nil, attestation.ErrMissingGeneratedValue
	}

	return &attestation.NativeAttestation{
		Attestation: base64.StdEncoding.EncodeToString(obj),
		KeyID:       opts.KeyID,
		Challenge:   opts.Challenge,
	}, nil
}

// GenerateAssertion signs SHA-256(opts.Payload) with opts.KeyID. The token
// is the base64 assertion object.
func (b *Backend) GenerateAssertion(ctx context.Context, opts attestation.CreateAssertionOptions) (*attestation.NativeAssertion, error) {
	if !b.service.IsSupported() {
		return nil, attestation.ErrNotSupported
	}
	if err := attestation.RejectEmpty.ValidateAssertion(opts); err != nil {
		return nil, err
	}
	clientDataHash, err := attestation.ClientDataHash(opts.Payload)
	if err != nil {
		return nil, err
	}

	obj, err := completion.Await(ctx, func(done func([]byte, error)) {
		b.service.GenerateAssertion(opts.KeyID, clientDataHash, done)
	}, b.duplicate("generate_assertion"))
	if err != nil {
		return nil, attestation.NewError(attestation.ErrAssertionFailed, err)
	}
	if len(obj) == 0 {
		return nil, attestation.ErrMissingGeneratedValue
	}

	return &attestation.NativeAssertion{
		Assertion: base64.StdEncoding.EncodeToString(obj),
		KeyID:     opts.KeyID,
	}, nil
}

// StoreKeyID persists the key handle.
func (b *Backend) StoreKeyID(ctx context.Context, opts attestation.StoreKeyIDOptions) error {
	return b.slot.Store(ctx, opts.KeyID)
}

// StoredKeyID returns the persisted key handle.
func (b *Backend) StoredKeyID(ctx context.Context) (string, bool, error) {
	return b.slot.Load(ctx)
}

// ClearStoredKeyID removes the persisted key handle.
func (b *Backend) ClearStoredKeyID(ctx context.Context) error {
	return b.slot.Clear(ctx)
}

func (b *Backend) duplicate(call string) func() {
	return func() {
		b.log.WithField("call", call).Warn("ignoring duplicate native completion")
	}
}
