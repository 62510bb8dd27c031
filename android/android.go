// Package android provides the Play Integrity backend.
//
// The backend uses the standard request flow: a token provider is prepared
// once per cloud project number and every attestation or assertion
// requests a token bound to the unpadded base64url SHA-256 of its input.
//
// See: https://developer.android.com/google/play/integrity/standard
package android

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	attestation "github.com/kacy/device-attestation-client"
	"github.com/kacy/device-attestation-client/internal/completion"
	"github.com/kacy/device-attestation-client/storage"
)

// DefaultKeyID is the handle returned by GenerateKey. Play Integrity has no
// per-key material, so the handle names a prepared token provider.
const DefaultKeyID = "android-standard-integrity"

// ErrUnknownKeyID is returned when no token provider was prepared for a handle.
var ErrUnknownKeyID = errors.New("unknown keyId: call GenerateKey or StoreKeyID first to prepare a Play Integrity provider")

// IntegrityManager is the native StandardIntegrityManager.
type IntegrityManager interface {
	PrepareIntegrityToken(cloudProjectNumber int64, completion func(provider TokenProvider, err error))
}

// TokenProvider is a prepared StandardIntegrityTokenProvider.
type TokenProvider interface {
	Request(requestHash string, completion func(token string, err error))
}

// Config holds configuration for the Android backend.
type Config struct {
	// Manager is the native integrity manager (required).
	Manager IntegrityManager

	// Supported reports Play Store availability (default: always true).
	Supported func() bool

	// Store persists the key handle (default: in-memory store).
	Store storage.Store

	// StorageKey overrides attestation.DefaultStorageKey.
	StorageKey string

	// Logger receives provider and duplicate completion logs (default: logrus standard logger).
	Logger logrus.FieldLogger
}

// Backend is the Play Integrity implementation of attestation.Backend.
type Backend struct {
	manager   IntegrityManager
	supported func() bool
	slot      *attestation.KeySlot
	log       logrus.FieldLogger

	mu        sync.Mutex
	providers map[string]TokenProvider
}

var _ attestation.Backend = (*Backend)(nil)

// New creates a new Android backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Manager == nil {
		return nil, errors.New("integrity manager is required")
	}

	supported := cfg.Supported
	if supported == nil {
		supported = func() bool { return true }
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Backend{
		manager:   cfg.Manager,
		supported: supported,
		slot:      attestation.NewKeySlot(cfg.Store, cfg.StorageKey),
		log:       logger.WithField("platform", attestation.PlatformAndroid),
		providers: make(map[string]TokenProvider),
	}, nil
}

// IsSupported reports whether Play Integrity is available.
func (b *Backend) IsSupported(ctx context.Context) bool {
	return b.supported()
}

// GenerateKey prepares the default token provider and returns DefaultKeyID.
func (b *Backend) GenerateKey(ctx context.Context, opts attestation.PrepareOptions) (*attestation.NativeKey, error) {
	if !b.supported() {
		return nil, attestation.ErrNotSupported
	}
	if _, err := b.prepare(ctx, DefaultKeyID, opts.CloudProjectNumber, attestation.ErrKeyGenerationFailed); err != nil {
		return nil, err
	}
	return &attestation.NativeKey{KeyID: DefaultKeyID}, nil
}

// AttestKey requests an integrity token bound to opts.Challenge.
func (b *Backend) AttestKey(ctx context.Context, opts attestation.CreateAttestationOptions) (*attestation.NativeAttestation, error) {
	if err := attestation.ValidateAttestation(opts); err != nil {
		return nil, err
	}

	token, err := b.requestToken(ctx, opts.KeyID, opts.Challenge, opts.CloudProjectNumber, attestation.ErrAttestationFailed)
	if err != nil {
		return nil, err
	}
	return &attestation.NativeAttestation{
		Attestation: token,
		KeyID:       opts.KeyID,
		Challenge:   opts.Challenge,
	}, nil
}

// GenerateAssertion requests an integrity token bound to opts.Payload.
func (b *Backend) GenerateAssertion(ctx context.Context, opts attestation.CreateAssertionOptions) (*attestation.NativeAssertion, error) {
	if err := attestation.ValidateAssertion(opts); err != nil {
		return nil, err
	}

	token, err := b.requestToken(ctx, opts.KeyID, opts.Payload, opts.CloudProjectNumber, attestation.ErrAssertionFailed)
	if err != nil {
		return nil, err
	}
	return &attestation.NativeAssertion{Assertion: token, KeyID: opts.KeyID}, nil
}

// StoreKeyID prepares a token provider for the handle and persists it.
func (b *Backend) StoreKeyID(ctx context.Context, opts attestation.StoreKeyIDOptions) error {
	if err := attestation.RequireKeyID(opts.KeyID); err != nil {
		return err
	}
	if _, err := b.prepare(ctx, opts.KeyID, opts.CloudProjectNumber, attestation.ErrKeyGenerationFailed); err != nil {
		return err
	}
	return b.slot.Store(ctx, opts.KeyID)
}

// StoredKeyID returns the persisted key handle.
func (b *Backend) StoredKeyID(ctx context.Context) (string, bool, error) {
	return b.slot.Load(ctx)
}

// ClearStoredKeyID drops every prepared provider and the persisted handle.
func (b *Backend) ClearStoredKeyID(ctx context.Context) error {
	b.mu.Lock()
	b.providers = make(map[string]TokenProvider)
	b.mu.Unlock()

	return b.slot.Clear(ctx)
}

// Prepared reports whether a token provider is ready for keyID.
func (b *Backend) Prepared(keyID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.providers[keyID]
	return ok
}

func (b *Backend) requestToken(ctx context.Context, keyID, input, projectNumber string, kind error) (string, error) {
	if !b.supported() {
		return "", attestation.ErrNotSupported
	}

	requestHash, err := attestation.RequestHash(input)
	if err != nil {
		return "", err
	}

	provider, err := b.provider(ctx, keyID, projectNumber, kind)
	if err != nil {
		return "", err
	}

	token, err := completion.Await(ctx, func(done func(string, error)) {
		provider.Request(requestHash, done)
	}, b.duplicate("request_token"))
	if err != nil {
		return "", attestation.NewError(kind, err)
	}
	if token == "" {
		return "", attestation.ErrMissingGeneratedValue
	}
	return token, nil
}

// provider returns the prepared provider for keyID. The default handle and
// the persisted handle are prepared on first use; any other handle must
// have been prepared explicitly.
func (b *Backend) provider(ctx context.Context, keyID, projectNumber string, kind error) (TokenProvider, error) {
	b.mu.Lock()
	p, ok := b.providers[keyID]
	b.mu.Unlock()
	if ok {
		return p, nil
	}

	if keyID != DefaultKeyID {
		stored, found, err := b.slot.Load(ctx)
		if err != nil {
			return nil, err
		}
		if !found || stored != keyID {
			return nil, attestation.NewError(kind, ErrUnknownKeyID)
		}
	}

	return b.prepare(ctx, keyID, projectNumber, kind)
}

func (b *Backend) prepare(ctx context.Context, keyID, projectNumber string, kind error) (TokenProvider, error) {
	number, err := ParseCloudProjectNumber(projectNumber)
	if err != nil {
		return nil, err
	}

	provider, err := completion.Await(ctx, func(done func(TokenProvider, error)) {
		b.manager.PrepareIntegrityToken(number, done)
	}, b.duplicate("prepare_integrity_token"))
	if err != nil {
		return nil, attestation.NewError(kind, err)
	}
	if provider == nil {
		return nil, attestation.ErrMissingGeneratedValue
	}

	b.mu.Lock()
	b.providers[keyID] = provider
	b.mu.Unlock()

	b.log.WithField("key_id", keyID).Debug("prepared integrity token provider")
	return provider, nil
}

func (b *Backend) duplicate(call string) func() {
	return func() {
		b.log.WithField("call", call).Warn("ignoring duplicate native completion")
	}
}

// ParseCloudProjectNumber parses a Google Cloud project number.
func ParseCloudProjectNumber(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w on Android: set cloud_project_number in configuration or pass it per call", attestation.ErrMissingCloudProjectNumber)
	}
	number, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cloudProjectNumber must be a valid integer string", attestation.ErrInvalidInput)
	}
	return number, nil
}
