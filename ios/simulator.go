package ios

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// Simulator errors, reported through the completion like DCError codes.
var (
	ErrKeyNotAttested        = errors.New("key has not been attested")
	ErrInvalidClientDataHash = errors.New("client data hash must be 32 bytes")
)

// SimulatorConfig holds configuration for the App Attest simulator.
type SimulatorConfig struct {
	// TeamID is the Apple Developer Team ID (required).
	TeamID string

	// BundleID is the app bundle identifier (required).
	BundleID string

	// Production selects the production AAGUID (default: development).
	Production bool

	// Keys holds the generated keys (default: in-memory store).
	Keys KeyStore

	// Authority issues credential certificates (default: a fresh authority).
	Authority *Authority

	// Unsupported makes IsSupported report false, like a device without
	// a Secure Enclave.
	Unsupported bool
}

// Simulator is a software Service that produces App Attest shaped
// attestation and assertion objects signed by a development Authority.
// Completions are invoked on their own goroutine.
type Simulator struct {
	appID      string
	production bool
	keys       KeyStore
	authority  *Authority
	supported  bool
}

var _ Service = (*Simulator)(nil)

// NewSimulator creates a new App Attest simulator.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.TeamID == "" {
		return nil, errors.New("team ID is required")
	}
	if cfg.BundleID == "" {
		return nil, errors.New("bundle ID is required")
	}

	keys := cfg.Keys
	if keys == nil {
		keys = NewMemoryKeyStore()
	}

	authority := cfg.Authority
	if authority == nil {
		var err error
		authority, err = NewAuthority()
		if err != nil {
			return nil, err
		}
	}

	return &Simulator{
		appID:      cfg.TeamID + "." + cfg.BundleID,
		production: cfg.Production,
		keys:       keys,
		authority:  authority,
		supported:  !cfg.Unsupported,
	}, nil
}

// AppID returns the "<team>.<bundle>" identifier hashed into authenticator data.
func (s *Simulator) AppID() string {
	return s.appID
}

// Authority returns the certificate authority that signs attestations.
func (s *Simulator) Authority() *Authority {
	return s.authority
}

// IsSupported reports whether the simulated device supports App Attest.
func (s *Simulator) IsSupported() bool {
	return s.supported
}

// GenerateKey creates a new P-256 key pair and reports its key ID.
func (s *Simulator) GenerateKey(completion func(keyID string, err error)) {
	go func() {
		completion(s.generateKey(context.Background()))
	}()
}

// AttestKey attests keyID with clientDataHash. A key can be attested once.
func (s *Simulator) AttestKey(keyID string, clientDataHash []byte, completion func(attestationObject []byte, err error)) {
	go func() {
		completion(s.attestKey(context.Background(), keyID, clientDataHash))
	}()
}

// GenerateAssertion signs clientDataHash with the attested key keyID.
func (s *Simulator) GenerateAssertion(keyID string, clientDataHash []byte, completion func(assertionObject []byte, err error)) {
	go func() {
		completion(s.generateAssertion(context.Background(), keyID, clientDataHash))
	}()
}

func (s *Simulator) generateKey(ctx context.Context) (string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}

	keyID, err := KeyIDFor(&priv.PublicKey)
	if err != nil {
		return "", err
	}

	if err := s.keys.Store(ctx, keyID, &StoredKey{PrivateKey: priv}); err != nil {
		return "", fmt.Errorf("failed to store key: %w", err)
	}
	return keyID, nil
}

func (s *Simulator) attestKey(ctx context.Context, keyID string, clientDataHash []byte) ([]byte, error) {
	if len(clientDataHash) != sha256.Size {
		return nil, ErrInvalidClientDataHash
	}

	key, err := s.keys.Load(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.Attested {
		return nil, ErrKeyAlreadyAttested
	}

	credentialID, err := base64.StdEncoding.DecodeString(keyID)
	if err != nil {
		return nil, fmt.Errorf("invalid key ID: %w", err)
	}

	authData, err := attestationAuthData(s.appID, s.production, credentialID, &key.PrivateKey.PublicKey)
	if err != nil {
		return nil, err
	}

	x5c, err := s.authority.issueChain(&key.PrivateKey.PublicKey, Nonce(authData, clientDataHash), time.Now())
	if err != nil {
		return nil, err
	}

	obj, err := encMode.Marshal(AttestationObject{
		Format:       AttestationFormat,
		AttStatement: AttStatement{X5c: x5c},
		AuthData:     authData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode attestation object: %w", err)
	}

	// Only a fully built attestation consumes the key's single attestation.
	if err := s.keys.MarkAttested(ctx, keyID); err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *Simulator) generateAssertion(ctx context.Context, keyID string, clientDataHash []byte) ([]byte, error) {
	if len(clientDataHash) != sha256.Size {
		return nil, ErrInvalidClientDataHash
	}

	key, err := s.keys.Load(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if !key.Attested {
		return nil, ErrKeyNotAttested
	}

	counter, err := s.keys.IncrementCounter(ctx, keyID)
	if err != nil {
		return nil, err
	}

	authData := assertionAuthData(s.appID, counter)
	signature, err := ecdsa.SignASN1(rand.Reader, key.PrivateKey, Nonce(authData, clientDataHash))
	if err != nil {
		return nil, fmt.Errorf("failed to sign assertion: %w", err)
	}

	obj, err := encMode.Marshal(AssertionObject{
		Signature:         signature,
		AuthenticatorData: authData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode assertion object: %w", err)
	}
	return obj, nil
}
