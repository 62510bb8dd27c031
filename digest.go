package attestation

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// ClientDataHash returns the SHA-256 digest of the UTF-8 bytes of input.
// This is the value bound into hardware attestations and assertions.
func ClientDataHash(input string) ([]byte, error) {
	if !utf8.ValidString(input) {
		return nil, ErrInvalidInput
	}
	sum := sha256.Sum256([]byte(input))
	return sum[:], nil
}

// RequestHash returns ClientDataHash encoded as unpadded base64url, the
// form integrity-token services expect.
func RequestHash(input string) (string, error) {
	digest, err := ClientDataHash(input)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(digest), nil
}

// Presence decides when a required string input counts as missing.
type Presence int

const (
	// RejectBlank treats empty and whitespace-only input as missing.
	RejectBlank Presence = iota

	// RejectEmpty treats only the empty string as missing. App Attest
	// hands whitespace to the native service untouched.
	RejectEmpty
)

// PresenceFor returns the input rule of platform.
func PresenceFor(platform Platform) Presence {
	if platform == PlatformIOS {
		return RejectEmpty
	}
	return RejectBlank
}

// Missing reports whether s counts as not supplied.
func (p Presence) Missing(s string) bool {
	if p == RejectEmpty {
		return s == ""
	}
	return isBlank(s)
}

// RequireKeyID checks that a key handle was supplied.
func (p Presence) RequireKeyID(keyID string) error {
	if p.Missing(keyID) {
		return ErrMissingKeyID
	}
	return nil
}

// ValidateAttestation checks the inputs of an attestation before any
// native service is contacted.
func (p Presence) ValidateAttestation(opts CreateAttestationOptions) error {
	if err := p.RequireKeyID(opts.KeyID); err != nil {
		return err
	}
	if p.Missing(opts.Challenge) {
		return ErrMissingChallenge
	}
	return nil
}

// ValidateAssertion checks the inputs of an assertion before any native
// service is contacted.
func (p Presence) ValidateAssertion(opts CreateAssertionOptions) error {
	if err := p.RequireKeyID(opts.KeyID); err != nil {
		return err
	}
	if p.Missing(opts.Payload) {
		return ErrMissingPayload
	}
	return nil
}

// RequireKeyID is RejectBlank.RequireKeyID.
func RequireKeyID(keyID string) error {
	return RejectBlank.RequireKeyID(keyID)
}

// ValidateAttestation is RejectBlank.ValidateAttestation.
func ValidateAttestation(opts CreateAttestationOptions) error {
	return RejectBlank.ValidateAttestation(opts)
}

// ValidateAssertion is RejectBlank.ValidateAssertion.
func ValidateAssertion(opts CreateAssertionOptions) error {
	return RejectBlank.ValidateAssertion(opts)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
