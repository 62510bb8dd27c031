package attestation

import (
	"errors"
	"fmt"
)

// Error kinds returned by the attestation package.
var (
	ErrNotSupported              = errors.New("attestation is not supported on this device")
	ErrMissingKeyID              = errors.New("keyId is required")
	ErrMissingChallenge          = errors.New("challenge is required")
	ErrMissingPayload            = errors.New("payload is required")
	ErrMissingCloudProjectNumber = errors.New("cloudProjectNumber is required")
	ErrInvalidInput              = errors.New("invalid input format")
	ErrMissingGeneratedValue     = errors.New("native API returned no value")
	ErrKeyGenerationFailed       = errors.New("key generation failed")
	ErrAttestationFailed         = errors.New("attestation failed")
	ErrAssertionFailed           = errors.New("assertion failed")
	ErrAttestationUnavailable    = errors.New("native attestation is not available on web, use iOS App Attest or Android Play Integrity")
)

var kinds = []error{
	ErrNotSupported,
	ErrMissingKeyID,
	ErrMissingChallenge,
	ErrMissingPayload,
	ErrMissingCloudProjectNumber,
	ErrInvalidInput,
	ErrMissingGeneratedValue,
	ErrKeyGenerationFailed,
	ErrAttestationFailed,
	ErrAssertionFailed,
	ErrAttestationUnavailable,
}

// Error wraps a native failure. Both Kind and Cause match errors.Is.
type Error struct {
	Kind  error
	Cause error
}

// NewError returns an *Error of the given kind wrapping cause.
func NewError(kind, cause error) error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// KindOf returns the error kind sentinel matched by err, or nil when err
// is not one of the package kinds.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a short label for the kind of err, used in metrics.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrNotSupported:
		return "not_supported"
	case ErrMissingKeyID:
		return "missing_key_id"
	case ErrMissingChallenge:
		return "missing_challenge"
	case ErrMissingPayload:
		return "missing_payload"
	case ErrMissingCloudProjectNumber:
		return "missing_cloud_project_number"
	case ErrInvalidInput:
		return "invalid_input"
	case ErrMissingGeneratedValue:
		return "missing_generated_value"
	case ErrKeyGenerationFailed:
		return "key_generation_failed"
	case ErrAttestationFailed:
		return "attestation_failed"
	case ErrAssertionFailed:
		return "assertion_failed"
	case ErrAttestationUnavailable:
		return "attestation_unavailable"
	default:
		return "unknown"
	}
}
