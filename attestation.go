package attestation

import (
	"context"
	"runtime"
)

// Platform represents the runtime platform an operation executes on.
type Platform string

// Platform constants for iOS, Android and the web fallback.
const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// Format identifies the attestation artifact a platform produces.
type Format string

// Format constants, one per platform.
const (
	FormatAppleAppAttest        Format = "apple-app-attest"
	FormatPlayIntegrityStandard Format = "google-play-integrity-standard"
	FormatWebFallback           Format = "web-fallback"
)

// FormatFor returns the attestation format for a platform.
// Anything that is not iOS or Android is treated as the web fallback.
func FormatFor(p Platform) Format {
	switch p {
	case PlatformIOS:
		return FormatAppleAppAttest
	case PlatformAndroid:
		return FormatPlayIntegrityStandard
	default:
		return FormatWebFallback
	}
}

// ParsePlatform normalizes a platform name. Unknown names map to the web fallback.
func ParsePlatform(name string) Platform {
	switch Platform(name) {
	case PlatformIOS, PlatformAndroid:
		return Platform(name)
	default:
		return PlatformWeb
	}
}

// DetectPlatform resolves the platform of the running process.
func DetectPlatform() Platform {
	return ParsePlatform(runtime.GOOS)
}

// PlatformContext tags every result with the platform that produced it.
type PlatformContext struct {
	Platform Platform `json:"platform"`
	Format   Format   `json:"format"`
}

func contextFor(p Platform) PlatformContext {
	return PlatformContext{Platform: p, Format: FormatFor(p)}
}

// IsSupportedResult is returned by the capability check.
type IsSupportedResult struct {
	IsSupported bool `json:"isSupported"`
	PlatformContext
}

// PrepareOptions configures key preparation.
type PrepareOptions struct {
	// CloudProjectNumber is only consumed by integrity-token platforms.
	CloudProjectNumber string `json:"cloudProjectNumber,omitempty"`
}

// PrepareResult carries the key handle produced by Prepare.
type PrepareResult struct {
	KeyID string `json:"keyId"`
	PlatformContext
}

// CreateAttestationOptions binds a server challenge to a key handle.
type CreateAttestationOptions struct {
	KeyID              string `json:"keyId"`
	Challenge          string `json:"challenge"`
	CloudProjectNumber string `json:"cloudProjectNumber,omitempty"`
}

// CreateAttestationResult is the unified attestation result.
type CreateAttestationResult struct {
	// Token is the base64 attestation object on iOS and the integrity token on Android.
	Token     string `json:"token"`
	KeyID     string `json:"keyId"`
	Challenge string `json:"challenge"`
	PlatformContext
}

// CreateAssertionOptions binds a request payload to a key handle.
type CreateAssertionOptions struct {
	KeyID              string `json:"keyId"`
	Payload            string `json:"payload"`
	CloudProjectNumber string `json:"cloudProjectNumber,omitempty"`
}

// CreateAssertionResult is the unified assertion result.
type CreateAssertionResult struct {
	Token   string `json:"token"`
	KeyID   string `json:"keyId"`
	Payload string `json:"payload"`
	PlatformContext
}

// StoreKeyIDOptions persists a key handle.
type StoreKeyIDOptions struct {
	KeyID              string `json:"keyId"`
	CloudProjectNumber string `json:"cloudProjectNumber,omitempty"`
}

// StoredKeyIDResult reports the persisted key handle, if any.
type StoredKeyIDResult struct {
	KeyID        *string `json:"keyId"`
	HasStoredKey bool    `json:"hasStoredKey"`
}

// OperationResult is returned by operations that only report success.
type OperationResult struct {
	Success bool `json:"success"`
}

// Legacy option and result shapes.
type (
	GenerateKeyOptions       = PrepareOptions
	GenerateKeyResult        = PrepareResult
	AttestKeyOptions         = CreateAttestationOptions
	GenerateAssertionOptions = CreateAssertionOptions
)

// AttestKeyResult is the legacy attestation result. Attestation always equals Token.
type AttestKeyResult struct {
	CreateAttestationResult
	Attestation string `json:"attestation"`
}

// GenerateAssertionResult is the legacy assertion result. Assertion always equals Token.
type GenerateAssertionResult struct {
	CreateAssertionResult
	Assertion string `json:"assertion"`
}

// API is the unified cross-platform attestation surface.
type API interface {
	IsSupported(ctx context.Context) (*IsSupportedResult, error)
	Prepare(ctx context.Context, opts PrepareOptions) (*PrepareResult, error)
	CreateAttestation(ctx context.Context, opts CreateAttestationOptions) (*CreateAttestationResult, error)
	CreateAssertion(ctx context.Context, opts CreateAssertionOptions) (*CreateAssertionResult, error)
	StoreKeyID(ctx context.Context, opts StoreKeyIDOptions) (*OperationResult, error)
	GetStoredKeyID(ctx context.Context) (*StoredKeyIDResult, error)
	ClearStoredKeyID(ctx context.Context) (*OperationResult, error)

	// Deprecated: use Prepare.
	GenerateKey(ctx context.Context, opts GenerateKeyOptions) (*GenerateKeyResult, error)
	// Deprecated: use CreateAttestation.
	AttestKey(ctx context.Context, opts AttestKeyOptions) (*AttestKeyResult, error)
	// Deprecated: use CreateAssertion.
	GenerateAssertion(ctx context.Context, opts GenerateAssertionOptions) (*GenerateAssertionResult, error)
}
