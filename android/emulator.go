package android

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/playintegrity/v1"
)

// Play Integrity verdict values.
const (
	VerdictMeetsDeviceIntegrity = "MEETS_DEVICE_INTEGRITY"
	VerdictMeetsBasicIntegrity  = "MEETS_BASIC_INTEGRITY"
	VerdictPlayRecognized       = "PLAY_RECOGNIZED"
	VerdictUnrecognizedVersion  = "UNRECOGNIZED_VERSION"
	VerdictLicensed             = "LICENSED"
	VerdictUnlicensed           = "UNLICENSED"
)

// maxRequestHashLength is the longest request hash Play Integrity accepts.
const maxRequestHashLength = 500

// Emulator errors, mirroring StandardIntegrityException codes.
var (
	ErrCloudProjectNumberInvalid = errors.New("cloud project number is invalid")
	ErrRequestHashInvalid        = errors.New("request hash is invalid")
	ErrMalformedToken            = errors.New("malformed emulator token")
)

// EmulatorConfig holds configuration for the Play Integrity emulator.
type EmulatorConfig struct {
	// PackageName is the app package name (required).
	PackageName string

	// CertificateDigests are the app signing certificate SHA-256 digests.
	CertificateDigests []string

	// DeviceVerdicts default to MEETS_DEVICE_INTEGRITY.
	DeviceVerdicts []string

	// AppVerdict defaults to PLAY_RECOGNIZED.
	AppVerdict string

	// LicensingVerdict defaults to LICENSED.
	LicensingVerdict string

	// Clock returns the token timestamp (default: time.Now).
	Clock func() time.Time
}

// Emulator is a software IntegrityManager. Its tokens are unencrypted
// base64url JSON TokenPayloadExternal documents, the shape the
// decodeIntegrityToken API returns for real tokens.
type Emulator struct {
	cfg EmulatorConfig
}

var _ IntegrityManager = (*Emulator)(nil)

// NewEmulator creates a new Play Integrity emulator.
func NewEmulator(cfg EmulatorConfig) (*Emulator, error) {
	if cfg.PackageName == "" {
		return nil, errors.New("package name is required")
	}
	if len(cfg.DeviceVerdicts) == 0 {
		cfg.DeviceVerdicts = []string{VerdictMeetsDeviceIntegrity}
	}
	if cfg.AppVerdict == "" {
		cfg.AppVerdict = VerdictPlayRecognized
	}
	if cfg.LicensingVerdict == "" {
		cfg.LicensingVerdict = VerdictLicensed
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Emulator{cfg: cfg}, nil
}

// PrepareIntegrityToken prepares a provider for cloudProjectNumber.
func (e *Emulator) PrepareIntegrityToken(cloudProjectNumber int64, completion func(TokenProvider, error)) {
	go func() {
		if cloudProjectNumber <= 0 {
			completion(nil, fmt.Errorf("%w: %d", ErrCloudProjectNumberInvalid, cloudProjectNumber))
			return
		}
		completion(&emulatedProvider{emulator: e, cloudProjectNumber: cloudProjectNumber}, nil)
	}()
}

type emulatedProvider struct {
	emulator           *Emulator
	cloudProjectNumber int64
}

func (p *emulatedProvider) Request(requestHash string, completion func(string, error)) {
	go func() {
		completion(p.emulator.issue(requestHash))
	}()
}

func (e *Emulator) issue(requestHash string) (string, error) {
	if requestHash == "" || len(requestHash) > maxRequestHashLength {
		return "", ErrRequestHashInvalid
	}

	payload := &playintegrity.TokenPayloadExternal{
		RequestDetails: &playintegrity.RequestDetails{
			RequestPackageName: e.cfg.PackageName,
			RequestHash:        requestHash,
			TimestampMillis:    e.cfg.Clock().UnixMilli(),
		},
		AppIntegrity: &playintegrity.AppIntegrity{
			AppRecognitionVerdict:   e.cfg.AppVerdict,
			PackageName:             e.cfg.PackageName,
			CertificateSha256Digest: e.cfg.CertificateDigests,
		},
		DeviceIntegrity: &playintegrity.DeviceIntegrity{
			DeviceRecognitionVerdict: e.cfg.DeviceVerdicts,
		},
		AccountDetails: &playintegrity.AccountDetails{
			AppLicensingVerdict: e.cfg.LicensingVerdict,
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeEmulatorToken decodes a token issued by Emulator.
func DecodeEmulatorToken(token string) (*playintegrity.TokenPayloadExternal, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var payload playintegrity.TokenPayloadExternal
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if payload.RequestDetails == nil {
		return nil, fmt.Errorf("%w: missing request details", ErrMalformedToken)
	}
	return &payload, nil
}
