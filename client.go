package attestation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kacy/device-attestation-client/metrics"
)

// Client dispatches every unified operation to the backend of the platform
// the process runs on and normalizes the native results.
//
// The platform is resolved on every call; results always carry the
// PlatformContext of the call that produced them.
type Client struct {
	backends           map[Platform]Backend
	resolve            func() Platform
	cloudProjectNumber string
	log                logrus.FieldLogger
}

// Config holds configuration for the attestation client.
type Config struct {
	// Backends maps each platform to its native bridge (required).
	Backends map[Platform]Backend

	// Platform pins the runtime platform. When empty, Resolve is consulted.
	Platform Platform

	// Resolve reports the runtime platform (default: DetectPlatform).
	Resolve func() Platform

	// CloudProjectNumber is the process-wide project number used by
	// integrity-token platforms when a call does not supply one.
	CloudProjectNumber string

	// Logger receives structured operation logs (default: logrus standard logger).
	Logger logrus.FieldLogger
}

var _ API = (*Client)(nil)

// New creates a new attestation client.
func New(cfg Config) (*Client, error) {
	if len(cfg.Backends) == 0 {
		return nil, errors.New("at least one platform backend must be configured")
	}
	for p, b := range cfg.Backends {
		if b == nil {
			return nil, fmt.Errorf("%s: backend is nil", p)
		}
	}

	resolve := cfg.Resolve
	if cfg.Platform != "" {
		pinned := ParsePlatform(string(cfg.Platform))
		resolve = func() Platform { return pinned }
	}
	if resolve == nil {
		resolve = DetectPlatform
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	backends := make(map[Platform]Backend, len(cfg.Backends))
	for p, b := range cfg.Backends {
		backends[p] = b
	}

	return &Client{
		backends:           backends,
		resolve:            resolve,
		cloudProjectNumber: cfg.CloudProjectNumber,
		log:                logger,
	}, nil
}

// Platform returns the platform context the next call would use.
func (c *Client) Platform() PlatformContext {
	return contextFor(ParsePlatform(string(c.resolve())))
}

// Backend returns the backend registered for p, if any.
func (c *Client) Backend(p Platform) (Backend, bool) {
	b, ok := c.backends[p]
	return b, ok
}

func (c *Client) dispatch() (PlatformContext, Backend) {
	pc := c.Platform()
	return pc, c.backends[pc.Platform]
}

// IsSupported reports whether native attestation is available. It never
// fails: a platform without a backend reports isSupported=false.
func (c *Client) IsSupported(ctx context.Context) (*IsSupportedResult, error) {
	start := time.Now()
	pc, backend := c.dispatch()

	supported := backend != nil && backend.IsSupported(ctx)
	c.record(metrics.OpIsSupported, pc, start, nil)

	return &IsSupportedResult{IsSupported: supported, PlatformContext: pc}, nil
}

// Prepare creates a key handle. The handle is not persisted.
func (c *Client) Prepare(ctx context.Context, opts PrepareOptions) (res *PrepareResult, err error) {
	start := time.Now()
	pc, backend := c.dispatch()
	defer func() { c.record(metrics.OpPrepare, pc, start, err) }()

	if backend == nil {
		return nil, ErrNotSupported
	}

	opts.CloudProjectNumber = c.projectNumber(opts.CloudProjectNumber)
	native, err := backend.GenerateKey(ctx, opts)
	if err != nil {
		return nil, classify(ErrKeyGenerationFailed, err)
	}
	return normalizeKey(pc, native)
}

// CreateAttestation binds a server challenge to a key handle and returns
// the one-time registration token.
func (c *Client) CreateAttestation(ctx context.Context, opts CreateAttestationOptions) (res *CreateAttestationResult, err error) {
	start := time.Now()
	pc, backend := c.dispatch()
	defer func() { c.record(metrics.OpCreateAttestation, pc, start, err) }()

	if backend == nil {
		return nil, ErrNotSupported
	}

	opts.CloudProjectNumber = c.projectNumber(opts.CloudProjectNumber)
	native, err := backend.AttestKey(ctx, opts)
	if err != nil {
		return nil, classify(ErrAttestationFailed, err)
	}
	return normalizeAttestation(pc, opts, native)
}

// CreateAssertion binds a request payload to a key handle. It may be
// called any number of times per key.
func (c *Client) CreateAssertion(ctx context.Context, opts CreateAssertionOptions) (res *CreateAssertionResult, err error) {
	start := time.Now()
	pc, backend := c.dispatch()
	defer func() { c.record(metrics.OpCreateAssertion, pc, start, err) }()

	if backend == nil {
		return nil, ErrNotSupported
	}

	opts.CloudProjectNumber = c.projectNumber(opts.CloudProjectNumber)
	native, err := backend.GenerateAssertion(ctx, opts)
	if err != nil {
		return nil, classify(ErrAssertionFailed, err)
	}
	return normalizeAssertion(pc, opts, native)
}

// StoreKeyID persists the key handle in the installation's single slot.
func (c *Client) StoreKeyID(ctx context.Context, opts StoreKeyIDOptions) (res *OperationResult, err error) {
	start := time.Now()
	pc, backend := c.dispatch()
	defer func() { c.record(metrics.OpStoreKeyID, pc, start, err) }()

	if backend == nil {
		return nil, ErrNotSupported
	}
	if err := PresenceFor(pc.Platform).RequireKeyID(opts.KeyID); err != nil {
		return nil, err
	}

	opts.CloudProjectNumber = c.projectNumber(opts.CloudProjectNumber)
	if err := backend.StoreKeyID(ctx, opts); err != nil {
		return nil, err
	}
	return &OperationResult{Success: true}, nil
}

// GetStoredKeyID returns the persisted key handle. Absence is reported as
// {keyId: nil, hasStoredKey: false}, not as an error.
func (c *Client) GetStoredKeyID(ctx context.Context) (res *StoredKeyIDResult, err error) {
	start := time.Now()
	pc, backend := c.dispatch()
	defer func() { c.record(metrics.OpGetStoredKeyID, pc, start, err) }()

	if backend == nil {
		return &StoredKeyIDResult{}, nil
	}

	keyID, ok, err := backend.StoredKeyID(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &StoredKeyIDResult{}, nil
	}
	return &StoredKeyIDResult{KeyID: &keyID, HasStoredKey: true}, nil
}

// ClearStoredKeyID removes the persisted key handle. It is idempotent.
func (c *Client) ClearStoredKeyID(ctx context.Context) (res *OperationResult, err error) {
	start := time.Now()
	pc, backend := c.dispatch()
	defer func() { c.record(metrics.OpClearStoredKeyID, pc, start, err) }()

	if backend != nil {
		if err := backend.ClearStoredKeyID(ctx); err != nil {
			return nil, err
		}
	}
	return &OperationResult{Success: true}, nil
}

// projectNumber applies the process-wide project number when the call did
// not supply one.
func (c *Client) projectNumber(perCall string) string {
	if !isBlank(perCall) {
		return perCall
	}
	return c.cloudProjectNumber
}

func (c *Client) record(operation string, pc PlatformContext, start time.Time, err error) {
	entry := c.log.WithFields(logrus.Fields{
		"operation": operation,
		"platform":  pc.Platform,
		"format":    pc.Format,
	})

	if err != nil {
		kind := KindName(err)
		metrics.RecordOperation(operation, string(pc.Platform), start, false, kind)
		entry.WithField("error_kind", kind).WithError(err).Warn("attestation operation failed")
		return
	}
	metrics.RecordOperation(operation, string(pc.Platform), start, true, "")
	entry.Debug("attestation operation completed")
}

// classify makes sure a backend failure surfaces as one of the package
// error kinds. Errors that already carry a kind pass through unchanged.
func classify(kind, err error) error {
	if KindOf(err) != nil {
		return err
	}
	return NewError(kind, err)
}
