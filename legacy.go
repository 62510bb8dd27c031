package attestation

import "context"

// Legacy aliases. Each one calls the unified operation and derives its
// result from the unified result, so the two shapes cannot diverge.

// GenerateKey is the legacy alias of Prepare.
//
// Deprecated: use Prepare.
func (c *Client) GenerateKey(ctx context.Context, opts GenerateKeyOptions) (*GenerateKeyResult, error) {
	return c.Prepare(ctx, opts)
}

// AttestKey is the legacy alias of CreateAttestation.
//
// Deprecated: use CreateAttestation.
func (c *Client) AttestKey(ctx context.Context, opts AttestKeyOptions) (*AttestKeyResult, error) {
	res, err := c.CreateAttestation(ctx, opts)
	if err != nil {
		return nil, err
	}
	return LegacyAttestation(res), nil
}

// GenerateAssertion is the legacy alias of CreateAssertion.
//
// Deprecated: use CreateAssertion.
func (c *Client) GenerateAssertion(ctx context.Context, opts GenerateAssertionOptions) (*GenerateAssertionResult, error) {
	res, err := c.CreateAssertion(ctx, opts)
	if err != nil {
		return nil, err
	}
	return LegacyAssertion(res), nil
}

// LegacyAttestation derives the legacy attestation view of res.
func LegacyAttestation(res *CreateAttestationResult) *AttestKeyResult {
	return &AttestKeyResult{CreateAttestationResult: *res, Attestation: res.Token}
}

// LegacyAssertion derives the legacy assertion view of res.
func LegacyAssertion(res *CreateAssertionResult) *GenerateAssertionResult {
	return &GenerateAssertionResult{CreateAssertionResult: *res, Assertion: res.Token}
}
