package attestation

// normalizeKey maps a native key generation result into the unified shape.
func normalizeKey(pc PlatformContext, native *NativeKey) (*PrepareResult, error) {
	if native == nil || native.KeyID == "" {
		return nil, ErrMissingGeneratedValue
	}
	return &PrepareResult{KeyID: native.KeyID, PlatformContext: pc}, nil
}

// normalizeAttestation maps the native {attestation} field onto token and
// echoes the caller's keyId and challenge when the native layer omits them.
func normalizeAttestation(pc PlatformContext, opts CreateAttestationOptions, native *NativeAttestation) (*CreateAttestationResult, error) {
	if native == nil || native.Attestation == "" {
		return nil, ErrMissingGeneratedValue
	}

	keyID := native.KeyID
	if keyID == "" {
		keyID = opts.KeyID
	}
	challenge := native.Challenge
	if challenge == "" {
		challenge = opts.Challenge
	}

	return &CreateAttestationResult{
		Token:           native.Attestation,
		KeyID:           keyID,
		Challenge:       challenge,
		PlatformContext: pc,
	}, nil
}

// normalizeAssertion maps the native {assertion} field onto token. The
// payload is always the caller's, never a native round-trip.
func normalizeAssertion(pc PlatformContext, opts CreateAssertionOptions, native *NativeAssertion) (*CreateAssertionResult, error) {
	if native == nil || native.Assertion == "" {
		return nil, ErrMissingGeneratedValue
	}

	keyID := native.KeyID
	if keyID == "" {
		keyID = opts.KeyID
	}

	return &CreateAssertionResult{
		Token:           native.Assertion,
		KeyID:           keyID,
		Payload:         opts.Payload,
		PlatformContext: pc,
	}, nil
}
