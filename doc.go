// Package attestation provides a unified client API for device attestation
// over iOS App Attest, Android Play Integrity and a web fallback.
//
// An app prepares a key handle once, attests it against a server challenge
// and then signs request payloads with assertions. The same calls work on
// every platform; results carry the platform and the attestation format
// that produced them so a server knows how to verify the token.
//
// # iOS App Attest
//
// Tokens are base64 CBOR attestation and assertion objects bound to
// SHA-256 of the challenge or payload.
// See: https://developer.apple.com/documentation/devicecheck/establishing_your_app_s_integrity
//
// # Android Play Integrity
//
// Tokens are Standard integrity tokens whose request hash is the base64url
// SHA-256 of the challenge or payload. A Google Cloud project number is
// required, per call or process-wide.
// See: https://developer.android.com/google/play/integrity/standard
//
// # Web
//
// Key handles are random and can be stored, but attestation and assertion
// always fail with ErrAttestationUnavailable.
//
// # Basic Usage
//
//	client, err := attestation.New(attestation.Config{
//	    Backends: map[attestation.Platform]attestation.Backend{
//	        attestation.PlatformIOS:     iosBackend,
//	        attestation.PlatformAndroid: androidBackend,
//	        attestation.PlatformWeb:     web.New(web.Config{}),
//	    },
//	    CloudProjectNumber: "123456789",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	key, err := client.Prepare(ctx, attestation.PrepareOptions{})
//	att, err := client.CreateAttestation(ctx, attestation.CreateAttestationOptions{
//	    KeyID:     key.KeyID,
//	    Challenge: challengeFromServer,
//	})
//
// # Subpackages
//
//   - ios: App Attest backend and a software simulator of the service
//   - android: Play Integrity backend and a token emulator
//   - web: fallback backend
//   - storage, redis: persistence of the key handle and simulator keys
//   - challenge: single-use challenges for relying parties
//   - metrics: Prometheus instrumentation
package attestation
