package ios

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// AttestationFormat is the fmt value of an App Attest attestation object.
const AttestationFormat = "apple-appattest"

// Authenticator data flags.
const (
	flagUserPresent  byte = 0x01
	flagAttestedData byte = 0x40
)

// AAGUIDs identify the App Attest environment.
var (
	aaguidDevelopment = [16]byte{'a', 'p', 'p', 'a', 't', 't', 'e', 's', 't', 'd', 'e', 'v', 'e', 'l', 'o', 'p'}
	aaguidProduction  = [16]byte{'a', 'p', 'p', 'a', 't', 't', 'e', 's', 't'}
)

// AttestationObject is the CBOR-encoded attestation returned by attestKey.
type AttestationObject struct {
	Format       string       `cbor:"fmt"`
	AttStatement AttStatement `cbor:"attStmt"`
	AuthData     []byte       `cbor:"authData"`
}

// AttStatement holds the credential certificate chain.
type AttStatement struct {
	X5c     [][]byte `cbor:"x5c"`
	Receipt []byte   `cbor:"receipt,omitempty"`
}

// AssertionObject is the CBOR-encoded assertion returned by generateAssertion.
type AssertionObject struct {
	Signature         []byte `cbor:"signature"`
	AuthenticatorData []byte `cbor:"authenticatorData"`
}

// ErrMalformedObject is returned when an attestation or assertion object
// cannot be decoded.
var ErrMalformedObject = errors.New("malformed object")

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// ParseAttestationObject decodes a raw attestation object.
func ParseAttestationObject(data []byte) (*AttestationObject, error) {
	var obj AttestationObject
	if err := cbor.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedObject, err)
	}
	if obj.Format != AttestationFormat {
		return nil, fmt.Errorf("%w: unexpected format %q", ErrMalformedObject, obj.Format)
	}
	if len(obj.AttStatement.X5c) < 2 {
		return nil, fmt.Errorf("%w: certificate chain too short", ErrMalformedObject)
	}
	if len(obj.AuthData) < 37 {
		return nil, fmt.Errorf("%w: authenticator data too short", ErrMalformedObject)
	}
	return &obj, nil
}

// ParseAssertionObject decodes a raw assertion object.
func ParseAssertionObject(data []byte) (*AssertionObject, error) {
	var obj AssertionObject
	if err := cbor.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedObject, err)
	}
	if len(obj.Signature) == 0 {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformedObject)
	}
	if len(obj.AuthenticatorData) < 37 {
		return nil, fmt.Errorf("%w: authenticator data too short", ErrMalformedObject)
	}
	return &obj, nil
}

// KeyIDFor returns the App Attest key identifier of pub: the base64
// SHA-256 of its uncompressed point encoding.
func KeyIDFor(pub *ecdsa.PublicKey) (string, error) {
	raw, err := uncompressedPoint(pub)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// Nonce returns SHA-256(authData || clientDataHash).
func Nonce(authData, clientDataHash []byte) []byte {
	h := sha256.New()
	h.Write(authData)
	h.Write(clientDataHash)
	return h.Sum(nil)
}

// Counter returns the sign counter of authenticator data.
func Counter(authData []byte) uint32 {
	if len(authData) < 37 {
		return 0
	}
	return binary.BigEndian.Uint32(authData[33:37])
}

func uncompressedPoint(pub *ecdsa.PublicKey) ([]byte, error) {
	ecdhKey, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	return ecdhKey.Bytes(), nil
}

// coseKey encodes pub as a COSE_Key map (EC2, ES256, P-256).
func coseKey(pub *ecdsa.PublicKey) ([]byte, error) {
	point, err := uncompressedPoint(pub)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(map[int]interface{}{
		1:  2,
		3:  -7,
		-1: 1,
		-2: point[1:33],
		-3: point[33:65],
	})
}

// attestationAuthData builds authenticator data with attested credential data.
func attestationAuthData(appID string, production bool, credentialID []byte, pub *ecdsa.PublicKey) ([]byte, error) {
	key, err := coseKey(pub)
	if err != nil {
		return nil, err
	}

	aaguid := aaguidDevelopment
	if production {
		aaguid = aaguidProduction
	}

	rpIDHash := sha256.Sum256([]byte(appID))
	data := make([]byte, 0, 37+16+2+len(credentialID)+len(key))
	data = append(data, rpIDHash[:]...)
	data = append(data, flagAttestedData)
	data = binary.BigEndian.AppendUint32(data, 0)
	data = append(data, aaguid[:]...)
	data = binary.BigEndian.AppendUint16(data, uint16(len(credentialID)))
	data = append(data, credentialID...)
	data = append(data, key...)
	return data, nil
}

// assertionAuthData builds the short authenticator data of an assertion.
func assertionAuthData(appID string, counter uint32) []byte {
	rpIDHash := sha256.Sum256([]byte(appID))
	data := make([]byte, 0, 37)
	data = append(data, rpIDHash[:]...)
	data = append(data, flagUserPresent)
	return binary.BigEndian.AppendUint32(data, counter)
}
