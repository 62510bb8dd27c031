package ios

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// nonceOID is the App Attest credential certificate extension carrying
// SHA-256(authData || clientDataHash).
var nonceOID = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 8, 2}

// nonceContainer is the ASN.1 shape of the nonce extension value.
type nonceContainer struct {
	Nonce []byte `asn1:"tag:1,explicit"`
}

// leafValidity mirrors the short lifetime of App Attest credential certificates.
const leafValidity = 72 * time.Hour

// Authority is a development certificate authority that issues App Attest
// style credential certificates for the simulator. Servers that accept
// simulator attestations must trust RootPEM instead of Apple's root.
type Authority struct {
	root            *x509.Certificate
	intermediate    *x509.Certificate
	intermediateKey *ecdsa.PrivateKey
}

// NewAuthority creates a root and an intermediate CA.
func NewAuthority() (*Authority, error) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate root key: %w", err)
	}

	now := time.Now()
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "App Attest Simulator Root CA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(20, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create root certificate: %w", err)
	}
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse root certificate: %w", err)
	}

	intKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate intermediate key: %w", err)
	}
	intTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "App Attest Simulator CA 1"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}
	intDER, err := x509.CreateCertificate(rand.Reader, intTemplate, root, &intKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create intermediate certificate: %w", err)
	}
	intermediate, err := x509.ParseCertificate(intDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse intermediate certificate: %w", err)
	}

	return &Authority{
		root:            root,
		intermediate:    intermediate,
		intermediateKey: intKey,
	}, nil
}

// RootCertificate returns the root CA certificate.
func (a *Authority) RootCertificate() *x509.Certificate {
	return a.root
}

// RootPEM returns the root CA certificate in PEM form.
func (a *Authority) RootPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.root.Raw})
}

// issueChain issues a credential certificate for pub carrying nonce and
// returns the x5c chain (leaf first).
func (a *Authority) issueChain(pub *ecdsa.PublicKey, nonce []byte, now time.Time) ([][]byte, error) {
	ext, err := asn1.Marshal(nonceContainer{Nonce: nonce})
	if err != nil {
		return nil, fmt.Errorf("failed to encode nonce extension: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:    serial,
		Subject:         pkix.Name{CommonName: "App Attest Simulator Credential"},
		NotBefore:       now.Add(-time.Minute),
		NotAfter:        now.Add(leafValidity),
		KeyUsage:        x509.KeyUsageDigitalSignature,
		ExtraExtensions: []pkix.Extension{{Id: nonceOID, Value: ext}},
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, template, a.intermediate, pub, a.intermediateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential certificate: %w", err)
	}

	return [][]byte{leafDER, a.intermediate.Raw}, nil
}
