package pki

import (
	"crypto"
	"crypto/sha1" // #nosec G505 - thumbprints identify certificates, they are not a security boundary
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// KeyMaterial is the server's private key and certificate chain, leaf first.
// It is immutable once created.
type KeyMaterial struct {
	privateKey crypto.Signer
	chain      []*x509.Certificate
}

// NewKeyMaterial validates that the key matches the leaf of the chain.
func NewKeyMaterial(key crypto.Signer, chain []*x509.Certificate) (*KeyMaterial, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}
	if len(chain) == 0 || chain[0] == nil {
		return nil, errors.New("certificate chain is empty")
	}
	if err := verifyCertKeyPair(chain[0], key); err != nil {
		return nil, fmt.Errorf("key and certificate do not match: %w", err)
	}

	return &KeyMaterial{
		privateKey: key,
		chain:      append([]*x509.Certificate{}, chain...),
	}, nil
}

// PrivateKey returns the server private key.
func (k *KeyMaterial) PrivateKey() crypto.Signer {
	return k.privateKey
}

// Leaf returns the server certificate.
func (k *KeyMaterial) Leaf() *x509.Certificate {
	return k.chain[0]
}

// Chain returns a copy of the certificate chain, leaf first.
func (k *KeyMaterial) Chain() []*x509.Certificate {
	return append([]*x509.Certificate{}, k.chain...)
}

// TLSCertificate returns the key material in the form crypto/tls expects.
func (k *KeyMaterial) TLSCertificate() tls.Certificate {
	raw := make([][]byte, 0, len(k.chain))
	for _, cert := range k.chain {
		raw = append(raw, cert.Raw)
	}
	return tls.Certificate{
		Certificate: raw,
		PrivateKey:  k.privateKey,
		Leaf:        k.chain[0],
	}
}

// Fingerprint returns the Base58-encoded SHA-256 digest of the leaf public key.
func (k *KeyMaterial) Fingerprint() string {
	return Fingerprint(k.chain[0])
}

// Fingerprint returns the Base58-encoded SHA-256 digest of the certificate's SubjectPublicKeyInfo.
func Fingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return base58.Encode(hash[:])
}

// Thumbprint returns the upper-case hex SHA-1 digest of the DER certificate.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw) // #nosec G401
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// verifyCertKeyPair checks that a certificate's public key matches a private key
func verifyCertKeyPair(cert *x509.Certificate, key crypto.Signer) error {
	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return fmt.Errorf("unsupported private key type %T", key)
	}

	if !pub.Equal(cert.PublicKey) {
		return errors.New("public keys do not match")
	}

	return nil
}
