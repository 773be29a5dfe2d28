package pki

import (
	"crypto/x509"
)

// CASigner signs certificate templates to create certificates.
// When a KeyStore generator has no CASigner the certificate is self-signed.
type CASigner interface {
	// SignCertificate signs a certificate template and returns the DER-encoded certificate bytes.
	// The template must be fully populated, including PublicKey.
	SignCertificate(template *x509.Certificate) ([]byte, error)

	// GetCACertificate returns the CA certificate appended to issued chains.
	GetCACertificate() (*x509.Certificate, error)
}
