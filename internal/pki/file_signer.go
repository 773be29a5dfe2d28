package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
)

// FileSigner implements CASigner using a CA private key stored in a file.
// It lets a site CA issue the server certificate instead of self-signing it.
type FileSigner struct {
	caKey  crypto.Signer
	caCert *x509.Certificate
}

// NewFileSigner creates a new FileSigner from PEM-encoded key and certificate files.
// The key may be PKCS#8, SEC 1 (EC) or PKCS#1 (RSA).
func NewFileSigner(caKeyPath, caCertPath string) (*FileSigner, error) {
	keyData, err := os.ReadFile(caKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key file: %w", err)
	}

	keyBlock, _ := pem.Decode(keyData)
	if keyBlock == nil {
		return nil, fmt.Errorf("failed to decode CA key PEM")
	}

	caKey, err := parsePrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA private key: %w", err)
	}

	certData, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert file: %w", err)
	}

	certBlock, _ := pem.Decode(certData)
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode CA cert PEM")
	}

	caCert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	if !caCert.IsCA {
		return nil, fmt.Errorf("certificate %s is not a CA", caCert.Subject)
	}

	if err := verifyCertKeyPair(caCert, caKey); err != nil {
		return nil, fmt.Errorf("CA key and certificate do not match: %w", err)
	}

	return &FileSigner{
		caKey:  caKey,
		caCert: caCert,
	}, nil
}

// SignCertificate signs a certificate template using the file-based CA private key.
// Returns DER-encoded certificate bytes.
func (s *FileSigner) SignCertificate(template *x509.Certificate) ([]byte, error) {
	return x509.CreateCertificate(rand.Reader, template, s.caCert, template.PublicKey, s.caKey)
}

// GetCACertificate returns the CA certificate.
func (s *FileSigner) GetCACertificate() (*x509.Certificate, error) {
	return s.caCert, nil
}

// LazyFileSigner loads a FileSigner on first use, so the CA files are only read when
// a certificate is issued. A load failure is returned by every later call.
type LazyFileSigner struct {
	keyPath  string
	certPath string

	once   sync.Once
	signer *FileSigner
	err    error
}

// NewLazyFileSigner creates a signer for the PEM-encoded key and certificate files.
func NewLazyFileSigner(caKeyPath, caCertPath string) *LazyFileSigner {
	return &LazyFileSigner{keyPath: caKeyPath, certPath: caCertPath}
}

func (s *LazyFileSigner) load() (*FileSigner, error) {
	s.once.Do(func() {
		s.signer, s.err = NewFileSigner(s.keyPath, s.certPath)
	})
	return s.signer, s.err
}

func (s *LazyFileSigner) SignCertificate(template *x509.Certificate) ([]byte, error) {
	signer, err := s.load()
	if err != nil {
		return nil, err
	}
	return signer.SignCertificate(template)
}

func (s *LazyFileSigner) GetCACertificate() (*x509.Certificate, error) {
	signer, err := s.load()
	if err != nil {
		return nil, err
	}
	return signer.GetCACertificate()
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		return signer, nil
	}

	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("unrecognised private key encoding: %w", err)
	}
	return key, nil
}
