package pki

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
)

// CertificateManager hands the server identity to the runtime. It holds a single
// certificate; selecting between several certificates per endpoint is not supported.
type CertificateManager struct {
	material *KeyMaterial
}

// NewCertificateManager wraps loaded key material.
func NewCertificateManager(material *KeyMaterial) *CertificateManager {
	return &CertificateManager{material: material}
}

// Certificates returns the server certificates the manager can present.
func (m *CertificateManager) Certificates() []*x509.Certificate {
	if m == nil || m.material == nil {
		return nil
	}
	return []*x509.Certificate{m.material.Leaf()}
}

// FirstCertificate returns the active server certificate, if any.
func (m *CertificateManager) FirstCertificate() (*x509.Certificate, bool) {
	certs := m.Certificates()
	if len(certs) == 0 {
		return nil, false
	}
	return certs[0], true
}

// CertificateChain returns the chain for a certificate the manager holds.
func (m *CertificateManager) CertificateChain(cert *x509.Certificate) ([]*x509.Certificate, bool) {
	if m == nil || m.material == nil || cert == nil || !cert.Equal(m.material.Leaf()) {
		return nil, false
	}
	return m.material.Chain(), true
}

// PrivateKey returns the private key belonging to a certificate the manager holds.
func (m *CertificateManager) PrivateKey(cert *x509.Certificate) (crypto.Signer, bool) {
	if m == nil || m.material == nil || cert == nil || !cert.Equal(m.material.Leaf()) {
		return nil, false
	}
	return m.material.PrivateKey(), true
}

// GetCertificate can be assigned to tls.Config.GetCertificate.
func (m *CertificateManager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := m.material.TLSCertificate()
	return &cert, nil
}
