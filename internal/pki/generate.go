package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/uabootstrap/internal/hostname"
)

const (
	// MinKeyBits is the smallest RSA modulus accepted for generated keys.
	MinKeyBits = 2048

	// DefaultValidity is the lifetime of generated certificates.
	DefaultValidity = 3 * 365 * 24 * time.Hour
)

// Generator creates a fresh key pair and certificate for a subject.
type Generator struct {
	Subject   CertificateSubject
	Hostnames hostname.Source
	KeyBits   int
	Validity  time.Duration

	// Signer issues the certificate from a CA; nil produces a self-signed certificate.
	Signer CASigner

	now func() time.Time
}

// NewGenerator creates a Generator with the default key size and validity.
func NewGenerator(subject CertificateSubject, hostnames hostname.Source) *Generator {
	return &Generator{
		Subject:   subject,
		Hostnames: hostnames,
		KeyBits:   MinKeyBits,
		Validity:  DefaultValidity,
		now:       time.Now,
	}
}

// Generate creates a new RSA key and certificate. Every resolved hostname is added to the
// subject alternative names along with the application URI.
func (g *Generator) Generate() (*KeyMaterial, error) {
	if g.KeyBits < MinKeyBits {
		return nil, fmt.Errorf("key size %d is below the minimum of %d bits", g.KeyBits, MinKeyBits)
	}

	now := time.Now
	if g.now != nil {
		now = g.now
	}

	validity := g.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}

	key, err := rsa.GenerateKey(rand.Reader, g.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	names := append([]string{}, g.Subject.DNSNames...)
	names = append(names, g.Subject.IPAddresses...)
	if g.Hostnames != nil {
		resolved, err := g.Hostnames.Hostnames()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve hostnames: %w", err)
		}
		names = append(names, resolved...)
	}
	dnsNames, ips := ClassifyHostnames(names)

	appURI := g.Subject.ApplicationURI
	if appURI == "" {
		appURI = generatedApplicationURI(g.Subject)
	}
	uri, err := url.Parse(appURI)
	if err != nil {
		return nil, fmt.Errorf("invalid application URI %q: %w", appURI, err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	issued := now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      g.Subject.Name(),
		NotBefore:    issued,
		NotAfter:     issued.Add(validity),
		KeyUsage: x509.KeyUsageDigitalSignature |
			x509.KeyUsageContentCommitment |
			x509.KeyUsageKeyEncipherment |
			x509.KeyUsageDataEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
		URIs:                  []*url.URL{uri},
		PublicKey:             &key.PublicKey,
	}

	var (
		der   []byte
		chain []*x509.Certificate
	)

	if g.Signer == nil {
		// self-signed application certificates act as their own issuer
		template.IsCA = true
		template.KeyUsage |= x509.KeyUsageCertSign
		der, err = x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	} else {
		der, err = g.Signer.SignCertificate(template)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	chain = append(chain, leaf)

	if g.Signer != nil {
		ca, err := g.Signer.GetCACertificate()
		if err != nil {
			return nil, fmt.Errorf("failed to get CA certificate: %w", err)
		}
		if ca == nil {
			return nil, errors.New("signer returned no CA certificate")
		}
		chain = append(chain, ca)
	}

	log.Info().
		Str("subject", leaf.Subject.String()).
		Str("application_uri", appURI).
		Strs("dns_names", dnsNames).
		Int("ip_addresses", len(ips)).
		Time("not_after", leaf.NotAfter).
		Msg("Generated server certificate")

	return NewKeyMaterial(key, chain)
}

func generatedApplicationURI(subject CertificateSubject) string {
	parts := []string{"urn"}
	for _, v := range []string{subject.Organization, subject.CommonName} {
		v = strings.ToLower(strings.Join(strings.Fields(v), "-"))
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 1 {
		parts = append(parts, "uabootstrap", "server")
	}
	parts = append(parts, uuid.NewString())
	return strings.Join(parts, ":")
}
