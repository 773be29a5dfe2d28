package pki

import (
	"crypto/x509"
	"time"
)

// DefaultRotationThreshold is how close to expiry a certificate is reported as due for rotation.
const DefaultRotationThreshold = 30 * 24 * time.Hour

// CertValidation holds certificate validity results
type CertValidation struct {
	NotBefore     time.Time
	NotAfter      time.Time
	DaysRemaining int
	Expired       bool
	NotYetValid   bool
	ShouldRotate  bool
}

// ValidateCertificate reports the validity status of a certificate at the given time.
// Rotation is only reported; the key store never replaces a live certificate.
func ValidateCertificate(cert *x509.Certificate, now time.Time, rotationThreshold time.Duration) CertValidation {
	validation := CertValidation{
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		DaysRemaining: int(cert.NotAfter.Sub(now).Hours() / 24),
	}

	if now.Before(cert.NotBefore) {
		validation.NotYetValid = true
	}

	if now.After(cert.NotAfter) {
		validation.Expired = true
		validation.ShouldRotate = true
		return validation
	}

	if cert.NotAfter.Sub(now) < rotationThreshold {
		validation.ShouldRotate = true
	}

	return validation
}
