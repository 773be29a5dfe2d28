package identity

import (
	"context"
	"crypto/x509"
	"fmt"

	"github.com/wolfeidau/uabootstrap/internal/trust"
)

// CertificateFunc decides whether a client certificate chain, leaf first, is an
// acceptable user identity.
type CertificateFunc func(chain []*x509.Certificate) bool

// AcceptAny accepts every syntactically valid certificate. It proves nothing about trust.
func AcceptAny([]*x509.Certificate) bool {
	return true
}

// TrustedBy accepts chains that the trust store accepts. Intermediates presented by the
// peer are used to build the path to a trusted certificate.
func TrustedBy(v *trust.Validator) CertificateFunc {
	return func(chain []*x509.Certificate) bool {
		return v.Validate(chain).Accepted
	}
}

// CertificateValidator handles X.509 user identity credentials.
type CertificateValidator struct {
	check CertificateFunc
}

// NewCertificateValidator creates a validator using check; nil rejects everything.
func NewCertificateValidator(check CertificateFunc) *CertificateValidator {
	return &CertificateValidator{check: check}
}

func (v *CertificateValidator) Name() string {
	return "x509"
}

func (v *CertificateValidator) Claims(kind Kind) bool {
	return kind == KindX509
}

func (v *CertificateValidator) Validate(_ context.Context, cred Credential) (*Identity, error) {
	c, ok := cred.(X509Certificate)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported credential %s", ErrRejected, cred.Kind())
	}
	chain := c.PeerChain()
	if len(chain) == 0 || chain[0] == nil {
		return nil, fmt.Errorf("%w: no certificate", ErrRejected)
	}
	leaf := chain[0]
	if c.Certificate != nil && !c.Certificate.Equal(leaf) {
		return nil, fmt.Errorf("%w: certificate does not lead the presented chain", ErrRejected)
	}
	if v.check == nil || !v.check(chain) {
		return nil, fmt.Errorf("%w: certificate %s not accepted", ErrRejected, leaf.Subject)
	}

	return &Identity{Kind: KindX509, Name: leaf.Subject.CommonName, Validator: v.Name()}, nil
}
