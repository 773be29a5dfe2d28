package identity

import (
	"crypto/x509"
)

// Kind tags the credential types a caller can present.
type Kind string

const (
	KindAnonymous   Kind = "anonymous"
	KindUsername    Kind = "username"
	KindX509        Kind = "x509"
	KindIssuedToken Kind = "issued_token"
)

// Credential is one of Anonymous, UsernamePassword, X509Certificate or IssuedToken.
type Credential interface {
	Kind() Kind
	credential()
}

// Anonymous is presented by callers that supply no identity.
type Anonymous struct{}

// UsernamePassword is a plain username and password.
type UsernamePassword struct {
	Username string
	Password string
}

// X509Certificate is a client certificate presented as the user identity. Chain holds
// the certificates the peer presented, leaf first, and may be empty.
type X509Certificate struct {
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
}

// IssuedToken is a bearer token issued by a token service.
type IssuedToken struct {
	Token string
}

func (Anonymous) Kind() Kind        { return KindAnonymous }
func (UsernamePassword) Kind() Kind { return KindUsername }
func (X509Certificate) Kind() Kind  { return KindX509 }
func (IssuedToken) Kind() Kind      { return KindIssuedToken }

func (Anonymous) credential()        {}
func (UsernamePassword) credential() {}
func (X509Certificate) credential()  {}
func (IssuedToken) credential()      {}

// PeerChain returns the presented chain, leaf first, falling back to the leaf alone.
func (c X509Certificate) PeerChain() []*x509.Certificate {
	if len(c.Chain) > 0 {
		return c.Chain
	}
	if c.Certificate == nil {
		return nil
	}
	return []*x509.Certificate{c.Certificate}
}

// Identity describes an authenticated caller.
type Identity struct {
	Kind      Kind   `json:"kind"`
	Name      string `json:"name"`
	Validator string `json:"validator"`
}
