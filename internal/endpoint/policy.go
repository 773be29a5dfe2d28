package endpoint

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPolicyMode is returned for a policy and mode that cannot be combined.
var ErrInvalidPolicyMode = errors.New("invalid security policy and mode")

// SecurityPolicy is the algorithm suite applied to a secure channel.
type SecurityPolicy string

const (
	PolicyNone                SecurityPolicy = "None"
	PolicyBasic128Rsa15       SecurityPolicy = "Basic128Rsa15"
	PolicyBasic256            SecurityPolicy = "Basic256"
	PolicyBasic256Sha256      SecurityPolicy = "Basic256Sha256"
	PolicyAes128Sha256RsaOaep SecurityPolicy = "Aes128_Sha256_RsaOaep"
	PolicyAes256Sha256RsaPss  SecurityPolicy = "Aes256_Sha256_RsaPss"
)

const securityPolicyURIPrefix = "http://opcfoundation.org/UA/SecurityPolicy#"

var securityPolicies = []SecurityPolicy{
	PolicyNone,
	PolicyBasic128Rsa15,
	PolicyBasic256,
	PolicyBasic256Sha256,
	PolicyAes128Sha256RsaOaep,
	PolicyAes256Sha256RsaPss,
}

// URI returns the policy URI advertised to clients.
func (p SecurityPolicy) URI() string {
	return securityPolicyURIPrefix + string(p)
}

// Valid reports whether p is a known policy.
func (p SecurityPolicy) Valid() bool {
	for _, known := range securityPolicies {
		if p == known {
			return true
		}
	}
	return false
}

// ParseSecurityPolicy accepts a policy name or URI, ignoring case.
func ParseSecurityPolicy(s string) (SecurityPolicy, error) {
	name := strings.TrimPrefix(strings.TrimSpace(s), securityPolicyURIPrefix)
	for _, known := range securityPolicies {
		if strings.EqualFold(name, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: unknown security policy %q", ErrInvalidPolicyMode, s)
}

// MessageSecurityMode is the protection level applied to messages.
type MessageSecurityMode string

const (
	ModeNone           MessageSecurityMode = "None"
	ModeSign           MessageSecurityMode = "Sign"
	ModeSignAndEncrypt MessageSecurityMode = "SignAndEncrypt"
)

var messageSecurityModes = []MessageSecurityMode{ModeNone, ModeSign, ModeSignAndEncrypt}

// ParseMessageSecurityMode accepts a mode name, ignoring case.
func ParseMessageSecurityMode(s string) (MessageSecurityMode, error) {
	for _, known := range messageSecurityModes {
		if strings.EqualFold(strings.TrimSpace(s), string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: unknown message security mode %q", ErrInvalidPolicyMode, s)
}

// PolicyMode pairs a security policy with a message security mode.
type PolicyMode struct {
	Policy SecurityPolicy      `json:"security_policy"`
	Mode   MessageSecurityMode `json:"security_mode"`
}

var (
	// Unsecured is the policy and mode used by discovery endpoints.
	Unsecured = PolicyMode{Policy: PolicyNone, Mode: ModeNone}

	// Basic256Sha256SignAndEncrypt is the default secured pair.
	Basic256Sha256SignAndEncrypt = PolicyMode{Policy: PolicyBasic256Sha256, Mode: ModeSignAndEncrypt}
)

// Validate checks that the policy is None exactly when the mode is None.
func (pm PolicyMode) Validate() error {
	if !pm.Policy.Valid() {
		return fmt.Errorf("%w: unknown security policy %q", ErrInvalidPolicyMode, pm.Policy)
	}
	if _, err := ParseMessageSecurityMode(string(pm.Mode)); err != nil {
		return err
	}
	if (pm.Policy == PolicyNone) != (pm.Mode == ModeNone) {
		return fmt.Errorf("%w: %s cannot be used with mode %s", ErrInvalidPolicyMode, pm.Policy, pm.Mode)
	}
	return nil
}

func (pm PolicyMode) String() string {
	return string(pm.Policy) + ":" + string(pm.Mode)
}

// ParsePolicyMode parses "Policy:Mode", for example "Basic256Sha256:SignAndEncrypt".
// A bare "None" is the unsecured pair.
func ParsePolicyMode(s string) (PolicyMode, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		if strings.EqualFold(strings.TrimSpace(s), string(PolicyNone)) {
			return Unsecured, nil
		}
		return PolicyMode{}, fmt.Errorf("%w: %q is not in policy:mode form", ErrInvalidPolicyMode, s)
	}

	policy, err := ParseSecurityPolicy(s[:idx])
	if err != nil {
		return PolicyMode{}, err
	}
	mode, err := ParseMessageSecurityMode(s[idx+1:])
	if err != nil {
		return PolicyMode{}, err
	}

	pm := PolicyMode{Policy: policy, Mode: mode}
	if err := pm.Validate(); err != nil {
		return PolicyMode{}, err
	}
	return pm, nil
}

// TokenPolicy is a user identity token type an endpoint accepts.
type TokenPolicy string

const (
	TokenAnonymous   TokenPolicy = "Anonymous"
	TokenUsername    TokenPolicy = "Username"
	TokenX509        TokenPolicy = "X509"
	TokenIssuedToken TokenPolicy = "IssuedToken"
)

// DefaultTokenPolicies are advertised when no override is configured.
func DefaultTokenPolicies() []TokenPolicy {
	return []TokenPolicy{TokenAnonymous, TokenUsername, TokenX509}
}
