package identity

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator handles issued tokens: ES256 signed JWTs.
type TokenValidator struct {
	publicKey *ecdsa.PublicKey
	issuer    string
	audience  string
}

// TokenOption configures a TokenValidator.
type TokenOption func(*TokenValidator)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) TokenOption {
	return func(v *TokenValidator) {
		v.issuer = issuer
	}
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) TokenOption {
	return func(v *TokenValidator) {
		v.audience = audience
	}
}

// NewTokenValidatorFromPEM creates a validator from a PEM-encoded ECDSA public key.
func NewTokenValidatorFromPEM(publicKeyPEM string, opts ...TokenOption) (*TokenValidator, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("token public key not provided")
	}

	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token public key: %w", err)
	}

	v := &TokenValidator{publicKey: publicKey}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *TokenValidator) Name() string {
	return "issued_token"
}

func (v *TokenValidator) Claims(kind Kind) bool {
	return kind == KindIssuedToken
}

func (v *TokenValidator) Validate(_ context.Context, cred Credential) (*Identity, error) {
	c, ok := cred.(IssuedToken)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported credential %s", ErrRejected, cred.Kind())
	}
	if c.Token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrRejected)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(c.Token, claims, func(t *jwt.Token) (any, error) {
		return v.publicKey, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token: %v", ErrRejected, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token invalid", ErrRejected)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrRejected)
	}

	return &Identity{Kind: KindIssuedToken, Name: claims.Subject, Validator: v.Name()}, nil
}

// IssueToken creates a signed token for subject. signingKeyPEM is a PEM-encoded ECDSA private key.
func IssueToken(signingKeyPEM, issuer, subject string, audience []string, ttl time.Duration) (string, error) {
	signingKey, err := jwt.ParseECPrivateKeyFromPEM([]byte(signingKeyPEM))
	if err != nil {
		return "", fmt.Errorf("failed to parse signing key: %w", err)
	}

	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    issuer,
		Audience:  audience,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(signingKey)
}
