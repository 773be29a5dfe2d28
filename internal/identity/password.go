package identity

import (
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordFunc checks a username and password.
type PasswordFunc func(username, password string) bool

// PasswordValidator handles anonymous and username/password credentials.
type PasswordValidator struct {
	allowAnonymous bool
	check          PasswordFunc
}

// NewPasswordValidator creates a validator. Anonymous credentials are only accepted
// when allowAnonymous is set; a nil check rejects every username.
func NewPasswordValidator(allowAnonymous bool, check PasswordFunc) *PasswordValidator {
	return &PasswordValidator{
		allowAnonymous: allowAnonymous,
		check:          check,
	}
}

func (p *PasswordValidator) Name() string {
	return "password"
}

func (p *PasswordValidator) Claims(kind Kind) bool {
	return kind == KindAnonymous || kind == KindUsername
}

func (p *PasswordValidator) Validate(_ context.Context, cred Credential) (*Identity, error) {
	switch c := cred.(type) {
	case Anonymous:
		if !p.allowAnonymous {
			return nil, fmt.Errorf("%w: anonymous access is disabled", ErrRejected)
		}
		return &Identity{Kind: KindAnonymous, Name: "anonymous", Validator: p.Name()}, nil

	case UsernamePassword:
		if c.Username == "" || p.check == nil {
			return nil, fmt.Errorf("%w: invalid username or password", ErrRejected)
		}
		if !p.check(c.Username, c.Password) {
			return nil, fmt.Errorf("%w: invalid username or password", ErrRejected)
		}
		return &Identity{Kind: KindUsername, Name: c.Username, Validator: p.Name()}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported credential %s", ErrRejected, cred.Kind())
	}
}

// BcryptUsers returns a PasswordFunc backed by bcrypt hashes keyed by username.
// Unknown users are compared against a throwaway hash so the response time does
// not reveal which usernames exist.
func BcryptUsers(hashes map[string]string) (PasswordFunc, error) {
	users := make(map[string][]byte, len(hashes))
	cost := bcrypt.DefaultCost
	for username, hash := range hashes {
		c, err := bcrypt.Cost([]byte(hash))
		if err != nil {
			return nil, fmt.Errorf("invalid password hash for user %q: %w", username, err)
		}
		cost = c
		users[username] = []byte(hash)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate dummy password: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword(secret[:], cost)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dummy password hash: %w", err)
	}

	return func(username, password string) bool {
		hash, ok := users[username]
		if !ok {
			_ = bcrypt.CompareHashAndPassword(dummy, []byte(password))
			return false
		}
		return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
	}, nil
}

// HashPassword returns a bcrypt hash suitable for BcryptUsers.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
