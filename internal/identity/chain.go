package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/uabootstrap/internal/telemetry"
)

// ErrRejected is returned when no validator accepts a credential.
var ErrRejected = errors.New("identity rejected")

// Validator checks credentials of the kinds it claims.
type Validator interface {
	// Name identifies the validator in logs and identities.
	Name() string

	// Claims reports whether the validator evaluates credentials of this kind.
	Claims(kind Kind) bool

	// Validate returns the identity for an accepted credential, or an error wrapping ErrRejected.
	Validate(ctx context.Context, cred Credential) (*Identity, error)
}

// Chain evaluates validators in registration order. Only validators that claim the
// credential kind are consulted and the first one to accept wins. A credential that
// no validator claims is rejected. The chain is immutable and safe for concurrent use.
type Chain struct {
	validators []Validator
}

// NewChain creates a chain from validators in the order given.
func NewChain(validators ...Validator) *Chain {
	v := make([]Validator, 0, len(validators))
	for _, validator := range validators {
		if validator != nil {
			v = append(v, validator)
		}
	}
	return &Chain{validators: v}
}

// Validators returns the registered validators in order.
func (c *Chain) Validators() []Validator {
	return append([]Validator{}, c.validators...)
}

// Kinds returns the credential kinds at least one validator claims.
func (c *Chain) Kinds() []Kind {
	var kinds []Kind
	for _, kind := range []Kind{KindAnonymous, KindUsername, KindX509, KindIssuedToken} {
		for _, v := range c.validators {
			if v.Claims(kind) {
				kinds = append(kinds, kind)
				break
			}
		}
	}
	return kinds
}

// Authenticate reports whether any validator accepts the credential.
func (c *Chain) Authenticate(ctx context.Context, cred Credential) bool {
	_, err := c.Identify(ctx, cred)
	return err == nil
}

// Identify returns the identity established by the first validator that accepts the credential.
func (c *Chain) Identify(ctx context.Context, cred Credential) (*Identity, error) {
	if cred == nil {
		return nil, fmt.Errorf("%w: no credential", ErrRejected)
	}
	// pointer variants, typed nils included, are not part of the union
	switch cred.(type) {
	case Anonymous, UsernamePassword, X509Certificate, IssuedToken:
	default:
		return nil, fmt.Errorf("%w: unsupported credential type %T", ErrRejected, cred)
	}

	started := time.Now()
	kind := cred.Kind()

	id, err := c.identify(ctx, cred)

	telemetry.GetMetrics().RecordAuthAttempt(ctx, string(kind), err == nil, float64(time.Since(started).Microseconds())/1000)

	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("credential", string(kind)).Msg("Authentication rejected")
		return nil, err
	}

	log.Ctx(ctx).Debug().
		Str("credential", string(kind)).
		Str("name", id.Name).
		Str("validator", id.Validator).
		Msg("Authentication accepted")

	return id, nil
}

func (c *Chain) identify(ctx context.Context, cred Credential) (*Identity, error) {
	kind := cred.Kind()

	var lastErr error
	for _, v := range c.validators {
		if !v.Claims(kind) {
			continue
		}

		id, err := v.Validate(ctx, cred)
		if err == nil && id != nil {
			return id, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: %s returned no identity", ErrRejected, v.Name())
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, lastErr
	}

	return nil, fmt.Errorf("%w: no validator for %s credentials", ErrRejected, kind)
}
