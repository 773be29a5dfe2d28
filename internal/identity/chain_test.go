package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credentialOf struct{ kind Kind }

func (c credentialOf) Kind() Kind { return c.kind }
func (credentialOf) credential()  {}

type recordingValidator struct {
	name   string
	kinds  []Kind
	accept bool
	calls  int
}

func (r *recordingValidator) Name() string { return r.name }

func (r *recordingValidator) Claims(kind Kind) bool {
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (r *recordingValidator) Validate(_ context.Context, cred Credential) (*Identity, error) {
	r.calls++
	if !r.accept {
		return nil, ErrRejected
	}
	return &Identity{Kind: cred.Kind(), Name: r.name, Validator: r.name}, nil
}

func TestChain_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("credential without a validator is rejected", func(t *testing.T) {
		chain := NewChain(NewPasswordValidator(true, nil))

		assert.False(t, chain.Authenticate(ctx, X509Certificate{}))
		assert.False(t, chain.Authenticate(ctx, IssuedToken{Token: "abc"}))
		assert.False(t, chain.Authenticate(ctx, credentialOf{kind: "kerberos"}))
	})

	t.Run("empty chain rejects everything", func(t *testing.T) {
		chain := NewChain()

		assert.False(t, chain.Authenticate(ctx, Anonymous{}))
		_, err := chain.Identify(ctx, Anonymous{})
		require.ErrorIs(t, err, ErrRejected)
	})

	t.Run("nil credential is rejected", func(t *testing.T) {
		chain := NewChain(NewPasswordValidator(true, nil))

		_, err := chain.Identify(ctx, nil)
		require.ErrorIs(t, err, ErrRejected)
	})

	t.Run("pointer credentials are rejected without a panic", func(t *testing.T) {
		chain := NewChain(NewPasswordValidator(true, nil), NewCertificateValidator(AcceptAny))

		creds := []Credential{
			(*UsernamePassword)(nil),
			(*X509Certificate)(nil),
			(*Anonymous)(nil),
			&IssuedToken{Token: "abc"},
		}
		for _, cred := range creds {
			require.NotPanics(t, func() {
				_, err := chain.Identify(ctx, cred)
				require.ErrorIs(t, err, ErrRejected)
			})
		}
	})

	t.Run("anonymous rejected when disabled", func(t *testing.T) {
		chain := NewChain(NewPasswordValidator(false, nil), NewCertificateValidator(AcceptAny))

		assert.False(t, chain.Authenticate(ctx, Anonymous{}))
	})

	t.Run("anonymous accepted when enabled", func(t *testing.T) {
		chain := NewChain(NewPasswordValidator(true, nil))

		id, err := chain.Identify(ctx, Anonymous{})
		require.NoError(t, err)
		assert.Equal(t, KindAnonymous, id.Kind)
		assert.Equal(t, "password", id.Validator)
	})

	t.Run("only validators claiming the kind are consulted", func(t *testing.T) {
		password := &recordingValidator{name: "password", kinds: []Kind{KindUsername}, accept: true}
		cert := &recordingValidator{name: "cert", kinds: []Kind{KindX509}, accept: true}
		chain := NewChain(password, cert)

		id, err := chain.Identify(ctx, X509Certificate{})
		require.NoError(t, err)
		assert.Equal(t, "cert", id.Validator)
		assert.Equal(t, 0, password.calls)
		assert.Equal(t, 1, cert.calls)
	})

	t.Run("first accepting validator wins in registration order", func(t *testing.T) {
		first := &recordingValidator{name: "first", kinds: []Kind{KindUsername}, accept: false}
		second := &recordingValidator{name: "second", kinds: []Kind{KindUsername}, accept: true}
		third := &recordingValidator{name: "third", kinds: []Kind{KindUsername}, accept: true}
		chain := NewChain(first, second, third)

		id, err := chain.Identify(ctx, UsernamePassword{Username: "user", Password: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "second", id.Validator)
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 1, second.calls)
		assert.Equal(t, 0, third.calls)
	})

	t.Run("all claimers rejecting is a rejection", func(t *testing.T) {
		chain := NewChain(
			&recordingValidator{name: "a", kinds: []Kind{KindUsername}},
			&recordingValidator{name: "b", kinds: []Kind{KindUsername}},
		)

		_, err := chain.Identify(ctx, UsernamePassword{Username: "user"})
		require.ErrorIs(t, err, ErrRejected)
	})

	t.Run("nil validators are skipped", func(t *testing.T) {
		chain := NewChain(nil, NewPasswordValidator(true, nil))
		assert.Len(t, chain.Validators(), 1)
	})
}

func TestChain_Kinds(t *testing.T) {
	chain := NewChain(NewPasswordValidator(false, nil), NewCertificateValidator(AcceptAny))
	assert.Equal(t, []Kind{KindAnonymous, KindUsername, KindX509}, chain.Kinds())
}
