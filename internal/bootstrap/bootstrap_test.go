package bootstrap

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/uabootstrap/internal/config"
	"github.com/wolfeidau/uabootstrap/internal/endpoint"
	"github.com/wolfeidau/uabootstrap/internal/hostname"
	"github.com/wolfeidau/uabootstrap/internal/identity"
	"github.com/wolfeidau/uabootstrap/internal/pki"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.SecurityDir = filepath.Join(t.TempDir(), "security")
	cfg.Endpoints.Hostnames = []string{"opc.example.com"}
	cfg.Endpoints.Path = "/example"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	res, err := Bootstrap(ctx, cfg, Options{Passphrase: "password"})
	require.NoError(t, err)

	assert.FileExists(t, cfg.KeyStorePath())
	assert.DirExists(t, filepath.Join(cfg.TrustDir(), "trusted"))
	assert.DirExists(t, filepath.Join(cfg.TrustDir(), "rejected"))
	assert.DirExists(t, filepath.Join(cfg.TrustDir(), "issuers"))

	assert.Equal(t, []string{"opc.example.com"}, res.Hostnames)
	assert.Contains(t, res.KeyMaterial.Leaf().DNSNames, "opc.example.com")
	assert.Regexp(t, `^urn:wolfeidau:ua-bootstrap-server:`, res.Server.ApplicationURI())

	endpoints := res.Server.Endpoints()
	require.Len(t, endpoints, 3)
	assert.Equal(t, "https://opc.example.com:12686/example", endpoints[0].EndpointURL())
	assert.Equal(t, "https://opc.example.com:12686/example/discovery", endpoints[2].EndpointURL())
	assert.Equal(t, []endpoint.TokenPolicy{endpoint.TokenAnonymous, endpoint.TokenX509}, endpoints[0].TokenPolicies)

	t.Run("restart keeps the same identity", func(t *testing.T) {
		again, err := Bootstrap(ctx, cfg, Options{Passphrase: "password"})
		require.NoError(t, err)

		assert.Equal(t, res.KeyMaterial.Fingerprint(), again.KeyMaterial.Fingerprint())
		assert.Equal(t, res.Server.ApplicationURI(), again.Server.ApplicationURI())
	})

	t.Run("wrong passphrase stops startup", func(t *testing.T) {
		_, err := Bootstrap(ctx, cfg, Options{Passphrase: "wrong"})
		require.ErrorIs(t, err, pki.ErrBadPassphrase)
	})

	t.Run("hostname override", func(t *testing.T) {
		other := testConfig(t)
		other.Endpoints.Hostnames = nil

		res, err := Bootstrap(ctx, other, Options{Hostnames: hostname.Static{"a.example.com", "b.example.com"}})
		require.NoError(t, err)
		assert.Len(t, res.Server.Endpoints(), 6)
	})
}

func TestIdentityChain(t *testing.T) {
	cfg := testConfig(t)

	tv, err := TrustValidator(cfg)
	require.NoError(t, err)

	hash, err := identity.HashPassword("secret", 4)
	require.NoError(t, err)
	cfg.Identity.Users = map[string]string{"operator": hash}

	t.Run("password and certificate", func(t *testing.T) {
		chain, err := IdentityChain(cfg, tv)
		require.NoError(t, err)

		assert.Len(t, chain.Validators(), 2)
		assert.True(t, chain.Authenticate(context.Background(), identity.UsernamePassword{Username: "operator", Password: "secret"}))
		assert.False(t, chain.Authenticate(context.Background(), identity.IssuedToken{Token: "abc"}))
		assert.Equal(t,
			[]endpoint.TokenPolicy{endpoint.TokenAnonymous, endpoint.TokenUsername, endpoint.TokenX509},
			tokenPoliciesFor(cfg))
	})

	t.Run("issued tokens", func(t *testing.T) {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "token.pub")
		require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0600))

		withTokens := *cfg
		withTokens.Identity.Tokens.PublicKeyFile = path

		chain, err := IdentityChain(&withTokens, tv)
		require.NoError(t, err)
		assert.Len(t, chain.Validators(), 3)
		assert.Contains(t, tokenPoliciesFor(&withTokens), endpoint.TokenIssuedToken)
	})

	t.Run("missing token key", func(t *testing.T) {
		withTokens := *cfg
		withTokens.Identity.Tokens.PublicKeyFile = filepath.Join(t.TempDir(), "missing.pub")

		_, err := IdentityChain(&withTokens, tv)
		require.Error(t, err)
	})

	t.Run("bad password hash", func(t *testing.T) {
		bad := *cfg
		bad.Identity.Users = map[string]string{"operator": "plaintext"}

		_, err := IdentityChain(&bad, tv)
		require.Error(t, err)
	})
}

func TestKeyStore_CASigner(t *testing.T) {
	t.Run("missing CA files fail creation", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.KeyStore.CAKey = filepath.Join(t.TempDir(), "missing.key")
		cfg.KeyStore.CACert = filepath.Join(t.TempDir(), "missing.crt")

		ks := KeyStore(cfg, hostname.Static{"opc.example.com"}, "password")
		_, err := ks.Load()
		require.ErrorIs(t, err, pki.ErrGenerationFailure)
		assert.NoFileExists(t, ks.Path())
	})

	t.Run("existing store loads without the CA files", func(t *testing.T) {
		cfg := testConfig(t)

		created, err := KeyStore(cfg, hostname.Static{"opc.example.com"}, "password").Load()
		require.NoError(t, err)

		cfg.KeyStore.CAKey = filepath.Join(t.TempDir(), "missing.key")
		cfg.KeyStore.CACert = filepath.Join(t.TempDir(), "missing.crt")

		loaded, err := KeyStore(cfg, hostname.Static{"opc.example.com"}, "password").Load()
		require.NoError(t, err)
		assert.Equal(t, created.Fingerprint(), loaded.Fingerprint())
	})
}

func TestHostnameSource(t *testing.T) {
	t.Run("configured hostnames", func(t *testing.T) {
		cfg := testConfig(t)
		assert.Equal(t, hostname.Static{"opc.example.com"}, HostnameSource(cfg, nil))
	})

	t.Run("override wins", func(t *testing.T) {
		cfg := testConfig(t)
		override := hostname.Static{"other.example.com"}
		assert.Equal(t, override, HostnameSource(cfg, override))
	})

	t.Run("single bind address", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Endpoints.Hostnames = nil
		cfg.Endpoints.BindAddresses = []string{"10.1.2.3"}

		local, ok := HostnameSource(cfg, nil).(*hostname.Local)
		require.True(t, ok)
		assert.Equal(t, "10.1.2.3", local.BindAddress)
	})

	t.Run("every bind address is discovered", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Endpoints.Hostnames = nil
		cfg.Endpoints.BindAddresses = []string{"10.1.2.3", "10.4.5.6"}

		union, ok := HostnameSource(cfg, nil).(hostname.Union)
		require.True(t, ok)
		require.Len(t, union, 2)

		var binds []string
		for _, src := range union {
			local, ok := src.(*hostname.Local)
			require.True(t, ok)
			binds = append(binds, local.BindAddress)
		}
		assert.Equal(t, []string{"10.1.2.3", "10.4.5.6"}, binds)
	})
}
