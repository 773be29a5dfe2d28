package commands

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/uabootstrap/internal/identity"
	"github.com/wolfeidau/uabootstrap/internal/pki"
	"golang.org/x/crypto/bcrypt"
)

func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("security_dir: %s\nendpoints:\n  hostnames:\n    - opc.example.com\n", filepath.Join(dir, "security"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func writeCertificatePEM(t *testing.T, cn string) (string, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), cn+".pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	return path, cert
}

func TestKeyStoreCmds(t *testing.T) {
	ctx := context.Background()
	configPath := writeConfig(t)

	t.Run("inspect before init fails", func(t *testing.T) {
		cmd := &KeyStoreInspectCmd{ConfigFlags: ConfigFlags{Config: configPath}, Passphrase: "password"}
		require.Error(t, cmd.Run(ctx, &Globals{Out: &bytes.Buffer{}}))
	})

	var out bytes.Buffer
	initCmd := &KeyStoreInitCmd{ConfigFlags: ConfigFlags{Config: configPath}, Passphrase: "password"}
	require.NoError(t, initCmd.Run(ctx, &Globals{Out: &out}))
	assert.Contains(t, out.String(), "Created key store")

	out.Reset()
	require.NoError(t, initCmd.Run(ctx, &Globals{Out: &out}))
	assert.Contains(t, out.String(), "Key store already exists")

	t.Run("inspect", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &KeyStoreInspectCmd{ConfigFlags: ConfigFlags{Config: configPath}, Passphrase: "password"}
		require.NoError(t, cmd.Run(ctx, &Globals{Out: &out}))

		assert.Contains(t, out.String(), "opc.example.com")
		assert.Contains(t, out.String(), "urn:wolfeidau:ua-bootstrap-server:")
		assert.Contains(t, out.String(), "Status:      valid")
	})

	t.Run("inspect with wrong passphrase", func(t *testing.T) {
		cmd := &KeyStoreInspectCmd{ConfigFlags: ConfigFlags{Config: configPath}, Passphrase: "wrong"}
		err := cmd.Run(ctx, &Globals{Out: &bytes.Buffer{}})
		require.ErrorIs(t, err, pki.ErrBadPassphrase)
	})
}

func TestTrustCmds(t *testing.T) {
	ctx := context.Background()
	configPath := writeConfig(t)

	require.NoError(t, (&TrustInitCmd{ConfigFlags: ConfigFlags{Config: configPath}}).Run(ctx, &Globals{Out: &bytes.Buffer{}}))

	certPath, cert := writeCertificatePEM(t, "operator")

	var out bytes.Buffer
	add := &TrustAddCmd{ConfigFlags: ConfigFlags{Config: configPath}, Pool: "trusted", Files: []string{certPath}}
	require.NoError(t, add.Run(ctx, &Globals{Out: &out}))
	assert.Contains(t, out.String(), pki.Thumbprint(cert)+".der")

	t.Run("list all pools", func(t *testing.T) {
		var out bytes.Buffer
		list := &TrustListCmd{ConfigFlags: ConfigFlags{Config: configPath}, Pool: "all"}
		require.NoError(t, list.Run(ctx, &Globals{Out: &out}))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[1], "trusted")
		assert.Contains(t, lines[1], pki.Thumbprint(cert))
		assert.Contains(t, lines[1], "CN=operator")
	})

	t.Run("list other pool", func(t *testing.T) {
		var out bytes.Buffer
		list := &TrustListCmd{ConfigFlags: ConfigFlags{Config: configPath}, Pool: "rejected"}
		require.NoError(t, list.Run(ctx, &Globals{Out: &out}))
		assert.NotContains(t, out.String(), pki.Thumbprint(cert))
	})

	t.Run("add invalid file", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.pem")
		require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0600))

		add := &TrustAddCmd{ConfigFlags: ConfigFlags{Config: configPath}, Pool: "trusted", Files: []string{bad}}
		require.Error(t, add.Run(ctx, &Globals{Out: &bytes.Buffer{}}))
	})
}

func TestHashPasswordCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := &HashPasswordCmd{Password: "secret", Cost: bcrypt.MinCost}
	require.NoError(t, cmd.Run(context.Background(), &Globals{Out: &out}))

	hash := strings.TrimSpace(out.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")))

	t.Run("invalid cost", func(t *testing.T) {
		cmd := &HashPasswordCmd{Password: "secret", Cost: 99}
		require.Error(t, cmd.Run(context.Background(), &Globals{Out: &bytes.Buffer{}}))
	})
}

func TestTokenCmds(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	keygen := &TokenKeygenCmd{Name: "issuer", OutputDir: dir}
	require.NoError(t, keygen.Run(ctx, &Globals{Out: &bytes.Buffer{}}))
	require.Error(t, keygen.Run(ctx, &Globals{Out: &bytes.Buffer{}}), "existing key must not be overwritten")

	var out bytes.Buffer
	issue := &TokenIssueCmd{
		Subject:    "operator",
		Issuer:     "uabootstrap",
		Audience:   []string{"opc"},
		TTL:        time.Hour,
		SigningKey: filepath.Join(dir, "issuer.key"),
	}
	require.NoError(t, issue.Run(ctx, &Globals{Out: &out}))

	publicKey, err := os.ReadFile(filepath.Join(dir, "issuer.pub"))
	require.NoError(t, err)

	validator, err := identity.NewTokenValidatorFromPEM(string(publicKey),
		identity.WithIssuer("uabootstrap"),
		identity.WithAudience("opc"),
	)
	require.NoError(t, err)

	id, err := validator.Validate(ctx, identity.IssuedToken{Token: strings.TrimSpace(out.String())})
	require.NoError(t, err)
	assert.Equal(t, "operator", id.Name)
}
