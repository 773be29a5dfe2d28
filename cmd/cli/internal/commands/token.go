package commands

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mr-tron/base58"
	"github.com/wolfeidau/uabootstrap/internal/identity"
)

type TokenCmd struct {
	Keygen TokenKeygenCmd `cmd:"" help:"Generate an ES256 signing key pair for issued tokens"`
	Issue  TokenIssueCmd  `cmd:"" help:"Issue a signed identity token"`
}

type TokenKeygenCmd struct {
	Name      string `arg:"" help:"base name for the key files"`
	OutputDir string `help:"directory to write the key files to" default:"."`
}

func (c *TokenKeygenCmd) Run(ctx context.Context, globals *Globals) error {
	privateKeyPath := filepath.Join(c.OutputDir, c.Name+".key")
	publicKeyPath := filepath.Join(c.OutputDir, c.Name+".pub")

	if _, err := os.Stat(privateKeyPath); err == nil {
		return fmt.Errorf("key %s already exists", privateKeyPath)
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	privateKeyDER, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}

	if err := os.MkdirAll(c.OutputDir, 0700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(privateKeyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privateKeyDER}), 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	// #nosec G306 - public keys are meant to be shared with the server
	if err := os.WriteFile(publicKeyPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyDER}), 0644); err != nil {
		os.Remove(privateKeyPath)
		return fmt.Errorf("failed to write public key: %w", err)
	}

	hash := sha256.Sum256(publicKeyDER)

	out := globals.out()
	fmt.Fprintf(out, "Private key: %s\n", privateKeyPath)
	fmt.Fprintf(out, "Public key:  %s\n", publicKeyPath)
	fmt.Fprintf(out, "Fingerprint: %s\n", base58.Encode(hash[:]))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Set identity.tokens.public_key_file in the server config to the public key.")

	return nil
}

type TokenIssueCmd struct {
	Subject    string        `help:"subject identifier" required:""`
	Issuer     string        `help:"token issuer" default:""`
	Audience   []string      `help:"token audience"`
	TTL        time.Duration `help:"token lifetime" default:"1h"`
	SigningKey string        `help:"path to the PEM signing key" required:"" type:"existingfile" env:"UABOOTSTRAP_TOKEN_SIGNING_KEY"`
}

func (c *TokenIssueCmd) Run(ctx context.Context, globals *Globals) error {
	if c.TTL <= 0 {
		return errors.New("ttl must be positive")
	}

	keyPEM, err := os.ReadFile(c.SigningKey)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}

	token, err := identity.IssueToken(string(keyPEM), c.Issuer, c.Subject, c.Audience, c.TTL)
	if err != nil {
		return err
	}

	fmt.Fprintln(globals.out(), token)
	return nil
}
