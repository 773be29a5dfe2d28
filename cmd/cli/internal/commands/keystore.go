package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfeidau/uabootstrap/internal/bootstrap"
	"github.com/wolfeidau/uabootstrap/internal/pki"
)

type KeyStoreCmd struct {
	Init    KeyStoreInitCmd    `cmd:"" help:"Create the server key store if it does not exist"`
	Inspect KeyStoreInspectCmd `cmd:"" help:"Show the server certificate held in the key store"`
}

type KeyStoreInitCmd struct {
	ConfigFlags `embed:""`
	Passphrase  string `help:"key store passphrase" env:"UABOOTSTRAP_KEYSTORE_PASSPHRASE"`
}

func (c *KeyStoreInitCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	ks := bootstrap.KeyStore(cfg, bootstrap.HostnameSource(cfg, nil), c.Passphrase)

	existed := ks.Exists()

	material, err := ks.Load()
	if err != nil {
		return fmt.Errorf("failed to load key store: %w", err)
	}

	out := globals.out()
	if existed {
		fmt.Fprintf(out, "Key store already exists: %s\n", ks.Path())
	} else {
		fmt.Fprintf(out, "Created key store: %s\n", ks.Path())
	}
	fmt.Fprintf(out, "Fingerprint: %s\n", material.Fingerprint())

	return nil
}

type KeyStoreInspectCmd struct {
	ConfigFlags `embed:""`
	Passphrase  string `help:"key store passphrase" env:"UABOOTSTRAP_KEYSTORE_PASSPHRASE"`
}

func (c *KeyStoreInspectCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	// no generator, a missing store is reported rather than created
	ks := pki.NewKeyStore(cfg.KeyStorePath(), c.Passphrase, nil, pki.WithAlias(cfg.KeyStore.Alias))
	if !ks.Exists() {
		return errors.New("key store does not exist, run keystore init first")
	}

	material, err := ks.Load()
	if err != nil {
		return fmt.Errorf("failed to load key store: %w", err)
	}

	leaf := material.Leaf()
	validity := pki.ValidateCertificate(leaf, time.Now(), pki.DefaultRotationThreshold)

	uris := make([]string, 0, len(leaf.URIs))
	for _, u := range leaf.URIs {
		uris = append(uris, u.String())
	}
	ips := make([]string, 0, len(leaf.IPAddresses))
	for _, ip := range leaf.IPAddresses {
		ips = append(ips, ip.String())
	}

	out := globals.out()
	fmt.Fprintf(out, "Path:        %s\n", ks.Path())
	fmt.Fprintf(out, "Subject:     %s\n", leaf.Subject)
	fmt.Fprintf(out, "Issuer:      %s\n", leaf.Issuer)
	fmt.Fprintf(out, "URIs:        %s\n", strings.Join(uris, ", "))
	fmt.Fprintf(out, "DNS names:   %s\n", strings.Join(leaf.DNSNames, ", "))
	fmt.Fprintf(out, "IPs:         %s\n", strings.Join(ips, ", "))
	fmt.Fprintf(out, "Chain:       %d certificate(s)\n", len(material.Chain()))
	fmt.Fprintf(out, "Fingerprint: %s\n", material.Fingerprint())
	fmt.Fprintf(out, "Thumbprint:  %s\n", pki.Thumbprint(leaf))
	fmt.Fprintf(out, "Not before:  %s\n", validity.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(out, "Not after:   %s (%d days)\n", validity.NotAfter.Format(time.RFC3339), validity.DaysRemaining)

	switch {
	case validity.Expired:
		fmt.Fprintln(out, "Status:      EXPIRED")
	case validity.NotYetValid:
		fmt.Fprintln(out, "Status:      NOT YET VALID")
	case validity.ShouldRotate:
		fmt.Fprintln(out, "Status:      due for rotation")
	default:
		fmt.Fprintln(out, "Status:      valid")
	}

	return nil
}
