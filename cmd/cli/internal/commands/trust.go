package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/uabootstrap/internal/pki"
	"github.com/wolfeidau/uabootstrap/internal/trust"
)

type TrustCmd struct {
	Init TrustInitCmd `cmd:"" help:"Create the trust directory layout"`
	List TrustListCmd `cmd:"" help:"List certificates in the trust directory"`
	Add  TrustAddCmd  `cmd:"" help:"Add certificates to a trust pool"`
}

type TrustInitCmd struct {
	ConfigFlags `embed:""`
}

func (c *TrustInitCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	if err := trust.EnsureLayout(cfg.TrustDir()); err != nil {
		return err
	}

	fmt.Fprintf(globals.out(), "Trust directory ready: %s\n", cfg.TrustDir())
	return nil
}

type TrustListCmd struct {
	ConfigFlags `embed:""`
	Pool        string `help:"pool to list" enum:"all,trusted,rejected,issuers" default:"all"`
}

func (c *TrustListCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	tv, err := trust.NewValidator(cfg.TrustDir())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(globals.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POOL\tTHUMBPRINT\tSUBJECT\tNOT AFTER")
	for _, pool := range trust.Pools {
		if c.Pool != "all" && string(pool) != c.Pool {
			continue
		}
		for _, cert := range tv.Certificates(pool) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", pool, pki.Thumbprint(cert), cert.Subject, cert.NotAfter.Format(time.DateOnly))
		}
	}
	return w.Flush()
}

type TrustAddCmd struct {
	ConfigFlags `embed:""`
	Pool        string   `help:"pool to add to" enum:"trusted,rejected,issuers" default:"trusted"`
	Files       []string `arg:"" help:"PEM or DER certificate files" type:"path"`
}

func (c *TrustAddCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	dir := cfg.TrustDir()
	if err := trust.EnsureLayout(dir); err != nil {
		return err
	}

	var errs []error
	for _, file := range c.Files {
		data, err := os.ReadFile(file)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		certs, err := trust.ParseCertificates(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}

		for _, cert := range certs {
			path, err := trust.WriteCertificate(dir, trust.Pool(c.Pool), cert)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", file, err))
				continue
			}
			fmt.Fprintf(globals.out(), "Added %s to %s: %s\n", cert.Subject, c.Pool, path)
		}
	}

	return errors.Join(errs...)
}
