package commands

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/uabootstrap/internal/bootstrap"
	"github.com/wolfeidau/uabootstrap/internal/config"
	"github.com/wolfeidau/uabootstrap/internal/serverconfig"
)

type Globals struct {
	Debug   bool
	Version string
}

// ConfigFlags locate the configuration file and the key store secret.
type ConfigFlags struct {
	Config     string `help:"path to the YAML configuration file" type:"existingfile" env:"UABOOTSTRAP_CONFIG"`
	Passphrase string `help:"key store passphrase" env:"UABOOTSTRAP_KEYSTORE_PASSPHRASE"`
}

func (f *ConfigFlags) bootstrap(ctx context.Context, log zerolog.Logger, globals *Globals) (*bootstrap.Resources, error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return nil, err
	}

	return bootstrap.Bootstrap(log.WithContext(ctx), cfg, bootstrap.Options{
		Passphrase: f.Passphrase,
		BuildInfo:  serverconfig.BuildInfo{SoftwareVersion: globals.Version},
	})
}
