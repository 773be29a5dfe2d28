package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/uabootstrap/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		KeyStore     commands.KeyStoreCmd     `cmd:"" name:"keystore" help:"Manage the server key store"`
		Trust        commands.TrustCmd        `cmd:"" help:"Manage the trust directory"`
		HashPassword commands.HashPasswordCmd `cmd:"" help:"Hash a password for the users section of the config"`
		Token        commands.TokenCmd        `cmd:"" help:"Manage issued identity tokens"`
		Debug        bool                     `help:"Enable debug mode."`
		Version      kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
