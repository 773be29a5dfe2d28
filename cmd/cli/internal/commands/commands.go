package commands

import (
	"io"
	"os"

	"github.com/wolfeidau/uabootstrap/internal/config"
)

type Globals struct {
	Debug   bool
	Version string

	// Out receives command output, stdout when nil.
	Out io.Writer
}

func (g *Globals) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// ConfigFlags locate the server configuration file.
type ConfigFlags struct {
	Config string `help:"path to the YAML configuration file" type:"existingfile" env:"UABOOTSTRAP_CONFIG"`
}

func (f *ConfigFlags) load() (*config.Config, error) {
	return config.Load(f.Config)
}
