package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/uabootstrap/internal/logger"
	"github.com/wolfeidau/uabootstrap/internal/server"
)

// EndpointsCmd bootstraps the configuration and prints the endpoint catalog without serving.
type EndpointsCmd struct {
	ConfigFlags `embed:""`

	JSON bool `help:"print the discovery document as JSON" default:"false"`
}

func (c *EndpointsCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	res, err := c.bootstrap(ctx, log, globals)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(server.Describe(res.Server))
	}

	fmt.Printf("Application URI: %s\n", res.Server.ApplicationURI())
	fmt.Printf("Fingerprint:     %s\n\n", res.KeyMaterial.Fingerprint())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tBIND\tSECURITY\tTOKENS")
	for _, d := range res.Server.Endpoints() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", d.EndpointURL(), d.ListenAddress(), d.PolicyMode, d.TokenPolicies)
	}
	return w.Flush()
}
