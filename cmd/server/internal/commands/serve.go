package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfeidau/uabootstrap/internal/logger"
	"github.com/wolfeidau/uabootstrap/internal/server"
	"github.com/wolfeidau/uabootstrap/internal/telemetry"
	"github.com/wolfeidau/uabootstrap/internal/trust"
)

type ServeCmd struct {
	ConfigFlags `embed:""`

	TrustProxyHeaders bool          `help:"use X-Forwarded-For and X-Real-IP for client addresses" default:"false" env:"UABOOTSTRAP_TRUST_PROXY_HEADERS"`
	BindAttempts      uint          `help:"attempts to bind each listen address" default:"5" env:"UABOOTSTRAP_BIND_ATTEMPTS"`
	ShutdownTimeout   time.Duration `help:"graceful shutdown timeout" default:"10s" env:"UABOOTSTRAP_SHUTDOWN_TIMEOUT"`
	MaxConnections    int           `help:"concurrent connections per listener, 0 is unlimited" default:"0" env:"UABOOTSTRAP_MAX_CONNECTIONS"`
	CORSOrigins       []string      `help:"allowed CORS origins for browser clients" env:"UABOOTSTRAP_CORS_ORIGINS"`

	Tracing     bool    `help:"enable tracing" default:"false" env:"UABOOTSTRAP_TRACING"`
	SampleRatio float64 `help:"fraction of requests traced" default:"1" env:"UABOOTSTRAP_TRACE_SAMPLE_RATIO"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "uabootstrap-server",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	res, err := c.bootstrap(ctx, log, globals)
	if err != nil {
		return err
	}

	go reloadOnHangup(ctx, res.Trust)

	srv := server.New(res.Server, log, server.Options{
		TrustProxyHeaders: c.TrustProxyHeaders,
		BindAttempts:      c.BindAttempts,
		ShutdownTimeout:   c.ShutdownTimeout,
		MaxConnections:    c.MaxConnections,
		CORSOrigins:       c.CORSOrigins,
	})

	for _, d := range res.Server.Endpoints() {
		log.Info().
			Str("url", d.EndpointURL()).
			Str("security", d.PolicyMode.String()).
			Msg("Endpoint")
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}

// reloadOnHangup rereads the trust directory on SIGHUP.
func reloadOnHangup(ctx context.Context, tv *trust.Validator) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			// a failed reload keeps the previous pools and is logged by the validator
			_ = tv.Reload()
		}
	}
}
