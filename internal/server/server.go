package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"filippo.io/csrf"
	"github.com/cenkalti/backoff/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/uabootstrap/internal/http"
	"github.com/wolfeidau/uabootstrap/internal/logger"
	"github.com/wolfeidau/uabootstrap/internal/serverconfig"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBindAttempts    = 5
	defaultShutdownTimeout = 10 * time.Second
)

// Options tune the runtime.
type Options struct {
	// TrustProxyHeaders uses X-Forwarded-For and X-Real-IP for client addresses.
	TrustProxyHeaders bool

	// BindAttempts is how many times binding a listener is tried before giving up.
	BindAttempts uint

	// ShutdownTimeout bounds graceful shutdown once the context is cancelled.
	ShutdownTimeout time.Duration

	// MaxConnections caps concurrent connections per listener, zero is unlimited.
	MaxConnections int

	// CORSOrigins allows browser clients from these origins to call the endpoints.
	CORSOrigins []string
}

// Server serves discovery and session requests for every endpoint in a ServerConfig.
type Server struct {
	cfg    *serverconfig.ServerConfig
	log    zerolog.Logger
	opts   Options
	listen func(network, address string) (net.Listener, error)
}

// New creates a server for an assembled configuration.
func New(cfg *serverconfig.ServerConfig, log zerolog.Logger, opts Options) *Server {
	if opts.BindAttempts == 0 {
		opts.BindAttempts = defaultBindAttempts
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Server{
		cfg:    cfg,
		log:    log,
		opts:   opts,
		listen: net.Listen,
	}
}

// Handler returns the HTTP handler for every endpoint path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	discovery := s.discoveryHandler()
	session := s.sessionHandler()

	for _, path := range s.discoveryPaths() {
		mux.Handle("GET "+path, discovery)
	}
	for _, path := range s.sessionPaths() {
		mux.Handle("POST "+path, session)
	}

	middlewares := []func(http.Handler) http.Handler{
		httpmiddleware.ClientIPMiddleware(s.opts.TrustProxyHeaders),
		logger.HTTPRequests(s.log),
		metricsMiddleware,
	}
	if len(s.opts.CORSOrigins) > 0 {
		middlewares = append(middlewares, cors.New(cors.Options{
			AllowedOrigins:   s.opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler)
	}

	// browsers may only POST a session from the same origin or a configured one
	protection := csrf.New()
	for _, origin := range s.opts.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			s.log.Warn().Err(err).Str("origin", origin).Msg("Ignoring invalid CORS origin")
		}
	}
	middlewares = append(middlewares, protection.Handler, compress)

	return httpmiddleware.Chain(mux, middlewares...)
}

// TLSConfig presents the server certificate and requests, but does not require, a client
// certificate. The handshake accepts any client chain; the session handler passes it to
// the identity chain, so discovery stays reachable for every peer.
func (s *Server) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: s.cfg.CertificateManager().GetCertificate,
		ClientAuth:     tls.RequestClientCert,
	}
}

// ListenAddresses returns the distinct bind address and port pairs of all endpoints.
func (s *Server) ListenAddresses() []string {
	seen := map[string]bool{}
	var addrs []string
	for _, d := range s.cfg.Endpoints() {
		addr := d.ListenAddress()
		if !seen[addr] {
			seen[addr] = true
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// Run binds every listen address and serves until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	listeners, err := s.bindAll(ctx)
	if err != nil {
		return err
	}

	handler := s.Handler()
	tlsConfig := s.TLSConfig()

	group, ctx := errgroup.WithContext(ctx)

	for _, ln := range listeners {
		srv := configureHTTPServer(handler, tlsConfig)

		group.Go(func() error {
			s.log.Info().Str("addr", ln.Addr().String()).Msg("Serving HTTPS endpoints")
			if err := srv.ServeTLS(ln, "", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s failed: %w", ln.Addr(), err)
			}
			return nil
		})

		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return group.Wait()
}

func (s *Server) bindAll(ctx context.Context) ([]net.Listener, error) {
	var listeners []net.Listener
	for _, addr := range s.ListenAddresses() {
		ln, err := s.bind(ctx, addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return nil, err
		}
		if s.opts.MaxConnections > 0 {
			ln = netutil.LimitListener(ln, s.opts.MaxConnections)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}

func (s *Server) bind(ctx context.Context, addr string) (net.Listener, error) {
	ln, err := backoff.Retry(ctx, func() (net.Listener, error) {
		return s.listen("tcp", addr)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(s.opts.BindAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn().Err(err).Str("addr", addr).Dur("next_retry", next).Msg("Failed to bind, will retry")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return ln, nil
}

func (s *Server) discoveryPaths() []string {
	paths := map[string]bool{}
	for _, d := range s.cfg.Endpoints() {
		if d.IsDiscovery() {
			paths[d.Path] = true
		}
	}
	return sortedKeys(paths)
}

func (s *Server) sessionPaths() []string {
	paths := map[string]bool{}
	for _, d := range s.cfg.Endpoints() {
		if !d.IsDiscovery() {
			paths[d.Path+sessionSuffix] = true
		}
	}
	return sortedKeys(paths)
}

func configureHTTPServer(handler http.Handler, tlsConfig *tls.Config) *http.Server {
	return &http.Server{
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

func compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
