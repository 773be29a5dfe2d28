package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/uabootstrap/internal/config"
	"github.com/wolfeidau/uabootstrap/internal/endpoint"
	"github.com/wolfeidau/uabootstrap/internal/hostname"
	"github.com/wolfeidau/uabootstrap/internal/identity"
	"github.com/wolfeidau/uabootstrap/internal/pki"
	"github.com/wolfeidau/uabootstrap/internal/serverconfig"
	"github.com/wolfeidau/uabootstrap/internal/trust"
)

// Options hold the inputs that do not come from the configuration file.
type Options struct {
	// Passphrase protects the key store.
	Passphrase string

	// Hostnames overrides hostname discovery.
	Hostnames hostname.Source

	BuildInfo serverconfig.BuildInfo
}

// Resources holds everything assembled during bootstrap.
type Resources struct {
	KeyStore    *pki.KeyStore
	KeyMaterial *pki.KeyMaterial
	Trust       *trust.Validator
	Identity    *identity.Chain
	Hostnames   []string
	Server      *serverconfig.ServerConfig
}

// Bootstrap loads or creates the key store, opens the trust directory, builds the identity
// chain and endpoint catalog, and assembles the server configuration. Any failure stops
// startup.
func Bootstrap(ctx context.Context, cfg *config.Config, opts Options) (*Resources, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	log := zerolog.Ctx(ctx)

	source := HostnameSource(cfg, opts.Hostnames)

	ks := KeyStore(cfg, source, opts.Passphrase)

	material, err := ks.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load key store %s: %w", ks.Path(), err)
	}

	tv, err := TrustValidator(cfg)
	if err != nil {
		return nil, err
	}

	chain, err := IdentityChain(cfg, tv)
	if err != nil {
		return nil, err
	}

	hostnames, err := source.Hostnames()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hostnames: %w", err)
	}

	policyModes, err := cfg.PolicyModes()
	if err != nil {
		return nil, err
	}

	tokenPolicies := cfg.TokenPolicies()
	if len(tokenPolicies) == 0 {
		tokenPolicies = tokenPoliciesFor(cfg)
	}

	endpoints, err := endpoint.Build(endpoint.Params{
		BindAddresses: cfg.Endpoints.BindAddresses,
		Hostnames:     hostnames,
		Port:          cfg.Endpoints.Port,
		BasePath:      cfg.Endpoints.Path,
		Certificate:   material.Leaf(),
		PolicyModes:   policyModes,
		TokenPolicies: tokenPolicies,
		Scheme:        cfg.Endpoints.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoints: %w", err)
	}

	server, err := (&serverconfig.Builder{
		KeyMaterial:            material,
		Endpoints:              endpoints,
		TrustValidator:         tv,
		IdentityChain:          chain,
		ApplicationName:        cfg.Application.Name,
		ProductURI:             cfg.Application.ProductURI,
		BuildInfo:              opts.BuildInfo,
		ApplicationURIFallback: cfg.Application.FallbackURI,
	}).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to assemble server configuration: %w", err)
	}

	log.Info().
		Str("application_uri", server.ApplicationURI()).
		Strs("hostnames", hostnames).
		Int("endpoints", len(endpoints)).
		Msg("Bootstrap complete")

	return &Resources{
		KeyStore:    ks,
		KeyMaterial: material,
		Trust:       tv,
		Identity:    chain,
		Hostnames:   hostnames,
		Server:      server,
	}, nil
}

// HostnameSource picks configured hostnames when present and discovers them otherwise.
func HostnameSource(cfg *config.Config, override hostname.Source) hostname.Source {
	if override != nil {
		return override
	}
	if len(cfg.Endpoints.Hostnames) > 0 {
		return hostname.Static(cfg.Endpoints.Hostnames)
	}

	binds := cfg.Endpoints.BindAddresses
	if len(binds) == 0 {
		binds = []string{endpoint.DefaultBindAddress}
	}
	if len(binds) == 1 {
		return hostname.NewLocal(binds[0], cfg.Endpoints.IncludeLoopback)
	}

	sources := make(hostname.Union, 0, len(binds))
	for _, bind := range binds {
		sources = append(sources, hostname.NewLocal(bind, cfg.Endpoints.IncludeLoopback))
	}
	return sources
}

// KeyStore creates the key store described by the configuration. Generated certificates
// are issued by the configured CA when one is set.
func KeyStore(cfg *config.Config, source hostname.Source, passphrase string) *pki.KeyStore {
	generator := pki.NewGenerator(cfg.CertificateSubject(), source)
	generator.KeyBits = cfg.KeyStore.KeyBits
	if cfg.KeyStore.Validity > 0 {
		generator.Validity = cfg.KeyStore.Validity
	}

	// the CA is only read when the store has to be created
	if cfg.KeyStore.CAKey != "" {
		generator.Signer = pki.NewLazyFileSigner(cfg.KeyStore.CAKey, cfg.KeyStore.CACert)
	}

	return pki.NewKeyStore(cfg.KeyStorePath(), passphrase, generator, pki.WithAlias(cfg.KeyStore.Alias))
}

// TrustValidator creates the trust directory layout if needed and loads it.
func TrustValidator(cfg *config.Config) (*trust.Validator, error) {
	dir := cfg.TrustDir()

	if err := trust.EnsureLayout(dir); err != nil {
		return nil, fmt.Errorf("failed to prepare trust directory: %w", err)
	}

	var opts []trust.Option
	if cfg.Trust.RecordRejected {
		opts = append(opts, trust.WithRecordRejected(cfg.Trust.RecordLimit))
	}

	tv, err := trust.NewValidator(dir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust directory: %w", err)
	}
	return tv, nil
}

// IdentityChain builds the validators in a fixed order: password, certificate, then
// issued token when a token key is configured.
func IdentityChain(cfg *config.Config, tv *trust.Validator) (*identity.Chain, error) {
	users, err := identity.BcryptUsers(cfg.Identity.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	check := identity.TrustedBy(tv)
	if cfg.Identity.CertificateMode == config.CertificateModeAny {
		check = identity.AcceptAny
	}

	validators := []identity.Validator{
		identity.NewPasswordValidator(cfg.Identity.AllowAnonymous, users),
		identity.NewCertificateValidator(check),
	}

	tokens := cfg.Identity.Tokens
	if tokens.PublicKeyFile != "" {
		data, err := os.ReadFile(tokens.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token public key: %w", err)
		}

		var opts []identity.TokenOption
		if tokens.Issuer != "" {
			opts = append(opts, identity.WithIssuer(tokens.Issuer))
		}
		if tokens.Audience != "" {
			opts = append(opts, identity.WithAudience(tokens.Audience))
		}

		tokenValidator, err := identity.NewTokenValidatorFromPEM(string(data), opts...)
		if err != nil {
			return nil, err
		}
		validators = append(validators, tokenValidator)
	}

	return identity.NewChain(validators...), nil
}

func tokenPoliciesFor(cfg *config.Config) []endpoint.TokenPolicy {
	var policies []endpoint.TokenPolicy
	if cfg.Identity.AllowAnonymous {
		policies = append(policies, endpoint.TokenAnonymous)
	}
	if len(cfg.Identity.Users) > 0 {
		policies = append(policies, endpoint.TokenUsername)
	}
	policies = append(policies, endpoint.TokenX509)
	if cfg.Identity.Tokens.PublicKeyFile != "" {
		policies = append(policies, endpoint.TokenIssuedToken)
	}
	return policies
}
