package endpoint

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/uabootstrap/internal/telemetry"
)

const (
	// DefaultBindAddress listens on every interface.
	DefaultBindAddress = "0.0.0.0"

	// DefaultPort is the advertised port when none is configured.
	DefaultPort = 12686

	// DefaultPath is the base path when none is configured.
	DefaultPath = "/uabootstrap"

	// DefaultScheme matches the HTTPS transport served by this module.
	DefaultScheme = "https"

	discoverySuffix = "/discovery"
)

// ErrMissingCertificate is returned when endpoints are built without a server certificate.
var ErrMissingCertificate = errors.New("endpoint certificate is required")

// Params are the inputs to Build.
type Params struct {
	BindAddresses []string
	Hostnames     []string
	Port          int
	BasePath      string
	Certificate   *x509.Certificate
	PolicyModes   []PolicyMode

	// TokenPolicies overrides DefaultTokenPolicies when set.
	TokenPolicies []TokenPolicy

	// Scheme defaults to DefaultScheme.
	Scheme string
}

// DiscoveryPath returns the discovery path for a base path.
func DiscoveryPath(basePath string) string {
	return cleanPath(basePath) + discoverySuffix
}

// Build cross-products bind addresses, hostnames and policy/mode pairs into descriptors.
// Every bind address and hostname combination also gets one unsecured discovery endpoint.
// The result is deduplicated and ordered by bind address, hostname, then the requested
// pairs followed by discovery.
func Build(p Params) ([]Descriptor, error) {
	if p.Certificate == nil {
		return nil, ErrMissingCertificate
	}

	for _, pm := range p.PolicyModes {
		if err := pm.Validate(); err != nil {
			return nil, err
		}
	}

	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid endpoint port %d", port)
	}

	scheme := p.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}

	tokenPolicies := p.TokenPolicies
	if len(tokenPolicies) == 0 {
		tokenPolicies = DefaultTokenPolicies()
	}

	basePath := cleanPath(p.BasePath)
	discoveryPath := basePath + discoverySuffix

	var (
		descriptors []Descriptor
		seen        = map[Key]struct{}{}
	)

	add := func(d Descriptor) {
		if _, ok := seen[d.Key()]; ok {
			return
		}
		seen[d.Key()] = struct{}{}
		descriptors = append(descriptors, d.clone())
	}

	for _, bindAddress := range p.BindAddresses {
		bindAddress = strings.TrimSpace(bindAddress)
		if bindAddress == "" {
			continue
		}

		for _, hostname := range p.Hostnames {
			hostname = strings.TrimSpace(hostname)
			if hostname == "" {
				continue
			}

			base := Descriptor{
				Scheme:        scheme,
				BindAddress:   bindAddress,
				BindPort:      port,
				Hostname:      hostname,
				Path:          basePath,
				Certificate:   p.Certificate,
				TokenPolicies: tokenPolicies,
			}

			for _, pm := range p.PolicyModes {
				d := base
				d.PolicyMode = pm
				add(d)
			}

			discovery := base
			discovery.Path = discoveryPath
			discovery.PolicyMode = Unsecured
			add(discovery)
		}
	}

	telemetry.GetMetrics().EndpointsBuiltTotal.Add(context.Background(), int64(len(descriptors)))

	for _, d := range descriptors {
		log.Debug().
			Str("url", d.EndpointURL()).
			Str("bind", d.ListenAddress()).
			Str("policy_mode", d.PolicyMode.String()).
			Msg("Built endpoint")
	}

	return descriptors, nil
}

func cleanPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
