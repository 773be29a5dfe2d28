package serverconfig

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/uabootstrap/internal/endpoint"
	"github.com/wolfeidau/uabootstrap/internal/identity"
	"github.com/wolfeidau/uabootstrap/internal/pki"
	"github.com/wolfeidau/uabootstrap/internal/trust"
)

const (
	DefaultApplicationName = "UA Bootstrap Server"
	DefaultProductURI      = "urn:wolfeidau:uabootstrap"
	DefaultManufacturer    = "wolfeidau"
	DefaultProductName     = "uabootstrap server"
)

// Sentinel errors
var (
	// ErrMissingApplicationURI is returned when the certificate has no URI and no fallback is configured.
	ErrMissingApplicationURI = errors.New("certificate is missing the application URI")

	// ErrMissingKeyMaterial is returned when no server key material is supplied.
	ErrMissingKeyMaterial = errors.New("server key material is required")

	// ErrMissingEndpoints is returned when the endpoint set is empty.
	ErrMissingEndpoints = errors.New("at least one endpoint is required")

	// ErrMissingValidator is returned when the trust validator or identity chain is absent.
	ErrMissingValidator = errors.New("trust validator and identity chain are required")
)

// BuildInfo describes the server software.
type BuildInfo struct {
	ProductURI       string    `json:"product_uri"`
	ManufacturerName string    `json:"manufacturer_name"`
	ProductName      string    `json:"product_name"`
	SoftwareVersion  string    `json:"software_version"`
	BuildNumber      string    `json:"build_number"`
	BuildDate        time.Time `json:"build_date"`
}

// Builder collects the pieces of a server configuration.
type Builder struct {
	KeyMaterial    *pki.KeyMaterial
	Endpoints      []endpoint.Descriptor
	TrustValidator *trust.Validator
	IdentityChain  *identity.Chain

	ApplicationName string
	ProductURI      string
	BuildInfo       BuildInfo

	// ApplicationURIFallback is used only when the certificate carries no URI.
	ApplicationURIFallback string
}

// ServerConfig is the assembled, immutable configuration handed to the server runtime.
type ServerConfig struct {
	applicationURI     string
	applicationName    string
	productURI         string
	buildInfo          BuildInfo
	endpoints          []endpoint.Descriptor
	certificateManager *pki.CertificateManager
	trustValidator     *trust.Validator
	identityChain      *identity.Chain
}

// Build validates the inputs and derives the application URI from the certificate.
func (b *Builder) Build() (*ServerConfig, error) {
	if b.KeyMaterial == nil {
		return nil, ErrMissingKeyMaterial
	}
	if len(b.Endpoints) == 0 {
		return nil, ErrMissingEndpoints
	}
	if b.TrustValidator == nil || b.IdentityChain == nil {
		return nil, ErrMissingValidator
	}

	leaf := b.KeyMaterial.Leaf()
	for _, d := range b.Endpoints {
		if d.Certificate == nil || !d.Certificate.Equal(leaf) {
			return nil, fmt.Errorf("endpoint %s is not bound to the server certificate", d.EndpointURL())
		}
	}

	applicationURI, err := pki.ApplicationURI(leaf)
	if err != nil {
		if b.ApplicationURIFallback == "" {
			return nil, ErrMissingApplicationURI
		}
		log.Warn().
			Str("application_uri", b.ApplicationURIFallback).
			Msg("Certificate has no application URI, using configured fallback")
		applicationURI = b.ApplicationURIFallback
	} else if b.ApplicationURIFallback != "" && b.ApplicationURIFallback != applicationURI {
		log.Warn().
			Str("certificate_uri", applicationURI).
			Str("configured_uri", b.ApplicationURIFallback).
			Msg("Configured application URI differs from the certificate, using the certificate")
	}

	productURI := valueOr(b.ProductURI, DefaultProductURI)

	info := b.BuildInfo
	info.ProductURI = valueOr(info.ProductURI, productURI)
	info.ManufacturerName = valueOr(info.ManufacturerName, DefaultManufacturer)
	info.ProductName = valueOr(info.ProductName, DefaultProductName)
	if info.BuildDate.IsZero() {
		info.BuildDate = time.Now().UTC()
	}

	cfg := &ServerConfig{
		applicationURI:     applicationURI,
		applicationName:    valueOr(b.ApplicationName, DefaultApplicationName),
		productURI:         productURI,
		buildInfo:          info,
		endpoints:          append([]endpoint.Descriptor{}, b.Endpoints...),
		certificateManager: pki.NewCertificateManager(b.KeyMaterial),
		trustValidator:     b.TrustValidator,
		identityChain:      b.IdentityChain,
	}

	log.Info().
		Str("application_uri", cfg.applicationURI).
		Str("product_uri", cfg.productURI).
		Int("endpoints", len(cfg.endpoints)).
		Msg("Server configuration assembled")

	return cfg, nil
}

func (c *ServerConfig) ApplicationURI() string {
	return c.applicationURI
}

func (c *ServerConfig) ApplicationName() string {
	return c.applicationName
}

func (c *ServerConfig) ProductURI() string {
	return c.productURI
}

func (c *ServerConfig) BuildInfo() BuildInfo {
	return c.buildInfo
}

// Endpoints returns a copy of the endpoint set in catalog order.
func (c *ServerConfig) Endpoints() []endpoint.Descriptor {
	return append([]endpoint.Descriptor{}, c.endpoints...)
}

func (c *ServerConfig) CertificateManager() *pki.CertificateManager {
	return c.certificateManager
}

func (c *ServerConfig) TrustValidator() *trust.Validator {
	return c.trustValidator
}

func (c *ServerConfig) IdentityChain() *identity.Chain {
	return c.identityChain
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
