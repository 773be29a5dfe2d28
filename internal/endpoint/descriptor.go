package endpoint

import (
	"crypto/x509"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Descriptor is one advertised combination of address, path and security configuration.
type Descriptor struct {
	Scheme        string
	BindAddress   string
	BindPort      int
	Hostname      string
	Path          string
	PolicyMode    PolicyMode
	Certificate   *x509.Certificate
	TokenPolicies []TokenPolicy
}

// Key identifies a descriptor within a catalog.
type Key struct {
	BindAddress string
	Hostname    string
	Path        string
	PolicyMode  PolicyMode
}

// Key returns the uniqueness key of the descriptor.
func (d Descriptor) Key() Key {
	return Key{
		BindAddress: d.BindAddress,
		Hostname:    d.Hostname,
		Path:        d.Path,
		PolicyMode:  d.PolicyMode,
	}
}

// EndpointURL is the address clients use to reach the endpoint.
func (d Descriptor) EndpointURL() string {
	u := url.URL{
		Scheme: d.Scheme,
		Host:   net.JoinHostPort(d.Hostname, strconv.Itoa(d.BindPort)),
		Path:   d.Path,
	}
	return u.String()
}

// ListenAddress is the local address the endpoint is served on.
func (d Descriptor) ListenAddress() string {
	return net.JoinHostPort(d.BindAddress, strconv.Itoa(d.BindPort))
}

// IsDiscovery reports whether the descriptor is an unsecured discovery endpoint.
func (d Descriptor) IsDiscovery() bool {
	return d.PolicyMode == Unsecured && strings.HasSuffix(d.Path, discoverySuffix)
}

func (d Descriptor) clone() Descriptor {
	d.TokenPolicies = append([]TokenPolicy{}, d.TokenPolicies...)
	return d
}
