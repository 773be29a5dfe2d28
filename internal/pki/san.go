package pki

import (
	"crypto/x509"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// ipv4Pattern matches strict dotted-quad IPv4 literals.
var ipv4Pattern = regexp.MustCompile(`^(([01]?\d\d?|2[0-4]\d|25[0-5])\.){3}([01]?\d\d?|2[0-4]\d|25[0-5])$`)

// ErrNoApplicationURI is returned when a certificate carries no URI subject alternative name.
var ErrNoApplicationURI = errors.New("certificate has no application URI")

// ClassifyHostnames splits resolved names into DNS names and IP addresses for the SAN set.
// Dotted-quad literals and IPv6 literals become IP entries, everything else a DNS name.
func ClassifyHostnames(names []string) (dnsNames []string, ips []net.IP) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		if ip := parseIPv4(name); ip != nil {
			ips = appendIP(ips, ip)
			continue
		}

		if strings.Contains(name, ":") {
			if ip := net.ParseIP(name); ip != nil {
				ips = appendIP(ips, ip)
				continue
			}
		}

		if !containsFold(dnsNames, name) {
			dnsNames = append(dnsNames, name)
		}
	}

	return dnsNames, ips
}

// parseIPv4 accepts the same literals as ipv4Pattern, including octets with
// leading zeros which net.ParseIP rejects.
func parseIPv4(name string) net.IP {
	if !ipv4Pattern.MatchString(name) {
		return nil
	}

	parts := strings.Split(name, ".")
	octets := make([]byte, 4)
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil
		}
		octets[i] = byte(v)
	}

	return net.IPv4(octets[0], octets[1], octets[2], octets[3])
}

// ApplicationURI returns the first URI subject alternative name of the certificate.
func ApplicationURI(cert *x509.Certificate) (string, error) {
	if cert == nil {
		return "", ErrNoApplicationURI
	}
	for _, uri := range cert.URIs {
		if uri != nil && uri.String() != "" {
			return uri.String(), nil
		}
	}
	return "", ErrNoApplicationURI
}

func appendIP(ips []net.IP, ip net.IP) []net.IP {
	for _, existing := range ips {
		if existing.Equal(ip) {
			return ips
		}
	}
	return append(ips, ip)
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
