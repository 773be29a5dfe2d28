package hostname

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// Source provides the set of hostnames and address literals a server can be reached by.
type Source interface {
	Hostnames() ([]string, error)
}

// Static is a fixed list of hostnames, used when the operator pins the advertised names.
type Static []string

// Hostnames returns the configured names with duplicates and blanks removed.
func (s Static) Hostnames() ([]string, error) {
	return normalize(s), nil
}

// Union merges the names of several sources in order, typically one Local per bind address.
type Union []Source

// Hostnames returns the names of every source with duplicates removed. Any source
// failing fails the union.
func (u Union) Hostnames() ([]string, error) {
	var names []string
	for _, src := range u {
		more, err := src.Hostnames()
		if err != nil {
			return nil, err
		}
		names = append(names, more...)
	}
	return normalize(names), nil
}

// Local resolves the names of the machine the process runs on.
//
// For the wildcard bind address every interface address is included along with
// any names the resolver maps back to it. For a specific address only that
// address and its reverse names are returned. The OS hostname is always first.
type Local struct {
	BindAddress     string
	IncludeLoopback bool

	// overridable for tests
	hostname   func() (string, error)
	addrs      func() ([]net.Addr, error)
	lookupAddr func(string) ([]string, error)
}

// NewLocal creates a Local source for the given bind address.
func NewLocal(bindAddress string, includeLoopback bool) *Local {
	return &Local{
		BindAddress:     bindAddress,
		IncludeLoopback: includeLoopback,
		hostname:        os.Hostname,
		addrs:           net.InterfaceAddrs,
		lookupAddr:      net.LookupAddr,
	}
}

// Hostnames returns the OS hostname plus every address and reverse name reachable
// through the bind address.
func (l *Local) Hostnames() ([]string, error) {
	var names []string

	host, err := l.hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to read hostname: %w", err)
	}
	names = append(names, host)

	ips, err := l.bindIPs()
	if err != nil {
		return nil, err
	}

	for _, ip := range ips {
		if ip.IsLoopback() && !l.IncludeLoopback {
			continue
		}

		names = append(names, ip.String())

		reverse, err := l.lookupAddr(ip.String())
		if err != nil {
			// unresolvable addresses are still advertised as literals
			log.Debug().Err(err).Str("ip", ip.String()).Msg("reverse lookup failed")
			continue
		}
		for _, name := range reverse {
			names = append(names, strings.TrimSuffix(name, "."))
		}
	}

	return normalize(names), nil
}

func (l *Local) bindIPs() ([]net.IP, error) {
	bind := net.ParseIP(l.BindAddress)
	if bind == nil {
		return nil, fmt.Errorf("invalid bind address %q", l.BindAddress)
	}

	if !bind.IsUnspecified() {
		return []net.IP{bind}, nil
	}

	addrs, err := l.addrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLinkLocalUnicast() {
			continue
		}
		// wildcard IPv4 binds only answer on IPv4 interfaces
		if bind.To4() != nil && ip.To4() == nil {
			continue
		}
		ips = append(ips, ip)
	}

	return ips, nil
}

func normalize(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}
