package pki

import (
	"crypto/x509"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHostnames(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantDNS []string
		wantIPs []string
	}{
		{
			name:    "ipv4 literal and dns name",
			input:   []string{"192.168.1.5", "myhost.local"},
			wantDNS: []string{"myhost.local"},
			wantIPs: []string{"192.168.1.5"},
		},
		{
			name:    "out of range octet is a dns name",
			input:   []string{"256.1.1.1"},
			wantDNS: []string{"256.1.1.1"},
		},
		{
			name:    "leading zeros are accepted by the dotted quad pattern",
			input:   []string{"010.001.000.007"},
			wantIPs: []string{"10.1.0.7"},
		},
		{
			name:    "ipv6 literal",
			input:   []string{"2001:db8::5", "localhost"},
			wantDNS: []string{"localhost"},
			wantIPs: []string{"2001:db8::5"},
		},
		{
			name:    "duplicates and blanks removed",
			input:   []string{"host1", "HOST1", "", "10.0.0.1", "10.0.0.1"},
			wantDNS: []string{"host1"},
			wantIPs: []string{"10.0.0.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dnsNames, ips := ClassifyHostnames(tt.input)
			assert.Equal(t, tt.wantDNS, dnsNames)

			got := make([]string, 0, len(ips))
			for _, ip := range ips {
				got = append(got, ip.String())
			}
			if tt.wantIPs == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.wantIPs, got)
			}
		})
	}
}

func TestApplicationURI(t *testing.T) {
	t.Run("first uri is returned", func(t *testing.T) {
		uri, _ := url.Parse("urn:example:server")
		other, _ := url.Parse("urn:example:other")
		cert := &x509.Certificate{URIs: []*url.URL{uri, other}}

		got, err := ApplicationURI(cert)
		require.NoError(t, err)
		require.Equal(t, "urn:example:server", got)
	})

	t.Run("missing uri returns error", func(t *testing.T) {
		cert := &x509.Certificate{IPAddresses: []net.IP{net.ParseIP("10.0.0.1")}}

		_, err := ApplicationURI(cert)
		require.ErrorIs(t, err, ErrNoApplicationURI)
	})

	t.Run("nil certificate returns error", func(t *testing.T) {
		_, err := ApplicationURI(nil)
		require.ErrorIs(t, err, ErrNoApplicationURI)
	})
}
