package trust

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/uabootstrap/internal/pki"
)

// Pool names the subdirectories of the trust directory.
type Pool string

const (
	PoolTrusted  Pool = "trusted"
	PoolRejected Pool = "rejected"
	PoolIssuers  Pool = "issuers"
)

// Pools lists every pool in the order they are loaded.
var Pools = []Pool{PoolTrusted, PoolRejected, PoolIssuers}

// ErrInvalidDirectoryLayout is returned when the trust directory or one of its pools is missing.
var ErrInvalidDirectoryLayout = errors.New("invalid trust directory layout")

var certificateExtensions = map[string]bool{
	".der": true,
	".cer": true,
	".crt": true,
	".pem": true,
}

// EnsureLayout creates the trust directory and its pool subdirectories.
func EnsureLayout(dir string) error {
	for _, pool := range Pools {
		if err := os.MkdirAll(filepath.Join(dir, string(pool)), 0700); err != nil {
			return fmt.Errorf("failed to create %s pool: %w", pool, err)
		}
	}
	return nil
}

func checkLayout(dir string) error {
	paths := []string{dir}
	for _, pool := range Pools {
		paths = append(paths, filepath.Join(dir, string(pool)))
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDirectoryLayout, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrInvalidDirectoryLayout, path)
		}
	}
	return nil
}

// certificateSet maps upper-case hex SHA-1 thumbprints to certificates.
type certificateSet map[string]*x509.Certificate

func (s certificateSet) contains(cert *x509.Certificate) bool {
	_, ok := s[pki.Thumbprint(cert)]
	return ok
}

func (s certificateSet) sorted() []*x509.Certificate {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	certs := make([]*x509.Certificate, 0, len(keys))
	for _, k := range keys {
		certs = append(certs, s[k])
	}
	return certs
}

// loadPool reads every certificate file in dir. Files that cannot be parsed are
// skipped with a warning so one bad file does not disable the whole pool.
func loadPool(dir string) (certificateSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirectoryLayout, err)
	}

	set := certificateSet{}
	for _, entry := range entries {
		if entry.IsDir() || !certificateExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable certificate file")
			continue
		}

		certs, err := ParseCertificates(data)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping invalid certificate file")
			continue
		}

		for _, cert := range certs {
			set[pki.Thumbprint(cert)] = cert
		}
	}

	return set, nil
}

// ParseCertificates decodes one or more PEM certificate blocks, or a single DER certificate.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	if len(certs) > 0 {
		return certs, nil
	}

	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return []*x509.Certificate{cert}, nil
}

// WriteCertificate stores a certificate in a pool as <thumbprint>.der.
func WriteCertificate(dir string, pool Pool, cert *x509.Certificate) (string, error) {
	path := filepath.Join(dir, string(pool), pki.Thumbprint(cert)+".der")
	if err := os.WriteFile(path, cert.Raw, 0600); err != nil {
		return "", fmt.Errorf("failed to write certificate to %s pool: %w", pool, err)
	}
	return path, nil
}
