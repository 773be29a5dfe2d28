package pki

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/uabootstrap/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"
	"software.sslmate.com/src/go-pkcs12"
)

const (
	// DefaultAlias is the entry name the server key and chain are stored under.
	DefaultAlias = "server-ai"

	// DefaultKeyStoreFile is the key store file name inside the security directory.
	DefaultKeyStoreFile = "server-keystore.yaml"

	keyStoreVersion = 1
)

// Sentinel errors
var (
	// ErrBadPassphrase is returned when the key store cannot be decrypted with the passphrase.
	ErrBadPassphrase = errors.New("key store passphrase is incorrect")

	// ErrCorruptStore is returned when the key store file cannot be parsed.
	ErrCorruptStore = errors.New("key store is corrupt")

	// ErrMissingAlias is returned when the key store opens but has no usable entry for the alias.
	ErrMissingAlias = errors.New("key store alias not found")

	// ErrGenerationFailure is returned when new key material cannot be created or persisted.
	ErrGenerationFailure = errors.New("key material generation failed")
)

// keyStoreFile is the on-disk container. Each entry is a PKCS#12 bundle
// encrypted with the store passphrase.
type keyStoreFile struct {
	Version int                      `yaml:"version"`
	Entries map[string]keyStoreEntry `yaml:"entries"`
}

type keyStoreEntry struct {
	CreatedAt time.Time `yaml:"created_at"`
	PKCS12    string    `yaml:"pkcs12"`
}

// KeyStore loads the server key material from a file, generating and persisting it
// on first use so that the same identity survives restarts.
type KeyStore struct {
	path       string
	passphrase string
	alias      string
	generator  *Generator
}

// KeyStoreOption configures a KeyStore.
type KeyStoreOption func(*KeyStore)

// WithAlias overrides the entry name used inside the key store.
func WithAlias(alias string) KeyStoreOption {
	return func(ks *KeyStore) {
		ks.alias = alias
	}
}

// NewKeyStore creates a KeyStore for the file at path. The generator is only used
// when the file does not exist.
func NewKeyStore(path, passphrase string, generator *Generator, opts ...KeyStoreOption) *KeyStore {
	ks := &KeyStore{
		path:       path,
		passphrase: passphrase,
		alias:      DefaultAlias,
		generator:  generator,
	}
	for _, opt := range opts {
		opt(ks)
	}
	return ks
}

// Path returns the key store file location.
func (ks *KeyStore) Path() string {
	return ks.path
}

// Exists reports whether the key store file is present.
func (ks *KeyStore) Exists() bool {
	_, err := os.Stat(ks.path)
	return err == nil
}

// Load returns the key material held under the alias. When no key store exists a new
// key and certificate are generated and written exactly once.
func (ks *KeyStore) Load() (*KeyMaterial, error) {
	log.Info().Str("path", ks.path).Str("alias", ks.alias).Msg("Loading key store")

	material, outcome, err := ks.load()

	telemetry.GetMetrics().KeyStoreLoadsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))

	return material, err
}

func (ks *KeyStore) load() (*KeyMaterial, string, error) {
	data, err := os.ReadFile(ks.path)
	if errors.Is(err, os.ErrNotExist) {
		material, err := ks.create()
		if err != nil {
			return nil, "error", err
		}
		return material, "generated", nil
	}
	if err != nil {
		return nil, "error", fmt.Errorf("%w: failed to read %s: %v", ErrCorruptStore, ks.path, err)
	}

	material, err := ks.open(data)
	if err != nil {
		return nil, "error", err
	}
	return material, "loaded", nil
}

func (ks *KeyStore) open(data []byte) (*KeyMaterial, error) {
	var file keyStoreFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if file.Version != keyStoreVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptStore, file.Version)
	}

	entry, ok := file.Entries[ks.alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingAlias, ks.alias)
	}

	pfx, err := base64.StdEncoding.DecodeString(entry.PKCS12)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q is not valid base64: %v", ErrCorruptStore, ks.alias, err)
	}

	key, leaf, caCerts, err := pkcs12.DecodeChain(pfx, ks.passphrase)
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return nil, ErrBadPassphrase
	}
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q: %v", ErrCorruptStore, ks.alias, err)
	}

	// an entry can decode without a key or certificate; treat that as absent
	if key == nil || leaf == nil {
		return nil, fmt.Errorf("%w: entry %q has no key or certificate", ErrMissingAlias, ks.alias)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported private key type %T", ErrCorruptStore, key)
	}

	material, err := NewKeyMaterial(signer, append([]*x509.Certificate{leaf}, caCerts...))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}

	log.Info().
		Str("subject", leaf.Subject.String()).
		Str("fingerprint", material.Fingerprint()).
		Time("not_after", leaf.NotAfter).
		Msg("Loaded server certificate")

	return material, nil
}

func (ks *KeyStore) create() (*KeyMaterial, error) {
	if ks.generator == nil {
		return nil, fmt.Errorf("%w: no generator configured for %s", ErrGenerationFailure, ks.path)
	}

	material, err := ks.generator.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}

	chain := material.Chain()
	pfx, err := pkcs12.Modern.Encode(material.PrivateKey(), chain[0], chain[1:], ks.passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode PKCS#12: %v", ErrGenerationFailure, err)
	}

	file := keyStoreFile{
		Version: keyStoreVersion,
		Entries: map[string]keyStoreEntry{
			ks.alias: {
				CreatedAt: time.Now().UTC(),
				PKCS12:    base64.StdEncoding.EncodeToString(pfx),
			},
		},
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode key store: %v", ErrGenerationFailure, err)
	}

	if err := writeFileAtomic(ks.path, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}

	log.Info().
		Str("path", ks.path).
		Str("fingerprint", material.Fingerprint()).
		Msg("Generated and saved key store")

	return material, nil
}

// writeFileAtomic writes data next to path and renames it into place so a crash
// never leaves a half-written key store behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create key store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync key store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key store: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set key store permissions: %w", err)
	}

	return os.Rename(tmpName, path)
}
