package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wolfeidau/uabootstrap/internal/endpoint"
	"github.com/wolfeidau/uabootstrap/internal/pki"
	"github.com/wolfeidau/uabootstrap/internal/trust"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSecurityDir holds the key store and the trust directory.
	DefaultSecurityDir = "security"

	// DefaultTrustDir is the trust directory name inside the security directory.
	DefaultTrustDir = "pki"

	CertificateModeTrusted = "trusted"
	CertificateModeAny     = "any"
)

// Config is the server configuration file.
type Config struct {
	SecurityDir string         `yaml:"security_dir" validate:"required"`
	KeyStore    KeyStoreConfig `yaml:"keystore"`
	Subject     SubjectConfig  `yaml:"subject"`
	Trust       TrustConfig    `yaml:"trust"`
	Endpoints   EndpointConfig `yaml:"endpoints"`
	Identity    IdentityConfig `yaml:"identity"`
	Application AppConfig      `yaml:"application"`
}

type KeyStoreConfig struct {
	Path     string        `yaml:"path"`
	Alias    string        `yaml:"alias" validate:"required"`
	KeyBits  int           `yaml:"key_bits" validate:"min=2048"`
	Validity time.Duration `yaml:"validity"`

	// CAKey and CACert issue the server certificate from a CA instead of self-signing.
	CAKey  string `yaml:"ca_key" validate:"required_with=CACert"`
	CACert string `yaml:"ca_cert" validate:"required_with=CAKey"`
}

type SubjectConfig struct {
	CommonName         string   `yaml:"common_name" validate:"required"`
	Organization       string   `yaml:"organization"`
	OrganizationalUnit string   `yaml:"organizational_unit"`
	Locality           string   `yaml:"locality"`
	State              string   `yaml:"state"`
	CountryCode        string   `yaml:"country_code" validate:"omitempty,len=2"`
	ApplicationURI     string   `yaml:"application_uri" validate:"omitempty,uri"`
	DNSNames           []string `yaml:"dns_names" validate:"dive,required"`
	IPAddresses        []string `yaml:"ip_addresses" validate:"dive,ip"`
}

// TrustConfig locates the trust directory. RecordRejected is opt-in and writes at most
// RecordLimit untrusted certificates into the rejected pool.
type TrustConfig struct {
	Dir            string `yaml:"dir"`
	RecordRejected bool   `yaml:"record_rejected"`
	RecordLimit    int    `yaml:"record_limit" validate:"min=0"`
}

type EndpointConfig struct {
	BindAddresses   []string `yaml:"bind_addresses" validate:"required,min=1,dive,ip"`
	Hostnames       []string `yaml:"hostnames" validate:"dive,required"`
	IncludeLoopback bool     `yaml:"include_loopback"`
	Port            int      `yaml:"port" validate:"min=1,max=65535"`
	Path            string   `yaml:"path"`
	Scheme          string   `yaml:"scheme" validate:"required"`
	Security        []string `yaml:"security" validate:"dive,policy_mode"`
	TokenPolicies   []string `yaml:"token_policies" validate:"dive,oneof=Anonymous Username X509 IssuedToken"`
}

type IdentityConfig struct {
	AllowAnonymous  bool              `yaml:"allow_anonymous"`
	Users           map[string]string `yaml:"users" validate:"dive,required"`
	CertificateMode string            `yaml:"certificate_mode" validate:"oneof=trusted any"`
	Tokens          TokenConfig       `yaml:"tokens"`
}

// TokenConfig enables issued token authentication when PublicKeyFile is set.
type TokenConfig struct {
	PublicKeyFile string `yaml:"public_key_file"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	ProductURI  string `yaml:"product_uri" validate:"omitempty,uri"`
	FallbackURI string `yaml:"fallback_uri" validate:"omitempty,uri"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	subject := pki.DefaultSubject()

	return &Config{
		SecurityDir: DefaultSecurityDir,
		KeyStore: KeyStoreConfig{
			Alias:    pki.DefaultAlias,
			KeyBits:  pki.MinKeyBits,
			Validity: pki.DefaultValidity,
		},
		Subject: SubjectConfig{
			CommonName:         subject.CommonName,
			Organization:       subject.Organization,
			OrganizationalUnit: subject.OrganizationalUnit,
			Locality:           subject.Locality,
			State:              subject.State,
			CountryCode:        subject.CountryCode,
		},
		Trust: TrustConfig{
			RecordLimit: trust.DefaultRecordLimit,
		},
		Endpoints: EndpointConfig{
			BindAddresses: []string{endpoint.DefaultBindAddress},
			Port:          endpoint.DefaultPort,
			Path:          endpoint.DefaultPath,
			Scheme:        endpoint.DefaultScheme,
			Security: []string{
				endpoint.Unsecured.String(),
				endpoint.Basic256Sha256SignAndEncrypt.String(),
			},
		},
		Identity: IdentityConfig{
			AllowAnonymous:  true,
			CertificateMode: CertificateModeTrusted,
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	_ = validate.RegisterValidation("policy_mode", validatePolicyMode)

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func validatePolicyMode(fl validator.FieldLevel) bool {
	_, err := endpoint.ParsePolicyMode(fl.Field().String())
	return err == nil
}

// KeyStorePath returns the key store file, defaulting to a file in the security directory.
func (c *Config) KeyStorePath() string {
	if c.KeyStore.Path != "" {
		return c.KeyStore.Path
	}
	return filepath.Join(c.SecurityDir, pki.DefaultKeyStoreFile)
}

// TrustDir returns the trust directory, defaulting to a directory in the security directory.
func (c *Config) TrustDir() string {
	if c.Trust.Dir != "" {
		return c.Trust.Dir
	}
	return filepath.Join(c.SecurityDir, DefaultTrustDir)
}

// PolicyModes parses the configured security pairs.
func (c *Config) PolicyModes() ([]endpoint.PolicyMode, error) {
	pairs := make([]endpoint.PolicyMode, 0, len(c.Endpoints.Security))
	for _, s := range c.Endpoints.Security {
		pm, err := endpoint.ParsePolicyMode(s)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pm)
	}
	return pairs, nil
}

// TokenPolicies returns the configured token policy override, if any.
func (c *Config) TokenPolicies() []endpoint.TokenPolicy {
	policies := make([]endpoint.TokenPolicy, 0, len(c.Endpoints.TokenPolicies))
	for _, p := range c.Endpoints.TokenPolicies {
		policies = append(policies, endpoint.TokenPolicy(p))
	}
	return policies
}

// CertificateSubject converts the subject section for certificate generation.
func (c *Config) CertificateSubject() pki.CertificateSubject {
	return pki.CertificateSubject{
		CommonName:         c.Subject.CommonName,
		Organization:       c.Subject.Organization,
		OrganizationalUnit: c.Subject.OrganizationalUnit,
		Locality:           c.Subject.Locality,
		State:              c.Subject.State,
		CountryCode:        c.Subject.CountryCode,
		ApplicationURI:     c.Subject.ApplicationURI,
		DNSNames:           append([]string{}, c.Subject.DNSNames...),
		IPAddresses:        append([]string{}, c.Subject.IPAddresses...),
	}
}
