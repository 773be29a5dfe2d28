package trust

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/uabootstrap/internal/pki"
	"github.com/wolfeidau/uabootstrap/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
)

// Reason explains why a chain was rejected.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonEmptyChain   Reason = "empty_chain"
	ReasonRejected     Reason = "rejected"
	ReasonUntrusted    Reason = "untrusted"
	ReasonExpired      Reason = "expired"
	ReasonNotYetValid  Reason = "not_yet_valid"
	ReasonInvalidChain Reason = "invalid_chain"
)

// Decision is the outcome of validating a peer certificate chain.
type Decision struct {
	Accepted bool
	Reason   Reason
	Detail   string
}

func accept() Decision {
	return Decision{Accepted: true}
}

func reject(reason Reason, format string, args ...any) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Err converts a rejection into an error, nil when accepted.
func (d Decision) Err() error {
	if d.Accepted {
		return nil
	}
	return fmt.Errorf("certificate chain rejected (%s): %s", d.Reason, d.Detail)
}

// snapshot is an immutable view of the trust directory.
type snapshot struct {
	trusted       certificateSet
	rejected      certificateSet
	issuers       certificateSet
	roots         *x509.CertPool
	intermediates *x509.CertPool
}

// Validator checks peer certificate chains against a directory trust store.
// Validate is safe for concurrent use; Reload publishes a new snapshot atomically.
type Validator struct {
	dir            string
	state          *atomic.Pointer[snapshot]
	reloadMu       sync.Mutex
	recordMu       sync.Mutex
	recordRejected bool
	recordLimit    int
	now            func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// DefaultRecordLimit caps the rejected pool when recording is enabled without a limit.
const DefaultRecordLimit = 100

// WithRecordRejected writes untrusted leaf certificates into the rejected pool so an
// operator can review them and move them to the trusted pool. Recording stops once the
// rejected pool holds limit files; a limit below one uses DefaultRecordLimit.
func WithRecordRejected(limit int) Option {
	return func(v *Validator) {
		if limit < 1 {
			limit = DefaultRecordLimit
		}
		v.recordRejected = true
		v.recordLimit = limit
	}
}

// WithClock overrides the time used to check validity periods.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator loads the trust directory. The directory must contain the trusted,
// rejected and issuers subdirectories.
func NewValidator(dir string, opts ...Option) (*Validator, error) {
	v := &Validator{
		dir:   dir,
		state: atomic.NewPointer[snapshot](nil),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := v.Reload(); err != nil {
		return nil, err
	}

	return v, nil
}

// Dir returns the trust directory.
func (v *Validator) Dir() string {
	return v.dir
}

// Reload rereads all pools from disk. On failure the previous snapshot stays active.
func (v *Validator) Reload() error {
	v.reloadMu.Lock()
	defer v.reloadMu.Unlock()

	if err := checkLayout(v.dir); err != nil {
		return err
	}

	pools := make(map[Pool]certificateSet, len(Pools))
	for _, pool := range Pools {
		set, err := loadPool(filepath.Join(v.dir, string(pool)))
		if err != nil {
			return err
		}
		pools[pool] = set
	}

	next := &snapshot{
		trusted:       pools[PoolTrusted],
		rejected:      pools[PoolRejected],
		issuers:       pools[PoolIssuers],
		roots:         x509.NewCertPool(),
		intermediates: x509.NewCertPool(),
	}

	for _, cert := range next.trusted {
		next.roots.AddCert(cert)
	}
	for _, cert := range next.issuers {
		if isSelfSigned(cert) {
			next.roots.AddCert(cert)
		} else {
			next.intermediates.AddCert(cert)
		}
	}

	v.state.Store(next)

	ctx := context.Background()
	m := telemetry.GetMetrics()
	m.TrustReloadsTotal.Add(ctx, 1)
	for pool, set := range pools {
		m.TrustPoolSize.Record(ctx, int64(len(set)), metric.WithAttributes(attribute.String("pool", string(pool))))
	}

	log.Info().
		Str("dir", v.dir).
		Int("trusted", len(next.trusted)).
		Int("rejected", len(next.rejected)).
		Int("issuers", len(next.issuers)).
		Msg("Loaded trust directory")

	return nil
}

// Certificates returns the certificates in a pool ordered by thumbprint.
func (v *Validator) Certificates(pool Pool) []*x509.Certificate {
	s := v.state.Load()
	switch pool {
	case PoolTrusted:
		return s.trusted.sorted()
	case PoolRejected:
		return s.rejected.sorted()
	case PoolIssuers:
		return s.issuers.sorted()
	default:
		return nil
	}
}

// Validate decides whether a peer chain, leaf first, is trusted. A chain is accepted
// when no member is in the rejected pool, the leaf is within its validity period and
// a verified path to a root contains a certificate from the trusted pool.
func (v *Validator) Validate(chain []*x509.Certificate) Decision {
	decision := v.validate(chain)

	telemetry.GetMetrics().RecordTrustDecision(context.Background(), decision.Accepted, string(decision.Reason))

	if !decision.Accepted {
		event := log.Warn().Str("reason", string(decision.Reason)).Str("detail", decision.Detail)
		if len(chain) > 0 && chain[0] != nil {
			event = event.Str("subject", chain[0].Subject.String()).Str("thumbprint", pki.Thumbprint(chain[0]))
		}
		event.Msg("Rejected peer certificate")
	}

	return decision
}

func (v *Validator) validate(chain []*x509.Certificate) Decision {
	if len(chain) == 0 || chain[0] == nil {
		return reject(ReasonEmptyChain, "no certificates presented")
	}

	s := v.state.Load()

	for _, cert := range chain {
		if cert == nil {
			return reject(ReasonInvalidChain, "chain contains an empty certificate")
		}
		if s.rejected.contains(cert) {
			return reject(ReasonRejected, "%s is in the rejected pool", cert.Subject)
		}
	}

	leaf := chain[0]
	now := v.now()
	if now.Before(leaf.NotBefore) {
		return reject(ReasonNotYetValid, "valid from %s", leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		return reject(ReasonExpired, "expired at %s", leaf.NotAfter.Format(time.RFC3339))
	}

	intermediates := s.intermediates.Clone()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	verified, err := leaf.Verify(x509.VerifyOptions{
		Roots:         s.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		var unknown x509.UnknownAuthorityError
		if errors.As(err, &unknown) {
			v.record(leaf)
			return reject(ReasonUntrusted, "%v", err)
		}
		var invalid x509.CertificateInvalidError
		if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
			return reject(ReasonExpired, "%v", err)
		}
		return reject(ReasonInvalidChain, "%v", err)
	}

	for _, path := range verified {
		for _, cert := range path {
			if s.trusted.contains(cert) {
				return accept()
			}
		}
	}

	v.record(leaf)
	return reject(ReasonUntrusted, "no certificate in the chain is trusted")
}

func (v *Validator) record(leaf *x509.Certificate) {
	if !v.recordRejected {
		return
	}

	v.recordMu.Lock()
	defer v.recordMu.Unlock()

	entries, err := os.ReadDir(filepath.Join(v.dir, string(PoolRejected)))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read rejected pool")
		return
	}
	if len(entries) >= v.recordLimit {
		log.Warn().Int("limit", v.recordLimit).Str("thumbprint", pki.Thumbprint(leaf)).Msg("Rejected pool is full, certificate not recorded")
		return
	}

	path, err := WriteCertificate(v.dir, PoolRejected, leaf)
	if err != nil {
		log.Error().Err(err).Msg("Failed to record rejected certificate")
		return
	}
	log.Info().Str("path", path).Msg("Recorded rejected certificate for review")
}

func isSelfSigned(cert *x509.Certificate) bool {
	return cert.CheckSignatureFrom(cert) == nil
}
