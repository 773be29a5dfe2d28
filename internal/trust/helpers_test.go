package trust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testCert struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

var serial int64

func issue(t *testing.T, cn string, isCA bool, parent *testCert, notBefore, notAfter time.Time) *testCert {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial++
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	if isCA {
		template.KeyUsage |= x509.KeyUsageCertSign
	}

	issuerCert, issuerKey := template, key
	if parent != nil {
		issuerCert, issuerKey = parent.cert, parent.key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, issuerCert, &key.PublicKey, issuerKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &testCert{cert: cert, key: key}
}

func newSelfSigned(t *testing.T, cn string) *testCert {
	t.Helper()
	return issue(t, cn, true, nil, time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
}

func newCA(t *testing.T, cn string) *testCert {
	t.Helper()
	return issue(t, cn, true, nil, time.Now().Add(-time.Hour), time.Now().Add(48*time.Hour))
}

func newLeaf(t *testing.T, cn string, ca *testCert) *testCert {
	t.Helper()
	return issue(t, cn, false, ca, time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
}

func newTrustDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "pki")
	require.NoError(t, EnsureLayout(dir))
	return dir
}

func writePEM(t *testing.T, dir string, pool Pool, name string, certs ...*x509.Certificate) {
	t.Helper()

	var data []byte
	for _, cert := range certs {
		data = append(data, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, string(pool), name), data, 0600))
}

func writeDER(t *testing.T, dir string, pool Pool, cert *x509.Certificate) {
	t.Helper()
	_, err := WriteCertificate(dir, pool, cert)
	require.NoError(t, err)
}
