package trust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPool(t *testing.T) {
	dir := newTrustDir(t)
	a := newSelfSigned(t, "a")
	b := newSelfSigned(t, "b")
	c := newSelfSigned(t, "c")

	writePEM(t, dir, PoolTrusted, "bundle.pem", a.cert, b.cert)
	writeDER(t, dir, PoolTrusted, c.cert)

	trusted := filepath.Join(dir, string(PoolTrusted))
	require.NoError(t, os.WriteFile(filepath.Join(trusted, "broken.crt"), []byte("not a certificate"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(trusted, "README.txt"), []byte("ignored"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(trusted, "nested.pem"), 0700))

	set, err := loadPool(trusted)
	require.NoError(t, err)
	assert.Len(t, set, 3)
	assert.True(t, set.contains(a.cert))
	assert.True(t, set.contains(b.cert))
	assert.True(t, set.contains(c.cert))
}

func TestParseCertificates(t *testing.T) {
	cert := newSelfSigned(t, "a").cert

	t.Run("der", func(t *testing.T) {
		certs, err := ParseCertificates(cert.Raw)
		require.NoError(t, err)
		require.Len(t, certs, 1)
		assert.True(t, certs[0].Equal(cert))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseCertificates([]byte("garbage"))
		require.Error(t, err)
	})
}

func TestEnsureLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pki")
	require.NoError(t, EnsureLayout(dir))
	require.NoError(t, EnsureLayout(dir), "creating the layout twice is a no-op")

	for _, pool := range Pools {
		info, err := os.Stat(filepath.Join(dir, string(pool)))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	require.NoError(t, checkLayout(dir))
}
