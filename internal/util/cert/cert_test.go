package cert

import (
	"crypto/tls"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smaller keys keep the tests fast
func newTestAuthority(t *testing.T) *Authority {
	t.Helper()

	ca, err := generateCA("test root", time.Hour, 1024)
	require.NoError(t, err)
	return ca
}

func TestLoadClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	ca := newTestAuthority(t)
	require.NoError(t, WriteFiles(dir, "ca", ca.CertPEM, ca.KeyPEM))

	leaf, err := ca.issue("coordinator", []string{"localhost", "127.0.0.1"}, false, time.Hour, 1024)
	require.NoError(t, err)
	require.NoError(t, WriteFiles(dir, "coordinator", leaf.CertPEM, leaf.KeyPEM))

	caFile := filepath.Join(dir, "ca.crt")

	cfg, err := LoadClientTLSConfig(caFile, "", "")
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	cfg, err = LoadClientTLSConfig(caFile, filepath.Join(dir, "coordinator.crt"), filepath.Join(dir, "coordinator.key"))
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)

	_, err = LoadClientTLSConfig(caFile, filepath.Join(dir, "coordinator.crt"), "")
	assert.Error(t, err)

	_, err = LoadClientTLSConfig(filepath.Join(dir, "missing.crt"), "", "")
	assert.Error(t, err)
}

func TestVerifyTLSConfigRejectsForeignCA(t *testing.T) {
	dir := t.TempDir()
	ca := newTestAuthority(t)
	other := newTestAuthority(t)
	require.NoError(t, WriteFiles(dir, "other", other.CertPEM, other.KeyPEM))

	leaf, err := ca.issue("signer-node", []string{"signer-1"}, true, time.Hour, 1024)
	require.NoError(t, err)
	require.NoError(t, WriteFiles(dir, "node", leaf.CertPEM, leaf.KeyPEM))

	err = VerifyTLSConfig(filepath.Join(dir, "node.crt"), filepath.Join(dir, "node.key"), filepath.Join(dir, "other.crt"))
	assert.Error(t, err)

	require.NoError(t, WriteFiles(dir, "ca", ca.CertPEM, ca.KeyPEM))
	assert.NoError(t, VerifyTLSConfig(filepath.Join(dir, "node.crt"), filepath.Join(dir, "node.key"), filepath.Join(dir, "ca.crt")))
}

func TestVerifyTLSConfigMismatchedKey(t *testing.T) {
	dir := t.TempDir()
	ca := newTestAuthority(t)
	require.NoError(t, WriteFiles(dir, "ca", ca.CertPEM, ca.KeyPEM))

	a, err := ca.issue("a", nil, false, time.Hour, 1024)
	require.NoError(t, err)
	b, err := ca.issue("b", nil, false, time.Hour, 1024)
	require.NoError(t, err)
	require.NoError(t, WriteFiles(dir, "mixed", a.CertPEM, b.KeyPEM))

	err = VerifyTLSConfig(filepath.Join(dir, "mixed.crt"), filepath.Join(dir, "mixed.key"), filepath.Join(dir, "ca.crt"))
	assert.Error(t, err)
}
