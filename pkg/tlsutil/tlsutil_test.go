package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/pkg/security"
)

// writeTestCert writes a self-signed certificate and key into a temp dir.
func writeTestCert(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Test Org"}, CommonName: "localhost"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}), 0644))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}), 0600))

	return certFile, keyFile
}

func TestLoadClientTLSConfig_Disabled(t *testing.T) {
	cfg, err := LoadClientTLSConfig(security.ClientTLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadClientTLSConfig_Defaults(t *testing.T) {
	cfg, err := LoadClientTLSConfig(security.ClientTLSConfig{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotNil(t, cfg.RootCAs)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Empty(t, cfg.Certificates)
}

func TestLoadClientTLSConfig_CAFileAndMTLS(t *testing.T) {
	certFile, keyFile := writeTestCert(t)

	cfg, err := LoadClientTLSConfig(security.ClientTLSConfig{
		Enabled:    true,
		CAFiles:    []string{certFile},
		MinVersion: "1.3",
		ServerName: "gcmb.io",
		MTLS:       security.ClientMTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile},
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.Equal(t, "gcmb.io", cfg.ServerName)
	assert.Len(t, cfg.Certificates, 1)
}

func TestLoadClientTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0644))

	tests := []struct {
		name string
		cfg  security.ClientTLSConfig
	}{
		{"missing CA file", security.ClientTLSConfig{Enabled: true, CAFiles: []string{filepath.Join(dir, "nope.pem")}}},
		{"invalid PEM", security.ClientTLSConfig{Enabled: true, CAFiles: []string{garbage}}},
		{"missing client cert", security.ClientTLSConfig{Enabled: true, MTLS: security.ClientMTLSConfig{
			Enabled: true, CertFile: filepath.Join(dir, "c.pem"), KeyFile: filepath.Join(dir, "k.pem"),
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadClientTLSConfig(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err))
		})
	}
}
