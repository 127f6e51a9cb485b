package tlsutil

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	aead := map[uint16]bool{}
	for _, cs := range aeadSuites {
		aead[cs] = true
	}
	for _, cs := range cfg.CipherSuites {
		assert.True(t, aead[cs], "unexpected cipher suite %s", tls.CipherSuiteName(cs))
	}
}

func TestDefaultTLSConfig_Independent(t *testing.T) {
	a := DefaultTLSConfig()
	a.CipherSuites[0] = 0
	b := DefaultTLSConfig()
	assert.NotZero(t, b.CipherSuites[0])
}

func TestClientConfigFor(t *testing.T) {
	tests := []struct {
		addr       string
		serverName string
	}{
		{"redis.internal:6380", "redis.internal"},
		{"cache.example.com", "cache.example.com"},
		{"10.0.0.5:6379", ""},
		{"[::1]:6379", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			cfg := ClientConfigFor(tt.addr)
			assert.Equal(t, tt.serverName, cfg.ServerName)
			assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
		})
	}
}

func TestSecureHTTPClient(t *testing.T) {
	client := SecureHTTPClient(5 * time.Second)
	assert.Equal(t, 5*time.Second, client.Timeout)

	tr := SecureTransport()
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.True(t, tr.ForceAttemptHTTP2)
}
