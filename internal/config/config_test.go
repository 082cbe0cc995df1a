package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PAGI_HOST", "PAGI_PORT", "PAGI_WORKERS", "PAGI_MAX_REQUESTS", "PAGI_TIMEOUT",
		"PAGI_MAX_HEADER_SIZE", "PAGI_MAX_HEADER_COUNT", "PAGI_MAX_BODY_SIZE",
		"PAGI_MAX_WS_FRAME_SIZE", "PAGI_MAX_RECEIVE_QUEUE", "PAGI_ACCESS_LOG_BUFFER_SIZE",
		"PAGI_ACCESS_LOG_FLUSH_INTERVAL", "PAGI_SHUTDOWN_GRACE_SECONDS",
		"PAGI_TLS_ENABLED", "PAGI_TLS_CERT_FILE", "PAGI_TLS_KEY_FILE", "PAGI_TLS_CA_FILE",
		"PAGI_TLS_ACME_EMAIL", "PAGI_TLS_ACME_DOMAIN",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, 0, cfg.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 16384, cfg.MaxHeaderSize)
	assert.Equal(t, 100, cfg.MaxHeaderCount)
	assert.Equal(t, int64(1<<20), cfg.MaxBodySize)
	assert.Equal(t, int64(1<<20), cfg.MaxWSFrameSize)
	assert.Equal(t, int64(1<<20), cfg.MaxReceiveQueue)
	assert.Equal(t, 100, cfg.AccessLogBufferSize)
	assert.Equal(t, 1*time.Second, cfg.AccessLogFlushInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGraceSeconds)
	assert.False(t, cfg.TLS.Enabled)
	assert.Equal(t, "http", cfg.Scheme())
}

func TestLoad_OverridesAndFractionalFlushInterval(t *testing.T) {
	clearEnv(t)
	os.Setenv("PAGI_PORT", "9443")
	os.Setenv("PAGI_WORKERS", "4")
	os.Setenv("PAGI_ACCESS_LOG_FLUSH_INTERVAL", "0.25")
	defer clearEnv(t)

	cfg := Load()
	assert.Equal(t, 9443, cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.AccessLogFlushInterval)
}

func TestLoad_ZeroFlushIntervalDisablesTimer(t *testing.T) {
	clearEnv(t)
	os.Setenv("PAGI_ACCESS_LOG_FLUSH_INTERVAL", "0")
	defer clearEnv(t)

	cfg := Load()
	assert.Equal(t, time.Duration(0), cfg.AccessLogFlushInterval)
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := &Config{
		Host: "127.0.0.1", Port: 70000,
		Timeout: time.Second, MaxHeaderSize: 1, MaxHeaderCount: 1,
		MaxBodySize: 1, MaxWSFrameSize: 1, MaxReceiveQueue: 1,
		ShutdownGraceSeconds: time.Second,
	}
	require.Error(t, Validate(cfg))
}

func TestValidate_TLSRequiresCertOrACME(t *testing.T) {
	cfg := &Config{
		Host: "127.0.0.1", Port: 8000,
		Timeout: time.Second, MaxHeaderSize: 1, MaxHeaderCount: 1,
		MaxBodySize: 1, MaxWSFrameSize: 1, MaxReceiveQueue: 1,
		ShutdownGraceSeconds: time.Second,
		TLS:                  TLS{Enabled: true},
	}
	require.Error(t, Validate(cfg))

	cfg.TLS.CertFile = "/etc/pagi/cert.pem"
	cfg.TLS.KeyFile = "/etc/pagi/key.pem"
	require.NoError(t, Validate(cfg))
}
