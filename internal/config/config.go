// Package config loads the PAGI server's configuration surface from the
// environment, with fallback defaults per field, plus optional .env
// loading and struct-tag validation so a malformed deployment fails at
// boot instead of mid-traffic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/go-playground/validator/v10"
)

// TLS holds the optional TLS surface. Off by default; when Enabled, either
// (CertFile, KeyFile) or (ACMEEmail, ACMEDomain) must be set.
type TLS struct {
	Enabled    bool
	CertFile   string `validate:"required_without=ACMEDomain"`
	KeyFile    string `validate:"required_without=ACMEDomain"`
	CAFile     string
	ACMEEmail  string `validate:"required_with=ACMEDomain,omitempty,email"`
	ACMEDomain string
}

// Config holds all dynamic configuration for a PAGI server process.
type Config struct {
	Host string `validate:"required"`
	Port int    `validate:"gte=0,lte=65535"`

	Workers     int `validate:"gte=0"`
	MaxRequests int `validate:"gte=0"`

	Timeout time.Duration `validate:"gt=0"`

	MaxHeaderSize  int `validate:"gt=0"`
	MaxHeaderCount int `validate:"gt=0"`
	MaxBodySize    int64 `validate:"gt=0"`
	MaxWSFrameSize int64 `validate:"gt=0"`
	MaxReceiveQueue int64 `validate:"gt=0"`

	AccessLogBufferSize     int           `validate:"gte=0"`
	AccessLogFlushInterval  time.Duration `validate:"gte=0"`
	ShutdownGraceSeconds    time.Duration `validate:"gt=0"`

	TLS TLS
}

// Load reads a .env file if present (ignored if absent — it is a developer
// convenience, never a hard dependency), then the process environment, and
// validates the result. It panics on invalid configuration: unusable
// config should fail the boot, not surface as traffic errors later.
func Load() *Config {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := &Config{
		Host: getEnv("PAGI_HOST", "127.0.0.1"),
		Port: getEnvInt("PAGI_PORT", 8000),

		Workers:     getEnvInt("PAGI_WORKERS", 0),
		MaxRequests: getEnvInt("PAGI_MAX_REQUESTS", 0),

		Timeout: getEnvSeconds("PAGI_TIMEOUT", 30*time.Second),

		MaxHeaderSize:   getEnvInt("PAGI_MAX_HEADER_SIZE", 16384),
		MaxHeaderCount:  getEnvInt("PAGI_MAX_HEADER_COUNT", 100),
		MaxBodySize:     getEnvInt64("PAGI_MAX_BODY_SIZE", 1<<20),
		MaxWSFrameSize:  getEnvInt64("PAGI_MAX_WS_FRAME_SIZE", 1<<20),
		MaxReceiveQueue: getEnvInt64("PAGI_MAX_RECEIVE_QUEUE", 1<<20),

		AccessLogBufferSize:    getEnvInt("PAGI_ACCESS_LOG_BUFFER_SIZE", 100),
		AccessLogFlushInterval: getEnvFractionalSeconds("PAGI_ACCESS_LOG_FLUSH_INTERVAL", 1*time.Second),
		ShutdownGraceSeconds:   getEnvSeconds("PAGI_SHUTDOWN_GRACE_SECONDS", 10*time.Second),

		TLS: TLS{
			Enabled:    getEnvBool("PAGI_TLS_ENABLED", false),
			CertFile:   getEnv("PAGI_TLS_CERT_FILE", ""),
			KeyFile:    getEnv("PAGI_TLS_KEY_FILE", ""),
			CAFile:     getEnv("PAGI_TLS_CA_FILE", ""),
			ACMEEmail:  getEnv("PAGI_TLS_ACME_EMAIL", ""),
			ACMEDomain: getEnv("PAGI_TLS_ACME_DOMAIN", ""),
		},
	}

	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("FATAL: invalid PAGI configuration: %v", err))
	}
	return cfg
}

// Validate runs struct-tag validation over cfg, skipping the TLS block
// entirely when it is not enabled (an unconfigured TLS block is not an
// error — it simply never takes effect).
func Validate(cfg *Config) error {
	v := validator.New()
	if !cfg.TLS.Enabled {
		return v.StructExcept(cfg, "TLS")
	}
	return v.Struct(cfg)
}

// Scheme reports the scope scheme an HTTP conversation should report,
// given whether TLS is active.
func (c *Config) Scheme() string {
	if c.TLS.Enabled {
		return "https"
	}
	return "http"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvSeconds accepts a plain integer number of seconds.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// getEnvFractionalSeconds accepts fractional seconds ("0.5"); an integer
// value also parses correctly via ParseFloat.
func getEnvFractionalSeconds(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(f * float64(time.Second))
}
