// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr         string
	Issuer       string
	MasterSecret string

	// PostgresDSN enables the Postgres-backed stores when non-empty;
	// otherwise the in-memory stores are used (dev/test mode).
	PostgresDSN string

	// RedisAddr enables the Redis rate-limit store when non-empty.
	RedisAddr string

	// TwoFactorAdminBypass lets admin users confirm or disable 2FA without a
	// TOTP code. Off unless explicitly enabled.
	TwoFactorAdminBypass bool

	RateLimitDisabled bool

	// SecureCookies marks session cookies Secure. Enable behind TLS.
	SecureCookies bool

	SweepInterval time.Duration
}

// FromEnv reads configuration from environment variables, applying
// development defaults where safe.
func FromEnv() Config {
	cfg := Config{
		Addr:                 getEnv("AUTHGATE_ADDR", ":8080"),
		Issuer:               getEnv("AUTHGATE_ISSUER", "http://localhost:8080"),
		MasterSecret:         getEnv("AUTHGATE_MASTER_SECRET", "dev-secret-change-in-production"),
		PostgresDSN:          os.Getenv("AUTHGATE_POSTGRES_DSN"),
		RedisAddr:            os.Getenv("AUTHGATE_REDIS_ADDR"),
		TwoFactorAdminBypass: getBool("AUTHGATE_2FA_ADMIN_BYPASS"),
		RateLimitDisabled:    getBool("AUTHGATE_RATELIMIT_DISABLED"),
		SecureCookies:        getBool("AUTHGATE_SECURE_COOKIES"),
		SweepInterval:        24 * time.Hour,
	}
	if v := os.Getenv("AUTHGATE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
