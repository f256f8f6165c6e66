// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string
	Provider string // webhook path segment served by this instance (case-insensitive)

	// Upstream endpoints
	IdentityURL     string
	MessageURL      string
	UpstreamTimeout time.Duration
	TokenSkew       time.Duration
	MaxBodyBytes    int64
	ErrcodePath     string // JMESPath applied to upstream bodies for classification

	// Tenant sources (first configured wins: DatabaseURL, TenantsFile, TenantSeedJSON)
	TenantsFile    string
	TenantSeedJSON string

	// Optional inbound JWT auth
	Issuer   string
	Audience string
	JWKSURL  string

	// Redis & Postgres
	RedisURL     string
	ReplayWindow time.Duration
	DatabaseURL  string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:             env("RELAY_ENV", "dev"),
		HTTPAddr:        env("RELAY_HTTP_ADDR", ":8080"),
		Provider:        env("RELAY_PROVIDER", "workwechat"),
		IdentityURL:     env("IDENTITY_URL", "https://qyapi.weixin.qq.com/cgi-bin/gettoken"),
		MessageURL:      env("MESSAGE_URL", "https://qyapi.weixin.qq.com/cgi-bin/message/send"),
		UpstreamTimeout: envPositiveDur("UPSTREAM_TIMEOUT_SEC", 15) * time.Second,
		TokenSkew:       envDur("TOKEN_SKEW_SEC", 20) * time.Second,
		MaxBodyBytes:    envInt64("MAX_BODY_BYTES", 1<<20),
		ErrcodePath:     env("ERRCODE_PATH", "errcode"),
		TenantsFile:     env("TENANTS_FILE", ""),
		TenantSeedJSON:  env("TENANT_SEED_JSON", ""),
		Issuer:          env("OIDC_ISSUER", ""),
		Audience:        env("OIDC_AUDIENCE", ""),
		JWKSURL:         env("JWKS_URL", ""),
		RedisURL:        env("REDIS_URL", ""),
		ReplayWindow:    envPositiveDur("REPLAY_WINDOW_SEC", 300) * time.Second,
		DatabaseURL:     env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" && cfg.TenantsFile == "" && cfg.TenantSeedJSON == "" {
		log.Println("[WARN] no tenant source configured (DATABASE_URL, TENANTS_FILE, TENANT_SEED_JSON); every key will be rejected")
	}
	return cfg
}

// AuthEnabled reports whether inbound callers must present a bearer JWT.
func (c Config) AuthEnabled() bool { return c.Issuer != "" && c.JWKSURL != "" }

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return time.Duration(i)
		}
	}
	return time.Duration(def)
}

// envPositiveDur is envDur for settings where zero means unbounded.
func envPositiveDur(k string, def int) time.Duration {
	if d := envDur(k, def); d > 0 {
		return d
	}
	return time.Duration(def)
}
