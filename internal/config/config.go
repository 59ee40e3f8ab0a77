// Package config handles runtime settings for the API server, with
// development defaults overridden by MEMORIO_* environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds runtime settings for the memorio API server.
//
// Fields:
//   - Addr: bind address for the HTTP endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty runs the in-memory stores.
//   - SessionSecret: HMAC secret for signing session JWTs (HS256). Do not
//     use the development default in prod.
//   - SessionTTL: issued session lifetime.
//   - RatePerSec / RateBurst: per-client HTTP rate limit.
//   - MaxBodyBytes: request body cap.
type Config struct {
	Addr          string
	DatabaseDSN   string
	SessionSecret string
	SessionTTL    time.Duration
	RatePerSec    float64
	RateBurst     int
	MaxBodyBytes  int64
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.DatabaseDSN = ""
	c.SessionSecret = "dev-session-secret"
	c.SessionTTL = 12 * time.Hour
	c.RatePerSec = 50
	c.RateBurst = 100
	c.MaxBodyBytes = 1 << 20
}

// Load builds a Config by applying defaults and overlaying environment
// variables.
func Load() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.loadEnv()
	return cfg
}

func (c *Config) loadEnv() {
	if v := os.Getenv("MEMORIO_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("MEMORIO_PG_DSN"); v != "" {
		c.DatabaseDSN = v
	}
	if v := os.Getenv("MEMORIO_SESSION_SECRET"); v != "" {
		c.SessionSecret = v
	}
	if v := os.Getenv("MEMORIO_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SessionTTL = d
		}
	}
	if v := os.Getenv("MEMORIO_RATE_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RatePerSec = f
		}
	}
	if v := os.Getenv("MEMORIO_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateBurst = n
		}
	}
	if v := os.Getenv("MEMORIO_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxBodyBytes = n
		}
	}
}
