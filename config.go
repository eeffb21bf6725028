package perch

import (
	"errors"
	"strings"
	"time"
)

// Config groups every tunable of the driver and its supporting stores.
// Configure once, pass to [Builder.WithConfig], and treat as immutable
// afterwards.
type Config struct {
	Cookie  CookieConfig
	Session SessionConfig
	Login   LoginConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the two-tier credential cache. The local tier is a
// directory of per-identity blob files; the remote tier is an optional Redis
// keyspace with a TTL.
type CookieConfig struct {
	// Dir is the local-tier directory. Created on first use.
	Dir string
	// FileSuffix is appended to the normalized identity for both the local
	// filename and the remote key, e.g. ".json".
	FileSuffix string
	// RedisNamespace prefixes remote keys: "<namespace>:<identity><suffix>".
	RedisNamespace string
	// TTL bounds the remote copy's lifetime. The local copy never expires.
	TTL time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the in-memory session registry.
type SessionConfig struct {
	// TTL enables lazy expiry of abandoned login sessions, checked on access.
	// Zero retains sessions until explicit removal, which is the baseline
	// behavior and a known unbounded-retention trade-off.
	TTL time.Duration
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig controls the interception machinery around the upstream call.
type LoginConfig struct {
	// MaxBufferLines caps the rolling buffer of upstream output retained for
	// prompt classification context.
	MaxBufferLines int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events under backpressure instead of blocking the
	// login path; drops are counted and exported.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration the original backend shipped with:
// cookies under ./cookies as .json files, a one-week remote TTL, sessions
// retained until removed.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Cookie: CookieConfig{
			Dir:            "cookies",
			FileSuffix:     ".json",
			RedisNamespace: "cookie",
			TTL:            7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			TTL: 0,
		},
		Login: LoginConfig{
			MaxBufferLines: 64,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate rejects configurations the driver cannot honor. Called by
// [Builder.Build]; exposed for callers that assemble Config from external
// sources.
func (c Config) Validate() error {
	if c.Cookie.Dir == "" {
		return errors.New("Cookie.Dir must not be empty")
	}
	if c.Cookie.FileSuffix != "" && !strings.HasPrefix(c.Cookie.FileSuffix, ".") {
		return errors.New("Cookie.FileSuffix must start with '.'")
	}
	if strings.ContainsAny(c.Cookie.RedisNamespace, ": ") {
		return errors.New("Cookie.RedisNamespace must not contain ':' or spaces")
	}
	if c.Cookie.TTL < 0 {
		return errors.New("Cookie.TTL must not be negative")
	}
	if c.Session.TTL < 0 {
		return errors.New("Session.TTL must not be negative")
	}
	if c.Login.MaxBufferLines <= 0 {
		return errors.New("Login.MaxBufferLines must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive when audit is enabled")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	// All sections are value types today; the clone exists so later
	// reference-typed fields cannot alias builder state.
	return cfg
}
