package perch

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/perchlabs/perch/credcache"
)

// Builder assembles a [Driver]. Chain the With* methods and finish with
// Build, which fails fast on anything the driver cannot run without.
type Builder struct {
	config Config
	redis  *redis.Client

	factory   ClientFactory
	auditSink AuditSink

	built bool
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the remote credential-cache tier. Leaving it nil is a
// supported mode: the cache runs on the local tier alone and logins never
// block on the remote side.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithClientFactory supplies the upstream login-client factory. Required.
func (b *Builder) WithClientFactory(f ClientFactory) *Builder {
	b.factory = f
	return b
}

// WithAuditSink supplies the audit event consumer. Only consulted when
// Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the driver. A builder is
// single-use.
func (b *Builder) Build() (*Driver, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.factory == nil {
		return nil, errors.New("login client factory required")
	}

	cookies := credcache.NewStore(
		b.redis,
		cfg.Cookie.Dir,
		cfg.Cookie.FileSuffix,
		cfg.Cookie.RedisNamespace,
		cfg.Cookie.TTL,
	)

	driver := &Driver{
		config:   cfg,
		sessions: newSessionRegistry(cfg.Session.TTL),
		cookies:  cookies,
		factory:  b.factory,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),
	}

	b.built = true
	return driver, nil
}
