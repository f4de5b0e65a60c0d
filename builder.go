package otpflow

import (
	"errors"

	"github.com/MrEthical07/otpflow/jwt"
	"github.com/MrEthical07/otpflow/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure during initialization, call
// Build once, and treat the result as immutable.
type Builder struct {
	config Config
	redis  *redis.Client

	gateway      IdentityGateway
	profileStore ProfileStore
	auditSink    AuditSink

	built bool
}

// New returns a builder preloaded with the default configuration.
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

// WithRedis sets the Redis client backing sessions, challenges, and
// throttles. Required.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithGateway sets the identity gateway that issues and verifies
// one-time codes. Required.
func (b *Builder) WithGateway(gw IdentityGateway) *Builder {
	b.gateway = gw
	return b
}

// WithProfileStore overrides the profile persistence backend. When
// unset, Build wires a Redis-backed store on the same client.
func (b *Builder) WithProfileStore(store ProfileStore) *Builder {
	b.profileStore = store
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the metrics system.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires all subsystems, and returns
// the engine. A builder may be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.gateway == nil {
		return nil, errors.New("identity gateway required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		gateway: b.gateway,
	}

	engine.sessionStore = session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.SlidingExpiration,
	)
	engine.challengeStore = newChallengeStore(b.redis)
	engine.challengeLimiter = newChallengeLimiter(b.redis, cfg.Challenge)

	if b.profileStore != nil {
		engine.profileStore = b.profileStore
	} else {
		engine.profileStore = NewRedisProfileStore(b.redis, cfg.Profile.RedisPrefix)
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
