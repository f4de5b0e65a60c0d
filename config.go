package otpflow

import (
	"errors"
	"time"
)

// Config carries all engine settings, grouped by subsystem. Configure
// once, pass to [Builder.WithConfig], and treat as immutable afterwards.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	Challenge ChallengeConfig
	Profile   ProfileConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// TokenConfig controls the signed session token.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// SessionConfig controls the Redis session store.
type SessionConfig struct {
	RedisPrefix       string
	Lifetime          time.Duration
	SlidingExpiration bool
}

// ChallengeConfig controls the OTP challenge flow.
type ChallengeConfig struct {
	// CodeDigits is the exact length of an acceptable code. The gateway
	// remains the authority on correctness; this only gates the local
	// format check.
	CodeDigits int
	// ChallengeTTL bounds how long a requested challenge stays open.
	ChallengeTTL time.Duration
	// ResendAckWindow is how long the resend acknowledgment stays
	// visible. Presentational only.
	ResendAckWindow time.Duration
	// PendingOpTTL bounds the exclusive verify/resend marker so a crashed
	// caller cannot wedge a challenge forever.
	PendingOpTTL time.Duration
	// Fixed-window throttles on code request and verification.
	EnableEmailThrottle bool
	EnableIPThrottle    bool
	MaxPerWindow        int
	ThrottleWindow      time.Duration
}

// ProfileConfig controls the Redis profile store shipped with the module.
type ProfileConfig struct {
	RedisPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the caller when the
	// buffer is full. Dropped counts are observable via
	// [Engine.AuditDropped].
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
		},
		Session: SessionConfig{
			RedisPrefix:       "ofs",
			Lifetime:          24 * time.Hour,
			SlidingExpiration: false,
		},
		Challenge: ChallengeConfig{
			CodeDigits:          6,
			ChallengeTTL:        15 * time.Minute,
			ResendAckWindow:     3 * time.Second,
			PendingOpTTL:        30 * time.Second,
			EnableEmailThrottle: true,
			EnableIPThrottle:    true,
			MaxPerWindow:        10,
			ThrottleWindow:      15 * time.Minute,
		},
		Profile: ProfileConfig{
			RedisPrefix: "ofp",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for values the engine cannot run
// with. Called by [Builder.Build].
func (c *Config) Validate() error {
	if c.Token.TTL <= 0 {
		return errors.New("Token.TTL must be positive")
	}
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("hs256 requires Token.PrivateKey")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires Token.PrivateKey and Token.PublicKey")
		}
	default:
		return errors.New("unsupported Token.SigningMethod")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("Session.Lifetime must be positive")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session.RedisPrefix must not be empty")
	}
	if c.Challenge.CodeDigits < 6 || c.Challenge.CodeDigits > 10 {
		return errors.New("Challenge.CodeDigits must be between 6 and 10")
	}
	if c.Challenge.ChallengeTTL <= 0 {
		return errors.New("Challenge.ChallengeTTL must be positive")
	}
	if c.Challenge.ResendAckWindow < 0 {
		return errors.New("Challenge.ResendAckWindow must not be negative")
	}
	if c.Challenge.PendingOpTTL <= 0 {
		return errors.New("Challenge.PendingOpTTL must be positive")
	}
	if c.Challenge.EnableEmailThrottle || c.Challenge.EnableIPThrottle {
		if c.Challenge.MaxPerWindow <= 0 {
			return errors.New("Challenge.MaxPerWindow must be positive when throttling is enabled")
		}
		if c.Challenge.ThrottleWindow <= 0 {
			return errors.New("Challenge.ThrottleWindow must be positive when throttling is enabled")
		}
	}
	if c.Profile.RedisPrefix == "" {
		return errors.New("Profile.RedisPrefix must not be empty")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive when audit is enabled")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
