package otpflow

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte("secret")
	return cfg
}

func TestConfigValidateDefaultsWithKey(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults with a key to validate, got %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero token ttl", func(c *Config) { c.Token.TTL = 0 }},
		{"missing hs256 key", func(c *Config) { c.Token.PrivateKey = nil }},
		{"unknown signing method", func(c *Config) { c.Token.SigningMethod = "rs256" }},
		{"ed25519 without public key", func(c *Config) {
			c.Token.SigningMethod = "ed25519"
			c.Token.PublicKey = nil
		}},
		{"zero session lifetime", func(c *Config) { c.Session.Lifetime = 0 }},
		{"empty session prefix", func(c *Config) { c.Session.RedisPrefix = "" }},
		{"code digits too short", func(c *Config) { c.Challenge.CodeDigits = 4 }},
		{"code digits too long", func(c *Config) { c.Challenge.CodeDigits = 12 }},
		{"zero challenge ttl", func(c *Config) { c.Challenge.ChallengeTTL = 0 }},
		{"negative resend ack window", func(c *Config) { c.Challenge.ResendAckWindow = -time.Second }},
		{"zero pending op ttl", func(c *Config) { c.Challenge.PendingOpTTL = 0 }},
		{"throttle without max", func(c *Config) { c.Challenge.MaxPerWindow = 0 }},
		{"throttle without window", func(c *Config) { c.Challenge.ThrottleWindow = 0 }},
		{"empty profile prefix", func(c *Config) { c.Profile.RedisPrefix = "" }},
		{"audit enabled without buffer", func(c *Config) { c.Audit.BufferSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigValidateThrottlesOffSkipsWindowChecks(t *testing.T) {
	cfg := validTestConfig()
	cfg.Challenge.EnableEmailThrottle = false
	cfg.Challenge.EnableIPThrottle = false
	cfg.Challenge.MaxPerWindow = 0
	cfg.Challenge.ThrottleWindow = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("window settings must not be checked with throttles off, got %v", err)
	}
}

func TestCloneConfigDetachesKeyMaterial(t *testing.T) {
	cfg := validTestConfig()
	cfg.Token.PublicKey = []byte("public")

	clone := cloneConfig(cfg)
	clone.Token.PrivateKey[0] = 'X'
	clone.Token.PublicKey[0] = 'X'

	if cfg.Token.PrivateKey[0] == 'X' || cfg.Token.PublicKey[0] == 'X' {
		t.Fatal("clone must not alias the original key material")
	}
}
