package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/otpflow"
	"github.com/MrEthical07/otpflow/internal"
)

var (
	// ErrNotProvisioned means the email has no account and account
	// creation was not requested.
	ErrNotProvisioned = errors.New("email not provisioned")
	// ErrNoPendingCode means no live code exists for the email.
	ErrNoPendingCode = errors.New("no pending code")
	// ErrCodeMismatch means the submitted code did not match.
	ErrCodeMismatch = errors.New("code mismatch")
	// ErrAttemptsExceeded means the pending code was burned by too many
	// wrong guesses.
	ErrAttemptsExceeded = errors.New("code attempts exceeded")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrSendFailed wraps code delivery failures.
	ErrSendFailed = errors.New("code delivery failed")
)

// CodeSender delivers a generated one-time code to its email address.
// Implementations own the transport (SMTP, SMS bridge, test capture).
type CodeSender interface {
	Send(ctx context.Context, email, code string) error
}

// Config carries gateway settings.
type Config struct {
	// CodeTTL bounds how long an issued code stays acceptable.
	CodeTTL time.Duration
	// CodeDigits is the generated code length.
	CodeDigits int
	// MaxAttempts is how many wrong guesses burn a code.
	MaxAttempts int
	// KeyPrefix namespaces the gateway's Redis keys.
	KeyPrefix string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CodeTTL:     10 * time.Minute,
		CodeDigits:  6,
		MaxAttempts: 3,
		KeyPrefix:   "ofg",
	}
}

// Gateway is a Redis-backed [otpflow.IdentityGateway] with an
// invite-only provisioning directory. Safe for concurrent use.
type Gateway struct {
	redis  *redis.Client
	config Config
	sender CodeSender
	codes  *codeStore
}

// New creates a gateway. sender is required; it is the only way codes
// leave the system.
func New(redisClient *redis.Client, cfg Config, sender CodeSender) (*Gateway, error) {
	if redisClient == nil {
		return nil, errors.New("redis client required")
	}
	if sender == nil {
		return nil, errors.New("code sender required")
	}
	if cfg.CodeTTL <= 0 {
		return nil, errors.New("CodeTTL must be positive")
	}
	if cfg.CodeDigits < 6 || cfg.CodeDigits > 10 {
		return nil, errors.New("CodeDigits must be between 6 and 10")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("MaxAttempts must be positive")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ofg"
	}

	return &Gateway{
		redis:  redisClient,
		config: cfg,
		sender: sender,
		codes:  newCodeStore(redisClient, cfg.KeyPrefix),
	}, nil
}

func (g *Gateway) directoryKey(email string) string {
	return g.config.KeyPrefix + ":id:" + email
}

// Provision registers an email in the directory, minting an identity id
// for it. Idempotent: provisioning an existing email returns the
// existing identity.
func (g *Gateway) Provision(ctx context.Context, email string) (otpflow.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return otpflow.Identity{}, ErrNotProvisioned
	}

	id := uuid.NewString()
	ok, err := g.redis.SetNX(ctx, g.directoryKey(email), id, 0).Result()
	if err != nil {
		return otpflow.Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return g.Lookup(ctx, email)
	}

	return otpflow.Identity{ID: id, Email: email}, nil
}

// Deprovision removes an email from the directory and drops any pending
// code. Idempotent.
func (g *Gateway) Deprovision(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	pipe := g.redis.TxPipeline()
	pipe.Del(ctx, g.directoryKey(email))
	pipe.Del(ctx, g.codes.key(email))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Lookup resolves an email to its provisioned identity.
func (g *Gateway) Lookup(ctx context.Context, email string) (otpflow.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	id, err := g.redis.Get(ctx, g.directoryKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return otpflow.Identity{}, ErrNotProvisioned
		}
		return otpflow.Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return otpflow.Identity{ID: id, Email: email}, nil
}

// RequestCode implements [otpflow.IdentityGateway]. With
// createIfMissing false, unknown emails are refused without issuing
// anything; with it true the email is provisioned first. A fresh code
// replaces any pending one.
func (g *Gateway) RequestCode(ctx context.Context, email string, createIfMissing bool) error {
	return g.issueCode(ctx, email, createIfMissing)
}

// ResendCode implements [otpflow.IdentityGateway]. Identical to
// RequestCode at this boundary: a new code is generated and delivered,
// invalidating the prior one.
func (g *Gateway) ResendCode(ctx context.Context, email string, createIfMissing bool) error {
	return g.issueCode(ctx, email, createIfMissing)
}

func (g *Gateway) issueCode(ctx context.Context, email string, createIfMissing bool) error {
	email = strings.ToLower(strings.TrimSpace(email))

	identity, err := g.Lookup(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotProvisioned) || !createIfMissing {
			return err
		}
		identity, err = g.Provision(ctx, email)
		if err != nil {
			return err
		}
	}

	code, err := internal.NewOTP(g.config.CodeDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record := &codeRecord{
		UserID:    identity.ID,
		CodeHash:  internal.HashCode(code),
		ExpiresAt: time.Now().Add(g.config.CodeTTL).Unix(),
	}
	if err := g.codes.Save(ctx, email, record, g.config.CodeTTL); err != nil {
		return err
	}

	if err := g.sender.Send(ctx, email, code); err != nil {
		// Undo so a failed delivery cannot leave an unguessable code
		// blocking the attempt budget.
		_ = g.codes.Delete(ctx, email)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	return nil
}

// VerifyCode implements [otpflow.IdentityGateway]. A correct code is
// consumed exactly once and resolves to the provisioned identity.
func (g *Gateway) VerifyCode(ctx context.Context, email, code string) (otpflow.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if len(code) != g.config.CodeDigits || !internal.IsNumeric(code) {
		return otpflow.Identity{}, ErrCodeMismatch
	}

	record, err := g.codes.Consume(ctx, email, internal.HashCode(code), g.config.MaxAttempts)
	if err != nil {
		return otpflow.Identity{}, err
	}

	return otpflow.Identity{ID: record.UserID, Email: email}, nil
}
