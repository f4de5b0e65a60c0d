package otpflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	errChallengeRateLimited        = errors.New("challenge rate limited")
	errChallengeLimiterUnavailable = errors.New("challenge limiter unavailable")
)

type challengeLimiter struct {
	redis  *redis.Client
	config ChallengeConfig
}

func newChallengeLimiter(redisClient *redis.Client, cfg ChallengeConfig) *challengeLimiter {
	return &challengeLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *challengeLimiter) CheckRequest(ctx context.Context, email, ip string) error {
	if l.config.EnableEmailThrottle {
		if err := l.enforceFixedWindow(ctx, challengeRequestEmailKey(email)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, challengeRequestIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *challengeLimiter) CheckVerify(ctx context.Context, email, ip string) error {
	if l.config.EnableEmailThrottle {
		if err := l.enforceFixedWindow(ctx, challengeVerifyEmailKey(email)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, challengeVerifyIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *challengeLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errChallengeLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.ThrottleWindow).Err(); err != nil {
			return fmt.Errorf("%w: %v", errChallengeLimiterUnavailable, err)
		}
	}

	if count > int64(l.config.MaxPerWindow) {
		return errChallengeRateLimited
	}

	return nil
}

func challengeRequestEmailKey(email string) string {
	return "ofcr:" + email
}

func challengeRequestIPKey(ip string) string {
	return "ofcrip:" + ip
}

func challengeVerifyEmailKey(email string) string {
	return "ofcv:" + email
}

func challengeVerifyIPKey(ip string) string {
	return "ofcvip:" + ip
}
