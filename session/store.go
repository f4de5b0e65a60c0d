package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps backend failures so callers can fail closed.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when the requested session does not exist.
var ErrNotFound = errors.New("session not found")

const minSlidingTTL = time.Second

// Store persists sessions in Redis under prefix, with an auxiliary SET
// per user id so DeleteAllForUser needs no SCAN.
type Store struct {
	redis   *redis.Client
	prefix  string
	sliding bool
}

// NewStore creates a session store. When sliding is true, Get renews the
// record TTL on every read.
func NewStore(redisClient *redis.Client, prefix string, sliding bool) *Store {
	return &Store{
		redis:   redisClient,
		prefix:  prefix,
		sliding: sliding,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save writes the session and registers it in the owning user's index.
// The write is acknowledged before Save returns; callers rely on this for
// the establish-before-navigate ordering guarantee.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	encoded, err := encode(sess)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(sess.SessionID), encoded, ttl)
	pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
	pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get fetches and decodes a session. Expired-but-present records are
// deleted and reported as not found.
func (s *Store) Get(ctx context.Context, sessionID string, lifetime time.Duration) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := decode(data)
	if err != nil {
		// A corrupt blob is unrecoverable; drop it so the key cannot
		// wedge future lookups.
		_, _ = s.redis.Del(ctx, s.key(sessionID)).Result()
		return nil, err
	}

	if time.Now().Unix() > sess.ExpiresAt {
		_ = s.Delete(ctx, sess.UserID, sessionID)
		return nil, ErrNotFound
	}

	if s.sliding && lifetime >= minSlidingTTL {
		if err := s.redis.Expire(ctx, s.key(sessionID), lifetime).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sess, nil
}

// Delete removes a single session and its index entry. Idempotent.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.key(sessionID))
	if userID != "" {
		pipe.SRem(ctx, s.userKey(userID), sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser revokes every session registered to userID.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	pipe := s.redis.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.key(id))
	}
	pipe.Del(ctx, s.userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ListForUser returns every live session registered to userID. Index
// entries whose record already expired are skipped.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id, 0)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Ping checks backend reachability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionCount reports how many sessions are registered to userID.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}
