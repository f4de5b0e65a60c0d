package otpflow

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeKeyPrefix        = "ofc"
	challengePendingKeyPrefix = "ofcp"
	challengeRecordVersionV1  = 1
)

var (
	errChallengeNotFound         = errors.New("challenge record not found")
	errChallengeOpPending        = errors.New("challenge operation pending")
	errChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

type challengeRecord struct {
	Email     string
	Status    ChallengeStatus
	Attempts  uint16
	CreatedAt int64
	ExpiresAt int64
}

func (r *challengeRecord) state() *ChallengeState {
	return &ChallengeState{
		Email:     r.Email,
		Status:    r.Status,
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// challengeStore keeps the single open challenge per email. Saving for an
// email that already has a challenge replaces it; the old one never
// queues behind the new one.
type challengeStore struct {
	redis  *redis.Client
	prefix string
}

func newChallengeStore(redisClient *redis.Client) *challengeStore {
	return &challengeStore{
		redis:  redisClient,
		prefix: challengeKeyPrefix,
	}
}

func (s *challengeStore) key(email string) string {
	return s.prefix + ":" + email
}

func (s *challengeStore) pendingKey(email string) string {
	return challengePendingKeyPrefix + ":" + email
}

// Save writes (or supersedes) the challenge for record.Email. Returns
// whether a prior challenge was replaced. Any pending-operation marker
// left by the superseded challenge is cleared.
func (s *challengeStore) Save(ctx context.Context, record *challengeRecord, ttl time.Duration) (bool, error) {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return false, err
	}

	prev, err := s.redis.SetArgs(ctx, s.key(record.Email), encoded, redis.SetArgs{
		TTL: ttl,
		Get: true,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	superseded := err == nil && prev != ""
	if superseded {
		if err := s.redis.Del(ctx, s.pendingKey(record.Email)).Err(); err != nil {
			return superseded, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
		}
	}

	return superseded, nil
}

// Get returns the open challenge for email. Expired records are removed
// and reported as not found.
func (s *challengeStore) Get(ctx context.Context, email string) (*challengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	record, err := decodeChallengeRecord(data)
	if err != nil {
		_ = s.redis.Del(ctx, s.key(email)).Err()
		return nil, errChallengeNotFound
	}

	if time.Now().Unix() > record.ExpiresAt {
		if err := s.Delete(ctx, email); err != nil {
			return nil, err
		}
		return nil, errChallengeNotFound
	}

	return record, nil
}

// SetStatus transitions the stored challenge status, keeping TTL and
// attempts. Uses WATCH so a concurrent supersede wins cleanly.
func (s *challengeStore) SetStatus(ctx context.Context, email string, status ChallengeStatus) error {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}
			record.Status = status

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeNotFound
			}

			updated, err := encodeChallengeRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, errChallengeNotFound):
				return errChallengeNotFound
			default:
				return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
			}
		}
		return nil
	}

	return errChallengeNotFound
}

// IncrementAttempts bumps the stored attempt counter.
func (s *challengeStore) IncrementAttempts(ctx context.Context, email string) error {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}
			record.Attempts++

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				return errChallengeNotFound
			}

			updated, err := encodeChallengeRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, errChallengeNotFound):
				return errChallengeNotFound
			default:
				return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
			}
		}
		return nil
	}

	return errChallengeNotFound
}

// Delete removes the challenge and any pending-operation marker.
func (s *challengeStore) Delete(ctx context.Context, email string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.key(email))
	pipe.Del(ctx, s.pendingKey(email))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return nil
}

// BeginExclusive claims the single pending-operation slot for email.
// Only one of verify/resend may hold it; the loser gets
// errChallengeOpPending. The marker expires on its own so a crashed
// caller cannot wedge the challenge.
func (s *challengeStore) BeginExclusive(ctx context.Context, email, op string, ttl time.Duration) error {
	ok, err := s.redis.SetNX(ctx, s.pendingKey(email), op, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	if !ok {
		return errChallengeOpPending
	}
	return nil
}

// EndExclusive releases the pending-operation slot.
func (s *challengeStore) EndExclusive(ctx context.Context, email string) {
	_ = s.redis.Del(ctx, s.pendingKey(email)).Err()
}

func encodeChallengeRecord(record *challengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)
	buf.WriteByte(byte(record.Status))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.Email) > 65535 {
		return nil, errors.New("challenge record email too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*challengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	status, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &challengeRecord{
		Status: ChallengeStatus(status),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, err
	}

	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	record.Email = string(email)

	return record, nil
}
