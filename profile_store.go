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

const profileRecordVersionV1 = 1

// RedisProfileStore is the [ProfileStore] shipped with the module,
// persisting one record per identity under prefix. Rows have no TTL;
// profiles outlive sessions.
type RedisProfileStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisProfileStore creates a profile store on the given client.
func NewRedisProfileStore(redisClient *redis.Client, prefix string) *RedisProfileStore {
	if prefix == "" {
		prefix = "ofp"
	}
	return &RedisProfileStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisProfileStore) key(ownerID string) string {
	return s.prefix + ":" + ownerID
}

// GetProfile implements [ProfileStore]. Absence maps to
// [ErrProfileNotFound]; anything else wraps [ErrProfileUnavailable].
func (s *RedisProfileStore) GetProfile(ctx context.Context, ownerID string) (*Profile, error) {
	data, err := s.redis.Get(ctx, s.key(ownerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}

	profile, err := decodeProfile(ownerID, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	return profile, nil
}

// UpsertProfile implements [ProfileStore]. The full field snapshot
// replaces the stored row; ownerID is the stable upsert key, so
// repeated identical commits leave the visible row unchanged.
func (s *RedisProfileStore) UpsertProfile(ctx context.Context, ownerID string, fields ProfileFields, updatedAt time.Time) error {
	encoded, err := encodeProfile(&Profile{
		OwnerID:   ownerID,
		Fields:    fields,
		UpdatedAt: updatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}

	if err := s.redis.Set(ctx, s.key(ownerID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	return nil
}

// DeleteProfile removes the stored row. Idempotent.
func (s *RedisProfileStore) DeleteProfile(ctx context.Context, ownerID string) error {
	if err := s.redis.Del(ctx, s.key(ownerID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	return nil
}

func encodeProfile(p *Profile) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(profileRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, p.UpdatedAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{p.Fields.FullName, p.Fields.Username, p.Fields.Website, p.Fields.AvatarURL} {
		if field == nil {
			buf.WriteByte(0)
			continue
		}
		if len(*field) > 65535 {
			return nil, errors.New("profile field too long")
		}
		buf.WriteByte(1)
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(*field))); err != nil {
			return nil, err
		}
		buf.WriteString(*field)
	}

	return buf.Bytes(), nil
}

func decodeProfile(ownerID string, data []byte) (*Profile, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != profileRecordVersionV1 {
		return nil, errors.New("invalid profile record version")
	}

	p := &Profile{OwnerID: ownerID}
	if err := binary.Read(reader, binary.BigEndian, &p.UpdatedAt); err != nil {
		return nil, err
	}

	targets := []**string{&p.Fields.FullName, &p.Fields.Username, &p.Fields.Website, &p.Fields.AvatarURL}
	for _, target := range targets {
		present, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		if present == 0 {
			continue
		}

		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		v := string(raw)
		*target = &v
	}

	return p, nil
}
