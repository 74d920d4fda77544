package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duynhne/account-dashboard/internal/core/domain"
)

// ErrCorruptRecord is returned when a stored session blob cannot be decoded.
var ErrCorruptRecord = errors.New("session record corrupt")

// minTTL keeps Redis from rejecting a SET with a non-positive expiry.
const minTTL = time.Second

// timeNow is time.Now but pulled out as a variable for tests.
var timeNow = time.Now

// RedisSessionRepository implements domain.SessionRepository on Redis.
// Each record is a JSON blob whose key expires with the session.
type RedisSessionRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisSessionRepository creates a new RedisSessionRepository. Keys are
// namespaced as "<prefix>:session:<id>".
func NewRedisSessionRepository(rdb redis.UniversalClient, prefix string) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisSessionRepository) key(id string) string {
	return r.prefix + ":session:" + id
}

// Create stores the record until its ExpiresAt.
func (r *RedisSessionRepository) Create(ctx context.Context, rec domain.SessionRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", rec.ID, err)
	}
	ttl := rec.ExpiresAt.Sub(timeNow())
	if ttl < minTTL {
		ttl = minTTL
	}
	return r.rdb.Set(ctx, r.key(rec.ID), blob, ttl).Err()
}

// Get returns the record, or (nil, nil) when the key is absent or expired.
func (r *RedisSessionRepository) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	blob, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, fmt.Errorf("decode session %q: %w: %v", id, ErrCorruptRecord, err)
	}
	if rec.ID != id {
		return nil, fmt.Errorf("decode session %q: %w: id mismatch", id, ErrCorruptRecord)
	}
	return &rec, nil
}

// Delete removes the record. Missing keys are ignored.
func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.key(id)).Err()
}
