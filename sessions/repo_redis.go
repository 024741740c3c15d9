package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Repo = (*RedisRepo)(nil)

// RedisRepo stores the record as one hash, <prefix>:session
type RedisRepo struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

// RedisRepoOption configures a RedisRepo
type RedisRepoOption func(*RedisRepo)

// WithTTL expires the hash after ttl of inactivity. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisRepoOption {
	return func(r *RedisRepo) {
		r.ttl = ttl
	}
}

// NewRedisRepo creates a repository over rdb. prefix defaults to "ugate".
func NewRedisRepo(rdb redis.UniversalClient, prefix string, opts ...RedisRepoOption) (*RedisRepo, error) {
	if rdb == nil {
		return nil, errors.New("[NewRedisRepo] redis client is required")
	}
	if prefix == "" {
		prefix = "ugate"
	}

	r := &RedisRepo{rdb: rdb, key: prefix + ":session"}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Key returns the hash key
func (r *RedisRepo) Key() string {
	return r.key
}

// Load reads the hash
func (r *RedisRepo) Load(ctx context.Context) (Fields, error) {
	values, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("[RedisRepo.Load] hgetall: %w", err)
	}
	return Fields(values), nil
}

// Replace rewrites the hash inside a MULTI/EXEC transaction
func (r *RedisRepo) Replace(ctx context.Context, fields Fields) error {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(values) > 0 {
			pipe.HSet(ctx, r.key, values)
			if r.ttl > 0 {
				pipe.Expire(ctx, r.key, r.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("[RedisRepo.Replace] tx: %w", err)
	}
	return nil
}

// Remove deletes the hash
func (r *RedisRepo) Remove(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("[RedisRepo.Remove] del: %w", err)
	}
	return nil
}
