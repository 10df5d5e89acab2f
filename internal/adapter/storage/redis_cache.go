package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stockKeyPrefix    = "stock:"
	mirrorTTL         = 10 * time.Minute
	idempotencyKeyTTL = 24 * time.Hour
)

// RedisCache mirrors ledger quantities for the advisory read path. It never
// decides a commit: a hit here only short-circuits obviously doomed
// attempts, the ledger re-checks everything.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) GetQuantity(ctx context.Context, resourceKey string) (int, bool, error) {
	quantity, err := r.client.Get(ctx, stockKeyPrefix+resourceKey).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return quantity, true, nil
}

func (r *RedisCache) SetQuantity(ctx context.Context, resourceKey string, quantity int) error {
	return r.client.Set(ctx, stockKeyPrefix+resourceKey, quantity, mirrorTTL).Err()
}

func (r *RedisCache) Invalidate(ctx context.Context, resourceKey string) error {
	return r.client.Del(ctx, stockKeyPrefix+resourceKey).Err()
}

func (r *RedisCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
