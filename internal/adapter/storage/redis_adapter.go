package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "pickup:idem:"
	idempotencyKeyTTL    = 24 * time.Hour
	eventsChannel        = "pickup:events"
)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) ClaimIdempotencyKey(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *RedisAdapter) PublishEvent(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, eventsChannel, payload).Err()
}
