package settings

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/repository"
)

// RedisCommands is the subset of *redis.Client used by RedisStore.
type RedisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps settings in Redis without expiry.
type RedisStore struct {
	client RedisCommands
	retry  repository.Retrier
}

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client RedisCommands, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		retry:  repository.NewRetrier(logger.Named("redis_settings")).Expecting(ErrNotFound),
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.retry.Do(ctx, "redis.get", key, func() error {
		v, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		value = v
		return err
	})
	return value, err
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.retry.Do(ctx, "redis.set", key, func() error {
		return r.client.Set(ctx, key, value, 0).Err()
	})
}
