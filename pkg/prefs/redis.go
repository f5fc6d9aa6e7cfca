package prefs

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	ConnectionURL  string        `env:"PREFS_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix      string        `env:"PREFS_REDIS_KEY_PREFIX" envDefault:"prefs:"`
	RetryAttempts  int           `env:"PREFS_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"PREFS_REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"PREFS_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and returns a Store persisting each
// preference under KeyPrefix+key. Connection attempts are retried per the
// config before giving up with ErrRedisNotReady.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	attempts := max(cfg.RetryAttempts, 1)
	for range attempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return &redisStore{client: client, prefix: cfg.KeyPrefix}, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}
	return nil
}
