package storage

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces credential keys
const DefaultRedisPrefix = "shiptrack:credentials:"

// RedisCredentialStore shares carrier credentials between processes
type RedisCredentialStore struct {
	c      *redis.Client
	prefix string
}

// NewRedisCredentialStore connects lazily to addr
func NewRedisCredentialStore(addr, prefix string) *RedisCredentialStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCredentialStore{
		c: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
		prefix: prefix,
	}
}

func (r *RedisCredentialStore) Load(ctx context.Context, key string) ([]byte, error) {
	val, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	return val, nil
}

func (r *RedisCredentialStore) Save(ctx context.Context, key string, blob []byte) error {
	if err := r.c.Set(ctx, r.prefix+key, blob, 0).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (r *RedisCredentialStore) Delete(ctx context.Context, key string) error {
	if err := r.c.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (r *RedisCredentialStore) Ping(ctx context.Context) error {
	if err := r.c.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}

func (r *RedisCredentialStore) Close() error {
	return r.c.Close()
}
