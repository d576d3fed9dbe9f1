package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps one session under "session:<id>:" and refreshes the TTL
// on every write, so an abandoned session expires on its own.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisBackend(client redis.UniversalClient, sessionID string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, prefix: "session:" + sessionID + ":", ttl: ttl}
}

func (r *RedisBackend) key(k string) string { return r.prefix + k }

func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *RedisBackend) Save(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.key(key), value, r.ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
