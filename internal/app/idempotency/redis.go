package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "mrsbean:"

// unlockScript deletes the lock only if it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Guard shared by every instance pointing at the same Redis.
type Redis struct {
	client *redis.Client
	opts   Options
}

var _ Guard = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, opts Options) *Redis {
	return &Redis{client: client, opts: opts.withDefaults()}
}

// OpenRedis parses a redis:// URL and checks connectivity.
func OpenRedis(ctx context.Context, url string, opts Options) (*Redis, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, opts), nil
}

// Close closes the underlying client.
func (r *Redis) Close() error { return r.client.Close() }

// Ping reports Redis health.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := keyPrefix + "lock:" + key
	token := uuid.NewString()

	err := waitFor(ctx, r.opts, func() (bool, error) {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.opts.LockTTL).Result()
		if err != nil {
			return false, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	return func() {
		// A fresh context so a cancelled request still releases its lock.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, r.client, []string{lockKey}, token).Err()
	}, nil
}

func (r *Redis) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyPrefix+"seen:"+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) Forget(ctx context.Context, key string) error {
	return r.client.Del(ctx, keyPrefix+"seen:"+key).Err()
}
