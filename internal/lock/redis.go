package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "plsync:lock:"

// compareAndDelete removes the lock only if it still carries our token.
var compareAndDelete = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisOptions configures [RedisLocker].
type RedisOptions struct {
	Addr string
	DB   int
	TTL  time.Duration
}

// RedisLocker holds keys in Redis so several hosts sharing a library exclude each other.
//
// Locks expire after TTL, which bounds how long a crashed holder can block a playlist.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLocker connects to the server at opts.Addr.
func NewRedisLocker(opts RedisOptions) (*RedisLocker, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("%w: redis address required", shared.ErrInvalidConfig)
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, DB: opts.DB})
	return NewRedisLockerWithClient(client, opts.TTL), nil
}

// NewRedisLockerWithClient wraps an existing client. A non-positive ttl defaults to two hours.
func NewRedisLockerWithClient(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (r *RedisLocker) TryAcquire(ctx context.Context, key models.PlaylistKey) (Release, error) {
	name := redisKeyPrefix + key.String()
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: redis lock %s: %v", shared.ErrStorage, key, err)
	}
	if !ok {
		return nil, contended(key)
	}

	return once(func() error {
		// The caller's context may already be cancelled when releasing.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := compareAndDelete.Run(releaseCtx, r.client, []string{name}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis unlock %s: %w", key, err)
		}
		return nil
	}), nil
}

// Ping checks connectivity to the lock server.
func (r *RedisLocker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}
