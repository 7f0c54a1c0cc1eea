package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the run lock is stored under.
const DefaultRedisKey = "deepstore:lock"

// releaseScript deletes the key only if it still holds our token, so a
// run never releases a lock that expired and was taken by another run.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by every host that talks to the same Redis, for
// deployments where several machines run the same schedule.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis creates a Redis lock. ttl bounds how long a crashed holder keeps
// the lock.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// NewRedisFromAddr connects to addr and returns the lock and the client so
// the caller can close it.
func NewRedisFromAddr(addr, key string, ttl time.Duration) (*Redis, *redis.Client) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	return NewRedis(client, key, ttl), client
}

// Acquire sets the key if it does not exist.
func (r *Redis) Acquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: redis key %s", ErrLocked, r.key)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
			return fmt.Errorf("redis unlock: %w", err)
		}
		return nil
	}, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
