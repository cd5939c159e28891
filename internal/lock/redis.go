package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can keep a key.
const DefaultTTL = 30 * time.Second

// ErrNotObtained is returned when a key stays held past the wait deadline.
var ErrNotObtained = errors.New("lock not obtained")

// Redis is a Locker backed by Redis, for deployments running several
// instances against one database.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// NewRedis wraps an existing Redis client. A ttl of zero uses DefaultTTL.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		prefix: "persediaan:lock:",
	}
}

// Connect dials addr and verifies it answers PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 20,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Lock obtains every key, retrying each until ctx ends or the TTL elapses.
func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalise(keys)
	held := make([]*redislock.Lock, 0, len(keys))

	release := func() {
		// Release must not be cut short by the caller's context.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				slog.Warn("releasing redis lock", "key", held[i].Key(), "error", err)
			}
		}
		held = nil
	}

	for _, key := range keys {
		l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(r.retry),
		})
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
		}
		if err != nil {
			release()
			return nil, fmt.Errorf("obtaining lock %s: %w", key, err)
		}
		held = append(held, l)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
