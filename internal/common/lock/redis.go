// internal/common/lock/redis.go
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost means the lease expired or was taken over before Release.
var ErrLeaseLost = errors.New("lock: lease lost")

// Deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client *redis.Client
	opts   Options
}

func NewRedisLocker(client *redis.Client, opts Options) *RedisLocker {
	return &RedisLocker{client: client, opts: opts.withDefaults()}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	fullKey := l.opts.Prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.opts.Wait)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", fullKey, err)
		}
		if ok {
			return &redisLease{client: l.client, key: fullKey, token: token}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, fullKey)
		}

		timer := time.NewTimer(l.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrLeaseLost, l.key)
	}
	return nil
}
