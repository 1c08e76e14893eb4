package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "lock"

// Deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lock shared by all API replicas.
// The TTL bounds how long a crashed holder can block a key.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	rkey := fmt.Sprintf("%s:%s", redisKeyPrefix, key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			// The wait ran out during the call; report it like a missed lock.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctxErr)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The caller's context may already be canceled.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{rkey}, token).Err(); err != nil {
			zap.L().Warn("redis lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
