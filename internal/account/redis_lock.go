package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockKeyPrefix    = "facecards:upsert:"
	lockPollInterval = 25 * time.Millisecond
	lockMaxRetries   = 3
	lockRetryBackoff = 100 * time.Millisecond
	lockReleaseLimit = 2 * time.Second
)

// Deletes the key only while it still carries our token, so an expired
// lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares the per-id upsert lock across replicas.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	for {
		acquired, err := retryRedis(ctx, func() (bool, error) {
			return l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		})
		if err != nil {
			return nil, err
		}
		if acquired {
			break
		}

		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseLimit)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("Failed to release upsert lock",
					zap.String("key", redisKey),
					zap.Error(err))
			}
		})
	}, nil
}

func retryRedis[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < lockMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := lockRetryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return zero, fmt.Errorf("redis lock failed after %d attempts: %w", lockMaxRetries, lastErr)
}
