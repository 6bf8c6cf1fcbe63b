package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only if the caller still owns it.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockHeld = errors.New("lock held")

// RedisLocker is a Locker shared by every service instance pointing at the
// same Redis. A lock expires after TTL even if its holder never releases it.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker builds a RedisLocker. ttl bounds how long a crashed holder
// can block the key.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Lock polls SET NX with exponential backoff until the key is acquired or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := r.prefix + key
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 0

	acquire := func() error {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire lock %s: %w", key, err))
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}
	if err := backoff.Retry(acquire, backoff.WithContext(policy, ctx)); err != nil {
		if errors.Is(err, errLockHeld) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{lockKey}, token).Err(); err != nil {
			r.logger.Warn("release lock failed", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}
