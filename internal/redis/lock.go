package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// Locker is used by the appointment service to serialize mutations per key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

const retryInterval = 25 * time.Millisecond

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	log    zerolog.Logger
}

// NewRedisLocker creates a locker backed by one Redis key per lock. Acquire
// retries until wait elapses, then fails with ErrLockNotAcquired.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, logger zerolog.Logger) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		log:    logger.With().Str("component", "lock").Logger(),
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := fmt.Sprintf("lock:%s", key)
	token := uuid.NewString()

	if err := l.acquire(ctx, lockKey, token); err != nil {
		return err
	}

	defer l.unlock(context.WithoutCancel(ctx), lockKey, token)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// unlock releases the lock. On failure the key stays held until its TTL runs out.
func (l *redisLocker) unlock(ctx context.Context, key, token string) {
	if err := l.release(ctx, key, token); err != nil {
		l.log.Warn().Err(err).
			Str("lock_key", key).
			Dur("held_until_ttl", l.ttl).
			Msg("failed to release lock")
	}
}

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
