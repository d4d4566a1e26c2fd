package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker coordinates card locks across processes through Redis.
type RedisLocker struct {
	client  *redislock.Client
	backoff time.Duration
	maxWait time.Duration
}

// NewRedisLocker wraps a Redis client. Busy keys are retried with exponential
// backoff starting at 16ms and capped at backoff, for at most maxWait.
func NewRedisLocker(rdb redis.UniversalClient, backoff, maxWait time.Duration) *RedisLocker {
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), backoff: backoff, maxWait: maxWait}
}

// Obtain implements Locker.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	lock, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.ExponentialBackoff(16*time.Millisecond, l.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("locks: obtain %s: %w", key, err)
	}
	return redisLock{lock: lock}, nil
}

type redisLock struct {
	lock *redislock.Lock
}

func (l redisLock) Release(ctx context.Context) error {
	if errRelease := l.lock.Release(ctx); errRelease != nil && !errors.Is(errRelease, redislock.ErrLockNotHeld) {
		return errRelease
	}
	return nil
}
