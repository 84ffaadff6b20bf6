package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed distributed lock. The webhook worker holds
// one while draining the delivery queue so only a single instance dispatches.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// WithLock executes fn while holding a lock for the provided key. The lock is
// released automatically even if fn returns an error. When the lock cannot be
// acquired before the context is cancelled an error is returned.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.Background(), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}

// Guard is a non-blocking acquire/release pair keyed by caller-supplied
// strings. The dispatcher uses it to suppress duplicate webhook sends within
// a TTL window.
type Guard struct {
	R      *redis.Client
	Prefix string
}

// Acquire attempts to claim key for ttl. It reports false without error when
// the key is already held.
func (g Guard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if g.R == nil {
		return false, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return g.R.SetNX(ctx, g.Prefix+key, "1", ttl).Result()
}

// Release drops the claim on key.
func (g Guard) Release(ctx context.Context, key string) error {
	if g.R == nil {
		return errors.New("lock: redis client not configured")
	}
	return g.R.Del(ctx, g.Prefix+key).Err()
}
