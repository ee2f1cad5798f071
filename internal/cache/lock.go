package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context or wait budget ran out.
var ErrLockTimeout = errors.New("lock wait timed out")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PairLockKey is symmetric in a and b.
func PairLockKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("lock:pair:%s:%s", a, b)
}

// ReportLockKey is directional: reporter's reports of target.
func ReportLockKey(reporterID, targetID string) string {
	return fmt.Sprintf("lock:report:%s:%s", reporterID, targetID)
}

// AcquireLock takes a Redis mutex shared by every instance. The lock expires
// after ttl even if release is never called. The returned release func only
// deletes the key while it is still owned by this holder.
func (c *RedisCache) AcquireLock(ctx context.Context, key string, ttl, wait time.Duration) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	backoff := 5 * time.Millisecond

	for {
		ok, err := c.Client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// release must survive a cancelled request context
				_ = releaseScript.Run(context.Background(), c.Client, []string{key}, token).Err()
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}
