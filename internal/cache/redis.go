package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oggyb/venue-match/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by GetJSON when the key is absent.
var ErrMiss = errors.New("cache miss")

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.Client.Del(ctx, keys...).Err()
}

// SetJSON stores v as JSON with a TTL.
func (c *RedisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Client.Set(ctx, key, b, ttl).Err()
}

// GetJSON loads key into v. Returns ErrMiss when absent.
func (c *RedisCache) GetJSON(ctx context.Context, key string, v any) error {
	b, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	} else if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// DelPrefix sweeps every key starting with prefix. Used for key families
// such as all pagination variants of one user's connection list.
func (c *RedisCache) DelPrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.Client.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.Client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// versionTTL outlives every cached page, so a family's generation is never
// forgotten while one of its pages could still be written.
const versionTTL = 24 * time.Hour

func versionKey(prefix string) string { return "ver:" + prefix }

var setIfVersionScript = redis.NewScript(`
if (redis.call("GET", KEYS[1]) or "0") == ARGV[1] then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// Version returns the generation of a key family. Read it before loading
// the value that SetJSONIfVersion will store.
func (c *RedisCache) Version(ctx context.Context, prefix string) (int64, error) {
	v, err := c.Client.Get(ctx, versionKey(prefix)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Invalidate moves the family to a new generation, then sweeps its keys.
// A fill that loaded under the old generation can no longer be stored.
func (c *RedisCache) Invalidate(ctx context.Context, prefix string) (int, error) {
	pipe := c.Client.TxPipeline()
	pipe.Incr(ctx, versionKey(prefix))
	pipe.Expire(ctx, versionKey(prefix), versionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return c.DelPrefix(ctx, prefix)
}

// SetJSONIfVersion stores v under key only while the family of prefix is
// still at version. It reports whether the value was stored.
func (c *RedisCache) SetJSONIfVersion(ctx context.Context, prefix string, version int64, key string, v any, ttl time.Duration) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("marshal cache value: %w", err)
	}
	n, err := setIfVersionScript.Run(ctx, c.Client,
		[]string{versionKey(prefix), key},
		strconv.FormatInt(version, 10), b, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ConnectionsPrefix is the key family for one user's cached connection pages.
func ConnectionsPrefix(userID string) string {
	return fmt.Sprintf("connections:%s:", userID)
}

// KeyForConnectionsPage generates the key for one page of a user's connections.
func KeyForConnectionsPage(userID string, page, limit int) string {
	return fmt.Sprintf("%s%d:%d", ConnectionsPrefix(userID), page, limit)
}

// HistoryPrefix is the key family for one connection's cached chat pages.
func HistoryPrefix(connectionID string) string {
	return fmt.Sprintf("chat:history:%s:", connectionID)
}

func KeyForHistoryPage(connectionID, cursor string, limit int) string {
	return fmt.Sprintf("%s%s:%d", HistoryPrefix(connectionID), cursor, limit)
}

// GroupHistoryPrefix is the key family for one venue's cached group chat pages.
func GroupHistoryPrefix(venueID string) string {
	return fmt.Sprintf("chat:group:%s:", venueID)
}

func KeyForGroupHistoryPage(venueID, cursor string, limit int) string {
	return fmt.Sprintf("%s%s:%d", GroupHistoryPrefix(venueID), cursor, limit)
}
