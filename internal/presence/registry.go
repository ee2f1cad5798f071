// Package presence tracks which users are live in which venue. State lives in
// Redis so every server instance sees the same rosters.
//
// Layout:
//   - presence:venue:{venueID}  sorted set, member = user id, score = last join (unix ms)
//   - presence:user:{userID}    string, the venue the user currently occupies
//
// Each member carries its own expiry through its score, so a missed
// disconnect heals itself after TTL even while the venue stays busy.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Registry struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRegistry(rdb *redis.Client, ttl time.Duration) *Registry {
	return &Registry{rdb: rdb, ttl: ttl, now: time.Now}
}

func venueKey(venueID string) string { return "presence:venue:" + venueID }
func userKey(userID string) string   { return "presence:user:" + userID }

// Join records userID in venueID and returns the venue the user occupied
// before, if different.
func (r *Registry) Join(ctx context.Context, venueID, userID string) (string, error) {
	previous, err := r.CurrentVenue(ctx, userID)
	if err != nil {
		return "", err
	}

	now := r.now()
	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, venueKey(venueID), redis.Z{Score: float64(now.UnixMilli()), Member: userID})
	pipe.Expire(ctx, venueKey(venueID), r.ttl)
	pipe.Set(ctx, userKey(userID), venueID, r.ttl)
	if previous != "" && previous != venueID {
		pipe.ZRem(ctx, venueKey(previous), userID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("presence join: %w", err)
	}

	if previous == venueID {
		return "", nil
	}
	return previous, nil
}

var leaveScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("ZREM", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// Leave removes userID from venueID if that is still the venue the user
// occupies. It reports false when the user has since moved elsewhere or is
// not present, leaving the newer presence untouched.
func (r *Registry) Leave(ctx context.Context, userID, venueID string) (bool, error) {
	if venueID == "" {
		return false, nil
	}
	n, err := leaveScript.Run(ctx, r.rdb, []string{userKey(userID), venueKey(venueID)}, venueID, userID).Int()
	if err != nil {
		return false, fmt.Errorf("presence leave: %w", err)
	}
	return n == 1, nil
}

// CurrentVenue returns "" when the user is not present anywhere.
func (r *Registry) CurrentVenue(ctx context.Context, userID string) (string, error) {
	v, err := r.rdb.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("presence lookup: %w", err)
	}
	return v, nil
}

// Members returns the live members of a venue, pruning expired entries.
func (r *Registry) Members(ctx context.Context, venueID string) ([]string, error) {
	cutoff := r.now().Add(-r.ttl).UnixMilli()
	key := venueKey(venueID)

	if err := r.rdb.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("presence prune: %w", err)
	}
	members, err := r.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("presence members: %w", err)
	}
	return members, nil
}

// IsPresent reports whether userID is live in venueID.
func (r *Registry) IsPresent(ctx context.Context, venueID, userID string) (bool, error) {
	score, err := r.rdb.ZScore(ctx, venueKey(venueID), userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return int64(score) >= r.now().Add(-r.ttl).UnixMilli(), nil
}
