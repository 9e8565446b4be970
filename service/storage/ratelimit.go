package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"ChirpChat/global"
	"ChirpChat/tools/ids"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Operation classes with distinct ceilings.
const (
	RateClassMessage  = "msg"
	RateClassReaction = "react"
)

type RateLimit struct {
	Limit  int
	Window time.Duration
}

// RateLimiter admits or rejects an operation for a user under a sliding
// window. Rejections surface to the caller as throttling errors, never
// silent drops.
type RateLimiter interface {
	Allow(ctx context.Context, userID, class string) (bool, error)
}

// ===== Redis implementation (shared across gateways) =====

// Prune expired entries, count, conditionally admit. One round trip so two
// gateways checking the same user cannot both admit the last slot.
// KEYS[1]=rate key; ARGV[1]=now ms; ARGV[2]=window ms; ARGV[3]=limit; ARGV[4]=member
var luaSlidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

type RedisRateLimiter struct {
	rdb    *redis.Client
	limits map[string]RateLimit
}

func NewRedisRateLimiter(rdb *redis.Client, limits map[string]RateLimit) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb, limits: limits}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, userID, class string) (bool, error) {
	lim, ok := l.limits[class]
	if !ok {
		// Unconfigured classes are not limited.
		return true, nil
	}
	res, err := luaSlidingWindow.Run(ctx, l.rdb,
		[]string{global.RateKey(userID, class)},
		time.Now().UnixMilli(),
		lim.Window.Milliseconds(),
		lim.Limit,
		strconv.FormatInt(ids.Generate(), 10),
	).Int64()
	if err != nil {
		return false, errors.Wrap(err, "rate check")
	}
	return res == 1, nil
}

// ===== In-memory implementation (single process, tests) =====

type memRateLimiter struct {
	mu     sync.Mutex
	limits map[string]RateLimit
	seen   map[string][]time.Time
	clock  func() time.Time
}

func NewMemRateLimiter(limits map[string]RateLimit) RateLimiter {
	return &memRateLimiter{
		limits: limits,
		seen:   make(map[string][]time.Time),
		clock:  time.Now,
	}
}

func (l *memRateLimiter) Allow(_ context.Context, userID, class string) (bool, error) {
	lim, ok := l.limits[class]
	if !ok {
		return true, nil
	}
	now := l.clock()
	key := class + ":" + userID

	l.mu.Lock()
	defer l.mu.Unlock()

	// Lazy prune on each check.
	kept := l.seen[key][:0]
	for _, ts := range l.seen[key] {
		if now.Sub(ts) < lim.Window {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= lim.Limit {
		l.seen[key] = kept
		return false, nil
	}
	l.seen[key] = append(kept, now)
	return true, nil
}
