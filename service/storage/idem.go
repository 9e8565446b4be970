package storage

import (
	"context"
	"sync"
	"time"

	"ChirpChat/global"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// IdemStore suppresses duplicate processing of client-retried operations.
// AlreadyProcessed is checked before side effects and returns the message
// ID stored by the first accepted submission, so duplicate acks can carry
// the real server identifier. MarkProcessed is written only after the side
// effects succeed, so a failed attempt stays retryable.
type IdemStore interface {
	AlreadyProcessed(ctx context.Context, clientTempID string) (messageID string, seen bool, err error)
	MarkProcessed(ctx context.Context, clientTempID, messageID string) error
}

// ===== Redis implementation (shared across gateways) =====

type RedisIdem struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdem(rdb *redis.Client, ttl time.Duration) *RedisIdem {
	return &RedisIdem{rdb: rdb, ttl: ttl}
}

func (s *RedisIdem) AlreadyProcessed(ctx context.Context, clientTempID string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, global.IdemKey(clientTempID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "idem check")
	}
	return val, true, nil
}

func (s *RedisIdem) MarkProcessed(ctx context.Context, clientTempID, messageID string) error {
	err := s.rdb.SetNX(ctx, global.IdemKey(clientTempID), messageID, s.ttl).Err()
	return errors.Wrap(err, "idem mark")
}

// ===== In-memory implementation (single process, tests) =====

type memIdemEntry struct {
	messageID string
	expireAt  time.Time
}

type memIdem struct {
	mu  sync.Mutex
	m   map[string]memIdemEntry
	ttl time.Duration
}

func NewMemIdem(ttl time.Duration) IdemStore {
	mi := &memIdem{m: make(map[string]memIdemEntry), ttl: ttl}
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for range t.C {
			now := time.Now()
			mi.mu.Lock()
			for k, e := range mi.m {
				if !e.expireAt.After(now) {
					delete(mi.m, k)
				}
			}
			mi.mu.Unlock()
		}
	}()
	return mi
}

func (mi *memIdem) AlreadyProcessed(_ context.Context, key string) (string, bool, error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	e, ok := mi.m[key]
	if !ok || !e.expireAt.After(time.Now()) {
		return "", false, nil
	}
	return e.messageID, true, nil
}

func (mi *memIdem) MarkProcessed(_ context.Context, key, messageID string) error {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	// An expired entry the janitor has not swept yet must not block a
	// re-executed send from recording its new message ID.
	if e, ok := mi.m[key]; ok && e.expireAt.After(time.Now()) {
		return nil
	}
	mi.m[key] = memIdemEntry{messageID: messageID, expireAt: time.Now().Add(mi.ttl)}
	return nil
}
