package storage

import (
	"context"
	"strconv"
	"time"

	"ChirpChat/global"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// PresenceRecord is the shared per-user presence state. One hash per user:
// is_online, gateway_id, last_seen (unix ms), mood.
type PresenceRecord struct {
	UserID    string    `json:"user_id"`
	IsOnline  bool      `json:"is_online"`
	GatewayID string    `json:"gateway_id,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
	Mood      string    `json:"mood,omitempty"`
}

// PresenceStore mutates the shared presence hashes. The grace-period state
// machine lives in the hub; this store only knows online/offline.
type PresenceStore struct {
	rdb           *redis.Client
	lastSeenEvery time.Duration
}

func NewPresenceStore(rdb *redis.Client, lastSeenEvery time.Duration) *PresenceStore {
	return &PresenceStore{rdb: rdb, lastSeenEvery: lastSeenEvery}
}

// Online marks the user online and records the owning gateway.
func (s *PresenceStore) Online(ctx context.Context, userID, gatewayID string) error {
	err := s.rdb.HSet(ctx, global.PresenceKey(userID),
		"is_online", "1",
		"gateway_id", gatewayID,
		"last_seen", strconv.FormatInt(time.Now().UnixMilli(), 10),
	).Err()
	return errors.Wrap(err, "presence online")
}

// Offline marks the user offline. The gateway_id is kept for diagnostics.
func (s *PresenceStore) Offline(ctx context.Context, userID string) error {
	err := s.rdb.HSet(ctx, global.PresenceKey(userID),
		"is_online", "0",
		"last_seen", strconv.FormatInt(time.Now().UnixMilli(), 10),
	).Err()
	return errors.Wrap(err, "presence offline")
}

// Owner reports whether the user is online and which gateway owns the
// connection. Used by grace timers to re-check ownership before flipping.
func (s *PresenceStore) Owner(ctx context.Context, userID string) (string, bool, error) {
	vals, err := s.rdb.HMGet(ctx, global.PresenceKey(userID), "is_online", "gateway_id").Result()
	if err != nil {
		return "", false, errors.Wrap(err, "presence owner")
	}
	online := false
	if v, ok := vals[0].(string); ok {
		online = v == "1"
	}
	gw := ""
	if v, ok := vals[1].(string); ok {
		gw = v
	}
	return gw, online, nil
}

// Touch refreshes last_seen at most once per configured interval. Returns
// true when a write actually happened.
func (s *PresenceStore) Touch(ctx context.Context, userID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, global.LastSeenThrottleKey(userID), "1", s.lastSeenEvery).Result()
	if err != nil {
		return false, errors.Wrap(err, "presence touch")
	}
	if !ok {
		return false, nil
	}
	err = s.rdb.HSet(ctx, global.PresenceKey(userID),
		"last_seen", strconv.FormatInt(time.Now().UnixMilli(), 10),
	).Err()
	return err == nil, errors.Wrap(err, "presence touch write")
}

// SetMood stores the user's mood on the presence record.
func (s *PresenceStore) SetMood(ctx context.Context, userID, mood string) error {
	err := s.rdb.HSet(ctx, global.PresenceKey(userID), "mood", mood).Err()
	return errors.Wrap(err, "presence mood")
}

// Snapshot reads the full presence record. A missing hash reads as offline.
func (s *PresenceStore) Snapshot(ctx context.Context, userID string) (PresenceRecord, error) {
	rec := PresenceRecord{UserID: userID}
	vals, err := s.rdb.HGetAll(ctx, global.PresenceKey(userID)).Result()
	if err != nil {
		return rec, errors.Wrap(err, "presence snapshot")
	}
	rec.IsOnline = vals["is_online"] == "1"
	rec.GatewayID = vals["gateway_id"]
	rec.Mood = vals["mood"]
	if ms, err := strconv.ParseInt(vals["last_seen"], 10, 64); err == nil {
		rec.LastSeen = time.UnixMilli(ms)
	}
	return rec, nil
}
