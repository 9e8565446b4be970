package storage

import (
	"context"
	"strconv"
	"time"

	"ChirpChat/global"
	"ChirpChat/logger"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// EventLog is the shared sequencer plus the bounded replay log.
//
// Sequence numbers come from a single INCR, so they are strictly increasing
// and never reused even with many gateways publishing concurrently. Logged
// envelopes are kept in a ZSET scored by sequence; a mirror ZSET scored by
// publish time drives the age-based trim.
type EventLog struct {
	rdb        *redis.Client
	maxEntries int
	ttl        time.Duration
}

func NewEventLog(rdb *redis.Client, maxEntries int, ttl time.Duration) *EventLog {
	return &EventLog{rdb: rdb, maxEntries: maxEntries, ttl: ttl}
}

// NextSequence atomically allocates the next global sequence number.
func (l *EventLog) NextSequence(ctx context.Context) (int64, error) {
	seq, err := l.rdb.Incr(ctx, global.SequenceKey).Result()
	return seq, errors.Wrap(err, "sequence incr")
}

// Append inserts a serialized envelope at the given sequence and kicks off
// an asynchronous trim. Must be called before Publish so a replaying client
// cannot observe a gap that never fills.
func (l *EventLog) Append(ctx context.Context, seq int64, envelope []byte) error {
	now := time.Now()
	pipe := l.rdb.Pipeline()
	pipe.ZAdd(ctx, global.EventLogKey, redis.Z{Score: float64(seq), Member: string(envelope)})
	pipe.ZAdd(ctx, global.EventLogTimeKey, redis.Z{Score: float64(now.UnixMilli()), Member: string(envelope)})
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "eventlog append")
	}
	go l.trim()
	return nil
}

// Publish pushes the envelope onto the shared broadcast channel.
func (l *EventLog) Publish(ctx context.Context, envelope []byte) error {
	err := l.rdb.Publish(ctx, global.BroadcastChannel, envelope).Err()
	return errors.Wrap(err, "eventlog publish")
}

// Subscribe opens a subscription on the shared broadcast channel. Each
// gateway process holds exactly one.
func (l *EventLog) Subscribe(ctx context.Context) *redis.PubSub {
	return l.rdb.Subscribe(ctx, global.BroadcastChannel)
}

// Replay returns serialized envelopes with sequence > since, ascending.
// Target filtering is the caller's job; the log stores whole envelopes.
func (l *EventLog) Replay(ctx context.Context, since int64) ([][]byte, error) {
	rows, err := l.rdb.ZRangeByScore(ctx, global.EventLogKey, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "eventlog replay")
	}
	out := make([][]byte, 0, len(rows))
	for _, r := range rows {
		out = append(out, []byte(r))
	}
	return out, nil
}

// trim enforces both retention bounds: entry count and wall-clock age.
// Entries past either bound are not guaranteed retrievable.
func (l *EventLog) trim() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Age bound: collect expired members from the time mirror, drop from both.
	cutoff := strconv.FormatInt(time.Now().Add(-l.ttl).UnixMilli(), 10)
	expired, err := l.rdb.ZRangeByScore(ctx, global.EventLogTimeKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		logger.Warnf("[eventlog] trim scan failed: %v", err)
		return
	}
	if len(expired) > 0 {
		members := make([]interface{}, len(expired))
		for i, m := range expired {
			members[i] = m
		}
		pipe := l.rdb.Pipeline()
		pipe.ZRem(ctx, global.EventLogKey, members...)
		pipe.ZRemRangeByScore(ctx, global.EventLogTimeKey, "-inf", cutoff)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warnf("[eventlog] age trim failed: %v", err)
		}
	}

	// Count bound: keep only the newest maxEntries by sequence.
	card, err := l.rdb.ZCard(ctx, global.EventLogKey).Result()
	if err != nil || card <= int64(l.maxEntries) {
		return
	}
	excess := card - int64(l.maxEntries)
	victims, err := l.rdb.ZRange(ctx, global.EventLogKey, 0, excess-1).Result()
	if err != nil {
		logger.Warnf("[eventlog] count trim scan failed: %v", err)
		return
	}
	if len(victims) > 0 {
		members := make([]interface{}, len(victims))
		for i, m := range victims {
			members[i] = m
		}
		pipe := l.rdb.Pipeline()
		pipe.ZRem(ctx, global.EventLogKey, members...)
		pipe.ZRem(ctx, global.EventLogTimeKey, members...)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warnf("[eventlog] count trim failed: %v", err)
		}
	}
}
