package chat

import (
	"context"
	"encoding/json"
	"time"

	"ChirpChat/logger"

	"github.com/redis/go-redis/v9"
)

// Bus is the shared sequencer + log + channel contract the broadcaster
// publishes through (Redis in production).
type Bus interface {
	NextSequence(ctx context.Context) (int64, error)
	Append(ctx context.Context, seq int64, envelope []byte) error
	Publish(ctx context.Context, envelope []byte) error
	Replay(ctx context.Context, since int64) ([][]byte, error)
}

// ===== Local delivery worker pool =====

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

type Fanout struct {
	jobs chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range f.jobs {
				for _, c := range job.conns {
					// Enqueue never blocks; a slow client just misses the frame.
					c.Enqueue(job.payload)
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Deliver(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload}
}

// ===== Broadcaster =====

// Broadcaster implements the cross-process fan-out protocol: stamp, log,
// publish on the way out; subscribe, intersect, deliver on the way in.
type Broadcaster struct {
	bus     Bus
	reg     *Registry
	fan     *Fanout
	backoff time.Duration
}

func NewBroadcaster(bus Bus, reg *Registry, fan *Fanout, backoff time.Duration) *Broadcaster {
	return &Broadcaster{bus: bus, reg: reg, fan: fan, backoff: backoff}
}

// Broadcast publishes an addressed event to every subscribed gateway.
// Logged events get a sequence from the shared counter and enter the replay
// log before the publish, so a client can never fetch a sequence it was
// about to miss. Returns the assigned sequence (0 for transient events).
func (b *Broadcaster) Broadcast(ctx context.Context, targets []string, ev Outbound) (int64, error) {
	if len(targets) == 0 {
		return 0, nil
	}
	var seq int64
	if ev.Logged() {
		var err error
		seq, err = b.bus.NextSequence(ctx)
		if err != nil {
			return 0, err
		}
		if s, ok := ev.(sequenced); ok {
			s.setSequence(seq)
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	envelope, err := json.Marshal(Envelope{Sequence: seq, TargetUserIDs: targets, Payload: payload})
	if err != nil {
		return 0, err
	}

	if ev.Logged() {
		if err := b.bus.Append(ctx, seq, envelope); err != nil {
			return 0, err
		}
	}
	if err := b.bus.Publish(ctx, envelope); err != nil {
		return 0, err
	}
	return seq, nil
}

// HandleEnvelope delivers one received envelope to matching local
// connections. A gateway with no matching connections does nothing beyond
// the intersection check.
func (b *Broadcaster) HandleEnvelope(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Warnf("[fanout] bad envelope: %v", err)
		return
	}
	for _, uid := range env.TargetUserIDs {
		conns := b.reg.ListByUser(uid)
		if len(conns) == 0 {
			continue
		}
		b.fan.Deliver(conns, env.Payload)
	}
}

// Run is the per-process subscriber loop. It lives for the lifetime of the
// gateway; transient channel errors are retried with backoff, never
// surfaced to clients.
func (b *Broadcaster) Run(ctx context.Context, subscribe func(context.Context) *redis.PubSub) {
	for {
		if ctx.Err() != nil {
			return
		}
		ps := subscribe(ctx)
		logger.Info("[fanout] subscribed to broadcast channel")
		ch := ps.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				b.HandleEnvelope([]byte(msg.Payload))
			}
		}
		_ = ps.Close()
		logger.Warnf("[fanout] broadcast channel lost, retrying in %s", b.backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.backoff):
		}
	}
}

// ReplayFor reconstructs what a user missed: payloads of logged envelopes
// with sequence > since that address the user, ascending.
func (b *Broadcaster) ReplayFor(ctx context.Context, since int64, userID string) ([]json.RawMessage, error) {
	raws, err := b.bus.Replay(ctx, since)
	if err != nil {
		return nil, err
	}
	return FilterEnvelopes(raws, userID), nil
}

// FilterEnvelopes keeps the payloads addressed to the given user, in input
// order.
func FilterEnvelopes(raws [][]byte, userID string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(raws))
	for _, raw := range raws {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warnf("[fanout] bad logged envelope: %v", err)
			continue
		}
		for _, uid := range env.TargetUserIDs {
			if uid == userID {
				out = append(out, env.Payload)
				break
			}
		}
	}
	return out
}
