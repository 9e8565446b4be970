package chat

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// ParticipantLookup is the authoritative membership collaborator.
type ParticipantLookup interface {
	Participants(ctx context.Context, chatID string) ([]string, error)
}

type cachedParticipants struct {
	members  []string
	cachedAt time.Time
}

// ParticipantCache fronts membership lookups with a capacity-bounded LRU
// and a freshness TTL. Invalidation is time-based only; membership changes
// are invisible to in-flight fan-out for at most the TTL.
type ParticipantCache struct {
	cache  *lru.Cache
	ttl    time.Duration
	loader ParticipantLookup
	clock  func() time.Time
}

func NewParticipantCache(size int, ttl time.Duration, loader ParticipantLookup) (*ParticipantCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ParticipantCache{cache: c, ttl: ttl, loader: loader, clock: time.Now}, nil
}

// Get returns the member user IDs of a chat, hitting the collaborator on
// miss or staleness.
func (p *ParticipantCache) Get(ctx context.Context, chatID string) ([]string, error) {
	if v, ok := p.cache.Get(chatID); ok {
		entry := v.(cachedParticipants)
		if p.clock().Sub(entry.cachedAt) < p.ttl {
			return entry.members, nil
		}
		p.cache.Remove(chatID)
	}
	members, err := p.loader.Participants(ctx, chatID)
	if err != nil {
		return nil, err
	}
	p.cache.Add(chatID, cachedParticipants{members: members, cachedAt: p.clock()})
	return members, nil
}
