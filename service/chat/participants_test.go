package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingLookup struct {
	mu      sync.Mutex
	loads   int
	members map[string][]string
}

func (l *countingLookup) Participants(_ context.Context, chatID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	return l.members[chatID], nil
}

func TestParticipantCacheHitWithinTTL(t *testing.T) {
	loader := &countingLookup{members: map[string][]string{"chat-1": {"alice", "bob"}}}
	pc, err := NewParticipantCache(8, time.Minute, loader)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := pc.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, got)

	_, err = pc.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, 1, loader.loads)
}

func TestParticipantCacheTTLExpiry(t *testing.T) {
	loader := &countingLookup{members: map[string][]string{"chat-1": {"alice"}}}
	pc, err := NewParticipantCache(8, 50*time.Millisecond, loader)
	require.NoError(t, err)

	now := time.Now()
	pc.clock = func() time.Time { return now }
	ctx := context.Background()

	_, err = pc.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, 1, loader.loads)

	// Still fresh.
	now = now.Add(30 * time.Millisecond)
	_, err = pc.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, 1, loader.loads)

	// Stale: the next read goes back to the collaborator.
	now = now.Add(30 * time.Millisecond)
	loader.members["chat-1"] = []string{"alice", "carol"}
	got, err := pc.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "carol"}, got)
	require.Equal(t, 2, loader.loads)
}

func TestParticipantCacheLRUEviction(t *testing.T) {
	loader := &countingLookup{members: map[string][]string{
		"chat-1": {"alice"},
		"chat-2": {"bob"},
	}}
	pc, err := NewParticipantCache(1, time.Minute, loader)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = pc.Get(ctx, "chat-1")
	require.NoError(t, err)
	_, err = pc.Get(ctx, "chat-2") // evicts chat-1
	require.NoError(t, err)
	_, err = pc.Get(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, 3, loader.loads)
}
