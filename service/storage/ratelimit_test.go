package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLimiter(limit int, window time.Duration) (*memRateLimiter, *time.Time) {
	l := NewMemRateLimiter(map[string]RateLimit{
		RateClassMessage: {Limit: limit, Window: window},
	}).(*memRateLimiter)
	now := time.Unix(1700000000, 0)
	l.clock = func() time.Time { return now }
	return l, &now
}

func TestMemRateLimiterEnforcesLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "alice", RateClassMessage)
		require.NoError(t, err)
		require.True(t, ok, "request %d should pass", i)
	}
	ok, err := l.Allow(ctx, "alice", RateClassMessage)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemRateLimiterSlidingWindow(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "alice", RateClassMessage)
	require.True(t, ok)

	*now = now.Add(40 * time.Second)
	ok, _ = l.Allow(ctx, "alice", RateClassMessage)
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "alice", RateClassMessage)
	require.False(t, ok)

	// The first slot falls out of the window; the second is still inside.
	*now = now.Add(30 * time.Second)
	ok, _ = l.Allow(ctx, "alice", RateClassMessage)
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "alice", RateClassMessage)
	require.False(t, ok)
}

func TestMemRateLimiterIsolatesUsersAndClasses(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "alice", RateClassMessage)
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "alice", RateClassMessage)
	require.False(t, ok)

	// Another user is unaffected.
	ok, _ = l.Allow(ctx, "bob", RateClassMessage)
	require.True(t, ok)

	// Unconfigured classes are not limited.
	for i := 0; i < 10; i++ {
		ok, err := l.Allow(ctx, "alice", RateClassReaction)
		require.NoError(t, err)
		require.True(t, ok)
	}
}
