package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemIdemMarkAndCheck(t *testing.T) {
	idem := NewMemIdem(time.Minute)
	ctx := context.Background()

	_, seen, err := idem.AlreadyProcessed(ctx, "tmp-1")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, idem.MarkProcessed(ctx, "tmp-1", "msg-abc"))

	id, seen, err := idem.AlreadyProcessed(ctx, "tmp-1")
	require.NoError(t, err)
	require.True(t, seen)
	require.Equal(t, "msg-abc", id)
}

func TestMemIdemFirstWriteWins(t *testing.T) {
	idem := NewMemIdem(time.Minute)
	ctx := context.Background()

	require.NoError(t, idem.MarkProcessed(ctx, "tmp-1", "msg-first"))
	require.NoError(t, idem.MarkProcessed(ctx, "tmp-1", "msg-second"))

	id, seen, err := idem.AlreadyProcessed(ctx, "tmp-1")
	require.NoError(t, err)
	require.True(t, seen)
	require.Equal(t, "msg-first", id)
}

func TestMemIdemExpiredEntryRewritable(t *testing.T) {
	idem := NewMemIdem(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, idem.MarkProcessed(ctx, "tmp-1", "msg-old"))
	time.Sleep(40 * time.Millisecond)

	// The janitor sweeps once a minute; the stale entry must not block a
	// re-executed send from recording its new message ID.
	require.NoError(t, idem.MarkProcessed(ctx, "tmp-1", "msg-new"))

	id, seen, err := idem.AlreadyProcessed(ctx, "tmp-1")
	require.NoError(t, err)
	require.True(t, seen)
	require.Equal(t, "msg-new", id)
}

func TestMemIdemExpiry(t *testing.T) {
	idem := NewMemIdem(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, idem.MarkProcessed(ctx, "tmp-1", "msg-abc"))
	time.Sleep(40 * time.Millisecond)

	_, seen, err := idem.AlreadyProcessed(ctx, "tmp-1")
	require.NoError(t, err)
	require.False(t, seen)
}
