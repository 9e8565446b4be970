package errs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestWithDetailCopies(t *testing.T) {
	base := ErrThrottled
	detailed := base.WithDetail("slow down")

	require.Equal(t, CodeThrottled, detailed.Code)
	require.Contains(t, detailed.Error(), "slow down")
	require.Empty(t, base.Detail, "sentinel must stay untouched")
}

func TestIsMatchesByCode(t *testing.T) {
	err := ErrPermission.WithDetail("chat-1")
	require.ErrorIs(t, err, ErrPermission)
	require.NotErrorIs(t, err, ErrThrottled)

	wrapped := errors.Wrap(err, "membership check")
	require.ErrorIs(t, wrapped, ErrPermission)
}

func TestAsCode(t *testing.T) {
	ce := AsCode(ErrNotFound.WithDetail("message m1"))
	require.Equal(t, CodeNotFound, ce.Code)

	ce = AsCode(errors.New("redis gone"))
	require.Equal(t, CodeStoreFailed, ce.Code)
	require.Contains(t, ce.Detail, "redis gone")
}
