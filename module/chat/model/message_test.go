package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReactionsToggle(t *testing.T) {
	r := Reactions{}

	r.Toggle("❤️", "alice")
	require.Equal(t, []string{"alice"}, r["❤️"])

	r.Toggle("❤️", "bob")
	require.Equal(t, []string{"alice", "bob"}, r["❤️"])

	r.Toggle("❤️", "alice")
	require.Equal(t, []string{"bob"}, r["❤️"])

	// Last user out drops the bucket.
	r.Toggle("❤️", "bob")
	_, ok := r["❤️"]
	require.False(t, ok)
}

func TestReactionsToggleIndependentEmoji(t *testing.T) {
	r := Reactions{}
	r.Toggle("👍", "alice")
	r.Toggle("😂", "alice")
	r.Toggle("👍", "alice")

	require.NotContains(t, r, "👍")
	require.Equal(t, []string{"alice"}, r["😂"])
}

func TestValidMode(t *testing.T) {
	require.True(t, ValidMode(ModeNormal))
	require.True(t, ValidMode(ModeFight))
	require.True(t, ValidMode(ModeIncognito))
	require.False(t, ValidMode(""))
	require.False(t, ValidMode("stealth"))
}
