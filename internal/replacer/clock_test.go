package replacer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClockReplacer_Evict_NoneTracked(t *testing.T) {
	r := NewClockReplacer(4)
	_, ok := r.Victim()
	require.False(t, ok)
}

func TestClockReplacer_SecondChance(t *testing.T) {
	r := NewClockReplacer(3)

	r.Unpin(0)
	r.Unpin(1)
	r.Unpin(2)
	require.Equal(t, 3, r.Size())

	v1, ok := r.Victim()
	require.True(t, ok)
	require.GreaterOrEqual(t, int(v1), 0)
	require.Less(t, int(v1), 3)
	require.Equal(t, 2, r.Size())

	v2, ok := r.Victim()
	require.True(t, ok)
	require.NotEqual(t, v1, v2)

	v3, ok := r.Victim()
	require.True(t, ok)
	require.NotEqual(t, v1, v3)
	require.NotEqual(t, v2, v3)

	_, ok = r.Victim()
	require.False(t, ok)
}

func TestClockReplacer_Pin_RemovesFromTracking(t *testing.T) {
	r := NewClockReplacer(2)

	r.Unpin(0)
	r.Unpin(1)
	r.Pin(0)

	require.Equal(t, 1, r.Size())
	v, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, FrameID(1), v)
}
