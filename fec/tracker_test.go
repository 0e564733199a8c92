package fec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerDense(t *testing.T) {
	tracker := NewRecvdTracker(100)

	for _, id := range []uint32{0, 1, 57, 99} {
		require.False(t, tracker.CheckPresent(id))
		require.False(t, tracker.CheckPresentAndMarkRecvd(id))
		require.True(t, tracker.CheckPresent(id))
		require.True(t, tracker.CheckPresentAndMarkRecvd(id))
	}
	require.False(t, tracker.CheckPresent(2))
}

func TestTrackerSparse(t *testing.T) {
	tracker := NewRecvdTracker(100)

	for _, id := range []uint32{100, 101, 254, 70000, 1 << 31} {
		require.False(t, tracker.CheckPresent(id))
		require.False(t, tracker.CheckPresentAndMarkRecvd(id))
		require.True(t, tracker.CheckPresent(id))
		require.True(t, tracker.CheckPresentAndMarkRecvd(id))
	}
	require.False(t, tracker.CheckPresent(255))
}

func TestTrackerSparseGrowth(t *testing.T) {
	tracker := NewRecvdTracker(10)

	//enough ids to force several table doublings
	for i := 0; i < 5000; i++ {
		id := uint32(10 + i*7)
		require.False(t, tracker.CheckPresentAndMarkRecvd(id), "id %d", id)
	}
	for i := 0; i < 5000; i++ {
		id := uint32(10 + i*7)
		require.True(t, tracker.CheckPresent(id), "id %d", id)
		require.True(t, tracker.CheckPresentAndMarkRecvd(id), "id %d", id)
	}
	//ids never inserted
	require.False(t, tracker.CheckPresent(11))
	require.False(t, tracker.CheckPresent(10+5000*7))
}

func TestIdSetProbing(t *testing.T) {
	var s idSet

	//ids colliding on the initial 16 slot table
	for _, id := range []uint32{16, 32, 48, 64} {
		require.True(t, s.insert(id))
	}
	for _, id := range []uint32{16, 32, 48, 64} {
		require.True(t, s.contains(id))
		require.False(t, s.insert(id))
	}
	require.False(t, s.contains(80))
	require.Equal(t, 4, s.size())
}
