package timer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWheelFiresInDeadlineThenIDOrder(t *testing.T) {
	w := New()
	var fired []uint64
	record := func(id uint64, _ uint32) { fired = append(fired, id) }

	idA := w.Add(record, 100, 0)
	idB := w.Add(record, 100, 0) // same deadline, later id -> fires after idA
	idC := w.Add(record, 50, 0)

	n := w.Drain(100)
	require.Equal(t, 3, n)
	require.Equal(t, []uint64{idC, idA, idB}, fired)
}

func TestWheelCancelIsIdempotent(t *testing.T) {
	w := New()
	id := w.Add(func(uint64, uint32) {}, 10, 0)
	require.True(t, w.Cancel(id))
	require.False(t, w.Cancel(id))
	require.False(t, w.Cancel(999))
}

func TestWheelIntervalRearms(t *testing.T) {
	w := New()
	count := 0
	w.Add(func(uint64, uint32) { count++ }, 10, 10)

	w.Drain(10)
	require.Equal(t, 1, count)
	require.Equal(t, 1, w.Len())

	w.Drain(19)
	require.Equal(t, 1, count)

	w.Drain(20)
	require.Equal(t, 2, count)
}

func TestWheelTaskCanCancelSelfDuringFire(t *testing.T) {
	w := New()
	var selfID uint64
	fired := false
	selfID = w.Add(func(id uint64, _ uint32) {
		fired = true
		require.False(t, w.Cancel(selfID)) // already removed before invocation
	}, 5, 0)

	n := w.Drain(5)
	require.Equal(t, 1, n)
	require.True(t, fired)
	require.False(t, w.Exists(selfID))
}
