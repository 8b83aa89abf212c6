package container

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingFIFOAndCapacity(t *testing.T) {
	r := NewRing[int](3, false)
	require.True(t, r.Push(1))
	require.True(t, r.Push(2))
	require.True(t, r.Push(3))
	require.False(t, r.Push(4), "full ring without overwrite must reject")

	v, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestRingOverwriteEvictsOldest(t *testing.T) {
	r := NewRing[int](2, true)
	r.Push(1)
	r.Push(2)
	r.Push(3) // evicts 1

	v, _ := r.Pop()
	require.Equal(t, 2, v)
}
