package container

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixedPoolAllocFreeSize(t *testing.T) {
	p := NewFixedPool[int](4)
	h1 := p.Alloc(false)
	h2 := p.Alloc(false)
	require.NotZero(t, h1)
	require.NotZero(t, h2)
	require.Equal(t, 2, p.Size())

	p.Set(h1, 100)
	p.Set(h2, 200)

	require.True(t, p.Free(h1))
	require.Equal(t, 1, p.Size())

	h3 := p.Alloc(false)
	require.Equal(t, h1, h3, "freed slot should be reused before bumping rawUsed")
}

func TestFixedPoolEachVisitsInsertionOrder(t *testing.T) {
	p := NewFixedPool[int](8)
	var handles []int
	for i := 0; i < 5; i++ {
		h := p.Alloc(false)
		p.Set(h, i*10)
		handles = append(handles, h)
	}
	p.Free(handles[1])

	var seen []int
	p.Each(func(h int, v int) { seen = append(seen, v) })
	require.Equal(t, []int{0, 20, 30, 40}, seen)
}

func TestFixedPoolFreeRejectsInvalidHandles(t *testing.T) {
	p := NewFixedPool[int](2)
	require.False(t, p.Free(0))
	require.False(t, p.Free(99))
	h := p.Alloc(false)
	require.True(t, p.Free(h))
	require.False(t, p.Free(h), "double free must fail without corrupting state")
}
