package container

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intHash(k int) uint64 { return uint64(k) }

func TestLRUMapDisuseWithHaltingPredicate(t *testing.T) {
	m := NewLRUMap[int, string](3, intHash)
	require.True(t, m.Insert(1, "a", false, nil))
	require.True(t, m.Insert(2, "b", false, nil))
	require.True(t, m.Insert(3, "c", false, nil))
	// Recency order least->most: 1, 2, 3

	removed := m.Disuse(5, func(k int) bool { return k != 2 })
	require.Equal(t, 1, removed, "predicate rejecting key 2 must halt eviction there")
	require.False(t, m.Exist(1))
	require.True(t, m.Exist(2))
	require.True(t, m.Exist(3))
}

func TestLRUMapActiveMovesToMostRecent(t *testing.T) {
	m := NewLRUMap[int, string](3, intHash)
	m.Insert(1, "a", false, nil)
	m.Insert(2, "b", false, nil)
	m.Insert(3, "c", false, nil)

	require.True(t, m.Active(3))
	// Active(3) leaves the order least->most at 1,2,3 since 3 was already
	// most-recent; Active(1) then makes it 2,3,1, so 2 is least-recent.
	require.True(t, m.Active(1))
	removed := m.Disuse(1, nil)
	require.Equal(t, 1, removed)
	require.False(t, m.Exist(2), "2 should now be least-recent and evicted")
}

func TestLRUMapForceInsertEvictsLeastRecent(t *testing.T) {
	m := NewLRUMap[int, string](2, intHash)
	m.Insert(1, "a", false, nil)
	m.Insert(2, "b", false, nil)
	ok := m.Insert(3, "c", true, func(int) bool { return true })
	require.True(t, ok)
	require.False(t, m.Exist(1))
	require.True(t, m.Exist(2))
	require.True(t, m.Exist(3))
}
