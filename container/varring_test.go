package container

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarRingFIFOOrder(t *testing.T) {
	r := NewVarRing(64, false)
	require.True(t, r.Push([]byte("ab")))
	require.True(t, r.Push([]byte("cde")))
	require.True(t, r.Push([]byte("f")))

	var out bytes.Buffer
	for {
		rec, ok := r.Pop()
		if !ok {
			break
		}
		out.Write(rec)
	}
	require.Equal(t, "abcdef", out.String())
}

func TestVarRingWrapsWithPadding(t *testing.T) {
	r := NewVarRing(20, false)
	require.True(t, r.Push([]byte("12345678"))) // need=13, tail=13, 7 bytes left before end

	rec, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, "12345678", string(rec))

	// Only 7 bytes remain before the physical end but this record needs 8;
	// the ring must pad the remainder and wrap to offset 0.
	require.True(t, r.Push([]byte("xyz")))

	rec2, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, "xyz", string(rec2), "reader must silently skip the padding record")
}

func TestVarRingOverwriteEvictsOldest(t *testing.T) {
	r := NewVarRing(24, true)
	require.True(t, r.Push([]byte("aaaa")))
	require.True(t, r.Push([]byte("bbbb")))
	// Buffer full-ish; a third push should evict "aaaa" to make room.
	require.True(t, r.Push([]byte("cccc")))

	rec, ok := r.Pop()
	require.True(t, ok)
	require.NotEqual(t, "aaaa", string(rec))
}
