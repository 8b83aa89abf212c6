package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/rpcengine/api"
)

func TestSimpleCodecEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewSimpleCodec()
	enc.SetCmd(7)
	enc.SetSvrType(3)
	enc.SetGid(42)
	enc.SetSeqID(99)
	enc.SetSrc(1)
	enc.SetDst(2)
	enc.SetTimeout(123456)
	enc.SetRetCode(api.Success)
	enc.SetVersion(1)
	enc.SetFlag(0x0001)
	enc.SetBody([]byte("hello"))

	wire, ok := enc.Encode()
	require.True(t, ok)
	require.True(t, enc.HasEncoded())

	dec := NewSimpleCodec()
	require.True(t, dec.Decode(wire))
	require.True(t, dec.HasDecoded())
	require.Equal(t, uint32(7), dec.Cmd())
	require.Equal(t, uint32(3), dec.SvrType())
	require.Equal(t, uint64(42), dec.Gid())
	require.Equal(t, uint64(99), dec.SeqID())
	require.Equal(t, uint32(1), dec.Src())
	require.Equal(t, uint32(2), dec.Dst())
	require.Equal(t, uint64(123456), dec.Timeout())
	require.Equal(t, api.Success, dec.RetCode())
	require.Equal(t, uint32(1), dec.Version())
	require.Equal(t, uint16(0x0001), dec.Flag())
	require.Equal(t, []byte("hello"), dec.Body())
}

func TestSimpleCodecDecodeRejectsShortHeader(t *testing.T) {
	c := NewSimpleCodec()
	require.False(t, c.Decode(make([]byte, headerSize-1)))
	require.False(t, c.HasDecoded())
}

func TestSimpleCodecDecodeRejectsTruncatedBody(t *testing.T) {
	enc := NewSimpleCodec()
	enc.SetBody([]byte("0123456789"))
	wire, _ := enc.Encode()

	dec := NewSimpleCodec()
	require.False(t, dec.Decode(wire[:len(wire)-3]))
}

func TestSimpleCodecBodyBufReusesBackingArray(t *testing.T) {
	c := NewSimpleCodec()
	buf := c.BodyBuf(4)
	require.Len(t, buf, 4)
	copy(buf, []byte{1, 2, 3, 4})

	smaller := c.BodyBuf(2)
	require.Len(t, smaller, 2)
	require.Equal(t, []byte{1, 2}, smaller)
}

func TestSimpleCodecResetClearsAllFields(t *testing.T) {
	c := NewSimpleCodec()
	c.SetCmd(5)
	c.SetBody([]byte("x"))
	c.Reset()
	require.Equal(t, uint32(0), c.Cmd())
	require.Empty(t, c.Body())
	require.False(t, c.HasDecoded())
}
