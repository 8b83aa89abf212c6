// File: transport/codec.go
// Author: momentics <momentics@gmail.com>
//
// SimpleCodec is a reference, not-the-deliverable implementation of the
// ReadCodec/WriteCodec contracts (§1, §6): a fixed-width header followed by
// a variable-length body, enough to drive the dispatcher's end-to-end test
// scenarios (§8) without committing the core to any particular wire
// format. Concrete wire-format encoder/decoders remain explicitly out of
// scope; this one exists only so loopback/TCP Channel reference
// implementations have something to hand the dispatcher.

package transport

import (
	"encoding/binary"

	"github.com/momentics/rpcengine/api"
)

const headerSize = 4 + 4 + 8 + 8 + 4 + 4 + 8 + 4 + 4 + 2 + 4

// SimpleCodec implements both api.RecvCodec and api.SendCodec: the header
// layout is symmetric, so one struct serves both read and write sides
// (mirroring how a single concrete C++ PkgHead served both directions in
// the original).
type SimpleCodec struct {
	cmd     uint32
	svrType uint32
	gid     uint64
	seqID   uint64
	src     uint32
	dst     uint32
	timeout uint64
	retCode api.RpcError
	version uint32
	flag    uint16
	body    []byte

	raw     []byte
	decoded bool
	encoded bool
}

// NewSimpleCodec returns an empty, reusable codec instance.
func NewSimpleCodec() *SimpleCodec { return &SimpleCodec{} }

var (
	_ api.RecvCodec = (*SimpleCodec)(nil)
	_ api.SendCodec = (*SimpleCodec)(nil)
)

func (c *SimpleCodec) Cmd() uint32         { return c.cmd }
func (c *SimpleCodec) SvrType() uint32     { return c.svrType }
func (c *SimpleCodec) Gid() uint64         { return c.gid }
func (c *SimpleCodec) SeqID() uint64       { return c.seqID }
func (c *SimpleCodec) Src() uint32         { return c.src }
func (c *SimpleCodec) Dst() uint32         { return c.dst }
func (c *SimpleCodec) Timeout() uint64     { return c.timeout }
func (c *SimpleCodec) RetCode() api.RpcError { return c.retCode }
func (c *SimpleCodec) Version() uint32     { return c.version }
func (c *SimpleCodec) Flag() uint16        { return c.flag }
func (c *SimpleCodec) Body() []byte        { return c.body }
func (c *SimpleCodec) RawData() []byte     { return c.raw }
func (c *SimpleCodec) HasDecoded() bool    { return c.decoded }
func (c *SimpleCodec) HasEncoded() bool    { return c.encoded }

func (c *SimpleCodec) SetCmd(v uint32)         { c.cmd = v }
func (c *SimpleCodec) SetSvrType(v uint32)     { c.svrType = v }
func (c *SimpleCodec) SetGid(v uint64)         { c.gid = v }
func (c *SimpleCodec) SetSeqID(v uint64)       { c.seqID = v }
func (c *SimpleCodec) SetSrc(v uint32)         { c.src = v }
func (c *SimpleCodec) SetDst(v uint32)         { c.dst = v }
func (c *SimpleCodec) SetTimeout(v uint64)     { c.timeout = v }
func (c *SimpleCodec) SetRetCode(v api.RpcError) { c.retCode = v }
func (c *SimpleCodec) SetVersion(v uint32)     { c.version = v }
func (c *SimpleCodec) SetFlag(v uint16)        { c.flag = v }

// BodyBuf returns a caller-writable buffer of at most maxLen bytes.
func (c *SimpleCodec) BodyBuf(maxLen int) []byte {
	if cap(c.body) < maxLen {
		c.body = make([]byte, maxLen)
	} else {
		c.body = c.body[:maxLen]
	}
	return c.body
}

// SetBody copies data into the codec's body.
func (c *SimpleCodec) SetBody(data []byte) bool {
	c.body = append(c.body[:0], data...)
	return true
}

// Reset clears every field so the codec can be reused for another frame.
func (c *SimpleCodec) Reset() {
	*c = SimpleCodec{}
}

// Decode parses a SimpleCodec frame out of data. Returns false if data is
// shorter than the fixed header or its declared body length.
func (c *SimpleCodec) Decode(data []byte) bool {
	if len(data) < headerSize {
		return false
	}
	off := 0
	c.cmd = binary.LittleEndian.Uint32(data[off:])
	off += 4
	c.svrType = binary.LittleEndian.Uint32(data[off:])
	off += 4
	c.gid = binary.LittleEndian.Uint64(data[off:])
	off += 8
	c.seqID = binary.LittleEndian.Uint64(data[off:])
	off += 8
	c.src = binary.LittleEndian.Uint32(data[off:])
	off += 4
	c.dst = binary.LittleEndian.Uint32(data[off:])
	off += 4
	c.timeout = binary.LittleEndian.Uint64(data[off:])
	off += 8
	c.retCode = api.RpcError(int32(binary.LittleEndian.Uint32(data[off:])))
	off += 4
	c.version = binary.LittleEndian.Uint32(data[off:])
	off += 4
	c.flag = binary.LittleEndian.Uint16(data[off:])
	off += 2
	bodyLen := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if len(data) < off+int(bodyLen) {
		return false
	}
	c.body = append(c.body[:0], data[off:off+int(bodyLen)]...)
	c.raw = data
	c.decoded = true
	return true
}

// Encode serializes the current fields into wire bytes.
func (c *SimpleCodec) Encode() ([]byte, bool) {
	buf := make([]byte, headerSize+len(c.body))
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], c.cmd)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.svrType)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], c.gid)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], c.seqID)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], c.src)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.dst)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], c.timeout)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(int32(c.retCode)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.version)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:], c.flag)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.body)))
	off += 4
	copy(buf[off:], c.body)

	c.raw = buf
	c.encoded = true
	return buf, true
}
