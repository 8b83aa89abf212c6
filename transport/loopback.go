// File: transport/loopback.go
// Author: momentics <momentics@gmail.com>
//
// LoopbackChannel is a reference, in-process api.Channel implementation
// (§1, §6, §9): several channels share a Hub keyed by endpoint ID, and
// Send on one enqueues directly into the target channel's inbox for the
// next Loop call to drain. Generalized in style from the teacher's
// reactor/epoll_reactor.go callback-registration idiom (a channel exposes
// SetRecvCallback the same way the reactor exposes event handlers), away
// from socket I/O entirely since no wire format is specified.

package transport

import (
	"sync"

	"github.com/momentics/rpcengine/api"
)

type loopbackFrame struct {
	data            []byte
	source          uint32
	arrivedAtMicros int64
}

// Hub is the shared registry LoopbackChannels use to find each other by ID.
type Hub struct {
	mu       sync.Mutex
	channels map[uint32]*LoopbackChannel
	nowFn    func() int64
}

// NewHub creates an empty Hub. nowFn supplies the arrival timestamp
// recorded for each delivered frame (microseconds); pass the engine
// clock's CurrentMicros.
func NewHub(nowFn func() int64) *Hub {
	return &Hub{channels: make(map[uint32]*LoopbackChannel), nowFn: nowFn}
}

// NewChannel registers and returns a new LoopbackChannel with the given ID.
func (h *Hub) NewChannel(id uint32) *LoopbackChannel {
	c := &LoopbackChannel{id: id, hub: h}
	h.mu.Lock()
	h.channels[id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) lookup(id uint32) *LoopbackChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.channels[id]
}

// LoopbackChannel is one endpoint of an in-process Transport.
type LoopbackChannel struct {
	id  uint32
	hub *Hub

	mu    sync.Mutex
	inbox []loopbackFrame
	cb    api.RecvCallback
}

var _ api.Channel = (*LoopbackChannel)(nil)

func (c *LoopbackChannel) MyID() uint32 { return c.id }

// Send delivers data directly into dest's inbox. Returns ChannelSendError
// if dest is not registered on the same Hub.
func (c *LoopbackChannel) Send(dest uint32, data []byte) api.RpcError {
	peer := c.hub.lookup(dest)
	if peer == nil {
		return api.ChannelSendError
	}
	now := int64(0)
	if c.hub.nowFn != nil {
		now = c.hub.nowFn()
	}
	peer.mu.Lock()
	peer.inbox = append(peer.inbox, loopbackFrame{data: data, source: c.id, arrivedAtMicros: now})
	peer.mu.Unlock()
	return api.Success
}

// Loop drains up to maxFrames inbox entries, invoking the registered
// callback for each, and returns the number processed.
func (c *LoopbackChannel) Loop(maxFrames int) int {
	c.mu.Lock()
	cb := c.cb
	if cb == nil {
		c.mu.Unlock()
		return 0
	}
	n := len(c.inbox)
	if maxFrames > 0 && n > maxFrames {
		n = maxFrames
	}
	batch := c.inbox[:n]
	c.inbox = c.inbox[n:]
	c.mu.Unlock()

	for _, f := range batch {
		cb(f.data, f.source, f.arrivedAtMicros)
	}
	return len(batch)
}

// SetRecvCallback installs the frame-arrival callback.
func (c *LoopbackChannel) SetRecvCallback(cb api.RecvCallback) { c.cb = cb }

// Pending reports how many frames are queued but not yet drained.
func (c *LoopbackChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inbox)
}
