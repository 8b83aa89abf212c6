// File: api/context.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ServerContext and ClientContext are the per-request and per-outgoing-RPC
// state records the dispatcher and pending-call table operate on (§3, §4.5).

package api

import "sync/atomic"

var contextIDSeq atomic.Uint64

// NextContextID returns a process-wide unique context identifier.
func NextContextID() uint64 { return contextIDSeq.Add(1) }

// ServerContext is per-inbound-request state.
type ServerContext struct {
	ID      uint64
	Gid     uint64
	SeqID   uint64
	Cmd     uint32
	Src     uint32
	Dst     uint32
	Flag    uint16
	Version uint32

	StartTs int64 // micros
	EndTs   int64 // micros

	RetCode RpcError
	State   ContextState

	// ToBeContinue is true once the handler has suspended pending an
	// outgoing RPC; the reply path must not fire the completion callback
	// until it is cleared.
	ToBeContinue bool

	// Ignore is set by the request-interceptor chain to suppress dispatch.
	Ignore bool

	// Response is the reply payload the handler (or a later continuation)
	// writes for the completion callback to serialize. Modeled as a
	// context-owned slot per DESIGN.md's Open Question decision #1.
	Response any

	// TransportID identifies which registered Transport this request
	// arrived on, so the reply is sent back over the same one.
	TransportID uint32

	// onFinish is the completion callback installed by the dispatcher;
	// run exactly once, when IsFinish() becomes true.
	onFinish func(*ServerContext)
	// onRecycle tears down the context after the completion callback runs.
	onRecycle func(*ServerContext)
}

// IsFinish reports whether the request is done: either it never suspended,
// or it suspended and has since been resumed.
func (c *ServerContext) IsFinish() bool {
	return c.RetCode != 0 || !c.ToBeContinue
}

// SetCallbacks installs the completion and recycle closures.
func (c *ServerContext) SetCallbacks(onFinish, onRecycle func(*ServerContext)) {
	c.onFinish = onFinish
	c.onRecycle = onRecycle
}

// Run invokes the completion callback then the recycle closure, exactly as
// the original Context::Run does.
func (c *ServerContext) Run() {
	if c.onFinish != nil {
		c.onFinish(c)
	}
	if c.onRecycle != nil {
		c.onRecycle(c)
	}
}

// ClientContext is per-outgoing-RPC state, captured at RPC issue so a reply
// can restore the handler's view of "current request".
type ClientContext struct {
	ID        uint64
	SeqID     uint64
	TimerID   uint32
	Cmd       uint32
	RetCode   RpcError
	ServerCtx *ServerContext // parent, captured at construction

	callback  func(retCode RpcError)
	recycleFn func()
}

// SetCallback installs the continuation invoked by Awake/pending-table.
func (c *ClientContext) SetCallback(cb func(retCode RpcError), recycle func()) {
	c.callback = cb
	c.recycleFn = recycle
}

// Invoke runs the continuation and recycle hook, in that order.
func (c *ClientContext) Invoke(retCode RpcError) {
	if c.callback != nil {
		c.callback(retCode)
	}
	if c.recycleFn != nil {
		c.recycleFn()
	}
}

// AsyncTask bundles the suspend-strategy choices a Pending caller may
// supply (§4.2 step 6): CurrentTask selects cooperative-task mode (Pending
// Yields it and the eventual reply/timeout Resumes it); BlockingFun, when
// CurrentTask is nil, is called instead of yielding; with neither set,
// Pending falls back to callback mode (ToBeContinue=true, return
// immediately). Callback and RecycleFunc are the optional completion hooks
// run when the reply or timeout arrives, in every mode.
type AsyncTask struct {
	CurrentTask Task
	Callback    func(retCode RpcError, ctx *ServerContext)
	RecycleFunc func()
	BlockingFun func()
}
