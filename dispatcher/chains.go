// File: dispatcher/chains.go
// Author: momentics <momentics@gmail.com>
//
// The six interceptor chains (§9, §11), grounded on pb_service.cpp's
// InterceptRecv/Req/Rsp/Send/Call/Reply. Each chain runs every registered
// member and OR-reduces the "intercepted" booleans (Design Notes §9): this
// is deliberate so interceptors can be idempotent observers rather than a
// short-circuiting filter chain.

package dispatcher

import "github.com/momentics/rpcengine/api"

// RecvInterceptor inspects an inbound frame before request/response
// dispatch. Returning true drops the frame.
type RecvInterceptor func(codec api.ReadCodec) bool

// CtxInterceptor inspects a ServerContext, used for both the Req chain
// (before handler invocation, may set ctx.Ignore) and the Rsp chain
// (before a reply is sent, returning true suppresses it).
type CtxInterceptor func(ctx *api.ServerContext) bool

// SendInterceptor inspects an outbound frame just before Encode, used both
// for server replies and for this engine's own outgoing RPCs. Returning
// true suppresses the actual Channel.Send.
type SendInterceptor func(codec api.WriteCodec) bool

// CallInterceptor inspects an outgoing RPC's ClientContext before it is
// serialized and sent. Returning true means some interceptor already
// handled the call; Rpc returns success without sending anything.
type CallInterceptor func(ctx *api.ClientContext) bool

// ReplyInterceptor inspects an outgoing RPC's reply (or timeout) before
// the user's own callback runs. Returning true consumes the reply.
type ReplyInterceptor func(ctx *api.ClientContext, retCode api.RpcError) bool

// Chains bundles the six interceptor chains a Dispatcher drives.
type Chains struct {
	Recv  []RecvInterceptor
	Req   []CtxInterceptor
	Rsp   []CtxInterceptor
	Send  []SendInterceptor
	Call  []CallInterceptor
	Reply []ReplyInterceptor
}

func foldRecv(chain []RecvInterceptor, codec api.ReadCodec) bool {
	intercepted := false
	for _, fn := range chain {
		if fn(codec) {
			intercepted = true
		}
	}
	return intercepted
}

func foldCtx(chain []CtxInterceptor, ctx *api.ServerContext) bool {
	intercepted := false
	for _, fn := range chain {
		if fn(ctx) {
			intercepted = true
		}
	}
	return intercepted
}

func foldSend(chain []SendInterceptor, codec api.WriteCodec) bool {
	intercepted := false
	for _, fn := range chain {
		if fn(codec) {
			intercepted = true
		}
	}
	return intercepted
}

func foldCall(chain []CallInterceptor, ctx *api.ClientContext) bool {
	intercepted := false
	for _, fn := range chain {
		if fn(ctx) {
			intercepted = true
		}
	}
	return intercepted
}

func foldReply(chain []ReplyInterceptor, ctx *api.ClientContext, retCode api.RpcError) bool {
	intercepted := false
	for _, fn := range chain {
		if fn(ctx, retCode) {
			intercepted = true
		}
	}
	return intercepted
}
