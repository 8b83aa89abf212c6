// File: api/handler.go
// Package api defines the Handler contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handler processes one dispatched request. It reads the request payload off
// req and, if it replies, writes the response object into ctx.Response.
// Handlers may call an engine-supplied RPC-issuing function and suspend
// (cooperative-task mode) while awaiting the correlated reply.
type Handler func(ctx *ServerContext, req []byte)

// MethodDesc is a registered handler plus its dispatch attributes.
type MethodDesc struct {
	Cmd     uint32
	Handler Handler
	// Private methods reject frames carrying FlagFromClient.
	Private bool
}

// BodyEncoder lets a ServerContext.Response value serialize itself for the
// reply frame, satisfying the pluggable request/response object factory
// (§1, §9's Open Question #1) without the engine depending on any
// particular serialization library.
type BodyEncoder interface {
	EncodeBody() ([]byte, bool)
}
