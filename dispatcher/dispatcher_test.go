package dispatcher

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/momentics/rpcengine/api"
	"github.com/momentics/rpcengine/clock"
	"github.com/momentics/rpcengine/crashwatch"
	"github.com/momentics/rpcengine/pending"
	"github.com/momentics/rpcengine/stats"
	"github.com/momentics/rpcengine/task"
	"github.com/momentics/rpcengine/timer"
	"github.com/momentics/rpcengine/transport"
)

const testSvrType uint32 = 5

type harness struct {
	d       *Dispatcher
	clk     *clock.Clock
	pend    *pending.Controller
	st      *stats.Statistics
	hub     *transport.Hub
	server  *transport.LoopbackChannel
	client  *transport.LoopbackChannel
	router  *transport.StaticRouter
	srvTrID uint32
}

func newHarness(t *testing.T, watchdog crashwatch.Watchdog) *harness {
	t.Helper()
	clk := clock.New()
	ids := clock.NewIDGenerator()
	st := stats.New()
	wheel := timer.New()
	pend := pending.New(wheel, clk, ids, st.IncRpcTimeout)
	if watchdog == nil {
		watchdog = crashwatch.NewNoop()
	}

	d := New(clk, ids, st, pend, watchdog, 1<<20, zerolog.Nop())

	hub := transport.NewHub(clk.CurrentMicros)
	server := hub.NewChannel(1)
	client := hub.NewChannel(2)
	router := transport.NewStaticRouter()
	router.AddRoute(testSvrType, client.MyID(), 0)

	srvTransport := &api.Transport{
		ID:        1,
		Channel:   server,
		RecvCodec: func() api.RecvCodec { return transport.NewSimpleCodec() },
		SendCodec: func() api.SendCodec { return transport.NewSimpleCodec() },
		Routing:   router,
	}
	d.AddTransport(srvTransport)

	return &harness{d: d, clk: clk, pend: pend, st: st, hub: hub, server: server, client: client, router: router, srvTrID: 1}
}

func encodeInbound(cmd uint32, src, dst uint32, flag uint16, body []byte) []byte {
	c := transport.NewSimpleCodec()
	c.SetCmd(cmd)
	c.SetSrc(src)
	c.SetDst(dst)
	c.SetFlag(flag)
	c.SetBody(body)
	wire, _ := c.Encode()
	return wire
}

func TestDispatcherEchoHandlerCallbackMode(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.d.RegisterMethod(api.MethodDesc{
		Cmd: 1,
		Handler: func(ctx *api.ServerContext, req []byte) {
			ctx.Response = append([]byte("echo:"), req...)
		},
	}))

	frame := encodeInbound(1, h.client.MyID(), h.server.MyID(), api.FlagFromClient, []byte("hi"))
	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), frame))
	require.Equal(t, 1, h.server.Loop(1))

	require.Equal(t, 1, h.client.Pending())
	var reply *transport.SimpleCodec
	h.client.SetRecvCallback(func(data []byte, _ uint32, _ int64) api.RpcError {
		reply = transport.NewSimpleCodec()
		require.True(t, reply.Decode(data))
		return api.Success
	})
	require.Equal(t, 1, h.client.Loop(1))
	require.NotNil(t, reply)
	require.Equal(t, []byte("echo:hi"), reply.Body())
	require.NotZero(t, reply.Flag()&api.FlagRSP)
	require.Equal(t, api.Success, reply.RetCode())
}

func TestDispatcherUnknownCmdDroppedSilently(t *testing.T) {
	h := newHarness(t, nil)
	frame := encodeInbound(999, h.client.MyID(), h.server.MyID(), api.FlagFromClient, nil)
	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), frame))
	require.Equal(t, 1, h.server.Loop(1))
	require.Equal(t, 0, h.client.Pending())
}

func TestDispatcherPrivateMethodRejectsClientFrame(t *testing.T) {
	h := newHarness(t, nil)
	called := false
	require.NoError(t, h.d.RegisterMethod(api.MethodDesc{
		Cmd:     2,
		Private: true,
		Handler: func(ctx *api.ServerContext, req []byte) { called = true },
	}))
	frame := encodeInbound(2, h.client.MyID(), h.server.MyID(), api.FlagFromClient, nil)
	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), frame))
	require.Equal(t, 1, h.server.Loop(1))
	require.False(t, called)
}

func TestDispatcherRecvChainOrReducedDropsFrame(t *testing.T) {
	h := newHarness(t, nil)
	called := false
	require.NoError(t, h.d.RegisterMethod(api.MethodDesc{
		Cmd:     3,
		Handler: func(ctx *api.ServerContext, req []byte) { called = true },
	}))
	h.d.OnRecv(func(api.ReadCodec) bool { return false })
	h.d.OnRecv(func(api.ReadCodec) bool { return true })

	frame := encodeInbound(3, h.client.MyID(), h.server.MyID(), api.FlagFromClient, nil)
	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), frame))
	require.Equal(t, 1, h.server.Loop(1))
	require.False(t, called, "OR-reduction: one true interceptor must drop the frame even if another returned false")
}

func TestDispatcherReqInterceptorIgnoreSuppressesHandlerAndReply(t *testing.T) {
	h := newHarness(t, nil)
	called := false
	require.NoError(t, h.d.RegisterMethod(api.MethodDesc{
		Cmd:     4,
		Handler: func(ctx *api.ServerContext, req []byte) { called = true },
	}))
	h.d.OnReq(func(ctx *api.ServerContext) bool { return true })

	frame := encodeInbound(4, h.client.MyID(), h.server.MyID(), api.FlagFromClient, nil)
	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), frame))
	require.Equal(t, 1, h.server.Loop(1))
	require.False(t, called)
	require.Equal(t, 0, h.client.Pending(), "an ignored request must not produce a reply frame")
}

func TestDispatcherExpiredRequestDropped(t *testing.T) {
	h := newHarness(t, nil)
	called := false
	require.NoError(t, h.d.RegisterMethod(api.MethodDesc{
		Cmd:     6,
		Handler: func(ctx *api.ServerContext, req []byte) { called = true },
	}))
	c := transport.NewSimpleCodec()
	c.SetCmd(6)
	c.SetSrc(h.client.MyID())
	c.SetDst(h.server.MyID())
	c.SetFlag(api.FlagFromClient)
	c.SetTimeout(1) // absolute deadline far in the past
	wire, _ := c.Encode()

	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), wire))
	require.Equal(t, 1, h.server.Loop(1))
	require.False(t, called)
}

func TestDispatcherCrashFingerprintDropsThenAcceptsNext(t *testing.T) {
	poison := struct {
		gid, seq uint64
		cmd      uint32
	}{gid: 0, seq: 0, cmd: 7}
	wd := &fakeWatchdog{poison: poison, hasPoison: true}
	h := newHarness(t, wd)
	called := false
	require.NoError(t, h.d.RegisterMethod(api.MethodDesc{
		Cmd:     7,
		Handler: func(ctx *api.ServerContext, req []byte) { called = true },
	}))

	frame := encodeInbound(7, h.client.MyID(), h.server.MyID(), api.FlagFromClient, nil)
	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), frame))
	require.Equal(t, 1, h.server.Loop(1))
	require.False(t, called, "a frame matching the persisted crash fingerprint must be dropped")

	wd.hasPoison = false
	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), frame))
	require.Equal(t, 1, h.server.Loop(1))
	require.True(t, called, "once the fingerprint no longer matches, the same cmd must dispatch normally")
}

func TestDispatcherRpcBroadcastAndExpectResponseIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	err := h.d.Rpc(nil, h.srvTrID, RpcRequest{Cmd: 1, SvrType: testSvrType, Broadcast: true, ExpectResponse: true})
	require.Equal(t, api.SystemError, err)
}

func TestDispatcherRpcBodyTooLongIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.d = New(h.clk, clock.NewIDGenerator(), h.st, h.pend, crashwatch.NewNoop(), 4, zerolog.Nop())
	h.d.AddTransport(&api.Transport{
		ID:        1,
		Channel:   h.server,
		RecvCodec: func() api.RecvCodec { return transport.NewSimpleCodec() },
		SendCodec: func() api.SendCodec { return transport.NewSimpleCodec() },
		Routing:   h.router,
	})
	err := h.d.Rpc(nil, h.srvTrID, RpcRequest{Cmd: 1, SvrType: testSvrType, Body: []byte("too long")})
	require.Equal(t, api.SendMsgTooLong, err)
}

func TestDispatcherRpcNoRouteReturnsRouterFindDstError(t *testing.T) {
	h := newHarness(t, nil)
	err := h.d.Rpc(nil, h.srvTrID, RpcRequest{Cmd: 1, SvrType: 999})
	require.Equal(t, api.RouterFindDstError, err)
}

func TestDispatcherRpcTimeoutFiresCallbackWithTimeout(t *testing.T) {
	h := newHarness(t, nil)

	var gotCode api.RpcError
	done := make(chan struct{})
	err := h.d.Rpc(nil, h.srvTrID, RpcRequest{
		Cmd:            10,
		SvrType:        testSvrType,
		ExpectResponse: true,
		TimeoutMs:      5,
		Callback: func(retCode api.RpcError, ctx *api.ServerContext) {
			gotCode = retCode
			close(done)
		},
	})
	require.Equal(t, api.Success, err)
	require.Equal(t, 1, h.client.Pending(), "the outgoing request must have been sent to the resolved destination")

	h.clk.Update(h.clk.CurrentMicros() + 50*1000)
	h.pend.ProcTimeout(uint64(h.clk.CurrentMilliSec()))

	<-done
	require.Equal(t, api.Timeout, gotCode)
}

func TestDispatcherRpcTaskModeYieldsAndResumesOnReply(t *testing.T) {
	h := newHarness(t, nil)
	backend := task.NewGoroutineBackend(0)
	h.d.SetTaskBackend(backend)

	require.NoError(t, h.d.RegisterMethod(api.MethodDesc{
		Cmd: 11,
		Handler: func(ctx *api.ServerContext, req []byte) {
			retCode := h.d.Rpc(ctx, h.srvTrID, RpcRequest{
				Cmd:            10,
				SvrType:        testSvrType,
				ExpectResponse: true,
				TimeoutMs:      1000,
			})
			ctx.Response = []byte(retCode.String())
		},
	}))

	inboundFrame := encodeInbound(11, h.client.MyID(), h.server.MyID(), api.FlagFromClient, nil)
	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), inboundFrame))
	require.Equal(t, 1, h.server.Loop(1))

	// The handler's own RPC is still outstanding (task yielded mid-handler):
	// its outgoing frame is sitting in the client inbox awaiting a reply,
	// and the handler's own completion has not run yet.
	require.Equal(t, 1, h.client.Pending())

	// Drain the client inbox to find the handler's own outgoing RPC frame,
	// then answer it directly as if a remote peer replied.
	var outgoing *transport.SimpleCodec
	h.client.SetRecvCallback(func(data []byte, _ uint32, _ int64) api.RpcError {
		outgoing = transport.NewSimpleCodec()
		require.True(t, outgoing.Decode(data))
		return api.Success
	})
	require.Equal(t, 1, h.client.Loop(1))
	require.NotNil(t, outgoing)

	rc := transport.NewSimpleCodec()
	rc.SetCmd(outgoing.Cmd())
	rc.SetSrc(h.client.MyID())
	rc.SetDst(h.server.MyID())
	rc.SetSeqID(outgoing.SeqID())
	rc.SetFlag(api.FlagRSP)
	rc.SetRetCode(api.Success)
	replyFrame, _ := rc.Encode()
	require.Equal(t, api.Success, h.client.Send(h.server.MyID(), replyFrame))
	require.Equal(t, 1, h.server.Loop(1))

	require.Equal(t, 1, h.client.Pending(), "the handler's final reply should now have been produced")
	var finalReply *transport.SimpleCodec
	h.client.SetRecvCallback(func(data []byte, _ uint32, _ int64) api.RpcError {
		finalReply = transport.NewSimpleCodec()
		require.True(t, finalReply.Decode(data))
		return api.Success
	})
	require.Equal(t, 1, h.client.Loop(1))
	require.NotNil(t, finalReply)
	require.Equal(t, []byte(api.Success.String()), finalReply.Body())
}

type fakeWatchdog struct {
	poison    struct{ gid, seq uint64; cmd uint32 }
	hasPoison bool
}

func (w *fakeWatchdog) Check(gid, seq uint64, cmd uint32) bool {
	return w.hasPoison && w.poison.gid == gid && w.poison.seq == seq && w.poison.cmd == cmd
}
func (w *fakeWatchdog) Persist(gid, seq uint64, cmd uint32) {}
func (w *fakeWatchdog) Clear()                              {}
func (w *fakeWatchdog) Close() error                        { return nil }

var _ crashwatch.Watchdog = (*fakeWatchdog)(nil)
