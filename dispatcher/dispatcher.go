// File: dispatcher/dispatcher.go
// Author: momentics <momentics@gmail.com>
//
// Dispatcher is the RPC dispatcher (§2, §4.5): it decodes inbound frames,
// validates and constructs a ServerContext per request, invokes the
// registered handler (synchronously or inside a cooperative task), encodes
// and sends the reply, and correlates outgoing-RPC replies through the
// pending-call table. Grounded field-for-field on
// original_source/pb/pb_service.cpp's OnRecv/DealRequest/DealMethod/
// MethodFinish/SendMessage/Rpc/DealResponse.

package dispatcher

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/momentics/rpcengine/api"
	"github.com/momentics/rpcengine/clock"
	"github.com/momentics/rpcengine/crashwatch"
	"github.com/momentics/rpcengine/pending"
	"github.com/momentics/rpcengine/scheduler"
	"github.com/momentics/rpcengine/stats"
)

// RpcRequest describes an outgoing RPC issued via Dispatcher.Rpc (§4.5).
// Body is the already-serialized request payload: message payload
// serialization is explicitly out of scope (§1), so the caller supplies
// raw bytes rather than an opaque object the dispatcher would need a
// pluggable marshaler for.
type RpcRequest struct {
	Cmd            uint32
	SvrType        uint32
	Gid            uint64
	Dst            uint32 // expected-destination hint; 0 lets Routing decide
	Version        uint32
	TimeoutMs      uint32
	Broadcast      bool
	ExpectResponse bool
	Body           []byte

	// Callback, if non-nil, is the reply continuation run in callback mode
	// (or in task mode when the caller explicitly opts out of suspending).
	// Nil in task mode means "suspend the calling task and return the
	// ret_code directly" (§4.5 step 8).
	Callback func(retCode api.RpcError, ctx *api.ServerContext)
}

// Dispatcher is the reference RPC dispatcher.
type Dispatcher struct {
	mu                 sync.Mutex
	methods            map[uint32]*api.MethodDesc
	transports         map[uint32]*api.Transport
	defaultTransportID uint32
	hasDefault         bool

	clock       *clock.Clock
	ids         *clock.IDGenerator
	stats       *stats.Statistics
	pending     *pending.Controller
	schedulerI  api.RequestScheduler
	taskBackend api.TaskBackend
	watchdog    crashwatch.Watchdog
	timedEvents *scheduler.TimedEventAdapter

	sendBufLimit int

	chains Chains

	log zerolog.Logger
}

// New creates a Dispatcher. sendBufLimit bounds the serialized size of any
// single outgoing frame body (§4.5 step 5, §9 Open Question #2's 85%
// warn-but-not-fail threshold).
func New(clk *clock.Clock, ids *clock.IDGenerator, st *stats.Statistics, pend *pending.Controller, watchdog crashwatch.Watchdog, sendBufLimit int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		methods:      make(map[uint32]*api.MethodDesc),
		transports:   make(map[uint32]*api.Transport),
		clock:        clk,
		ids:          ids,
		stats:        st,
		pending:      pend,
		watchdog:     watchdog,
		sendBufLimit: sendBufLimit,
		log:          logger,
	}
}

// AddTransport registers t and wires its Channel's RecvCallback to this
// dispatcher's inbound path. The first transport added becomes the default
// (used when callers pass transportID=0).
func (d *Dispatcher) AddTransport(t *api.Transport) {
	d.mu.Lock()
	d.transports[t.ID] = t
	if !d.hasDefault {
		d.defaultTransportID = t.ID
		d.hasDefault = true
	}
	d.mu.Unlock()

	id := t.ID
	t.Channel.SetRecvCallback(func(data []byte, sourceID uint32, arrivedAtMicros int64) api.RpcError {
		return d.HandleFrame(data, sourceID, arrivedAtMicros, id)
	})
}

// DefaultTransportID returns the transport used when callers pass 0.
func (d *Dispatcher) DefaultTransportID() (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.defaultTransportID, d.hasDefault
}

// Transports returns a snapshot of every registered transport, for the
// server loop's I/O phase to drain.
func (d *Dispatcher) Transports() []*api.Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*api.Transport, 0, len(d.transports))
	for _, t := range d.transports {
		out = append(out, t)
	}
	return out
}

func (d *Dispatcher) getTransport(id uint32) (*api.Transport, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id == 0 && d.hasDefault {
		id = d.defaultTransportID
	}
	t, ok := d.transports[id]
	return t, ok
}

// RegisterMethod installs desc in the method table. Returns an error if
// desc.Cmd is already registered.
func (d *Dispatcher) RegisterMethod(desc api.MethodDesc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.methods[desc.Cmd]; exists {
		return fmt.Errorf("dispatcher: cmd 0x%x already registered", desc.Cmd)
	}
	cp := desc
	d.methods[desc.Cmd] = &cp
	return nil
}

// SetScheduler attaches a request scheduler and installs this dispatcher's
// proc function as its consumer.
func (d *Dispatcher) SetScheduler(s api.RequestScheduler) {
	d.schedulerI = s
	s.SetProcFunc(d.procScheduled)
}

// Scheduler returns the attached scheduler, or nil.
func (d *Dispatcher) Scheduler() api.RequestScheduler { return d.schedulerI }

// SetTaskBackend attaches a cooperative-task backend, switching the
// dispatcher from callback mode to task mode.
func (d *Dispatcher) SetTaskBackend(b api.TaskBackend) { d.taskBackend = b }

// SetTimedEvents attaches a timed-event adapter whose synthesized
// ScheduledRequests this dispatcher's scheduler proc function recognizes
// and routes back to the adapter instead of the method table.
func (d *Dispatcher) SetTimedEvents(te *scheduler.TimedEventAdapter) { d.timedEvents = te }

// PendingController exposes the pending-call table for the server loop's
// phase-0 timer drain and stop_ready check.
func (d *Dispatcher) PendingController() *pending.Controller { return d.pending }

// Interceptor registration, one method per chain (§9, §11).

func (d *Dispatcher) OnRecv(fn RecvInterceptor) {
	d.mu.Lock()
	d.chains.Recv = append(d.chains.Recv, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) OnReq(fn CtxInterceptor) {
	d.mu.Lock()
	d.chains.Req = append(d.chains.Req, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) OnRsp(fn CtxInterceptor) {
	d.mu.Lock()
	d.chains.Rsp = append(d.chains.Rsp, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) OnSend(fn SendInterceptor) {
	d.mu.Lock()
	d.chains.Send = append(d.chains.Send, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) OnCall(fn CallInterceptor) {
	d.mu.Lock()
	d.chains.Call = append(d.chains.Call, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) OnReply(fn ReplyInterceptor) {
	d.mu.Lock()
	d.chains.Reply = append(d.chains.Reply, fn)
	d.mu.Unlock()
}

// HandleFrame is the inbound path entrypoint (§4.5 steps 1-6), wired as
// each registered Transport's Channel.SetRecvCallback.
func (d *Dispatcher) HandleFrame(data []byte, sourceID uint32, arrivedAtMicros int64, transportID uint32) api.RpcError {
	transport, ok := d.getTransport(transportID)
	if !ok {
		d.log.Error().Uint32("transport", transportID).Msg("frame for unknown transport")
		return api.SystemError
	}

	codec := transport.RecvCodec()
	if !codec.Decode(data) {
		d.log.Warn().Uint32("transport", transportID).Msg("decode failed")
		return api.MsgParseError
	}

	nowMicros := d.clock.CurrentMicros()
	queueWaitMs := (nowMicros - arrivedAtMicros) / 1000
	d.stats.RecordRecv(codec.Cmd(), queueWaitMs, int64(len(codec.Body())))

	if d.watchdog != nil {
		if d.watchdog.Check(codec.Gid(), codec.SeqID(), codec.Cmd()) {
			d.log.Warn().Uint64("gid", codec.Gid()).Uint64("seq", codec.SeqID()).Uint32("cmd", codec.Cmd()).
				Msg("dropping frame matching crash fingerprint")
			d.watchdog.Clear()
			return api.Success
		}
		d.watchdog.Persist(codec.Gid(), codec.SeqID(), codec.Cmd())
	}

	if foldRecv(d.chains.Recv, codec) {
		if d.watchdog != nil {
			d.watchdog.Clear()
		}
		return api.Success
	}

	var result api.RpcError
	if codec.Flag()&api.FlagRSP != 0 {
		result = d.dealResponse(codec)
	} else {
		result = d.dealInbound(codec, transportID)
	}

	if d.watchdog != nil {
		d.watchdog.Clear()
	}
	return result
}

func (d *Dispatcher) dealResponse(codec api.ReadCodec) api.RpcError {
	d.mu.Lock()
	_, known := d.methods[codec.Cmd()]
	d.mu.Unlock()
	if !known {
		d.log.Warn().Uint32("cmd", codec.Cmd()).Msg("response for unregistered cmd")
	}
	d.pending.Awake(codec.SeqID(), codec.RetCode())
	return api.Success
}

// dealInbound is step 5's Request branch: enqueue via the scheduler if one
// is attached, else dispatch immediately.
func (d *Dispatcher) dealInbound(codec api.RecvCodec, transportID uint32) api.RpcError {
	if d.schedulerI == nil {
		d.dealRequest(codec, transportID)
		return api.Success
	}

	seq := d.ids.GenerateSeqID()
	raw := append([]byte(nil), codec.RawData()...)
	if !d.schedulerI.OnRequest(api.ScheduledRequest{SeqID: seq, Gid: codec.Gid(), Data: raw, TransportID: transportID}) {
		d.stats.RecordScheduleDrop(codec.Cmd())
		d.log.Warn().Uint32("cmd", codec.Cmd()).Msg("scheduler rejected enqueue")
	}
	return api.Success
}

// procScheduled is installed as the attached scheduler's proc function: it
// re-decodes a previously-queued frame (or, for a TimedEventAdapter
// synthetic request, routes to that adapter instead) and dispatches it.
func (d *Dispatcher) procScheduled(req api.ScheduledRequest) {
	if d.timedEvents != nil && d.timedEvents.HandleScheduled(req) {
		return
	}
	transport, ok := d.getTransport(req.TransportID)
	if !ok {
		return
	}
	codec := transport.RecvCodec()
	if !codec.Decode(req.Data) {
		d.log.Warn().Msg("decode of scheduled request failed")
		return
	}
	d.dealRequest(codec, req.TransportID)
}

// dealRequest is deal_request (§4.5 steps 1-9).
func (d *Dispatcher) dealRequest(codec api.ReadCodec, transportID uint32) {
	nowMs := uint64(d.clock.CurrentMilliSec())
	if to := codec.Timeout(); to != 0 && to < nowMs {
		d.stats.RecordExpireDrop(codec.Cmd())
		d.log.Warn().Uint32("cmd", codec.Cmd()).Msg("dropping expired request")
		return
	}

	d.mu.Lock()
	desc, known := d.methods[codec.Cmd()]
	d.mu.Unlock()
	if !known {
		d.log.Warn().Uint32("cmd", codec.Cmd()).Msg("unknown cmd")
		return
	}
	if codec.Flag()&api.FlagFromClient != 0 && desc.Private {
		d.log.Warn().Uint32("cmd", codec.Cmd()).Msg("private method rejected from client frame")
		return
	}

	ctx := &api.ServerContext{
		ID:          api.NextContextID(),
		Gid:         codec.Gid(),
		SeqID:       codec.SeqID(),
		Cmd:         codec.Cmd(),
		Src:         codec.Src(),
		Dst:         codec.Dst(),
		Flag:        codec.Flag(),
		Version:     codec.Version(),
		StartTs:     d.clock.CurrentMicros(),
		TransportID: transportID,
		State:       api.StateRunning,
	}
	ctx.SetCallbacks(d.makeCompletionCallback(codec, transportID), func(c *api.ServerContext) {
		c.State = api.StateRecycled
	})

	run := func() {
		if foldCtx(d.chains.Req, ctx) {
			ctx.Ignore = true
		}
		if !ctx.Ignore {
			desc.Handler(ctx, codec.Body())
		}
		if ctx.IsFinish() {
			ctx.Run()
		}
	}

	if d.taskBackend != nil {
		if !d.taskBackend.Spawn(run) {
			d.log.Warn().Uint32("cmd", codec.Cmd()).Msg("task backend exhausted, running inline")
			run()
		}
		return
	}
	run()
}

// makeCompletionCallback builds the closure installed as the ServerContext's
// onFinish hook (§4.5 step 5): it notifies the scheduler that this inbound
// request has finished processing (mirroring MethodFinish's scheduler
// callback), runs the Rsp interceptor chain, then (unless ignored, DONT_RSP
// was set, or an interceptor consumed the reply) fills, serializes,
// intercepts and sends the reply frame.
func (d *Dispatcher) makeCompletionCallback(reqCodec api.ReadCodec, transportID uint32) func(*api.ServerContext) {
	dontRsp := reqCodec.Flag()&api.FlagDontRSP != 0
	reqTimeout := reqCodec.Timeout()
	svrType := reqCodec.SvrType()
	version := reqCodec.Version()

	return func(ctx *api.ServerContext) {
		if d.schedulerI != nil {
			d.schedulerI.OnResponse(ctx.Gid)
		}

		consumed := foldCtx(d.chains.Rsp, ctx)
		ctx.State = api.StateReplied
		ctx.EndTs = d.clock.CurrentMicros()

		procCostMs := (ctx.EndTs - ctx.StartTs) / 1000
		if ctx.Ignore || dontRsp || consumed {
			d.stats.RecordSend(ctx.Cmd, procCostMs, 0)
			return
		}

		transport, ok := d.getTransport(transportID)
		if !ok {
			d.log.Error().Uint32("transport", transportID).Msg("reply transport vanished")
			return
		}

		body, ok := serializeResponse(ctx.Response)
		if !ok {
			d.log.Error().Uint32("cmd", ctx.Cmd).Msg("reply serialization failed")
			return
		}
		d.stats.RecordSend(ctx.Cmd, procCostMs, int64(len(body)))

		sendCodec := transport.SendCodec()
		sendCodec.Reset()
		sendCodec.SetCmd(ctx.Cmd)
		sendCodec.SetSvrType(svrType)
		sendCodec.SetGid(ctx.Gid)
		sendCodec.SetSeqID(ctx.SeqID)
		sendCodec.SetSrc(ctx.Dst)
		sendCodec.SetDst(ctx.Src)
		sendCodec.SetVersion(version)
		sendCodec.SetTimeout(reqTimeout)
		sendCodec.SetRetCode(ctx.RetCode)
		sendCodec.SetFlag(api.FlagDontRSP | api.FlagRSP)
		sendCodec.SetBody(body)

		if foldSend(d.chains.Send, sendCodec) {
			return
		}

		frame, ok := sendCodec.Encode()
		if !ok {
			d.log.Error().Uint32("cmd", ctx.Cmd).Msg("reply encode failed")
			return
		}

		if ctx.Flag&api.FlagBroadcast != 0 {
			for _, dst := range transport.Routing.GetAllSendDest(svrType, 0, version) {
				transport.Channel.Send(dst, frame)
			}
			return
		}
		if err := transport.Channel.Send(ctx.Src, frame); err != api.Success {
			d.log.Warn().Uint32("cmd", ctx.Cmd).Str("err", err.String()).Msg("reply send failed")
		}
	}
}

// Rpc issues an outgoing RPC (§4.5 "rpc", steps 1-9). parent, if non-nil,
// is the ServerContext of the handler issuing this call, captured on the
// ClientContext so a reply continuation can restore "current request"
// (§3, §9 Open Question resolved via an explicit parameter rather than a
// thread-local).
func (d *Dispatcher) Rpc(parent *api.ServerContext, transportID uint32, req RpcRequest) api.RpcError {
	if req.Broadcast && req.ExpectResponse {
		return api.SystemError
	}

	transport, ok := d.getTransport(transportID)
	if !ok {
		return api.SystemError
	}

	sendCodec := transport.SendCodec()
	sendCodec.Reset()
	sendCodec.SetSrc(transport.Channel.MyID())
	sendCodec.SetCmd(req.Cmd)
	sendCodec.SetSvrType(req.SvrType)
	sendCodec.SetGid(req.Gid)
	sendCodec.SetVersion(req.Version)

	var dst uint32
	if !req.Broadcast {
		dst = transport.Routing.GetSendDest(req.SvrType, req.Gid, req.Dst, req.Version)
		if dst == 0 {
			return api.RouterFindDstError
		}
		sendCodec.SetDst(dst)
	}

	var timeoutAbs uint64
	if req.ExpectResponse {
		timeoutAbs = uint64(d.clock.CurrentMilliSec()) + uint64(req.TimeoutMs)
	}
	sendCodec.SetTimeout(timeoutAbs)

	var flag uint16
	if !req.ExpectResponse {
		flag |= api.FlagDontRSP
	}
	if req.Broadcast {
		flag |= api.FlagBroadcast
	}
	sendCodec.SetFlag(flag)

	var seqID uint64
	if req.ExpectResponse {
		seqID = d.ids.GenerateSeqID()
		sendCodec.SetSeqID(seqID)
	}

	client := &api.ClientContext{ID: api.NextContextID(), SeqID: seqID, Cmd: req.Cmd, ServerCtx: parent}
	if foldCall(d.chains.Call, client) {
		return api.Success
	}

	if len(req.Body) > d.sendBufLimit {
		return api.SendMsgTooLong
	}
	if d.sendBufLimit > 0 && float64(len(req.Body)) > 0.85*float64(d.sendBufLimit) {
		// Open Question #2: warn loudly even though it still fits.
		d.log.Warn().Int("size", len(req.Body)).Int("limit", d.sendBufLimit).Uint32("cmd", req.Cmd).
			Msg("outgoing payload above 85% of send buffer")
	}
	sendCodec.SetBody(req.Body)

	if foldSend(d.chains.Send, sendCodec) {
		return api.Success
	}

	frame, ok := sendCodec.Encode()
	if !ok {
		return api.MsgSerializeError
	}

	if req.Broadcast {
		dests := transport.Routing.GetAllSendDest(req.SvrType, 0, req.Version)
		sentAny := false
		for _, id := range dests {
			if transport.Channel.Send(id, frame) == api.Success {
				sentAny = true
			}
		}
		if len(dests) > 0 && !sentAny {
			return api.ChannelSendError
		}
	} else if err := transport.Channel.Send(dst, frame); err != api.Success {
		return err
	}

	if !req.ExpectResponse {
		return api.Success
	}

	if d.taskBackend != nil && req.Callback == nil {
		self := d.taskBackend.ThisTask()
		if _, perr := d.pending.Pending(seqID, req.TimeoutMs, client, api.AsyncTask{CurrentTask: self}); perr != api.Success {
			return perr
		}
		return client.RetCode
	}

	userCb := req.Callback
	wrapped := func(retCode api.RpcError, ctx *api.ServerContext) {
		if foldReply(d.chains.Reply, client, retCode) {
			return
		}
		if userCb != nil {
			userCb(retCode, ctx)
		}
	}
	if _, perr := d.pending.Pending(seqID, req.TimeoutMs, client, api.AsyncTask{Callback: wrapped}); perr != api.Success {
		return perr
	}
	return api.Success
}

// serializeResponse turns a handler's ctx.Response into wire bytes: nil
// yields an empty body, a []byte is used verbatim, anything implementing
// api.BodyEncoder serializes itself, and anything else is a serializer
// disagreement (§4.5 step 5, §1's "pluggable request/response object
// factory" kept external rather than baked into the dispatcher).
func serializeResponse(v any) ([]byte, bool) {
	if v == nil {
		return nil, true
	}
	if b, ok := v.([]byte); ok {
		return b, true
	}
	if enc, ok := v.(api.BodyEncoder); ok {
		return enc.EncodeBody()
	}
	return nil, false
}
