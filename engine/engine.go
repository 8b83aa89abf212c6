// File: engine/engine.go
// Author: momentics <momentics@gmail.com>
//
// Engine is the server loop (§2, §4.3): a three-phase tick — timer/timeout
// drain, user/module work, transport I/O — with adaptive "fast-shrink,
// slow-grow" ingress admission control. Grounded field-for-field on
// original_source/core/server_core.cpp/h's SvrInit/SvrTick/SvrProc/
// AdjustParam/SvrStopReady/SvrFinish/SvrNtfQuit.

package engine

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/rpcengine/affinity"
	"github.com/momentics/rpcengine/api"
	"github.com/momentics/rpcengine/clock"
	"github.com/momentics/rpcengine/module"
	"github.com/momentics/rpcengine/pending"
	"github.com/momentics/rpcengine/scheduler"
	"github.com/momentics/rpcengine/stats"
)

// FrameLimitOptions bounds how long one proc call, and its phases, may run.
// Invariant: 0 < MinOnProcMs <= MaxCtxProcMs <= MaxProcMs (checked by CheckOptions).
type FrameLimitOptions struct {
	MaxProcMs    uint32
	MaxCtxProcMs uint32
	MinOnProcMs  uint32
}

// FlowControlOptions is the adaptive ingress-budget state (§4.3, §4.4).
// Invariant: MinNum <= MaxDealPkgNum <= MaxNum (checked by CheckOptions).
type FlowControlOptions struct {
	MaxDealPkgNum uint32 // current per-tick ingress budget, adjusted every tick
	MaxNum        uint32
	MinNum        uint32
	IncDelta      uint32
	DecDelta      uint32
	JudgeRangeMs  uint32
}

// Options configures an Engine (§6 "Engine configuration").
type Options struct {
	Frame      FrameLimitOptions
	FlowCtrl   FlowControlOptions
	MaxTickMs  uint32
	MaxCoroNum int // 0 disables the cooperative-task backend

	// PinCPU, when >= 0, pins Run's calling goroutine to that logical CPU
	// for the lifetime of the loop (§5: one engine instance owns one OS
	// thread). Negative disables pinning.
	PinCPU int
}

// CheckOptions validates the invariants Options must satisfy before Init.
func CheckOptions(o Options) error {
	if o.FlowCtrl.MinNum > o.FlowCtrl.MaxNum {
		return fmt.Errorf("engine: flow_ctrl.min_num(%d) > max_num(%d)", o.FlowCtrl.MinNum, o.FlowCtrl.MaxNum)
	}
	if o.FlowCtrl.MaxDealPkgNum > o.FlowCtrl.MaxNum || o.FlowCtrl.MaxDealPkgNum < o.FlowCtrl.MinNum {
		return fmt.Errorf("engine: flow_ctrl.max_deal_pkg_num(%d) not in range [%d, %d]",
			o.FlowCtrl.MaxDealPkgNum, o.FlowCtrl.MinNum, o.FlowCtrl.MaxNum)
	}
	if o.Frame.MinOnProcMs == 0 {
		return fmt.Errorf("engine: frame.min_on_proc_ms must be > 0")
	}
	if o.Frame.MinOnProcMs > o.Frame.MaxCtxProcMs {
		return fmt.Errorf("engine: frame.min_on_proc_ms(%d) > max_ctx_proc_ms(%d)", o.Frame.MinOnProcMs, o.Frame.MaxCtxProcMs)
	}
	if o.Frame.MinOnProcMs > o.Frame.MaxProcMs {
		return fmt.Errorf("engine: frame.min_on_proc_ms(%d) > max_proc_ms(%d)", o.Frame.MinOnProcMs, o.Frame.MaxProcMs)
	}
	if o.Frame.MaxCtxProcMs > o.Frame.MaxProcMs {
		return fmt.Errorf("engine: frame.max_ctx_proc_ms(%d) > max_proc_ms(%d)", o.Frame.MaxCtxProcMs, o.Frame.MaxProcMs)
	}
	return nil
}

// Hooks are the user-supplied lifecycle callbacks, mirroring ServerCore's
// protected virtuals (OnInit/OnTick/OnProc/OnFinish).
type Hooks struct {
	OnInit  func() error
	OnTick  func(nowMs int64, tickCount uint64)
	OnProc  func(nowMs, remainMs int64, stopping bool) int
	OnFinish func()
}

// Engine drives the three-phase tick over a module registry, a pending-call
// table, an optional request scheduler, and an optional timed-event adapter.
type Engine struct {
	opt    Options
	hooks  Hooks
	stop   bool

	clock   *clock.Clock
	modules *module.Registry
	pending *pending.Controller
	stats   *stats.Statistics

	sched       api.RequestScheduler
	timedEvents *scheduler.TimedEventAdapter
	transport   *api.Transport // default transport drained in phase 2

	log zerolog.Logger

	lastStopReadyLogMs int64
}

// New constructs an Engine. transport may be nil if this engine issues no
// inbound I/O of its own (e.g. a pure outgoing-RPC client).
func New(opt Options, hooks Hooks, clk *clock.Clock, modules *module.Registry, pend *pending.Controller, st *stats.Statistics, sched api.RequestScheduler, timedEvents *scheduler.TimedEventAdapter, transport *api.Transport, logger zerolog.Logger) *Engine {
	return &Engine{
		opt:         opt,
		hooks:       hooks,
		clock:       clk,
		modules:     modules,
		pending:     pend,
		stats:       st,
		sched:       sched,
		timedEvents: timedEvents,
		transport:   transport,
		log:         logger,
	}
}

// Init validates options and runs user then module init hooks, in that order
// (SvrInit: OnInit before SystemInit).
func (e *Engine) Init() error {
	if err := CheckOptions(e.opt); err != nil {
		return err
	}
	if e.hooks.OnInit != nil {
		if err := e.hooks.OnInit(); err != nil {
			return err
		}
	}
	if err := e.modules.InitAll(); err != nil {
		return err
	}
	e.log.Info().Msg("engine init ok")
	return nil
}

// Tick runs the user tick hook then every module's tick hook, and warns if
// the combined work exceeded MaxTickMs (SvrTick).
func (e *Engine) Tick(nowMs int64, tickCount uint64) {
	begin := nowMs
	if e.hooks.OnTick != nil {
		e.hooks.OnTick(nowMs, tickCount)
	}
	e.modules.TickAll(nowMs, tickCount)

	end := e.clock.CurrentMilliSec()
	elapsed := end - begin
	e.stats.TickMax.Observe(elapsed)
	if uint32(elapsed) > e.opt.MaxTickMs {
		e.log.Warn().Int64("elapsed_ms", elapsed).Uint32("limit_ms", e.opt.MaxTickMs).Msg("tick exceeded max_tick_ms")
	}
}

// Proc runs the three-phase tick and returns the total work item count
// (SvrProc).
func (e *Engine) Proc(nowMs int64) int {
	beginMs := nowMs

	// Phase 0: deadline-driven work.
	ctxCount := e.pending.ProcTimeout(uint64(nowMs))
	var timedCount int
	if !e.stop && e.timedEvents != nil {
		timedCount = e.timedEvents.Drain(uint64(nowMs))
	}
	end0 := e.clock.CurrentMilliSec()
	elapsed0 := end0 - beginMs
	e.stats.Phase0Max.Observe(elapsed0)
	if uint32(elapsed0) > e.opt.Frame.MaxCtxProcMs {
		e.log.Warn().Int64("elapsed_ms", elapsed0).Int("ctx", ctxCount).Int("timed", timedCount).
			Msg("phase 0 exceeded max_ctx_proc_ms")
		e.stats.IncProcTimeout0()
	}

	// Phase 1: user + module work, with a guaranteed minimum slice.
	remainMs := int64(e.opt.Frame.MaxProcMs) + beginMs - end0
	if remainMs < int64(e.opt.Frame.MinOnProcMs) {
		remainMs = int64(e.opt.Frame.MinOnProcMs)
	}
	procCount := 0
	if e.hooks.OnProc != nil {
		procCount += e.hooks.OnProc(nowMs, remainMs, e.stop)
	}
	e.modules.ProcAll(remainMs)

	end1 := e.clock.CurrentMilliSec()
	elapsed1 := end1 - end0
	e.stats.Phase1Max.Observe(elapsed1)
	if elapsed1 > remainMs {
		e.log.Warn().Int64("elapsed_ms", elapsed1).Int64("remain_ms", remainMs).Int("proc", procCount).
			Msg("phase 1 exceeded remain_ms")
		e.stats.IncProcTimeout1()
	}

	// Phase 2: I/O work.
	dealSchedulerCount := 0
	dealPkgCount := 0
	if e.sched != nil {
		dealSchedulerCount = e.sched.LoopOnce(int(e.opt.FlowCtrl.MaxDealPkgNum))
		dealPkgCount += dealSchedulerCount
	}
	if e.sched != nil || !e.stop {
		oneLoopNum := e.opt.FlowCtrl.MinNum
		if e.opt.FlowCtrl.MaxDealPkgNum > uint32(dealPkgCount)+e.opt.FlowCtrl.MinNum {
			oneLoopNum = e.opt.FlowCtrl.MaxDealPkgNum - uint32(dealPkgCount)
		}
		if e.transport != nil && e.transport.Channel != nil {
			dealPkgCount += e.transport.Channel.Loop(int(oneLoopNum))
		}
	}

	end2 := e.clock.CurrentMilliSec()
	elapsed2 := end2 - end1
	e.stats.Phase2Max.Observe(elapsed2)
	if elapsed2 > remainMs {
		e.log.Warn().Int64("elapsed_ms", elapsed2).Int64("remain_ms", remainMs).
			Int("scheduler", dealSchedulerCount).Int("deal", dealPkgCount).
			Msg("phase 2 exceeded remain_ms")
	}

	e.adjust(remainMs, elapsed2)

	totalElapsed := e.clock.CurrentMilliSec() - beginMs
	if uint32(totalElapsed) > e.opt.Frame.MaxProcMs {
		e.log.Warn().Int64("elapsed_ms", totalElapsed).Uint32("limit_ms", e.opt.Frame.MaxProcMs).
			Int("ctx", ctxCount).Int("timed", timedCount).Int("deal", procCount+dealPkgCount).
			Msg("proc exceeded max_proc_ms")
		e.stats.IncProcTotalTimeout()
	}

	return ctxCount + timedCount + procCount + dealPkgCount
}

// adjust is the "fast-shrink, slow-grow" admission-control update (§4.3,
// §4.4): one overloaded tick backs off by DecDelta immediately; recovery
// from an idle tick is gradual, by IncDelta, so a transient spike does not
// oscillate the ingress budget.
func (e *Engine) adjust(remainMs, usedMs int64) {
	fc := &e.opt.FlowCtrl
	judge := int64(fc.JudgeRangeMs)
	switch {
	case usedMs > remainMs+judge:
		if fc.MaxDealPkgNum > fc.MinNum+fc.DecDelta {
			fc.MaxDealPkgNum -= fc.DecDelta
		} else if fc.MaxDealPkgNum > fc.MinNum {
			fc.MaxDealPkgNum = fc.MinNum
		}
	case usedMs+judge*2 < remainMs:
		if fc.MaxDealPkgNum+fc.IncDelta < fc.MaxNum {
			fc.MaxDealPkgNum += fc.IncDelta
		} else if fc.MaxDealPkgNum < fc.MaxNum {
			fc.MaxDealPkgNum = fc.MaxNum
		}
	}
}

// NotifyQuit sets the stop flag and tells the scheduler to stop admitting
// new work (SvrNtfQuit); pending calls are left to drain.
func (e *Engine) NotifyQuit() {
	if e.stop {
		return
	}
	e.stop = true
	if e.sched != nil {
		e.sched.SetStop(true)
	}
	e.log.Info().Int("pending", e.pending.PendingCount()).Msg("notify quit, draining pending calls")
}

// StopReady reports whether the engine is stopping and has no outgoing calls
// left to drain, rate-limiting its own warning log to once per 200ms
// (SvrStopReady).
func (e *Engine) StopReady(nowMs int64) bool {
	if !e.stop {
		return false
	}
	pendingNum := e.pending.PendingCount()
	if pendingNum == 0 {
		return true
	}
	if e.lastStopReadyLogMs+200 < nowMs {
		e.log.Warn().Int("pending", pendingNum).Msg("stop not ready, pending calls remain")
		e.lastStopReadyLogMs = nowMs
	}
	return false
}

// IsStopping reports whether NotifyQuit has been called.
func (e *Engine) IsStopping() bool { return e.stop }

// Finish runs module then user finish hooks (SvrFinish).
func (e *Engine) Finish() {
	e.modules.FinishAll()
	if e.hooks.OnFinish != nil {
		e.hooks.OnFinish()
	}
	e.log.Info().Bool("stop", e.stop).Msg("engine finish")
}

// Run pins the calling goroutine's OS thread to opt.PinCPU (if >= 0) and
// then drives Tick/Proc every tickIntervalMs until stopCh is closed and
// every outgoing call has drained. Grounded on the teacher's own
// examples/numa_affinity main.go: LockOSThread must run before SetAffinity,
// since the affinity mask only takes effect for the calling OS thread, and
// that thread must not be handed back to the Go scheduler's pool afterward.
func (e *Engine) Run(tickIntervalMs uint32, stopCh <-chan struct{}) {
	if e.opt.PinCPU >= 0 {
		runtime.LockOSThread()
		if err := affinity.SetAffinity(e.opt.PinCPU); err != nil {
			e.log.Warn().Err(err).Int("cpu", e.opt.PinCPU).Msg("failed to pin engine goroutine to cpu")
		}
	}

	interval := time.Duration(tickIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Millisecond
	}

	var tickCount uint64
	for {
		e.clock.Update(time.Now().UnixMicro())
		nowMs := e.clock.CurrentMilliSec()

		select {
		case <-stopCh:
			e.NotifyQuit()
		default:
		}

		tickCount++
		e.Tick(nowMs, tickCount)
		e.Proc(nowMs)

		if e.IsStopping() && e.StopReady(nowMs) {
			return
		}
		time.Sleep(interval)
	}
}
