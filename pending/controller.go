// File: pending/controller.go
// Package pending
// Author: momentics <momentics@gmail.com>
//
// Controller correlates outgoing RPC seq_ids with suspended ClientContexts
// and their associated timeout timers (§4.2). Grounded field-for-field on
// the original ContextController: a Pending call registers a timer and a
// lookup entry together, rolling the timer back if the lookup insert would
// collide; Awake does the reverse, removing the lookup entry and canceling
// the timer unless the wakeup reason is itself a timeout.

package pending

import (
	"sync"

	"github.com/momentics/rpcengine/api"
	"github.com/momentics/rpcengine/clock"
	"github.com/momentics/rpcengine/timer"
)

// Controller is the reference pending-call table. Not safe for concurrent
// use from multiple goroutines; the engine is single-threaded by design and
// Controller is meant to be driven only from the engine's own goroutine.
type Controller struct {
	mu           sync.Mutex
	wheel        *timer.Wheel
	clock        *clock.Clock
	ids          *clock.IDGenerator
	cache        map[uint64]*api.ClientContext
	useTask      bool
	onTimeoutInc func()
}

// New builds a Controller backed by wheel for timeouts and clk for deadline
// computation. onTimeoutInc, if non-nil, is invoked once per timeout wakeup
// for statistics bookkeeping (§9 rolling counters).
func New(wheel *timer.Wheel, clk *clock.Clock, ids *clock.IDGenerator, onTimeoutInc func()) *Controller {
	return &Controller{
		wheel:        wheel,
		clock:        clk,
		ids:          ids,
		cache:        make(map[uint64]*api.ClientContext),
		onTimeoutInc: onTimeoutInc,
	}
}

// UseTask reports whether the controller was configured to run continuations
// via the cooperative task backend rather than plain async callbacks.
func (c *Controller) UseTask() bool { return c.useTask }

// SetUseTask toggles task-backed continuation mode (mirrors Init(coroutine)).
func (c *Controller) SetUseTask(v bool) { c.useTask = v }

// ProcTimeout drains expired timers for the current tick, firing any whose
// deadline has passed. Returns the number of timers fired.
func (c *Controller) ProcTimeout(nowMs uint64) int {
	return c.wheel.Drain(nowMs)
}

// Pending suspends client on seq_id (generating one if zero) for up to
// timeoutMs, arming a timer that calls Awake with api.Timeout on expiry.
// Returns api.SystemError if client is nil or the seq_id is already pending.
func (c *Controller) Pending(seqID uint64, timeoutMs uint32, client *api.ClientContext, task api.AsyncTask) (uint64, api.RpcError) {
	if client == nil {
		return 0, api.SystemError
	}
	if seqID == 0 {
		seqID = c.ids.GenerateSeqID()
	}

	expireAt := uint64(c.clock.CurrentMilliSec()) + uint64(timeoutMs)

	c.mu.Lock()
	timerID := c.wheel.Add(func(uint64, uint32) {
		// Runs later, from wheel.Drain via ProcTimeout, holding no lock of
		// ours: Awake already looks up, erases and invokes the
		// continuation, so there is nothing left to do here.
		c.Awake(seqID, api.Timeout)
	}, expireAt, 0)

	if timerID == 0 {
		c.mu.Unlock()
		return 0, api.SystemError
	}
	client.TimerID = uint32(timerID)
	client.SeqID = seqID

	if _, exists := c.cache[seqID]; exists {
		c.wheel.Cancel(timerID)
		c.mu.Unlock()
		return 0, api.SystemError
	}
	c.cache[seqID] = client
	c.mu.Unlock()

	serverCtx := client.ServerCtx
	cb := task.Callback
	recycle := task.RecycleFunc

	switch {
	case task.CurrentTask != nil:
		// Cooperative-task mode: by the time Resume returns control to the
		// caller past our Yield below, Awake has already recorded ret_code
		// into client.RetCode (it runs before Invoke calls this closure).
		t := task.CurrentTask
		client.SetCallback(func(retCode api.RpcError) {
			if cb != nil {
				cb(retCode, serverCtx)
			}
			t.Resume()
		}, recycle)
		t.Yield()

	case task.BlockingFun != nil:
		client.SetCallback(func(retCode api.RpcError) {
			if cb != nil {
				cb(retCode, serverCtx)
			}
		}, recycle)
		task.BlockingFun()

	default:
		// Callback mode: the handler already returned control synchronously;
		// to_be_continue tells deal_request's IsFinish() check not to fire
		// the reply path until this continuation runs.
		client.SetCallback(func(retCode api.RpcError) {
			if serverCtx != nil {
				serverCtx.ToBeContinue = false
			}
			if cb != nil {
				cb(retCode, serverCtx)
			}
			if serverCtx != nil && serverCtx.IsFinish() {
				serverCtx.Run()
			}
		}, recycle)
		if serverCtx != nil {
			serverCtx.ToBeContinue = true
		}
	}

	return seqID, api.Success
}

// Awake looks up seq_id, removes it from the pending table, cancels its
// timer (unless retCode is itself api.Timeout, since the timer already
// fired), and invokes its continuation. Returns the context, or nil if
// seq_id was not pending (already awoken, or never registered).
func (c *Controller) Awake(seqID uint64, retCode api.RpcError) *api.ClientContext {
	c.mu.Lock()
	ctx := c.awakeLocked(seqID, retCode)
	c.mu.Unlock()
	if ctx != nil {
		ctx.Invoke(retCode)
	}
	return ctx
}

// awakeLocked performs the lookup/cancel/statistics bookkeeping under mu but
// does not itself invoke the continuation; Awake invokes it after releasing
// mu, so the continuation may call back into the Controller.
func (c *Controller) awakeLocked(seqID uint64, retCode api.RpcError) *api.ClientContext {
	ctx, ok := c.cache[seqID]
	if !ok {
		return nil
	}
	delete(c.cache, seqID)

	if retCode != api.Timeout {
		c.wheel.Cancel(uint64(ctx.TimerID))
	} else if c.onTimeoutInc != nil {
		c.onTimeoutInc()
	}

	ctx.RetCode = retCode
	ctx.TimerID = 0
	return ctx
}

// PendingCount reports how many outgoing calls are currently suspended.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
