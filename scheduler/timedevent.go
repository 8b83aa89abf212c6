// File: scheduler/timedevent.go
// Author: momentics <momentics@gmail.com>
//
// TimedEventAdapter wraps periodic callbacks as if they were requests,
// routed through the request scheduler (§2, §4.3 phase 0), grounded on
// original_source/core/timeout_decorator.h/cpp's EventInfo marshaling
// through IScheduler. It owns its own timer.Wheel, distinct from the
// pending-call table's wheel, per §4.3 phase 0's "drain the timed-event
// adapter's wheel" as a separate step from draining pending-call timeouts.

package scheduler

import (
	"encoding/binary"

	"github.com/momentics/rpcengine/api"
	"github.com/momentics/rpcengine/timer"
)

// TimedEventTransportID is the reserved ScheduledRequest.TransportID value
// that marks a request as synthesized by a TimedEventAdapter rather than
// decoded off a real Transport. A scheduler's proc function checks this
// before falling through to ordinary method dispatch.
const TimedEventTransportID uint32 = 0xFFFFFFFF

// TimedEventAdapter arms periodic (or one-shot) callbacks on its own timer
// wheel and, when an attached RequestScheduler is present, marshals each
// firing into a ScheduledRequest so it competes for budget with real
// inbound requests exactly like the original's decorator-over-IScheduler
// design. With no scheduler attached, callbacks run directly from Drain.
type TimedEventAdapter struct {
	wheel     *timer.Wheel
	scheduler api.RequestScheduler
	events    map[uint64]func()
	nextSeq   uint64
}

// NewTimedEventAdapter creates a TimedEventAdapter. sched may be nil, in
// which case fired events run their callback synchronously from Drain
// instead of being queued.
func NewTimedEventAdapter(sched api.RequestScheduler) *TimedEventAdapter {
	return &TimedEventAdapter{
		wheel:     timer.New(),
		scheduler: sched,
		events:    make(map[uint64]func()),
	}
}

// AddEvent arms cb to fire at now+intervalMs, and every intervalMs
// thereafter if repeat is true. Returns the timer ID, or 0 on exhaustion.
func (a *TimedEventAdapter) AddEvent(nowMs uint64, intervalMs uint32, repeat bool, cb func()) uint64 {
	a.nextSeq++
	eventID := a.nextSeq
	a.events[eventID] = cb

	var interval uint32
	if repeat {
		interval = intervalMs
	}
	timerID := a.wheel.Add(func(uint64, uint32) {
		a.fire(eventID)
	}, nowMs+uint64(intervalMs), interval)
	if timerID == 0 {
		delete(a.events, eventID)
		return 0
	}
	return timerID
}

func (a *TimedEventAdapter) fire(eventID uint64) {
	cb, ok := a.events[eventID]
	if !ok {
		return
	}
	if a.scheduler == nil {
		cb()
		return
	}
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, eventID)
	ok = a.scheduler.OnRequest(api.ScheduledRequest{
		SeqID:       eventID,
		Data:        data,
		TransportID: TimedEventTransportID,
	})
	if !ok {
		// Scheduler rejected the enqueue (stopping/full): run inline rather
		// than silently dropping a periodic callback the caller relies on
		// for liveness (heartbeats, supervisory checks).
		cb()
	}
}

// Cancel disarms a still-armed event's timer by its timer ID. The event's
// callback stays registered, so a firing already queued on the scheduler
// still runs it.
func (a *TimedEventAdapter) Cancel(timerID uint64) bool {
	return a.wheel.Cancel(timerID)
}

// HandleScheduled runs the callback for a ScheduledRequest previously
// produced by this adapter. Returns false if req was not one of ours
// (wrong TransportID or data shorter than 8 bytes) or names an event ID
// this adapter never registered.
func (a *TimedEventAdapter) HandleScheduled(req api.ScheduledRequest) bool {
	if req.TransportID != TimedEventTransportID || len(req.Data) < 8 {
		return false
	}
	eventID := binary.LittleEndian.Uint64(req.Data)
	cb, ok := a.events[eventID]
	if !ok {
		return false
	}
	cb()
	return true
}

// Drain fires every event whose deadline has passed. Returns the count.
func (a *TimedEventAdapter) Drain(nowMs uint64) int {
	return a.wheel.Drain(nowMs)
}
