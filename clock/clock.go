// File: clock/clock.go
// Author: momentics <momentics@gmail.com>
//
// Clock is a process-wide, externally advanced monotonic time source in
// microseconds. The engine never reads the wall clock during packet
// processing; all deadlines are derived from the most recent Update call.

package clock

import (
	"sync/atomic"
	"time"
)

// Clock holds the engine's notion of "now", advanced only by its owner's
// tick entrypoint.
type Clock struct {
	micros atomic.Int64
}

// New creates a Clock initialized to the current wall-clock time.
func New() *Clock {
	c := &Clock{}
	c.Update(time.Now().UnixMicro())
	return c
}

// Update sets the current time. Called once per tick by the server loop.
func (c *Clock) Update(nowMicros int64) { c.micros.Store(nowMicros) }

// CurrentMicros returns the most recently recorded time, in microseconds.
func (c *Clock) CurrentMicros() int64 { return c.micros.Load() }

// CurrentMilliSec returns the most recently recorded time, in milliseconds.
func (c *Clock) CurrentMilliSec() int64 { return c.micros.Load() / 1000 }

// CurrentSec returns the most recently recorded time, in seconds.
func (c *Clock) CurrentSec() int64 { return c.micros.Load() / 1_000_000 }
