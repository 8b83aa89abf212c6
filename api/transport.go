// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Task is the cooperative-activation contract (§4.6): the engine owns no
// concurrency primitive of its own, a backend is injected. Module is the
// lifecycle contract the module registry co-schedules (§4.7).

package api

// Task is a cooperative activation record.
type Task interface {
	// Yield suspends the running task, returning control to whoever called
	// Resume on it. Legal only from inside a running task.
	Yield()

	// Resume re-enters a suspended task. Legal only on a suspended task.
	Resume()

	// Done reports whether the task's entry function has returned.
	Done() bool
}

// TaskBackend spawns and tracks cooperative tasks.
type TaskBackend interface {
	// Spawn starts a new task running entry cooperatively. Returns false if
	// the backend is at MaxCount.
	Spawn(entry func()) bool

	// ThisTask returns the task currently running on the calling goroutine,
	// or nil if none.
	ThisTask() Task

	RunningCount() int
	MaxCount() int
}

// SystemPriority orders module lifecycle hooks; higher runs first.
type SystemPriority int

const (
	PriorityLow SystemPriority = iota
	PriorityMid
	PriorityHigh
)

// Module is a subsystem with lifecycle hooks co-scheduled by the engine loop.
type Module interface {
	Init() error
	Tick(nowMs int64, tickCount uint64)
	Proc(remainMs int64)
	Finish()
}
