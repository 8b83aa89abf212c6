// File: task/task.go
// Author: momentics <momentics@gmail.com>
//
// GoroutineBackend is the reference cooperative-task backend (§4.6): each
// task runs on a dedicated parked goroutine, synchronized with the engine
// goroutine through a pair of unbuffered rendezvous channels so that "one
// runnable task at a time" holds even though the Go runtime is otherwise
// preemptively multi-threaded. Yield blocks the task's goroutine on a
// receive and unblocks the engine's Resume caller; Resume is the mirror.

package task

import (
	"sync/atomic"

	"github.com/momentics/rpcengine/api"
)

// task implements api.Task.
type task struct {
	toTask   chan struct{} // engine -> task: permission to run
	toEngine chan struct{} // task -> engine: control handed back
	done     atomic.Bool
	backend  *GoroutineBackend
}

var _ api.Task = (*task)(nil)

func (t *task) Yield() {
	t.toEngine <- struct{}{}
	<-t.toTask
}

func (t *task) Resume() {
	t.toTask <- struct{}{}
	<-t.toEngine
}

func (t *task) Done() bool { return t.done.Load() }

// GoroutineBackend is the reference api.TaskBackend implementation.
type GoroutineBackend struct {
	maxCount int
	running  atomic.Int64
	current  atomic.Value // holds *task or nil, valid only on the engine goroutine
}

// NewGoroutineBackend creates a backend that permits at most maxCount
// simultaneously live tasks.
func NewGoroutineBackend(maxCount int) *GoroutineBackend {
	b := &GoroutineBackend{maxCount: maxCount}
	b.current.Store((*task)(nil))
	return b
}

// Spawn starts entry on a new parked goroutine and runs it cooperatively
// until entry either returns or the task Yields. Returns false if the
// backend is at capacity.
func (b *GoroutineBackend) Spawn(entry func()) bool {
	if b.maxCount > 0 && int(b.running.Load()) >= b.maxCount {
		return false
	}
	b.running.Add(1)

	t := &task{
		toTask:   make(chan struct{}),
		toEngine: make(chan struct{}),
		backend:  b,
	}

	go func() {
		<-t.toTask // wait for the engine's first Resume
		prev := b.current.Load()
		b.current.Store(t)
		entry()
		t.done.Store(true)
		b.running.Add(-1)
		b.current.Store(prev)
		t.toEngine <- struct{}{}
	}()

	// Kick the task off immediately: this call to Resume runs the entry
	// function's initial synchronous portion up to its first Yield (or to
	// completion, if it never suspends).
	t.Resume()
	return true
}

// ThisTask returns the task currently running on the calling goroutine, if
// any. Valid to call from within a spawned task's entry function.
func (b *GoroutineBackend) ThisTask() api.Task {
	if t, ok := b.current.Load().(*task); ok && t != nil {
		return t
	}
	return nil
}

func (b *GoroutineBackend) RunningCount() int { return int(b.running.Load()) }
func (b *GoroutineBackend) MaxCount() int     { return b.maxCount }

var _ api.TaskBackend = (*GoroutineBackend)(nil)
