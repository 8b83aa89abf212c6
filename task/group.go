// File: task/group.go
// Author: momentics <momentics@gmail.com>
//
// TaskGroup supplements the cooperative task model with a join primitive
// equivalent to the original's wait_group: a caller spawns N child tasks
// and cooperatively yields until all of them finish, without blocking the
// underlying OS thread.

package task

import "sync/atomic"

// TaskGroup tracks a set of in-flight tasks spawned against a single
// GoroutineBackend and lets a coordinator task cooperatively wait for all
// of them to complete.
type TaskGroup struct {
	backend  *GoroutineBackend
	pending  atomic.Int64
	done     chan struct{}
	doneOnce atomic.Bool
}

// NewTaskGroup returns a TaskGroup bound to backend.
func NewTaskGroup(backend *GoroutineBackend) *TaskGroup {
	return &TaskGroup{
		backend: backend,
		done:    make(chan struct{}),
	}
}

// Go spawns entry as a tracked child task. Returns false if the backend
// rejected the spawn (at capacity); the group's count is unaffected.
func (g *TaskGroup) Go(entry func()) bool {
	g.pending.Add(1)
	ok := g.backend.Spawn(func() {
		defer g.release()
		entry()
	})
	if !ok {
		g.release()
	}
	return ok
}

func (g *TaskGroup) release() {
	if g.pending.Add(-1) == 0 {
		if g.doneOnce.CompareAndSwap(false, true) {
			close(g.done)
		}
	}
}

// Wait cooperatively yields the calling task until every child spawned via
// Go has finished. Must be called from within a task running on the same
// backend; it repeatedly Yields rather than blocking the goroutine.
func (g *TaskGroup) Wait() {
	self := g.backend.ThisTask()
	if self == nil {
		<-g.done
		return
	}
	for {
		select {
		case <-g.done:
			return
		default:
			self.Yield()
		}
	}
}

// Remaining reports how many spawned children have not yet finished.
func (g *TaskGroup) Remaining() int { return int(g.pending.Load()) }
