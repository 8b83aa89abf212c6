// File: timer/wheel.go
// Author: momentics <momentics@gmail.com>
//
// Wheel is a deadline-ordered priority set with O(log n) insert/cancel and
// stable u64 IDs (§4.1). Ready timers fire in (deadline, id) order so ties
// break on insertion order. drain removes a timer from both the ordered
// heap and the ID index BEFORE invoking its task, so the task may safely
// add or cancel timers — including itself — from inside its own callback.

package timer

import "container/heap"

// TaskFunc is invoked when a timer fires, receiving its own id and the
// interval it was armed with (0 for one-shot timers).
type TaskFunc func(id uint64, intervalMs uint32)

type entry struct {
	id         uint64
	deadlineMs uint64
	intervalMs uint32
	task       TaskFunc
	index      int // heap.Interface bookkeeping
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].deadlineMs != h[j].deadlineMs {
		return h[i].deadlineMs < h[j].deadlineMs
	}
	return h[i].id < h[j].id
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel is the timer wheel. Not safe for concurrent use across goroutines;
// the engine that owns it runs single-threaded per §5.
type Wheel struct {
	h       entryHeap
	byID    map[uint64]*entry
	nextID  uint64
}

// New creates an empty timer wheel.
func New() *Wheel {
	return &Wheel{byID: make(map[uint64]*entry)}
}

// Add arms a new timer at deadlineMs. If intervalMs > 0, the timer re-arms
// itself at deadline+interval after firing. Returns 0 on ID exhaustion
// (which in practice never happens before wraparound skips zero).
func (w *Wheel) Add(task TaskFunc, deadlineMs uint64, intervalMs uint32) uint64 {
	id := w.allocID()
	if id == 0 {
		return 0
	}
	e := &entry{id: id, deadlineMs: deadlineMs, intervalMs: intervalMs, task: task}
	w.byID[id] = e
	heap.Push(&w.h, e)
	return id
}

func (w *Wheel) allocID() uint64 {
	for {
		w.nextID++
		if w.nextID == 0 {
			continue // skip 0
		}
		if _, exists := w.byID[w.nextID]; !exists {
			return w.nextID
		}
	}
}

// Cancel removes a live timer. Idempotent-safe: unknown IDs return false.
func (w *Wheel) Cancel(id uint64) bool {
	e, ok := w.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&w.h, e.index)
	delete(w.byID, id)
	return true
}

// Exists reports whether id names a live timer.
func (w *Wheel) Exists(id uint64) bool {
	_, ok := w.byID[id]
	return ok
}

// Clear removes every timer.
func (w *Wheel) Clear() {
	w.h = nil
	w.byID = make(map[uint64]*entry)
}

// Len returns the number of live timers.
func (w *Wheel) Len() int { return len(w.h) }

// Drain fires every timer whose deadline <= now, one at a time: remove from
// both structures, snapshot its fields, re-insert if interval>0, then
// invoke the task. Returns the number of timers fired.
func (w *Wheel) Drain(now uint64) int {
	fired := 0
	for w.h.Len() > 0 && w.h[0].deadlineMs <= now {
		e := heap.Pop(&w.h).(*entry)
		delete(w.byID, e.id)

		id, interval, task := e.id, e.intervalMs, e.task
		if interval > 0 {
			e.deadlineMs += uint64(interval)
			w.byID[id] = e
			heap.Push(&w.h, e)
		}
		if task != nil {
			task(id, interval)
		}
		fired++
	}
	return fired
}
