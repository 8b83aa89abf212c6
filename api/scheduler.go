// Package api
// Author: momentics
//
// RequestScheduler is the optional component that queues decoded requests
// ahead of handler dispatch (§2, §4.3 phase 2).

package api

// ScheduledRequest is a decoded-but-undispatched request handed to a
// RequestScheduler.
type ScheduledRequest struct {
	SeqID       uint64
	Gid         uint64
	Data        []byte
	TransportID uint32
}

// RequestScheduler decouples ingress decode from handler dispatch.
type RequestScheduler interface {
	// SetProcFunc installs the function invoked for each dequeued request.
	SetProcFunc(fn func(ScheduledRequest))

	// OnRequest enqueues a decoded request. Returns false if the queue
	// rejected it (caller increments schedule_drop).
	OnRequest(req ScheduledRequest) bool

	// OnResponse notifies the scheduler a reply for gid has been delivered,
	// for implementations that need per-gid bookkeeping.
	OnResponse(gid uint64)

	// LoopOnce drains up to procNum queued requests, invoking the proc
	// function for each, and returns how many were processed.
	LoopOnce(procNum int) int

	// CacheNum reports how many requests are queued for gid.
	CacheNum(gid uint64) int

	SetStop(stop bool)
	IsStop() bool
}
