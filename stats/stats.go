// File: stats/stats.go
// Author: momentics <momentics@gmail.com>
//
// Statistics tracks rolling counters, per-command latency histograms and
// max-value meters (§2, §9). Grounded on the original ServerStatisticsSt /
// RecvCmdStatisticsInfo / SendCmdStatisticsInfo layout: a process-wide
// struct of mutex-guarded counters plus a per-cmd map of the same shape. Histogram edges
// are the fixed ascending sequence from spec.md §9: the bucket for
// duration d is the largest edge <= d, with d=0 treated as d=1.

package stats

import "sync"

// CostEdges are the fixed histogram bucket boundaries, in milliseconds.
var CostEdges = [...]int64{0, 50, 100, 500, 1000, 3000, 5000, 60000}

// CostBucket returns the index into CostEdges for duration d milliseconds:
// the largest edge <= d, with d=0 treated as d=1.
func CostBucket(d int64) int {
	if d == 0 {
		d = 1
	}
	idx := 0
	for i, edge := range CostEdges {
		if edge <= d {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// Histogram is a fixed-edge latency histogram keyed by CostBucket.
type Histogram struct {
	mu      sync.Mutex
	buckets [len(CostEdges)]uint64
}

// Observe records one sample of duration d milliseconds.
func (h *Histogram) Observe(d int64) {
	b := CostBucket(d)
	h.mu.Lock()
	h.buckets[b]++
	h.mu.Unlock()
}

// Snapshot returns a racy, read-only copy of the bucket counts.
func (h *Histogram) Snapshot() [len(CostEdges)]uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buckets
}

// MaxMeter tracks the largest value observed so far.
type MaxMeter struct {
	mu  sync.Mutex
	max int64
}

// Observe records v, updating the running maximum if v is larger.
func (m *MaxMeter) Observe(v int64) {
	m.mu.Lock()
	if v > m.max {
		m.max = v
	}
	m.mu.Unlock()
}

// Value returns the current maximum.
func (m *MaxMeter) Value() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.max
}

// CmdInfo is the per-command statistics detail (§11): every command tracks
// its own histogram, its own expire_drop/schedule_drop counters, and its
// own max request/response size, independent of the process-wide counters.
type CmdInfo struct {
	mu sync.Mutex

	TotalRecvNum   uint64
	TotalSendNum   uint64
	ExpireDropNum  uint64
	ScheduleDrop   uint64
	MaxReqSize     int64
	MaxRspSize     int64

	QueueWait Histogram
	ProcCost  Histogram
}

func (c *CmdInfo) incRecv() {
	c.mu.Lock()
	c.TotalRecvNum++
	c.mu.Unlock()
}

func (c *CmdInfo) incSend() {
	c.mu.Lock()
	c.TotalSendNum++
	c.mu.Unlock()
}

func (c *CmdInfo) incExpireDrop() {
	c.mu.Lock()
	c.ExpireDropNum++
	c.mu.Unlock()
}

func (c *CmdInfo) incScheduleDrop() {
	c.mu.Lock()
	c.ScheduleDrop++
	c.mu.Unlock()
}

func (c *CmdInfo) observeReqSize(n int64) {
	c.mu.Lock()
	if n > c.MaxReqSize {
		c.MaxReqSize = n
	}
	c.mu.Unlock()
}

func (c *CmdInfo) observeRspSize(n int64) {
	c.mu.Lock()
	if n > c.MaxRspSize {
		c.MaxRspSize = n
	}
	c.mu.Unlock()
}

// Snapshot is a point-in-time, racy copy of a CmdInfo's scalar fields.
type Snapshot struct {
	TotalRecvNum  uint64
	TotalSendNum  uint64
	ExpireDropNum uint64
	ScheduleDrop  uint64
	MaxReqSize    int64
	MaxRspSize    int64
}

func (c *CmdInfo) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		TotalRecvNum:  c.TotalRecvNum,
		TotalSendNum:  c.TotalSendNum,
		ExpireDropNum: c.ExpireDropNum,
		ScheduleDrop:  c.ScheduleDrop,
		MaxReqSize:    c.MaxReqSize,
		MaxRspSize:    c.MaxRspSize,
	}
}

// Statistics is the process-wide rolling-counter and per-command table
// (§2, §9), grounded on server_statistics.h's ServerStatisticsSt.
type Statistics struct {
	mu sync.Mutex

	RpcTimeoutNum    uint64
	ProcTimeout0Num  uint64
	ProcTimeout1Num  uint64
	ProcTotalTimeout uint64

	Phase0Max MaxMeter
	Phase1Max MaxMeter
	Phase2Max MaxMeter
	TickMax   MaxMeter

	byCmd map[uint32]*CmdInfo
}

// New creates an empty Statistics table.
func New() *Statistics {
	return &Statistics{byCmd: make(map[uint32]*CmdInfo)}
}

// CmdInfo returns (creating if absent) the per-command record for cmd.
func (s *Statistics) CmdInfo(cmd uint32) *CmdInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, ok := s.byCmd[cmd]
	if !ok {
		ci = &CmdInfo{}
		s.byCmd[cmd] = ci
	}
	return ci
}

// IncRpcTimeout bumps the "rpc_timeout" rolling counter (§4.2 awake).
func (s *Statistics) IncRpcTimeout() {
	s.mu.Lock()
	s.RpcTimeoutNum++
	s.mu.Unlock()
}

// IncProcTimeout0/1 and IncProcTotalTimeout bump the phase deadline-violation
// counters (§4.3).
func (s *Statistics) IncProcTimeout0()  { s.mu.Lock(); s.ProcTimeout0Num++; s.mu.Unlock() }
func (s *Statistics) IncProcTimeout1()  { s.mu.Lock(); s.ProcTimeout1Num++; s.mu.Unlock() }
func (s *Statistics) IncProcTotalTimeout() {
	s.mu.Lock()
	s.ProcTotalTimeout++
	s.mu.Unlock()
}

// RecordRecv records one inbound frame for cmd: increments total_recv_num
// and observes its queue-wait latency and request size.
func (s *Statistics) RecordRecv(cmd uint32, queueWaitMs int64, reqSize int64) {
	ci := s.CmdInfo(cmd)
	ci.incRecv()
	ci.QueueWait.Observe(queueWaitMs)
	ci.observeReqSize(reqSize)
}

// RecordSend records one outbound reply for cmd.
func (s *Statistics) RecordSend(cmd uint32, procCostMs int64, rspSize int64) {
	ci := s.CmdInfo(cmd)
	ci.incSend()
	ci.ProcCost.Observe(procCostMs)
	ci.observeRspSize(rspSize)
}

// RecordExpireDrop bumps cmd's expire_drop counter (timestamp already past).
func (s *Statistics) RecordExpireDrop(cmd uint32) { s.CmdInfo(cmd).incExpireDrop() }

// RecordScheduleDrop bumps cmd's schedule_drop counter (scheduler rejected
// enqueue, §4.5 step 5).
func (s *Statistics) RecordScheduleDrop(cmd uint32) { s.CmdInfo(cmd).incScheduleDrop() }

// CmdSnapshot returns a racy snapshot of cmd's counters, or the zero value
// if cmd has never been observed.
func (s *Statistics) CmdSnapshot(cmd uint32) Snapshot {
	s.mu.Lock()
	ci, ok := s.byCmd[cmd]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}
	}
	return ci.snapshot()
}
