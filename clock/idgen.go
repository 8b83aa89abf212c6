// File: clock/idgen.go
// Author: momentics <momentics@gmail.com>
//
// IDGenerator produces 64-bit sequence IDs. The high 32 bits are seeded at
// startup from epoch seconds so IDs are roughly sortable across restarts;
// the low 32 bits count up atomically. Zero is reserved as "absent".

package clock

import (
	"sync/atomic"
	"time"
)

// IDGenerator generates process-wide unique, roughly-sortable sequence IDs.
type IDGenerator struct {
	epochHigh uint64
	low       atomic.Uint32
}

// NewIDGenerator seeds the high bits from the current epoch seconds.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{epochHigh: uint64(time.Now().Unix()) << 32}
}

// GenerateSeqID returns the next sequence ID. Never returns 0.
func (g *IDGenerator) GenerateSeqID() uint64 {
	low := g.low.Add(1)
	id := g.epochHigh | uint64(low)
	if id == 0 {
		low = g.low.Add(1)
		id = g.epochHigh | uint64(low)
	}
	return id
}
