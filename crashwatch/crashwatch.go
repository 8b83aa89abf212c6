// File: crashwatch/crashwatch.go
// Author: momentics <momentics@gmail.com>
//
// Watchdog is the crash-fingerprint region contract (§5, §6): a small
// persisted record written by the dispatcher before invoking a handler and
// cleared after. On restart, a stale non-zero triple matching an incoming
// frame means that frame caused the previous crash and should be dropped.
// Platform-specific implementations live in crashwatch_linux.go (real mmap,
// grounded on the teacher's own golang.org/x/sys usage in affinity/ and
// pool/numa_*.go) and crashwatch_stub.go (no-op, mirroring the teacher's
// own _stub/_windows build-tag split for affinity and NUMA pools).

package crashwatch

// Watchdog persists and checks the (gid, seq_id, cmd) crash fingerprint.
type Watchdog interface {
	// Check reports whether (gid, seqID, cmd) matches the persisted
	// fingerprint from a prior run (or the same run, if Persist was called
	// and Clear was not).
	Check(gid, seqID uint64, cmd uint32) bool

	// Persist writes the triple, to be checked against on the *next* frame
	// (or the next process start, if a crash intervenes).
	Persist(gid, seqID uint64, cmd uint32)

	// Clear zeroes the persisted triple.
	Clear()

	// Close releases the underlying resource (file descriptor, mapping).
	Close() error
}

// noopWatchdog is a Watchdog that never flags a collision, used when the
// platform stub is engaged or the caller opts out of the feature entirely
// (e.g. tests that don't care about crash-replay semantics).
type noopWatchdog struct{}

func (noopWatchdog) Check(uint64, uint64, uint32) bool { return false }
func (noopWatchdog) Persist(uint64, uint64, uint32)    {}
func (noopWatchdog) Clear()                            {}
func (noopWatchdog) Close() error                      { return nil }

// NewNoop returns a Watchdog that never persists or matches anything, for
// callers that want the dispatcher's crash-fingerprint hook wired but don't
// need cross-process replay protection (e.g. in-memory tests).
func NewNoop() Watchdog { return noopWatchdog{} }

const regionSize = 4096 // 4 KiB region per §6

// fingerprint is the {u64 gid; u64 seq_id; u32 cmd_id;} layout from §6,
// laid out little-endian at the start of the mapped region.
type fingerprint struct {
	gid   uint64
	seqID uint64
	cmd   uint32
}
