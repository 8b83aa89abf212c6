//go:build !linux
// +build !linux

// File: crashwatch/crashwatch_stub.go
// Author: momentics <momentics@gmail.com>
//
// Non-Linux stub for the crash-fingerprint watchdog, mirroring the
// teacher's own affinity_stub.go / affinity_windows.go split: the feature
// is unavailable, so Open degrades to the no-op implementation rather than
// failing engine startup outright.

package crashwatch

// Open returns a no-op Watchdog on platforms without a real mmap-backed
// implementation wired up. path is accepted but unused.
func Open(path string) (Watchdog, error) {
	return NewNoop(), nil
}
