//go:build linux || darwin || freebsd

package store

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusive takes an advisory exclusive lock on f's underlying file
// descriptor, so that a second process opening the same container (e.g. a
// concurrently invoked dedupanalyze or a second mount of the same
// .dedup_store directory) cannot interleave writes with this one. In-process
// callers are additionally serialized by the containerLock.mu RWMutex; this
// syscall-level lock only matters across process boundaries.
func flockExclusive(f *os.File) func() {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return func() {}
	}
	return func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }
}
