//go:build unix

package archive

import (
	"golang.org/x/sys/unix"
)

// flockExclusive takes an advisory, non-blocking exclusive lock on fd,
// guarding against a second process opening the same backing file
// concurrently. It does not protect against concurrent goroutines within
// the same process; Archive serializes those with its own mutex.
func flockExclusive(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_EX|unix.LOCK_NB)
}

func funlock(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_UN)
}
