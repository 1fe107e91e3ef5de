//go:build !unix

package archive

// flockExclusive is a no-op on platforms without an advisory flock syscall.
func flockExclusive(fd uintptr) error {
	return nil
}

func funlock(fd uintptr) error {
	return nil
}
