//go:build unix

package journal

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps a segment read-only for a single sequential pass.
func mapFile(f *os.File, size int) ([]byte, error) {
	b, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	// Kernels without madvise still map fine.
	err = unix.Madvise(b, unix.MADV_SEQUENTIAL)
	if err != nil && err != unix.ENOSYS {
		unix.Munmap(b)
		return nil, fmt.Errorf("madvise(MADV_SEQUENTIAL): %w", err)
	}
	return b, nil
}

func unmapFile(b []byte) error {
	return unix.Munmap(b)
}
