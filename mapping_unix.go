//go:build unix

package geotile

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapSegment(f *os.File, offset, length int64, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(f.Fd()), offset, int(length), prot, unix.MAP_SHARED)
}

func munmapSegment(data []byte) error {
	return unix.Munmap(data)
}

func msyncSegment(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}
