//go:build unix

package geotile

import (
	"os"

	"golang.org/x/sys/unix"
)

func lockRange(f *os.File, start, length int64, exclusive, block bool) error {
	typ := int16(unix.F_RDLCK)
	if exclusive {
		typ = unix.F_WRLCK
	}
	cmd := unix.F_SETLK
	if block {
		cmd = unix.F_SETLKW
	}
	flock := unix.Flock_t{
		Type:   typ,
		Whence: 0, // SEEK_SET
		Start:  start,
		Len:    length,
	}
	for {
		err := unix.FcntlFlock(f.Fd(), cmd, &flock)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func unlockRange(f *os.File, start, length int64) error {
	flock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: 0,
		Start:  start,
		Len:    length,
	}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &flock)
}
