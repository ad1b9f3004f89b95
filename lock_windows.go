//go:build windows

package geotile

import (
	"os"

	"golang.org/x/sys/windows"
)

func lockRange(f *os.File, start, length int64, exclusive, block bool) error {
	var flags uint32
	if exclusive {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	if !block {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}
	ol := windows.Overlapped{
		Offset:     uint32(start),
		OffsetHigh: uint32(start >> 32),
	}
	return windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, uint32(length), 0, &ol)
}

func unlockRange(f *os.File, start, length int64) error {
	ol := windows.Overlapped{
		Offset:     uint32(start),
		OffsetHigh: uint32(start >> 32),
	}
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, uint32(length), 0, &ol)
}
