//go:build windows

package geotile

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func mmapSegment(f *os.File, offset, length int64, writable bool) ([]byte, error) {
	protect := uint32(windows.PAGE_READONLY)
	access := uint32(windows.FILE_MAP_READ)
	if writable {
		protect = windows.PAGE_READWRITE
		access = windows.FILE_MAP_WRITE
	}
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, protect, uint32(uint64(offset+length)>>32), uint32(offset+length), nil)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, access, uint32(uint64(offset)>>32), uint32(offset), uintptr(length))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length)), nil
}

func munmapSegment(data []byte) error {
	addr := unsafe.Pointer(&data[0])
	return windows.UnmapViewOfFile(uintptr(addr))
}

func msyncSegment(data []byte) error {
	addr := unsafe.Pointer(&data[0])
	return windows.FlushViewOfFile(uintptr(addr), uintptr(len(data)))
}
