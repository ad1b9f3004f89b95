package geotile

import (
	"fmt"
	"os"
	"sync"
)

// mapping is a segmented memory mapping over a single growable file.
// The file is divided into fixed-size segments (Config.SegmentSize,
// default 1 GiB); segments are mapped lazily on first access and never
// unmapped individually, since a blob is guaranteed by the page
// allocator never to span a segment boundary (spec §3.1), so any
// in-flight reference stays within one segment's lifetime.
type mapping struct {
	file        *os.File
	segmentSize int64
	writable    bool

	mu       sync.Mutex
	segments [][]byte // nil entry until mapped
}

func newMapping(f *os.File, segmentSize int64, writable bool) *mapping {
	return &mapping{file: f, segmentSize: segmentSize, writable: writable}
}

// ensureFileSize grows the underlying file to at least size bytes.
// Memory mappings are created at segment granularity regardless of how
// far the file has actually been extended within that segment, which
// matches the platform mmap requirement that the mapped region not
// exceed file length on some OSes only at open time — here we always
// truncate first.
func (m *mapping) ensureFileSize(size int64) error {
	info, err := m.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() >= size {
		return nil
	}
	return m.file.Truncate(size)
}

// segmentIndex returns which segment offset falls in, and the offset
// within that segment.
func (m *mapping) segmentIndex(offset int64) (idx int, within int64) {
	return int(offset / m.segmentSize), offset % m.segmentSize
}

// bytes returns a slice over [offset, offset+length). The caller must
// guarantee the span does not cross a segment boundary.
func (m *mapping) bytes(offset, length int64) ([]byte, error) {
	idx, within := m.segmentIndex(offset)
	if within+length > m.segmentSize {
		return nil, fmt.Errorf("geotile: span [%d,%d) crosses a segment boundary", offset, offset+length)
	}
	seg, err := m.segment(idx)
	if err != nil {
		return nil, err
	}
	return seg[within : within+length], nil
}

// segment returns the mapped bytes for segment idx, mapping it on
// first use.
func (m *mapping) segment(idx int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < len(m.segments) && m.segments[idx] != nil {
		return m.segments[idx], nil
	}
	needSize := int64(idx+1) * m.segmentSize
	if m.writable {
		if err := m.ensureFileSize(needSize); err != nil {
			return nil, err
		}
	} else {
		info, err := m.file.Stat()
		if err != nil {
			return nil, err
		}
		if info.Size() < needSize {
			needSize = info.Size() - int64(idx)*m.segmentSize
			if needSize <= 0 {
				return nil, fmt.Errorf("geotile: segment %d is beyond end of file", idx)
			}
		}
	}
	data, err := mmapSegment(m.file, int64(idx)*m.segmentSize, needSize-int64(idx)*m.segmentSize, m.writable)
	if err != nil {
		return nil, err
	}
	for len(m.segments) <= idx {
		m.segments = append(m.segments, nil)
	}
	m.segments[idx] = data
	return data, nil
}

// sync flushes every mapped segment's dirty pages to disk.
func (m *mapping) sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seg := range m.segments {
		if seg == nil {
			continue
		}
		if err := msyncSegment(seg); err != nil {
			return err
		}
	}
	return nil
}

// close unmaps every segment. It does not close the underlying file.
func (m *mapping) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for i, seg := range m.segments {
		if seg == nil {
			continue
		}
		if err := munmapSegment(seg); err != nil && firstErr == nil {
			firstErr = err
		}
		m.segments[i] = nil
	}
	return firstErr
}
