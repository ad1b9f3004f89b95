package geotile

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb"
)

// Store is an open database handle (spec §6.3). Multiple Store values
// for the same canonical path within one process share their
// underlying state via the registry (registry.go); Open/Close
// reference-count that sharing.
type Store struct {
	path          string
	canonicalPath string
	cfg           Config
	file          *os.File
	flock         *fileLock
	mapping       *mapping
	pages         *pageStore

	mu      sync.RWMutex
	header  header
	free    freeRangeSet
	tileIdx *tileIndex

	schema      *Schema
	stringTable *StringTable
	properties  map[string]string

	writeTxnActive bool
	closed         bool
}

// Open opens (creating if necessary) the store at path.
func Open(path string, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	canonical, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return registryOpen(canonical, func() (*Store, error) {
		return openStore(path, canonical, cfg)
	})
}

func openStore(path, canonical string, cfg Config) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("geotile: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &Store{
		path:          path,
		canonicalPath: canonical,
		cfg:           cfg,
		file:          f,
		flock:         newFileLock(f),
		properties:    make(map[string]string),
	}

	if info.Size() == 0 {
		if err := s.initializeNew(); err != nil {
			f.Close()
			return nil, err
		}
		return s, nil
	}

	if err := s.recoverAndLoad(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func pageSizeShiftFor(pageSize int) uint8 {
	return uint8(bits.TrailingZeros(uint(pageSize)))
}

// initializeNew lays down a fresh header and empty allocator/index
// state for a brand-new (zero-length) file.
func (s *Store) initializeNew() error {
	shift := pageSizeShiftFor(s.cfg.PageSize)
	h := newHeader(shift)

	s.mapping = newMapping(s.file, s.cfg.SegmentSize, true)
	s.pages = newPageStore(s.mapping, shift)
	s.tileIdx = newTileIndex()
	s.schema = newSchema()
	s.stringTable = newStringTable()

	if err := s.mapping.ensureFileSize(int64(headerSize)); err != nil {
		return err
	}
	encoded, err := encodeHeader(h)
	if err != nil {
		return err
	}
	headerBytes, err := s.mapping.bytes(0, headerSize)
	if err != nil {
		return err
	}
	copy(headerBytes, encoded)
	if s.cfg.SyncWrites {
		if err := s.mapping.sync(); err != nil {
			return err
		}
	}
	s.header = *h
	return nil
}

// recoverAndLoad applies any sealed journal left by a crashed writer,
// then loads the header, free-range set, tile index and metadata from
// the (now-consistent) file.
func (s *Store) recoverAndLoad() error {
	rj, err := readAndVerifyJournal(s.path+".journal", headerSize)
	if err != nil {
		return err
	}

	var h *header
	if rj != nil {
		h, err = decodeHeader(rj.preHeader)
		if err != nil {
			return err
		}
		m := newMapping(s.file, s.cfg.SegmentSize, true)
		if err := applyJournal(rj, m); err != nil {
			m.close()
			return err
		}
		if err := m.close(); err != nil {
			return err
		}
		if err := os.Remove(s.path + ".journal"); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else {
		raw, err := func() ([]byte, error) {
			buf := make([]byte, headerSize)
			if _, err := s.file.ReadAt(buf, 0); err != nil {
				return nil, err
			}
			return buf, nil
		}()
		if err != nil {
			return err
		}
		h, err = decodeHeader(raw)
		if err != nil {
			return err
		}
	}

	s.header = *h
	s.mapping = newMapping(s.file, s.cfg.SegmentSize, true)
	s.pages = newPageStore(s.mapping, h.PageSizeShift)

	if h.FreeRangeIndex != InvalidPageNum {
		pages := s.pages.pagesFor(int(h.FreeRangeIndexBytes))
		raw, err := s.pages.block(h.FreeRangeIndex, pages)
		if err != nil {
			return err
		}
		fr, err := decodeFreeRangeIndex(raw[:h.FreeRangeIndexBytes])
		if err != nil {
			return err
		}
		s.free = *fr
	}

	active := h.active()
	if active.TileIndexPage != InvalidPageNum {
		pages := s.pages.pagesFor(int(active.TileIndexBytes))
		raw, err := s.pages.block(active.TileIndexPage, pages)
		if err != nil {
			return err
		}
		ti, err := decodeTileIndex(raw[:active.TileIndexBytes])
		if err != nil {
			return err
		}
		s.tileIdx = ti
	} else {
		s.tileIdx = newTileIndex()
	}

	if h.MetaPage != InvalidPageNum {
		pages := s.pages.pagesFor(int(h.MetaSize))
		raw, err := s.pages.block(h.MetaPage, pages)
		if err != nil {
			return err
		}
		meta := raw[:h.MetaSize]
		if crc32c(meta) != h.MetaChecksum {
			return ErrCorruptHeader
		}
		schema, strings, props, err := decodeMetadata(meta)
		if err != nil {
			return err
		}
		s.schema, s.stringTable, s.properties = schema, strings, props
	} else {
		s.schema = newSchema()
		s.stringTable = newStringTable()
	}

	return nil
}

// Close releases this handle's reference; the underlying file and
// mapping are only actually closed once every Store sharing the
// canonical path has closed.
func (s *Store) Close() error {
	return registryClose(s.canonicalPath, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil
		}
		s.closed = true
		var firstErr error
		if err := s.mapping.close(); err != nil {
			firstErr = err
		}
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	})
}

// Properties returns the store's open-ended string properties table
// (spec §3.1, SPEC_FULL §4).
func (s *Store) Properties() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.properties))
	for k, v := range s.properties {
		out[k] = v
	}
	return out
}

// BeginTransaction starts a Transaction at the given lock level (spec §5).
func (s *Store) BeginTransaction(level LockLevel) (*Transaction, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if level >= LockAppend {
		if s.cfg.ReadOnly {
			s.mu.Unlock()
			return nil, ErrReadOnlyTransaction
		}
		if s.writeTxnActive {
			s.mu.Unlock()
			return nil, ErrTransactionInProgress
		}
		s.writeTxnActive = true
	}
	hdrCopy := s.header
	freeCopy := freeRangeSet{
		byStart: append([]uint64(nil), s.free.byStart...),
		bySize:  append([]uint64(nil), s.free.bySize...),
	}
	tiCopy := s.tileIdx.clone()
	oldFRI := s.header.FreeRangeIndex
	oldFRIPages := s.header.FreeRangeIndexBytes
	s.mu.Unlock()

	if level >= LockAppend {
		if err := s.flock.lockWrite(true); err != nil {
			s.mu.Lock()
			s.writeTxnActive = false
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrLockContention, err)
		}
	}
	if level == LockExclusive {
		for snap := uint8(0); snap < 2; snap++ {
			if err := s.flock.lockReadSnapshot(snap, true); err != nil {
				s.flock.unlockWrite()
				s.mu.Lock()
				s.writeTxnActive = false
				s.mu.Unlock()
				return nil, fmt.Errorf("%w: %v", ErrLockContention, err)
			}
			s.flock.unlockReadSnapshot(snap)
		}
	}

	t := &Transaction{
		store:   s,
		level:   level,
		header:  hdrCopy,
		free:    freeCopy,
		tileIdx: tiCopy,
		journal: newJournal(s.path),
		dirty:   make(map[PageNum][]byte),
	}
	if oldFRI != InvalidPageNum {
		t.oldFRI = oldFRI
		t.oldFRIPages = s.pages.pagesFor(int(oldFRIPages))
	} else {
		t.oldFRI = InvalidPageNum
	}
	return t, nil
}

// commitTransaction publishes a successfully committed transaction's
// state as the store's new live state.
func (s *Store) commitTransaction(t *Transaction) {
	s.mu.Lock()
	s.header = t.header
	s.free = t.free
	s.tileIdx = t.tileIdx
	s.mu.Unlock()
}

// endTransaction releases whatever OS lock a transaction acquired.
func (s *Store) endTransaction(t *Transaction) error {
	if t.level >= LockAppend {
		err := s.flock.unlockWrite()
		s.mu.Lock()
		s.writeTxnActive = false
		s.mu.Unlock()
		return err
	}
	return nil
}

// Query starts a streaming spatial query (spec §4.5-§4.7).
func (s *Store) Query(bbox orb.Bound, types FeatureTypes, m Matcher, f SpatialFilter) *Query {
	return newQuery(s, bbox, types, m, f)
}
