package geotile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// journalStatus is the journal_mode word written at the head of the
// journal file (spec §6.1/§6.2), and also tracks, in memory, how far
// the current transaction's journal has progressed.
type journalStatus uint64

const (
	// journalNone: no journal exists; the store is clean. Never written
	// to disk — a file only exists once at least one page has been
	// touched.
	journalNone journalStatus = iota
	// journalModifiedInactive: pre-images captured, but only for pages
	// belonging to the currently-inactive tile-index snapshot — a crash
	// now leaves every reader-visible structure untouched.
	journalModifiedInactive
	// journalModifiedAll: pre-images captured for pages that affect the
	// active snapshot or shared allocator structures — a crash now
	// requires rollback on the next open.
	journalModifiedAll
	// journalSealed is an in-memory-only bookkeeping state (this
	// transaction's journal is durably on disk); it is never the
	// on-disk journal_mode value, which stays MODIFIED_INACTIVE or
	// MODIFIED_ALL from the moment capture() first sets it.
	journalSealed
)

// journalBlockSize is spec §6.1's BLOCK_SIZE: the fixed size of both
// the header block and every journal entry's pre-image, independent of
// the store's own (configurable) page size.
const journalBlockSize = headerSize

// journalEndMarker has bit 63 set; spec §6.2 says the remaining bits
// are ignored, so detection is a mask test, not an equality test.
const journalEndMarker uint64 = 1 << 63

// journal is the crash-recovery pre-image log (spec §6.2). Its on-disk
// path is the store path with ".journal" appended, following the
// original implementation's getJournalFileName().
type journal struct {
	path    string
	pending map[int64][]byte // block-aligned byte offset -> pre-image
	order   []int64
	status  journalStatus
}

func newJournal(storePath string) *journal {
	return &journal{
		path:    storePath + ".journal",
		pending: make(map[int64][]byte),
	}
}

// capture records the pre-transaction content of the byte range
// [startOffset, startOffset+len(preImage)), split into journalBlockSize
// chunks, the first time each chunk is touched in this transaction.
// touchesActive advances the journal's status from
// journalNone/journalModifiedInactive to journalModifiedAll when the
// write can affect what existing readers see.
func (j *journal) capture(startOffset int64, preImage []byte, touchesActive bool) {
	for i := 0; i*journalBlockSize < len(preImage); i++ {
		off := startOffset + int64(i*journalBlockSize)
		if _, ok := j.pending[off]; ok {
			continue
		}
		start := i * journalBlockSize
		end := start + journalBlockSize
		if end > len(preImage) {
			end = len(preImage)
		}
		block := make([]byte, journalBlockSize)
		copy(block, preImage[start:end])
		j.pending[off] = block
		j.order = append(j.order, off)
	}
	if touchesActive {
		j.status = journalModifiedAll
	} else if j.status == journalNone {
		j.status = journalModifiedInactive
	}
}

// seal writes the complete journal to disk in spec §6.2's literal
// layout: `u64 journal_mode | header snapshot (<= BLOCK_SIZE bytes) |
// (u64 ofs, [BLOCK_SIZE]byte)* entries | u64 end_marker | u32 crc32c`,
// the checksum covering everything preceding it.
func (j *journal) seal(preHeader []byte, sync bool) error {
	mode := j.status
	if mode != journalModifiedInactive && mode != journalModifiedAll {
		mode = journalModifiedAll
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint64(mode))
	buf.Write(preHeader)
	for _, off := range j.order {
		binary.Write(buf, binary.LittleEndian, uint64(off))
		buf.Write(j.pending[off])
	}
	binary.Write(buf, binary.LittleEndian, journalEndMarker)

	checksum := crc32c(buf.Bytes())

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("geotile: seal journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return err
	}
	if sync {
		if err := f.Sync(); err != nil {
			return err
		}
	}
	j.status = journalSealed
	return nil
}

// reset discards the journal: it is no longer needed once the new
// header has been durably written, since the header now reflects
// post-transaction state and the pre-images would only roll it back.
func (j *journal) reset() error {
	j.pending = make(map[int64][]byte)
	j.order = nil
	j.status = journalNone
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// recoveredJournal is a decoded, checksum-verified journal ready for
// replay.
type recoveredJournal struct {
	preHeader []byte
	entries   []journalEntry
}

// journalEntry is one (ofs, block) pair from the journal file; Offset
// is an absolute byte offset into the store file, and Data is always
// exactly journalBlockSize bytes.
type journalEntry struct {
	Offset int64
	Data   []byte
}

// readAndVerifyJournal loads path if it exists, verifying its trailer
// checksum and journal_mode. A missing file is not an error (clean
// store); a present-but-corrupt or unrecognized-mode file is
// ErrCorruptJournal.
func readAndVerifyJournal(path string, headerBlockSize int) (*recoveredJournal, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	const minSize = 8 + 8 + 4 // journal_mode + end_marker + crc32c, no header/entries
	if len(data) < minSize+headerBlockSize {
		return nil, ErrCorruptJournal
	}
	body := data[:len(data)-4]
	wantChecksum := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32c(body) != wantChecksum {
		return nil, ErrCorruptJournal
	}

	mode := journalStatus(binary.LittleEndian.Uint64(body[:8]))
	if mode != journalModifiedInactive && mode != journalModifiedAll {
		return nil, ErrCorruptJournal
	}

	offset := 8
	preHeader := body[offset : offset+headerBlockSize]
	offset += headerBlockSize

	var entries []journalEntry
	r := bytes.NewReader(body[offset:])
	for {
		var word uint64
		if err := binary.Read(r, binary.LittleEndian, &word); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptJournal, err)
		}
		if word&journalEndMarker != 0 {
			break
		}
		block := make([]byte, journalBlockSize)
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptJournal, err)
		}
		entries = append(entries, journalEntry{Offset: int64(word), Data: block})
	}
	return &recoveredJournal{preHeader: preHeader, entries: entries}, nil
}

// applyJournal rolls every captured pre-image back onto m, restoring
// the pre-transaction on-disk state, then writes back the journal's
// embedded header snapshot as the authoritative header (spec §4.2's
// crash-recovery path: a sealed-but-not-finalized journal always wins
// over whatever partial writes followed it).
func applyJournal(rj *recoveredJournal, m *mapping) error {
	for _, e := range rj.entries {
		dst, err := m.bytes(e.Offset, int64(len(e.Data)))
		if err != nil {
			return err
		}
		copy(dst, e.Data)
	}
	headerBytes, err := m.bytes(0, headerSize)
	if err != nil {
		return err
	}
	copy(headerBytes, rj.preHeader)
	return m.sync()
}
