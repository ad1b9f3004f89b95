package geotile

import (
	"fmt"
	"time"
)

// Transaction is a single writer's view of a Store between
// BeginTransaction and Commit/End (spec §4.3). All mutations accumulate
// in memory; nothing reaches the mapped file until Commit runs the
// seal-journal / write-blocks / write-header protocol.
type Transaction struct {
	store  *Store
	level  LockLevel
	header  header
	free    freeRangeSet
	tileIdx *tileIndex
	journal *journal

	dirty      map[PageNum][]byte
	dirtyOrder []PageNum
	stagedFree []freeRange

	oldFRI     PageNum
	oldFRIPages uint32

	ended     bool
	committed bool
}

func (t *Transaction) readOnly() bool { return t.level == LockRead }

// stageBlock returns a mutable buffer for pages [page, page+count); the
// caller fills it completely. The first touch of a page captures its
// current on-disk content as the journal pre-image. affectsActive marks
// whether this write can be observed by a reader still using the
// active tile-index snapshot (spec §4.2's journalModifiedAll vs
// journalModifiedInactive distinction).
func (t *Transaction) stageBlock(page PageNum, count uint32, affectsActive bool) ([]byte, error) {
	if t.ended {
		return nil, ErrClosed
	}
	if t.readOnly() {
		return nil, ErrReadOnlyTransaction
	}
	if buf, ok := t.dirty[page]; ok {
		return buf, nil
	}
	pre, err := t.store.pages.block(page, count)
	if err != nil {
		return nil, err
	}
	t.journal.capture(t.store.pages.offset(page), pre, affectsActive)

	buf := make([]byte, len(pre))
	copy(buf, pre)
	t.dirty[page] = buf
	t.dirtyOrder = append(t.dirtyOrder, page)
	return buf, nil
}

// AllocPages reserves count contiguous pages, updating the
// transaction's working free-range set.
func (t *Transaction) AllocPages(count uint32) (PageNum, error) {
	if t.readOnly() {
		return 0, ErrReadOnlyTransaction
	}
	return t.store.pages.allocPages(&t.free, &t.header, count)
}

// FreePages stages [first, first+count) for release; the actual
// coalescing and end-of-file trim happen during Commit, after every
// allocation this transaction will make has been decided (spec §4.3:
// "processes staged frees" as a discrete commit step).
func (t *Transaction) FreePages(first PageNum, count uint32) error {
	if t.readOnly() {
		return ErrReadOnlyTransaction
	}
	t.stagedFree = append(t.stagedFree, freeRange{FirstPage: first, Pages: count})
	return nil
}

// Commit runs the commit protocol: apply staged frees, write a new
// free-range index, seal the journal, write dirty blocks, sync, write
// the new header, sync again, then reset the journal (spec §4.3).
// isFinal additionally reclaims the previous (now-superseded)
// tile-index snapshot's pages, for callers that know no reader still
// needs it.
func (t *Transaction) Commit(isFinal bool) error {
	if t.ended {
		return ErrClosed
	}
	if t.readOnly() {
		return ErrReadOnlyTransaction
	}

	for _, r := range t.stagedFree {
		t.store.pages.performFreePages(&t.free, &t.header, r.FirstPage, r.Pages)
	}
	t.stagedFree = nil

	if t.oldFRI != InvalidPageNum && t.oldFRIPages > 0 {
		t.store.pages.performFreePages(&t.free, &t.header, t.oldFRI, t.oldFRIPages)
		t.oldFRI = InvalidPageNum
	}

	// Write the new tile index into the currently-inactive snapshot
	// slot, leaving the active slot (and every page it still points at)
	// untouched until the header flip below, so a reader pinned to the
	// old snapshot never observes a half-written tree.
	oldActiveIdx := t.header.ActiveSnapshot
	oldActive := t.header.Snapshots[oldActiveIdx]
	targetIdx := 1 - oldActiveIdx

	tiBytes := encodeTileIndex(t.tileIdx)
	tiPages := t.store.pages.pagesFor(len(tiBytes))
	tiPage, err := t.AllocPages(tiPages)
	if err != nil {
		return err
	}
	tiBuf, err := t.stageBlock(tiPage, tiPages, true)
	if err != nil {
		return err
	}
	copy(tiBuf, tiBytes)
	for i := len(tiBytes); i < len(tiBuf); i++ {
		tiBuf[i] = 0
	}

	t.header.Snapshots[targetIdx] = snapshot{
		TileIndexPage:     tiPage,
		TileIndexBytes:    uint32(len(tiBytes)),
		TileCount:         uint32(len(t.tileIdx.entries)),
		Revision:          oldActive.Revision + 1,
		RevisionTimestamp: time.Now().UnixNano(),
	}
	t.header.ActiveSnapshot = targetIdx

	if isFinal && oldActive.TileIndexPage != InvalidPageNum {
		oldPages := t.store.pages.pagesFor(int(oldActive.TileIndexBytes))
		t.store.pages.performFreePages(&t.free, &t.header, oldActive.TileIndexPage, oldPages)
	}

	if err := t.writeFreeRangeIndex(); err != nil {
		return err
	}

	if err := t.writeMetadata(); err != nil {
		return err
	}

	t.header.CommitID++

	preHeaderBytes, err := t.store.mapping.bytes(0, headerSize)
	if err != nil {
		return err
	}
	if err := t.journal.seal(preHeaderBytes, t.store.cfg.SyncWrites); err != nil {
		return err
	}

	for _, page := range t.dirtyOrder {
		data := t.dirty[page]
		pages := t.store.pages.pagesFor(len(data))
		dst, err := t.store.pages.block(page, pages)
		if err != nil {
			return err
		}
		copy(dst, data)
	}

	if t.store.cfg.SyncWrites {
		if err := t.store.mapping.sync(); err != nil {
			return err
		}
	}

	encoded, err := encodeHeader(&t.header)
	if err != nil {
		return err
	}
	headerBytes, err := t.store.mapping.bytes(0, headerSize)
	if err != nil {
		return err
	}
	copy(headerBytes, encoded)

	if t.store.cfg.SyncWrites {
		if err := t.store.mapping.sync(); err != nil {
			return err
		}
	}

	if err := t.journal.reset(); err != nil {
		return err
	}

	t.store.commitTransaction(t)
	t.committed = true
	return nil
}

// writeFreeRangeIndex allocates space for and writes the current free
// set, budgeting freeRangeIndexSlotCount slack slots for the size
// change the allocation itself can cause (DESIGN.md / freerange.go).
func (t *Transaction) writeFreeRangeIndex() error {
	slots := freeRangeIndexSlotCount(t.free.len())
	budget := 4 + slots*8
	pages := t.store.pages.pagesFor(budget)
	page, err := t.store.pages.allocPages(&t.free, &t.header, pages)
	if err != nil {
		return fmt.Errorf("geotile: allocate free-range index: %w", err)
	}
	encoded := encodeFreeRangeIndex(&t.free)
	buf, err := t.stageBlock(page, pages, true)
	if err != nil {
		return err
	}
	if len(encoded) > len(buf) {
		return fmt.Errorf("geotile: free-range index (%d bytes) exceeds allocated %d bytes", len(encoded), len(buf))
	}
	copy(buf, encoded)
	for i := len(encoded); i < len(buf); i++ {
		buf[i] = 0
	}
	t.header.FreeRangeIndex = page
	t.header.FreeRangeIndexBytes = uint32(len(encoded))
	t.header.FreeRanges = uint32(t.free.len())
	return nil
}

// End releases the transaction's lock(s). Calling it after a
// successful Commit is a normal, required cleanup step; calling it
// without Commit aborts the transaction with no on-disk effect, since
// nothing is written to the mapped file before Commit runs.
func (t *Transaction) End() error {
	if t.ended {
		return nil
	}
	t.ended = true
	return t.store.endTransaction(t)
}
