package geotile

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestPageStore(t *testing.T, segmentPages uint32) *pageStore {
	t.Helper()
	dir := t.TempDir()
	f, err := os.OpenFile(filepath.Join(dir, "pages.dat"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	const pageSizeShift = 12 // 4096
	m := newMapping(f, int64(segmentPages)<<pageSizeShift, true)
	t.Cleanup(func() { m.close() })
	return newPageStore(m, pageSizeShift)
}

// TestAllocPagesGrowsFile verifies that allocating beyond every free
// range extends TotalPages by exactly the requested count when the
// current segment has room.
func TestAllocPagesGrowsFile(t *testing.T) {
	ps := newTestPageStore(t, 64)
	var free freeRangeSet
	h := newHeader(12)

	page, err := ps.allocPages(&free, h, 10)
	if err != nil {
		t.Fatalf("allocPages: %v", err)
	}
	if page != 1 {
		t.Fatalf("first alloc = page %d, want 1 (page 0 is the header)", page)
	}
	if h.TotalPages != 11 {
		t.Fatalf("TotalPages = %d, want 11", h.TotalPages)
	}
}

// TestAllocPagesReusesFreeRange checks that a request satisfiable by
// an existing free range does not grow the file.
func TestAllocPagesReusesFreeRange(t *testing.T) {
	ps := newTestPageStore(t, 64)
	var free freeRangeSet
	h := newHeader(12)
	h.TotalPages = 50
	free.insert(freeRange{FirstPage: 5, Pages: 10})

	page, err := ps.allocPages(&free, h, 4)
	if err != nil {
		t.Fatalf("allocPages: %v", err)
	}
	if page != 5 {
		t.Fatalf("allocPages reused page %d, want 5", page)
	}
	if h.TotalPages != 50 {
		t.Fatalf("TotalPages changed to %d, should stay 50 when reusing free space", h.TotalPages)
	}
	r, ok := free.findByStart(9)
	if !ok || r.Pages != 6 {
		t.Fatalf("remainder after partial reuse = %+v, %v, want {9,6}", r, ok)
	}
}

// TestAllocPagesRespectsSegmentBoundary verifies that a request which
// would straddle a segment boundary is instead satisfied starting at
// the next segment, leaving the unusable tail as a free range.
func TestAllocPagesRespectsSegmentBoundary(t *testing.T) {
	ps := newTestPageStore(t, 8)
	var free freeRangeSet
	h := newHeader(12)
	h.TotalPages = 6 // 2 pages left in the first 8-page segment

	page, err := ps.allocPages(&free, h, 4)
	if err != nil {
		t.Fatalf("allocPages: %v", err)
	}
	if page != 8 {
		t.Fatalf("allocPages = page %d, want 8 (start of next segment)", page)
	}
	if r, ok := free.findByStart(6); !ok || r.Pages != 2 {
		t.Fatalf("tail of first segment not parked as free range: %+v, %v", r, ok)
	}
}

// TestPerformFreePagesTrimsEndOfFile checks the cascading EOF trim: a
// freed range abutting the end of file shrinks TotalPages, and that
// shrink can itself expose a previously-free neighbor for a further
// trim, matching the original allocator's repeat-until-stable loop.
func TestPerformFreePagesTrimsEndOfFile(t *testing.T) {
	ps := newTestPageStore(t, 64)
	var free freeRangeSet
	h := newHeader(12)
	h.TotalPages = 20
	free.insert(freeRange{FirstPage: 15, Pages: 3}) // [15,18) already free

	ps.performFreePages(&free, h, 18, 2) // free [18,20), should merge and trim to 15

	if h.TotalPages != 15 {
		t.Fatalf("TotalPages = %d after cascading trim, want 15", h.TotalPages)
	}
	if free.len() != 0 {
		t.Fatalf("free set should be empty after full trim, has %d ranges", free.len())
	}
}

func TestPerformFreePagesCoalescesAdjacent(t *testing.T) {
	ps := newTestPageStore(t, 64)
	var free freeRangeSet
	h := newHeader(12)
	h.TotalPages = 100
	free.insert(freeRange{FirstPage: 10, Pages: 5}) // [10,15)

	ps.performFreePages(&free, h, 15, 5) // [15,20), should merge into [10,20)

	r, ok := free.findByStart(10)
	if !ok || r.Pages != 10 {
		t.Fatalf("coalesced range = %+v, %v, want {10,10}", r, ok)
	}
}
