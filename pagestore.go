package geotile

// pageStore translates page numbers to byte ranges within a mapping
// and implements allocation/free over a freeRangeSet (spec §4.1).
type pageStore struct {
	mapping       *mapping
	pageSize      int
	pageSizeShift uint8
	segmentPages  uint32
}

func newPageStore(m *mapping, pageSizeShift uint8) *pageStore {
	pageSize := 1 << pageSizeShift
	return &pageStore{
		mapping:       m,
		pageSize:      pageSize,
		pageSizeShift: pageSizeShift,
		segmentPages:  uint32(m.segmentSize / int64(pageSize)),
	}
}

func (ps *pageStore) offset(page PageNum) int64 {
	return int64(page) << ps.pageSizeShift
}

// block returns the byte span for pages [page, page+count).
func (ps *pageStore) block(page PageNum, count uint32) ([]byte, error) {
	return ps.mapping.bytes(ps.offset(page), int64(count)<<ps.pageSizeShift)
}

// isFirstPageOfSegment reports whether page is the first page of its
// memory-mapping segment, the boundary beyond which free ranges and
// blobs must never be coalesced/span (spec §3.1, §4.1).
func (ps *pageStore) isFirstPageOfSegment(page PageNum) bool {
	return uint32(page)%ps.segmentPages == 0
}

// pagesFor returns how many whole pages are needed to hold n bytes.
func (ps *pageStore) pagesFor(n int) uint32 {
	return uint32((n + ps.pageSize - 1) >> ps.pageSizeShift)
}

// allocPages finds or creates a run of `requested` contiguous pages,
// never spanning a segment boundary (spec §4.1). It mutates free and
// header.TotalPages but performs no I/O beyond growing the file to
// back newly-claimed pages.
func (ps *pageStore) allocPages(free *freeRangeSet, h *header, requested uint32) (PageNum, error) {
	if requested == 0 {
		return 0, ErrNoFreeSpace
	}
	if r, ok := free.bestFit(requested); ok {
		free.remove(r)
		if r.Pages > requested {
			free.insert(freeRange{
				FirstPage: r.FirstPage + PageNum(requested),
				Pages:     r.Pages - requested,
				Garbage:   r.Garbage,
			})
		}
		return r.FirstPage, nil
	}

	total := h.TotalPages
	remainingInSegment := ps.segmentPages - uint32(total)%ps.segmentPages
	if remainingInSegment == ps.segmentPages {
		remainingInSegment = 0 // already sits exactly on a segment boundary
	}
	if remainingInSegment != 0 && remainingInSegment < requested {
		// the tail of the current segment can't hold the request; park
		// it as a free range and grow from the next segment's start.
		free.insert(freeRange{FirstPage: total, Pages: remainingInSegment, Garbage: false})
		total = PageNum(uint32(total) + remainingInSegment)
	}

	allocated := total
	newTotal := PageNum(uint32(total) + requested)
	if err := ps.mapping.ensureFileSize(ps.offset(newTotal)); err != nil {
		return 0, err
	}
	h.TotalPages = newTotal
	return allocated, nil
}

// performFreePages returns pages [firstPage, firstPage+pages) to the
// free set, coalescing with adjacent ranges (never across a segment
// boundary) and then repeatedly trimming any range that now abuts the
// end of the file, shrinking TotalPages — the cascading trim loop from
// the original implementation (spec §4.1, DESIGN.md supplemented
// features).
func (ps *pageStore) performFreePages(free *freeRangeSet, h *header, firstPage PageNum, pages uint32) {
	merged := freeRange{FirstPage: firstPage, Pages: pages, Garbage: true}

	if !ps.isFirstPageOfSegment(merged.FirstPage) {
		if left, ok := free.findEndingAt(merged.FirstPage); ok {
			free.remove(left)
			merged.FirstPage = left.FirstPage
			merged.Pages += left.Pages
		}
	}

	rightStart := PageNum(uint32(merged.FirstPage) + merged.Pages)
	if !ps.isFirstPageOfSegment(rightStart) {
		if right, ok := free.findByStart(rightStart); ok {
			free.remove(right)
			merged.Pages += right.Pages
		}
	}

	free.insert(merged)

	for {
		last, ok := free.last()
		if !ok {
			break
		}
		if PageNum(uint32(last.FirstPage)+last.Pages) != h.TotalPages {
			break
		}
		free.remove(last)
		h.TotalPages = last.FirstPage
	}
}
