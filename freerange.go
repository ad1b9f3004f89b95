package geotile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// freeRange is one contiguous run of unallocated pages.
type freeRange struct {
	FirstPage PageNum
	Pages     uint32
	// Garbage marks a range produced by freeing previously-written
	// content (not guaranteed zeroed); ranges produced by trimming
	// virgin end-of-file space are not garbage. See DESIGN.md Open
	// Question #2.
	Garbage bool
}

// freeRangeSet maintains the free-range population as two parallel
// sorted key sets, exactly as spec §3.1/§9 describes: free_by_start
// (ordered by first page, for coalescing neighbor lookups) and
// free_by_size (ordered primarily by page count, for best/first-fit
// allocation). The composite 64-bit key layouts are adopted verbatim
// from the original implementation's allocator.
type freeRangeSet struct {
	byStart []uint64 // firstPage<<32 | pages<<1 | garbage
	bySize  []uint64 // pages<<32 | firstPage
}

func keyByStart(r freeRange) uint64 {
	g := uint64(0)
	if r.Garbage {
		g = 1
	}
	return uint64(r.FirstPage)<<32 | uint64(r.Pages)<<1 | g
}

func decodeByStart(key uint64) freeRange {
	rest := uint32(key)
	return freeRange{
		FirstPage: PageNum(uint32(key >> 32)),
		Pages:     rest >> 1,
		Garbage:   rest&1 != 0,
	}
}

func keyBySize(r freeRange) uint64 {
	return uint64(r.Pages)<<32 | uint64(r.FirstPage)
}

func decodeBySizeIgnoringGarbage(key uint64) (firstPage PageNum, pages uint32) {
	return PageNum(uint32(key)), uint32(key >> 32)
}

func (s *freeRangeSet) len() int { return len(s.byStart) }

// insert adds r to both ordered sets.
func (s *freeRangeSet) insert(r freeRange) {
	insertSortedUint64(&s.byStart, keyByStart(r))
	insertSortedUint64(&s.bySize, keyBySize(r))
}

// remove deletes the range starting at firstPage with the given page
// count and garbage flag (both sets key on firstPage+pages, so the
// garbage bit must match what is actually stored in byStart).
func (s *freeRangeSet) remove(r freeRange) {
	removeSortedUint64(&s.byStart, keyByStart(r))
	removeSortedUint64(&s.bySize, keyBySize(r))
}

// findByStart returns the free range whose FirstPage equals page, if any.
func (s *freeRangeSet) findByStart(page PageNum) (freeRange, bool) {
	i := sort.Search(len(s.byStart), func(i int) bool {
		return PageNum(uint32(s.byStart[i]>>32)) >= page
	})
	if i < len(s.byStart) {
		r := decodeByStart(s.byStart[i])
		if r.FirstPage == page {
			return r, true
		}
	}
	return freeRange{}, false
}

// findEndingAt returns the free range whose FirstPage+Pages equals
// page (i.e. a left neighbor candidate for coalescing a range that
// starts at page), if any.
func (s *freeRangeSet) findEndingAt(page PageNum) (freeRange, bool) {
	// byStart is sorted by FirstPage; a range ending at page must have
	// FirstPage < page, so scan backward from the first entry >= page.
	i := sort.Search(len(s.byStart), func(i int) bool {
		return PageNum(uint32(s.byStart[i]>>32)) >= page
	})
	if i > 0 {
		r := decodeByStart(s.byStart[i-1])
		if PageNum(uint32(r.FirstPage))+PageNum(r.Pages) == page {
			return r, true
		}
	}
	return freeRange{}, false
}

// last returns the free range with the largest FirstPage.
func (s *freeRangeSet) last() (freeRange, bool) {
	if len(s.byStart) == 0 {
		return freeRange{}, false
	}
	return decodeByStart(s.byStart[len(s.byStart)-1]), true
}

// bestFit returns the smallest free range whose Pages >= requested,
// i.e. a lower_bound search over free_by_size keyed (pages, firstPage).
func (s *freeRangeSet) bestFit(requested uint32) (freeRange, bool) {
	lowerBound := uint64(requested) << 32
	i := sort.Search(len(s.bySize), func(i int) bool {
		return s.bySize[i] >= lowerBound
	})
	if i < len(s.bySize) {
		fp, pages := decodeBySizeIgnoringGarbage(s.bySize[i])
		return freeRange{FirstPage: fp, Pages: pages}, true
	}
	return freeRange{}, false
}

func insertSortedUint64(s *[]uint64, v uint64) {
	i := sort.Search(len(*s), func(i int) bool { return (*s)[i] >= v })
	*s = append(*s, 0)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = v
}

func removeSortedUint64(s *[]uint64, v uint64) {
	i := sort.Search(len(*s), func(i int) bool { return (*s)[i] >= v })
	if i < len(*s) && (*s)[i] == v {
		*s = append((*s)[:i], (*s)[i+1:]...)
	}
}

// freeRangeIndexBlob serializes a freeRangeSet for on-disk storage
// (spec §3.1's FRI blob). Each entry is (firstPage uint32, pages_and_garbage
// uint32) mirroring the byStart key's low/high split.
func encodeFreeRangeIndex(s *freeRangeSet) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(s.byStart)))
	for _, key := range s.byStart {
		r := decodeByStart(key)
		binary.Write(buf, binary.LittleEndian, uint32(r.FirstPage))
		g := uint32(0)
		if r.Garbage {
			g = 1
		}
		binary.Write(buf, binary.LittleEndian, r.Pages<<1|g)
	}
	return buf.Bytes()
}

func decodeFreeRangeIndex(data []byte) (*freeRangeSet, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFreeRangeIndex, err)
	}
	s := &freeRangeSet{}
	for i := uint32(0); i < count; i++ {
		var firstPage, pagesAndFlag uint32
		if err := binary.Read(r, binary.LittleEndian, &firstPage); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFreeRangeIndex, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &pagesAndFlag); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFreeRangeIndex, err)
		}
		s.insert(freeRange{
			FirstPage: PageNum(firstPage),
			Pages:     pagesAndFlag >> 1,
			Garbage:   pagesAndFlag&1 != 0,
		})
	}
	return s, nil
}

// freeRangeIndexSlotCount is the number of entries a new FRI blob's
// page allocation must budget for: the current range count plus two
// slack slots, since allocating the FRI's own pages and freeing the
// previous FRI's pages can each add or merge a range before the byte
// count is known (the original implementation's sizing rule).
func freeRangeIndexSlotCount(currentRanges int) int {
	return currentRanges + 2
}
