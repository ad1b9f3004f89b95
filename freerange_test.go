package geotile

import "testing"

// TestFreeRangeSetBestFit verifies that bestFit returns the smallest
// range that still satisfies a request, not merely the first one
// inserted — the allocator relies on this to avoid fragmenting large
// ranges for small requests.
func TestFreeRangeSetBestFit(t *testing.T) {
	var s freeRangeSet
	s.insert(freeRange{FirstPage: 100, Pages: 50})
	s.insert(freeRange{FirstPage: 10, Pages: 5})
	s.insert(freeRange{FirstPage: 200, Pages: 8})

	r, ok := s.bestFit(6)
	if !ok {
		t.Fatalf("bestFit(6) found nothing")
	}
	if r.FirstPage != 200 || r.Pages != 8 {
		t.Fatalf("bestFit(6) = %+v, want the 8-page range at 200", r)
	}
}

func TestFreeRangeSetBestFitExhausted(t *testing.T) {
	var s freeRangeSet
	s.insert(freeRange{FirstPage: 0, Pages: 4})
	if _, ok := s.bestFit(10); ok {
		t.Fatalf("bestFit(10) should fail when no range is large enough")
	}
}

func TestFreeRangeSetInsertRemove(t *testing.T) {
	var s freeRangeSet
	r := freeRange{FirstPage: 5, Pages: 3}
	s.insert(r)
	if s.len() != 1 {
		t.Fatalf("len() = %d, want 1", s.len())
	}
	s.remove(r)
	if s.len() != 0 {
		t.Fatalf("len() = %d after remove, want 0", s.len())
	}
}

func TestFreeRangeSetFindEndingAt(t *testing.T) {
	var s freeRangeSet
	s.insert(freeRange{FirstPage: 10, Pages: 5}) // covers [10,15)
	r, ok := s.findEndingAt(15)
	if !ok || r.FirstPage != 10 {
		t.Fatalf("findEndingAt(15) = %+v, %v, want the range starting at 10", r, ok)
	}
	if _, ok := s.findEndingAt(16); ok {
		t.Fatalf("findEndingAt(16) should find nothing")
	}
}

// TestFreeRangeIndexEncodeDecodeRoundTrip checks the on-disk FRI blob
// format round-trips, including the garbage bit, which the allocator
// needs to preserve across restarts even though it does not affect
// allocation decisions directly.
func TestFreeRangeIndexEncodeDecodeRoundTrip(t *testing.T) {
	var s freeRangeSet
	s.insert(freeRange{FirstPage: 1, Pages: 2, Garbage: true})
	s.insert(freeRange{FirstPage: 100, Pages: 40, Garbage: false})

	encoded := encodeFreeRangeIndex(&s)
	decoded, err := decodeFreeRangeIndex(encoded)
	if err != nil {
		t.Fatalf("decodeFreeRangeIndex: %v", err)
	}
	if decoded.len() != s.len() {
		t.Fatalf("decoded len = %d, want %d", decoded.len(), s.len())
	}
	r, ok := decoded.findByStart(1)
	if !ok || r.Pages != 2 || !r.Garbage {
		t.Fatalf("decoded range at 1 = %+v, %v, want {1,2,true}", r, ok)
	}
}

func TestDecodeFreeRangeIndexCorrupt(t *testing.T) {
	if _, err := decodeFreeRangeIndex([]byte{1, 2}); err == nil {
		t.Fatalf("decodeFreeRangeIndex on truncated data should fail")
	}
}
