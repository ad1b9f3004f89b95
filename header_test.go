package geotile

import "testing"

// TestHeaderEncodeDecodeRoundTrip verifies that a header survives
// encode/decode byte-for-byte, since every field (commit ID, snapshot
// slots, free-range pointer) is load-bearing for crash recovery.
func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := newHeader(12)
	h.CommitID = 42
	h.TotalPages = 100
	h.ActiveSnapshot = 1
	h.Snapshots[1] = snapshot{
		TileIndexPage:     7,
		TileIndexBytes:    128,
		TileCount:         3,
		Revision:          5,
		RevisionTimestamp: 1234,
	}

	encoded, err := encodeHeader(h)
	if err != nil {
		t.Fatalf("encodeHeader: %v", err)
	}
	if len(encoded) != headerSize {
		t.Fatalf("encoded header is %d bytes, want %d", len(encoded), headerSize)
	}

	decoded, err := decodeHeader(encoded)
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if decoded.CommitID != h.CommitID || decoded.TotalPages != h.TotalPages {
		t.Fatalf("decoded header %+v does not match original %+v", decoded, h)
	}
	if decoded.active().TileIndexPage != 7 || decoded.active().TileCount != 3 {
		t.Fatalf("decoded active snapshot %+v does not match original", decoded.active())
	}
}

// TestHeaderChecksumDetectsCorruption ensures a single flipped byte
// anywhere in the header is caught rather than silently accepted,
// since a corrupt header would otherwise misdirect every page lookup.
func TestHeaderChecksumDetectsCorruption(t *testing.T) {
	h := newHeader(12)
	encoded, err := encodeHeader(h)
	if err != nil {
		t.Fatalf("encodeHeader: %v", err)
	}
	encoded[20] ^= 0xFF

	if _, err := decodeHeader(encoded); err != ErrCorruptHeader {
		t.Fatalf("decodeHeader on corrupted bytes = %v, want ErrCorruptHeader", err)
	}
}

func TestHeaderActiveInactiveToggle(t *testing.T) {
	h := newHeader(12)
	h.Snapshots[0].TileCount = 1
	h.Snapshots[1].TileCount = 2
	h.ActiveSnapshot = 0
	if h.active().TileCount != 1 || h.inactive().TileCount != 2 {
		t.Fatalf("active/inactive mismatch at ActiveSnapshot=0")
	}
	h.ActiveSnapshot = 1
	if h.active().TileCount != 2 || h.inactive().TileCount != 1 {
		t.Fatalf("active/inactive mismatch at ActiveSnapshot=1")
	}
}
