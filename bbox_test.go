package geotile

import (
	"testing"

	"github.com/paulmach/orb"
)

// TestTIPParentSlotRoundTrip verifies that tipChild/tipParent/tipSlot
// are mutual inverses, since every other piece of tile addressing
// (the tile index, the walker's descent) depends on that round trip.
func TestTIPParentSlotRoundTrip(t *testing.T) {
	for parent := TIP(1); parent < 300; parent++ {
		for slot := uint(0); slot < childCount; slot++ {
			child := tipChild(parent, slot)
			if got := tipParent(child); got != parent {
				t.Fatalf("tipParent(tipChild(%d,%d)) = %d, want %d", parent, slot, got, parent)
			}
			if got := tipSlot(child); got != slot {
				t.Fatalf("tipSlot(tipChild(%d,%d)) = %d, want %d", parent, slot, got, slot)
			}
		}
	}
}

// TestTIPSiblingsShareParent mirrors the two example TIPs used while
// designing the encoding (0x4001 and 0x4002 sharing parent 256): two
// TIPs differing only in their low 6 bits are siblings.
func TestTIPSiblingsShareParent(t *testing.T) {
	a := TIP(0x4001)
	b := TIP(0x4002)
	if tipParent(a) != tipParent(b) {
		t.Fatalf("tipParent(%#x)=%d, tipParent(%#x)=%d, want equal", a, tipParent(a), b, tipParent(b))
	}
	if got, want := tipParent(a), TIP(0x4001>>6); got != want {
		t.Fatalf("tipParent(%#x) = %d, want %d", a, got, want)
	}
}

func TestTipParentOfRootIsZero(t *testing.T) {
	if got := tipParent(RootTIP); got != 0 {
		t.Fatalf("tipParent(RootTIP) = %d, want 0", got)
	}
}

// TestChildBoundTilesParentExactly checks that the 64 child bounds of
// a tile, taken together, exactly reconstruct the parent's extent —
// the walker's descent silently drops coverage if they don't.
func TestChildBoundTilesParentExactly(t *testing.T) {
	parent := worldBound
	minX, minY := parent.Max[0], parent.Max[1]
	maxX, maxY := parent.Min[0], parent.Min[1]
	for slot := uint(0); slot < childCount; slot++ {
		b := childBound(parent, slot)
		if b.Min[0] < minX {
			minX = b.Min[0]
		}
		if b.Min[1] < minY {
			minY = b.Min[1]
		}
		if b.Max[0] > maxX {
			maxX = b.Max[0]
		}
		if b.Max[1] > maxY {
			maxY = b.Max[1]
		}
	}
	if minX != parent.Min[0] || minY != parent.Min[1] || maxX != parent.Max[0] || maxY != parent.Max[1] {
		t.Fatalf("children do not tile the parent bound exactly: got [%v,%v]-[%v,%v], want %v", minX, minY, maxX, maxY, parent)
	}
}

func TestBoundsIntersect(t *testing.T) {
	a := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	b := orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{20, 20}}
	if !boundsIntersect(a, b) {
		t.Fatalf("touching bounds should intersect")
	}
	c := orb.Bound{Min: orb.Point{11, 11}, Max: orb.Point{20, 20}}
	if boundsIntersect(a, c) {
		t.Fatalf("disjoint bounds should not intersect")
	}
}

func TestBoundContainsPoint(t *testing.T) {
	b := orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}
	if !boundContainsPoint(b, orb.Point{0, 0}) {
		t.Fatalf("origin should be contained")
	}
	if !boundContainsPoint(b, orb.Point{10, 10}) {
		t.Fatalf("corner should be contained (inclusive)")
	}
	if boundContainsPoint(b, orb.Point{11, 0}) {
		t.Fatalf("point outside x range should not be contained")
	}
}
