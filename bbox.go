package geotile

import "github.com/paulmach/orb"

// TIP is a tile identifier: a 32-bit quadtree address. TIP 1 is the
// single root tile covering the whole world. Every other valid TIP is
// derived from its parent by appending a 6-bit child slot (0..63) at
// the low end, so tipParent(tip) = tip >> 6 and tipSlot(tip) = tip & 63
// recover the tree path directly from the integer — no side table is
// needed to navigate from a TIP to its ancestors or to identify which
// of its parent's up to 64 children it is (spec §3.2).
//
// Each tree level groups three ordinary quadtree zoom levels into one
// 8x8 = 64-way fan-out, which is what lets a single 64-bit bitmask
// (spec §3.2, §4.5) describe a level's occupancy.
type TIP uint32

const (
	// RootTIP is the sole TIP with no parent.
	RootTIP TIP = 1

	childBits     = 6
	childCount    = 64
	childSlotMask = TIP(childCount - 1)
	childGrid     = 8 // childCount == childGrid*childGrid
)

// tipParent returns the parent of tip, or 0 (no such TIP) for the root.
func tipParent(tip TIP) TIP {
	if tip <= RootTIP {
		return 0
	}
	return tip >> childBits
}

// tipSlot returns tip's position (0..63) among its parent's children.
func tipSlot(tip TIP) uint {
	return uint(tip & childSlotMask)
}

// tipChild returns the TIP of parent's child at the given slot (0..63).
func tipChild(parent TIP, slot uint) TIP {
	return (parent << childBits) | TIP(slot)
}

// tipDepth returns the number of child-steps from the root to tip.
func tipDepth(tip TIP) int {
	depth := 0
	for tip > RootTIP {
		tip = tipParent(tip)
		depth++
	}
	return depth
}

// worldBound is the bounding box of the root tile.
var worldBound = orb.Bound{
	Min: orb.Point{-180, -90},
	Max: orb.Point{180, 90},
}

// childBound returns the bounding box of the child at the given slot
// (0..63) within parent, dividing parent into an 8x8 grid (row-major:
// slot = row*8 + col).
func childBound(parent orb.Bound, slot uint) orb.Bound {
	col := slot % childGrid
	row := slot / childGrid
	w := (parent.Max[0] - parent.Min[0]) / childGrid
	h := (parent.Max[1] - parent.Min[1]) / childGrid
	minX := parent.Min[0] + float64(col)*w
	minY := parent.Min[1] + float64(row)*h
	return orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{minX + w, minY + h},
	}
}

// boundsIntersect reports whether a and b share any area, including
// touching at an edge (spec's bbox queries are inclusive of boundaries).
func boundsIntersect(a, b orb.Bound) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return false
	}
	return a.Min[0] <= b.Max[0] && a.Max[0] >= b.Min[0] &&
		a.Min[1] <= b.Max[1] && a.Max[1] >= b.Min[1]
}

// boundsContainPoint reports whether bound contains pt, inclusive of edges.
func boundContainsPoint(b orb.Bound, pt orb.Point) bool {
	return pt[0] >= b.Min[0] && pt[0] <= b.Max[0] && pt[1] >= b.Min[1] && pt[1] <= b.Max[1]
}
