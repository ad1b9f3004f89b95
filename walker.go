package geotile

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/paulmach/orb"
)

// walkTile is one enumerated tile handed to the dispatcher (spec §4.5).
type walkTile struct {
	tip       TIP
	bound     orb.Bound
	turbo     int
	northwest uint32 // FlagMultitileNorth|FlagMultitileWest bits the searcher should gate on
}

// walker enumerates every tile in a tileIndex whose bounds intersect a
// query bbox, depth-first, consulting an optional SpatialFilter to
// prune whole subtrees (spec §4.5).
type walker struct {
	idx      *tileIndex
	bbox     orb.Bound
	filter   SpatialFilter
	strict   bool // strict bbox filtering: skip sparse multitile tracking
	visited  *roaring.Bitmap
}

func newWalker(idx *tileIndex, bbox orb.Bound, filter SpatialFilter) *walker {
	if filter == nil {
		filter = noFilter{}
	}
	return &walker{
		idx:     idx,
		bbox:    bbox,
		filter:  filter,
		strict:  true,
		visited: roaring.New(),
	}
}

// enumerate walks the tile index from root, returning every accepted
// tile in depth-first order.
func (w *walker) enumerate(root TIP) []walkTile {
	var out []walkTile

	entry, ok := w.idx.get(root)
	if !ok {
		return out
	}
	rootBound := worldBound
	w.visitNode(root, rootBound, TurboUnknown, entry, &out)
	return out
}

func (w *walker) visitNode(tip TIP, bound orb.Bound, turbo int, entry *tileIndexEntry, out *[]walkTile) {
	if turbo != TurboInside && !boundsIntersect(bound, w.bbox) {
		return
	}

	nodeTurbo := w.filter.AcceptTile(tip, bound)
	if nodeTurbo == TurboReject {
		return
	}
	if turbo == TurboInside {
		nodeTurbo = TurboInside
	}

	w.visited.Add(uint32(tip))

	if entry.ChildMask == 0 {
		*out = append(*out, walkTile{
			tip:       tip,
			bound:     bound,
			turbo:     nodeTurbo,
			northwest: w.northwestFlags(tip, bound),
		})
		return
	}

	for slot := uint(0); slot < childCount; slot++ {
		if entry.ChildMask&(1<<slot) == 0 {
			continue
		}
		childTip := tipChild(tip, slot)
		childEntry, ok := w.idx.get(childTip)
		if !ok {
			continue
		}
		childBnd := childBound(bound, slot)
		w.visitNode(childTip, childBnd, nodeTurbo, childEntry, out)
	}
}

// northwestFlags reports which MULTITILE_* bits the per-tile searcher
// should gate straddling features on for this tile (spec §4.5). In
// strict/dense traversal every tile behaves as though its northern and
// western neighbors were always enumerated, so both bits are always
// set: a straddling feature's secondary copy (the one carrying the
// corresponding MULTITILE_* flag) is gated out of every tile it
// appears in except the one where the feature was stored without that
// flag — its primary, northwest-most tile. Recomputing the bits from
// the query bbox's geometry instead of this tile's position would let
// a query spanning both the primary and a secondary tile see the
// secondary copy too (it would no longer look "west of the query"),
// double-returning the feature; always-on bits keep the gate correct
// regardless of which tiles a query happens to cover. Sparse traversal
// instead derives the bits from which neighbor tiles this walk
// actually visited.
func (w *walker) northwestFlags(tip TIP, bound orb.Bound) uint32 {
	if w.strict {
		return FlagMultitileNorth | FlagMultitileWest
	}
	// Sparse mode: a neighbor counts as "already enumerated" only if it
	// was actually visited this walk, tracked in the roaring bitmap
	// rather than recomputed from geometry (spec §4.5's sparse mode).
	var flags uint32
	parent := tipParent(tip)
	slot := tipSlot(tip)
	col, row := slot%childGrid, slot/childGrid
	if row > 0 {
		north := tipChild(parent, (row-1)*childGrid+col)
		if w.visited.Contains(uint32(north)) {
			flags |= FlagMultitileNorth
		}
	}
	if col > 0 {
		west := tipChild(parent, row*childGrid+col-1)
		if w.visited.Contains(uint32(west)) {
			flags |= FlagMultitileWest
		}
	}
	return flags
}
