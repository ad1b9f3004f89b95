package geotile

import (
	"testing"

	"github.com/paulmach/orb"
)

// buildSmallIndex constructs a tile index with root -> 4 quadrant
// children, only two of which are leaf tiles, for walker tests.
func buildSmallIndex() *tileIndex {
	ti := newTileIndex()
	ti.put(tipChild(RootTIP, 0), 1) // southwest-most cell of the 8x8 grid
	ti.put(tipChild(RootTIP, 9), 2) // another cell, interior of the grid
	return ti
}

// TestWalkerEnumerateFindsLeavesInsideBBox verifies that a bbox
// covering the whole world enumerates every leaf tile in the index.
func TestWalkerEnumerateFindsLeavesInsideBBox(t *testing.T) {
	ti := buildSmallIndex()
	w := newWalker(ti, worldBound, nil)
	tiles := w.enumerate(RootTIP)

	if len(tiles) != 2 {
		t.Fatalf("enumerate found %d tiles, want 2", len(tiles))
	}
}

// TestWalkerEnumeratePrunesByBBox checks that a bbox confined to one
// quadrant excludes leaves entirely outside it.
func TestWalkerEnumeratePrunesByBBox(t *testing.T) {
	ti := buildSmallIndex()
	// slot 0 covers the southwest-most 8x8 cell; a bbox near the
	// opposite (eastern) edge shares no longitude range with it.
	tinyBBoxFarAway := orb.Bound{Min: orb.Point{170, -89}, Max: orb.Point{179, -80}}
	w := newWalker(ti, tinyBBoxFarAway, nil)
	tiles := w.enumerate(RootTIP)

	for _, wt := range tiles {
		if wt.tip == tipChild(RootTIP, 0) {
			t.Fatalf("enumerate returned slot 0, which should be pruned by a bbox in the opposite corner")
		}
	}
}

type rejectAllFilter struct{}

func (rejectAllFilter) AcceptTile(TIP, orb.Bound) int          { return TurboReject }
func (rejectAllFilter) AcceptFeature(FeatureRecord, int) bool { return true }

func TestWalkerFilterRejectsWholeSubtree(t *testing.T) {
	ti := buildSmallIndex()
	w := newWalker(ti, worldBound, rejectAllFilter{})
	tiles := w.enumerate(RootTIP)
	if len(tiles) != 0 {
		t.Fatalf("enumerate returned %d tiles, want 0 when the filter rejects the root", len(tiles))
	}
}

func TestWalkerEnumerateMissingRootReturnsNothing(t *testing.T) {
	w := newWalker(newTileIndex(), worldBound, nil)
	if tiles := w.enumerate(RootTIP); len(tiles) != 0 {
		t.Fatalf("enumerate on an empty index returned %d tiles, want 0", len(tiles))
	}
}
