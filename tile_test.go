package geotile

import (
	"testing"

	"github.com/paulmach/orb"
)

// TestTileBlobEncodeDecodeRoundTrip verifies that a tile built from a
// mixed set of nodes and ways survives EncodeTileBlob/DecodeTileBlob,
// including tag pairs and the per-category key bitmap the searcher
// relies on for trunk pruning.
func TestTileBlobEncodeDecodeRoundTrip(t *testing.T) {
	features := []FeatureRecord{
		{
			ID:       1,
			Category: CategoryNode,
			X:        10,
			Y:        20,
			Keys:     0b101,
			Tags:     []TagPair{{Key: "amenity", Value: "cafe"}},
		},
		{
			ID:       2,
			Category: CategoryWay,
			Bound:    orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{5, 5}},
			Keys:     0b010,
			Tags:     []TagPair{{Key: "highway", Value: "residential"}},
		},
	}

	tb := NewTileBlob(features)
	encoded := EncodeTileBlob(tb)

	decoded, err := DecodeTileBlob(encoded)
	if err != nil {
		t.Fatalf("DecodeTileBlob: %v", err)
	}

	nodeTrunks := decoded.Categories[CategoryNode].Trunks
	if len(nodeTrunks) != 1 || len(nodeTrunks[0].Branches) != 1 || len(nodeTrunks[0].Branches[0].Leaves) != 1 {
		t.Fatalf("decoded node index shape = %+v, want one trunk/branch/leaf", nodeTrunks)
	}
	leaf := nodeTrunks[0].Branches[0].Leaves[0]
	if leaf.Record.ID != 1 || leaf.Record.Tags[0].Value != "cafe" {
		t.Fatalf("decoded node leaf = %+v, want ID 1 with amenity=cafe", leaf.Record)
	}

	wayTrunks := decoded.Categories[CategoryWay].Trunks
	if len(wayTrunks) != 1 || wayTrunks[0].KeyBitmap != 0b010 {
		t.Fatalf("decoded way trunk key bitmap = %#x, want 0b010", wayTrunks[0].KeyBitmap)
	}
}

func TestFeatureRecordBoundForNode(t *testing.T) {
	f := FeatureRecord{Category: CategoryNode, X: 3, Y: 4}
	b := f.bound()
	if b.Min != b.Max || b.Min[0] != 3 || b.Min[1] != 4 {
		t.Fatalf("node bound = %+v, want a zero-area box at (3,4)", b)
	}
}

// TestTileIndexPutSetsAncestorChildMasks checks that putting a deep
// TIP creates routing entries for every ancestor with the correct
// child bit set, since the walker can only descend through bits it
// finds set at each level.
func TestTileIndexPutSetsAncestorChildMasks(t *testing.T) {
	ti := newTileIndex()
	leaf := tipChild(tipChild(RootTIP, 5), 9)
	ti.put(leaf, 42)

	root, ok := ti.get(RootTIP)
	if !ok || root.ChildMask&(1<<5) == 0 {
		t.Fatalf("root entry = %+v, %v, want child bit 5 set", root, ok)
	}
	mid, ok := ti.get(tipChild(RootTIP, 5))
	if !ok || mid.ChildMask&(1<<9) == 0 {
		t.Fatalf("mid entry = %+v, %v, want child bit 9 set", mid, ok)
	}
	leafEntry, ok := ti.get(leaf)
	if !ok || leafEntry.Page != 42 || leafEntry.ChildMask != 0 {
		t.Fatalf("leaf entry = %+v, %v, want page 42 with no children", leafEntry, ok)
	}
}

func TestTileIndexEncodeDecodeRoundTrip(t *testing.T) {
	ti := newTileIndex()
	ti.put(tipChild(RootTIP, 1), 10)
	ti.put(tipChild(RootTIP, 2), 20)

	encoded := encodeTileIndex(ti)
	decoded, err := decodeTileIndex(encoded)
	if err != nil {
		t.Fatalf("decodeTileIndex: %v", err)
	}
	if len(decoded.entries) != len(ti.entries) {
		t.Fatalf("decoded entry count = %d, want %d", len(decoded.entries), len(ti.entries))
	}
	e, ok := decoded.get(tipChild(RootTIP, 1))
	if !ok || e.Page != 10 || !e.Current {
		t.Fatalf("decoded leaf = %+v, %v, want page 10, current", e, ok)
	}
	root, ok := decoded.get(RootTIP)
	if !ok || root.ChildMask&(1<<1) == 0 || root.ChildMask&(1<<2) == 0 {
		t.Fatalf("decoded root mask = %+v, %v, want bits 1 and 2 set", root, ok)
	}
}

func TestTileIndexCloneIsIndependent(t *testing.T) {
	ti := newTileIndex()
	ti.put(tipChild(RootTIP, 1), 10)
	clone := ti.clone()

	clone.put(tipChild(RootTIP, 2), 20)
	if _, ok := ti.get(tipChild(RootTIP, 2)); ok {
		t.Fatalf("mutating a clone should not affect the original")
	}
}
