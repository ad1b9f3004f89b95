package geotile

import "github.com/paulmach/orb"

// searchTile runs the per-tile search described in spec §4.6: four
// independent category sub-traversals (trunk -> branch -> leaf),
// pruned at each level by key bitmap, bounding box, multi-tile
// gating, and finally the matcher/filter predicates.
func searchTile(tb *TileBlob, tip TIP, types FeatureTypes, m Matcher, bbox orb.Bound, filter SpatialFilter, turbo int, northwest uint32) []Feature {
	if m == nil {
		m = AcceptAll{}
	}
	if filter == nil {
		filter = noFilter{}
	}

	var out []Feature
	for cat := Category(0); cat < categoryCount; cat++ {
		if !types.has(cat) {
			continue
		}
		ci := tb.Categories[cat]
		for _, trunk := range ci.Trunks {
			if !m.AcceptIndex(trunk.KeyBitmap) {
				continue
			}
			for _, branch := range trunk.Branches {
				if turbo != TurboInside && !boundsIntersect(branch.Bound, bbox) {
					continue
				}
				for _, leaf := range branch.Leaves {
					if f, ok := acceptLeaf(leaf, cat, bbox, turbo, northwest, m, filter); ok {
						out = append(out, Feature{TIP: tip, FeatureRecord: f})
					}
				}
			}
		}
	}
	return out
}

func acceptLeaf(leaf leafEntry, cat Category, bbox orb.Bound, turbo int, northwest uint32, m Matcher, filter SpatialFilter) (FeatureRecord, bool) {
	f := leaf.Record

	// A feature whose primary (northwest-most) tile is the one that
	// owns the neighbor edge the walker says it already enumerated from
	// is skipped here; it will surface from that primary tile instead
	// (spec §4.6 multi-tile gating).
	if f.Flags&northwest&(FlagMultitileNorth|FlagMultitileWest) != 0 {
		return FeatureRecord{}, false
	}

	if turbo != TurboInside {
		if cat == CategoryNode {
			if !boundContainsPoint(bbox, orb.Point{float64(f.X), float64(f.Y)}) {
				return FeatureRecord{}, false
			}
		} else if !boundsIntersect(leaf.Bound, bbox) {
			return FeatureRecord{}, false
		}
	}

	if !m.Accept(f) {
		return FeatureRecord{}, false
	}
	if !filter.AcceptFeature(f, turbo) {
		return FeatureRecord{}, false
	}
	return f, true
}
