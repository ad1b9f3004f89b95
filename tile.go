package geotile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/paulmach/orb"
)

// Feature record flags (spec §3.2).
const (
	FlagLastSpatialItem uint32 = 1 << iota
	FlagArea
	FlagRelationMember
	FlagWaynode
	FlagMultitileNorth
	FlagMultitileWest
	FlagSharedLocation
	FlagExceptionNode
)

// Category is one of the four per-tile R-tree-like spatial indices
// (spec §3.2/§4.6).
type Category uint8

const (
	CategoryNode Category = iota
	CategoryWay
	CategoryArea
	CategoryRelation
	categoryCount
)

// FeatureTypes is a bitmask of Category selecting which indices a
// Query traverses.
type FeatureTypes uint8

const (
	TypeNode     FeatureTypes = 1 << CategoryNode
	TypeWay      FeatureTypes = 1 << CategoryWay
	TypeArea     FeatureTypes = 1 << CategoryArea
	TypeRelation FeatureTypes = 1 << CategoryRelation
	TypeAll                   = TypeNode | TypeWay | TypeArea | TypeRelation
)

func (c Category) featureType() FeatureTypes { return FeatureTypes(1 << uint(c)) }

func (t FeatureTypes) has(c Category) bool { return t&c.featureType() != 0 }

// TagPair is one key/value tag on a feature.
type TagPair struct {
	Key   string
	Value string
}

// FeatureRecord is one stored feature (spec §3.2).
type FeatureRecord struct {
	ID       uint64
	Category Category
	Flags    uint32
	X, Y     int32     // node coordinate; anchor point for way/area/relation
	Bound    orb.Bound // way/area/relation extent; zero value for plain nodes
	Keys     uint64    // indexed-key bitmap for matcher fast-path evaluation
	Tags     []TagPair
}

// bound returns the feature's spatial extent, synthesizing a
// zero-area box at (X,Y) for nodes.
func (f FeatureRecord) bound() orb.Bound {
	if f.Category == CategoryNode {
		p := orb.Point{float64(f.X), float64(f.Y)}
		return orb.Bound{Min: p, Max: p}
	}
	return f.Bound
}

// Feature is a query result: a FeatureRecord plus the TIP of the tile
// it was returned from.
type Feature struct {
	TIP TIP
	FeatureRecord
}

// leafEntry is one feature inside a branch.
type leafEntry struct {
	Bound  orb.Bound
	Record FeatureRecord
}

// branchEntry groups leaves under one bounding box, the second level
// of a tile category's R-tree-like index (spec §4.6).
type branchEntry struct {
	Bound  orb.Bound
	Leaves []leafEntry
}

// trunkEntry is the root level of a category's index: a key bitmap
// gating whether any matcher keyed against this tile's schema could
// possibly match anything beneath it, avoiding a branch/leaf walk
// entirely when it can't (spec §4.6, §9).
type trunkEntry struct {
	KeyBitmap uint64
	Branches  []branchEntry
}

type categoryIndex struct {
	Trunks []trunkEntry
}

// TileBlob is the decoded payload of one tile (spec §3.2). Tile
// construction lives outside this package; TileBlob is what PutTile
// stores and FetchTile/the searcher read back.
type TileBlob struct {
	Categories [categoryCount]categoryIndex
}

// NewTileBlob builds a TileBlob from a flat feature list, grouping by
// Category into a single trunk/branch per category — a minimal but
// format-correct index; real tile construction (outside this package's
// scope) would balance multiple branches per trunk.
func NewTileBlob(features []FeatureRecord) *TileBlob {
	tb := &TileBlob{}
	byCategory := make(map[Category][]FeatureRecord)
	for _, f := range features {
		byCategory[f.Category] = append(byCategory[f.Category], f)
	}
	for cat, feats := range byCategory {
		var keyBitmap uint64
		leaves := make([]leafEntry, 0, len(feats))
		bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0, 0}}
		first := true
		for _, f := range feats {
			keyBitmap |= f.Keys
			b := f.bound()
			leaves = append(leaves, leafEntry{Bound: b, Record: f})
			if first {
				bound = b
				first = false
			} else {
				bound = bound.Union(b)
			}
		}
		tb.Categories[cat] = categoryIndex{
			Trunks: []trunkEntry{{
				KeyBitmap: keyBitmap,
				Branches:  []branchEntry{{Bound: bound, Leaves: leaves}},
			}},
		}
	}
	return tb
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBound(buf *bytes.Buffer, b orb.Bound) {
	binary.Write(buf, binary.LittleEndian, b.Min[0])
	binary.Write(buf, binary.LittleEndian, b.Min[1])
	binary.Write(buf, binary.LittleEndian, b.Max[0])
	binary.Write(buf, binary.LittleEndian, b.Max[1])
}

func readBound(r *bytes.Reader) (orb.Bound, error) {
	var minX, minY, maxX, maxY float64
	for _, p := range []*float64{&minX, &minY, &maxX, &maxY} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return orb.Bound{}, err
		}
	}
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}, nil
}

// EncodeTileBlob serializes a TileBlob (spec §3.2's tile blob format).
func EncodeTileBlob(tb *TileBlob) []byte {
	buf := new(bytes.Buffer)
	for cat := Category(0); cat < categoryCount; cat++ {
		ci := tb.Categories[cat]
		binary.Write(buf, binary.LittleEndian, uint32(len(ci.Trunks)))
		for _, tr := range ci.Trunks {
			binary.Write(buf, binary.LittleEndian, tr.KeyBitmap)
			binary.Write(buf, binary.LittleEndian, uint32(len(tr.Branches)))
			for _, br := range tr.Branches {
				writeBound(buf, br.Bound)
				binary.Write(buf, binary.LittleEndian, uint32(len(br.Leaves)))
				for _, lf := range br.Leaves {
					writeBound(buf, lf.Bound)
					writeFeatureRecord(buf, lf.Record)
				}
			}
		}
	}
	return buf.Bytes()
}

func writeFeatureRecord(buf *bytes.Buffer, f FeatureRecord) {
	binary.Write(buf, binary.LittleEndian, f.ID)
	buf.WriteByte(byte(f.Category))
	binary.Write(buf, binary.LittleEndian, f.Flags)
	binary.Write(buf, binary.LittleEndian, f.X)
	binary.Write(buf, binary.LittleEndian, f.Y)
	writeBound(buf, f.Bound)
	binary.Write(buf, binary.LittleEndian, f.Keys)
	binary.Write(buf, binary.LittleEndian, uint32(len(f.Tags)))
	for _, tag := range f.Tags {
		writeString(buf, tag.Key)
		writeString(buf, tag.Value)
	}
}

func readFeatureRecord(r *bytes.Reader) (FeatureRecord, error) {
	var f FeatureRecord
	if err := binary.Read(r, binary.LittleEndian, &f.ID); err != nil {
		return f, err
	}
	cat, err := r.ReadByte()
	if err != nil {
		return f, err
	}
	f.Category = Category(cat)
	if err := binary.Read(r, binary.LittleEndian, &f.Flags); err != nil {
		return f, err
	}
	if err := binary.Read(r, binary.LittleEndian, &f.X); err != nil {
		return f, err
	}
	if err := binary.Read(r, binary.LittleEndian, &f.Y); err != nil {
		return f, err
	}
	b, err := readBound(r)
	if err != nil {
		return f, err
	}
	f.Bound = b
	if err := binary.Read(r, binary.LittleEndian, &f.Keys); err != nil {
		return f, err
	}
	var tagCount uint32
	if err := binary.Read(r, binary.LittleEndian, &tagCount); err != nil {
		return f, err
	}
	f.Tags = make([]TagPair, tagCount)
	for i := range f.Tags {
		k, err := readString(r)
		if err != nil {
			return f, err
		}
		v, err := readString(r)
		if err != nil {
			return f, err
		}
		f.Tags[i] = TagPair{Key: k, Value: v}
	}
	return f, nil
}

// DecodeTileBlob parses bytes produced by EncodeTileBlob.
func DecodeTileBlob(data []byte) (*TileBlob, error) {
	r := bytes.NewReader(data)
	tb := &TileBlob{}
	for cat := Category(0); cat < categoryCount; cat++ {
		var trunkCount uint32
		if err := binary.Read(r, binary.LittleEndian, &trunkCount); err != nil {
			return nil, fmt.Errorf("geotile: decode tile blob: %w", err)
		}
		trunks := make([]trunkEntry, trunkCount)
		for i := range trunks {
			if err := binary.Read(r, binary.LittleEndian, &trunks[i].KeyBitmap); err != nil {
				return nil, err
			}
			var branchCount uint32
			if err := binary.Read(r, binary.LittleEndian, &branchCount); err != nil {
				return nil, err
			}
			branches := make([]branchEntry, branchCount)
			for j := range branches {
				b, err := readBound(r)
				if err != nil {
					return nil, err
				}
				branches[j].Bound = b
				var leafCount uint32
				if err := binary.Read(r, binary.LittleEndian, &leafCount); err != nil {
					return nil, err
				}
				leaves := make([]leafEntry, leafCount)
				for k := range leaves {
					lb, err := readBound(r)
					if err != nil {
						return nil, err
					}
					rec, err := readFeatureRecord(r)
					if err != nil {
						return nil, err
					}
					leaves[k] = leafEntry{Bound: lb, Record: rec}
				}
				branches[j].Leaves = leaves
			}
			trunks[i].Branches = branches
		}
		tb.Categories[cat] = categoryIndex{Trunks: trunks}
	}
	return tb, nil
}

// tileIndexEntry is one TIP's slot in the in-memory tile index: either
// a leaf (Page valid, ChildMask zero) or a routing node (ChildMask
// nonzero, Page invalid) — spec §3.2's tagged-entry exclusivity.
type tileIndexEntry struct {
	Page      PageNum
	Current   bool
	ChildMask uint64
}

type tileIndex struct {
	entries map[TIP]*tileIndexEntry
}

func newTileIndex() *tileIndex {
	return &tileIndex{entries: make(map[TIP]*tileIndexEntry)}
}

// put records tip as a leaf tile at page, creating routing entries for
// every ancestor and setting the appropriate child bit at each level so
// the walker can descend to tip without visiting absent siblings.
func (ti *tileIndex) put(tip TIP, page PageNum) {
	e := ti.entries[tip]
	if e == nil {
		e = &tileIndexEntry{}
		ti.entries[tip] = e
	}
	e.Page = page
	e.Current = true

	child := tip
	for {
		parent := tipParent(child)
		if parent == 0 {
			break
		}
		pe := ti.entries[parent]
		if pe == nil {
			pe = &tileIndexEntry{Page: InvalidPageNum}
			ti.entries[parent] = pe
		}
		pe.ChildMask |= 1 << tipSlot(child)
		child = parent
	}
}

func (ti *tileIndex) get(tip TIP) (*tileIndexEntry, bool) {
	e, ok := ti.entries[tip]
	return e, ok
}

func (ti *tileIndex) clone() *tileIndex {
	out := newTileIndex()
	for tip, e := range ti.entries {
		cp := *e
		out.entries[tip] = &cp
	}
	return out
}

// encodeTileIndex serializes ti in ascending-TIP order for a
// deterministic byte-for-byte round trip.
func encodeTileIndex(ti *tileIndex) []byte {
	tips := make([]TIP, 0, len(ti.entries))
	for tip := range ti.entries {
		tips = append(tips, tip)
	}
	sort.Slice(tips, func(i, j int) bool { return tips[i] < tips[j] })

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(tips)))
	for _, tip := range tips {
		e := ti.entries[tip]
		binary.Write(buf, binary.LittleEndian, uint32(tip))
		hasChildren := e.ChildMask != 0
		var tagged uint32
		if hasChildren {
			tagged = 1
		} else {
			cur := uint32(0)
			if e.Current {
				cur = 1
			}
			tagged = uint32(e.Page)<<2 | cur<<1
		}
		binary.Write(buf, binary.LittleEndian, tagged)
		if hasChildren {
			binary.Write(buf, binary.LittleEndian, e.ChildMask)
		}
	}
	return buf.Bytes()
}

func decodeTileIndex(data []byte) (*tileIndex, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptTileIndex, err)
	}
	ti := newTileIndex()
	for i := uint32(0); i < count; i++ {
		var tip, tagged uint32
		if err := binary.Read(r, binary.LittleEndian, &tip); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptTileIndex, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &tagged); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptTileIndex, err)
		}
		e := &tileIndexEntry{}
		if tagged&1 != 0 {
			var mask uint64
			if err := binary.Read(r, binary.LittleEndian, &mask); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptTileIndex, err)
			}
			e.ChildMask = mask
			e.Page = InvalidPageNum
		} else {
			e.Current = tagged&2 != 0
			e.Page = PageNum(tagged >> 2)
		}
		ti.entries[TIP(tip)] = e
	}
	return ti, nil
}
