package geotile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/zeebo/xxh3"
)

// StringTable is the store's global, append-only table of tag keys and
// values (spec §4.4). Interning collapses repeated strings (the same
// tag key appears in millions of features) to a single small integer,
// looked up by a 64-bit content hash rather than a full string map —
// the same trick the teacher's hash.go applies to label identifiers.
type StringTable struct {
	mu      sync.RWMutex
	strings []string
	byHash  map[uint64][]uint32
}

func newStringTable() *StringTable {
	return &StringTable{byHash: make(map[uint64][]uint32)}
}

// Intern returns s's index, assigning and appending a new one if s has
// never been interned.
func (st *StringTable) Intern(s string) uint32 {
	st.mu.Lock()
	defer st.mu.Unlock()
	h := xxh3.HashString(s)
	for _, idx := range st.byHash[h] {
		if st.strings[idx] == s {
			return idx
		}
	}
	idx := uint32(len(st.strings))
	st.strings = append(st.strings, s)
	st.byHash[h] = append(st.byHash[h], idx)
	return idx
}

// String resolves an interned index back to its string.
func (st *StringTable) String(idx uint32) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if int(idx) >= len(st.strings) {
		return "", false
	}
	return st.strings[idx], true
}

// Len returns the number of interned strings.
func (st *StringTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.strings)
}

func encodeStringTable(st *StringTable) []byte {
	st.mu.RLock()
	defer st.mu.RUnlock()
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(st.strings)))
	for _, s := range st.strings {
		writeString(buf, s)
	}
	return buf.Bytes()
}

func decodeStringTable(data []byte) (*StringTable, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("geotile: decode string table: %w", err)
	}
	st := newStringTable()
	for i := uint32(0); i < count; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("geotile: decode string table: %w", err)
		}
		idx := uint32(len(st.strings))
		st.strings = append(st.strings, s)
		h := xxh3.HashString(s)
		st.byHash[h] = append(st.byHash[h], idx)
	}
	return st, nil
}
