package geotile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

// Schema maps tag keys to small bit positions (0..63) used by trunk
// key bitmaps (spec §4.4/§4.6/§9): a matcher that only cares about a
// handful of keys can skip an entire trunk (and everything beneath it)
// by comparing its own key bitmap against the trunk's with a single
// AND, instead of inspecting every feature's tags.
type Schema struct {
	mu       sync.RWMutex
	keyIndex map[string]uint
	keys     []string
}

const maxSchemaKeys = 64

func newSchema() *Schema {
	return &Schema{keyIndex: make(map[string]uint)}
}

// IndexOf returns key's bit position, if it has been assigned one.
func (s *Schema) IndexOf(key string) (uint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.keyIndex[key]
	return idx, ok
}

// Ensure assigns key a bit position if it doesn't have one yet.
func (s *Schema) Ensure(key string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.keyIndex[key]; ok {
		return idx, nil
	}
	if len(s.keys) >= maxSchemaKeys {
		return 0, fmt.Errorf("geotile: indexed-key schema is full (max %d keys)", maxSchemaKeys)
	}
	idx := uint(len(s.keys))
	s.keys = append(s.keys, key)
	s.keyIndex[key] = idx
	return idx, nil
}

// Bit returns key's bitmap bit (0 if key has no assigned position).
func (s *Schema) Bit(key string) uint64 {
	idx, ok := s.IndexOf(key)
	if !ok {
		return 0
	}
	return 1 << idx
}

func encodeSchema(s *Schema) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(s.keys)))
	for _, k := range s.keys {
		writeString(buf, k)
	}
	return buf.Bytes()
}

func decodeSchema(data []byte) (*Schema, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("geotile: decode schema: %w", err)
	}
	s := newSchema()
	for i := uint32(0); i < count; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("geotile: decode schema: %w", err)
		}
		s.keys = append(s.keys, k)
		s.keyIndex[k] = uint(i)
	}
	return s, nil
}
