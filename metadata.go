package geotile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// encodeMetadata bundles the schema, string table, and properties table
// into one blob (spec §3.1's schema/string-table/properties pointers,
// consolidated here behind a single header.MetaPage indirection). The
// properties table is JSON (goccy/go-json, per SPEC_FULL §2) since it
// is an open-ended string map with no byte-exact layout requirement;
// the schema and string table are fixed binary formats.
func encodeMetadata(schema *Schema, strings *StringTable, properties map[string]string) ([]byte, error) {
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return nil, fmt.Errorf("geotile: encode properties: %w", err)
	}
	buf := new(bytes.Buffer)
	schemaBytes := encodeSchema(schema)
	stringsBytes := encodeStringTable(strings)

	binary.Write(buf, binary.LittleEndian, uint32(len(schemaBytes)))
	buf.Write(schemaBytes)
	binary.Write(buf, binary.LittleEndian, uint32(len(stringsBytes)))
	buf.Write(stringsBytes)
	binary.Write(buf, binary.LittleEndian, uint32(len(propsJSON)))
	buf.Write(propsJSON)
	return buf.Bytes(), nil
}

func decodeMetadata(data []byte) (*Schema, *StringTable, map[string]string, error) {
	r := bytes.NewReader(data)

	readSection := func() ([]byte, error) {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(r, b); err != nil {
				return nil, err
			}
		}
		return b, nil
	}

	schemaBytes, err := readSection()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("geotile: decode metadata: %w", err)
	}
	stringsBytes, err := readSection()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("geotile: decode metadata: %w", err)
	}
	propsBytes, err := readSection()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("geotile: decode metadata: %w", err)
	}

	schema, err := decodeSchema(schemaBytes)
	if err != nil {
		return nil, nil, nil, err
	}
	strings, err := decodeStringTable(stringsBytes)
	if err != nil {
		return nil, nil, nil, err
	}
	properties := make(map[string]string)
	if len(propsBytes) > 0 {
		if err := json.Unmarshal(propsBytes, &properties); err != nil {
			return nil, nil, nil, fmt.Errorf("geotile: decode properties: %w", err)
		}
	}
	return schema, strings, properties, nil
}

// writeMetadata re-encodes and stores the store's schema, string table
// and properties, freeing the previous metadata blob's pages.
func (t *Transaction) writeMetadata() error {
	encoded, err := encodeMetadata(t.store.schema, t.store.stringTable, t.store.properties)
	if err != nil {
		return err
	}
	pages := t.store.pages.pagesFor(len(encoded))
	page, err := t.AllocPages(pages)
	if err != nil {
		return err
	}
	buf, err := t.stageBlock(page, pages, true)
	if err != nil {
		return err
	}
	copy(buf, encoded)
	for i := len(encoded); i < len(buf); i++ {
		buf[i] = 0
	}

	if t.header.MetaPage != InvalidPageNum && t.header.MetaSize > 0 {
		oldPages := t.store.pages.pagesFor(int(t.header.MetaSize))
		t.store.pages.performFreePages(&t.free, &t.header, t.header.MetaPage, oldPages)
	}

	t.header.MetaPage = page
	t.header.MetaSize = uint32(len(encoded))
	t.header.MetaChecksum = crc32c(encoded)
	return nil
}
