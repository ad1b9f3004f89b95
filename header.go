package geotile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PageNum is a page index; page 0 is always the header page.
type PageNum uint32

// InvalidPageNum marks an absent pointer (e.g. FreeRangeIndex when the
// store has no free ranges, or a tile-index snapshot not yet built).
const InvalidPageNum PageNum = 0xFFFFFFFF

const (
	headerMagic        uint32 = 0x474b4f54 // "GKOT"
	headerVersionMajor uint16 = 1
	headerVersionMinor uint16 = 0
	headerSize                = 4096
)

// snapshot is one of the header's two tile-index roots (spec §3.1).
// Readers that began before a commit keep using the snapshot that was
// active at the time; Store.Open always starts from ActiveSnapshot.
type snapshot struct {
	TileIndexPage     PageNum
	TileIndexBytes    uint32
	TileCount         uint32
	Revision          uint64
	RevisionTimestamp int64
}

// header is the 4 KiB header block at page 0 (spec §3.1/§6.1). Every
// field is fixed-size so the struct encodes directly with
// encoding/binary; padding fields keep the layout explicit rather than
// relying on compiler-inserted alignment, since this is an on-disk
// format other implementations must be able to parse byte-for-byte.
type header struct {
	Magic          uint32
	VersionMajor   uint16
	VersionMinor   uint16
	CommitID       uint64
	Checksum       uint32
	PageSizeShift  uint8
	ActiveSnapshot uint8
	_pad1          [2]byte
	TotalPages          uint32
	FreeRangeIndex      PageNum
	FreeRangeIndexBytes uint32
	FreeRanges          uint32
	Snapshots      [2]snapshot
	MetaPage     PageNum
	MetaSize     uint32
	MetaChecksum uint32
}

func newHeader(pageSizeShift uint8) *header {
	h := &header{
		Magic:          headerMagic,
		VersionMajor:   headerVersionMajor,
		VersionMinor:   headerVersionMinor,
		PageSizeShift:  pageSizeShift,
		TotalPages:     1, // the header page itself
		FreeRangeIndex: InvalidPageNum,
		MetaPage:       InvalidPageNum,
	}
	h.Snapshots[0].TileIndexPage = InvalidPageNum
	h.Snapshots[1].TileIndexPage = InvalidPageNum
	return h
}

func (h *header) pageSize() int {
	return 1 << h.PageSizeShift
}

func (h *header) active() *snapshot {
	return &h.Snapshots[h.ActiveSnapshot]
}

func (h *header) inactive() *snapshot {
	return &h.Snapshots[1-h.ActiveSnapshot]
}

// encodeHeader serializes h into a fixed headerSize-byte block. The
// checksum covers every header byte with the checksum field itself
// held at zero, so it is reproducible regardless of where in the
// struct the field lives.
func encodeHeader(h *header) ([]byte, error) {
	withoutChecksum := *h
	withoutChecksum.Checksum = 0
	raw, err := binaryEncode(&withoutChecksum)
	if err != nil {
		return nil, err
	}
	checksum := crc32c(raw)

	final := withoutChecksum
	final.Checksum = checksum
	raw, err = binaryEncode(&final)
	if err != nil {
		return nil, err
	}
	if len(raw) > headerSize {
		return nil, fmt.Errorf("geotile: encoded header (%d bytes) exceeds block size %d", len(raw), headerSize)
	}
	out := make([]byte, headerSize)
	copy(out, raw)
	return out, nil
}

// decodeHeader parses and checksum-verifies a headerSize-byte block.
func decodeHeader(data []byte) (*header, error) {
	var h header
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("geotile: decode header: %w", err)
	}
	want := h.Checksum
	withoutChecksum := h
	withoutChecksum.Checksum = 0
	raw, err := binaryEncode(&withoutChecksum)
	if err != nil {
		return nil, err
	}
	if crc32c(raw) != want {
		return nil, ErrCorruptHeader
	}
	if h.Magic != headerMagic {
		return nil, ErrCorruptHeader
	}
	if h.VersionMajor > headerVersionMajor {
		return nil, ErrUnsupportedVersion
	}
	return &h, nil
}

func binaryEncode(v any) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
