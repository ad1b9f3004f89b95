package geotile

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Shared zstd encoder/decoder, created once and reused across every
// tile blob this process compresses — matching the teacher's
// compress.go rationale that (de)allocating a new one per call is
// wasteful and zstd's encoder/decoder are safe for concurrent use.
var (
	zstdEncoder  *zstd.Encoder
	zstdDecoder  *zstd.Decoder
	zstdInitOnce sync.Once
	zstdInitErr  error
)

func zstdInit() error {
	zstdInitOnce.Do(func() {
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil)
		if zstdInitErr != nil {
			return
		}
		zstdDecoder, zstdInitErr = zstd.NewReader(nil)
	})
	return zstdInitErr
}

// compressTile compresses a tile blob for on-disk storage when
// Config.CompressTiles is set.
func compressTile(data []byte) ([]byte, error) {
	if err := zstdInit(); err != nil {
		return nil, fmt.Errorf("geotile: zstd init: %w", err)
	}
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// decompressTile reverses compressTile.
func decompressTile(data []byte) ([]byte, error) {
	if err := zstdInit(); err != nil {
		return nil, fmt.Errorf("geotile: zstd init: %w", err)
	}
	return zstdDecoder.DecodeAll(data, nil)
}
