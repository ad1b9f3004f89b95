package geotile

import "fmt"

// Config controls how a Store is opened. The zero Config is valid;
// Open fills in defaults for every unset field.
type Config struct {
	// PageSize is the page size in bytes, a power of two between 4096
	// and 65536. Defaults to 4096.
	PageSize int

	// SegmentSize is the size in bytes of each memory-mapping segment;
	// blobs never span a segment boundary. Must be a multiple of
	// PageSize. Defaults to 1 GiB.
	SegmentSize int64

	// SyncWrites forces an fsync of data pages before the journal seal
	// and of the header after the commit write, per the commit protocol
	// in spec §4.3. The zero value (false) is only appropriate for
	// throwaway/test stores where durability does not matter; callers
	// that care about crash safety must set it explicitly.
	SyncWrites bool

	// CompressTiles compresses tile blobs with zstd before they are
	// written, transparently decompressing on read.
	CompressTiles bool

	// WorkerPoolSize bounds the number of concurrent per-tile searches a
	// Query may run. Defaults to runtime.GOMAXPROCS(0).
	WorkerPoolSize int

	// ResultBatchSize is the number of features buffered per
	// QueryResults block (spec §4.7). Defaults to 256.
	ResultBatchSize int

	// ReadOnly opens the store without ever requesting the write lock;
	// BeginTransaction always returns ErrReadOnlyTransaction-producing
	// transactions (LockRead only).
	ReadOnly bool
}

const (
	defaultPageSize       = 4096
	defaultSegmentSize    = 1 << 30 // 1 GiB
	defaultResultBatch    = 256
	minPageSize           = 4096
	maxPageSize           = 65536
	defaultWorkerPoolSize = 4
)

func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}
	if c.SegmentSize == 0 {
		c.SegmentSize = defaultSegmentSize
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = defaultWorkerPoolSize
	}
	if c.ResultBatchSize <= 0 {
		c.ResultBatchSize = defaultResultBatch
	}
	return c
}

func (c Config) validate() error {
	if c.PageSize < minPageSize || c.PageSize > maxPageSize || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("geotile: page size %d must be a power of two between %d and %d", c.PageSize, minPageSize, maxPageSize)
	}
	if c.SegmentSize%int64(c.PageSize) != 0 {
		return fmt.Errorf("geotile: segment size %d must be a multiple of page size %d", c.SegmentSize, c.PageSize)
	}
	return nil
}
