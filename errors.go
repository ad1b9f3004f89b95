package geotile

import "errors"

var (
	// ErrClosed is returned by any Store or Transaction method called
	// after Close/End.
	ErrClosed = errors.New("geotile: store is closed")

	// ErrCorruptHeader is returned when neither header snapshot passes
	// its checksum.
	ErrCorruptHeader = errors.New("geotile: corrupt header")

	// ErrUnsupportedVersion is returned when a file's format version is
	// newer than this package understands.
	ErrUnsupportedVersion = errors.New("geotile: unsupported format version")

	// ErrCorruptJournal is returned when a sealed journal fails its
	// trailer checksum during recovery.
	ErrCorruptJournal = errors.New("geotile: corrupt journal")

	// ErrCorruptFreeRangeIndex is returned when the free-range index
	// blob fails to decode.
	ErrCorruptFreeRangeIndex = errors.New("geotile: corrupt free-range index")

	// ErrCorruptTileIndex is returned when the tile index fails its
	// checksum on load.
	ErrCorruptTileIndex = errors.New("geotile: corrupt tile index")

	// ErrNoFreeSpace is returned by AllocPages when no free range and no
	// end-of-file growth can satisfy a request (growth itself never
	// fails short of an OS error, so this only fires on internal
	// invariant violations).
	ErrNoFreeSpace = errors.New("geotile: no free space available")

	// ErrTransactionInProgress is returned by BeginTransaction when a
	// write transaction is already open on this Store handle.
	ErrTransactionInProgress = errors.New("geotile: a write transaction is already open")

	// ErrReadOnlyTransaction is returned when a mutating method is
	// called on a transaction opened at LockRead.
	ErrReadOnlyTransaction = errors.New("geotile: transaction is read-only")

	// ErrInvalidTIP is returned by PutTile/FetchTile for a zero or
	// otherwise structurally invalid TIP.
	ErrInvalidTIP = errors.New("geotile: invalid TIP")

	// ErrTileTooLarge is returned when a tile blob exceeds the maximum
	// single-blob span (one memory-mapping segment).
	ErrTileTooLarge = errors.New("geotile: tile blob exceeds maximum blob size")

	// ErrQueryCancelled is returned by Query.Err after Cancel.
	ErrQueryCancelled = errors.New("geotile: query cancelled")

	// ErrLockContention is returned by BeginTransaction(LockExclusive)
	// when another process holds the write lock.
	ErrLockContention = errors.New("geotile: store is locked by another process")
)
