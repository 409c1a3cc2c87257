package lsm

// Engine is one open handle to the underlying ordered key-value storage.
// Implementations own durability, compression, MVCC and background merge
// work; this layer only sequences calls and tracks nesting levels.
//
// All keys and values crossing this interface are raw bytes; buffers
// returned by cursors are only valid until the next call on the same
// engine and must be copied out by the caller.
type Engine interface {
	// Insert stores a key-value pair, replacing any previous value.
	Insert(key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// DeleteRange removes every key strictly between start and end.
	// Both boundary keys are excluded.
	DeleteRange(start, end []byte) error

	// Begin opens a write transaction at the given nesting level.
	Begin(level int) error

	// Commit commits nested transactions down to the given level.
	// Committing to level 0 ends the outermost transaction.
	Commit(level int) error

	// Rollback discards writes made above the given level and leaves a
	// transaction open at that level (closed entirely for level 0).
	Rollback(level int) error

	// Flush writes the in-memory tree to the database file.
	Flush() error

	// Work runs up to nmerge-way merging limited to about nkb kilobytes
	// and reports how many kilobytes were written.
	Work(nmerge, nkb int) (int64, error)

	// Checkpoint syncs the database file and reports the kilobytes
	// written since the previous checkpoint.
	Checkpoint() (int64, error)

	// Info returns counters describing the engine's current state.
	Info() (EngineInfo, error)

	// Cursor opens a cursor over the current transaction snapshot. The
	// engine tracks it and force-closes it on Close.
	Cursor() (EngineCursor, error)

	// Close releases the handle and every cursor still open on it.
	Close() error
}

// EngineCursor is one native cursor. Position-returning calls report
// validity through Valid, not through errors.
type EngineCursor interface {
	// Seek positions the cursor per the mode. After SeekEQ the cursor is
	// valid only on an exact match; SeekLEFast positions like SeekLE but
	// skips loading the value.
	Seek(key []byte, mode SeekMode) error

	First() error
	Last() error
	Next() error
	Prev() error

	// Valid reports whether the cursor points at an entry.
	Valid() bool

	// Key returns the current key. Only legal while Valid.
	Key() ([]byte, error)

	// Value returns the current value. Only legal while Valid, and
	// undefined after a SeekLEFast.
	Value() ([]byte, error)

	// Cmp compares the current key against key in the engine's ordering:
	// negative when the cursor key is smaller, zero on equal, positive
	// when greater.
	Cmp(key []byte) (int, error)

	Close() error
}

// EngineInfo is the engine's counter snapshot. On read-only connections
// only NRead is populated.
type EngineInfo struct {
	// NRead and NWrite count 4 KB pages moved through the page cache.
	NRead  int64
	NWrite int64

	// CheckpointKB is the size written by the last checkpoint.
	CheckpointKB int64

	// TreeKB and TreeOldKB are the sizes of the live and the
	// being-flushed in-memory trees.
	TreeKB    int64
	TreeOldKB int64
}

// openEngine constructs the engine for the configured path: the btree
// engine for MemoryPath, the pebble engine otherwise.
func openEngine(opts *Options) (Engine, error) {
	if opts.Path == MemoryPath {
		return openMemEngine(opts)
	}
	return openPebbleEngine(opts)
}
