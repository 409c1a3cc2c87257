package lsm

// connState tracks connection lifecycle
type connState uint8

const (
	stateInitialized connState = iota
	stateOpened
	stateClosed // terminal
)

// SeekMode selects how a cursor resolves a key that may not exist exactly.
type SeekMode int

const (
	// SeekLEFast positions like SeekLE but does not load the value;
	// the position's key is observable, its value is not.
	SeekLEFast SeekMode = -2

	// SeekLE positions at the greatest key <= the given key.
	SeekLE SeekMode = -1

	// SeekEQ positions only on an exact match.
	SeekEQ SeekMode = 0

	// SeekGE positions at the least key >= the given key.
	SeekGE SeekMode = 1
)

// Safety controls how aggressively the engine syncs to stable storage.
type Safety int

const (
	// SafetyOff never syncs; a crash can lose recent commits.
	SafetyOff Safety = 0

	// SafetyNormal syncs at checkpoint boundaries.
	SafetyNormal Safety = 1

	// SafetyFull syncs on every commit.
	SafetyFull Safety = 2
)

// Compress selects the page compressor.
type Compress int

const (
	CompressNone Compress = iota
	CompressSnappy
	CompressZstd
)

func (c Compress) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressSnappy:
		return "snappy"
	case CompressZstd:
		return "zstd"
	}
	return "unknown"
}

// Option defaults and limits
const (
	// DefaultAutoFlush is the in-memory tree size, in KB, at which the
	// engine flushes to disk automatically
	DefaultAutoFlush = 1024

	// MaxAutoFlush is the largest accepted auto-flush threshold in KB (1 GB)
	MaxAutoFlush = 1048576

	// DefaultPageSize is the default database page size in bytes
	DefaultPageSize = 4096

	// DefaultBlockSize is the default block size in KB
	DefaultBlockSize = 1024

	// MinBlockSize (inclusive) and MaxBlockSize (exclusive) bound the
	// accepted block size in KB; the value must also be a power of two
	MinBlockSize = 64
	MaxBlockSize = 65536

	// DefaultAutoMerge is the default number of segments merged per pass
	DefaultAutoMerge = 4

	// DefaultMaxFreelist is the default cap on free-list entries
	DefaultMaxFreelist = 24

	// DefaultAutoCheckpoint is the written-KB threshold that triggers an
	// automatic checkpoint
	DefaultAutoCheckpoint = 2048

	// MaxPayloadSize is the largest key or value accepted, in bytes
	MaxPayloadSize = 1<<31 - 2
)

// MemoryPath opens an in-memory database instead of a file.
const MemoryPath = ":memory:"
