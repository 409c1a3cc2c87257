package lsm

import "math/bits"

// Logger receives diagnostic messages from the connection and the engine.
// It must never panic.
type Logger func(format string, args ...any)

// Options configures a connection. The zero value is not usable; start from
// DefaultOptions and override.
type Options struct {
	// Path of the database file. MemoryPath selects the in-memory engine.
	Path string

	// AutoFlush is the in-memory tree size in KB that triggers an automatic
	// flush. 0 disables, maximum MaxAutoFlush.
	AutoFlush int

	// PageSize is the database page size in bytes. Fixed at creation.
	PageSize int

	// BlockSize in KB. Must be a power of two in (MinBlockSize, MaxBlockSize).
	BlockSize int

	// Safety selects the sync discipline.
	Safety Safety

	// AutoMerge is the number of segments merged per automatic work pass.
	AutoMerge int

	// MaxFreelist caps the free-list entries kept in memory. Advisory for
	// the bundled engines.
	MaxFreelist int

	// AutoCheckpoint is the written-KB threshold for automatic checkpoints.
	// Must be positive.
	AutoCheckpoint int

	// AutoWork enables background merge work inside the engine.
	AutoWork bool

	// MMap enables memory-mapped access. Advisory for the bundled engines.
	MMap bool

	// UseLog enables the write-ahead log.
	UseLog bool

	// MultiProcess allows connections from several processes. Advisory for
	// the bundled engines, which are single-process.
	MultiProcess bool

	// ReadOnly opens the database for reading only.
	ReadOnly bool

	// TextMode makes the connection treat all keys and values as UTF-8
	// text; invalid byte sequences are rejected with ErrMismatch. The
	// default is binary mode, which passes bytes through untouched.
	TextMode bool

	// Compress selects the page compressor.
	Compress Compress

	// CompressLevel tunes the compressor. Only meaningful for zstd (1..22);
	// must be zero otherwise.
	// TODO: thread the level into per-level engine options once pebble
	// exposes zstd levels (it currently hardwires one).
	CompressLevel int

	// Logger, when set, receives engine and cleanup diagnostics.
	Logger Logger
}

// DefaultOptions returns the standard configuration for path.
func DefaultOptions(path string) Options {
	return Options{
		Path:           path,
		AutoFlush:      DefaultAutoFlush,
		PageSize:       DefaultPageSize,
		BlockSize:      DefaultBlockSize,
		Safety:         SafetyNormal,
		AutoMerge:      DefaultAutoMerge,
		MaxFreelist:    DefaultMaxFreelist,
		AutoCheckpoint: DefaultAutoCheckpoint,
		AutoWork:       true,
		UseLog:         true,
		Compress:       CompressNone,
	}
}

// Validate reports the first configuration error, if any.
func (o *Options) Validate() error {
	if o.Path == "" {
		return NewErrorf(ErrMisuse, "path must not be empty")
	}
	if o.AutoFlush < 0 || o.AutoFlush > MaxAutoFlush {
		return NewErrorf(ErrMisuse, "autoflush %d out of range 0..%d KB", o.AutoFlush, MaxAutoFlush)
	}
	if o.PageSize <= 0 {
		return NewErrorf(ErrMisuse, "page size %d must be positive", o.PageSize)
	}
	if o.BlockSize < MinBlockSize || o.BlockSize >= MaxBlockSize || bits.OnesCount(uint(o.BlockSize)) != 1 {
		return NewErrorf(ErrMisuse, "block size %d KB must be a power of two in %d..%d", o.BlockSize, MinBlockSize, MaxBlockSize/2)
	}
	switch o.Safety {
	case SafetyOff, SafetyNormal, SafetyFull:
	default:
		return NewErrorf(ErrMisuse, "invalid safety level %d", o.Safety)
	}
	if o.AutoMerge < 2 {
		return NewErrorf(ErrMisuse, "automerge %d must be at least 2", o.AutoMerge)
	}
	if o.MaxFreelist <= 0 {
		return NewErrorf(ErrMisuse, "max freelist %d must be positive", o.MaxFreelist)
	}
	if o.AutoCheckpoint <= 0 {
		return NewErrorf(ErrMisuse, "autocheckpoint %d must be positive", o.AutoCheckpoint)
	}
	switch o.Compress {
	case CompressNone, CompressSnappy:
		if o.CompressLevel != 0 {
			return NewErrorf(ErrMisuse, "compression level is only tunable for zstd")
		}
	case CompressZstd:
		if o.CompressLevel != 0 && (o.CompressLevel < 1 || o.CompressLevel > 22) {
			return NewErrorf(ErrMisuse, "zstd level %d out of range 1..22", o.CompressLevel)
		}
	default:
		return NewErrorf(ErrMisuse, "unknown compressor %d", o.Compress)
	}
	return nil
}

func (o *Options) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger(format, args...)
	}
}
