package lsm

import (
	"bytes"
	"errors"

	"github.com/cockroachdb/pebble"
)

// pebbleEngine is the durable Engine. Pebble is itself a log-structured
// merge tree, so the configuration surface maps almost directly: the
// page size becomes the sstable block size, the block size the L0 target
// file size, the auto-flush threshold the memtable size and the
// auto-merge factor the L0 compaction trigger.
//
// Nested transaction levels are kept as one indexed batch plus a replay
// log with a mark per open level. Committing to level 0 applies the
// batch; rolling back rebuilds a fresh batch from the log prefix
// recorded when the target level was opened. The engine is not safe for
// concurrent use; the owning connection serializes access.
type pebbleEngine struct {
	db   *pebble.DB
	wo   *pebble.WriteOptions
	opts *Options

	batch *pebble.Batch // non-nil while nesting level >= 1
	ops   []replayOp
	marks []int // marks[i] = len(ops) when level i+1 was opened

	cursors map[*pebbleCursor]struct{}

	ckptWAL uint64 // WAL bytes at the last checkpoint
}

type opKind uint8

const (
	opSet opKind = iota
	opDelete
	opDeleteRange
)

// replayOp is one logged write. For opDeleteRange, val holds the
// exclusive upper bound instead of a value.
type replayOp struct {
	kind opKind
	key  []byte
	val  []byte
}

func openPebbleEngine(opts *Options) (Engine, error) {
	var comp pebble.Compression
	switch opts.Compress {
	case CompressSnappy:
		comp = pebble.SnappyCompression
	case CompressZstd:
		comp = pebble.ZstdCompression
	default:
		comp = pebble.NoCompression
	}

	po := &pebble.Options{
		Cache:                       pebble.NewCache(64 << 20),
		ReadOnly:                    opts.ReadOnly,
		DisableWAL:                  !opts.UseLog,
		DisableAutomaticCompactions: !opts.AutoWork,
		L0CompactionThreshold:       opts.AutoMerge,
		WALBytesPerSync:             opts.AutoCheckpoint * 1024,
		Levels: []pebble.LevelOptions{{
			BlockSize:      opts.PageSize,
			TargetFileSize: int64(opts.BlockSize) * 1024,
			Compression:    comp,
		}},
	}
	if opts.AutoFlush > 0 {
		po.MemTableSize = uint64(opts.AutoFlush) * 1024
	}
	if opts.Logger != nil {
		po.Logger = pebbleLogger{opts.Logger}
	}

	db, err := pebble.Open(opts.Path, po)
	if err != nil {
		return nil, WrapError(ErrCantOpen, err)
	}

	wo := pebble.NoSync
	if opts.Safety == SafetyFull {
		wo = pebble.Sync
	}

	return &pebbleEngine{
		db:      db,
		wo:      wo,
		opts:    opts,
		cursors: make(map[*pebbleCursor]struct{}),
	}, nil
}

// pebbleLogger forwards pebble's diagnostics to the configured Logger.
type pebbleLogger struct {
	logf Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{})  { l.logf(format, args...) }
func (l pebbleLogger) Errorf(format string, args ...interface{}) { l.logf(format, args...) }
func (l pebbleLogger) Fatalf(format string, args ...interface{}) { l.logf(format, args...) }

func mapPebbleErr(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return NotFound
	}
	return WrapError(code, err)
}

// keySucc returns the smallest key strictly greater than key.
func keySucc(key []byte) []byte {
	succ := make([]byte, len(key)+1)
	copy(succ, key)
	return succ
}

func (e *pebbleEngine) logOp(kind opKind, key, val []byte) {
	if e.batch == nil {
		return
	}
	// The log owns its buffers; callers may reuse theirs.
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(val))
	copy(v, val)
	e.ops = append(e.ops, replayOp{kind: kind, key: k, val: v})
}

func (e *pebbleEngine) Insert(key, value []byte) error {
	if e.batch != nil {
		if err := e.batch.Set(key, value, nil); err != nil {
			return WrapError(ErrError, err)
		}
		e.logOp(opSet, key, value)
		return nil
	}
	return mapPebbleErr(ErrIO, e.db.Set(key, value, e.wo))
}

func (e *pebbleEngine) Delete(key []byte) error {
	if e.batch != nil {
		if err := e.batch.Delete(key, nil); err != nil {
			return WrapError(ErrError, err)
		}
		e.logOp(opDelete, key, nil)
		return nil
	}
	return mapPebbleErr(ErrIO, e.db.Delete(key, e.wo))
}

func (e *pebbleEngine) DeleteRange(start, end []byte) error {
	// Pebble's range delete spans [start, end); the contract excludes
	// both boundary keys, so the lower bound is the successor of start.
	lo := keySucc(start)
	if bytes.Compare(lo, end) >= 0 {
		return nil // nothing strictly between the bounds
	}
	if e.batch != nil {
		if err := e.batch.DeleteRange(lo, end, nil); err != nil {
			return WrapError(ErrError, err)
		}
		e.logOp(opDeleteRange, lo, end)
		return nil
	}
	return mapPebbleErr(ErrIO, e.db.DeleteRange(lo, end, e.wo))
}

func (e *pebbleEngine) Begin(level int) error {
	if level != len(e.marks)+1 {
		return NewErrorf(ErrMisuse, "begin at level %d with %d levels open", level, len(e.marks))
	}
	if e.batch == nil {
		e.batch = e.db.NewIndexedBatch()
	}
	e.marks = append(e.marks, len(e.ops))
	return nil
}

func (e *pebbleEngine) Commit(level int) error {
	if level < 0 || level >= len(e.marks) {
		return NewErrorf(ErrMisuse, "commit to level %d with %d levels open", level, len(e.marks))
	}
	if level > 0 {
		e.marks = e.marks[:level]
		return nil
	}
	e.closeBatchCursors()
	if err := e.batch.Commit(e.wo); err != nil {
		// The batch and its marks survive so the caller can retry.
		return mapPebbleErr(ErrIO, err)
	}
	_ = e.batch.Close()
	e.batch = nil
	e.ops = nil
	e.marks = nil
	return nil
}

func (e *pebbleEngine) Rollback(level int) error {
	if level < 0 || level >= len(e.marks) {
		return NewErrorf(ErrMisuse, "rollback to level %d with %d levels open", level, len(e.marks))
	}
	e.closeBatchCursors()
	if level == 0 {
		_ = e.batch.Close()
		e.batch = nil
		e.ops = nil
		e.marks = nil
		return nil
	}
	// Rebuild the batch from the log prefix recorded when the target
	// level was opened.
	e.ops = e.ops[:e.marks[level]]
	e.marks = e.marks[:level]
	nb := e.db.NewIndexedBatch()
	for _, op := range e.ops {
		var err error
		switch op.kind {
		case opSet:
			err = nb.Set(op.key, op.val, nil)
		case opDelete:
			err = nb.Delete(op.key, nil)
		case opDeleteRange:
			err = nb.DeleteRange(op.key, op.val, nil)
		}
		if err != nil {
			_ = nb.Close()
			return WrapError(ErrError, err)
		}
	}
	_ = e.batch.Close()
	e.batch = nb
	return nil
}

func (e *pebbleEngine) Flush() error {
	return mapPebbleErr(ErrIO, e.db.Flush())
}

var (
	compactLo = []byte{0x00}
	compactHi = bytes.Repeat([]byte{0xff}, 16)
)

// Work runs one manual compaction pass. Pebble sizes its own passes, so
// nmerge and nkb are advisory; the return value is the kilobytes the
// pass actually wrote.
func (e *pebbleEngine) Work(nmerge, nkb int) (int64, error) {
	before := e.compactedBytes()
	if err := e.db.Compact(compactLo, compactHi, true); err != nil {
		return 0, mapPebbleErr(ErrIO, err)
	}
	return (e.compactedBytes() - before) / 1024, nil
}

func (e *pebbleEngine) compactedBytes() int64 {
	t := e.db.Metrics().Total()
	return int64(t.BytesFlushed + t.BytesCompacted)
}

func (e *pebbleEngine) Checkpoint() (int64, error) {
	if err := e.db.Flush(); err != nil {
		return 0, mapPebbleErr(ErrIO, err)
	}
	wal := e.db.Metrics().WAL.BytesWritten
	kb := int64(wal-e.ckptWAL) / 1024
	e.ckptWAL = wal
	return kb, nil
}

func (e *pebbleEngine) Info() (EngineInfo, error) {
	m := e.db.Metrics()
	t := m.Total()
	return EngineInfo{
		NRead:        int64(t.BytesRead) / 4096,
		NWrite:       int64(t.BytesFlushed+t.BytesCompacted) / 4096,
		CheckpointKB: int64(m.WAL.BytesWritten) / 1024,
		TreeKB:       int64(m.MemTable.Size) / 1024,
		TreeOldKB:    int64(m.MemTable.ZombieSize) / 1024,
	}, nil
}

func (e *pebbleEngine) Cursor() (EngineCursor, error) {
	var (
		it  *pebble.Iterator
		err error
	)
	fromBatch := e.batch != nil
	if fromBatch {
		it, err = e.batch.NewIter(&pebble.IterOptions{})
	} else {
		it, err = e.db.NewIter(&pebble.IterOptions{})
	}
	if err != nil {
		return nil, mapPebbleErr(ErrError, err)
	}
	c := &pebbleCursor{e: e, it: it, fromBatch: fromBatch}
	e.cursors[c] = struct{}{}
	return c, nil
}

// closeBatchCursors invalidates cursors reading through the batch that
// is about to be committed or replaced. Cursors reading the base
// database survive.
func (e *pebbleEngine) closeBatchCursors() {
	for c := range e.cursors {
		if c.fromBatch {
			c.forceClose()
		}
	}
}

func (e *pebbleEngine) Close() error {
	for c := range e.cursors {
		c.forceClose()
	}
	if e.batch != nil {
		_ = e.batch.Close()
		e.batch = nil
	}
	return mapPebbleErr(ErrIO, e.db.Close())
}

// pebbleCursor adapts one pebble iterator to the cursor sub-contract.
type pebbleCursor struct {
	e         *pebbleEngine
	it        *pebble.Iterator
	fromBatch bool
	closed    bool
	valid     bool
}

var errCursorClosed = NewErrorf(ErrMisuse, "cursor is closed")

func (c *pebbleCursor) forceClose() {
	if c.closed {
		return
	}
	c.closed = true
	c.valid = false
	delete(c.e.cursors, c)
	_ = c.it.Close()
}

func (c *pebbleCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.valid = false
	delete(c.e.cursors, c)
	return mapPebbleErr(ErrError, c.it.Close())
}

func (c *pebbleCursor) Seek(key []byte, mode SeekMode) error {
	if c.closed {
		return errCursorClosed
	}
	switch mode {
	case SeekGE:
		c.valid = c.it.SeekGE(key)
	case SeekLE, SeekLEFast:
		// Greatest key <= key: strictly-less seek against the successor.
		c.valid = c.it.SeekLT(keySucc(key))
	case SeekEQ:
		c.valid = c.it.SeekGE(key) && bytes.Equal(c.it.Key(), key)
	default:
		return NewErrorf(ErrMisuse, "unknown seek mode %d", mode)
	}
	return mapPebbleErr(ErrError, c.it.Error())
}

func (c *pebbleCursor) First() error {
	if c.closed {
		return errCursorClosed
	}
	c.valid = c.it.First()
	return mapPebbleErr(ErrError, c.it.Error())
}

func (c *pebbleCursor) Last() error {
	if c.closed {
		return errCursorClosed
	}
	c.valid = c.it.Last()
	return mapPebbleErr(ErrError, c.it.Error())
}

func (c *pebbleCursor) Next() error {
	if c.closed {
		return errCursorClosed
	}
	c.valid = c.it.Next()
	return mapPebbleErr(ErrError, c.it.Error())
}

func (c *pebbleCursor) Prev() error {
	if c.closed {
		return errCursorClosed
	}
	c.valid = c.it.Prev()
	return mapPebbleErr(ErrError, c.it.Error())
}

func (c *pebbleCursor) Valid() bool {
	return !c.closed && c.valid
}

func (c *pebbleCursor) Key() ([]byte, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	if !c.valid {
		return nil, NotFound
	}
	key := c.it.Key()
	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

func (c *pebbleCursor) Value() ([]byte, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	if !c.valid {
		return nil, NotFound
	}
	val, err := c.it.ValueAndErr()
	if err != nil {
		return nil, WrapError(ErrIO, err)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (c *pebbleCursor) Cmp(key []byte) (int, error) {
	if c.closed {
		return 0, errCursorClosed
	}
	if !c.valid {
		return 0, NotFound
	}
	return bytes.Compare(c.it.Key(), key), nil
}
