package lsm

import (
	"bytes"

	"github.com/google/btree"
)

const btreeDegree = 32

// memItem is one stored pair.
type memItem struct {
	key []byte
	val []byte
}

func (i *memItem) Less(than btree.Item) bool {
	return bytes.Compare(i.key, than.(*memItem).key) < 0
}

// memEngine is the Engine behind MemoryPath: an ordered in-memory tree
// with no durability. Nesting levels are copy-on-write snapshots, one
// clone per open level, so begin and rollback are O(1) in tree size.
// Cursors read their own clone taken at open time, which keeps them
// stable across later writes. Like the durable engine it relies on the
// owning connection for serialization.
type memEngine struct {
	tree    *btree.BTree
	snaps   []*btree.BTree // snaps[i] = state when level i+1 was opened
	cursors map[*memCursor]struct{}
	closed  bool

	nread  int64
	nwrite int64
	bytes  int64
}

func openMemEngine(opts *Options) (Engine, error) {
	if opts.ReadOnly {
		return nil, NewErrorf(ErrMisuse, "an in-memory database cannot be read-only")
	}
	return &memEngine{
		tree:    btree.New(btreeDegree),
		cursors: make(map[*memCursor]struct{}),
	}, nil
}

func (e *memEngine) Insert(key, value []byte) error {
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	if old := e.tree.ReplaceOrInsert(&memItem{key: k, val: v}); old != nil {
		e.bytes -= int64(len(old.(*memItem).val))
	} else {
		e.bytes += int64(len(k))
	}
	e.bytes += int64(len(v))
	e.nwrite++
	return nil
}

func (e *memEngine) Delete(key []byte) error {
	if old := e.tree.Delete(&memItem{key: key}); old != nil {
		it := old.(*memItem)
		e.bytes -= int64(len(it.key) + len(it.val))
	}
	e.nwrite++
	return nil
}

func (e *memEngine) DeleteRange(start, end []byte) error {
	// Both boundary keys stay.
	var doomed [][]byte
	e.tree.AscendGreaterOrEqual(&memItem{key: keySucc(start)}, func(i btree.Item) bool {
		it := i.(*memItem)
		if bytes.Compare(it.key, end) >= 0 {
			return false
		}
		doomed = append(doomed, it.key)
		return true
	})
	for _, k := range doomed {
		if err := e.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (e *memEngine) Begin(level int) error {
	if level != len(e.snaps)+1 {
		return NewErrorf(ErrMisuse, "begin at level %d with %d levels open", level, len(e.snaps))
	}
	e.snaps = append(e.snaps, e.tree.Clone())
	return nil
}

func (e *memEngine) Commit(level int) error {
	if level < 0 || level >= len(e.snaps) {
		return NewErrorf(ErrMisuse, "commit to level %d with %d levels open", level, len(e.snaps))
	}
	e.snaps = e.snaps[:level]
	return nil
}

func (e *memEngine) Rollback(level int) error {
	if level < 0 || level >= len(e.snaps) {
		return NewErrorf(ErrMisuse, "rollback to level %d with %d levels open", level, len(e.snaps))
	}
	e.tree = e.snaps[level]
	e.snaps = e.snaps[:level]
	return nil
}

func (e *memEngine) Flush() error { return nil }

func (e *memEngine) Work(nmerge, nkb int) (int64, error) { return 0, nil }

func (e *memEngine) Checkpoint() (int64, error) { return 0, nil }

func (e *memEngine) Info() (EngineInfo, error) {
	return EngineInfo{
		NRead:  e.nread,
		NWrite: e.nwrite,
		TreeKB: e.bytes / 1024,
	}, nil
}

func (e *memEngine) Cursor() (EngineCursor, error) {
	c := &memCursor{e: e, snap: e.tree.Clone()}
	e.cursors[c] = struct{}{}
	return c, nil
}

func (e *memEngine) Close() error {
	for c := range e.cursors {
		c.forceClose()
	}
	e.closed = true
	e.tree = nil
	e.snaps = nil
	return nil
}

// memCursor walks one snapshot of the tree.
type memCursor struct {
	e      *memEngine
	snap   *btree.BTree
	cur    *memItem
	valid  bool
	closed bool
}

func (c *memCursor) forceClose() {
	if c.closed {
		return
	}
	c.closed = true
	c.valid = false
	c.snap = nil
	delete(c.e.cursors, c)
}

func (c *memCursor) Close() error {
	c.forceClose()
	return nil
}

func (c *memCursor) set(i btree.Item) bool {
	if i == nil {
		c.cur = nil
		c.valid = false
		return false
	}
	c.cur = i.(*memItem)
	c.valid = true
	return true
}

func (c *memCursor) Seek(key []byte, mode SeekMode) error {
	if c.closed {
		return errCursorClosed
	}
	c.e.nread++
	switch mode {
	case SeekEQ:
		c.set(c.snap.Get(&memItem{key: key}))
	case SeekGE:
		var hit btree.Item
		c.snap.AscendGreaterOrEqual(&memItem{key: key}, func(i btree.Item) bool {
			hit = i
			return false
		})
		c.set(hit)
	case SeekLE, SeekLEFast:
		var hit btree.Item
		c.snap.DescendLessOrEqual(&memItem{key: key}, func(i btree.Item) bool {
			hit = i
			return false
		})
		c.set(hit)
	default:
		return NewErrorf(ErrMisuse, "unknown seek mode %d", mode)
	}
	return nil
}

func (c *memCursor) First() error {
	if c.closed {
		return errCursorClosed
	}
	c.e.nread++
	c.set(c.snap.Min())
	return nil
}

func (c *memCursor) Last() error {
	if c.closed {
		return errCursorClosed
	}
	c.e.nread++
	c.set(c.snap.Max())
	return nil
}

func (c *memCursor) Next() error {
	if c.closed {
		return errCursorClosed
	}
	if !c.valid {
		return nil
	}
	c.e.nread++
	var hit btree.Item
	c.snap.AscendGreaterOrEqual(&memItem{key: keySucc(c.cur.key)}, func(i btree.Item) bool {
		hit = i
		return false
	})
	c.set(hit)
	return nil
}

func (c *memCursor) Prev() error {
	if c.closed {
		return errCursorClosed
	}
	if !c.valid {
		return nil
	}
	c.e.nread++
	var hit btree.Item
	cur := c.cur.key
	c.snap.DescendLessOrEqual(&memItem{key: cur}, func(i btree.Item) bool {
		if bytes.Equal(i.(*memItem).key, cur) {
			return true // skip the current position
		}
		hit = i
		return false
	})
	c.set(hit)
	return nil
}

func (c *memCursor) Valid() bool {
	return !c.closed && c.valid
}

func (c *memCursor) Key() ([]byte, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	if !c.valid {
		return nil, NotFound
	}
	out := make([]byte, len(c.cur.key))
	copy(out, c.cur.key)
	return out, nil
}

func (c *memCursor) Value() ([]byte, error) {
	if c.closed {
		return nil, errCursorClosed
	}
	if !c.valid {
		return nil, NotFound
	}
	out := make([]byte, len(c.cur.val))
	copy(out, c.cur.val)
	return out, nil
}

func (c *memCursor) Cmp(key []byte) (int, error) {
	if c.closed {
		return 0, errCursorClosed
	}
	if !c.valid {
		return 0, NotFound
	}
	return bytes.Compare(c.cur.key, key), nil
}
