package lsm

// Cursor wraps one engine cursor and enforces the seek-mode discipline.
// It borrows its connection: every call re-checks that the connection
// is still open, so a cursor outliving its DB fails with ErrMisuse on
// next use instead of touching a dead handle.
//
// The recorded seek mode governs relative moves. Stepping after a
// SeekEQ or SeekLEFast seek is misuse: neither position supports
// relative moves in the engine, and a SeekLEFast position has no
// retrievable value.
type Cursor struct {
	db     *DB
	ec     EngineCursor
	mode   SeekMode
	closed bool
}

// Cursor opens a cursor on the connection. The initial position is the
// first key in ascending order, or the last when mode is SeekLE; mode
// is recorded for later relative moves.
func (db *DB) Cursor(mode SeekMode) (*Cursor, error) {
	switch mode {
	case SeekEQ, SeekLE, SeekGE, SeekLEFast:
	default:
		return nil, NewErrorf(ErrMisuse, "unknown seek mode %d", mode)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpened(); err != nil {
		return nil, err
	}
	ec, err := db.eng.Cursor()
	if err != nil {
		return nil, err
	}
	if mode == SeekLE {
		err = ec.Last()
	} else {
		err = ec.First()
	}
	if err != nil {
		_ = ec.Close()
		return nil, err
	}
	return &Cursor{db: db, ec: ec, mode: mode}, nil
}

// borrow validates the cursor and its parent. The caller holds the
// connection mutex.
func (c *Cursor) borrow() error {
	if c.closed {
		return NewErrorf(ErrMisuse, "cursor is closed")
	}
	if c.db.state != stateOpened {
		c.closed = true
		return NewErrorf(ErrMisuse, "cursor used after its database was closed")
	}
	return nil
}

func (c *Cursor) reposition(op func() error, mode SeekMode) (bool, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.borrow(); err != nil {
		return false, err
	}
	if err := op(); err != nil {
		return false, err
	}
	c.mode = mode
	return c.ec.Valid(), nil
}

// First positions at the smallest key and reports whether one exists.
func (c *Cursor) First() (bool, error) {
	return c.reposition(func() error { return c.ec.First() }, SeekGE)
}

// Last positions at the largest key and reports whether one exists.
func (c *Cursor) Last() (bool, error) {
	return c.reposition(func() error { return c.ec.Last() }, SeekLE)
}

// Seek positions per mode and reports whether the cursor landed on a
// valid entry.
func (c *Cursor) Seek(key []byte, mode SeekMode) (bool, error) {
	ek, err := c.db.codec.encode(key)
	if err != nil {
		return false, err
	}
	switch mode {
	case SeekEQ, SeekLE, SeekGE, SeekLEFast:
	default:
		return false, NewErrorf(ErrMisuse, "unknown seek mode %d", mode)
	}
	return c.reposition(func() error { return c.ec.Seek(ek, mode) }, mode)
}

func (c *Cursor) step(forward bool) (bool, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.borrow(); err != nil {
		return false, err
	}
	if c.mode == SeekEQ || c.mode == SeekLEFast {
		return false, NewErrorf(ErrMisuse, "cursor cannot step after an exact or fast seek")
	}
	var err error
	if forward {
		err = c.ec.Next()
	} else {
		err = c.ec.Prev()
	}
	if err != nil {
		return false, err
	}
	return c.ec.Valid(), nil
}

// Next advances to the following key; false means the cursor ran past
// the end. The cursor stays valid for a re-seek.
func (c *Cursor) Next() (bool, error) {
	return c.step(true)
}

// Prev moves to the preceding key.
func (c *Cursor) Prev() (bool, error) {
	return c.step(false)
}

// Valid reports whether the cursor is positioned on an entry.
func (c *Cursor) Valid() bool {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.closed || c.db.state != stateOpened {
		return false
	}
	return c.ec.Valid()
}

// Key returns the key at the current position, or NotFound when the
// cursor is not positioned on a valid entry.
func (c *Cursor) Key() ([]byte, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.borrow(); err != nil {
		return nil, err
	}
	k, err := c.ec.Key()
	if err != nil {
		return nil, err
	}
	return c.db.codec.decode(k)
}

// Value returns the value at the current position. After a SeekLEFast
// the value was never loaded and retrieving it is misuse.
func (c *Cursor) Value() ([]byte, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.borrow(); err != nil {
		return nil, err
	}
	if c.mode == SeekLEFast {
		return nil, NewErrorf(ErrMisuse, "value is not available after a fast seek")
	}
	v, err := c.ec.Value()
	if err != nil {
		return nil, err
	}
	return c.db.codec.decode(v)
}

// Retrieve returns the entry at the current position.
func (c *Cursor) Retrieve() (key, value []byte, err error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.borrow(); err != nil {
		return nil, nil, err
	}
	if c.mode == SeekLEFast {
		return nil, nil, NewErrorf(ErrMisuse, "value is not available after a fast seek")
	}
	k, err := c.ec.Key()
	if err != nil {
		return nil, nil, err
	}
	v, err := c.ec.Value()
	if err != nil {
		return nil, nil, err
	}
	if key, err = c.db.codec.decode(k); err != nil {
		return nil, nil, err
	}
	if value, err = c.db.codec.decode(v); err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

// Compare compares the current key against key in the engine ordering.
// The sign is flipped when the active seek mode is SeekGE, so a single
// "keep going while Compare(bound) <= 0" loop works in both scan
// directions.
func (c *Cursor) Compare(key []byte) (int, error) {
	ek, err := c.db.codec.encode(key)
	if err != nil {
		return 0, err
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.borrow(); err != nil {
		return 0, err
	}
	cmp, err := c.ec.Cmp(ek)
	if err != nil {
		return 0, err
	}
	if c.mode == SeekGE {
		cmp = -cmp
	}
	return cmp, nil
}

// Close releases the engine cursor. A closed cursor is inert; closing
// again is a no-op.
func (c *Cursor) Close() error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.db.state != stateOpened {
		// The engine force-closed its cursors when the connection shut.
		return nil
	}
	return c.ec.Close()
}
