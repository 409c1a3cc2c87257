package lsm

// Iterator is a bounded, directional, steppable traversal. One
// parameterized state machine serves full iteration, keys-only and
// values-only walks, and slicing.
//
// Direction follows the sign of the construction step. Forward
// iteration seeks the start bound with SeekGE and stops after the stop
// bound; backward iteration swaps the roles of the two bounds, seeking
// the stop side with SeekLE and walking down to the start side. Both
// bounds are inclusive. Once exhausted an Iterator is closed for good;
// construct a new one to traverse again.
//
// The engine cursor is opened on the first Next call and each step
// acquires the connection mutex once, so long traversals interleave
// with other callers sharing the connection.
type Iterator struct {
	db      *DB
	ec      EngineCursor
	seekKey []byte // nil: start from the direction's edge
	bound   []byte // nil: unbounded
	step    int    // magnitude, >= 1
	reverse bool

	started bool
	done    bool
	counter int
	key     []byte
	val     []byte
	err     error
}

// Slice constructs a range iterator. A nil start or stop leaves that
// side unbounded; step must be non-zero, negative for backward
// traversal yielding every |step|-th entry. Note that start and stop
// keep their low/high roles in both directions: Slice(a, b, -1) walks
// from b down to a.
func (db *DB) Slice(start, stop []byte, step int) (*Iterator, error) {
	if step == 0 {
		return nil, NewErrorf(ErrMisuse, "slice step must not be zero")
	}
	it := &Iterator{db: db, step: step, reverse: step < 0}
	if it.reverse {
		it.step = -step
		start, stop = stop, start
	}
	var err error
	if start != nil {
		if it.seekKey, err = db.codec.encode(start); err != nil {
			return nil, err
		}
	}
	if stop != nil {
		if it.bound, err = db.codec.encode(stop); err != nil {
			return nil, err
		}
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpened(); err != nil {
		return nil, err
	}
	return it, nil
}

// Items iterates every entry in ascending key order.
func (db *DB) Items() (*Iterator, error) {
	return db.Slice(nil, nil, 1)
}

// Keys iterates every key in ascending order.
func (db *DB) Keys() (*Iterator, error) {
	return db.Slice(nil, nil, 1)
}

// Values iterates every value in ascending key order.
func (db *DB) Values() (*Iterator, error) {
	return db.Slice(nil, nil, 1)
}

// inBounds reports whether the cursor still respects the stop bound.
// The stop key itself is included.
func (it *Iterator) inBounds() (bool, error) {
	if it.bound == nil {
		return true, nil
	}
	cmp, err := it.ec.Cmp(it.bound)
	if err != nil {
		return false, err
	}
	if it.reverse {
		return cmp >= 0, nil
	}
	return cmp <= 0, nil
}

// exhaust closes the iterator permanently. The caller holds the mutex.
func (it *Iterator) exhaust() {
	it.done = true
	if it.ec != nil {
		_ = it.ec.Close()
		it.ec = nil
	}
}

func (it *Iterator) fail(err error) bool {
	it.err = err
	it.exhaust()
	return false
}

// open positions the engine cursor for the first pull. The caller
// holds the mutex.
func (it *Iterator) open() error {
	ec, err := it.db.eng.Cursor()
	if err != nil {
		return err
	}
	it.ec = ec
	switch {
	case it.seekKey != nil && it.reverse:
		return ec.Seek(it.seekKey, SeekLE)
	case it.seekKey != nil:
		return ec.Seek(it.seekKey, SeekGE)
	case it.reverse:
		return ec.Last()
	default:
		return ec.First()
	}
}

// advance runs one engine single-step in the iteration direction.
func (it *Iterator) advance() error {
	if it.reverse {
		return it.ec.Prev()
	}
	return it.ec.Next()
}

// Next pulls the next entry, honoring bounds and step, and reports
// whether one is available through Key and Value. After a false result
// check Err; exhaustion is permanent.
func (it *Iterator) Next() bool {
	it.db.mu.Lock()
	defer it.db.mu.Unlock()
	if it.done {
		return false
	}
	if it.db.state != stateOpened {
		return it.fail(NewErrorf(ErrMisuse, "iterator used after its database was closed"))
	}

	if !it.started {
		it.started = true
		if err := it.open(); err != nil {
			return it.fail(err)
		}
		if !it.ec.Valid() {
			it.exhaust()
			return false
		}
		ok, err := it.inBounds()
		if err != nil {
			return it.fail(err)
		}
		if !ok {
			it.exhaust()
			return false
		}
		return it.yield()
	}

	for {
		if err := it.advance(); err != nil {
			return it.fail(err)
		}
		if !it.ec.Valid() {
			it.exhaust()
			return false
		}
		ok, err := it.inBounds()
		if err != nil {
			return it.fail(err)
		}
		if !ok {
			it.exhaust()
			return false
		}
		it.counter++
		if it.counter%it.step == 0 {
			return it.yield()
		}
	}
}

// yield loads the current entry. The caller holds the mutex.
func (it *Iterator) yield() bool {
	k, err := it.ec.Key()
	if err != nil {
		return it.fail(err)
	}
	v, err := it.ec.Value()
	if err != nil {
		return it.fail(err)
	}
	if it.key, err = it.db.codec.decode(k); err != nil {
		return it.fail(err)
	}
	if it.val, err = it.db.codec.decode(v); err != nil {
		return it.fail(err)
	}
	return true
}

// Key returns the key of the last yielded entry.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the value of the last yielded entry.
func (it *Iterator) Value() []byte {
	return it.val
}

// Err returns the error that terminated iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the iterator early. Closing an exhausted or already
// closed iterator is a no-op.
func (it *Iterator) Close() error {
	it.db.mu.Lock()
	defer it.db.mu.Unlock()
	if it.db.state != stateOpened {
		// The engine reclaimed its cursors when the connection shut.
		it.done = true
		it.ec = nil
		return nil
	}
	it.exhaust()
	return nil
}
