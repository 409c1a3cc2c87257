package lsm

import "sync"

// DB is one connection to an LSM database. A DB is created in the
// initialized state, must be opened before use, and is inert after
// Close.
//
// A DB may be shared by any number of goroutines. Every operation that
// touches the engine acquires the connection mutex immediately before
// the engine call and releases it immediately after, so iteration steps
// from one goroutine interleave fairly with point operations from
// others. Two connections to two different files make fully independent
// progress.
type DB struct {
	opts  Options
	codec codec

	mu    sync.Mutex
	eng   Engine
	state connState
	level int // open transaction nesting depth, 0 = none
}

// New creates a connection in the initialized state. The configuration
// is validated here and fixed for the lifetime of the connection.
func New(opts Options) (*DB, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &DB{
		opts:  opts,
		codec: codec{text: opts.TextMode},
		state: stateInitialized,
	}, nil
}

// Open creates and opens a connection with default options for path.
func Open(path string) (*DB, error) {
	return OpenOptions(DefaultOptions(path))
}

// OpenOptions creates and opens a connection with the given options.
func OpenOptions(opts Options) (*DB, error) {
	db, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := db.Open(); err != nil {
		return nil, err
	}
	return db, nil
}

// Open opens the engine against the configured path. Unless read-only,
// the in-memory tree is flushed and a bounded merge pass is run so the
// connection starts from a consistent on-disk state. Opening twice, or
// after Close, is misuse.
func (db *DB) Open() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	switch db.state {
	case stateOpened:
		return NewErrorf(ErrMisuse, "database already opened")
	case stateClosed:
		return NewErrorf(ErrMisuse, "database closed")
	}

	eng, err := openEngine(&db.opts)
	if err != nil {
		return err
	}
	if !db.opts.ReadOnly {
		if err := eng.Flush(); err != nil {
			_ = eng.Close()
			return err
		}
		if _, err := eng.Work(db.opts.AutoMerge, db.opts.AutoCheckpoint); err != nil {
			_ = eng.Close()
			return err
		}
	}
	db.eng = eng
	db.state = stateOpened
	return nil
}

// Close closes the engine and transitions the connection to its
// terminal state. An open transaction is rolled back first, swallowing
// any secondary error. Closing twice is misuse.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.state == stateClosed {
		return NewErrorf(ErrMisuse, "database already closed")
	}
	db.state = stateClosed
	if db.eng == nil {
		return nil
	}
	if db.level > 0 {
		if err := db.eng.Rollback(0); err != nil {
			db.opts.logf("lsm: rollback on close: %v", err)
		}
		db.level = 0
	}
	err := db.eng.Close()
	db.eng = nil
	return err
}

// Opened reports whether the connection is usable.
func (db *DB) Opened() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state == stateOpened
}

// Level returns the current transaction nesting depth.
func (db *DB) Level() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.level
}

func (db *DB) ensureOpened() error {
	if db.state != stateOpened {
		return NewErrorf(ErrMisuse, "database is not opened")
	}
	return nil
}

func (db *DB) ensureWritable() error {
	if err := db.ensureOpened(); err != nil {
		return err
	}
	if db.opts.ReadOnly {
		return NewError(ErrReadOnly)
	}
	return nil
}

// seek positions a throwaway engine cursor and returns the entry found,
// raw. Callers hold the mutex.
func (db *DB) seek(key []byte, mode SeekMode) (k, v []byte, err error) {
	cur, err := db.eng.Cursor()
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = cur.Close() }()
	if err := cur.Seek(key, mode); err != nil {
		return nil, nil, err
	}
	if !cur.Valid() {
		return nil, nil, NotFound
	}
	if mode == SeekLEFast {
		// Existence only; the value was deliberately not loaded.
		return nil, nil, nil
	}
	if k, err = cur.Key(); err != nil {
		return nil, nil, err
	}
	if v, err = cur.Value(); err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

// Get returns the value stored under key, or NotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	return db.Fetch(key, SeekEQ)
}

// Fetch looks up key under the given seek discipline: SeekEQ requires
// an exact match, SeekLE returns the value of the greatest key <= key,
// SeekGE of the least key >= key. SeekLEFast positions like SeekLE but
// never loads the value: it returns nil on success and NotFound only
// when no key at or below key exists.
func (db *DB) Fetch(key []byte, mode SeekMode) ([]byte, error) {
	ek, err := db.codec.encode(key)
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpened(); err != nil {
		return nil, err
	}
	_, v, err := db.seek(ek, mode)
	if err != nil {
		return nil, err
	}
	if mode == SeekLEFast {
		return nil, nil
	}
	return db.codec.decode(v)
}

// Has reports whether key itself exists, without loading its value.
func (db *DB) Has(key []byte) (bool, error) {
	ek, err := db.codec.encode(key)
	if err != nil {
		return false, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpened(); err != nil {
		return false, err
	}
	cur, err := db.eng.Cursor()
	if err != nil {
		return false, err
	}
	defer func() { _ = cur.Close() }()
	if err := cur.Seek(ek, SeekEQ); err != nil {
		return false, err
	}
	return cur.Valid(), nil
}

// Set stores value under key, replacing any previous value.
func (db *DB) Set(key, value []byte) error {
	ek, err := db.codec.encode(key)
	if err != nil {
		return err
	}
	ev, err := db.codec.encode(value)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return err
	}
	return db.eng.Insert(ek, ev)
}

// Delete removes key. Deleting an absent key is not an error.
func (db *DB) Delete(key []byte) error {
	ek, err := db.codec.encode(key)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return err
	}
	return db.eng.Delete(ek)
}

// DeleteRange removes every key strictly between start and stop. The
// boundary keys themselves always survive, whether or not they exist.
func (db *DB) DeleteRange(start, stop []byte) error {
	es, err := db.codec.encode(start)
	if err != nil {
		return err
	}
	ee, err := db.codec.encode(stop)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return err
	}
	return db.eng.DeleteRange(es, ee)
}

// Update stores all items in one pass without releasing the connection
// between inserts. All keys and values are validated up front, so a
// codec error writes nothing.
func (db *DB) Update(items map[string][]byte) error {
	type pair struct{ k, v []byte }
	pairs := make([]pair, 0, len(items))
	for k, v := range items {
		ek, err := db.codec.encode([]byte(k))
		if err != nil {
			return err
		}
		ev, err := db.codec.encode(v)
		if err != nil {
			return err
		}
		pairs = append(pairs, pair{ek, ev})
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := db.eng.Insert(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// Len counts the entries with a full scan.
func (db *DB) Len() (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpened(); err != nil {
		return 0, err
	}
	cur, err := db.eng.Cursor()
	if err != nil {
		return 0, err
	}
	defer func() { _ = cur.Close() }()
	if err := cur.First(); err != nil {
		return 0, err
	}
	n := 0
	for cur.Valid() {
		n++
		if err := cur.Next(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Flush writes the engine's in-memory tree to the database file.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return err
	}
	return db.eng.Flush()
}

// Work runs merge passes and returns the kilobytes written. With
// complete set, passes repeat until the engine reports no progress,
// growing nmerge toward the configured auto-merge factor.
func (db *DB) Work(nmerge, nkb int, complete bool) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return 0, err
	}
	var total int64
	for {
		n, err := db.eng.Work(nmerge, nkb)
		total += n
		if err != nil {
			return total, err
		}
		if !complete || n == 0 {
			return total, nil
		}
		if nmerge < db.opts.AutoMerge {
			nmerge++
		}
	}
}

// Checkpoint syncs the database file and returns the kilobytes written
// since the previous checkpoint.
func (db *DB) Checkpoint() (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return 0, err
	}
	return db.eng.Checkpoint()
}

// Info returns the engine's counter snapshot. On a read-only connection
// only the read counter is populated.
func (db *DB) Info() (EngineInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpened(); err != nil {
		return EngineInfo{}, err
	}
	info, err := db.eng.Info()
	if err != nil {
		return EngineInfo{}, err
	}
	if db.opts.ReadOnly {
		info = EngineInfo{NRead: info.NRead}
	}
	return info, nil
}
