package lsm

// Txn is a handle on one nested transaction level. Handles follow a
// strict stack discipline: the handle opened at level n must be the one
// that commits or rolls back level n, and the connection must still be
// at that level when it does. A handle whose level no longer matches
// the connection's fails closed with ErrMisuse.
type Txn struct {
	db    *DB
	level int
	done  bool
}

// Begin opens a new nested transaction level and returns its handle.
// The connection's tracked level only advances when the engine call
// succeeds.
func (db *DB) Begin() (*Txn, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return nil, err
	}
	lvl := db.level + 1
	if err := db.eng.Begin(lvl); err != nil {
		return nil, err
	}
	db.level = lvl
	return &Txn{db: db, level: lvl}, nil
}

// Commit folds the innermost open level into its parent; committing the
// outermost level makes the writes durable. With no transaction open
// this is misuse. On failure the tracked level is unchanged so the
// caller can inspect and retry.
func (db *DB) Commit() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return err
	}
	if db.level == 0 {
		return NewErrorf(ErrMisuse, "no open transaction to commit")
	}
	if err := db.eng.Commit(db.level - 1); err != nil {
		return err
	}
	db.level--
	return nil
}

// Rollback discards the writes of the innermost open level and closes
// it. With no transaction open this is misuse.
func (db *DB) Rollback() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureWritable(); err != nil {
		return err
	}
	if db.level == 0 {
		return NewErrorf(ErrMisuse, "no open transaction to roll back")
	}
	if err := db.eng.Rollback(db.level - 1); err != nil {
		return err
	}
	db.level--
	return nil
}

// Level returns the nesting level this handle was opened at.
func (t *Txn) Level() int {
	return t.level
}

// check validates the handle against the connection. The caller holds
// the connection mutex.
func (t *Txn) check() error {
	if t.done {
		return NewErrorf(ErrMisuse, "transaction already finalized")
	}
	if err := t.db.ensureWritable(); err != nil {
		return err
	}
	if t.db.level != t.level {
		return NewErrorf(ErrMisuse, "stale transaction handle: level %d, connection at %d", t.level, t.db.level)
	}
	return nil
}

// Commit commits the work done so far through this scope's depth and
// immediately reopens a transaction at the same depth, so the caller
// can keep writing under what is conceptually the same scope. The
// handle stays usable; the scope's eventual exit action still applies.
func (t *Txn) Commit() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if err := t.check(); err != nil {
		return err
	}
	if err := t.db.eng.Commit(t.level - 1); err != nil {
		return err
	}
	if err := t.db.eng.Begin(t.level); err != nil {
		// Committed but could not reopen: the scope is gone.
		t.db.level = t.level - 1
		t.done = true
		return err
	}
	return nil
}

// Rollback discards this scope's writes and closes the scope. It
// supersedes the implicit exit action.
func (t *Txn) Rollback() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if err := t.check(); err != nil {
		return err
	}
	if err := t.db.eng.Rollback(t.level - 1); err != nil {
		return err
	}
	t.db.level = t.level - 1
	t.done = true
	return nil
}

// Close rolls the scope back if it was not finalized. It is safe on
// every exit path: once the handle is finalized, or the connection is
// closed or no longer at this level, Close does nothing.
func (t *Txn) Close() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	if t.db.state != stateOpened || t.db.level != t.level {
		return nil
	}
	err := t.db.eng.Rollback(t.level - 1)
	t.db.level = t.level - 1
	if err != nil {
		t.db.opts.logf("lsm: rollback of abandoned transaction: %v", err)
	}
	return err
}

// finish commits the scope into its parent on normal scope exit, unless
// an explicit Rollback already finalized it.
func (t *Txn) finish() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return nil
	}
	if err := t.check(); err != nil {
		return err
	}
	if err := t.db.eng.Commit(t.level - 1); err != nil {
		return err
	}
	t.db.level = t.level - 1
	t.done = true
	return nil
}

// Transaction runs fn inside a new nested transaction scope. When fn
// returns nil the scope commits into its parent; when it returns an
// error or panics the scope rolls back. Explicit Commit or Rollback
// calls on the handle inside fn supersede the implicit exit action.
func (db *DB) Transaction(fn func(*Txn) error) error {
	t, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = t.Close()
			panic(p)
		}
	}()
	if err := fn(t); err != nil {
		_ = t.Close()
		return err
	}
	return t.finish()
}
