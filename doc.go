// Package lsm provides a transactional, cursor-based client layer over
// an embedded ordered log-structured-merge key-value engine.
//
// The package tracks nested transaction levels across commit, rollback
// and scoped exits, manages cursor and range-iterator lifecycle so that
// no operation ever touches a closed native handle, and serializes
// engine access from any number of goroutines sharing one connection.
// Storage itself is delegated to an engine: a durable pebble-backed one
// for file paths, and an in-memory ordered tree for MemoryPath.
//
// Basic usage:
//
//	db, err := lsm.Open("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Set([]byte("key"), []byte("value")); err != nil {
//	    log.Fatal(err)
//	}
//
//	value, err := db.Get([]byte("key"))
//	if lsm.IsNotFound(err) {
//	    // no such key
//	}
//
// Nested transactions fold into their parent on success and roll back
// on error:
//
//	err = db.Transaction(func(txn *lsm.Txn) error {
//	    if err := db.Set([]byte("a"), []byte("1")); err != nil {
//	        return err
//	    }
//	    return db.Transaction(func(inner *lsm.Txn) error {
//	        return db.Set([]byte("b"), []byte("2"))
//	    })
//	})
//
// Ranges are traversed with bounded, directional iterators:
//
//	it, err := db.Slice([]byte("k10"), []byte("k20"), -1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer it.Close()
//	for it.Next() {
//	    fmt.Printf("%s=%s\n", it.Key(), it.Value())
//	}
package lsm
