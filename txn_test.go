package lsm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNestedRollbackKeepsOuterWrites(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		require.NoError(t, db.Set([]byte("k1"), []byte("a")))

		outer, err := db.Begin()
		require.NoError(t, err)
		require.Equal(t, 1, outer.Level())
		require.NoError(t, db.Set([]byte("k1"), []byte("b")))

		inner, err := db.Begin()
		require.NoError(t, err)
		require.Equal(t, 2, inner.Level())
		require.NoError(t, db.Set([]byte("k1"), []byte("c")))

		require.NoError(t, inner.Rollback())
		got, err := db.Get([]byte("k1"))
		require.NoError(t, err)
		require.Equal(t, []byte("b"), got, "inner rollback must not touch the outer write")

		require.NoError(t, db.Commit())
		require.Equal(t, 0, db.Level())
		got, err = db.Get([]byte("k1"))
		require.NoError(t, err)
		require.Equal(t, []byte("b"), got)
	})
}

func TestNestedScopes(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		for i, k := range []string{"k0", "k1", "k2", "k3"} {
			require.NoError(t, db.Set([]byte(k), []byte{byte('0' + i)}))
		}

		err := db.Transaction(func(outer *Txn) error {
			if err := db.Set([]byte("k1"), []byte("1-mod")); err != nil {
				return err
			}
			inner, err := db.Begin()
			if err != nil {
				return err
			}
			if err := db.Set([]byte("k2"), []byte("2-mod")); err != nil {
				return err
			}
			return inner.Rollback()
		})
		require.NoError(t, err)

		got, err := db.Get([]byte("k1"))
		require.NoError(t, err)
		require.Equal(t, []byte("1-mod"), got)
		got, err = db.Get([]byte("k2"))
		require.NoError(t, err)
		require.Equal(t, []byte("2"), got)
	})
}

func TestCommitThenContinue(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		txn, err := db.Begin()
		require.NoError(t, err)
		require.NoError(t, db.Set([]byte("x"), []byte("1")))

		// Commit the unit of work so far and keep the scope open.
		require.NoError(t, txn.Commit())
		require.Equal(t, 1, db.Level())
		require.NoError(t, db.Set([]byte("x"), []byte("2")))

		err = db.Transaction(func(inner *Txn) error {
			return db.Set([]byte("x"), []byte("3"))
		})
		require.NoError(t, err)

		got, err := db.Get([]byte("x"))
		require.NoError(t, err)
		require.Equal(t, []byte("3"), got)

		// Rolling the outer scope back reverts to the committed unit.
		require.NoError(t, txn.Rollback())
		require.Equal(t, 0, db.Level())
		got, err = db.Get([]byte("x"))
		require.NoError(t, err)
		require.Equal(t, []byte("1"), got)
	})
}

func TestTransactionRollsBackOnError(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		require.NoError(t, db.Set([]byte("k"), []byte("old")))

		boom := errors.New("boom")
		err := db.Transaction(func(*Txn) error {
			if err := db.Set([]byte("k"), []byte("new")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, 0, db.Level())

		got, err := db.Get([]byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("old"), got)
	})
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	db := newMemDB(t)
	require.NoError(t, db.Set([]byte("k"), []byte("old")))

	require.Panics(t, func() {
		_ = db.Transaction(func(*Txn) error {
			if err := db.Set([]byte("k"), []byte("new")); err != nil {
				return err
			}
			panic("boom")
		})
	})
	require.Equal(t, 0, db.Level())

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), got)
}

func TestExplicitRollbackSupersedesScopeCommit(t *testing.T) {
	db := newMemDB(t)
	require.NoError(t, db.Set([]byte("k"), []byte("old")))

	err := db.Transaction(func(txn *Txn) error {
		if err := db.Set([]byte("k"), []byte("new")); err != nil {
			return err
		}
		return txn.Rollback()
	})
	require.NoError(t, err)
	require.Equal(t, 0, db.Level())

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), got)
}

func TestAbandonedHandleRollsBack(t *testing.T) {
	db := newMemDB(t)
	require.NoError(t, db.Set([]byte("k"), []byte("old")))

	txn, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("new")))
	require.NoError(t, txn.Close())
	require.Equal(t, 0, db.Level())

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), got)

	// A finalized handle is inert.
	require.NoError(t, txn.Close())
	require.True(t, IsMisuse(txn.Rollback()))
	require.True(t, IsMisuse(txn.Commit()))
}

func TestStaleHandleFailsClosed(t *testing.T) {
	db := newMemDB(t)

	outer, err := db.Begin()
	require.NoError(t, err)
	_, err = db.Begin()
	require.NoError(t, err)

	// The connection sits at level 2; the level-1 handle must not act.
	err = outer.Commit()
	require.True(t, IsMisuse(err))
	err = outer.Rollback()
	require.True(t, IsMisuse(err))

	// Close on a stale handle does nothing rather than corrupting state.
	require.NoError(t, outer.Close())
	require.Equal(t, 2, db.Level())
}

// flakyEngine fails a fixed number of commits before delegating.
type flakyEngine struct {
	Engine
	failures int
}

func (e *flakyEngine) Commit(level int) error {
	if e.failures > 0 {
		e.failures--
		return NewError(ErrIO)
	}
	return e.Engine.Commit(level)
}

func TestFailedCommitLeavesLevelForRetry(t *testing.T) {
	db := newMemDB(t)

	_, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("v")))

	db.eng = &flakyEngine{Engine: db.eng, failures: 1}
	err = db.Commit()
	require.Equal(t, ErrIO, Code(err))
	require.Equal(t, 1, db.Level(), "a failed commit must not move the level")

	require.NoError(t, db.Commit())
	require.Equal(t, 0, db.Level())

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestControllerMisuse(t *testing.T) {
	db := newMemDB(t)
	require.True(t, IsMisuse(db.Commit()), "commit with no transaction")
	require.True(t, IsMisuse(db.Rollback()), "rollback with no transaction")
}

func TestLevelTracking(t *testing.T) {
	db := newMemDB(t)
	require.Equal(t, 0, db.Level())

	t1, err := db.Begin()
	require.NoError(t, err)
	require.Equal(t, 1, db.Level())

	t2, err := db.Begin()
	require.NoError(t, err)
	require.Equal(t, 2, db.Level())

	require.NoError(t, t2.Rollback())
	require.Equal(t, 1, db.Level())
	require.NoError(t, t1.Commit())
	require.Equal(t, 1, db.Level(), "handle commit reopens the same depth")
	require.NoError(t, t1.Rollback())
	require.Equal(t, 0, db.Level())
}
