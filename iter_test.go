package lsm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func collectKeys(t *testing.T, it *Iterator) []string {
	t.Helper()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Err())
	return keys
}

func TestIterateAll(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		fillKeys(t, db, 100)

		it, err := db.Items()
		require.NoError(t, err)
		defer it.Close()

		n := 0
		for it.Next() {
			require.Equal(t, fmt.Sprintf("k%02d", n), string(it.Key()))
			require.Equal(t, fmt.Sprintf("%d", n), string(it.Value()))
			n++
		}
		require.NoError(t, it.Err())
		require.Equal(t, 100, n)
	})
}

func TestSliceInclusiveBounds(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		fillKeys(t, db, 100)

		it, err := db.Slice([]byte("k90"), []byte("k99"), 1)
		require.NoError(t, err)
		defer it.Close()

		want := make([]string, 0, 10)
		for i := 90; i <= 99; i++ {
			want = append(want, fmt.Sprintf("k%02d", i))
		}
		require.Equal(t, want, collectKeys(t, it))
	})
}

func TestSliceReverse(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		fillKeys(t, db, 100)

		// Bounds keep their low/high roles; the walk runs high to low.
		it, err := db.Slice([]byte("k90"), []byte("k99"), -1)
		require.NoError(t, err)
		defer it.Close()

		want := make([]string, 0, 10)
		for i := 99; i >= 90; i-- {
			want = append(want, fmt.Sprintf("k%02d", i))
		}
		require.Equal(t, want, collectKeys(t, it))
	})
}

func TestSliceReverseOpenEnded(t *testing.T) {
	db := newMemDB(t)
	fillKeys(t, db, 5)

	// Everything >= k02, walked backward from the last key.
	it, err := db.Slice([]byte("k02"), nil, -1)
	require.NoError(t, err)
	defer it.Close()
	require.Equal(t, []string{"k04", "k03", "k02"}, collectKeys(t, it))
}

func TestSliceStep(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		fillKeys(t, db, 4)

		it, err := db.Slice(nil, nil, 2)
		require.NoError(t, err)
		defer it.Close()
		require.Equal(t, []string{"k00", "k02"}, collectKeys(t, it))

		it, err = db.Slice(nil, nil, -2)
		require.NoError(t, err)
		defer it.Close()
		require.Equal(t, []string{"k03", "k01"}, collectKeys(t, it))
	})
}

func TestSliceApproximateBounds(t *testing.T) {
	db := newMemDB(t)
	fillKeys(t, db, 30)

	// Neither bound exists; the nearest in-range keys are used.
	it, err := db.Slice([]byte("k"), []byte("k1"), 1)
	require.NoError(t, err)
	defer it.Close()

	keys := collectKeys(t, it)
	require.Equal(t, 10, len(keys))
	require.Equal(t, "k00", keys[0])
	require.Equal(t, "k09", keys[9])
}

func TestSliceEmptyRange(t *testing.T) {
	db := newMemDB(t)
	fillKeys(t, db, 5)

	it, err := db.Slice([]byte("x"), []byte("z"), 1)
	require.NoError(t, err)
	defer it.Close()
	require.Empty(t, collectKeys(t, it))
}

func TestSliceZeroStep(t *testing.T) {
	db := newMemDB(t)
	_, err := db.Slice(nil, nil, 0)
	require.True(t, IsMisuse(err))
}

func TestIteratorExhaustionIsPermanent(t *testing.T) {
	db := newMemDB(t)
	fillKeys(t, db, 3)

	it, err := db.Items()
	require.NoError(t, err)
	for it.Next() {
	}
	require.NoError(t, it.Err())

	require.False(t, it.Next(), "an exhausted iterator does not restart")
	require.False(t, it.Next())
}

func TestIteratorSeesSnapshotAtFirstPull(t *testing.T) {
	db := newMemDB(t)
	fillKeys(t, db, 3)

	it, err := db.Items()
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())

	// Writes after the first pull do not disturb the traversal.
	require.NoError(t, db.Set([]byte("k00a"), []byte("late")))

	var rest []string
	for it.Next() {
		rest = append(rest, string(it.Key()))
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"k01", "k02"}, rest)
}

func TestIteratorAfterClose(t *testing.T) {
	db, err := OpenOptions(DefaultOptions(MemoryPath))
	require.NoError(t, err)
	fillKeys(t, db, 3)

	it, err := db.Items()
	require.NoError(t, err)
	require.True(t, it.Next())

	require.NoError(t, db.Close())
	require.False(t, it.Next())
	require.True(t, IsMisuse(it.Err()))
	require.NoError(t, it.Close())
}

func TestIterateDuringTransaction(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		fillKeys(t, db, 3)

		err := db.Transaction(func(*Txn) error {
			if err := db.Set([]byte("k99"), []byte("pending")); err != nil {
				return err
			}
			it, err := db.Items()
			if err != nil {
				return err
			}
			defer it.Close()
			keys := collectKeys(t, it)
			require.Equal(t, []string{"k00", "k01", "k02", "k99"}, keys)
			return nil
		})
		require.NoError(t, err)
	})
}
