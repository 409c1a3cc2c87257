package lsm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorWalk(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		fillKeys(t, db, 5)

		cur, err := db.Cursor(SeekGE)
		require.NoError(t, err)
		defer cur.Close()

		// Opens positioned at the first key.
		require.True(t, cur.Valid())
		k, err := cur.Key()
		require.NoError(t, err)
		require.Equal(t, []byte("k00"), k)

		var keys []string
		ok := true
		for ok {
			k, v, err := cur.Retrieve()
			require.NoError(t, err)
			require.NotEmpty(t, v)
			keys = append(keys, string(k))
			ok, err = cur.Next()
			require.NoError(t, err)
		}
		require.Equal(t, []string{"k00", "k01", "k02", "k03", "k04"}, keys)

		// Exhausted but still valid for a re-seek.
		ok, err = cur.First()
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestCursorSeekModes(t *testing.T) {
	engines(t, func(t *testing.T, db *DB) {
		for i := 0; i < 4; i++ {
			require.NoError(t, db.Set([]byte(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("%d", i))))
		}

		cur, err := db.Cursor(SeekGE)
		require.NoError(t, err)
		defer cur.Close()

		ok, err := cur.Seek([]byte("k1xx"), SeekLE)
		require.NoError(t, err)
		require.True(t, ok)
		k, err := cur.Key()
		require.NoError(t, err)
		require.Equal(t, []byte("k1"), k)

		ok, err = cur.Seek([]byte("k1xx"), SeekGE)
		require.NoError(t, err)
		require.True(t, ok)
		k, err = cur.Key()
		require.NoError(t, err)
		require.Equal(t, []byte("k2"), k)

		ok, err = cur.Seek([]byte("k1xx"), SeekEQ)
		require.NoError(t, err)
		require.False(t, ok, "no exact match")

		ok, err = cur.Seek([]byte("k1"), SeekEQ)
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestCursorExactSeekForbidsStepping(t *testing.T) {
	db := newMemDB(t)
	fillKeys(t, db, 4)

	cur, err := db.Cursor(SeekGE)
	require.NoError(t, err)
	defer cur.Close()

	ok, err := cur.Seek([]byte("k01"), SeekEQ)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = cur.Next()
	require.True(t, IsMisuse(err), "next after an exact seek")
	_, err = cur.Prev()
	require.True(t, IsMisuse(err), "prev after an exact seek")
}

func TestCursorFastSeekHidesValue(t *testing.T) {
	db := newMemDB(t)
	fillKeys(t, db, 4)

	cur, err := db.Cursor(SeekGE)
	require.NoError(t, err)
	defer cur.Close()

	ok, err := cur.Seek([]byte("k01"), SeekLEFast)
	require.NoError(t, err)
	require.True(t, ok)

	k, err := cur.Key()
	require.NoError(t, err)
	require.Equal(t, []byte("k01"), k)

	_, err = cur.Value()
	require.True(t, IsMisuse(err))
	_, _, err = cur.Retrieve()
	require.True(t, IsMisuse(err))

	// A missed key lands on its predecessor, like SeekLE.
	ok, err = cur.Seek([]byte("k01x"), SeekLEFast)
	require.NoError(t, err)
	require.True(t, ok)
	k, err = cur.Key()
	require.NoError(t, err)
	require.Equal(t, []byte("k01"), k)
}

func TestCursorCompareFlipsForGE(t *testing.T) {
	db := newMemDB(t)
	fillKeys(t, db, 4)

	cur, err := db.Cursor(SeekGE)
	require.NoError(t, err)
	defer cur.Close()

	// Positioned at k00 with a GE seek: the sign is flipped so that the
	// usual "while Compare(bound) <= 0" loop walks forward.
	ok, err := cur.Seek([]byte("k00"), SeekGE)
	require.NoError(t, err)
	require.True(t, ok)
	cmp, err := cur.Compare([]byte("k03"))
	require.NoError(t, err)
	require.Positive(t, cmp)

	ok, err = cur.Seek([]byte("k03"), SeekLE)
	require.NoError(t, err)
	require.True(t, ok)
	cmp, err = cur.Compare([]byte("k00"))
	require.NoError(t, err)
	require.Positive(t, cmp, "LE keeps the raw engine ordering")
}

func TestCursorBackwardWalk(t *testing.T) {
	db := newMemDB(t)
	fillKeys(t, db, 4)

	// SeekLE opens at the last key.
	cur, err := db.Cursor(SeekLE)
	require.NoError(t, err)
	defer cur.Close()

	var keys []string
	ok := cur.Valid()
	for ok {
		k, err := cur.Key()
		require.NoError(t, err)
		keys = append(keys, string(k))
		ok, err = cur.Prev()
		require.NoError(t, err)
	}
	require.Equal(t, []string{"k03", "k02", "k01", "k00"}, keys)
}

func TestCursorMissedPosition(t *testing.T) {
	db := newMemDB(t)

	cur, err := db.Cursor(SeekGE)
	require.NoError(t, err)
	defer cur.Close()

	require.False(t, cur.Valid(), "empty database")
	_, err = cur.Key()
	require.True(t, IsNotFound(err))
	_, err = cur.Value()
	require.True(t, IsNotFound(err))
}

func TestCursorOutlivesConnection(t *testing.T) {
	db, err := OpenOptions(DefaultOptions(MemoryPath))
	require.NoError(t, err)
	fillKeys(t, db, 4)

	cur, err := db.Cursor(SeekGE)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Invalidated lazily, on next use.
	_, err = cur.Next()
	require.True(t, IsMisuse(err))
	_, err = cur.Key()
	require.True(t, IsMisuse(err))
	require.NoError(t, cur.Close())
}

func TestCursorCloseIsInert(t *testing.T) {
	db := newMemDB(t)
	cur, err := db.Cursor(SeekGE)
	require.NoError(t, err)

	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())
	_, err = cur.First()
	require.True(t, IsMisuse(err))
}
