package cache

import (
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/maple"
	dbtesting "github.com/ValentinKolb/evkv/lib/db/testing"
	"github.com/stretchr/testify/require"
)

func newTestDB(t testing.TB, size int) db.KVDB {
	inner, err := maple.NewMapleDB(nil)
	require.NoError(t, err)
	cached, err := Wrap(inner, size)
	require.NoError(t, err)
	return cached
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "CachedMapleDB", func() db.KVDB {
		return newTestDB(t, 64)
	})
}

func TestHitsAndInvalidation(t *testing.T) {
	database := newTestDB(t, 16)
	defer database.Close()

	require.NoError(t, database.Set([]byte("k"), []byte("v1")))

	for i := 0; i < 3; i++ {
		v, found, err := database.Get([]byte("k"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "v1", string(v))
	}

	info := database.GetInfo().Metadata.(Info)
	require.Equal(t, uint64(1), info.Misses)
	require.Equal(t, uint64(2), info.Hits)
	require.Equal(t, 1, info.Size)

	// writes must never be hidden by the cache
	require.NoError(t, database.Set([]byte("k"), []byte("v2")))
	v, _, err := database.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(v))

	old, found, err := database.Swap([]byte("k"), []byte("v3"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", string(old))
	v, _, _ = database.Get([]byte("k"))
	require.Equal(t, "v3", string(v))

	require.NoError(t, database.DeletePrefix(nil))
	_, found, err = database.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestCachedValuesAreCopies(t *testing.T) {
	database := newTestDB(t, 16)
	defer database.Close()

	require.NoError(t, database.Set([]byte("k"), []byte("value")))
	v, _, _ := database.Get([]byte("k"))
	v[0] = 'X'

	v, _, _ = database.Get([]byte("k"))
	require.Equal(t, "value", string(v))
}

func TestGetManyMixesCacheAndDatabase(t *testing.T) {
	database := newTestDB(t, 16)
	defer database.Close()

	require.NoError(t, database.SetMany(
		[][]byte{[]byte("a"), []byte("b")},
		[][]byte{[]byte("1"), []byte("2")},
	))
	_, _, _ = database.Get([]byte("a")) // cached

	values, err := database.GetMany([][]byte{[]byte("a"), []byte("missing"), []byte("b")})
	require.NoError(t, err)
	require.Equal(t, []byte("1"), values[0])
	require.Nil(t, values[1])
	require.Equal(t, []byte("2"), values[2])
}

func BenchmarkCachedGet(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "CachedMapleDB", func() db.KVDB {
		return newTestDB(b, 1024)
	})
}
