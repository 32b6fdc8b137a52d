package kvstore

import (
	"testing"

	"github.com/ValentinKolb/evkv/lib/codec"
	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/leveldb"
	"github.com/ValentinKolb/evkv/lib/db/engines/maple"
	"github.com/ValentinKolb/evkv/lib/store"
	stest "github.com/ValentinKolb/evkv/lib/store/testing"
	"github.com/stretchr/testify/require"
)

func newLevelDB(t testing.TB) db.KVDB {
	database, err := leveldb.Open(leveldb.Options{})
	require.NoError(t, err)
	return database
}

func Test(t *testing.T) {
	stest.RunKeyValueDbTests(t, "LevelDB(prefixed)", func(t *testing.T) stest.Opener {
		shared := newLevelDB(t)
		return func(name string) store.KeyValueDb[string, int64] {
			return New(shared, name, codec.String, codec.Int64, true)
		}
	})

	stest.RunKeyValueDbTests(t, "Maple", func(t *testing.T) stest.Opener {
		return func(name string) store.KeyValueDb[string, int64] {
			database, err := maple.NewMapleDB(nil)
			require.NoError(t, err)
			return New(database, name, codec.String, codec.Int64, false)
		}
	})
}

func TestPrefixLayout(t *testing.T) {
	database := newLevelDB(t)
	s := New(database, "users", codec.Int32, codec.String, true)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Set(7, "seven"))

	key, err := codec.EncodeWithPrefix(codec.Int32, []byte("users:"), 7)
	require.NoError(t, err)
	require.Equal(t, []byte{'u', 's', 'e', 'r', 's', ':', 0, 0, 0, 7}, key)

	raw, found, err := database.Get(key)
	require.NoError(t, err)
	require.True(t, found)

	value, err := codec.Decode(codec.String, raw)
	require.NoError(t, err)
	require.Equal(t, "seven", value)

	require.Equal(t, "users", s.Info().Name)
}

func TestCheckName(t *testing.T) {
	for _, name := range []string{"users", "users_archive", "users.v2", "a-b"} {
		require.NoError(t, CheckName(name), name)
	}
	for _, name := range []string{"", ".", "..", "users:archive", "a/b", `a\b`, "../x", "a\x00b"} {
		require.Error(t, CheckName(name), name)
	}
}

func TestPrefixIsolation(t *testing.T) {
	database := newLevelDB(t)
	t.Cleanup(func() { _ = database.Close() })
	users := New(database, "users", codec.String, codec.Int64, true)
	archive := New(database, "users_archive", codec.String, codec.Int64, true)

	require.NoError(t, users.Set("a", 1))
	require.NoError(t, archive.Set("b", 2))
	require.NoError(t, archive.Set("c", 3))

	size, err := users.Size()
	require.NoError(t, err)
	require.Equal(t, 1, size)
	keys, err := users.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, keys)

	require.NoError(t, users.Clear())
	size, err = archive.Size()
	require.NoError(t, err)
	require.Equal(t, 2, size)
}

func TestPutIfPresentAndRemove(t *testing.T) {
	database := newLevelDB(t)
	s := New(database, "cond", codec.String, codec.Int64, true)
	t.Cleanup(func() { _ = s.Close() })

	_, present, err := s.PutIfPresent("k", 1)
	require.NoError(t, err)
	require.False(t, present)
	found, err := s.ContainsKey("k")
	require.NoError(t, err)
	require.False(t, found, "PutIfPresent must not create missing keys")

	require.NoError(t, s.Set("k", 1))
	prev, present, err := s.PutIfPresent("k", 2)
	require.NoError(t, err)
	require.True(t, present)
	require.EqualValues(t, 1, prev)

	prev, found, err = s.Remove("k")
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 2, prev)

	_, found, err = s.Remove("k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestFixedWidthKeys(t *testing.T) {
	database, err := maple.NewMapleDB(&maple.DBOptions{KeyWidth: codec.Int64.Size().Bytes})
	require.NoError(t, err)
	s := New(database, "fixed", codec.Int64, codec.String, false)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.PutAll(map[int64]string{1: "one", 2: "two", -3: "minus three"}))

	keys, err := s.Keys()
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1, 2, -3}, keys)
}

func TestCorruptValue(t *testing.T) {
	database := newLevelDB(t)
	s := New(database, "corrupt", codec.String, codec.Int64, true)
	t.Cleanup(func() { _ = s.Close() })

	key, err := codec.EncodeWithPrefix(codec.String, Prefix("corrupt"), "k")
	require.NoError(t, err)
	require.NoError(t, database.Set(key, []byte{1, 2, 3}))

	_, _, err = s.Get("k")
	var decodeErr *codec.DecodeError
	require.ErrorAs(t, err, &decodeErr)

	_, err = s.Values()
	require.ErrorAs(t, err, &decodeErr)

	_, err = s.GetAll([]string{"k"})
	require.ErrorAs(t, err, &decodeErr)
}

func BenchmarkSetGet(b *testing.B) {
	s := New(newLevelDB(b), "bench", codec.Int, codec.String, true)
	b.Cleanup(func() { _ = s.Close() })

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Set(i, "value"); err != nil {
			b.Fatal(err)
		}
		if _, _, err := s.Get(i); err != nil {
			b.Fatal(err)
		}
	}
}
