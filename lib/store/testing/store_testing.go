package testing

import (
	"fmt"
	"sort"
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/store"
	"github.com/stretchr/testify/require"
)

// Opener returns the store with the given name. All stores returned by one
// Opener share the same environment (e.g. the same physical database).
type Opener func(name string) store.KeyValueDb[string, int64]

// EnvFactory creates a fresh, empty environment for one test.
type EnvFactory func(t *testing.T) Opener

// RunKeyValueDbTests runs the conformance suite for typed stores.
func RunKeyValueDbTests(t *testing.T, name string, factory EnvFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(t)("set-get"))
		})

		t.Run("Put", func(t *testing.T) {
			testPut(t, factory(t)("put"))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory(t)("remove"))
		})

		t.Run("Bulk", func(t *testing.T) {
			testBulk(t, factory(t)("bulk"))
		})

		t.Run("Iteration", func(t *testing.T) {
			testIteration(t, factory(t)("iteration"))
		})

		t.Run("Isolation", func(t *testing.T) {
			open := factory(t)
			testIsolation(t, open("left"), open("right"))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory(t)("close"))
		})
	})
}

func closeStore(t *testing.T, s store.KeyValueDb[string, int64]) {
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
}

func testSetGet(t *testing.T, s store.KeyValueDb[string, int64]) {
	closeStore(t, s)

	empty, err := s.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	_, found, err := s.Get("missing")
	require.NoError(t, err)
	require.False(t, found)

	v, err := s.GetOrDefault("missing", -1)
	require.NoError(t, err)
	require.Equal(t, int64(-1), v)

	require.NoError(t, s.Set("a", 1))
	require.NoError(t, s.Set("b", 2))
	require.NoError(t, s.Set("a", 3))

	v, found, err = s.Get("a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(3), v)

	v, err = s.GetOrDefault("b", -1)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	ok, err := s.ContainsKey("b")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ContainsKey("c")
	require.NoError(t, err)
	require.False(t, ok)

	size, err := s.Size()
	require.NoError(t, err)
	require.Equal(t, 2, size)

	empty, err = s.IsEmpty()
	require.NoError(t, err)
	require.False(t, empty)

	require.NoError(t, s.Delete("b"))
	require.NoError(t, s.Delete("never-set"))

	size, err = s.Size()
	require.NoError(t, err)
	require.Equal(t, 1, size)
}

func testPut(t *testing.T, s store.KeyValueDb[string, int64]) {
	closeStore(t, s)

	_, found, err := s.Put("k", 1)
	require.NoError(t, err)
	require.False(t, found)

	prev, found, err := s.Put("k", 2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), prev)

	existing, found, err := s.PutIfAbsent("k", 3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(2), existing)

	_, found, err = s.PutIfAbsent("fresh", 4)
	require.NoError(t, err)
	require.False(t, found)

	v, _, err := s.Get("fresh")
	require.NoError(t, err)
	require.Equal(t, int64(4), v)

	prev, found, err = s.PutIfPresent("k", 5)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(2), prev)

	_, found, err = s.PutIfPresent("absent", 6)
	require.NoError(t, err)
	require.False(t, found)

	ok, err := s.ContainsKey("absent")
	require.NoError(t, err)
	require.False(t, ok, "PutIfPresent must not insert")

	v, _, err = s.Get("k")
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
}

func testRemove(t *testing.T, s store.KeyValueDb[string, int64]) {
	closeStore(t, s)

	require.NoError(t, s.Set("k", 7))

	prev, found, err := s.Remove("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(7), prev)

	_, found, err = s.Remove("k")
	require.NoError(t, err)
	require.False(t, found)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set(fmt.Sprintf("k%d", i), int64(i)))
	}
	require.NoError(t, s.Clear())

	size, err := s.Size()
	require.NoError(t, err)
	require.Zero(t, size)
}

func testBulk(t *testing.T, s store.KeyValueDb[string, int64]) {
	closeStore(t, s)

	got, err := s.GetAll(nil)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.PutAll(nil))
	require.NoError(t, s.RemoveAll(nil))

	entries := make(map[string]int64)
	for i := 0; i < 100; i++ {
		entries[fmt.Sprintf("bulk-%03d", i)] = int64(i * i)
	}
	require.NoError(t, s.PutAll(entries))

	got, err = s.GetAll([]string{"bulk-000", "bulk-050", "missing", "bulk-099"})
	require.NoError(t, err)
	require.Equal(t, map[string]int64{
		"bulk-000": 0,
		"bulk-050": 2500,
		"bulk-099": 9801,
	}, got)

	require.NoError(t, s.RemoveAll([]string{"bulk-000", "missing", "bulk-001"}))

	size, err := s.Size()
	require.NoError(t, err)
	require.Equal(t, 98, size)

	got, err = s.GetAll([]string{"bulk-000", "bulk-001", "bulk-002"})
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"bulk-002": 4}, got)
}

func testIteration(t *testing.T, s store.KeyValueDb[string, int64]) {
	closeStore(t, s)

	want := map[string]int64{"x": 1, "y": 2, "z": 3}
	require.NoError(t, s.PutAll(want))

	keys, err := s.Keys()
	require.NoError(t, err)
	sort.Strings(keys)
	require.Equal(t, []string{"x", "y", "z"}, keys)

	values, err := s.Values()
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1, 2, 3}, values)

	entries, err := s.Entries()
	require.NoError(t, err)
	got := make(map[string]int64)
	for _, e := range entries {
		got[e.Key] = e.Value
	}
	require.Equal(t, want, got)

	visited := 0
	require.NoError(t, s.ForEach(func(string, int64) bool {
		visited++
		return visited < 2
	}))
	require.Equal(t, 2, visited)

	ok, err := s.ContainsValue(2)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ContainsValue(42)
	require.NoError(t, err)
	require.False(t, ok)
}

func testIsolation(t *testing.T, left, right store.KeyValueDb[string, int64]) {
	closeStore(t, left)
	closeStore(t, right)

	require.NoError(t, left.Set("shared", 1))
	require.NoError(t, right.Set("shared", 2))
	require.NoError(t, right.Set("only-right", 3))

	v, _, err := left.Get("shared")
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	keys, err := left.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"shared"}, keys)

	require.NoError(t, left.Clear())

	size, err := right.Size()
	require.NoError(t, err)
	require.Equal(t, 2, size)

	v, _, err = right.Get("shared")
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
}

func testClose(t *testing.T, s store.KeyValueDb[string, int64]) {
	require.NoError(t, s.Set("k", 1))
	require.NoError(t, s.ForceFlush())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err := s.Get("k")
	require.ErrorIs(t, err, db.ErrClosed)

	err = s.Set("k", 2)
	require.ErrorIs(t, err, db.ErrClosed)
}
