package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
)

// DBFactory is a function that creates a new, empty instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Batch", func(t *testing.T) {
			testBatch(t, factory())
		})

		t.Run("Swap", func(t *testing.T) {
			testSwap(t, factory())
		})

		t.Run("SetIfAbsent", func(t *testing.T) {
			testSetIfAbsent(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("OrderedScan", func(t *testing.T) {
			testOrderedScan(t, factory())
		})

		t.Run("CountAndDeletePrefix", func(t *testing.T) {
			testCountAndDeletePrefix(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("Flush", func(t *testing.T) {
			testFlush(t, factory())
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skipf("feature %s not supported", feature)
	}
}

func mustSet(t testing.TB, database db.KVDB, key, value string) {
	t.Helper()
	if err := database.Set([]byte(key), []byte(value)); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

func mustGet(t testing.TB, database db.KVDB, key string) ([]byte, bool) {
	t.Helper()
	v, ok, err := database.Get([]byte(key))
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return v, ok
}

func collect(t testing.TB, database db.KVDB, prefix string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := database.Scan([]byte(prefix), func(k, v []byte) bool {
		out[string(k)] = string(v)
		return true
	})
	if err != nil {
		t.Fatalf("Scan(%q) failed: %v", prefix, err)
	}
	return out
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustSet(t, database, testKey, string(testValue1))

	result, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustSet(t, database, testKey, string(testValue2))

	result, exists = mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = mustGet(t, database, "nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := mustGet(t, database, testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := mustGet(t, database, testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("caller-owned")
	if err := database.Set([]byte("owned"), input); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	input[0] = 'X'
	if result, _ = mustGet(t, database, "owned"); string(result) != "caller-owned" {
		t.Errorf("Set must not retain the caller's slice, got %s", result)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := "has-key"

	if ok, err := database.Has([]byte(testKey)); err != nil || ok {
		t.Errorf("Expected Has to return false for nonexistent key, got %v, %v", ok, err)
	}

	mustSet(t, database, testKey, "value")

	if ok, err := database.Has([]byte(testKey)); err != nil || !ok {
		t.Errorf("Expected Has to return true after Set, got %v, %v", ok, err)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := "delete-key"
	mustSet(t, database, testKey, "value")

	if _, exists := mustGet(t, database, testKey); !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if err := database.Delete([]byte(testKey)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, exists := mustGet(t, database, testKey); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}
	if ok, _ := database.Has([]byte(testKey)); ok {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	if err := database.Delete([]byte("never-existed")); err != nil {
		t.Errorf("Deleting a missing key should not fail: %v", err)
	}
}

func testBatch(t *testing.T, database db.KVDB) {
	defer database.Close()

	keys := [][]byte{[]byte("b-1"), []byte("b-2"), []byte("b-3")}
	values := [][]byte{[]byte("v-1"), []byte("v-2"), []byte("v-3")}

	if err := database.SetMany(keys, values); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	got, err := database.GetMany([][]byte{[]byte("b-3"), []byte("missing"), []byte("b-1")})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(got))
	}
	if string(got[0]) != "v-3" || got[1] != nil || string(got[2]) != "v-1" {
		t.Errorf("Unexpected GetMany result: %q", got)
	}

	if err := database.SetMany(keys[:1], nil); err == nil {
		t.Errorf("SetMany with mismatched lengths should fail")
	}

	if err := database.SetMany(nil, nil); err != nil {
		t.Errorf("SetMany with empty input should succeed: %v", err)
	}
	if got, err := database.GetMany(nil); err != nil || len(got) != 0 {
		t.Errorf("GetMany with empty input should return nothing, got %q, %v", got, err)
	}
	if err := database.DeleteMany(nil); err != nil {
		t.Errorf("DeleteMany with empty input should succeed: %v", err)
	}

	if err := database.DeleteMany([][]byte{[]byte("b-1"), []byte("b-3"), []byte("missing")}); err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if _, ok := mustGet(t, database, "b-1"); ok {
		t.Errorf("b-1 should be deleted")
	}
	if v, ok := mustGet(t, database, "b-2"); !ok || string(v) != "v-2" {
		t.Errorf("b-2 should still exist, got %s, %v", v, ok)
	}
}

func testSwap(t *testing.T, database db.KVDB) {
	defer database.Close()

	old, found, err := database.Swap([]byte("swap"), []byte("first"))
	if err != nil || found || old != nil {
		t.Errorf("Swap on missing key: got %q, %v, %v", old, found, err)
	}

	old, found, err = database.Swap([]byte("swap"), []byte("second"))
	if err != nil || !found || string(old) != "first" {
		t.Errorf("Swap on existing key: got %q, %v, %v", old, found, err)
	}

	if v, _ := mustGet(t, database, "swap"); string(v) != "second" {
		t.Errorf("Expected value second after Swap, got %s", v)
	}
}

func testSetIfAbsent(t *testing.T, database db.KVDB) {
	defer database.Close()

	existing, found, err := database.SetIfAbsent([]byte("sia"), []byte("first"))
	if err != nil || found || existing != nil {
		t.Errorf("SetIfAbsent on missing key: got %q, %v, %v", existing, found, err)
	}

	existing, found, err = database.SetIfAbsent([]byte("sia"), []byte("second"))
	if err != nil || !found || string(existing) != "first" {
		t.Errorf("SetIfAbsent on existing key: got %q, %v, %v", existing, found, err)
	}

	if v, _ := mustGet(t, database, "sia"); string(v) != "first" {
		t.Errorf("SetIfAbsent must not overwrite, got %s", v)
	}
}

func testScan(t *testing.T, database db.KVDB) {
	defer database.Close()

	// keys containing glob and SQL pattern characters must be matched literally
	entries := map[string]string{
		"users:1":    "alice",
		"users:2":    "bob",
		"users:*":    "star",
		"users%_":    "percent",
		"user":       "short",
		"orders:1":   "o1",
		"users:\xff": "high",
	}
	for k, v := range entries {
		mustSet(t, database, k, v)
	}

	got := collect(t, database, "users:")
	want := map[string]string{"users:1": "alice", "users:2": "bob", "users:*": "star", "users:\xff": "high"}
	if len(got) != len(want) {
		t.Errorf("Scan(users:) returned %d entries, want %d: %v", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Scan(users:) key %q = %q, want %q", k, got[k], v)
		}
	}

	if got := collect(t, database, "users%"); len(got) != 1 || got["users%_"] != "percent" {
		t.Errorf("Scan(users%%) = %v", got)
	}

	if got := collect(t, database, ""); len(got) != len(entries) {
		t.Errorf("Scan with empty prefix returned %d entries, want %d", len(got), len(entries))
	}

	visited := 0
	err := database.Scan([]byte("users:"), func(_, _ []byte) bool {
		visited++
		return false
	})
	if err != nil || visited != 1 {
		t.Errorf("Scan should stop after the callback returns false: visited=%d err=%v", visited, err)
	}
}

func testOrderedScan(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureOrderedScan)

	for _, k := range []string{"o:c", "o:a", "o:b", "o:\x00", "o:aa"} {
		mustSet(t, database, k, k)
	}

	var order []string
	err := database.Scan([]byte("o:"), func(k, _ []byte) bool {
		order = append(order, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []string{"o:\x00", "o:a", "o:aa", "o:b", "o:c"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("Scan order = %q, want %q", order, want)
	}
}

func testCountAndDeletePrefix(t *testing.T, database db.KVDB) {
	defer database.Close()

	for i := 0; i < 25; i++ {
		mustSet(t, database, fmt.Sprintf("a:%02d", i), "x")
	}
	for i := 0; i < 7; i++ {
		mustSet(t, database, fmt.Sprintf("b:%02d", i), "y")
	}

	if n, err := database.Count([]byte("a:")); err != nil || n != 25 {
		t.Errorf("Count(a:) = %d, %v; want 25", n, err)
	}
	if n, err := database.Count(nil); err != nil || n != 32 {
		t.Errorf("Count() = %d, %v; want 32", n, err)
	}

	if err := database.DeletePrefix([]byte("a:")); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if n, _ := database.Count([]byte("a:")); n != 0 {
		t.Errorf("Count(a:) after DeletePrefix = %d, want 0", n)
	}
	if n, _ := database.Count([]byte("b:")); n != 7 {
		t.Errorf("DeletePrefix(a:) removed foreign keys, Count(b:) = %d", n)
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	if err := database.Set([]byte("empty-value"), []byte{}); err != nil {
		t.Fatalf("Set with empty value failed: %v", err)
	}
	if result, exists := mustGet(t, database, "empty-value"); !exists || len(result) != 0 {
		t.Errorf("Empty value mismatch: %v, %v", result, exists)
	}
	if got, _ := database.GetMany([][]byte{[]byte("empty-value")}); len(got) != 1 || got[0] == nil {
		t.Errorf("GetMany must distinguish an empty value from a missing one, got %#v", got)
	}

	if err := database.Set([]byte("nil-value"), nil); err != nil {
		t.Fatalf("Set with nil value failed: %v", err)
	}
	if result, exists := mustGet(t, database, "nil-value"); !exists || len(result) != 0 {
		t.Errorf("Nil value resulted in %v, %v", result, exists)
	}

	binaryKey := []byte{0x00, 0x01, 0xfe, 0xff, ':', '*'}
	if err := database.Set(binaryKey, []byte("binary")); err != nil {
		t.Fatalf("Set with binary key failed: %v", err)
	}
	if v, ok, err := database.Get(binaryKey); err != nil || !ok || string(v) != "binary" {
		t.Errorf("Binary key mismatch: %q, %v, %v", v, ok, err)
	}

	largeKey := bytes.Repeat([]byte("k"), 200)
	if err := database.Set(largeKey, []byte("large-key")); err != nil {
		t.Fatalf("Set with large key failed: %v", err)
	}
	if v, ok, _ := database.Get(largeKey); !ok || string(v) != "large-key" {
		t.Errorf("Large key not found after Set")
	}

	largeValue := make([]byte, 1<<20)
	for i := range largeValue {
		largeValue[i] = byte(i % 251)
	}
	if err := database.Set([]byte("large-value"), largeValue); err != nil {
		t.Fatalf("Set with large value failed: %v", err)
	}
	if v, ok := mustGet(t, database, "large-value"); !ok || !bytes.Equal(v, largeValue) {
		t.Errorf("Large value mismatch: found=%v size=%d", ok, len(v))
	}
}

func testFlush(t *testing.T, database db.KVDB) {
	defer database.Close()

	mustSet(t, database, "flush", "value")
	if err := database.Flush(); err != nil {
		t.Errorf("Flush failed: %v", err)
	}
	if err := database.ForceFlush(); err != nil {
		t.Errorf("ForceFlush failed: %v", err)
	}
	if v, ok := mustGet(t, database, "flush"); !ok || string(v) != "value" {
		t.Errorf("Value lost after flush: %s, %v", v, ok)
	}

	info := database.GetInfo()
	if info.DbType == "" {
		t.Errorf("GetInfo should report the implementation")
	}
}

func testClose(t *testing.T, database db.KVDB) {
	mustSet(t, database, "close", "value")

	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	if _, _, err := database.Get([]byte("close")); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Get after Close: expected ErrClosed, got %v", err)
	}
	if err := database.Set([]byte("close"), []byte("x")); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Set after Close: expected ErrClosed, got %v", err)
	}
	if err := database.Scan(nil, func(_, _ []byte) bool { return true }); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Scan after Close: expected ErrClosed, got %v", err)
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	const (
		workers       = 8
		keysPerWorker = 200
	)

	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			prefix := fmt.Sprintf("w%d:", worker)

			for i := 0; i < keysPerWorker; i++ {
				key := []byte(fmt.Sprintf("%s%04d", prefix, i))
				if err := database.Set(key, []byte(fmt.Sprintf("v%d", i))); err != nil {
					failures.Add(1)
					return
				}
			}

			// overwrite every second key, delete every fifth
			for i := 0; i < keysPerWorker; i += 2 {
				key := []byte(fmt.Sprintf("%s%04d", prefix, i))
				if _, _, err := database.Swap(key, []byte("updated")); err != nil {
					failures.Add(1)
				}
			}
			for i := 0; i < keysPerWorker; i += 5 {
				if err := database.Delete([]byte(fmt.Sprintf("%s%04d", prefix, i))); err != nil {
					failures.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	if failures.Load() > 0 {
		t.Fatalf("%d operations failed during concurrent usage", failures.Load())
	}

	for w := 0; w < workers; w++ {
		prefix := fmt.Sprintf("w%d:", w)
		got := collect(t, database, prefix)

		for i := 0; i < keysPerWorker; i++ {
			key := fmt.Sprintf("%s%04d", prefix, i)
			v, ok := got[key]
			switch {
			case i%5 == 0:
				if ok {
					t.Errorf("Key %s should be deleted", key)
				}
			case i%2 == 0:
				if v != "updated" {
					t.Errorf("Key %s = %q, want updated", key, v)
				}
			default:
				if v != fmt.Sprintf("v%d", i) {
					t.Errorf("Key %s = %q, want v%d", key, v, i)
				}
			}
		}
	}
}
