package testing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory())
		})

		b.Run("SetExisting", func(b *testing.B) {
			benchmarkSetExisting(b, factory())
		})

		b.Run("SetMany", func(b *testing.B) {
			benchmarkSetMany(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("GetMany", func(b *testing.B) {
			benchmarkGetMany(b, factory())
		})

		b.Run("Has(not)", func(b *testing.B) {
			benchmarkHasNot(b, factory())
		})

		b.Run("Scan", func(b *testing.B) {
			benchmarkScan(b, factory())
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchKey(i int) []byte {
	return []byte(fmt.Sprintf("bench-key-%d", i))
}

func prefill(b *testing.B, database db.KVDB, n int) {
	b.Helper()
	for i := 0; i < n; i++ {
		if err := database.Set(benchKey(i), []byte(fmt.Sprintf("bench-value-%d", i))); err != nil {
			b.Fatalf("prefill failed: %v", err)
		}
	}
}

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	value := []byte("bench-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_ = database.Set(benchKey(r.Int()), value)
		}
	})
}

// Benchmark for Set operation with existing keys
func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	const numKeys = 1000
	prefill(b, database, numKeys)
	value := []byte("bench-value-updated")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_ = database.Set(benchKey(counter%numKeys), value)
			counter++
		}
	})
}

// Benchmark for batched writes of 64 entries
func benchmarkSetMany(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	const batch = 64
	keys := make([][]byte, batch)
	values := make([][]byte, batch)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < batch; j++ {
			keys[j] = benchKey(i*batch + j)
			values[j] = keys[j]
		}
		if err := database.SetMany(keys, values); err != nil {
			b.Fatalf("SetMany failed: %v", err)
		}
	}
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	const numKeys = 1000
	prefill(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _, _ = database.Get(benchKey(counter % numKeys))
			counter++
		}
	})
}

func benchmarkGetMany(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	const numKeys = 1000
	prefill(b, database, numKeys)

	keys := make([][]byte, 64)
	for i := range keys {
		keys[i] = benchKey(i * 13 % numKeys)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := database.GetMany(keys); err != nil {
			b.Fatalf("GetMany failed: %v", err)
		}
	}
}

func benchmarkHasNot(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _ = database.Has(benchKey(counter))
			counter++
		}
	})
}

func benchmarkScan(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	prefill(b, database, 1000)
	prefix := []byte("bench-key-1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = database.Scan(prefix, func(_, _ []byte) bool { return true })
	}
}

// Mixed workload: 70% reads, 20% writes, 10% deletes
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	const numKeys = 1000
	prefill(b, database, numKeys)
	value := []byte("mixed-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := benchKey(r.Intn(numKeys))
			switch op := r.Intn(10); {
			case op < 7:
				_, _, _ = database.Get(key)
			case op < 9:
				_ = database.Set(key, value)
			default:
				_ = database.Delete(key)
			}
		}
	})
}
