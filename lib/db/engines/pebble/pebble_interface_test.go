package pebble

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
	dbtesting "github.com/ValentinKolb/evkv/lib/db/testing"
)

func newTestDB(t testing.TB, o Options) db.KVDB {
	database, err := Open(o)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return database
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "Pebble", func() db.KVDB {
		return newTestDB(t, Options{})
	})
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pebble-reopen")

	first := newTestDB(t, Options{Path: path})
	for _, k := range []string{"p:1", "p:2", "q:1"} {
		if err := first.Set([]byte(k), []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	if err := first.DeletePrefix([]byte("p:")); err != nil {
		t.Fatal(err)
	}
	if err := first.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := newTestDB(t, Options{Path: path})
	defer second.Close()
	if n, err := second.Count(nil); err != nil || n != 1 {
		t.Errorf("Count after reopen = %d, %v; want 1", n, err)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "Pebble", func() db.KVDB {
		return newTestDB(b, Options{})
	})
}
