package leveldb

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
	dbtesting.RunKVDBTests(t, "LevelDB(memory)", func() db.KVDB {
		return newTestDB(t, Options{})
	})
	dbtesting.RunKVDBTests(t, "LevelDB(disk)", func() db.KVDB {
		return newTestDB(t, Options{Path: filepath.Join(t.TempDir(), "leveldb-test")})
	})
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leveldb-reopen")

	first := newTestDB(t, Options{Path: path, SyncWrites: true})
	if err := first.SetMany([][]byte{[]byte("a"), []byte("b")}, [][]byte{[]byte("1"), []byte("2")}); err != nil {
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
	if v, ok, err := second.Get([]byte("b")); err != nil || !ok || string(v) != "2" {
		t.Errorf("value lost after reopen: %q, %v, %v", v, ok, err)
	}
	if info := second.GetInfo(); info.Entries != 2 {
		t.Errorf("GetInfo().Entries = %d, want 2", info.Entries)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "LevelDB", func() db.KVDB {
		return newTestDB(b, Options{Path: filepath.Join(b.TempDir(), "leveldb-bench")})
	})
}
