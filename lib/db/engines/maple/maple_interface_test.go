package maple

import (
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
	dbtesting "github.com/ValentinKolb/evkv/lib/db/testing"
)

func newTestDB(t testing.TB, opts *DBOptions) db.KVDB {
	database, err := NewMapleDB(opts)
	if err != nil {
		t.Fatalf("NewMapleDB() error = %v", err)
	}
	return database
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func() db.KVDB {
		return newTestDB(t, nil)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MapleDB", func() db.KVDB {
		return newTestDB(b, nil)
	})
}
