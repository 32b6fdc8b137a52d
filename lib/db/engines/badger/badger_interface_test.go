package badger

import (
	"path/filepath"
	"sync"
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
	dbtesting.RunKVDBTests(t, "Badger", func() db.KVDB {
		return newTestDB(t, Options{})
	})
}

// concurrent SetIfAbsent calls on one key must elect exactly one winner
func TestSetIfAbsentConflicts(t *testing.T) {
	database := newTestDB(t, Options{})
	defer database.Close()

	const writers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, found, err := database.SetIfAbsent([]byte("race"), []byte{byte(i)})
			if err != nil {
				t.Errorf("SetIfAbsent failed: %v", err)
				return
			}
			if !found {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badger-reopen")

	first := newTestDB(t, DefaultOptions(path))
	if err := first.Set([]byte("persisted"), []byte("yes")); err != nil {
		t.Fatal(err)
	}
	if err := first.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := newTestDB(t, DefaultOptions(path))
	defer second.Close()
	if v, ok, err := second.Get([]byte("persisted")); err != nil || !ok || string(v) != "yes" {
		t.Errorf("value lost after reopen: %q, %v, %v", v, ok, err)
	}
}
