package eventstore

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/evkv/lib/codec"
	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/leveldb"
	"github.com/ValentinKolb/evkv/lib/store"
	"github.com/ValentinKolb/evkv/lib/store/kvstore"
	"github.com/stretchr/testify/require"
)

var testOptions = Options{SoftLimit: 4, HardLimit: 8, FlushBatchSize: 2}

func newBackingDb(t testing.TB, path string) store.KeyValueDb[int, []string] {
	database, err := leveldb.Open(leveldb.Options{Path: path})
	require.NoError(t, err)
	return kvstore.New(database, "events", codec.Int, codec.ListOf(codec.String, 10), false)
}

func newTestStore(t testing.TB, opts Options, compacter Compacter[string]) (*CachingStore[int, string], store.KeyValueDb[int, []string]) {
	backing := newBackingDb(t, "")
	s, err := New(backing, compacter, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, backing
}

func requireEvents(t *testing.T, s *CachingStore[int, string], key int, want ...string) {
	t.Helper()
	got, err := s.GetAll(key)
	require.NoError(t, err)
	if len(want) == 0 {
		require.Empty(t, got)
		return
	}
	require.Equal(t, want, got)
}

func TestCacheThenPersist(t *testing.T) {
	s, backing := newTestStore(t, testOptions, nil)

	require.NoError(t, s.Append(1, "e1"))
	requireEvents(t, s, 1, "e1")

	require.NoError(t, s.Append(1, "e2"))
	requireEvents(t, s, 1, "e1", "e2")

	require.NoError(t, s.ForceFlush())
	requireEvents(t, s, 1, "e1", "e2")
	require.Zero(t, s.CachedEvents())
	require.Zero(t, s.CachedKeys())

	persisted, found, err := backing.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"e1", "e2"}, persisted)
}

func TestBatchSizeIndependence(t *testing.T) {
	results := make(map[int]map[int][]string)

	for _, batchSize := range []int{1, 10} {
		opts := Options{SoftLimit: 1000, HardLimit: 1000, FlushBatchSize: batchSize}
		s, _ := newTestStore(t, opts, nil)

		for round := 0; round < 3; round++ {
			for key := 0; key < 25; key++ {
				require.NoError(t, s.Append(key, fmt.Sprintf("r%d-k%d", round, key)))
			}
			if round == 1 {
				require.NoError(t, s.FlushMode(FlushIncremental))
			}
		}
		require.NoError(t, s.FlushMode(FlushFullCompact))

		got := make(map[int][]string)
		for key := 0; key < 25; key++ {
			events, err := s.GetAll(key)
			require.NoError(t, err)
			require.Len(t, events, 3)
			got[key] = events
		}
		results[batchSize] = got
	}

	require.Equal(t, results[1], results[10])
	require.Equal(t, []string{"r0-k7", "r1-k7", "r2-k7"}, results[1][7])
}

func TestDeleteThenReappend(t *testing.T) {
	s, _ := newTestStore(t, testOptions, nil)

	require.NoError(t, s.Append(1, "e1"))
	require.NoError(t, s.FlushMode(FlushIncremental))
	require.NoError(t, s.Append(1, "e2"))

	require.NoError(t, s.DeleteAll(1))
	requireEvents(t, s, 1)

	require.NoError(t, s.Append(1, "e3"))
	requireEvents(t, s, 1, "e3")

	require.NoError(t, s.FlushMode(FlushFullClear))
	requireEvents(t, s, 1, "e3")
}

func TestHardLimitBackpressure(t *testing.T) {
	s, _ := newTestStore(t, testOptions, nil)

	for i := 0; i < 100; i++ {
		require.NoError(t, s.Append(i%7, fmt.Sprintf("e%d", i)))
		require.Less(t, s.CachedEvents(), testOptions.HardLimit)
	}

	total := 0
	for key := 0; key < 7; key++ {
		events, err := s.GetAll(key)
		require.NoError(t, err)
		total += len(events)
	}
	require.Equal(t, 100, total)
	require.GreaterOrEqual(t, s.Stats().Flushes, int64(100/testOptions.HardLimit))
}

func TestSoftLimit(t *testing.T) {
	s, _ := newTestStore(t, testOptions, nil)

	for i := 0; i < testOptions.SoftLimit-1; i++ {
		require.NoError(t, s.Append(i, "e"))
	}
	require.NoError(t, s.Flush())
	require.Equal(t, testOptions.SoftLimit-1, s.CachedEvents(), "flush below the soft limit is a no-op")

	require.NoError(t, s.Append(99, "e"))
	require.NoError(t, s.Flush())
	require.Zero(t, s.CachedEvents())
}

func TestScenario(t *testing.T) {
	s, _ := newTestStore(t, testOptions, nil)

	require.NoError(t, s.Append(1, "a"))
	require.NoError(t, s.Append(2, "b"))
	require.NoError(t, s.Append(1, "c"))

	requireEvents(t, s, 1, "a", "c")
	requireEvents(t, s, 2, "b")

	require.NoError(t, s.ForceFlush())

	requireEvents(t, s, 1, "a", "c")
	requireEvents(t, s, 2, "b")
	requireEvents(t, s, 3)
}

func TestCompaction(t *testing.T) {
	s, backing := newTestStore(t, testOptions, KeepLast[string](1))

	require.NoError(t, s.Append(1, "tail"))
	require.NoError(t, s.FlushMode(FlushIncremental))

	require.NoError(t, s.Append(1, "x"))
	require.NoError(t, s.Append(1, "y"))
	require.NoError(t, s.Append(1, "z"))
	requireEvents(t, s, 1, "tail", "x", "y", "z")

	require.NoError(t, s.FlushMode(FlushIncremental))
	requireEvents(t, s, 1, "tail", "z")

	persisted, _, err := backing.Get(1)
	require.NoError(t, err)
	require.Equal(t, []string{"tail", "z"}, persisted)
}

// failingDb fails PutAll calls while failPuts is positive
type failingDb struct {
	store.KeyValueDb[int, []string]
	mu       sync.Mutex
	failPuts int
	okPuts   int
}

var errInjected = errors.New("injected failure")

func (f *failingDb) PutAll(entries map[int][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.okPuts > 0 {
		f.okPuts--
		return f.KeyValueDb.PutAll(entries)
	}
	if f.failPuts > 0 {
		f.failPuts--
		return errInjected
	}
	return f.KeyValueDb.PutAll(entries)
}

func TestFlushFailureIsRetrySafe(t *testing.T) {
	backing := &failingDb{KeyValueDb: newBackingDb(t, ""), okPuts: 1, failPuts: 1}
	s, err := New[int, string](backing, nil, Options{SoftLimit: 100, HardLimit: 100, FlushBatchSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for key := 0; key < 3; key++ {
		require.NoError(t, s.Append(key, fmt.Sprintf("a%d", key)))
		require.NoError(t, s.Append(key, fmt.Sprintf("b%d", key)))
	}

	err = s.FlushMode(FlushFullCompact)
	var flushErr *FlushError
	require.ErrorAs(t, err, &flushErr)
	require.ErrorIs(t, err, errInjected)
	require.Equal(t, 1, flushErr.Flushed)
	require.Equal(t, 2, flushErr.Pending)

	// the failed and unprocessed batches stay cached
	require.Equal(t, 2, s.CachedKeys())
	require.Equal(t, 4, s.CachedEvents())
	require.Equal(t, int64(1), s.Stats().FlushErrors)

	// nothing is lost or duplicated while the cache holds the rest
	for key := 0; key < 3; key++ {
		requireEvents(t, s, key, fmt.Sprintf("a%d", key), fmt.Sprintf("b%d", key))
	}

	require.NoError(t, s.FlushMode(FlushFullCompact))
	require.Zero(t, s.CachedEvents())
	for key := 0; key < 3; key++ {
		requireEvents(t, s, key, fmt.Sprintf("a%d", key), fmt.Sprintf("b%d", key))
	}
}

func TestCloseFlushesAndPersists(t *testing.T) {
	path := t.TempDir()

	s, err := New(newBackingDb(t, path), nil, testOptions)
	require.NoError(t, err)
	require.NoError(t, s.Append(1, "a"))
	require.NoError(t, s.Append(1, "b"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Append(1, "c"), ErrClosed)
	require.ErrorIs(t, s.Append(1, "c"), db.ErrClosed)
	_, err = s.GetAll(1)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.DeleteAll(1), ErrClosed)
	require.ErrorIs(t, s.ForceFlush(), ErrClosed)

	reopened, err := New(newBackingDb(t, path), nil, testOptions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	requireEvents(t, reopened, 1, "a", "b")
}

func TestCloseKeepsCacheOnFailure(t *testing.T) {
	backing := &failingDb{KeyValueDb: newBackingDb(t, ""), failPuts: 1}
	s, err := New[int, string](backing, nil, testOptions)
	require.NoError(t, err)

	require.NoError(t, s.Append(1, "a"))
	var flushErr *FlushError
	require.ErrorAs(t, s.Close(), &flushErr)

	// still open, the retry succeeds
	requireEvents(t, s, 1, "a")
	require.NoError(t, s.Close())
}

func TestFlushAfterClose(t *testing.T) {
	s, err := New(newBackingDb(t, ""), nil, testOptions)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// below the soft limit the closed store must still be reported
	require.ErrorIs(t, s.Flush(), ErrClosed)
	require.ErrorIs(t, s.FlushMode(FlushIncremental), ErrClosed)
}

func TestAppendKeepsEventOnFlushFailure(t *testing.T) {
	backing := &failingDb{KeyValueDb: newBackingDb(t, ""), failPuts: 1}
	s, err := New[int, string](backing, nil, Options{SoftLimit: 1, HardLimit: 2, FlushBatchSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Append(1, "a"))
	err = s.Append(1, "b")
	var flushErr *FlushError
	require.ErrorAs(t, err, &flushErr)
	require.ErrorIs(t, err, errInjected)

	// the event that triggered the failed flush is cached exactly once
	require.Equal(t, 2, s.CachedEvents())
	requireEvents(t, s, 1, "a", "b")

	require.NoError(t, s.FlushMode(FlushFullCompact))
	require.Zero(t, s.CachedEvents())
	requireEvents(t, s, 1, "a", "b")
}

func TestConcurrentAppends(t *testing.T) {
	s, _ := newTestStore(t, Options{SoftLimit: 50, HardLimit: 100, FlushBatchSize: 8}, nil)

	const writers, perWriter = 8, 500
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := s.Append(w, fmt.Sprintf("%d", i)); err != nil {
					t.Errorf("Append() error = %v", err)
					return
				}
				if i%100 == 0 {
					if err := s.Flush(); err != nil {
						t.Errorf("Flush() error = %v", err)
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		events, err := s.GetAll(w)
		require.NoError(t, err)
		require.Len(t, events, perWriter)
		for i, e := range events {
			require.Equal(t, fmt.Sprintf("%d", i), e, "append order of key %d", w)
		}
	}
	require.Equal(t, int64(writers*perWriter), s.Stats().Appends)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"valid", Options{SoftLimit: 1, HardLimit: 1, FlushBatchSize: 1}, false},
		{"zero soft limit", Options{SoftLimit: 0, HardLimit: 1, FlushBatchSize: 1}, true},
		{"hard below soft", Options{SoftLimit: 10, HardLimit: 5, FlushBatchSize: 1}, true},
		{"zero batch", Options{SoftLimit: 1, HardLimit: 1, FlushBatchSize: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseFlushMode(t *testing.T) {
	for _, m := range []FlushMode{FlushIncremental, FlushFullCompact, FlushFullClear} {
		parsed, err := ParseFlushMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, parsed)
	}
	parsed, err := ParseFlushMode("full-clear")
	require.NoError(t, err)
	require.Equal(t, FlushFullClear, parsed)

	_, err = ParseFlushMode("sometimes")
	require.Error(t, err)
}

func BenchmarkAppend(b *testing.B) {
	s, _ := newTestStore(b, Options{SoftLimit: 1 << 12, HardLimit: 1 << 13, FlushBatchSize: 64}, nil)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if err := s.Append(i%1024, "event"); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}
