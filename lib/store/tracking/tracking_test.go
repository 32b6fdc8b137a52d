package tracking

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/maple"
	dbtesting "github.com/ValentinKolb/evkv/lib/db/testing"
	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/require"
)

func newTestDB(t testing.TB, set *metrics.Set) db.KVDB {
	inner, err := maple.NewMapleDB(nil)
	require.NoError(t, err)
	return Wrap(inner, "test", set)
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "Tracked(MapleDB)", func() db.KVDB {
		return newTestDB(t, metrics.NewSet())
	})
}

func TestCounters(t *testing.T) {
	set := metrics.NewSet()
	database := newTestDB(t, set)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, database.Set([]byte("a"), []byte("1")))
	require.NoError(t, database.SetMany([][]byte{[]byte("b"), []byte("c")}, [][]byte{[]byte("2"), []byte("3")}))
	_, found, err := database.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = database.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, found)

	require.Equal(t, uint64(1), set.GetOrCreateCounter(MetricName("evkv_store_requests_total", "test", OpSet)).Get())
	require.Equal(t, uint64(2), set.GetOrCreateCounter(MetricName("evkv_store_requests_total", "test", OpGet)).Get())
	require.Equal(t, uint64(3), set.GetOrCreateCounter(`evkv_store_keys_written_total{store="test"}`).Get())
	require.Equal(t, uint64(1), set.GetOrCreateCounter(`evkv_store_get_misses_total{store="test"}`).Get())

	info, ok := database.GetInfo().Metadata.(Info)
	require.True(t, ok)
	require.Equal(t, "test", info.Store)
	require.Equal(t, uint64(2), info.Requests[OpGet])
	require.Equal(t, uint64(1), info.Misses)
	require.Empty(t, info.Errors)

	var buf bytes.Buffer
	set.WritePrometheus(&buf)
	require.Contains(t, buf.String(), `evkv_store_requests_total{store="test",op="get"} 2`)
}

func TestErrorsAreCounted(t *testing.T) {
	set := metrics.NewSet()
	database := newTestDB(t, set)
	require.NoError(t, database.Close())

	err := database.Set([]byte("a"), []byte("1"))
	require.ErrorIs(t, err, db.ErrClosed)

	require.Equal(t, uint64(1), set.GetOrCreateCounter(MetricName("evkv_store_errors_total", "test", OpSet)).Get())
	require.Zero(t, set.GetOrCreateCounter(`evkv_store_keys_written_total{store="test"}`).Get())
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "Tracked(MapleDB)", func() db.KVDB {
		return newTestDB(b, metrics.NewSet())
	})
}
