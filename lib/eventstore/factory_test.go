package eventstore

import (
	"testing"

	"github.com/ValentinKolb/evkv/lib/codec"
	"github.com/ValentinKolb/evkv/lib/lifetime"
	"github.com/ValentinKolb/evkv/lib/store"
	"github.com/ValentinKolb/evkv/lib/store/factory"
	"github.com/stretchr/testify/require"
)

func newTestFactory(t *testing.T, dataDir, compression string) (*Factory, *lifetime.Lifetime) {
	lt := lifetime.New()
	settings := factory.DefaultSettings()
	settings.DataDir = dataDir
	stores, err := factory.New(settings, codec.NewStandardRegistry(), lt)
	require.NoError(t, err)

	es := DefaultSettings()
	es.SoftLimit, es.HardLimit, es.FlushBatchSize = 2, 4, 1
	es.Compression = compression
	f, err := NewFactory(stores, es)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lt.Shutdown() })
	return f, lt
}

func TestFactoryGetStore(t *testing.T) {
	for _, compression := range []string{"none", "snappy", "zstd", "lz4"} {
		t.Run(compression, func(t *testing.T) {
			f, _ := newTestFactory(t, "", compression)

			s, err := GetStore(f, StoreOptions[int64, string]{Name: "orders"})
			require.NoError(t, err)

			again, err := GetStore(f, StoreOptions[int64, string]{Name: "orders"})
			require.NoError(t, err)
			require.Same(t, s, again)

			_, err = GetStore(f, StoreOptions[string, string]{Name: "orders"})
			var cfgErr *store.ConfigError
			require.ErrorAs(t, err, &cfgErr)

			for i := 0; i < 10; i++ {
				require.NoError(t, s.Append(int64(i%3), "event"))
			}
			require.NoError(t, s.ForceFlush())

			events, err := s.GetAll(0)
			require.NoError(t, err)
			require.Len(t, events, 4)
		})
	}
}

func TestFactoryShutdownPersists(t *testing.T) {
	dir := t.TempDir()

	f, lt := newTestFactory(t, dir, "snappy")
	s, err := GetStore(f, StoreOptions[string, int64]{Name: "counters", Backend: store.BackendLevelDB})
	require.NoError(t, err)
	require.NoError(t, s.Append("a", 1))
	require.NoError(t, s.Append("a", 2))
	require.NoError(t, lt.Shutdown())

	f, _ = newTestFactory(t, dir, "snappy")
	s, err = GetStore(f, StoreOptions[string, int64]{Name: "counters", Backend: store.BackendLevelDB})
	require.NoError(t, err)
	events, err := s.GetAll("a")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, events)
}

func TestFactoryMissingCodec(t *testing.T) {
	type event struct{ ID int }
	f, _ := newTestFactory(t, "", "none")

	_, err := GetStore(f, StoreOptions[int64, event]{Name: "custom"})
	var notFound *codec.CodecNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	s.Compression = "brotli"
	require.Error(t, s.Validate())

	s = DefaultSettings()
	s.HardLimit = s.SoftLimit - 1
	require.Error(t, s.Validate())

	require.Contains(t, DefaultSettings().String(), "EVENT STORES")
}
