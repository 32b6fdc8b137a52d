package events

import (
	"testing"

	"github.com/ValentinKolb/evkv/lib/store"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func configure(t *testing.T, dataDir string) {
	t.Helper()
	t.Cleanup(viper.Reset)
	viper.Set("default-backend", "leveldb")
	viper.Set("data-dir", dataDir)
	viper.Set("compression", "snappy")
	viper.Set("soft-limit", 8)
	viper.Set("hard-limit", 16)
	viper.Set("flush-batch", 4)
}

func TestGetSettings(t *testing.T) {
	configure(t, t.TempDir())

	s, es, err := getSettings()
	require.NoError(t, err)
	require.Equal(t, store.BackendLevelDB, s.DefaultBackend)
	require.True(t, s.Metrics)
	require.Equal(t, "snappy", es.Compression)
	require.Equal(t, 16, es.HardLimit)

	viper.Set("default-backend", "carrier-pigeon")
	_, _, err = getSettings()
	require.Error(t, err)

	viper.Set("default-backend", "leveldb")
	viper.Set("hard-limit", 2)
	_, _, err = getSettings()
	require.Error(t, err)
}

func TestEventsSurviveRestart(t *testing.T) {
	configure(t, t.TempDir())

	require.NoError(t, setupEventStores(EventCommands, nil))
	require.NoError(t, appendCmd.RunE(appendCmd, []string{"orders", "o-1", "created", "paid"}))
	require.NoError(t, appendCmd.RunE(appendCmd, []string{"orders", "o-1", "shipped"}))
	require.NoError(t, shutdownEventStores(EventCommands, nil))

	require.NoError(t, setupEventStores(EventCommands, nil))
	t.Cleanup(func() { _ = shutdownEventStores(EventCommands, nil) })

	s, err := openStore("orders")
	require.NoError(t, err)
	evs, err := s.GetAll("o-1")
	require.NoError(t, err)
	require.Equal(t, []string{"created", "paid", "shipped"}, evs)

	require.NoError(t, deleteCmd.RunE(deleteCmd, []string{"orders", "o-1"}))
	evs, err = s.GetAll("o-1")
	require.NoError(t, err)
	require.Empty(t, evs)

	require.NoError(t, flushCmd.RunE(flushCmd, []string{"orders"}))
}

func TestGetKeysWrapAround(t *testing.T) {
	benchKeySpread = 3
	t.Cleanup(func() { benchKeySpread = 100 })

	getKey, iter := getKeys("x")
	require.Equal(t, "x-0", getKey(0))
	require.Equal(t, "x-1", getKey(4))

	var keys []string
	iter(func(k string) { keys = append(keys, k) })
	require.Equal(t, []string{"x-0", "x-1", "x-2"}, keys)
}
