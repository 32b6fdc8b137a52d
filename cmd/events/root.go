package events

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/evkv/cmd/util"
	"github.com/ValentinKolb/evkv/lib/codec"
	"github.com/ValentinKolb/evkv/lib/eventstore"
	"github.com/ValentinKolb/evkv/lib/lifetime"
	"github.com/ValentinKolb/evkv/lib/store"
	"github.com/ValentinKolb/evkv/lib/store/factory"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

var (
	lt          *lifetime.Lifetime
	stopSignals func()
	events      *eventstore.Factory

	// EventCommands represents the event store command group
	EventCommands = &cobra.Command{
		Use:   "events",
		Short: "Append and read events of keys in a local or remote event store",
		Long: util.WrapString("The event stores keep the events of every key as one list value " +
			"in a key-value backend. Local backends store their files in --data-dir, " +
			"the remote backend uses a shard of an evkv server."),
		PersistentPreRunE:  setupEventStores,
		PersistentPostRunE: shutdownEventStores,
	}
)

func init() {
	util.SetupRPCClientFlags(EventCommands)

	def := factory.DefaultSettings()
	esDef := eventstore.DefaultSettings()
	flags := EventCommands.PersistentFlags()

	backends := make([]string, 0, len(store.Backends))
	for _, b := range store.Backends {
		backends = append(backends, string(b))
	}

	flags.Int("shard", int(def.Remote.ShardID), util.WrapString("ID of the shard used by the remote backend"))
	flags.String("data-dir", "data", util.WrapString("Directory of the file-backed backends (empty = in memory)"))
	flags.String("default-backend", string(def.DefaultBackend), util.WrapString(fmt.Sprintf("The default backend of the stores (%s)", strings.Join(backends, ", "))))
	flags.String("compression", esDef.Compression, util.WrapString("Compression of the persisted event lists (none, snappy, zstd, lz4)"))
	flags.Int("soft-limit", esDef.SoftLimit, util.WrapString("Cached events that make a flush write to the backend"))
	flags.Int("hard-limit", esDef.HardLimit, util.WrapString("Cached events that make an append flush synchronously"))
	flags.Int("flush-batch", esDef.FlushBatchSize, util.WrapString("Keys written per backend round trip"))
	flags.Int("read-cache", 0, util.WrapString("Entries of the LRU read cache per store (0 = off)"))
	flags.String("redis-addr", def.Redis.Addr, util.WrapString("Address of the redis server (redis backend)"))
	flags.String("sql-dialect", def.SQL.Dialect, util.WrapString("SQL dialect: sqlite, postgres or mysql (sql backend)"))
	flags.String("sql-dsn", def.SQL.DSN, util.WrapString("Data source name of the sql backend"))

	EventCommands.AddCommand(appendCmd)
	EventCommands.AddCommand(getCmd)
	EventCommands.AddCommand(deleteCmd)
	EventCommands.AddCommand(flushCmd)
	EventCommands.AddCommand(benchCmd)
}

// getSettings reads the store and event store settings from viper
func getSettings() (factory.Settings, eventstore.Settings, error) {
	s := factory.DefaultSettings()

	backend, ok := store.ParseBackend(viper.GetString("default-backend"))
	if !ok {
		return s, eventstore.Settings{}, fmt.Errorf("unknown backend %q", viper.GetString("default-backend"))
	}
	s.DefaultBackend = backend
	s.DataDir = viper.GetString("data-dir")
	s.ReadCacheSize = viper.GetInt("read-cache")
	s.Metrics = true
	s.Redis.Addr = viper.GetString("redis-addr")
	s.SQL.Dialect = viper.GetString("sql-dialect")
	s.SQL.DSN = viper.GetString("sql-dsn")
	s.Remote.ClientConfig = util.GetClientConfig()
	s.Remote.ShardID = util.GetShardID()

	es := eventstore.DefaultSettings()
	es.Compression = viper.GetString("compression")
	es.SoftLimit = viper.GetInt("soft-limit")
	es.HardLimit = viper.GetInt("hard-limit")
	es.FlushBatchSize = viper.GetInt("flush-batch")

	if err := s.Validate(); err != nil {
		return s, es, err
	}
	return s, es, es.Validate()
}

func setupEventStores(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	settings, esSettings, err := getSettings()
	if err != nil {
		return err
	}
	log.Debugf("event store configuration:%s%s", settings.String(), esSettings.String())

	lt = lifetime.New()
	// cached events are flushed when a long running command is interrupted
	stopSignals = lt.ShutdownOnSignal()
	stores, err := factory.New(settings, codec.NewStandardRegistry(), lt)
	if err != nil {
		return err
	}
	events, err = eventstore.NewFactory(stores, esSettings)
	return err
}

func shutdownEventStores(_ *cobra.Command, _ []string) error {
	if lt == nil {
		return nil
	}
	stopSignals()
	return lt.Shutdown()
}

// openStore returns the string event store with the given name
func openStore(name string) (*eventstore.CachingStore[string, string], error) {
	return eventstore.GetStore[string, string](events, eventstore.StoreOptions[string, string]{Name: name})
}

// withStore runs fn on the named store. A failing shutdown is reported
// together with the error of fn.
func withStore(name string, fn func(s *eventstore.CachingStore[string, string]) error) (err error) {
	s, err := openStore(name)
	if err != nil {
		return err
	}
	if err = fn(s); err != nil {
		return multierr.Append(err, lt.Shutdown())
	}
	return nil
}
