package factory

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/ValentinKolb/evkv/lib/codec"
	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/cache"
	"github.com/ValentinKolb/evkv/lib/db/engines/badger"
	"github.com/ValentinKolb/evkv/lib/db/engines/bolt"
	"github.com/ValentinKolb/evkv/lib/db/engines/leveldb"
	"github.com/ValentinKolb/evkv/lib/db/engines/maple"
	"github.com/ValentinKolb/evkv/lib/db/engines/pebble"
	"github.com/ValentinKolb/evkv/lib/db/engines/raft"
	"github.com/ValentinKolb/evkv/lib/db/engines/redis"
	"github.com/ValentinKolb/evkv/lib/db/engines/sqlblob"
	"github.com/ValentinKolb/evkv/lib/lifetime"
	"github.com/ValentinKolb/evkv/lib/store"
	"github.com/ValentinKolb/evkv/lib/store/kvstore"
	"github.com/ValentinKolb/evkv/lib/store/tracking"
	"github.com/ValentinKolb/evkv/rpc/client"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("store")

// cachedStore is a store opened by the factory together with its types
type cachedStore struct {
	store     any
	keyType   reflect.Type
	valueType reflect.Type
	backend   store.Backend
}

// Factory opens typed stores by name and caches them for the lifetime of the process.
//
// Thread-safety: all methods and GetDb are safe for concurrent use.
type Factory struct {
	settings Settings
	registry *codec.Registry
	lifetime *lifetime.Lifetime
	metrics  *metrics.Set

	stores     *xsync.MapOf[string, *cachedStore]
	codecStats *xsync.MapOf[string, *codec.Stats]

	// openMu serializes opening stores and starting the raft cluster
	openMu  sync.Mutex
	cluster *raft.Cluster
}

// New creates a factory. Codecs that are not given in the store options are
// resolved from registry, every opened store is registered with lt.
func New(settings Settings, registry *codec.Registry, lt *lifetime.Lifetime) (*Factory, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = codec.NewStandardRegistry()
	}
	if lt == nil {
		lt = lifetime.New()
	}
	log.Infof("created store factory")
	log.Debugf(settings.String())
	return &Factory{
		settings:   settings,
		registry:   registry,
		lifetime:   lt,
		metrics:    metrics.NewSet(),
		stores:     xsync.NewMapOf[string, *cachedStore](),
		codecStats: xsync.NewMapOf[string, *codec.Stats](),
	}, nil
}

// Settings returns the settings of the factory
func (f *Factory) Settings() Settings {
	return f.settings
}

// Registry returns the codec registry of the factory
func (f *Factory) Registry() *codec.Registry {
	return f.registry
}

// Lifetime returns the lifetime every store is registered with
func (f *Factory) Lifetime() *lifetime.Lifetime {
	return f.lifetime
}

// Metrics returns the metric set of the tracked stores
func (f *Factory) Metrics() *metrics.Set {
	return f.metrics
}

// CodecStats returns the value size statistics of a store, if codec tracking is enabled
func (f *Factory) CodecStats(name string) (*codec.Stats, bool) {
	return f.codecStats.Load(name)
}

// Names returns the names of all opened stores
func (f *Factory) Names() []string {
	var names []string
	f.stores.Range(func(name string, _ *cachedStore) bool {
		names = append(names, name)
		return true
	})
	return names
}

// BackendOf returns the backend of an opened store
func (f *Factory) BackendOf(name string) (store.Backend, bool) {
	c, ok := f.stores.Load(name)
	if !ok {
		return store.BackendDefault, false
	}
	return c.backend, true
}

// Backend returns the backend kind a store with the requested backend would use.
// Unset and unknown kinds resolve to the default backend.
func (f *Factory) Backend(requested store.Backend) store.Backend {
	if requested == store.BackendDefault {
		return f.settings.DefaultBackend
	}
	b, ok := store.ParseBackend(string(requested))
	if !ok {
		log.Warningf("unknown backend %q, using %s", requested, f.settings.DefaultBackend)
		return f.settings.DefaultBackend
	}
	return b
}

// --------------------------------------------------------------------------
// Store Resolution
// --------------------------------------------------------------------------

// GetDb returns the store for opts.Name, opening it on first use. Later calls
// with the same name return the same store; a call with different key or value
// types fails with a *store.ConfigError.
//
// Codecs resolve as override, then registry; an unknown type fails with a
// *codec.CodecNotFoundError. Backends that cannot host the store fail with a
// *store.PreconditionError.
func GetDb[K comparable, V any](f *Factory, opts store.DbOptions[K, V]) (store.KeyValueDb[K, V], error) {
	if err := kvstore.CheckName(opts.Name); err != nil {
		return nil, &store.ConfigError{Store: opts.Name, Reason: err.Error()}
	}

	if s, ok, err := lookup[K, V](f, opts.Name); ok || err != nil {
		return s, err
	}

	f.openMu.Lock()
	defer f.openMu.Unlock()

	// another caller may have opened the store in the meantime
	if s, ok, err := lookup[K, V](f, opts.Name); ok || err != nil {
		return s, err
	}

	keyCodec, valueCodec, err := resolveCodecs(f, opts)
	if err != nil {
		return nil, err
	}

	backend := f.Backend(opts.Backend)
	keyWidth := 0
	if backend == store.BackendMaple {
		if size := keyCodec.Size(); !size.IsFixed() {
			return nil, &store.PreconditionError{
				Store:   opts.Name,
				Backend: backend,
				Reason:  fmt.Sprintf("key codec must have a fixed size, got %s", size),
			}
		}
		keyWidth = keyCodec.Size().Bytes
	}

	kvdb, prefixed, err := f.open(backend, opts.Name, keyWidth)
	if err != nil {
		return nil, fmt.Errorf("store %q: %w", opts.Name, err)
	}
	if kvdb, err = f.wrap(kvdb, opts.Name); err != nil {
		return nil, err
	}

	s := kvstore.New(kvdb, opts.Name, keyCodec, valueCodec, prefixed)
	if err := f.lifetime.Register("store "+opts.Name, s); err != nil {
		_ = s.Close()
		return nil, err
	}

	f.stores.Store(opts.Name, &cachedStore{
		store:     s,
		keyType:   typeOf[K](),
		valueType: typeOf[V](),
		backend:   backend,
	})
	log.Infof("opened store %q (%s, key %s, value %s)", opts.Name, backend, typeOf[K](), typeOf[V]())
	return s, nil
}

// lookup returns the cached store of name if it has the requested types
func lookup[K comparable, V any](f *Factory, name string) (store.KeyValueDb[K, V], bool, error) {
	c, ok := f.stores.Load(name)
	if !ok {
		return nil, false, nil
	}
	s, ok := c.store.(store.KeyValueDb[K, V])
	if !ok {
		return nil, false, &store.ConfigError{
			Store: name,
			Reason: fmt.Sprintf("already opened as [%s]%s, requested [%s]%s",
				c.keyType, c.valueType, typeOf[K](), typeOf[V]()),
		}
	}
	return s, true, nil
}

func resolveCodecs[K comparable, V any](f *Factory, opts store.DbOptions[K, V]) (codec.Codec[K], codec.Codec[V], error) {
	keyCodec := opts.KeyCodec
	if keyCodec == nil {
		c, err := codec.Resolve[K](f.registry)
		if err != nil {
			return nil, nil, err
		}
		keyCodec = c
	}
	valueCodec := opts.ValueCodec
	if valueCodec == nil {
		c, err := codec.Resolve[V](f.registry)
		if err != nil {
			return nil, nil, err
		}
		valueCodec = c
	}
	if f.settings.TrackCodecs {
		stats, _ := f.codecStats.LoadOrCompute(opts.Name, codec.NewStats)
		valueCodec = codec.Tracked(valueCodec, stats)
	}
	return keyCodec, valueCodec, nil
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// --------------------------------------------------------------------------
// Backend Openers
// --------------------------------------------------------------------------

// wrap applies the optional instrumentation and read cache
func (f *Factory) wrap(kvdb db.KVDB, name string) (db.KVDB, error) {
	if f.settings.Metrics {
		kvdb = tracking.Wrap(kvdb, name, f.metrics)
	}
	if f.settings.ReadCacheSize > 0 {
		cached, err := cache.Wrap(kvdb, f.settings.ReadCacheSize)
		if err != nil {
			_ = kvdb.Close()
			return nil, err
		}
		kvdb = cached
	}
	return kvdb, nil
}

// path returns the file of a store for a file-backed backend, or "" to run in memory
func (f *Factory) path(b store.Backend, name string) string {
	if f.settings.DataDir == "" {
		return ""
	}
	return filepath.Join(f.settings.DataDir, fmt.Sprintf(f.settings.FilePattern(b), name))
}

// open opens the database of one store. prefixed reports whether the database
// is shared and keys must carry the store prefix.
func (f *Factory) open(b store.Backend, name string, keyWidth int) (kvdb db.KVDB, prefixed bool, err error) {
	switch b {
	case store.BackendRedis:
		o := redis.DefaultOptions(f.settings.Redis.Addr)
		o.Password = f.settings.Redis.Password
		o.Database = f.settings.Redis.Database
		o.SaveOnForceFlush = f.settings.Redis.SaveOnForceFlush
		kvdb, err = redis.Open(o)
		return kvdb, true, err
	case store.BackendSQL:
		kvdb, err = sqlblob.Open(sqlblob.Options{
			Dialect:      f.settings.SQL.Dialect,
			DSN:          f.settings.SQL.DSN,
			Table:        f.settings.SQL.Table,
			MaxOpenConns: f.settings.SQL.MaxOpenConns,
		})
		return kvdb, true, err
	case store.BackendRaft:
		kvdb, err = f.openRaft()
		return kvdb, true, err
	case store.BackendRemote:
		kvdb, err = client.Open(f.settings.Remote.ClientConfig, f.settings.Remote.ShardID)
		return kvdb, true, err
	default:
		kvdb, err = f.openLocal(b, f.path(b, name), keyWidth)
		return kvdb, false, err
	}
}

// openLocal opens an embedded engine at path ("" = in memory)
func (f *Factory) openLocal(b store.Backend, path string, keyWidth int) (db.KVDB, error) {
	switch b {
	case store.BackendLevelDB:
		return leveldb.Open(leveldb.Options{
			Path:        path,
			CacheSizeMB: f.settings.CacheSizeMB,
			SyncWrites:  f.settings.SyncWrites,
		})
	case store.BackendPebble:
		return pebble.Open(pebble.Options{
			Path:        path,
			CacheSizeMB: f.settings.CacheSizeMB,
			SyncWrites:  f.settings.SyncWrites,
		})
	case store.BackendBadger:
		o := badger.DefaultOptions(path)
		o.SyncWrites = f.settings.SyncWrites
		return badger.Open(o)
	case store.BackendBolt:
		if path == "" {
			return nil, fmt.Errorf("bolt backend needs a data directory")
		}
		return bolt.Open(bolt.Options{
			Path:   path,
			NoSync: !f.settings.SyncWrites,
		})
	case store.BackendMaple:
		return maple.NewMapleDB(&maple.DBOptions{
			KeyWidth: keyWidth,
			Path:     path,
		})
	default:
		return nil, fmt.Errorf("backend %q is not an embedded engine", b)
	}
}

// openRaft starts the raft cluster on first use and returns a handle to the shard
func (f *Factory) openRaft() (db.KVDB, error) {
	rs := f.settings.Raft
	if f.cluster == nil {
		engine := rs.Engine
		if engine == store.BackendDefault {
			engine = store.BackendLevelDB
		}
		cfg := rs.Config
		if cfg.DataDir == "" && f.settings.DataDir != "" {
			cfg.DataDir = filepath.Join(f.settings.DataDir, "raft")
		}
		cluster, err := raft.NewCluster(cfg, func(shardID, replicaID uint64) (db.KVDB, error) {
			path := ""
			if f.settings.DataDir != "" {
				path = filepath.Join(f.settings.DataDir, fmt.Sprintf(f.settings.FilePattern(engine), fmt.Sprintf("raft-%d-%d", shardID, replicaID)))
			}
			return f.openLocal(engine, path, 0)
		})
		if err != nil {
			return nil, err
		}
		if err := cluster.StartShard(rs.ShardID); err != nil {
			_ = cluster.Close()
			return nil, err
		}
		readyTimeout := rs.ReadyTimeout
		if readyTimeout <= 0 {
			readyTimeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		defer cancel()
		if err := cluster.WaitReady(ctx, rs.ShardID); err != nil {
			_ = cluster.Close()
			return nil, err
		}
		// registered before any raft store, so it is released after all of them
		if err := f.lifetime.Register("raft cluster", lifetime.CloseFunc(cluster.Close)); err != nil {
			_ = cluster.Close()
			return nil, err
		}
		f.cluster = cluster
	}
	return f.cluster.Open(rs.ShardID, raft.Options{Timeout: rs.Timeout}), nil
}
