// Package factory opens typed stores by logical name.
//
// GetDb resolves a store in these steps:
//
//  1. Cache: one store per name. The first caller decides the key and value
//     types, later callers with other types get a *store.ConfigError.
//  2. Codecs: the codecs in DbOptions win, otherwise they are resolved from the
//     codec.Registry of the factory (*codec.CodecNotFoundError if missing).
//  3. Backend: DbOptions.Backend or Settings.DefaultBackend. Unknown kinds fall
//     back to the default with a warning. maple requires a fixed-size key codec
//     (*store.PreconditionError) and enforces the key width.
//  4. Engine: file-backed engines (leveldb, pebble, badger, bolt, maple) get
//     their own database named by a per-backend pattern such as "leveldb-%s";
//     without a data directory they run in memory. redis, sql, raft and remote
//     stores share one database and prefix their keys with "<name>:".
//  5. Wrappers: optional metrics (tracking), LRU read cache and codec size
//     tracking.
//  6. Lifetime: the store is registered so it is force-flushed and closed on
//     shutdown. The raft cluster is started on first use and released after
//     all stores.
//
// Example:
//
//	f, _ := factory.New(factory.DefaultSettings(), codec.NewStandardRegistry(), lifetime.New())
//	users, err := factory.GetDb(f, store.DbOptions[int64, string]{Name: "users"})
package factory
