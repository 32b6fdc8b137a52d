// Package store provides the typed key-value abstraction of evkv. A store is a
// named, typed namespace (KeyValueDb[K, V]) on top of one of the byte-level
// db.KVDB engines.
//
// Key Components:
//
//   - KeyValueDb Interface: The typed CRUD, bulk and iteration contract. The
//     conditional writes (Put, PutIfAbsent, PutIfPresent, Remove) are built on the
//     engine's Swap and SetIfAbsent, so engines with native atomic operations
//     (Redis GETSET, SQL transactions, the raft state machine) make them atomic.
//
//   - DbOptions: The identity of a logical store: its name, an optional backend
//     kind and optional codec overrides for the key and value types.
//
//   - Errors: PreconditionError for backends that cannot host a store (maple with
//     a variable-size key codec) and ConfigError for invalid or conflicting options.
//     Both are returned at open time and support errors.As.
//
// Implementations:
//
//	- kvstore: the adapter from KeyValueDb to db.KVDB. Keys and values are
//	  converted with codec.Codec values; a prefixed store stores every key as
//	  "<name>:" followed by the encoded key so several stores can share one
//	  physical database.
//	  Available in the "github.com/ValentinKolb/evkv/lib/store/kvstore" package.
//
//	- factory: opens and caches stores by name, resolves codecs from a
//	  codec.Registry, selects the backend and registers every store with a
//	  lifetime so it is flushed and closed on shutdown.
//	  Available in the "github.com/ValentinKolb/evkv/lib/store/factory" package.
//
//	- tracking: a db.KVDB decorator that records operation counts, errors and
//	  latencies as VictoriaMetrics metrics.
//	  Available in the "github.com/ValentinKolb/evkv/lib/store/tracking" package.
package store
