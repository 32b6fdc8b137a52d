package store

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/evkv/lib/codec"
	"github.com/ValentinKolb/evkv/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Entry is a single key-value pair of a KeyValueDb.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// KeyValueDb is a typed, named key-value namespace on top of a storage backend.
// Keys are unique and unordered. All methods are safe for concurrent use.
// After Close every method except Close returns db.ErrClosed.
type KeyValueDb[K comparable, V any] interface {
	// Name returns the logical name of the store.
	Name() string

	// Get returns the value for key. found is false if the key does not exist.
	Get(key K) (value V, found bool, err error)
	// GetOrDefault returns the value for key or def if the key does not exist.
	GetOrDefault(key K, def V) (V, error)
	// ContainsKey reports whether key exists.
	ContainsKey(key K) (bool, error)
	// ContainsValue reports whether any key maps to a value with the same encoding as value.
	// This is a full scan.
	ContainsValue(value V) (bool, error)
	// Size returns the number of entries.
	Size() (int, error)
	// IsEmpty reports whether the store has no entries.
	IsEmpty() (bool, error)

	// Set inserts or replaces the value for key.
	Set(key K, value V) error
	// Put sets the value for key and returns the previous value, if any.
	Put(key K, value V) (prev V, found bool, err error)
	// PutIfAbsent sets the value for key only if the key does not exist.
	// If it exists, the existing value is returned and found is true.
	PutIfAbsent(key K, value V) (existing V, found bool, err error)
	// PutIfPresent replaces the value for key only if the key exists and
	// returns the replaced value.
	PutIfPresent(key K, value V) (prev V, found bool, err error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key K) error
	// Remove removes key and returns the removed value, if any.
	Remove(key K) (prev V, found bool, err error)
	// Clear removes every entry of the store.
	Clear() error

	// GetAll returns the values of all keys that exist. Missing keys are absent
	// from the result.
	GetAll(keys []K) (map[K]V, error)
	// PutAll sets every entry of the map in one batch.
	PutAll(entries map[K]V) error
	// RemoveAll removes every key in one batch.
	RemoveAll(keys []K) error

	// Keys returns all keys.
	Keys() ([]K, error)
	// Values returns all values.
	Values() ([]V, error)
	// Entries returns all entries.
	Entries() ([]Entry[K, V], error)
	// ForEach calls fn for every entry until fn returns false.
	ForEach(fn func(key K, value V) bool) error

	// Flush persists buffered writes on a best effort basis.
	Flush() error
	// ForceFlush blocks until all writes are durable.
	ForceFlush() error
	// Info returns metadata about the backend of the store.
	Info() db.DatabaseInfo
	// Close releases the backend. Calling Close more than once is a no-op.
	Close() error
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Backend names a storage backend kind.
type Backend string

const (
	BackendDefault Backend = ""
	BackendLevelDB Backend = "leveldb"
	BackendPebble  Backend = "pebble"
	BackendBadger  Backend = "badger"
	BackendBolt    Backend = "bolt"
	BackendMaple   Backend = "maple"
	BackendRedis   Backend = "redis"
	BackendSQL     Backend = "sql"
	BackendRaft    Backend = "raft"
	BackendRemote  Backend = "remote"
)

// Backends lists every known backend kind.
var Backends = []Backend{
	BackendLevelDB, BackendPebble, BackendBadger, BackendBolt, BackendMaple,
	BackendRedis, BackendSQL, BackendRaft, BackendRemote,
}

// ParseBackend returns the backend kind with the given name (case-insensitive).
func ParseBackend(name string) (Backend, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, b := range Backends {
		if string(b) == name {
			return b, true
		}
	}
	return BackendDefault, false
}

// DbOptions identifies a logical store. The key and value types are the type
// parameters. A nil codec is resolved from the factory's codec registry.
type DbOptions[K comparable, V any] struct {
	Name       string
	Backend    Backend
	KeyCodec   codec.Codec[K]
	ValueCodec codec.Codec[V]
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// PreconditionError is returned when a backend cannot host a store, e.g. a
// fixed-width backend with a variable-size key codec.
type PreconditionError struct {
	Store   string
	Backend Backend
	Reason  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("store %q: backend %s: %s", e.Store, e.Backend, e.Reason)
}

// ConfigError is returned for invalid store options, e.g. when a name is
// requested again with different types.
type ConfigError struct {
	Store  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("store %q: %s", e.Store, e.Reason)
}
