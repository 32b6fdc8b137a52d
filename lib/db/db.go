package db

import (
	"errors"
	"strings"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplLevelDB Implementation = "leveldb"
	ImplPebble  Implementation = "pebble"
	ImplBadger  Implementation = "badger"
	ImplBolt    Implementation = "bolt"
	ImplMaple   Implementation = "maple"
	ImplRedis   Implementation = "redis"
	ImplSQL     Implementation = "sql"
	ImplRaft    Implementation = "raft"
	ImplRemote  Implementation = "remote"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureOrderedScan  Feature = 1 << iota // Scan visits keys in byte order
	FeatureSnapshotScan                     // Scan iterates a consistent snapshot
	FeatureAtomicBatch                      // SetMany/DeleteMany are applied atomically
	FeatureAtomicSwap                       // Swap/SetIfAbsent are atomic
	FeatureDurable                          // ForceFlush makes all writes durable on disk
	FeatureRemote                           // data lives in another process
	FeatureReplicated                       // writes are replicated before they are acknowledged
)

var featureNames = []struct {
	f    Feature
	name string
}{
	{FeatureOrderedScan, "OrderedScan"},
	{FeatureSnapshotScan, "SnapshotScan"},
	{FeatureAtomicBatch, "AtomicBatch"},
	{FeatureAtomicSwap, "AtomicSwap"},
	{FeatureDurable, "Durable"},
	{FeatureRemote, "Remote"},
	{FeatureReplicated, "Replicated"},
}

func (f Feature) String() string {
	var parts []string
	for _, n := range featureNames {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}

// Features splits f into its single flags
func (f Feature) Features() []Feature {
	var out []Feature
	for _, n := range featureNames {
		if f&n.f != 0 {
			out = append(out, n.f)
		}
	}
	return out
}

type DatabaseInfo struct {
	Name              string         `json:"name"`
	Entries           int            `json:"entries"`
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// ErrClosed is returned by every operation on a closed database (except Close itself)
var ErrClosed = errors.New("db: database is closed")

// ScanFunc is called for every entry visited by Scan. The slices are only valid
// during the call and must be copied to be retained. Returning false stops the scan.
type ScanFunc func(key, value []byte) bool

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines the byte level contract every storage engine implements.
// Keys and values are opaque byte slices. Values returned by read operations
// are owned by the caller, values passed to write operations may be reused by
// the caller after the call returns.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
//
// All methods are safe for concurrent use.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry.
	Set(key, value []byte) error

	// SetMany inserts or updates all entries; keys and values must have the same length.
	// Engines that support FeatureAtomicBatch apply the whole batch atomically.
	SetMany(keys, values [][]byte) error

	// Swap stores value under key and returns the previous value (GETSET).
	Swap(key, value []byte) (old []byte, found bool, err error)

	// SetIfAbsent stores value only if key is missing. If the key exists its current
	// value is returned with found=true and nothing is written.
	SetIfAbsent(key, value []byte) (existing []byte, found bool, err error)

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(key []byte) error

	// DeleteMany removes all given keys.
	DeleteMany(keys [][]byte) error

	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(prefix []byte) error

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key []byte) (value []byte, found bool, err error)

	// GetMany returns one value per key in key order; missing keys yield nil.
	GetMany(keys [][]byte) ([][]byte, error)

	// Has checks whether a key exists in the database.
	Has(key []byte) (bool, error)

	// Scan calls fn for each entry whose key starts with prefix (all entries for
	// an empty prefix) until fn returns false.
	Scan(prefix []byte, fn ScanFunc) error

	// Count returns the number of entries whose key starts with prefix.
	Count(prefix []byte) (int, error)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Flush is a best effort request to persist buffered writes.
	Flush() error

	// ForceFlush blocks until every acknowledged write is durable.
	ForceFlush() error

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close releases all resources. Close is idempotent.
	Close() (err error)
}
