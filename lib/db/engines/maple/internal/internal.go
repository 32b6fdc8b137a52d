package internal

import (
	"github.com/ValentinKolb/evkv/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database.
// Keys are stored as strings so the map owns an immutable copy of every key.
type Shard struct {
	Data *xsync.MapOf[string, []byte]
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, []byte](),
	}
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](hash util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(hash) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
