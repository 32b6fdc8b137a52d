package cache

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/util"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultSize is the number of cached values if no size is given
const DefaultSize = 4096

// cachedDB wraps a db.KVDB with an LRU cache of present values.
//
// Writes invalidate the cached key after the inner write. A read only fills
// the cache if no write happened since it started, so the cache never holds
// a value older than the last completed write.
type cachedDB struct {
	db.KVDB
	cache *lru.Cache

	mu  sync.Mutex // orders fills against invalidations
	gen uint64     // incremented by every write, guarded by mu

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Wrap returns inner with a read cache of size entries (DefaultSize if size <= 0)
func Wrap(inner db.KVDB, size int) (db.KVDB, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &cachedDB{KVDB: inner, cache: c}, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (c *cachedDB) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *cachedDB) fill(gen uint64, key []byte, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.cache.Add(string(key), util.CopyValue(value))
	}
}

func (c *cachedDB) invalidate(keys ...[]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, k := range keys {
		c.cache.Remove(string(k))
	}
}

func (c *cachedDB) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Purge()
}

func (c *cachedDB) lookup(key []byte) ([]byte, bool) {
	v, ok := c.cache.Get(string(key))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return util.CopyValue(v.([]byte)), true
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (c *cachedDB) Set(key, value []byte) error {
	err := c.KVDB.Set(key, value)
	c.invalidate(key)
	return err
}

func (c *cachedDB) SetMany(keys, values [][]byte) error {
	err := c.KVDB.SetMany(keys, values)
	c.invalidate(keys...)
	return err
}

func (c *cachedDB) Swap(key, value []byte) ([]byte, bool, error) {
	old, found, err := c.KVDB.Swap(key, value)
	c.invalidate(key)
	return old, found, err
}

func (c *cachedDB) SetIfAbsent(key, value []byte) ([]byte, bool, error) {
	existing, found, err := c.KVDB.SetIfAbsent(key, value)
	c.invalidate(key)
	return existing, found, err
}

func (c *cachedDB) Delete(key []byte) error {
	err := c.KVDB.Delete(key)
	c.invalidate(key)
	return err
}

func (c *cachedDB) DeleteMany(keys [][]byte) error {
	err := c.KVDB.DeleteMany(keys)
	c.invalidate(keys...)
	return err
}

func (c *cachedDB) DeletePrefix(prefix []byte) error {
	err := c.KVDB.DeletePrefix(prefix)
	c.invalidateAll()
	return err
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (c *cachedDB) Get(key []byte) ([]byte, bool, error) {
	if v, ok := c.lookup(key); ok {
		return v, true, nil
	}
	gen := c.generation()
	value, found, err := c.KVDB.Get(key)
	if err == nil && found {
		c.fill(gen, key, value)
	}
	return value, found, err
}

func (c *cachedDB) GetMany(keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	var missing [][]byte
	var missingIdx []int
	for i, k := range keys {
		if v, ok := c.lookup(k); ok {
			out[i] = v
			continue
		}
		missing = append(missing, k)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	gen := c.generation()
	values, err := c.KVDB.GetMany(missing)
	if err != nil {
		return nil, err
	}
	for j, v := range values {
		out[missingIdx[j]] = v
		if v != nil {
			c.fill(gen, missing[j], v)
		}
	}
	return out, nil
}

func (c *cachedDB) Has(key []byte) (bool, error) {
	if c.cache.Contains(string(key)) {
		return true, nil
	}
	return c.KVDB.Has(key)
}

// --------------------------------------------------------------------------
// Metadata and Lifecycle
// --------------------------------------------------------------------------

// Info is added to the metadata of the wrapped database
type Info struct {
	Size    int         `json:"size"`
	Hits    uint64      `json:"hits"`
	Misses  uint64      `json:"misses"`
	Wrapped interface{} `json:"wrapped,omitempty"`
}

func (c *cachedDB) GetInfo() db.DatabaseInfo {
	info := c.KVDB.GetInfo()
	info.Metadata = Info{
		Size:    c.cache.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Wrapped: info.Metadata,
	}
	return info
}

func (c *cachedDB) Close() error {
	c.invalidateAll()
	return c.KVDB.Close()
}
