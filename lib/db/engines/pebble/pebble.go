package pebble

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/util"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("engine/pebble")

// pebbleLogger routes pebble's internal logging to the package logger
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Panicf(format, args...)
}

// Options configures the pebble engine
type Options struct {
	// Path of the database directory, empty for an in-memory file system
	Path string
	// CacheSizeMB is the block cache size (0 = 8 MiB)
	CacheSizeMB int
	// SyncWrites syncs the WAL on every write
	SyncWrites bool
}

type pebbleDB struct {
	db   *pebble.DB
	path string
	wo   *pebble.WriteOptions

	writeMu sync.Mutex

	closeLk sync.RWMutex
	closed  bool
}

// Open opens (or creates) a pebble database
func Open(o Options) (db.KVDB, error) {
	cacheSize := int64(o.CacheSizeMB) << 20
	if cacheSize <= 0 {
		cacheSize = 8 << 20
	}
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:  cache,
		Logger: pebbleLogger{},
	}
	if o.Path == "" {
		opts.FS = vfs.NewMem()
	}

	pdb, err := pebble.Open(o.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %q: %w", o.Path, err)
	}

	wo := pebble.NoSync
	if o.SyncWrites {
		wo = pebble.Sync
	}

	return &pebbleDB{db: pdb, path: o.Path, wo: wo}, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (p *pebbleDB) acquire() (release func(), err error) {
	p.closeLk.RLock()
	if p.closed {
		p.closeLk.RUnlock()
		return nil, db.ErrClosed
	}
	return p.closeLk.RUnlock, nil
}

func get(r pebble.Reader, key []byte) ([]byte, bool, error) {
	v, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return util.CopyValue(v), true, nil
}

func prefixOptions(prefix []byte) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: util.PrefixEnd(prefix),
	}
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (p *pebbleDB) Set(key, value []byte) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.db.Set(key, value, p.wo)
}

func (p *pebbleDB) SetMany(keys, values [][]byte) error {
	if err := db.CheckBatch(keys, values); err != nil {
		return err
	}
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	batch := p.db.NewBatch()
	defer batch.Close()
	for i := range keys {
		if err := batch.Set(keys[i], values[i], nil); err != nil {
			return err
		}
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return batch.Commit(p.wo)
}

func (p *pebbleDB) Swap(key, value []byte) ([]byte, bool, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	old, found, err := get(p.db, key)
	if err != nil {
		return nil, false, err
	}
	if err := p.db.Set(key, value, p.wo); err != nil {
		return nil, false, err
	}
	return old, found, nil
}

func (p *pebbleDB) SetIfAbsent(key, value []byte) ([]byte, bool, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	existing, found, err := get(p.db, key)
	if err != nil || found {
		return existing, found, err
	}
	return nil, false, p.db.Set(key, value, p.wo)
}

func (p *pebbleDB) Delete(key []byte) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.db.Delete(key, p.wo)
}

func (p *pebbleDB) DeleteMany(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	batch := p.db.NewBatch()
	defer batch.Close()
	for _, k := range keys {
		if err := batch.Delete(k, nil); err != nil {
			return err
		}
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return batch.Commit(p.wo)
}

// DeletePrefix writes a range tombstone for the key range of prefix
func (p *pebbleDB) DeletePrefix(prefix []byte) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if end := util.PrefixEnd(prefix); end != nil {
		return p.db.DeleteRange(prefix, end, p.wo)
	}

	// unbounded range: delete key by key
	batch := p.db.NewBatch()
	defer batch.Close()
	iter := p.db.NewIter(prefixOptions(prefix))
	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(iter.Key(), nil); err != nil {
			iter.Close()
			return err
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	return batch.Commit(p.wo)
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (p *pebbleDB) Get(key []byte) ([]byte, bool, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()
	return get(p.db, key)
}

// GetMany reads all keys from one snapshot
func (p *pebbleDB) GetMany(keys [][]byte) ([][]byte, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	snap := p.db.NewSnapshot()
	defer snap.Close()

	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, found, err := get(snap, k)
		if err != nil {
			return nil, err
		}
		if found {
			out[i] = v
		}
	}
	return out, nil
}

func (p *pebbleDB) Has(key []byte) (bool, error) {
	_, found, err := p.Get(key)
	return found, err
}

// Scan iterates the key range of prefix in key order. Pebble iterators read an
// implicit snapshot taken when the iterator is created.
func (p *pebbleDB) Scan(prefix []byte, fn db.ScanFunc) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	iter := p.db.NewIter(prefixOptions(prefix))
	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Close()
}

func (p *pebbleDB) Count(prefix []byte) (int, error) {
	return db.CountLoop(p, prefix)
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Flush syncs the WAL without waiting for the memtable flush
func (p *pebbleDB) Flush() error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()
	_, err = p.db.AsyncFlush()
	return err
}

// ForceFlush flushes the memtable to sstables and waits for completion
func (p *pebbleDB) ForceFlush() error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()
	return p.db.Flush()
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

const features = db.FeatureOrderedScan | db.FeatureSnapshotScan | db.FeatureAtomicBatch |
	db.FeatureAtomicSwap | db.FeatureDurable

func (p *pebbleDB) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

// Info is the engine specific metadata reported by GetInfo
type Info struct {
	Path       string `json:"path"`
	Levels     string `json:"levels"`
	MemTables  int64  `json:"memtables"`
	DiskUsage  uint64 `json:"disk_usage"`
	Compaction int64  `json:"compactions"`
}

func (p *pebbleDB) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType:            db.ImplPebble,
		SupportedFeatures: features.Features(),
	}

	release, err := p.acquire()
	if err != nil {
		return info
	}
	defer release()

	iter := p.db.NewIter(nil)
	for iter.First(); iter.Valid(); iter.Next() {
		info.Entries++
		info.SizeBytes += len(iter.Key()) + len(iter.Value())
	}
	_ = iter.Close()

	m := p.db.Metrics()
	info.Metadata = Info{
		Path:       p.path,
		Levels:     m.String(),
		MemTables:  m.MemTable.Count,
		DiskUsage:  m.DiskSpaceUsage(),
		Compaction: m.Compact.Count,
	}
	return info
}

func (p *pebbleDB) Close() error {
	p.closeLk.Lock()
	defer p.closeLk.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
