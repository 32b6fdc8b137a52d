package leveldb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	lutil "github.com/syndtr/goleveldb/leveldb/util"
)

var log = logger.GetLogger("engine/leveldb")

// Options configures the leveldb engine
type Options struct {
	// Path of the database directory, empty for an in-memory database
	Path string
	// CacheSizeMB is the block cache capacity (0 = goleveldb default of 8 MiB)
	CacheSizeMB int
	// WriteBufferMB is the memtable size (0 = goleveldb default of 4 MiB)
	WriteBufferMB int
	// SyncWrites fsyncs the journal on every write
	SyncWrites bool
}

// levelDB implements db.KVDB on top of goleveldb.
// Reads and scans use an implicit snapshot, every mutating call is one atomic write batch.
type levelDB struct {
	db   *leveldb.DB
	path string
	wo   *opt.WriteOptions

	// writeMu serializes read-modify-write operations with all other writes
	writeMu sync.Mutex

	closeLk sync.RWMutex
	closed  bool
}

// Open opens (or creates) a leveldb database
func Open(o Options) (db.KVDB, error) {
	opts := &opt.Options{
		BlockCacheCapacity: o.CacheSizeMB * opt.MiB,
		WriteBuffer:        o.WriteBufferMB * opt.MiB,
		NoSync:             !o.SyncWrites,
	}

	var (
		ldb *leveldb.DB
		err error
	)
	if o.Path == "" {
		ldb, err = leveldb.Open(storage.NewMemStorage(), opts)
	} else {
		ldb, err = leveldb.OpenFile(o.Path, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %q: %w", o.Path, err)
	}

	log.Debugf("opened leveldb at %q (sync=%v)", o.Path, o.SyncWrites)

	return &levelDB{
		db:   ldb,
		path: o.Path,
		wo:   &opt.WriteOptions{Sync: o.SyncWrites},
	}, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// acquire takes the close lock for the duration of one operation
func (l *levelDB) acquire() (release func(), err error) {
	l.closeLk.RLock()
	if l.closed {
		l.closeLk.RUnlock()
		return nil, db.ErrClosed
	}
	return l.closeLk.RUnlock, nil
}

func (l *levelDB) get(key []byte) ([]byte, bool, error) {
	v, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// goleveldb returns a fresh copy, nil only for empty values
	return util.CopyValue(v), true, nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (l *levelDB) Set(key, value []byte) error {
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.db.Put(key, value, l.wo)
}

func (l *levelDB) SetMany(keys, values [][]byte) error {
	if err := db.CheckBatch(keys, values); err != nil {
		return err
	}
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	batch := leveldb.MakeBatch(len(keys))
	for i := range keys {
		batch.Put(keys[i], values[i])
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.db.Write(batch, l.wo)
}

func (l *levelDB) Swap(key, value []byte) ([]byte, bool, error) {
	release, err := l.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	old, found, err := l.get(key)
	if err != nil {
		return nil, false, err
	}
	if err := l.db.Put(key, value, l.wo); err != nil {
		return nil, false, err
	}
	return old, found, nil
}

func (l *levelDB) SetIfAbsent(key, value []byte) ([]byte, bool, error) {
	release, err := l.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	existing, found, err := l.get(key)
	if err != nil || found {
		return existing, found, err
	}
	return nil, false, l.db.Put(key, value, l.wo)
}

func (l *levelDB) Delete(key []byte) error {
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.db.Delete(key, l.wo)
}

func (l *levelDB) DeleteMany(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	batch := leveldb.MakeBatch(len(keys))
	for _, k := range keys {
		batch.Delete(k)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.db.Write(batch, l.wo)
}

// DeletePrefix removes all keys under prefix in one write batch
func (l *levelDB) DeletePrefix(prefix []byte) error {
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	batch := new(leveldb.Batch)
	iter := l.db.NewIterator(lutil.BytesPrefix(prefix), nil)
	for iter.Next() {
		batch.Delete(iter.Key())
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	return l.db.Write(batch, l.wo)
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (l *levelDB) Get(key []byte) ([]byte, bool, error) {
	release, err := l.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()
	return l.get(key)
}

// GetMany reads all keys from one snapshot
func (l *levelDB) GetMany(keys [][]byte) ([][]byte, error) {
	release, err := l.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	snap, err := l.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, err := snap.Get(k, nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = util.CopyValue(v)
	}
	return out, nil
}

func (l *levelDB) Has(key []byte) (bool, error) {
	release, err := l.acquire()
	if err != nil {
		return false, err
	}
	defer release()
	return l.db.Has(key, nil)
}

// Scan iterates the key range of prefix on an implicit snapshot in key order
func (l *levelDB) Scan(prefix []byte, fn db.ScanFunc) error {
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	iter := l.db.NewIterator(lutil.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

func (l *levelDB) Count(prefix []byte) (int, error) {
	return db.CountLoop(l, prefix)
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Flush is a no-op: goleveldb persists every write to its journal
func (l *levelDB) Flush() error {
	release, err := l.acquire()
	if err != nil {
		return err
	}
	release()
	return nil
}

// ForceFlush writes a synced empty batch so the journal is fsynced and then
// compacts the memtable into sorted tables
func (l *levelDB) ForceFlush() error {
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := l.db.Write(new(leveldb.Batch), &opt.WriteOptions{Sync: true}); err != nil {
		return err
	}
	return l.db.CompactRange(lutil.Range{})
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

const features = db.FeatureOrderedScan | db.FeatureSnapshotScan | db.FeatureAtomicBatch |
	db.FeatureAtomicSwap | db.FeatureDurable

func (l *levelDB) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

// Info is the engine specific metadata reported by GetInfo
type Info struct {
	Path        string `json:"path"`
	Compactions string `json:"compactions,omitempty"`
}

func (l *levelDB) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType:            db.ImplLevelDB,
		SupportedFeatures: features.Features(),
	}

	release, err := l.acquire()
	if err != nil {
		return info
	}
	defer release()

	iter := l.db.NewIterator(nil, nil)
	for iter.Next() {
		info.Entries++
		info.SizeBytes += len(iter.Key()) + len(iter.Value())
	}
	iter.Release()

	stats, _ := l.db.GetProperty("leveldb.stats")
	info.Metadata = Info{Path: l.path, Compactions: stats}
	return info
}

func (l *levelDB) Close() error {
	l.closeLk.Lock()
	defer l.closeLk.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
