package badger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/util"
	badger "github.com/dgraph-io/badger/v2"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("engine/badger")

// maxConflictRetries bounds the retries of a read-modify-write transaction
const maxConflictRetries = 16

// Options configures the badger engine
type Options struct {
	// Path of the database directory, empty for an in-memory database
	Path string

	// SyncWrites syncs the value log on every commit
	SyncWrites bool

	// GcDiscardRatio is passed to RunValueLogGC
	GcDiscardRatio float64

	// Interval between GC cycles
	//
	// If zero, the engine will perform no automatic garbage collection.
	GcInterval time.Duration

	// Sleep time between rounds of a single GC cycle.
	//
	// If zero, the engine will only perform one round of GC per GcInterval.
	GcSleep time.Duration
}

// DefaultOptions are the default options for an on-disk badger engine
func DefaultOptions(path string) Options {
	return Options{
		Path:           path,
		GcDiscardRatio: 0.5,
		GcInterval:     15 * time.Minute,
		GcSleep:        10 * time.Second,
	}
}

type badgerDB struct {
	db       *badger.DB
	path     string
	inMemory bool

	closeLk   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closing   chan struct{}

	gcDiscardRatio float64
	gcSleep        time.Duration
	gcInterval     time.Duration
}

// Open opens (or creates) a badger database and starts the value log GC
func Open(o Options) (db.KVDB, error) {
	opt := badger.DefaultOptions(o.Path).
		WithSyncWrites(o.SyncWrites).
		WithLogger(log)
	// This is to optimize the database on close so it can be opened
	// read-only and efficiently queried. We don't do that and hanging on
	// stop isn't nice.
	opt.CompactL0OnClose = false

	inMemory := o.Path == ""
	if inMemory {
		opt = opt.WithInMemory(true)
	}

	kv, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", o.Path, err)
	}

	gcSleep := o.GcSleep
	if gcSleep <= 0 {
		// If gcSleep is 0, we don't perform multiple rounds of GC per
		// cycle.
		gcSleep = o.GcInterval
	}

	b := &badgerDB{
		db:             kv,
		path:           o.Path,
		inMemory:       inMemory,
		closing:        make(chan struct{}),
		gcDiscardRatio: o.GcDiscardRatio,
		gcSleep:        gcSleep,
		gcInterval:     o.GcInterval,
	}

	// value log GC is not available in memory mode
	if b.gcInterval > 0 && !inMemory {
		go b.periodicGC()
	}

	return b, nil
}

// --------------------------------------------------------------------------
// Garbage collection
// --------------------------------------------------------------------------

// Keep scheduling GC's AFTER `gcInterval` has passed since the previous GC
func (b *badgerDB) periodicGC() {
	gcTimeout := time.NewTimer(b.gcInterval)
	defer gcTimeout.Stop()

	for {
		select {
		case <-gcTimeout.C:
			switch err := b.gcOnce(); {
			case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
				// No rewrite means we've fully garbage collected.
				// Rejected means someone else is running a GC
				// or we're closing.
				gcTimeout.Reset(b.gcInterval)
			case err == nil:
				gcTimeout.Reset(b.gcSleep)
			case errors.Is(err, db.ErrClosed):
				return
			default:
				log.Errorf("error during a GC cycle: %s", err)
				gcTimeout.Reset(b.gcInterval)
			}
		case <-b.closing:
			return
		}
	}
}

func (b *badgerDB) gcOnce() error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()
	return b.db.RunValueLogGC(b.gcDiscardRatio)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (b *badgerDB) acquire() (release func(), err error) {
	b.closeLk.RLock()
	if b.closed {
		b.closeLk.RUnlock()
		return nil, db.ErrClosed
	}
	return b.closeLk.RUnlock, nil
}

func get(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return util.CopyValue(v), true, nil
}

// update runs fn in a read-write transaction and retries on conflicts
func (b *badgerDB) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (b *badgerDB) Set(key, value []byte) error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()

	return b.update(func(txn *badger.Txn) error {
		return txn.Set(key, util.CopyValue(value))
	})
}

// SetMany writes all entries in one transaction. Batches exceeding badger's
// transaction limits fail with badger.ErrTxnTooBig.
func (b *badgerDB) SetMany(keys, values [][]byte) error {
	if err := db.CheckBatch(keys, values); err != nil {
		return err
	}
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()

	return b.update(func(txn *badger.Txn) error {
		for i := range keys {
			if err := txn.Set(util.CopyValue(keys[i]), util.CopyValue(values[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *badgerDB) Swap(key, value []byte) (old []byte, found bool, err error) {
	release, err := b.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	err = b.update(func(txn *badger.Txn) error {
		var err error
		if old, found, err = get(txn, key); err != nil {
			return err
		}
		return txn.Set(key, util.CopyValue(value))
	})
	if err != nil {
		return nil, false, err
	}
	return old, found, nil
}

func (b *badgerDB) SetIfAbsent(key, value []byte) (existing []byte, found bool, err error) {
	release, err := b.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	err = b.update(func(txn *badger.Txn) error {
		var err error
		if existing, found, err = get(txn, key); err != nil || found {
			return err
		}
		return txn.Set(key, util.CopyValue(value))
	})
	if err != nil {
		return nil, false, err
	}
	return existing, found, nil
}

func (b *badgerDB) Delete(key []byte) error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()

	return b.update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (b *badgerDB) DeleteMany(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()

	return b.update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(util.CopyValue(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeletePrefix drops all keys with the given prefix
func (b *badgerDB) DeletePrefix(prefix []byte) error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()

	return b.update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // only key
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

// key not found is not an error
func (b *badgerDB) Get(key []byte) (value []byte, found bool, err error) {
	release, err := b.acquire()
	if err != nil {
		return nil, false, err
	}
	defer release()

	err = b.db.View(func(txn *badger.Txn) error {
		var err error
		value, found, err = get(txn, key)
		return err
	})
	return value, found, err
}

// GetMany reads all keys in one read-only transaction
func (b *badgerDB) GetMany(keys [][]byte) ([][]byte, error) {
	release, err := b.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([][]byte, len(keys))
	err = b.db.View(func(txn *badger.Txn) error {
		for i, k := range keys {
			v, found, err := get(txn, k)
			if err != nil {
				return err
			}
			if found {
				out[i] = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *badgerDB) Has(key []byte) (bool, error) {
	release, err := b.acquire()
	if err != nil {
		return false, err
	}
	defer release()

	exist := false
	err = b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		case err != nil:
			return err
		}
		exist = true
		return nil
	})
	return exist, err
}

// Scan iterates over the keys of prefix in key order inside one read-only transaction
func (b *badgerDB) Scan(prefix []byte, fn db.ScanFunc) error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		cont := true
		for it.Rewind(); cont && it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				cont = fn(item.Key(), val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Count iterates over keys only
func (b *badgerDB) Count(prefix []byte) (int, error) {
	release, err := b.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	n := 0
	err = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // only key
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Flush is a no-op, badger commits are written to the value log immediately
func (b *badgerDB) Flush() error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	release()
	return nil
}

// ForceFlush syncs the value log to disk
func (b *badgerDB) ForceFlush() error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()

	if b.inMemory {
		return nil
	}
	return b.db.Sync()
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

const features = db.FeatureOrderedScan | db.FeatureSnapshotScan | db.FeatureAtomicBatch |
	db.FeatureAtomicSwap | db.FeatureDurable

func (b *badgerDB) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

// Info is the engine specific metadata reported by GetInfo
type Info struct {
	Path      string `json:"path"`
	InMemory  bool   `json:"in_memory"`
	LSMSize   int64  `json:"lsm_size"`
	VLogSize  int64  `json:"vlog_size"`
	GCEnabled bool   `json:"gc_enabled"`
}

func (b *badgerDB) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType:            db.ImplBadger,
		SupportedFeatures: features.Features(),
	}

	release, err := b.acquire()
	if err != nil {
		return info
	}
	defer release()

	lsm, vlog := b.db.Size()
	info.SizeBytes = int(lsm + vlog)
	_ = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			info.Entries++
		}
		return nil
	})
	info.Metadata = Info{
		Path:      b.path,
		InMemory:  b.inMemory,
		LSMSize:   lsm,
		VLogSize:  vlog,
		GCEnabled: b.gcInterval > 0 && !b.inMemory,
	}
	return info
}

func (b *badgerDB) Close() error {
	b.closeOnce.Do(func() {
		close(b.closing)
	})
	b.closeLk.Lock()
	defer b.closeLk.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
