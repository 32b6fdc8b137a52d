package bolt

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"go.etcd.io/bbolt"
)

var log = logger.GetLogger("engine/bolt")

// DefaultBucket is used when Options.Bucket is empty
const DefaultBucket = "evkv"

// Options configures the bolt engine
type Options struct {
	// Path of the database file (required)
	Path string
	// Bucket holding all entries of this handle
	Bucket string
	// NoSync skips fsync after each commit, ForceFlush still syncs
	NoSync bool
	// Timeout for acquiring the file lock (0 = wait forever)
	Timeout time.Duration
}

// boltDB implements db.KVDB with one bbolt bucket.
// Every call is one bbolt transaction, so batches are atomic and scans see a snapshot.
type boltDB struct {
	db     *bbolt.DB
	bucket []byte

	closeLk sync.RWMutex
	closed  bool
}

// Open opens (or creates) a bolt database file and its bucket
func Open(o Options) (db.KVDB, error) {
	if o.Path == "" {
		return nil, fmt.Errorf("bolt: a database path is required")
	}
	bucket := o.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}

	bdb, err := bbolt.Open(o.Path, 0600, &bbolt.Options{Timeout: o.Timeout, NoSync: o.NoSync})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	log.Debugf("opened bolt file %s (bucket %s)", o.Path, bucket)
	return &boltDB{db: bdb, bucket: []byte(bucket)}, nil
}

// --------------------------------------------------------------------------
// Transaction helpers
// --------------------------------------------------------------------------

func (b *boltDB) acquire() (release func(), err error) {
	b.closeLk.RLock()
	if b.closed {
		b.closeLk.RUnlock()
		return nil, db.ErrClosed
	}
	return b.closeLk.RUnlock, nil
}

// view executes fn with the bucket in a read-only transaction
func (b *boltDB) view(fn func(bkt *bbolt.Bucket) error) error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()
	return b.db.View(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket(b.bucket))
	})
}

// update executes fn with the bucket in a read-write transaction
func (b *boltDB) update(fn func(bkt *bbolt.Bucket) error) error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()
	return b.db.Update(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket(b.bucket))
	})
}

// get copies the value out of the mmap, bolt values are only valid inside the transaction
func get(bkt *bbolt.Bucket, key []byte) ([]byte, bool) {
	v := bkt.Get(key)
	if v == nil {
		return nil, false
	}
	return util.CopyValue(v), true
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (b *boltDB) Set(key, value []byte) error {
	return b.update(func(bkt *bbolt.Bucket) error {
		return bkt.Put(key, util.CopyValue(value))
	})
}

func (b *boltDB) SetMany(keys, values [][]byte) error {
	if err := db.CheckBatch(keys, values); err != nil {
		return err
	}
	return b.update(func(bkt *bbolt.Bucket) error {
		for i := range keys {
			if err := bkt.Put(keys[i], util.CopyValue(values[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltDB) Swap(key, value []byte) (old []byte, found bool, err error) {
	err = b.update(func(bkt *bbolt.Bucket) error {
		old, found = get(bkt, key)
		return bkt.Put(key, util.CopyValue(value))
	})
	if err != nil {
		return nil, false, err
	}
	return old, found, nil
}

func (b *boltDB) SetIfAbsent(key, value []byte) (existing []byte, found bool, err error) {
	err = b.update(func(bkt *bbolt.Bucket) error {
		if existing, found = get(bkt, key); found {
			return nil
		}
		return bkt.Put(key, util.CopyValue(value))
	})
	if err != nil {
		return nil, false, err
	}
	return existing, found, nil
}

func (b *boltDB) Delete(key []byte) error {
	return b.update(func(bkt *bbolt.Bucket) error {
		return bkt.Delete(key)
	})
}

func (b *boltDB) DeleteMany(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	return b.update(func(bkt *bbolt.Bucket) error {
		for _, k := range keys {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeletePrefix collects the keys first, deleting through the cursor would skip entries
func (b *boltDB) DeletePrefix(prefix []byte) error {
	return b.update(func(bkt *bbolt.Bucket) error {
		var keys [][]byte
		c := bkt.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, util.CloneBytes(k))
		}
		for _, k := range keys {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (b *boltDB) Get(key []byte) (value []byte, found bool, err error) {
	err = b.view(func(bkt *bbolt.Bucket) error {
		value, found = get(bkt, key)
		return nil
	})
	return value, found, err
}

func (b *boltDB) GetMany(keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	err := b.view(func(bkt *bbolt.Bucket) error {
		for i, k := range keys {
			out[i], _ = get(bkt, k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *boltDB) Has(key []byte) (bool, error) {
	found := false
	err := b.view(func(bkt *bbolt.Bucket) error {
		found = bkt.Get(key) != nil
		return nil
	})
	return found, err
}

// Scan walks the cursor from the first key >= prefix. The callback must not
// write to the same database, bolt may need to remap while the read
// transaction is open.
func (b *boltDB) Scan(prefix []byte, fn db.ScanFunc) error {
	return b.view(func(bkt *bbolt.Bucket) error {
		c := bkt.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
}

func (b *boltDB) Count(prefix []byte) (int, error) {
	if len(prefix) > 0 {
		return db.CountLoop(b, prefix)
	}
	n := 0
	err := b.view(func(bkt *bbolt.Bucket) error {
		n = bkt.Stats().KeyN
		return nil
	})
	return n, err
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Flush is a no-op, every commit is written to the file
func (b *boltDB) Flush() error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	release()
	return nil
}

// ForceFlush fsyncs the file, which matters when NoSync is set
func (b *boltDB) ForceFlush() error {
	release, err := b.acquire()
	if err != nil {
		return err
	}
	defer release()
	return b.db.Sync()
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

const features = db.FeatureOrderedScan | db.FeatureSnapshotScan | db.FeatureAtomicBatch |
	db.FeatureAtomicSwap | db.FeatureDurable

func (b *boltDB) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

// Info is the engine specific metadata reported by GetInfo
type Info struct {
	Path     string `json:"path"`
	Bucket   string `json:"bucket"`
	Depth    int    `json:"depth"`
	FreePage int    `json:"free_pages"`
}

func (b *boltDB) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType:            db.ImplBolt,
		SupportedFeatures: features.Features(),
	}
	_ = b.view(func(bkt *bbolt.Bucket) error {
		stats := bkt.Stats()
		info.Entries = stats.KeyN
		info.SizeBytes = stats.LeafInuse + stats.BranchInuse
		info.Metadata = Info{
			Path:     b.db.Path(),
			Bucket:   string(b.bucket),
			Depth:    stats.Depth,
			FreePage: b.db.Stats().FreePageN,
		}
		return nil
	})
	return info
}

func (b *boltDB) Close() error {
	b.closeLk.Lock()
	defer b.closeLk.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
