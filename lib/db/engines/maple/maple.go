package maple

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/evkv/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/zeebo/xxh3"
)

var log = logger.GetLogger("engine/maple")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Snapshot format version
)

// ErrKeyWidth is returned when a key does not have the configured fixed width
var ErrKeyWidth = errors.New("maple: key has wrong width")

// ErrCorruptSnapshot is returned when a snapshot file fails validation
var ErrCorruptSnapshot = errors.New("maple: corrupt snapshot")

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	keyWidth  int               // required key length (0 = any)
	path      string            // snapshot file ("" = memory only)

	// snapshotMu serializes snapshots with each other
	snapshotMu sync.Mutex
	closed     atomic.Bool
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int    // Number of shards (0 = number of CPUs)
	KeyWidth  int    // If > 0 every key must have exactly this many bytes
	Path      string // Snapshot file loaded on open and written on ForceFlush/Close
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional).
// If a snapshot path is configured and the file exists, its content is loaded.
func NewMapleDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}
	if opts.KeyWidth < 0 {
		return nil, fmt.Errorf("maple: invalid key width %d", opts.KeyWidth)
	}

	shards := make([]*internal.Shard, numShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	maple := &mapleImpl{
		numShards: numShards,
		seed:      util.GenerateSeed(),
		shards:    shards,
		keyWidth:  opts.KeyWidth,
		path:      opts.Path,
	}

	if maple.path != "" {
		f, err := os.Open(maple.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Debugf("no snapshot at %s, starting empty", maple.path)
		case err != nil:
			return nil, err
		default:
			defer f.Close()
			if err := maple.Load(f); err != nil {
				return nil, fmt.Errorf("maple: loading %s: %w", maple.path, err)
			}
		}
	}

	return maple, nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func (maple *mapleImpl) shardFor(key []byte) *internal.Shard {
	return internal.GetShard(util.HashBytes(key, maple.seed), maple.shards)
}

// check validates the state of the database and the width of key
func (maple *mapleImpl) check(key []byte) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	if maple.keyWidth > 0 && len(key) != maple.keyWidth {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrKeyWidth, len(key), maple.keyWidth)
	}
	return nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key, value []byte) error {
	if err := maple.check(key); err != nil {
		return err
	}
	maple.shardFor(key).Data.Store(string(key), util.CopyValue(value))
	return nil
}

// SetMany stores every entry. The batch is not atomic: a concurrent reader
// may observe a part of it.
func (maple *mapleImpl) SetMany(keys, values [][]byte) error {
	if err := db.CheckBatch(keys, values); err != nil {
		return err
	}
	for _, k := range keys {
		if err := maple.check(k); err != nil {
			return err
		}
	}
	for i := range keys {
		maple.shardFor(keys[i]).Data.Store(string(keys[i]), util.CopyValue(values[i]))
	}
	return nil
}

// Swap atomically replaces the value of key and returns the previous one.
func (maple *mapleImpl) Swap(key, value []byte) ([]byte, bool, error) {
	if err := maple.check(key); err != nil {
		return nil, false, err
	}
	old, loaded := maple.shardFor(key).Data.LoadAndStore(string(key), util.CopyValue(value))
	if !loaded {
		return nil, false, nil
	}
	return util.CopyValue(old), true, nil
}

// SetIfAbsent atomically stores value if key is missing.
func (maple *mapleImpl) SetIfAbsent(key, value []byte) ([]byte, bool, error) {
	if err := maple.check(key); err != nil {
		return nil, false, err
	}
	actual, loaded := maple.shardFor(key).Data.LoadOrStore(string(key), util.CopyValue(value))
	if !loaded {
		return nil, false, nil
	}
	return util.CopyValue(actual), true, nil
}

// Delete removes an entry
func (maple *mapleImpl) Delete(key []byte) error {
	if err := maple.check(key); err != nil {
		return err
	}
	maple.shardFor(key).Data.Delete(string(key))
	return nil
}

// DeleteMany removes all given keys
func (maple *mapleImpl) DeleteMany(keys [][]byte) error {
	for _, k := range keys {
		if err := maple.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// DeletePrefix removes all entries starting with prefix
func (maple *mapleImpl) DeletePrefix(prefix []byte) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	p := string(prefix)
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, _ []byte) bool {
			if len(key) >= len(p) && key[:len(p)] == p {
				shard.Data.Delete(key)
			}
			return true
		})
	}
	return nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get returns a copy of the value stored for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key []byte) ([]byte, bool, error) {
	if err := maple.check(key); err != nil {
		return nil, false, err
	}
	v, ok := maple.shardFor(key).Data.Load(string(key))
	if !ok {
		return nil, false, nil
	}
	return util.CopyValue(v), true, nil
}

// GetMany returns one value per key, nil for missing keys
func (maple *mapleImpl) GetMany(keys [][]byte) ([][]byte, error) {
	return db.GetManyLoop(maple, keys)
}

// Has checks whether key exists
func (maple *mapleImpl) Has(key []byte) (bool, error) {
	if err := maple.check(key); err != nil {
		return false, err
	}
	_, ok := maple.shardFor(key).Data.Load(string(key))
	return ok, nil
}

// Scan visits all entries starting with prefix in no particular order.
// Entries written during the scan may or may not be visited.
func (maple *mapleImpl) Scan(prefix []byte, fn db.ScanFunc) error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	cont := true
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			k := []byte(key)
			if bytes.HasPrefix(k, prefix) {
				cont = fn(k, value)
			}
			return cont
		})
		if !cont {
			break
		}
	}
	return nil
}

// Count returns the number of entries starting with prefix
func (maple *mapleImpl) Count(prefix []byte) (int, error) {
	if maple.closed.Load() {
		return 0, db.ErrClosed
	}
	if len(prefix) == 0 {
		n := 0
		for _, shard := range maple.shards {
			n += shard.Data.Size()
		}
		return n, nil
	}
	return db.CountLoop(maple, prefix)
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Flush is a no-op, snapshots are only written by ForceFlush and Close
func (maple *mapleImpl) Flush() error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	return nil
}

// ForceFlush writes a snapshot if a path is configured
func (maple *mapleImpl) ForceFlush() error {
	if maple.closed.Load() {
		return db.ErrClosed
	}
	return maple.writeSnapshot()
}

// writeSnapshot atomically replaces the snapshot file via a temporary file
func (maple *mapleImpl) writeSnapshot() error {
	if maple.path == "" {
		return nil
	}

	maple.snapshotMu.Lock()
	defer maple.snapshotMu.Unlock()

	dir := filepath.Dir(maple.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(maple.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := maple.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), maple.path)
}

// Save writes a fuzzy snapshot of all entries to w.
//
// Format (little endian): magic, version (u8), entry count (u64), then per
// entry key length (u32), key, value length (u32), value, followed by the
// XXH3 checksum (u64) of everything before it.
func (maple *mapleImpl) Save(w io.Writer) error {
	type entry struct {
		key   string
		value []byte
	}

	var entries []entry
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			entries = append(entries, entry{key, value})
			return true
		})
	}

	hasher := xxh3.New()
	bw := bufio.NewWriterSize(io.MultiWriter(w, hasher), 1024*1024) // 1 MB buffer

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(e.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.value))); err != nil {
			return err
		}
		if _, err := bw.Write(e.value); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, hasher.Sum64())
}

// maxEagerChunk is the largest snapshot key or value allocated in one piece
const maxEagerChunk = 64 << 10

// Load replaces the content of the database with the snapshot read from r
func (maple *mapleImpl) Load(r io.Reader) error {
	hasher := xxh3.New()
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer
	tr := io.TeeReader(br, hasher)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(tr, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("%w: magic number mismatch", ErrCorruptSnapshot)
	}

	var version uint8
	if err := binary.Read(tr, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var count uint64
	if err := binary.Read(tr, binary.LittleEndian, &count); err != nil {
		return err
	}

	shards := make([]*internal.Shard, maple.numShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	readChunk := func() ([]byte, error) {
		var n uint32
		if err := binary.Read(tr, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		if n <= maxEagerChunk {
			buf := make([]byte, n)
			_, err := io.ReadFull(tr, buf)
			return buf, err
		}
		// large chunks grow with the data read, a corrupt length ends in
		// io.ErrUnexpectedEOF instead of a huge allocation
		var buf bytes.Buffer
		if _, err := io.CopyN(&buf, tr, int64(n)); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return buf.Bytes(), nil
	}

	for i := uint64(0); i < count; i++ {
		key, err := readChunk()
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrCorruptSnapshot, i, err)
		}
		value, err := readChunk()
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrCorruptSnapshot, i, err)
		}
		internal.GetShard(util.HashBytes(key, maple.seed), shards).Data.Store(string(key), value)
	}

	expected := hasher.Sum64()
	var checksum uint64
	if err := binary.Read(br, binary.LittleEndian, &checksum); err != nil {
		return fmt.Errorf("%w: missing checksum", ErrCorruptSnapshot)
	}
	if checksum != expected {
		return fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	maple.shards = shards
	log.Infof("loaded %d entries from snapshot", count)
	return nil
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

const features = db.FeatureAtomicSwap

// SupportsFeature checks if the database implementation supports the specified feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	return features&feature == feature
}

// MapleInfo is the engine specific metadata reported by GetInfo
type MapleInfo struct {
	Shards       int                    `json:"shards"`
	KeyWidth     int                    `json:"key_width"`
	Snapshot     string                 `json:"snapshot,omitempty"`
	Distribution util.DistributionStats `json:"distribution"`
	ValueSizes   util.HistogramSnapshot `json:"value_sizes"`
}

// GetInfo returns statistics about the database. Value sizes are sampled.
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	const samplesPerShard = 100

	histogram := util.NewSizeHistogram()
	shardSizes := make([]float64, len(maple.shards))
	entries := 0

	for i, shard := range maple.shards {
		count := 0
		shard.Data.Range(func(key string, value []byte) bool {
			histogram.AddSample(len(key) + len(value))
			count++
			return count < samplesPerShard
		})
		size := shard.Data.Size()
		shardSizes[i] = float64(size)
		entries += size
	}

	return db.DatabaseInfo{
		Entries:           entries,
		SizeBytes:         entries * histogram.AverageSize(),
		DbType:            db.ImplMaple,
		SupportedFeatures: features.Features(),
		Metadata: MapleInfo{
			Shards:       maple.numShards,
			KeyWidth:     maple.keyWidth,
			Snapshot:     maple.path,
			Distribution: util.NewDistributionStats(shardSizes),
			ValueSizes:   histogram.Snapshot(),
		},
	}
}

// Close writes a final snapshot (if configured) and releases the data
func (maple *mapleImpl) Close() error {
	if !maple.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := maple.writeSnapshot()
	for _, shard := range maple.shards {
		shard.Data.Clear()
	}
	return err
}
