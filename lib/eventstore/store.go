package eventstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/ValentinKolb/evkv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("eventstore")

// ErrClosed is returned by every operation on a closed event store except Close.
// It matches db.ErrClosed with errors.Is.
var ErrClosed = fmt.Errorf("eventstore: store is closed: %w", db.ErrClosed)

// --------------------------------------------------------------------------
// Flush Modes
// --------------------------------------------------------------------------

// FlushMode selects how a flush is run
type FlushMode int

const (
	// FlushIncremental writes the cached events to the backend
	FlushIncremental FlushMode = iota
	// FlushFullCompact writes the cached events and asks the backend to flush its
	// own buffers. It is used when the cache reaches the hard limit.
	FlushFullCompact
	// FlushFullClear is FlushFullCompact before the store is closed
	FlushFullClear
)

func (m FlushMode) String() string {
	switch m {
	case FlushIncremental:
		return "INCREMENTAL"
	case FlushFullCompact:
		return "FULL_COMPACT"
	case FlushFullClear:
		return "FULL_CLEAR"
	default:
		return fmt.Sprintf("FlushMode(%d)", int(m))
	}
}

// ParseFlushMode parses the String form of a flush mode (case-insensitive)
func ParseFlushMode(name string) (FlushMode, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "-", "_")
	for _, m := range []FlushMode{FlushIncremental, FlushFullCompact, FlushFullClear} {
		if strings.EqualFold(m.String(), name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown flush mode %q (must be one of INCREMENTAL, FULL_COMPACT, FULL_CLEAR)", name)
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// FlushError is returned when writing a batch to the backend fails. The events
// of the failed batch and of all later batches stay cached; a later flush
// retries them.
type FlushError struct {
	Store   string
	Mode    FlushMode
	Flushed int // keys written before the failure
	Pending int // keys still cached
	Err     error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("eventstore %q: %s flush failed after %d keys (%d pending): %v",
		e.Store, e.Mode, e.Flushed, e.Pending, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// --------------------------------------------------------------------------
// Compaction
// --------------------------------------------------------------------------

// Compacter reduces the cached events of one key before they are appended to
// the persisted events. It must not modify its argument.
type Compacter[E any] interface {
	CompactInMemory(events []E) []E
}

// CompacterFunc adapts a function to a Compacter
type CompacterFunc[E any] func(events []E) []E

func (f CompacterFunc[E]) CompactInMemory(events []E) []E { return f(events) }

// NoCompaction keeps every event
func NoCompaction[E any]() Compacter[E] {
	return CompacterFunc[E](func(events []E) []E { return events })
}

// KeepLast keeps the n most recent events of every flush
func KeepLast[E any](n int) Compacter[E] {
	return CompacterFunc[E](func(events []E) []E {
		if len(events) <= n {
			return events
		}
		return events[len(events)-n:]
	})
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// KeyEventStore is an append-only log of events per key
type KeyEventStore[K comparable, E any] interface {
	Append(key K, event E) error
	GetAll(key K) ([]E, error)
	DeleteAll(key K) error
	Flush() error
	FlushMode(mode FlushMode) error
	ForceFlush() error
	Close() error
}

// Options configures a CachingStore
type Options struct {
	SoftLimit      int // cached events that make Flush write to the backend
	HardLimit      int // cached events that make Append flush synchronously
	FlushBatchSize int // keys per backend round trip
}

// Validate checks the limits
func (o Options) Validate() error {
	if o.SoftLimit <= 0 {
		return fmt.Errorf("eventstore: soft limit must be > 0, got %d", o.SoftLimit)
	}
	if o.HardLimit < o.SoftLimit {
		return fmt.Errorf("eventstore: hard limit %d must be >= soft limit %d", o.HardLimit, o.SoftLimit)
	}
	if o.FlushBatchSize <= 0 {
		return fmt.Errorf("eventstore: flush batch size must be > 0, got %d", o.FlushBatchSize)
	}
	return nil
}

// eventList holds the cached events of one key
type eventList[E any] struct {
	mu     sync.Mutex
	events []E
}

// CachingStore is a KeyEventStore that collects appended events in memory and
// writes them to a KeyValueDb[K, []E] in batches.
//
// The logical event list of a key is the persisted list followed by the cached
// events, each in append order.
//
// Thread-safety: all methods are safe for concurrent use. Append, GetAll and
// key-disjoint cache updates run under a shared lock, DeleteAll and flushes
// hold the exclusive lock.
type CachingStore[K comparable, E any] struct {
	name      string
	db        store.KeyValueDb[K, []E]
	compacter Compacter[E]
	opts      Options

	lock   sync.RWMutex
	cache  *xsync.MapOf[K, *eventList[E]]
	size   atomic.Int64 // cached events
	closed bool

	stats *storeStats
}

// New creates a caching event store on top of db. The store owns db and closes
// it on Close. A nil compacter keeps every event.
func New[K comparable, E any](db store.KeyValueDb[K, []E], compacter Compacter[E], opts Options) (*CachingStore[K, E], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if compacter == nil {
		compacter = NoCompaction[E]()
	}
	s := &CachingStore[K, E]{
		name:      db.Name(),
		db:        db,
		compacter: compacter,
		opts:      opts,
		cache:     xsync.NewMapOf[K, *eventList[E]](),
	}
	s.stats = newStoreStats(func() int64 { return s.size.Load() })
	return s, nil
}

// Name returns the name of the backing store
func (s *CachingStore[K, E]) Name() string {
	return s.name
}

// CachedEvents returns the number of events not yet written to the backend
func (s *CachingStore[K, E]) CachedEvents() int {
	return int(s.size.Load())
}

// CachedKeys returns the number of keys with cached events
func (s *CachingStore[K, E]) CachedKeys() int {
	return s.cache.Size()
}

// Append adds event to the end of the event list of key. If the cache reaches
// the hard limit, the call flushes the cache before it returns.
//
// A *FlushError from Append means the event was cached but the cache could not
// be drained. The event is neither lost nor rejected: a later flush writes it,
// so it must not be appended again.
func (s *CachingStore[K, E]) Append(key K, event E) error {
	s.lock.RLock()
	if s.closed {
		s.lock.RUnlock()
		return ErrClosed
	}
	list, _ := s.cache.LoadOrCompute(key, func() *eventList[E] { return &eventList[E]{} })
	list.mu.Lock()
	list.events = append(list.events, event)
	list.mu.Unlock()
	size := s.size.Add(1)
	s.lock.RUnlock()

	s.stats.appends.Mark(1)

	if size >= int64(s.opts.HardLimit) {
		log.Debugf("%s: %d cached events reached the hard limit", s.name, size)
		return s.FlushMode(FlushFullCompact)
	}
	return nil
}

// GetAll returns the persisted events of key followed by its cached events.
func (s *CachingStore[K, E]) GetAll(key K) ([]E, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	persisted, _, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}

	list, ok := s.cache.Load(key)
	if !ok {
		return persisted, nil
	}
	list.mu.Lock()
	defer list.mu.Unlock()
	result := make([]E, 0, len(persisted)+len(list.events))
	result = append(result, persisted...)
	result = append(result, list.events...)
	return result, nil
}

// DeleteAll removes every cached and persisted event of key.
func (s *CachingStore[K, E]) DeleteAll(key K) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrClosed
	}
	if list, ok := s.cache.LoadAndDelete(key); ok {
		s.size.Add(-int64(len(list.events)))
	}
	return s.db.Delete(key)
}

// Flush writes the cache to the backend if it holds at least SoftLimit events.
func (s *CachingStore[K, E]) Flush() error {
	s.lock.RLock()
	closed := s.closed
	s.lock.RUnlock()
	if closed {
		return ErrClosed
	}
	if s.size.Load() < int64(s.opts.SoftLimit) {
		return nil
	}
	return s.FlushMode(FlushIncremental)
}

// FlushMode writes all cached events to the backend.
func (s *CachingStore[K, E]) FlushMode(mode FlushMode) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.flushLocked(mode)
}

// flushLocked writes the cache in batches of FlushBatchSize keys. The keys of
// every written batch are removed from the cache, so a failed flush can be
// retried without writing any event twice.
//
// Must be called with the write lock held.
func (s *CachingStore[K, E]) flushLocked(mode FlushMode) error {
	if s.cache.Size() == 0 {
		return nil
	}
	start := time.Now()

	keys := make([]K, 0, s.cache.Size())
	s.cache.Range(func(key K, _ *eventList[E]) bool {
		keys = append(keys, key)
		return true
	})

	flushed := 0
	for i := 0; i < len(keys); i += s.opts.FlushBatchSize {
		batch := keys[i:min(i+s.opts.FlushBatchSize, len(keys))]
		if err := s.writeBatch(batch); err != nil {
			s.stats.flushErrors.Inc(1)
			flushErr := &FlushError{
				Store:   s.name,
				Mode:    mode,
				Flushed: flushed,
				Pending: len(keys) - flushed,
				Err:     err,
			}
			log.Warningf("%v", flushErr)
			return flushErr
		}
		for _, key := range batch {
			if list, ok := s.cache.LoadAndDelete(key); ok {
				s.size.Add(-int64(len(list.events)))
			}
		}
		flushed += len(batch)
	}

	if mode != FlushIncremental {
		if err := s.db.Flush(); err != nil {
			return &FlushError{Store: s.name, Mode: mode, Flushed: flushed, Err: err}
		}
	}

	s.stats.flushes.UpdateSince(start)
	log.Debugf("%s: %s flush wrote %d keys in %s", s.name, mode, flushed, time.Since(start))
	return nil
}

// writeBatch appends the compacted cached events of keys to their persisted lists
func (s *CachingStore[K, E]) writeBatch(keys []K) error {
	persisted, err := s.db.GetAll(keys)
	if err != nil {
		return err
	}
	combined := make(map[K][]E, len(keys))
	for _, key := range keys {
		list, ok := s.cache.Load(key)
		if !ok {
			continue
		}
		cached := s.compacter.CompactInMemory(list.events)
		old := persisted[key]
		events := make([]E, 0, len(old)+len(cached))
		events = append(events, old...)
		events = append(events, cached...)
		combined[key] = events
	}
	return s.db.PutAll(combined)
}

// ForceFlush writes all cached events and blocks until the backend made them durable.
func (s *CachingStore[K, E]) ForceFlush() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.flushLocked(FlushFullCompact); err != nil {
		return err
	}
	return s.db.ForceFlush()
}

// Close flushes the cache and closes the backend. If the flush fails, the
// store stays open with the unwritten events cached and Close can be retried.
// Calling Close on a closed store is a no-op.
func (s *CachingStore[K, E]) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	if err := s.flushLocked(FlushFullClear); err != nil {
		return err
	}
	s.closed = true
	s.stats.stop()
	err := s.db.Close()
	if err != nil && !errors.Is(err, db.ErrClosed) {
		return err
	}
	log.Infof("closed event store %s", s.name)
	return nil
}
