package tracking

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/VictoriaMetrics/metrics"
)

// Operation names used as the "op" label
const (
	OpSet          = "set"
	OpSetMany      = "set_many"
	OpSwap         = "swap"
	OpSetIfAbsent  = "set_if_absent"
	OpDelete       = "delete"
	OpDeleteMany   = "delete_many"
	OpDeletePrefix = "delete_prefix"
	OpGet          = "get"
	OpGetMany      = "get_many"
	OpHas          = "has"
	OpScan         = "scan"
	OpCount        = "count"
	OpFlush        = "flush"
	OpForceFlush   = "force_flush"
)

var ops = []string{
	OpSet, OpSetMany, OpSwap, OpSetIfAbsent, OpDelete, OpDeleteMany, OpDeletePrefix,
	OpGet, OpGetMany, OpHas, OpScan, OpCount, OpFlush, OpForceFlush,
}

// opMetrics holds the metrics of one operation of one store
type opMetrics struct {
	requests *metrics.Counter
	errors   *metrics.Counter
	duration *metrics.Histogram
}

func (m *opMetrics) observe(start time.Time, err error) {
	m.requests.Inc()
	if err != nil {
		m.errors.Inc()
	}
	m.duration.UpdateDuration(start)
}

// trackedDB decorates a db.KVDB with per operation metrics
type trackedDB struct {
	db.KVDB
	store string
	ops   map[string]*opMetrics
	keys  *metrics.Counter // keys written by set and set_many
	miss  *metrics.Counter // get calls that found nothing
}

// Info is the metadata of a tracked database
type Info struct {
	Store    string            `json:"store"`
	Requests map[string]uint64 `json:"requests"`
	Errors   map[string]uint64 `json:"errors"`
	Misses   uint64            `json:"misses"`
	Wrapped  interface{}       `json:"wrapped"`
}

// Wrap returns inner with every operation recorded in set under the given store
// name. Wrapping the same store name twice shares the metrics.
func Wrap(inner db.KVDB, store string, set *metrics.Set) db.KVDB {
	t := &trackedDB{
		KVDB:  inner,
		store: store,
		ops:   make(map[string]*opMetrics, len(ops)),
		keys:  set.GetOrCreateCounter(fmt.Sprintf(`evkv_store_keys_written_total{store=%q}`, store)),
		miss:  set.GetOrCreateCounter(fmt.Sprintf(`evkv_store_get_misses_total{store=%q}`, store)),
	}
	for _, op := range ops {
		t.ops[op] = &opMetrics{
			requests: set.GetOrCreateCounter(MetricName("evkv_store_requests_total", store, op)),
			errors:   set.GetOrCreateCounter(MetricName("evkv_store_errors_total", store, op)),
			duration: set.GetOrCreateHistogram(MetricName("evkv_store_request_duration_seconds", store, op)),
		}
	}
	return t
}

// MetricName returns the full name of a per operation metric.
func MetricName(metric, store, op string) string {
	return fmt.Sprintf(`%s{store=%q,op=%q}`, metric, store, op)
}

func (t *trackedDB) Set(key, value []byte) error {
	start := time.Now()
	err := t.KVDB.Set(key, value)
	t.ops[OpSet].observe(start, err)
	if err == nil {
		t.keys.Inc()
	}
	return err
}

func (t *trackedDB) SetMany(keys, values [][]byte) error {
	start := time.Now()
	err := t.KVDB.SetMany(keys, values)
	t.ops[OpSetMany].observe(start, err)
	if err == nil {
		t.keys.Add(len(keys))
	}
	return err
}

func (t *trackedDB) Swap(key, value []byte) ([]byte, bool, error) {
	start := time.Now()
	old, found, err := t.KVDB.Swap(key, value)
	t.ops[OpSwap].observe(start, err)
	return old, found, err
}

func (t *trackedDB) SetIfAbsent(key, value []byte) ([]byte, bool, error) {
	start := time.Now()
	existing, found, err := t.KVDB.SetIfAbsent(key, value)
	t.ops[OpSetIfAbsent].observe(start, err)
	return existing, found, err
}

func (t *trackedDB) Delete(key []byte) error {
	start := time.Now()
	err := t.KVDB.Delete(key)
	t.ops[OpDelete].observe(start, err)
	return err
}

func (t *trackedDB) DeleteMany(keys [][]byte) error {
	start := time.Now()
	err := t.KVDB.DeleteMany(keys)
	t.ops[OpDeleteMany].observe(start, err)
	return err
}

func (t *trackedDB) DeletePrefix(prefix []byte) error {
	start := time.Now()
	err := t.KVDB.DeletePrefix(prefix)
	t.ops[OpDeletePrefix].observe(start, err)
	return err
}

func (t *trackedDB) Get(key []byte) ([]byte, bool, error) {
	start := time.Now()
	value, found, err := t.KVDB.Get(key)
	t.ops[OpGet].observe(start, err)
	if err == nil && !found {
		t.miss.Inc()
	}
	return value, found, err
}

func (t *trackedDB) GetMany(keys [][]byte) ([][]byte, error) {
	start := time.Now()
	values, err := t.KVDB.GetMany(keys)
	t.ops[OpGetMany].observe(start, err)
	return values, err
}

func (t *trackedDB) Has(key []byte) (bool, error) {
	start := time.Now()
	ok, err := t.KVDB.Has(key)
	t.ops[OpHas].observe(start, err)
	return ok, err
}

func (t *trackedDB) Scan(prefix []byte, fn db.ScanFunc) error {
	start := time.Now()
	err := t.KVDB.Scan(prefix, fn)
	t.ops[OpScan].observe(start, err)
	return err
}

func (t *trackedDB) Count(prefix []byte) (int, error) {
	start := time.Now()
	n, err := t.KVDB.Count(prefix)
	t.ops[OpCount].observe(start, err)
	return n, err
}

func (t *trackedDB) Flush() error {
	start := time.Now()
	err := t.KVDB.Flush()
	t.ops[OpFlush].observe(start, err)
	return err
}

func (t *trackedDB) ForceFlush() error {
	start := time.Now()
	err := t.KVDB.ForceFlush()
	t.ops[OpForceFlush].observe(start, err)
	return err
}

func (t *trackedDB) GetInfo() db.DatabaseInfo {
	info := t.KVDB.GetInfo()
	meta := Info{
		Store:    t.store,
		Requests: make(map[string]uint64, len(t.ops)),
		Errors:   make(map[string]uint64),
		Misses:   t.miss.Get(),
		Wrapped:  info.Metadata,
	}
	for op, m := range t.ops {
		if n := m.requests.Get(); n > 0 {
			meta.Requests[op] = n
		}
		if n := m.errors.Get(); n > 0 {
			meta.Errors[op] = n
		}
	}
	info.Metadata = meta
	return info
}
