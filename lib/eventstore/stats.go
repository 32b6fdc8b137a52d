package eventstore

import (
	"time"

	"github.com/rcrowley/go-metrics"
)

// Stats is a snapshot of the metrics of an event store
type Stats struct {
	Appends      int64         `json:"appends"`
	AppendRate1  float64       `json:"append_rate_1m"`
	Flushes      int64         `json:"flushes"`
	FlushMean    time.Duration `json:"flush_mean"`
	FlushP99     time.Duration `json:"flush_p99"`
	FlushErrors  int64         `json:"flush_errors"`
	CachedEvents int64         `json:"cached_events"`
}

// storeStats holds the live metrics of one store in its own registry
type storeStats struct {
	registry    metrics.Registry
	appends     metrics.Meter
	flushes     metrics.Timer
	flushErrors metrics.Counter
	cached      metrics.Gauge
}

func newStoreStats(cached func() int64) *storeStats {
	r := metrics.NewRegistry()
	return &storeStats{
		registry:    r,
		appends:     metrics.NewRegisteredMeter("appends", r),
		flushes:     metrics.NewRegisteredTimer("flushes", r),
		flushErrors: metrics.NewRegisteredCounter("flush.errors", r),
		cached:      metrics.NewRegisteredFunctionalGauge("cache.events", r, cached),
	}
}

func (s *storeStats) snapshot() Stats {
	appends := s.appends.Snapshot()
	flushes := s.flushes.Snapshot()
	return Stats{
		Appends:      appends.Count(),
		AppendRate1:  appends.Rate1(),
		Flushes:      flushes.Count(),
		FlushMean:    time.Duration(flushes.Mean()),
		FlushP99:     time.Duration(flushes.Percentile(0.99)),
		FlushErrors:  s.flushErrors.Count(),
		CachedEvents: s.cached.Value(),
	}
}

// stop releases the meter goroutines
func (s *storeStats) stop() {
	s.registry.UnregisterAll()
}

// Stats returns a snapshot of the store metrics
func (s *CachingStore[K, E]) Stats() Stats {
	return s.stats.snapshot()
}

// Registry returns the go-metrics registry of the store, e.g. for metrics.WriteOnce
func (s *CachingStore[K, E]) Registry() metrics.Registry {
	return s.stats.registry
}
