package util

import (
	"math"
	"sort"
	"sync"
)

// ----------------------------------------------------------------------------
// Distribution statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes mean, extremes and the population standard deviation of values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	lo, hi, sum := values[0], values[0], 0.0
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(values))

	var squared float64
	for _, v := range values {
		squared += (v - mean) * (v - mean)
	}

	ratio := 1.0
	if hi > 0 {
		ratio = lo / hi
	}

	return Stats{
		StdDeviation: math.Sqrt(squared / float64(len(values))),
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		MinMaxRatio:  ratio,
	}
}

// DistributionStats rates how evenly entries are spread, e.g. across shards.
type DistributionStats struct {
	Stats
	// DistributionQuality is 1 for a perfectly even spread and approaches 0 for a skewed one
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes quality metrics for the given bucket sizes
func NewDistributionStats(sizes []float64) DistributionStats {
	stats := NewStats(sizes)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// histogramBoundaries are the inclusive upper bounds of all but the last bucket,
// growing by 4x from 16 bytes to 4 GiB.
var histogramBoundaries = []int{
	16, 64, 256, 1024, 4096,
	16384, 65536, 262144, 1048576,
	4194304, 16777216, 67108864,
	268435456, 1073741824, 4294967296,
}

// SizeHistogram tracks the distribution of byte sizes (values, encoded records)
// in exponentially growing buckets.
//
// Thread-safety: all methods are safe for concurrent use.
type SizeHistogram struct {
	mutex   sync.RWMutex
	buckets []int64
	count   int64
	sum     int64
}

// HistogramSnapshot is a point in time summary of a SizeHistogram.
type HistogramSnapshot struct {
	Count   int64 `json:"count"`
	Average int   `json:"average"`
	Median  int   `json:"median"`
	P99     int   `json:"p99"`
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{
		buckets: make([]int64, len(histogramBoundaries)+1),
	}
}

// AddSample records one size
func (h *SizeHistogram) AddSample(size int) {
	bucket := sort.SearchInts(histogramBoundaries, size)

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.buckets[bucket]++
	h.count++
	h.sum += int64(size)
}

// GetCount returns the number of samples
func (h *SizeHistogram) GetCount() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// AverageSize returns the mean of all samples (0 without samples)
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median sample size
func (h *SizeHistogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

// GetPercentileEstimate estimates the given percentile (0-100) from the bucket
// counts. Returns 0 without samples or for an invalid percentile.
func (h *SizeHistogram) GetPercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	var cumulative int64
	for i, count := range h.buckets {
		cumulative += count
		if cumulative >= target {
			return bucketEstimate(i)
		}
	}
	return int(h.sum / h.count)
}

// Snapshot summarizes the histogram
func (h *SizeHistogram) Snapshot() HistogramSnapshot {
	return HistogramSnapshot{
		Count:   h.GetCount(),
		Average: h.AverageSize(),
		Median:  h.MedianEstimate(),
		P99:     h.GetPercentileEstimate(99),
	}
}

// Reset clears all samples
func (h *SizeHistogram) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.count = 0
	h.sum = 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}

// bucketEstimate returns a representative size for bucket i: half the first
// boundary, the midpoint of inner buckets and twice the last boundary.
func bucketEstimate(i int) int {
	switch {
	case i == 0:
		return histogramBoundaries[0] / 2
	case i < len(histogramBoundaries):
		return (histogramBoundaries[i-1] + histogramBoundaries[i]) / 2
	default:
		return histogramBoundaries[len(histogramBoundaries)-1] * 2
	}
}
