package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultActiveTimeBuckets are the bucket bounds, in milliseconds, used for
// connection active times.
var DefaultActiveTimeBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Histogram tracks the distribution of values across predefined buckets.
// Thread-safe for concurrent use.
type Histogram struct {
	mu      sync.RWMutex
	buckets []float64 // Upper bounds (inclusive)
	counts  []uint64  // Count per bucket
	sum     float64   // Sum of all observed values
	count   uint64    // Total count of observations
	min     float64   // Minimum observed value
	max     float64   // Maximum observed value
}

// NewHistogram creates a histogram with the given bucket boundaries.
// Buckets are sorted; an empty list falls back to DefaultActiveTimeBuckets.
func NewHistogram(buckets []float64) *Histogram {
	if len(buckets) == 0 {
		buckets = DefaultActiveTimeBuckets
	}
	b := make([]float64, len(buckets))
	copy(b, buckets)
	sort.Float64s(b)

	return &Histogram{
		buckets: b,
		counts:  make([]uint64, len(b)+1), // +1 for overflow bucket
		min:     math.MaxFloat64,
		max:     -math.MaxFloat64,
	}
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := sort.SearchFloat64s(h.buckets, v)
	h.counts[idx]++

	h.sum += v
	h.count++
	if v < h.min {
		h.min = v
	}
	if v > h.max {
		h.max = v
	}
}

// ObserveDuration records d in milliseconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(float64(d) / float64(time.Millisecond))
}

// HistogramSummary contains summarized histogram data.
type HistogramSummary struct {
	Count       uint64             `json:"count"`
	Sum         float64            `json:"sum"`
	Min         float64            `json:"min"`
	Max         float64            `json:"max"`
	Mean        float64            `json:"mean"`
	Buckets     []BucketCount      `json:"buckets"`
	Percentiles map[string]float64 `json:"percentiles,omitempty"`
}

// BucketCount represents a histogram bucket with its upper bound and count.
type BucketCount struct {
	UpperBound float64 `json:"le"`    // Upper bound (less than or equal)
	Count      uint64  `json:"count"` // Cumulative count
}

var summaryPercentiles = []struct {
	key string
	p   float64
}{
	{"p50", 0.5},
	{"p90", 0.9},
	{"p95", 0.95},
	{"p99", 0.99},
}

// Summary returns a summary of the histogram. Percentiles are keyed "p50",
// "p90", "p95" and "p99".
func (h *Histogram) Summary() HistogramSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return HistogramSummary{
			Buckets:     make([]BucketCount, 0),
			Percentiles: make(map[string]float64),
		}
	}

	buckets := make([]BucketCount, len(h.buckets)+1)
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		buckets[i] = BucketCount{
			UpperBound: bound,
			Count:      cumulative,
		}
	}
	cumulative += h.counts[len(h.buckets)]
	buckets[len(h.buckets)] = BucketCount{
		UpperBound: math.Inf(1),
		Count:      cumulative,
	}

	percentiles := make(map[string]float64, len(summaryPercentiles))
	for _, sp := range summaryPercentiles {
		percentiles[sp.key] = h.percentileLocked(sp.p)
	}

	return HistogramSummary{
		Count:       h.count,
		Sum:         h.sum,
		Min:         h.min,
		Max:         h.max,
		Mean:        h.sum / float64(h.count),
		Buckets:     buckets,
		Percentiles: percentiles,
	}
}

// Percentile estimates the p-th percentile (0 < p <= 1).
func (h *Histogram) Percentile(p float64) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.percentileLocked(p)
}

// percentileLocked estimates a percentile from the buckets using linear
// interpolation between bucket boundaries.
func (h *Histogram) percentileLocked(p float64) float64 {
	if h.count == 0 {
		return 0
	}

	rank := p * float64(h.count)
	var cumulative uint64
	for i, c := range h.counts {
		cumulative += c
		if float64(cumulative) < rank || c == 0 {
			continue
		}
		switch {
		case i == 0:
			return math.Min(h.buckets[0]/2, h.max)
		case i >= len(h.buckets):
			return h.max
		default:
			lower := h.buckets[i-1]
			upper := h.buckets[i]
			fraction := (rank - float64(cumulative-c)) / float64(c)
			return lower + fraction*(upper-lower)
		}
	}
	return h.max
}

// Reset clears all histogram data.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.counts {
		h.counts[i] = 0
	}
	h.sum = 0
	h.count = 0
	h.min = math.MaxFloat64
	h.max = -math.MaxFloat64
}

// Count returns the total number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Mean returns the mean of all observations.
func (h *Histogram) Mean() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}
