package metrics

import (
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"
)

func TestHistogramSummary(t *testing.T) {
	h := NewHistogram([]float64{10, 50, 100})

	h.Observe(5)
	h.Observe(15)
	h.Observe(60)
	h.Observe(150)

	summary := h.Summary()

	if summary.Count != 4 {
		t.Errorf("expected count 4, got %d", summary.Count)
	}
	if summary.Min != 5 || summary.Max != 150 {
		t.Errorf("expected min 5 max 150, got %.2f %.2f", summary.Min, summary.Max)
	}
	if summary.Sum != 230 {
		t.Errorf("expected sum 230, got %.2f", summary.Sum)
	}

	// Cumulative: <=10: 1, <=50: 2, <=100: 3, +Inf: 4
	want := []uint64{1, 2, 3, 4}
	if len(summary.Buckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(summary.Buckets))
	}
	for i, w := range want {
		if summary.Buckets[i].Count != w {
			t.Errorf("bucket[%d]: expected %d, got %d", i, w, summary.Buckets[i].Count)
		}
	}
	if !math.IsInf(summary.Buckets[3].UpperBound, 1) {
		t.Errorf("last bucket should be +Inf, got %v", summary.Buckets[3].UpperBound)
	}
}

func TestHistogramBoundIsInclusive(t *testing.T) {
	h := NewHistogram([]float64{10, 20})
	h.Observe(10)

	if got := h.Summary().Buckets[0].Count; got != 1 {
		t.Errorf("value equal to a bound belongs to that bucket, got count %d", got)
	}
}

func TestHistogramEmpty(t *testing.T) {
	h := NewHistogram([]float64{10, 50, 100})

	if h.Count() != 0 || h.Mean() != 0 || h.Percentile(0.5) != 0 {
		t.Errorf("empty histogram should report zeros")
	}

	summary := h.Summary()
	if summary.Count != 0 || len(summary.Buckets) != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
}

func TestHistogramDefaultBuckets(t *testing.T) {
	h := NewHistogram(nil)
	h.ObserveDuration(3 * time.Millisecond)

	summary := h.Summary()
	if len(summary.Buckets) != len(DefaultActiveTimeBuckets)+1 {
		t.Fatalf("expected default buckets, got %d", len(summary.Buckets))
	}
	if summary.Sum != 3 {
		t.Errorf("durations are recorded in milliseconds, got sum %.3f", summary.Sum)
	}
}

func TestHistogramReset(t *testing.T) {
	h := NewHistogram([]float64{10, 50, 100})

	h.Observe(25)
	h.Observe(75)
	h.Reset()

	if h.Count() != 0 {
		t.Errorf("expected count 0 after reset, got %d", h.Count())
	}
	h.Observe(1)
	if s := h.Summary(); s.Min != 1 || s.Max != 1 {
		t.Errorf("min/max not reset: %+v", s)
	}
}

func TestHistogramPercentiles(t *testing.T) {
	h := NewHistogram([]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100})

	for i := 1; i <= 100; i++ {
		h.Observe(float64(i))
	}

	summary := h.Summary()
	for key, want := range map[string]float64{"p50": 50, "p90": 90, "p99": 99} {
		got, ok := summary.Percentiles[key]
		if !ok {
			t.Fatalf("missing percentile %s", key)
		}
		if math.Abs(got-want) > 1 {
			t.Errorf("%s: expected about %.0f, got %.2f", key, want, got)
		}
	}
}

func TestHistogramPercentileOverflow(t *testing.T) {
	h := NewHistogram([]float64{10})
	h.Observe(500)
	h.Observe(700)

	if got := h.Percentile(0.99); got != 700 {
		t.Errorf("overflow percentile should use max, got %.2f", got)
	}
}

func TestHistogramSummaryJSON(t *testing.T) {
	h := NewHistogram([]float64{10})
	h.Observe(5)
	h.Observe(50)

	data, err := json.Marshal(h.Summary())
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}

	var decoded struct {
		Count       uint64             `json:"count"`
		Percentiles map[string]float64 `json:"percentiles"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if decoded.Count != 2 || len(decoded.Percentiles) != 4 {
		t.Errorf("unexpected decoded summary %+v", decoded)
	}
}

func TestHistogramConcurrency(t *testing.T) {
	h := NewHistogram([]float64{10, 50, 100, 500, 1000})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Observe(float64(j))
			}
		}()
	}
	wg.Wait()

	if h.Count() != 1000 {
		t.Errorf("expected count 1000, got %d", h.Count())
	}
}

func TestHistogramUnsortedBuckets(t *testing.T) {
	h := NewHistogram([]float64{100, 10, 50})

	h.Observe(5)
	h.Observe(75)

	summary := h.Summary()
	if summary.Buckets[0].UpperBound != 10 || summary.Buckets[1].UpperBound != 50 {
		t.Errorf("buckets not sorted: %+v", summary.Buckets)
	}
}
