package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pzverkov/poolwatch/pkg/admin"
)

// ActiveTimeObserver is an admin.ConnectionListener that keeps an active
// time histogram and a refused counter per pool alias.
type ActiveTimeObserver struct {
	mu      sync.RWMutex
	buckets []float64
	pools   map[string]*poolActivity
}

type poolActivity struct {
	hist    *Histogram
	refused atomic.Uint64
}

var _ admin.ConnectionListener = (*ActiveTimeObserver)(nil)

// NewActiveTimeObserver creates an observer whose histograms use buckets,
// in milliseconds. Nil selects DefaultActiveTimeBuckets.
func NewActiveTimeObserver(buckets []float64) *ActiveTimeObserver {
	if len(buckets) == 0 {
		buckets = DefaultActiveTimeBuckets
	}
	return &ActiveTimeObserver{
		buckets: buckets,
		pools:   make(map[string]*poolActivity),
	}
}

// OnServed implements admin.ConnectionListener.
func (o *ActiveTimeObserver) OnServed(alias string, activeTime time.Duration) {
	if activeTime < 0 {
		activeTime = 0
	}
	o.pool(alias).hist.ObserveDuration(activeTime)
}

// OnRefused implements admin.ConnectionListener.
func (o *ActiveTimeObserver) OnRefused(alias string) {
	o.pool(alias).refused.Add(1)
}

func (o *ActiveTimeObserver) pool(alias string) *poolActivity {
	o.mu.RLock()
	p, ok := o.pools[alias]
	o.mu.RUnlock()
	if ok {
		return p
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.pools[alias]; ok {
		return p
	}
	p = &poolActivity{hist: NewHistogram(o.buckets)}
	o.pools[alias] = p
	return p
}

// Histogram returns the active time histogram of alias.
func (o *ActiveTimeObserver) Histogram(alias string) (*Histogram, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.pools[alias]
	if !ok {
		return nil, false
	}
	return p.hist, true
}

// Refused returns the number of refused requests seen for alias.
func (o *ActiveTimeObserver) Refused(alias string) uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if p, ok := o.pools[alias]; ok {
		return p.refused.Load()
	}
	return 0
}

// Aliases returns the observed pool aliases in sorted order.
func (o *ActiveTimeObserver) Aliases() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	aliases := make([]string, 0, len(o.pools))
	for alias := range o.pools {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Summaries returns the histogram summary of every observed pool.
func (o *ActiveTimeObserver) Summaries() map[string]HistogramSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()
	result := make(map[string]HistogramSummary, len(o.pools))
	for alias, p := range o.pools {
		result[alias] = p.hist.Summary()
	}
	return result
}
