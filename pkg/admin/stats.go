package admin

import (
	"sync/atomic"
	"time"
)

// Stats collects lifetime statistics of a pool, independent of any window.
// All fields use atomic operations for thread safety.
type Stats struct {
	// Counters (cumulative since registration)
	servedTotal  atomic.Uint64
	refusedTotal atomic.Uint64

	// Timing accumulators for averages
	totalActiveNanos atomic.Int64

	// Peak tracking
	peakActiveNanos atomic.Int64

	// Last event times, Unix nanoseconds
	lastServed  atomic.Int64
	lastRefused atomic.Int64

	createdAt time.Time
	now       func() time.Time
}

func newStats(now func() time.Time) *Stats {
	return &Stats{
		createdAt: now(),
		now:       now,
	}
}

// recordServed records a served connection.
func (s *Stats) recordServed(activeTime time.Duration) {
	s.servedTotal.Add(1)
	activeNanos := activeTime.Nanoseconds()
	if activeNanos < 0 {
		activeNanos = 0
	}
	s.totalActiveNanos.Add(activeNanos)
	s.updatePeakActive(activeNanos)
	s.lastServed.Store(s.now().UnixNano())
}

// recordRefused records a refused request.
func (s *Stats) recordRefused() {
	s.refusedTotal.Add(1)
	s.lastRefused.Store(s.now().UnixNano())
}

// updatePeakActive updates the peak active time if current is higher.
func (s *Stats) updatePeakActive(current int64) {
	for {
		peak := s.peakActiveNanos.Load()
		if current <= peak {
			return
		}
		if s.peakActiveNanos.CompareAndSwap(peak, current) {
			return
		}
	}
}

// StatsSnapshot is an immutable snapshot of lifetime pool statistics.
type StatsSnapshot struct {
	// Timestamp of the snapshot
	Timestamp time.Time

	// Uptime since registration
	Uptime time.Duration

	// Cumulative counters
	ServedTotal  uint64
	RefusedTotal uint64

	// Total active time of served connections
	ActiveTimeTotal time.Duration

	// Averages and peaks (in milliseconds)
	AvgActiveTimeMs  float64
	PeakActiveTimeMs float64

	// Last event times; zero when no such event happened
	LastServed  time.Time
	LastRefused time.Time
}

// RefusedRatio returns refused / (served + refused), or 0 with no traffic.
func (s StatsSnapshot) RefusedRatio() float64 {
	total := s.ServedTotal + s.RefusedTotal
	if total == 0 {
		return 0
	}
	return float64(s.RefusedTotal) / float64(total)
}

// Snapshot returns an immutable snapshot of current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	now := s.now()

	served := s.servedTotal.Load()
	activeNanos := s.totalActiveNanos.Load()

	var avgActive float64
	if served > 0 {
		avgActive = float64(activeNanos) / float64(served) / 1e6
	}

	return StatsSnapshot{
		Timestamp:        now,
		Uptime:           now.Sub(s.createdAt),
		ServedTotal:      served,
		RefusedTotal:     s.refusedTotal.Load(),
		ActiveTimeTotal:  time.Duration(activeNanos),
		AvgActiveTimeMs:  avgActive,
		PeakActiveTimeMs: float64(s.peakActiveNanos.Load()) / 1e6,
		LastServed:       unixOrZero(s.lastServed.Load()),
		LastRefused:      unixOrZero(s.lastRefused.Load()),
	}
}

func unixOrZero(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
