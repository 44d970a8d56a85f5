package window

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Snapshot is the statistics of one closed window. It is created at
// rotation and never modified afterwards, so it can be shared between
// goroutines without copying or locking.
type Snapshot struct {
	token      string
	start      time.Time
	stop       time.Time
	served     uint64
	refused    uint64
	activeTime time.Duration
}

// NewSnapshot builds a closed snapshot from raw values. Windows create their
// own snapshots at rotation; this is for listeners that replay or aggregate
// statistics, and for tests.
func NewSnapshot(token string, start, stop time.Time, served, refused uint64, activeTime time.Duration) *Snapshot {
	return &Snapshot{
		token:      token,
		start:      start,
		stop:       stop,
		served:     served,
		refused:    refused,
		activeTime: activeTime,
	}
}

// Token returns the period token of the window that produced the snapshot.
func (s *Snapshot) Token() string { return s.token }

// StartTime returns the start of the window.
func (s *Snapshot) StartTime() time.Time { return s.start }

// StopTime returns the boundary the window was closed at.
func (s *Snapshot) StopTime() time.Time { return s.stop }

// ServedCount returns the number of connections served in the window.
func (s *Snapshot) ServedCount() uint64 { return s.served }

// RefusedCount returns the number of requests refused in the window.
func (s *Snapshot) RefusedCount() uint64 { return s.refused }

// ActiveTimeTotal returns the summed active time of served connections.
func (s *Snapshot) ActiveTimeTotal() time.Duration { return s.activeTime }

// Duration returns StopTime - StartTime.
func (s *Snapshot) Duration() time.Duration {
	return s.stop.Sub(s.start)
}

// ServedPerSecond returns the served rate, or 0 for an empty interval.
func (s *Snapshot) ServedPerSecond() float64 {
	return perSecond(s.served, s.Duration())
}

// RefusedPerSecond returns the refused rate, or 0 for an empty interval.
func (s *Snapshot) RefusedPerSecond() float64 {
	return perSecond(s.refused, s.Duration())
}

// AverageActiveTime returns ActiveTimeTotal / ServedCount, or 0 when
// nothing was served.
func (s *Snapshot) AverageActiveTime() time.Duration {
	if s.served == 0 {
		return 0
	}
	return s.activeTime / time.Duration(s.served)
}

// RefusedRatio returns refused / (served + refused), or 0 with no traffic.
func (s *Snapshot) RefusedRatio() float64 {
	total := s.served + s.refused
	if total == 0 {
		return 0
	}
	return float64(s.refused) / float64(total)
}

func perSecond(n uint64, d time.Duration) float64 {
	secs := d.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(n) / secs
}

type snapshotJSON struct {
	Token               string    `json:"token"`
	StartTime           time.Time `json:"start_time"`
	StopTime            time.Time `json:"stop_time"`
	ServedCount         uint64    `json:"served_count"`
	RefusedCount        uint64    `json:"refused_count"`
	ServedPerSecond     float64   `json:"served_per_second"`
	RefusedPerSecond    float64   `json:"refused_per_second"`
	AverageActiveTimeMs float64   `json:"average_active_time_ms"`
}

// MarshalJSON encodes the snapshot with its derived rates.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Token:               s.token,
		StartTime:           s.start,
		StopTime:            s.stop,
		ServedCount:         s.served,
		RefusedCount:        s.refused,
		ServedPerSecond:     s.ServedPerSecond(),
		RefusedPerSecond:    s.RefusedPerSecond(),
		AverageActiveTimeMs: float64(s.AverageActiveTime()) / float64(time.Millisecond),
	})
}

// accumulator collects events for the open window. Counters are atomic so
// any number of recorders can share it while holding the window's read lock.
type accumulator struct {
	start      time.Time
	served     atomic.Uint64
	refused    atomic.Uint64
	activeTime atomic.Int64
}

func newAccumulator(start time.Time) *accumulator {
	return &accumulator{start: start}
}

func (a *accumulator) recordServed(activeTime time.Duration) {
	a.served.Add(1)
	a.activeTime.Add(int64(activeTime))
}

func (a *accumulator) recordRefused() {
	a.refused.Add(1)
}

// close stamps the accumulator with stop. The caller must hold the window's
// write lock so no recorder can still be adding to it.
func (a *accumulator) close(token string, stop time.Time) *Snapshot {
	return &Snapshot{
		token:      token,
		start:      a.start,
		stop:       stop,
		served:     a.served.Load(),
		refused:    a.refused.Load(),
		activeTime: time.Duration(a.activeTime.Load()),
	}
}
