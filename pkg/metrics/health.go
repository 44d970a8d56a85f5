package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pzverkov/poolwatch/internal/constants"
	"github.com/pzverkov/poolwatch/pkg/admin"
	"github.com/pzverkov/poolwatch/pkg/window"
)

// HealthStatus represents the overall health state.
type HealthStatus string

const (
	// HealthStatusHealthy indicates all checks are passing.
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded indicates a pool refuses too many requests.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy indicates a registered check is failing.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck reports the health of the pools registered with an Admin.
type HealthCheck struct {
	mu              sync.RWMutex
	checks          map[string]CheckFunc
	admin           *admin.Admin
	startTime       time.Time
	version         string
	maxRefusedRatio float64
}

// CheckFunc is a function that performs a health check.
// Returns nil if healthy, or an error describing the problem.
type CheckFunc func() error

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Pools     map[string]PoolHealth  `json:"pools,omitempty"`
}

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// PoolHealth summarizes one pool.
type PoolHealth struct {
	Status       HealthStatus                `json:"status"`
	ServedTotal  uint64                      `json:"served_total"`
	RefusedTotal uint64                      `json:"refused_total"`
	Windows      map[string]*window.Snapshot `json:"windows,omitempty"`
}

// NewHealthCheck creates a health check over a. a may be nil, in which case
// only the registered checks are run.
func NewHealthCheck(a *admin.Admin, version string) *HealthCheck {
	return &HealthCheck{
		checks:          make(map[string]CheckFunc),
		admin:           a,
		startTime:       time.Now(),
		version:         version,
		maxRefusedRatio: constants.DefaultMaxRefusedRatio,
	}
}

// SetMaxRefusedRatio sets the refused share of a completed window above
// which a pool is reported degraded.
func (h *HealthCheck) SetMaxRefusedRatio(ratio float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxRefusedRatio = ratio
}

// AddCheck registers a named health check.
func (h *HealthCheck) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// RemoveCheck removes a named health check.
func (h *HealthCheck) RemoveCheck(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
}

// Check performs all health checks and returns the overall status.
func (h *HealthCheck) Check() HealthResponse {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	maxRatio := h.maxRefusedRatio
	h.mu.RUnlock()

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime).Truncate(time.Second).String(),
		Version:   h.version,
		Checks:    make(map[string]CheckResult),
	}

	hasUnhealthy := false
	hasDegraded := false

	for name, check := range checks {
		start := time.Now()
		err := check()
		latency := time.Since(start)

		result := CheckResult{
			Status:  HealthStatusHealthy,
			Latency: latency.String(),
		}
		if err != nil {
			result.Status = HealthStatusUnhealthy
			result.Message = err.Error()
			hasUnhealthy = true
		}
		response.Checks[name] = result
	}

	if h.admin != nil {
		response.Pools = make(map[string]PoolHealth)
		for _, m := range h.admin.Monitors() {
			ph := poolHealth(m, maxRatio)
			if ph.Status == HealthStatusDegraded {
				hasDegraded = true
			}
			response.Pools[m.Alias()] = ph
		}
	}

	if hasUnhealthy {
		response.Status = HealthStatusUnhealthy
	} else if hasDegraded {
		response.Status = HealthStatusDegraded
	}
	return response
}

func poolHealth(m *admin.PoolMonitor, maxRatio float64) PoolHealth {
	stats := m.Stats()
	ph := PoolHealth{
		Status:       HealthStatusHealthy,
		ServedTotal:  stats.ServedTotal,
		RefusedTotal: stats.RefusedTotal,
		Windows:      m.Statistics(),
	}
	for _, snap := range ph.Windows {
		if snap.RefusedRatio() > maxRatio {
			ph.Status = HealthStatusDegraded
		}
	}
	return ph
}

// RefusedRatioCheck returns a check that fails when the last completed
// window of token in m refused more than maxRatio of its requests. The
// check passes until the window has rotated once.
func RefusedRatioCheck(m *admin.PoolMonitor, token string, maxRatio float64) CheckFunc {
	return func() error {
		snap, ok := m.Statistics()[token]
		if !ok {
			return nil
		}
		if ratio := snap.RefusedRatio(); ratio > maxRatio {
			return fmt.Errorf("pool %s: %s window refused %.0f%% of requests (max %.0f%%)",
				m.Alias(), token, ratio*100, maxRatio*100)
		}
		return nil
	}
}

// Handler returns an http.Handler for the health check endpoint.
func (h *HealthCheck) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := h.Check()

		w.Header().Set("Content-Type", "application/json")

		switch response.Status {
		case HealthStatusHealthy, HealthStatusDegraded:
			w.WriteHeader(http.StatusOK)
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			return
		}
	})
}

// LivenessHandler returns a simple liveness probe handler.
// Returns 200 OK if the service is running.
func (h *HealthCheck) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		}); err != nil {
			return
		}
	})
}

// ReadinessHandler returns a readiness probe handler.
// Returns 200 OK unless a registered check fails.
func (h *HealthCheck) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := h.Check()

		w.Header().Set("Content-Type", "application/json")

		if response.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"status": response.Status,
			"ready":  response.Status != HealthStatusUnhealthy,
		}); err != nil {
			return
		}
	})
}
