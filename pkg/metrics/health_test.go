package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHealthCheckBasic(t *testing.T) {
	h := NewHealthCheck(nil, "1.0.0")

	response := h.Check()

	if response.Status != HealthStatusHealthy {
		t.Errorf("expected healthy status, got %s", response.Status)
	}
	if response.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %s", response.Version)
	}
	if response.Uptime == "" {
		t.Error("expected non-empty uptime")
	}
	if response.Pools != nil {
		t.Error("expected no pools without an admin")
	}
}

func TestHealthCheckWithFailingCheck(t *testing.T) {
	h := NewHealthCheck(nil, "1.0.0")

	h.AddCheck("passing", func() error { return nil })
	h.AddCheck("failing", func() error { return errors.New("something went wrong") })

	response := h.Check()

	if response.Status != HealthStatusUnhealthy {
		t.Errorf("expected unhealthy status, got %s", response.Status)
	}
	if response.Checks["passing"].Status != HealthStatusHealthy {
		t.Error("expected passing check to be healthy")
	}
	if response.Checks["failing"].Message != "something went wrong" {
		t.Errorf("unexpected message %q", response.Checks["failing"].Message)
	}

	h.RemoveCheck("failing")
	if got := h.Check().Status; got != HealthStatusHealthy {
		t.Errorf("expected healthy after removing failing check, got %s", got)
	}
}

func TestHealthCheckPools(t *testing.T) {
	a, m, clock := newTestAdmin(t)
	h := NewHealthCheck(a, "test")

	m.OnServed(5 * time.Millisecond)
	m.OnRefused()
	m.OnRefused()

	response := h.Check()
	pool, ok := response.Pools["db1"]
	if !ok {
		t.Fatal("expected pool db1 in response")
	}
	if pool.Status != HealthStatusHealthy || len(pool.Windows) != 0 {
		t.Errorf("no window has closed yet, got %+v", pool)
	}

	rotate(clock, m)

	response = h.Check()
	if response.Status != HealthStatusDegraded {
		t.Errorf("2 of 3 refused should degrade, got %s", response.Status)
	}
	pool = response.Pools["db1"]
	if pool.ServedTotal != 1 || pool.RefusedTotal != 2 {
		t.Errorf("unexpected totals %+v", pool)
	}
	if _, ok := pool.Windows["10s"]; !ok {
		t.Error("expected 10s window in pool health")
	}

	h.SetMaxRefusedRatio(0.9)
	if got := h.Check().Status; got != HealthStatusHealthy {
		t.Errorf("expected healthy with a 90%% threshold, got %s", got)
	}
}

func TestRefusedRatioCheck(t *testing.T) {
	_, m, clock := newTestAdmin(t)
	check := RefusedRatioCheck(m, "10s", 0.25)

	m.OnRefused()
	if err := check(); err != nil {
		t.Errorf("check should pass before the first rotation, got %v", err)
	}

	m.OnServed(0)
	rotate(clock, m)

	err := check()
	if err == nil {
		t.Fatal("expected 50% refused to fail a 25% check")
	}
	if !strings.Contains(err.Error(), "db1") {
		t.Errorf("error should name the pool: %v", err)
	}

	if err := RefusedRatioCheck(m, "1m", 0.25)(); err != nil {
		t.Errorf("unknown token should pass, got %v", err)
	}
}

func TestHealthCheckHandler(t *testing.T) {
	a, m, clock := newTestAdmin(t)
	h := NewHealthCheck(a, "1.0.0")

	m.OnServed(time.Millisecond)
	rotate(clock, m)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var response struct {
		Status string `json:"status"`
		Pools  map[string]struct {
			Windows map[string]struct {
				ServedCount uint64 `json:"served_count"`
			} `json:"windows"`
		} `json:"pools"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", response.Status)
	}
	if got := response.Pools["db1"].Windows["10s"].ServedCount; got != 1 {
		t.Errorf("expected served_count 1, got %d", got)
	}
}

func TestHealthCheckHandlerUnhealthy(t *testing.T) {
	h := NewHealthCheck(nil, "1.0.0")
	h.AddCheck("failing", func() error { return errors.New("fail") })

	w := httptest.NewRecorder()
	h.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	h := NewHealthCheck(nil, "1.0.0")
	h.AddCheck("failing", func() error { return errors.New("fail") })

	w := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("liveness ignores checks, got %d", w.Code)
	}
}

func TestReadinessHandler(t *testing.T) {
	h := NewHealthCheck(nil, "1.0.0")

	w := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	h.AddCheck("failing", func() error { return errors.New("fail") })
	w = httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["ready"] != false {
		t.Errorf("expected ready=false, got %v", body["ready"])
	}
}
