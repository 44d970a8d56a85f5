package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pzverkov/poolwatch/pkg/logging"
)

func TestServerConfigValidate(t *testing.T) {
	cfg := DefaultServerConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without an admin")
	}

	a, _, _ := newTestAdmin(t)
	cfg.Admin = a
	cfg.MaxRefusedRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for ratio above 1")
	}
}

func TestServerHandler(t *testing.T) {
	a, m, clock := newTestAdmin(t)
	m.OnServed(time.Millisecond)
	rotate(clock, m)

	cfg := DefaultServerConfig()
	cfg.Admin = a
	cfg.Version = "test"
	cfg.Logger = logging.NullLogger()
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	for path, want := range map[string]string{
		"/metrics": `poolwatch_window_served{pool="db1",token="10s"} 1`,
		"/health":  `"status":"healthy"`,
		"/healthz": `"alive"`,
		"/readyz":  `"ready":true`,
	} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("%s: expected %q in body", path, want)
		}
	}
}

func TestServerAddHealthCheck(t *testing.T) {
	a, _, _ := newTestAdmin(t)
	cfg := DefaultServerConfig()
	cfg.Admin = a
	cfg.Logger = logging.NullLogger()
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	s.AddHealthCheck("failing", func() error { return errors.New("fail") })

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestServerDisabledEndpoints(t *testing.T) {
	a, _, _ := newTestAdmin(t)
	s, err := NewServer(ServerConfig{Admin: a, Logger: logging.NullLogger()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if s.Health() != nil {
		t.Error("health should be disabled")
	}
	s.AddHealthCheck("ignored", func() error { return nil })

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for disabled metrics, got %d", w.Code)
	}
}

func TestServerServeAndShutdown(t *testing.T) {
	a, _, _ := newTestAdmin(t)
	cfg := DefaultServerConfig()
	cfg.Admin = a
	cfg.Logger = logging.NullLogger()
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "alive") {
		t.Errorf("unexpected response %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
