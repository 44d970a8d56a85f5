package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/pzverkov/poolwatch/internal/constants"
	"github.com/pzverkov/poolwatch/pkg/admin"
	"github.com/pzverkov/poolwatch/pkg/logging"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsReadTimeout       = 10 * time.Second
	metricsWriteTimeout      = 10 * time.Second
	metricsIdleTimeout       = 120 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
		ReadTimeout:       metricsReadTimeout,
		WriteTimeout:      metricsWriteTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}
}

// ServerConfig configures the observability server.
type ServerConfig struct {
	// Address to listen on.
	// Default: ":9090"
	Address string

	// Admin whose pools are exported. Required.
	Admin *admin.Admin

	// Version reported by /health.
	Version string

	// Namespace prefixes every metric name.
	// Default: "poolwatch"
	Namespace string

	// Observer adds active time histograms to /metrics.
	// Optional.
	Observer *ActiveTimeObserver

	// MaxRefusedRatio marks a pool degraded in /health.
	// Default: 0.5
	MaxRefusedRatio float64

	EnablePrometheus bool
	EnableHealth     bool

	// Logger for server lifecycle events.
	// Optional - if nil, the global logger is used.
	Logger *logging.Logger
}

// DefaultServerConfig returns a ServerConfig serving both metrics and
// health endpoints on the default address.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:          constants.DefaultMetricsAddress,
		Namespace:        constants.MetricsNamespace,
		MaxRefusedRatio:  constants.DefaultMaxRefusedRatio,
		EnablePrometheus: true,
		EnableHealth:     true,
	}
}

// Validate checks the configuration for errors.
func (c *ServerConfig) Validate() error {
	if c.Admin == nil {
		return errors.New("metrics: Admin is required")
	}
	if c.MaxRefusedRatio < 0 || c.MaxRefusedRatio > 1 {
		return errors.New("metrics: MaxRefusedRatio must be within [0, 1]")
	}
	return nil
}

// applyDefaults fills in zero values with defaults.
func (c *ServerConfig) applyDefaults() {
	defaults := DefaultServerConfig()

	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.Namespace == "" {
		c.Namespace = defaults.Namespace
	}
	if c.MaxRefusedRatio == 0 {
		c.MaxRefusedRatio = defaults.MaxRefusedRatio
	}
	c.Logger = logging.OrDefault(c.Logger)
}

// Server provides HTTP endpoints for metrics and health:
//   - /metrics - Prometheus metrics
//   - /health  - Detailed health status
//   - /healthz - Liveness probe
//   - /readyz  - Readiness probe
type Server struct {
	config    ServerConfig
	mux       *http.ServeMux
	health    *HealthCheck
	collector *PrometheusCollector
	logger    *logging.Logger
}

// NewServer creates a new observability server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger.Named("metrics"),
	}

	if cfg.EnablePrometheus {
		opts := []CollectorOption{WithNamespace(cfg.Namespace)}
		if cfg.Observer != nil {
			opts = append(opts, WithActiveTimeObserver(cfg.Observer))
		}
		s.collector = NewPrometheusCollector(cfg.Admin, opts...)
		s.mux.Handle("/metrics", Handler(s.collector.Registry()))
	}

	if cfg.EnableHealth {
		s.health = NewHealthCheck(cfg.Admin, cfg.Version)
		s.health.SetMaxRefusedRatio(cfg.MaxRefusedRatio)
		s.mux.Handle("/health", s.health.Handler())
		s.mux.Handle("/healthz", s.health.LivenessHandler())
		s.mux.Handle("/readyz", s.health.ReadinessHandler())
	}

	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Health returns the health check, or nil when health endpoints are
// disabled.
func (s *Server) Health() *HealthCheck {
	return s.health
}

// AddHealthCheck adds a health check to the server.
func (s *Server) AddHealthCheck(name string, check CheckFunc) {
	if s.health != nil {
		s.health.AddCheck(name, check)
	}
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := newHTTPServer(ln.Addr().String(), s.mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	s.logger.Info("observability server listening", logging.Fields{"addr": ln.Addr().String()})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("observability server stopped")
	return nil
}
