// Package metrics exports poolwatch statistics to operators.
//
// # Overview
//
// The package plugs into the admin layer as listeners and collectors:
//   - StatisticsLogger logs every closed window
//   - ActiveTimeObserver keeps active time histograms per pool
//   - PrometheusCollector exports window and lifetime metrics
//   - HealthCheck reports refused ratios and custom checks
//   - Server serves all of the above over HTTP
//
// # Quick Start
//
//	a := admin.New(ctx)
//	m, _ := a.Register("db1", admin.Config{StatisticsTokens: "10s,15m"})
//
//	m.AddStatisticsListener(metrics.NewStatisticsLogger(nil))
//
//	obs := metrics.NewActiveTimeObserver(nil)
//	m.AddConnectionListener(obs)
//
//	cfg := metrics.DefaultServerConfig()
//	cfg.Admin = a
//	cfg.Observer = obs
//	srv, _ := metrics.NewServer(cfg)
//	go srv.ListenAndServe(ctx)
//
// # Prometheus Export
//
// Window metrics carry pool and token labels and describe the last
// completed window; lifetime metrics carry the pool label:
//
//	poolwatch_window_served{pool="db1",token="10s"} 42
//	poolwatch_window_served_per_second{pool="db1",token="10s"} 4.2
//	poolwatch_served_total{pool="db1"} 1234
//
// The collector can also be registered with any prometheus.Registerer:
//
//	prometheus.MustRegister(metrics.NewPrometheusCollector(a))
//
// # Health Checks
//
//	health := metrics.NewHealthCheck(a, version.Version)
//	health.AddCheck("db1-refused", metrics.RefusedRatioCheck(m, "10s", 0.2))
//
//	http.Handle("/health", health.Handler())
//	http.Handle("/healthz", health.LivenessHandler())
//	http.Handle("/readyz", health.ReadinessHandler())
package metrics
