package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/pzverkov/poolwatch/pkg/admin"
	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/metrics"
	"github.com/pzverkov/poolwatch/pkg/version"
	"github.com/pzverkov/poolwatch/pkg/window"
)

type simulateOptions struct {
	Alias       string
	Tokens      string
	Workers     int
	Rate        float64
	RefuseRatio float64
	MaxActive   time.Duration
	Duration    time.Duration
	MetricsAddr string
	Seed        uint64
}

func (o *simulateOptions) validate() error {
	if o.Workers < 1 {
		return errors.New("--workers must be at least 1")
	}
	if o.Rate <= 0 {
		return errors.New("--rate must be positive")
	}
	if o.RefuseRatio < 0 || o.RefuseRatio > 1 {
		return errors.New("--refuse-ratio must be within [0, 1]")
	}
	if o.MaxActive < 0 {
		return errors.New("--max-active cannot be negative")
	}
	if o.Duration < 0 {
		return errors.New("--duration cannot be negative")
	}
	return nil
}

type simulateSummary struct {
	Pool         string                      `json:"pool"`
	Served       uint64                      `json:"served_total"`
	Refused      uint64                      `json:"refused_total"`
	AvgActiveMs  float64                     `json:"avg_active_ms"`
	PeakActiveMs float64                     `json:"peak_active_ms"`
	ActiveTime   *metrics.HistogramSummary   `json:"active_time,omitempty"`
	Windows      map[string]*window.Snapshot `json:"windows"`
}

func newSimulateCommand(c *cli) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive synthetic pool traffic through rolling windows",
		Long: `Simulate a connection pool: workers report served connections with random
active times, or refused requests, at a fixed rate. Every closed window is
logged, and metrics can be served while the simulation runs.

Examples:

1. Run for one minute with 10s and 1m windows:
   poolwatch simulate --tokens 10s,1m --duration 1m

2. Serve Prometheus metrics and health endpoints until interrupted:
   poolwatch simulate --metrics-addr :9090 --refuse-ratio 0.1
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("metrics-addr") && c.cfg.Metrics.Enabled {
				opts.MetricsAddr = c.cfg.Metrics.Address
			}
			if err := opts.validate(); err != nil {
				return err
			}
			return runSimulate(cmd, c, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Alias, "alias", "default", "Pool alias")
	flags.StringVar(&opts.Tokens, "tokens", "", "Statistics tokens (default from config, e.g. 10s,15m,1d)")
	flags.IntVar(&opts.Workers, "workers", 4, "Concurrent workers generating events")
	flags.Float64Var(&opts.Rate, "rate", 50, "Events per second per worker")
	flags.Float64Var(&opts.RefuseRatio, "refuse-ratio", 0.05, "Share of events reported as refused")
	flags.DurationVar(&opts.MaxActive, "max-active", 50*time.Millisecond, "Upper bound of random active times")
	flags.DurationVar(&opts.Duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve /metrics and health endpoints on this address")
	flags.Uint64Var(&opts.Seed, "seed", 0, "Random seed (0 picks one)")
	addOutputFlag(cmd)
	return cmd
}

func runSimulate(cmd *cobra.Command, c *cli, opts *simulateOptions) error {
	format, err := getOutputFormat(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	logger := c.logger.Named("simulate")
	a := admin.New(ctx, admin.WithLogger(c.logger))
	defer func() { _ = a.Close() }()

	poolCfg := c.cfg.PoolFor(opts.Alias).AdminConfig()
	if opts.Tokens != "" {
		poolCfg.StatisticsTokens = opts.Tokens
	}
	m, err := a.Register(opts.Alias, poolCfg)
	if err != nil {
		return err
	}

	m.AddStatisticsListener(metrics.NewStatisticsLogger(c.logger))
	observer := metrics.NewActiveTimeObserver(nil)
	m.AddConnectionListener(observer)

	var wg sync.WaitGroup
	if opts.MetricsAddr != "" {
		srv, err := metrics.NewServer(metrics.ServerConfig{
			Address:          opts.MetricsAddr,
			Admin:            a,
			Version:          version.String(),
			Namespace:        c.cfg.Metrics.Namespace,
			Observer:         observer,
			MaxRefusedRatio:  c.cfg.Metrics.MaxRefusedRatio,
			EnablePrometheus: true,
			EnableHealth:     true,
			Logger:           c.logger,
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx); err != nil {
				logger.Error("observability server error", logging.Fields{"error": err})
			}
		}()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	logger.Info("simulation started", logging.Fields{
		"pool":         opts.Alias,
		"tokens":       m.Config().StatisticsTokens,
		"workers":      opts.Workers,
		"rate":         opts.Rate,
		"refuse_ratio": opts.RefuseRatio,
		"seed":         seed,
	})

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func(worker uint64) {
			defer wg.Done()
			simulateWorker(ctx, m, opts, rand.New(rand.NewPCG(seed, worker)))
		}(uint64(i))
	}
	wg.Wait()

	// Close windows whose boundary passed while the workers were stopping.
	for _, w := range m.Windows() {
		for w.RotateIfExpired() > 0 {
		}
	}

	summary := simulateSummary{
		Pool:    opts.Alias,
		Windows: m.Statistics(),
	}
	stats := m.Stats()
	summary.Served = stats.ServedTotal
	summary.Refused = stats.RefusedTotal
	summary.AvgActiveMs = stats.AvgActiveTimeMs
	summary.PeakActiveMs = stats.PeakActiveTimeMs
	if h, ok := observer.Histogram(opts.Alias); ok {
		s := h.Summary()
		summary.ActiveTime = &s
	}
	logger.Info("simulation finished", logging.Fields{
		"served":  summary.Served,
		"refused": summary.Refused,
	})

	if format == formatJSON {
		return printJSON(cmd, summary)
	}
	printSummary(cmd, summary)
	return nil
}

func simulateWorker(ctx context.Context, m *admin.PoolMonitor, opts *simulateOptions, rng *rand.Rand) {
	interval := time.Duration(float64(time.Second) / opts.Rate)
	if interval < time.Microsecond {
		interval = time.Microsecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if rng.Float64() < opts.RefuseRatio {
			m.OnRefused()
			continue
		}
		var active time.Duration
		if opts.MaxActive > 0 {
			active = time.Duration(rng.Int64N(int64(opts.MaxActive)))
		}
		m.OnServed(active)
	}
}

func printSummary(cmd *cobra.Command, s simulateSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pool %s\n", s.Pool)
	fmt.Fprintf(out, "  served:      %d\n", s.Served)
	fmt.Fprintf(out, "  refused:     %d\n", s.Refused)
	fmt.Fprintf(out, "  avg active:  %.2f ms\n", s.AvgActiveMs)
	fmt.Fprintf(out, "  peak active: %.2f ms\n", s.PeakActiveMs)
	if s.ActiveTime != nil && s.ActiveTime.Count > 0 {
		fmt.Fprintf(out, "  p50/p99:     %.2f / %.2f ms\n",
			s.ActiveTime.Percentiles["p50"], s.ActiveTime.Percentiles["p99"])
	}

	if len(s.Windows) == 0 {
		fmt.Fprintln(out, "No completed windows")
		return
	}

	tokens := make([]string, 0, len(s.Windows))
	for token := range s.Windows {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	fmt.Fprintln(out, "Last completed windows:")
	for _, token := range tokens {
		snap := s.Windows[token]
		fmt.Fprintf(out, "  %-6s %s-%s served=%d (%.2f/s) refused=%d (%.2f/s) avg=%s\n",
			token,
			snap.StartTime().Format("15:04:05"),
			snap.StopTime().Format("15:04:05"),
			snap.ServedCount(), snap.ServedPerSecond(),
			snap.RefusedCount(), snap.RefusedPerSecond(),
			snap.AverageActiveTime().Round(time.Microsecond))
	}
}
