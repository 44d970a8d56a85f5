package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pzverkov/poolwatch/internal/constants"
	"github.com/pzverkov/poolwatch/pkg/admin"
)

// PrometheusCollector exports the state of every pool registered with an
// Admin. Window metrics describe the last completed window of each token;
// lifetime metrics are counters since registration.
type PrometheusCollector struct {
	admin    *admin.Admin
	observer *ActiveTimeObserver

	windowServed      *prometheus.Desc
	windowRefused     *prometheus.Desc
	windowServedRate  *prometheus.Desc
	windowRefusedRate *prometheus.Desc
	windowAvgActive   *prometheus.Desc
	windowRotations   *prometheus.Desc

	servedTotal    *prometheus.Desc
	refusedTotal   *prometheus.Desc
	activeTotal    *prometheus.Desc
	peakActive     *prometheus.Desc
	uptime         *prometheus.Desc
	activeTimeHist *prometheus.Desc
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)

// CollectorOption configures a PrometheusCollector.
type CollectorOption func(*collectorOptions)

type collectorOptions struct {
	namespace string
	observer  *ActiveTimeObserver
}

// WithNamespace sets the metric name prefix. Default: "poolwatch".
func WithNamespace(ns string) CollectorOption {
	return func(o *collectorOptions) {
		o.namespace = ns
	}
}

// WithActiveTimeObserver exports the observer's histograms as
// <namespace>_active_time_milliseconds.
func WithActiveTimeObserver(obs *ActiveTimeObserver) CollectorOption {
	return func(o *collectorOptions) {
		o.observer = obs
	}
}

// NewPrometheusCollector creates a collector over a.
func NewPrometheusCollector(a *admin.Admin, opts ...CollectorOption) *PrometheusCollector {
	o := collectorOptions{namespace: constants.MetricsNamespace}
	for _, opt := range opts {
		opt(&o)
	}

	windowLabels := []string{"pool", "token"}
	poolLabels := []string{"pool"}
	desc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(o.namespace, "", name), help, labels, nil)
	}

	return &PrometheusCollector{
		admin:    a,
		observer: o.observer,

		windowServed:      desc("window_served", "Connections served in the last completed window", windowLabels),
		windowRefused:     desc("window_refused", "Requests refused in the last completed window", windowLabels),
		windowServedRate:  desc("window_served_per_second", "Served rate of the last completed window", windowLabels),
		windowRefusedRate: desc("window_refused_per_second", "Refused rate of the last completed window", windowLabels),
		windowAvgActive:   desc("window_average_active_seconds", "Average active time in the last completed window", windowLabels),
		windowRotations:   desc("window_rotations_total", "Snapshots published by the window", windowLabels),

		servedTotal:    desc("served_total", "Connections served since registration", poolLabels),
		refusedTotal:   desc("refused_total", "Requests refused since registration", poolLabels),
		activeTotal:    desc("active_seconds_total", "Summed active time of served connections", poolLabels),
		peakActive:     desc("peak_active_seconds", "Longest active time of a served connection", poolLabels),
		uptime:         desc("uptime_seconds", "Time since the pool was registered", poolLabels),
		activeTimeHist: desc("active_time_milliseconds", "Active time of served connections in milliseconds", poolLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.windowServed
	ch <- c.windowRefused
	ch <- c.windowServedRate
	ch <- c.windowRefusedRate
	ch <- c.windowAvgActive
	ch <- c.windowRotations
	ch <- c.servedTotal
	ch <- c.refusedTotal
	ch <- c.activeTotal
	ch <- c.peakActive
	ch <- c.uptime
	if c.observer != nil {
		ch <- c.activeTimeHist
	}
}

// Collect implements prometheus.Collector.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.admin.Monitors() {
		alias := m.Alias()

		for _, w := range m.Windows() {
			token := w.Token()
			ch <- prometheus.MustNewConstMetric(c.windowRotations, prometheus.CounterValue, float64(w.Rotations()), alias, token)

			snap, ok := w.LastCompleted()
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.windowServed, prometheus.GaugeValue, float64(snap.ServedCount()), alias, token)
			ch <- prometheus.MustNewConstMetric(c.windowRefused, prometheus.GaugeValue, float64(snap.RefusedCount()), alias, token)
			ch <- prometheus.MustNewConstMetric(c.windowServedRate, prometheus.GaugeValue, snap.ServedPerSecond(), alias, token)
			ch <- prometheus.MustNewConstMetric(c.windowRefusedRate, prometheus.GaugeValue, snap.RefusedPerSecond(), alias, token)
			ch <- prometheus.MustNewConstMetric(c.windowAvgActive, prometheus.GaugeValue, snap.AverageActiveTime().Seconds(), alias, token)
		}

		s := m.Stats()
		ch <- prometheus.MustNewConstMetric(c.servedTotal, prometheus.CounterValue, float64(s.ServedTotal), alias)
		ch <- prometheus.MustNewConstMetric(c.refusedTotal, prometheus.CounterValue, float64(s.RefusedTotal), alias)
		ch <- prometheus.MustNewConstMetric(c.activeTotal, prometheus.CounterValue, s.ActiveTimeTotal.Seconds(), alias)
		ch <- prometheus.MustNewConstMetric(c.peakActive, prometheus.GaugeValue, s.PeakActiveTimeMs/1000, alias)
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.Uptime.Seconds(), alias)
	}

	if c.observer == nil {
		return
	}
	for alias, sum := range c.observer.Summaries() {
		if sum.Count == 0 {
			continue
		}
		buckets := make(map[float64]uint64, len(sum.Buckets))
		for _, b := range sum.Buckets[:len(sum.Buckets)-1] {
			buckets[b.UpperBound] = b.Count
		}
		ch <- prometheus.MustNewConstHistogram(c.activeTimeHist, sum.Count, sum.Sum, buckets, alias)
	}
}

// Registry returns a dedicated registry holding c and the Go runtime and
// process collectors.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns an http.Handler serving reg in the Prometheus exposition
// format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
