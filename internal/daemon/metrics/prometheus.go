package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements Recorder with its own registry.
type Prometheus struct {
	probeDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	launches      *prometheus.CounterVec
	killed        prometheus.Counter
	closes        prometheus.Counter
	proxyCalls    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheus creates a Prometheus recorder. namespace defaults to "devdash".
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "devdash"
	}

	p := &Prometheus{
		registry: prometheus.NewRegistry(),
	}

	p.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Duration of external status probes",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"probe", "outcome"},
	)

	p.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Metadata cache reads by category and result",
		},
		[]string{"category", "result"},
	)

	p.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Project launches by outcome",
		},
		[]string{"outcome"},
	)

	p.killed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_killed_total",
			Help:      "Processes terminated by force close",
		},
	)

	p.closes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "force_closes_total",
			Help:      "Force close operations",
		},
	)

	p.proxyCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_proxy_calls_total",
			Help:      "Memory-shack tool calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	p.registry.MustRegister(
		p.probeDuration,
		p.cacheLookups,
		p.launches,
		p.killed,
		p.closes,
		p.proxyCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return p
}

// ProbeObserved implements Recorder.
func (p *Prometheus) ProbeObserved(probe, outcome string, duration time.Duration) {
	p.probeDuration.WithLabelValues(probe, outcome).Observe(duration.Seconds())
}

// CacheLookup implements Recorder.
func (p *Prometheus) CacheLookup(category string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(category, result).Inc()
}

// LaunchObserved implements Recorder.
func (p *Prometheus) LaunchObserved(outcome string) {
	p.launches.WithLabelValues(outcome).Inc()
}

// ProcessesKilled implements Recorder.
func (p *Prometheus) ProcessesKilled(n int) {
	p.closes.Inc()
	if n > 0 {
		p.killed.Add(float64(n))
	}
}

// ProxyCall implements Recorder.
func (p *Prometheus) ProxyCall(tool, outcome string) {
	p.proxyCalls.WithLabelValues(tool, outcome).Inc()
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
