// Package metrics exposes Prometheus metrics for wizard runs and the HTTP
// surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/workflow-wizard/observability/tracing"
)

// Config holds configuration for the Collector.
type Config struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
	Subsystem string `yaml:"subsystem" json:"subsystem"`
	Path      string `yaml:"path" json:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Namespace: "",
		Subsystem: "",
		Path:      "/metrics",
	}
}

// Collector wraps the Prometheus metrics of the wizard. It owns its registry
// so several collectors can live in one process (tests, embedded servers).
type Collector struct {
	config   Config
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	BatchesTotal    *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	ActorsGenerated prometheus.Counter
	ActiveRuns      prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New creates a Collector with the default configuration.
func New() *Collector {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Collector with its own Prometheus registry.
func NewWithConfig(cfg Config) *Collector {
	reg := prometheus.NewRegistry()
	ns, sub := cfg.Namespace, cfg.Subsystem

	c := &Collector{
		config:   cfg,
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "wizard_runs_total",
			Help: "Wizard runs by outcome (complete, legacy, error, cancelled).",
		}, []string{"outcome"}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "wizard_batches_total",
			Help: "Generation batches by status (ok, error, cancelled).",
		}, []string{"status"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "wizard_batch_duration_seconds",
			Help:    "Duration of generation batch requests.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		ActorsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "wizard_actors_generated_total",
			Help: "Actors received from completed batches.",
		}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "wizard_active_runs",
			Help: "Wizard runs currently in progress.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "wizard_http_requests_total",
			Help: "HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "wizard_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.RunsTotal, c.BatchesTotal, c.BatchDuration, c.ActorsGenerated,
		c.ActiveRuns, c.HTTPRequests, c.HTTPDuration,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Path returns the configured metrics endpoint path.
func (c *Collector) Path() string { return c.config.Path }

// Handler returns an HTTP handler that serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RunStarted marks a run as active.
func (c *Collector) RunStarted() {
	c.ActiveRuns.Inc()
}

// RunFinished records the outcome of a run and clears it from the active gauge.
func (c *Collector) RunFinished(outcome string) {
	c.ActiveRuns.Dec()
	c.RunsTotal.WithLabelValues(outcome).Inc()
}

// BatchFinished records one batch request.
func (c *Collector) BatchFinished(status string, d time.Duration, actors int) {
	c.BatchesTotal.WithLabelValues(status).Inc()
	c.BatchDuration.Observe(d.Seconds())
	if actors > 0 {
		c.ActorsGenerated.Add(float64(actors))
	}
}

// RecordHTTPRequest records an HTTP request metric.
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Middleware records request counts and latency. Paths are labelled with
// the matched ServeMux pattern when one is available to keep cardinality
// bounded.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &tracing.StatusRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		c.RecordHTTPRequest(r.Method, path, rw.StatusCode, time.Since(start))
	})
}
