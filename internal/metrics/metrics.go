package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the Gabelle service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Report metrics.
	ReportsBuiltTotal   *prometheus.CounterVec
	ReportBuildDuration prometheus.Histogram
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter

	// Ingest metrics.
	IngestDeltasTotal   prometheus.Counter
	IngestRejectedTotal prometheus.Counter

	// Rate limiting.
	RateLimitRejectionsTotal prometheus.Counter

	// Budget sweep metrics.
	SweepsTotal       prometheus.Counter
	SweepDuration     prometheus.Histogram
	SweepBusinesses   prometheus.Gauge
	SweepWarningsLast prometheus.Gauge
	SweepExceededLast prometheus.Gauge

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gabelle_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		ReportsBuiltTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_reports_built_total",
			Help: "Total number of usage reports built.",
		}, []string{"period", "status"}),

		ReportBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gabelle_report_build_duration_seconds",
			Help:    "Usage report assembly duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_report_cache_hits_total",
			Help: "Total number of report cache hits.",
		}),

		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_report_cache_misses_total",
			Help: "Total number of report cache misses.",
		}),

		IngestDeltasTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_ingest_deltas_total",
			Help: "Total number of accepted usage deltas.",
		}),

		IngestRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_ingest_rejected_total",
			Help: "Total number of rejected ingest payloads.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_ratelimit_rejections_total",
			Help: "Total number of rate-limited requests.",
		}),

		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_budget_sweeps_total",
			Help: "Total number of completed budget sweeps.",
		}),

		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gabelle_budget_sweep_duration_seconds",
			Help:    "Budget sweep duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		SweepBusinesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gabelle_budget_sweep_businesses",
			Help: "Businesses evaluated in the last budget sweep.",
		}),

		SweepWarningsLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gabelle_budget_sweep_warnings",
			Help: "Budgets at warning level in the last sweep.",
		}),

		SweepExceededLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gabelle_budget_sweep_exceeded",
			Help: "Budgets exceeded in the last sweep.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gabelle_server_start_time_seconds",
			Help: "Unix timestamp of server start.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReportsBuiltTotal,
		m.ReportBuildDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IngestDeltasTotal,
		m.IngestRejectedTotal,
		m.RateLimitRejectionsTotal,
		m.SweepsTotal,
		m.SweepDuration,
		m.SweepBusinesses,
		m.SweepWarningsLast,
		m.SweepExceededLast,
		m.ServerStartTime,
	)

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m.ServerStartTime.SetToCurrentTime()

	return m
}

// RegisterDBPool adds the connection-pool collector to the registry.
func (m *Metrics) RegisterDBPool(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SweepCompleted records the outcome of one budget sweep. It satisfies the
// alert.Observer interface.
func (m *Metrics) SweepCompleted(duration time.Duration, businesses, warnings, exceeded int) {
	m.SweepsTotal.Inc()
	m.SweepDuration.Observe(duration.Seconds())
	m.SweepBusinesses.Set(float64(businesses))
	m.SweepWarningsLast.Set(float64(warnings))
	m.SweepExceededLast.Set(float64(exceeded))
}
