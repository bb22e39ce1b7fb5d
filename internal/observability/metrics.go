package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for exporter self-monitoring.
// It uses a custom registry to avoid polluting the global default and to
// keep it apart from the per-scrape Proxmox families.
type Metrics struct {
	Registry *prometheus.Registry

	// Scrape metrics
	ScrapeDuration *prometheus.HistogramVec
	ScrapesTotal   *prometheus.CounterVec

	// Collector metrics
	CollectorDuration     *prometheus.HistogramVec
	SchemaDivergenceTotal *prometheus.CounterVec

	// API client metrics
	APIRequestDuration *prometheus.HistogramVec
	APIResponseBytes   prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ScrapeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pve_exporter_scrape_duration_seconds",
			Help:    "Duration of full target scrapes in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"module"}),
		ScrapesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pve_exporter_scrapes_total",
			Help: "Total number of target scrapes.",
		}, []string{"status"}),

		CollectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pve_exporter_collector_duration_seconds",
			Help:    "Duration of individual collectors in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"collector"}),
		SchemaDivergenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pve_exporter_schema_divergence_total",
			Help: "Total number of records whose fields differed from the first record of their batch.",
		}, []string{"collector"}),

		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pve_exporter_api_request_duration_seconds",
			Help:    "Duration of Proxmox VE API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		APIResponseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pve_exporter_api_response_bytes_total",
			Help: "Total number of decoded Proxmox VE API response bytes.",
		}),
	}

	// Register all metrics with the custom registry.
	reg.MustRegister(
		m.ScrapeDuration,
		m.ScrapesTotal,
		m.CollectorDuration,
		m.SchemaDivergenceTotal,
		m.APIRequestDuration,
		m.APIResponseBytes,
	)

	return m
}
