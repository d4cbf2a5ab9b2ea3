package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "garbagecal"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	RefresherRunning  prometheus.Gauge
	RefreshRuns       *prometheus.CounterVec // labels: result={success,failed,skipped,in_flight}
	RefreshDuration   prometheus.Histogram
	CollectionsStored prometheus.Gauge

	// Local cache metrics.
	CacheLookups     *prometheus.CounterVec // labels: kind, result={hit,miss,corrupt}
	CacheWriteErrors *prometheus.CounterVec // labels: kind

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	ResolveOutcomes    *prometheus.CounterVec // labels: outcome

	// Calendar source metrics.
	ScrapeRequests *prometheus.CounterVec   // labels: endpoint={calendar,streets,apartments}, outcome
	ScrapeDuration *prometheus.HistogramVec // labels: endpoint

	// Outbound messages.
	NotificationsSent *prometheus.CounterVec // labels: channel={mqtt,log}, outcome={success,error}
	UpdatesPublished  *prometheus.CounterVec // labels: outcome={success,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		RefresherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresher_running",
			Help:      "1 when the periodic refresh loop is active, 0 when shut down.",
		}),
		RefreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Calendar refresh attempts by result.",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete resolve-scrape-store refresh.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CollectionsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collections_stored",
			Help:      "Number of collection events in the local cache.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Local file cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		CacheWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_errors_total",
			Help:      "Failed local file cache writes and deletes by kind.",
		}, []string{"kind"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ResolveOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_outcomes_total",
			Help:      "Address resolutions by outcome.",
		}, []string{"outcome"}),
		ScrapeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_requests_total",
			Help:      "Calendar source requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		ScrapeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Calendar source request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"endpoint"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Pickup reminders by channel and outcome.",
		}, []string{"channel", "outcome"}),
		UpdatesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_updates_published_total",
			Help:      "Calendar change events written to Kafka by outcome.",
		}, []string{"outcome"}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.RefresherRunning,
		m.RefreshRuns,
		m.RefreshDuration,
		m.CollectionsStored,
		m.CacheLookups,
		m.CacheWriteErrors,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.ResolveOutcomes,
		m.ScrapeRequests,
		m.ScrapeDuration,
		m.NotificationsSent,
		m.UpdatesPublished,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
