package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the composite job.
type Metrics struct {
	JobRunning prometheus.Gauge

	// Scene selection metrics.
	ScenesSelected *prometheus.CounterVec // labels: branch={radar,optical}
	ScenesExcluded *prometheus.CounterVec // labels: branch, reason={missing_band,unknown_orbit,no_azimuth}

	// Tile processing metrics.
	TilesProcessed *prometheus.CounterVec   // labels: branch, outcome={success,error}
	TileRetries    *prometheus.CounterVec   // labels: branch
	TileDuration   *prometheus.HistogramVec // labels: branch

	// Export metrics.
	ExportDuration     *prometheus.HistogramVec // labels: export
	ExportedPixels     *prometheus.GaugeVec     // labels: export
	NotificationErrors prometheus.Counter

	// Elevation metrics.
	DEMCache         *prometheus.CounterVec // labels: result={hit,miss}
	DEMFetchDuration prometheus.Histogram
}

const namespace = "composite"

// NewMetrics creates and registers all job metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		JobRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_running",
			Help:      help("1 while the composite job is running, 0 otherwise."),
		}),
		ScenesSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenes_selected_total",
			Help:      help("Scenes entering a composite, by branch."),
		}, []string{"branch"}),
		ScenesExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenes_excluded_total",
			Help:      help("Scenes dropped before compositing, by branch and reason."),
		}, []string{"branch", "reason"}),
		TilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_processed_total",
			Help:      help("Tiles processed, by branch and outcome."),
		}, []string{"branch", "outcome"}),
		TileRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_retries_total",
			Help:      help("Tile attempts retried after a transient failure."),
		}, []string{"branch"}),
		TileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_duration_seconds",
			Help:      help("Duration of one successful tile attempt."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"branch"}),
		ExportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      help("Duration of writing one export."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"export"}),
		ExportedPixels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exported_valid_pixels",
			Help:      help("Valid pixels written by the last export."),
		}, []string{"export"}),
		NotificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_errors_total",
			Help:      help("Export notifications that could not be published."),
		}),
		DEMCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dem_cache_total",
			Help:      help("Elevation window cache lookups by result."),
		}, []string{"result"}),
		DEMFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dem_fetch_duration_seconds",
			Help:      help("Remote elevation model fetch duration."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.JobRunning,
		m.ScenesSelected,
		m.ScenesExcluded,
		m.TilesProcessed,
		m.TileRetries,
		m.TileDuration,
		m.ExportDuration,
		m.ExportedPixels,
		m.NotificationErrors,
		m.DEMCache,
		m.DEMFetchDuration,
	}
}
