package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// conversion pipeline.
type Metrics struct {
	ConverterRunning prometheus.Gauge

	FilesDecompressed   prometheus.Counter
	DecompressionErrors prometheus.Counter

	FilesExtracted     *prometheus.CounterVec // labels: outcome={valid,invalid}
	ExtractionDuration prometheus.Histogram

	ObservationsUpserted prometheus.Counter
	FilesPersisted       prometheus.Counter
	FilesRejected        prometheus.Counter
	FilesErased          prometheus.Counter

	TimestepDuration prometheus.Histogram
}

// NewMetrics creates and registers all converter metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ConverterRunning,
		m.FilesDecompressed,
		m.DecompressionErrors,
		m.FilesExtracted,
		m.ExtractionDuration,
		m.ObservationsUpserted,
		m.FilesPersisted,
		m.FilesRejected,
		m.FilesErased,
		m.TimestepDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry
// to avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ConverterRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "icon_etl",
			Name:      "converter_running",
			Help:      "1 while a conversion run is active, 0 otherwise.",
		}),
		FilesDecompressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "icon_etl",
			Name:      "files_decompressed_total",
			Help:      "Archives successfully decompressed.",
		}),
		DecompressionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "icon_etl",
			Name:      "decompression_errors_total",
			Help:      "Decompression attempts that failed, including missing archives.",
		}),
		FilesExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "icon_etl",
			Name:      "files_extracted_total",
			Help:      "Decoder runs by extraction outcome.",
		}, []string{"outcome"}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "icon_etl",
			Name:      "extraction_duration_seconds",
			Help:      "Wall time of a single decoder invocation including parsing.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ObservationsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "icon_etl",
			Name:      "observations_upserted_total",
			Help:      "Observations handed to the persistence stage.",
		}),
		FilesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "icon_etl",
			Name:      "files_persisted_total",
			Help:      "Files whose missing-coordinate ratio passed fault tolerance.",
		}),
		FilesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "icon_etl",
			Name:      "files_rejected_total",
			Help:      "Files left unpersisted because too many coordinates were missing.",
		}),
		FilesErased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "icon_etl",
			Name:      "files_erased_total",
			Help:      "Archive or decoded files deleted by the retention stage.",
		}),
		TimestepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "icon_etl",
			Name:      "timestep_duration_seconds",
			Help:      "Duration of a complete timestep conversion.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}
