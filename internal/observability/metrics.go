package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the flood service.
type Metrics struct {
	// Model lifecycle metrics.
	ModelLoads  *prometheus.CounterVec // labels: outcome={success,error}
	ModelLoaded prometheus.Gauge

	// Inference metrics.
	InferenceBatches      prometheus.Counter
	InferenceBatchSize    prometheus.Histogram
	InferenceDuration     prometheus.Histogram
	ScalerFallbacks       prometheus.Counter
	PredictionRuns        *prometheus.CounterVec // labels: outcome={success,error,stale}
	PredictionRunDuration prometheus.Histogram
	FloodPoints           prometheus.Gauge

	// Weather metrics.
	WeatherRequests    *prometheus.CounterVec   // labels: endpoint={current,forecast}, outcome={success,error}
	WeatherCache       *prometheus.CounterVec   // labels: endpoint={current,forecast}, result={hit,miss}
	WeatherAPIDuration *prometheus.HistogramVec // labels: endpoint={current,forecast}

	// Run sink metrics.
	SinkErrors *prometheus.CounterVec // labels: sink
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ModelLoads,
		m.ModelLoaded,
		m.InferenceBatches,
		m.InferenceBatchSize,
		m.InferenceDuration,
		m.ScalerFallbacks,
		m.PredictionRuns,
		m.PredictionRunDuration,
		m.FloodPoints,
		m.WeatherRequests,
		m.WeatherCache,
		m.WeatherAPIDuration,
		m.SinkErrors,
	)
	return m
}

// NewUnregisteredMetrics creates Metrics that are not exported on /metrics.
// Components constructed without explicit metrics fall back to these.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ModelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "model_loads_total",
			Help:      "Classifier load attempts by outcome.",
		}, []string{"outcome"}),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodsense",
			Name:      "model_loaded",
			Help:      "1 when a classifier is loaded, 0 otherwise.",
		}),
		InferenceBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "inference_batches_total",
			Help:      "Total inference calls made against the classifier.",
		}),
		InferenceBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "floodsense",
			Name:      "inference_batch_size",
			Help:      "Rows per inference call.",
			Buckets:   []float64{1, 8, 16, 32, 64, 128, 256, 512},
		}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "floodsense",
			Name:      "inference_duration_seconds",
			Help:      "Duration of a full Predict call across all batches.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		ScalerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "scaler_fallback_total",
			Help:      "Feature requests served unscaled because the scaler was unavailable or failed.",
		}),
		PredictionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "prediction_runs_total",
			Help:      "Batch prediction runs by outcome.",
		}, []string{"outcome"}),
		PredictionRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "floodsense",
			Name:      "prediction_run_duration_seconds",
			Help:      "Duration of a complete preprocess-predict-filter run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FloodPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodsense",
			Name:      "flood_points",
			Help:      "Flood-positive points in the latest published result.",
		}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "weather_requests_total",
			Help:      "Weather API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by endpoint and result.",
		}, []string{"endpoint", "result"}),
		WeatherAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floodsense",
			Name:      "weather_api_duration_seconds",
			Help:      "OpenWeatherMap API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"endpoint"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "run_sink_errors_total",
			Help:      "Failures delivering prediction run reports to sinks.",
		}, []string{"sink"}),
	}
}
