package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes
const (
	AttemptOK              = "ok"
	AttemptValidationError = "validation_error"
	AttemptTransportError  = "transport_error"
)

var (
	AnalysisRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_analysis_runs_total",
			Help: "Total number of analysis runs",
		},
		[]string{"mode", "result"},
	)

	ModelAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_model_attempts_total",
			Help: "Total number of model invocations by outcome",
		},
		[]string{"mode", "outcome"},
	)

	RetrieverFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_retriever_fallbacks_total",
			Help: "Number of retrievals answered with the unavailable sentinel",
		},
	)

	ChunksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_chunks_processed_total",
			Help: "Number of document chunks analyzed",
		},
		[]string{"mode"},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_active_jobs",
			Help: "Number of analysis jobs currently processing",
		},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_analysis_run_duration_seconds",
			Help:    "Analysis run duration distribution",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveRun records one finished run
func ObserveRun(mode string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	AnalysisRuns.WithLabelValues(mode, result).Inc()
	RunDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
