// Package metrics provides centralized Prometheus metrics registry for the forecast ledger.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forecast_ledger"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	ForecastsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forecasts_ingested_total",
		Help:      "Forecast inputs processed by ingestion, by outcome (saved, duplicate, rejected)",
	}, []string{"outcome"})
	IngestionRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingestion_runs_total",
		Help:      "Ingestion runs by status",
	}, []string{"status"})
	ReconciliationOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliation_outcomes_total",
		Help:      "Per-forecast reconciliation outcomes (resolved, pending, already_resolved, failed)",
	}, []string{"outcome"})
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Requests to fixture and result sources by endpoint and status",
	}, []string{"source", "endpoint", "status"})
)

// Gauge metrics
var (
	ScoredForecasts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scored_forecasts",
		Help:      "Number of resolved forecasts in the last computed scorecard",
	}, []string{"sport_key"})
	ForecastAccuracy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "forecast_accuracy",
		Help:      "Fraction of resolved forecasts whose favorite won",
	}, []string{"sport_key"})
	ForecastBrierScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "forecast_brier_score",
		Help:      "Mean squared error of p_home against the realized outcome",
	}, []string{"sport_key"})
	StoredForecasts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stored_forecasts",
		Help:      "Forecasts in the store by lifecycle state",
	}, []string{"state"})
	StreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_clients",
		Help:      "Connected websocket stream clients",
	})
)

// Histogram metrics
var (
	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of ingestion and reconciliation runs in seconds",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"kind"})
	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of upstream source requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source", "endpoint"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(ForecastsIngestedTotal)
		registry.MustRegister(IngestionRunsTotal)
		registry.MustRegister(ReconciliationOutcomesTotal)
		registry.MustRegister(UpstreamRequestsTotal)

		registry.MustRegister(ScoredForecasts)
		registry.MustRegister(ForecastAccuracy)
		registry.MustRegister(ForecastBrierScore)
		registry.MustRegister(StoredForecasts)
		registry.MustRegister(StreamClients)

		registry.MustRegister(RunDuration)
		registry.MustRegister(UpstreamRequestDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordIngestedForecast records one processed ingestion item.
func RecordIngestedForecast(outcome string) {
	ForecastsIngestedTotal.WithLabelValues(outcome).Inc()
}

// RecordIngestionRun records a finished ingestion run.
func RecordIngestionRun(status string, d time.Duration) {
	IngestionRunsTotal.WithLabelValues(status).Inc()
	RunDuration.WithLabelValues("ingest").Observe(d.Seconds())
}

// RecordReconciliationOutcomes adds n forecasts to the given outcome bucket.
func RecordReconciliationOutcomes(outcome string, n int) {
	if n <= 0 {
		return
	}
	ReconciliationOutcomesTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordReconciliationRun records the duration of a reconciliation pass.
func RecordReconciliationRun(d time.Duration) {
	RunDuration.WithLabelValues("reconcile").Observe(d.Seconds())
}

// RecordUpstreamRequest records one request to an external source.
func RecordUpstreamRequest(source, endpoint, status string, d time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(source, endpoint, status).Inc()
	UpstreamRequestDuration.WithLabelValues(source, endpoint).Observe(d.Seconds())
}

// UpdateScorecard publishes a computed scorecard. Undefined metrics
// (no scored forecasts yet) remove the gauge instead of reporting zero.
func UpdateScorecard(sportKey string, count int64, accuracy, brier *float64) {
	if sportKey == "" {
		sportKey = "all"
	}
	ScoredForecasts.WithLabelValues(sportKey).Set(float64(count))
	if accuracy == nil || brier == nil {
		ForecastAccuracy.DeleteLabelValues(sportKey)
		ForecastBrierScore.DeleteLabelValues(sportKey)
		return
	}
	ForecastAccuracy.WithLabelValues(sportKey).Set(*accuracy)
	ForecastBrierScore.WithLabelValues(sportKey).Set(*brier)
}

// UpdateStoredForecasts publishes store totals by state.
func UpdateStoredForecasts(unresolved, resolved int64) {
	StoredForecasts.WithLabelValues("unresolved").Set(float64(unresolved))
	StoredForecasts.WithLabelValues("resolved").Set(float64(resolved))
}

// UpdateStreamClients sets the number of connected stream clients.
func UpdateStreamClients(n int) {
	StreamClients.Set(float64(n))
}
