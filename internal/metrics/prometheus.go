package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the harvester and rating runs

var (
	// API Call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_api_calls_total",
			Help: "Total number of remote GraphQL API calls",
		},
		[]string{"operation", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ranking_api_call_duration_seconds",
			Help:    "Duration of API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_api_retries_total",
			Help: "Total number of API calls retried after a rate-limit response",
		},
		[]string{"operation"},
	)

	// Harvest metrics
	EventsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_events_created_total",
			Help: "Total number of new events stored",
		},
		[]string{"game"},
	)

	MatchesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_matches_created_total",
			Help: "Total number of new matches stored",
		},
	)

	CompetitorsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_competitors_created_total",
			Help: "Total number of new competitors stored",
		},
		[]string{"kind"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_records_skipped_total",
			Help: "Total number of remote records skipped by data-quality rules",
		},
		[]string{"reason"},
	)

	// Sync metrics
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_sync_operations_total",
			Help: "Total number of harvest and rating operations",
		},
		[]string{"type", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ranking_sync_duration_seconds",
			Help:    "Duration of harvest and rating operations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"type"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ranking_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulSync = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ranking_last_successful_sync_timestamp",
			Help: "Timestamp of last successful operation",
		},
		[]string{"type"},
	)
)

// RecordAPICall records an API call metric
func RecordAPICall(operation, status string, duration float64) {
	APICallsTotal.WithLabelValues(operation, status).Inc()
	APICallDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRetry records a rate-limited call that will be retried
func RecordRetry(operation string) {
	APIRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordSkip records a record dropped by a data-quality rule
func RecordSkip(reason string) {
	RecordsSkipped.WithLabelValues(reason).Inc()
}

// RecordEventsCreated records newly stored events for a game
func RecordEventsCreated(game string, n int) {
	EventsCreated.WithLabelValues(game).Add(float64(n))
}

// RecordMatchesCreated records newly stored matches
func RecordMatchesCreated(n int) {
	MatchesCreated.Add(float64(n))
}

// RecordCompetitorCreated records a new competitor, kind is "verified" or "anonymous"
func RecordCompetitorCreated(kind string) {
	CompetitorsCreated.WithLabelValues(kind).Inc()
}

// RecordSync records a sync operation
func RecordSync(syncType, status string, duration float64) {
	SyncOperationsTotal.WithLabelValues(syncType, status).Inc()
	SyncDuration.WithLabelValues(syncType).Observe(duration)

	if status == "success" {
		LastSuccessfulSync.WithLabelValues(syncType).SetToCurrentTime()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
