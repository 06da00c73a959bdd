package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Replica metrics
	EventsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksync_events_applied_total",
			Help: "Change events applied to the replica by event type",
		},
		[]string{"type"},
	)

	EventsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stocksync_events_skipped_total",
			Help: "Change events dropped as malformed, foreign or stale",
		},
	)

	ReplicaItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stocksync_replica_items",
			Help: "Number of items held in the local replica",
		},
	)

	ReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksync_reloads_total",
			Help: "Full replica reloads by result",
		},
		[]string{"result"},
	)

	// Connection metrics
	ReconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stocksync_reconnect_attempts_total",
			Help: "Scheduled reconnection attempts",
		},
	)

	ConnectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stocksync_connection_state",
			Help: "Current stream connection state (1 for the active state)",
		},
		[]string{"state"},
	)

	// CRUD metrics
	CrudRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksync_crud_requests_total",
			Help: "Remote mutation requests by operation and result",
		},
		[]string{"op", "result"},
	)

	CrudDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksync_crud_duration_seconds",
			Help:    "Remote mutation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Alert metrics
	AlertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksync_alerts_emitted_total",
			Help: "Alerts emitted by kind",
		},
		[]string{"kind"},
	)

	AlertsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stocksync_alerts_suppressed_total",
			Help: "Alerts suppressed by the deduplication window",
		},
	)

	AlertDeliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stocksync_alert_delivery_failures_total",
			Help: "Alerts the notification surface rejected",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsApplied)
	prometheus.MustRegister(EventsSkipped)
	prometheus.MustRegister(ReplicaItems)
	prometheus.MustRegister(ReloadsTotal)
	prometheus.MustRegister(ReconnectAttempts)
	prometheus.MustRegister(ConnectionState)
	prometheus.MustRegister(CrudRequests)
	prometheus.MustRegister(CrudDuration)
	prometheus.MustRegister(AlertsEmitted)
	prometheus.MustRegister(AlertsSuppressed)
	prometheus.MustRegister(AlertDeliveryFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetConnectionState flips the state gauge so exactly one label reads 1.
func SetConnectionState(active string, all ...string) {
	for _, s := range all {
		ConnectionState.WithLabelValues(s).Set(0)
	}
	ConnectionState.WithLabelValues(active).Set(1)
}
