// Package metrics provides Prometheus metrics for the ChronoPlan sync core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	catalogFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronoplan_catalog_fetches_total",
			Help: "Total number of catalog fetch attempts",
		},
		[]string{"status"},
	)

	lockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronoplan_lock_operations_total",
			Help: "Total number of lock lease operations",
		},
		[]string{"op", "status"},
	)

	historyFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronoplan_history_fetches_total",
			Help: "Total number of version history fetches",
		},
		[]string{"status"},
	)

	pushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronoplan_push_events_total",
			Help: "Total number of dispatched push events",
		},
		[]string{"type"},
	)

	pushFramesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronoplan_push_frames_dropped_total",
			Help: "Total number of inbound push frames dropped as malformed",
		},
	)

	pushConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronoplan_push_connected",
			Help: "Whether the push channel is currently connected (0 or 1)",
		},
	)
)

// RecordCatalogFetch records a catalog fetch outcome.
func RecordCatalogFetch(status string) {
	catalogFetchesTotal.WithLabelValues(status).Inc()
}

// RecordLockOperation records a lock lease operation outcome.
func RecordLockOperation(op, status string) {
	lockOperationsTotal.WithLabelValues(op, status).Inc()
}

// RecordHistoryFetch records a version history fetch outcome.
func RecordHistoryFetch(status string) {
	historyFetchesTotal.WithLabelValues(status).Inc()
}

// RecordPushEvent records a dispatched push event by type.
func RecordPushEvent(eventType string) {
	pushEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordPushFrameDropped records an inbound frame dropped as malformed.
func RecordPushFrameDropped() {
	pushFramesDroppedTotal.Inc()
}

// SetPushConnected updates the push connection gauge.
func SetPushConnected(connected bool) {
	if connected {
		pushConnected.Set(1)
	} else {
		pushConnected.Set(0)
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
