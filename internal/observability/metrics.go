// Package observability registers service-level Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_control",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
	activityClosedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_control",
		Subsystem: "persistence",
		Name:      "last_activity_closed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity reaching a terminal status.",
	})
	transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_control",
		Subsystem: "lifecycle",
		Name:      "status_transitions_total",
		Help:      "Number of status transitions applied, labeled by target status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, activityClosedGauge, transitionCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordActivityClosed updates the terminal-status watermark gauge.
func RecordActivityClosed(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityClosedGauge.Set(float64(ts.Unix()))
}

// RecordTransition counts an applied status transition.
func RecordTransition(status string) {
	transitionCounter.WithLabelValues(status).Inc()
}
