// Package metrics exposes the monitor's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitor_cycle_duration_seconds",
		Help:    "Duration of a full collection cycle.",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 240, 300},
	})

	CycleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_exchange_requests_total",
		Help: "Exchange requests by outcome.",
	}, []string{"outcome"})

	CyclesAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_cycles_abandoned_total",
		Help: "Cycles abandoned due to watchdog expiry.",
	})

	AnomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_anomalies_total",
		Help: "Anomalies emitted by kind and severity.",
	}, []string{"kind", "severity"})

	NotifierQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_notifier_queue_depth",
		Help: "Current depth of the notifier priority queue.",
	})

	NotifierDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_notifier_dropped_total",
		Help: "Messages dropped because the notifier queue was full.",
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_notifications_sent_total",
		Help: "Notifications sent by channel and outcome.",
	}, []string{"channel", "outcome"})

	StatsWorkerSymbolsUpdated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_stats_worker_symbols_updated",
		Help: "Symbols updated on the last stats-worker run.",
	})

	StatsWorkerLastRunUnix = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_stats_worker_last_run_unix_seconds",
		Help: "Unix timestamp of the last completed stats-worker run.",
	})

	ArchivedRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_archived_rows_total",
		Help: "Rows moved to cold storage by table.",
	}, []string{"table"})
)

// Handler returns the HTTP handler serving the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
