// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Event processing metrics
	EventsProcessed *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	ApplyLatency    prometheus.Histogram
	LastApplyTime   prometheus.Gauge

	// Accrual metrics
	PointsAwarded    *prometheus.CounterVec
	DailyBonuses     *prometheus.CounterVec
	GapSettlements   prometheus.Counter
	CooldownSkips    prometheus.Counter

	// Ranking metrics
	RankingUpserts prometheus.Counter
	RankingRemoves prometheus.Counter

	// Chain-read metrics
	ChainReadErrors *prometheus.CounterVec

	// Storage metrics
	HistorySinkErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "lending_points_lab"
	}

	return &Metrics{
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "events_processed_total",
			Help:      "Total number of events applied, by kind",
		}, []string{"kind"}),
		EventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "events_skipped_total",
			Help:      "Total number of points-affecting steps skipped, by reason",
		}, []string{"reason"}),
		ApplyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "apply_duration_seconds",
			Help:      "Time to fully apply one event",
			Buckets:   prometheus.DefBuckets,
		}),
		LastApplyTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "last_apply_timestamp_seconds",
			Help:      "Unix timestamp of the last successfully applied event",
		}),
		PointsAwarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "points_awarded_total",
			Help:      "Multiplier-applied points awarded, by source",
		}, []string{"source"}),
		DailyBonuses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "daily_bonuses_total",
			Help:      "Daily bonuses awarded, by action",
		}, []string{"action"}),
		GapSettlements: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "gap_settlements_total",
			Help:      "Settlements split across an epoch boundary",
		}),
		CooldownSkips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "cooldown_skips_total",
			Help:      "Accruals skipped inside the settlement cooldown window",
		}),
		RankingUpserts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "upserts_total",
			Help:      "Ranking upserts applied across all scopes",
		}),
		RankingRemoves: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "removes_total",
			Help:      "Ranking removals applied across all scopes",
		}),
		ChainReadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "read_errors_total",
			Help:      "Best-effort chain reads that failed, by method",
		}, []string{"method"}),
		HistorySinkErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "history_sink_errors_total",
			Help:      "Append failures on the analytics history sink",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
