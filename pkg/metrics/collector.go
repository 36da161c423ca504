package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values shared by the collector components.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

// CollectorMetrics contains Prometheus metrics for the polling cycle and the
// components it drives.
type CollectorMetrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	LastCycleTimestamp prometheus.Gauge
	SnapshotAircraft   prometheus.Gauge
	FetchErrors        *prometheus.CounterVec
	ComponentErrors    *prometheus.CounterVec
	SightingsTotal     *prometheus.CounterVec
	RecordsSkipped     *prometheus.CounterVec
	PositionsRecorded  prometheus.Counter
	PositionsPruned    prometheus.Counter
	AlertsTotal        *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	RouteLookupsTotal  *prometheus.CounterVec
}

// NewCollectorMetrics creates collector metrics and registers them with the
// global registry.
func NewCollectorMetrics(namespace string) *CollectorMetrics {
	return NewCollectorMetricsWith(Registry, namespace)
}

// NewCollectorMetricsWith creates collector metrics and registers them with reg.
func NewCollectorMetricsWith(reg prometheus.Registerer, namespace string) *CollectorMetrics {
	m := &CollectorMetrics{
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "runs_total",
				Help:      "Total number of polling cycles",
			},
			[]string{"status"}, // status: success, partial, failed, timeout
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "duration_seconds",
				Help:      "Duration of polling cycles",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		LastCycleTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "last_completed_timestamp_seconds",
				Help:      "Unix time of the last completed cycle",
			},
		),
		SnapshotAircraft: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "aircraft",
				Help:      "Number of aircraft in the last snapshot",
			},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "errors_total",
				Help:      "Total number of failed snapshot fetches",
			},
			[]string{"reason"},
		),
		ComponentErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "component_errors_total",
				Help:      "Total number of component failures within cycles",
			},
			[]string{"component", "reason"},
		),
		SightingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sightings",
				Name:      "observations_total",
				Help:      "Observations applied to daily sightings",
			},
			[]string{"outcome"}, // outcome: created, updated, ignored
		),
		RecordsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "records_skipped_total",
				Help:      "Aircraft records skipped as malformed",
			},
			[]string{"component"},
		),
		PositionsRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "positions",
				Name:      "recorded_total",
				Help:      "Total number of position samples written",
			},
		),
		PositionsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "positions",
				Name:      "pruned_total",
				Help:      "Total number of position samples removed by retention",
			},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "matches_total",
				Help:      "Rule matches by decision",
			},
			[]string{"kind", "decision"}, // decision: triggered, suppressed
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "notifications_total",
				Help:      "Notification delivery attempts",
			},
			[]string{"status"},
		),
		RouteLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routes",
				Name:      "lookups_total",
				Help:      "Route resolutions by result",
			},
			[]string{"result"}, // result: cache_hit, cache_miss_found, not_found, unavailable
		),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.LastCycleTimestamp,
		m.SnapshotAircraft,
		m.FetchErrors,
		m.ComponentErrors,
		m.SightingsTotal,
		m.RecordsSkipped,
		m.PositionsRecorded,
		m.PositionsPruned,
		m.AlertsTotal,
		m.NotificationsTotal,
		m.RouteLookupsTotal,
	)

	return m
}
