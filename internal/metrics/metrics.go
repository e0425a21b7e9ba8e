// Package metrics exposes the engine's Prometheus instrumentation as
// package-level collectors, registered on the default registry via promauto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var VenueCallLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "levex",
		Subsystem: "venue",
		Name:      "call_latency_ms",
		Help:      "Latency of venue REST calls in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"op"},
)

var VenueErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "levex",
		Subsystem: "venue",
		Name:      "errors_total",
		Help:      "Venue call failures by operation",
	},
	[]string{"op"},
)

var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "levex",
		Subsystem: "engine",
		Name:      "orders_submitted_total",
		Help:      "Orders submitted by type and side",
	},
	[]string{"type", "side"},
)

var ProtectionOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "levex",
		Subsystem: "engine",
		Name:      "protection_outcomes_total",
		Help:      "AttachProtection results by outcome kind",
	},
	[]string{"kind"},
)

var BorrowOps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "levex",
		Subsystem: "engine",
		Name:      "borrow_ops_total",
		Help:      "Borrow/repay operations by result",
	},
	[]string{"op", "result"},
)

var SizingAdjustments = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "levex",
		Subsystem: "engine",
		Name:      "sizing_adjustments_total",
		Help:      "Leveraged entries shrunk to fit borrow capacity",
	},
)

var InvalidationsTriggered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "levex",
		Subsystem: "exitplan",
		Name:      "invalidations_triggered_total",
		Help:      "Exit plan invalidation triggers by condition type",
	},
	[]string{"condition"},
)

var MarginLevel = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "levex",
		Subsystem: "risk",
		Name:      "margin_level",
		Help:      "Latest observed account margin level",
	},
)

var RiskTier = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "levex",
		Subsystem: "risk",
		Name:      "tier",
		Help:      "Current risk tier (1 for the active tier, 0 otherwise)",
	},
	[]string{"tier"},
)

var UnprotectedPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "levex",
		Subsystem: "engine",
		Name:      "unprotected_positions",
		Help:      "Open positions currently lacking protective orders",
	},
)

// ObserveVenueCall records one venue round trip.
func ObserveVenueCall(op string, dur time.Duration, err error) {
	VenueCallLatency.WithLabelValues(op).Observe(float64(dur.Milliseconds()))
	if err != nil {
		VenueErrors.WithLabelValues(op).Inc()
	}
}

// CountBorrowOp records a borrow or repay attempt.
func CountBorrowOp(op string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	BorrowOps.WithLabelValues(op, result).Inc()
}

// SetRiskTier flips the tier gauge to the given tier name.
func SetRiskTier(active string, all []string) {
	for _, tier := range all {
		v := 0.0
		if tier == active {
			v = 1.0
		}
		RiskTier.WithLabelValues(tier).Set(v)
	}
}
