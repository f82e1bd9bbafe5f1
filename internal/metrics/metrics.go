// Package metrics holds the process-wide Prometheus collectors. They are
// registered on the default registry and served by promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wallet"

// LedgerOperations counts primitive calls by operation and outcome.
var LedgerOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Ledger primitive calls by operation and result",
	},
	[]string{"operation", "result"},
)

// LedgerOperationDuration observes primitive latency including retries.
var LedgerOperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operation_duration_seconds",
		Help:      "Ledger primitive latency in seconds",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	},
	[]string{"operation"},
)

// LedgerActions counts outbox actions by kind and final status.
var LedgerActions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "actions_total",
		Help:      "Ledger outbox actions by kind and outcome",
	},
	[]string{"kind", "status"},
)

// ReconciliationRequired counts compensations that failed and need an operator.
var ReconciliationRequired = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "reconciliation_required_total",
		Help:      "Compensating ledger actions that failed and require manual reconciliation",
	},
)

// WithdrawalTransitions counts withdrawal state changes by target status.
var WithdrawalTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "withdrawal",
		Name:      "transitions_total",
		Help:      "Withdrawal request transitions by status and processing type",
	},
	[]string{"status", "processing_type"},
)

// CopyTradeEvents counts copy-trading operations by kind and result.
var CopyTradeEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "copytrading",
		Name:      "events_total",
		Help:      "Copy-trading starts, stops, claims and waitlist joins by result",
	},
	[]string{"event", "result"},
)

// SimulationTicks counts per-position ticks by result.
var SimulationTicks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "simulation",
		Name:      "ticks_total",
		Help:      "PnL ticks applied, skipped on version conflict, or failed",
	},
	[]string{"result"},
)

// SimulationRunDuration observes one full pass over the active positions.
var SimulationRunDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "simulation",
		Name:      "run_duration_seconds",
		Help:      "Duration of one ticker pass over all active positions",
		Buckets:   prometheus.DefBuckets,
	},
)

// ActivePositions is the number of positions seen on the last ticker pass.
var ActivePositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "simulation",
		Name:      "active_positions",
		Help:      "Active copy positions seen on the last ticker pass",
	},
)

// HTTPRequests counts API requests by route and status code.
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route template, method and status code",
	},
	[]string{"route", "method", "code"},
)

// HTTPRequestDuration observes request latency by route.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route template",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"route"},
)

// EventsPublished counts outbound event publishes by type and result.
var EventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Outbound domain events by type and result",
	},
	[]string{"type", "result"},
)
