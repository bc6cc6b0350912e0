package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "smartmeter"
	metricsSubsystem = "billing"
)

var (
	readingsBilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "readings_billed_total",
			Help:      "Total number of readings successfully priced and recorded",
		},
		[]string{"region"},
	)

	readingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "readings_rejected_total",
			Help:      "Total number of readings rejected by the billing engine",
		},
		[]string{"reason"},
	)

	rateTableLoads = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rate_table_loads_total",
			Help:      "Total number of rate table loads from the underlying source",
		},
	)

	ledgerAppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "ledger_append_duration_seconds",
			Help:      "Duration of ledger append operations",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)
)

// Rejection reasons for the readings_rejected metric.
const (
	rejectReasonUnknownRegion = "unknown_region"
	rejectReasonNegativeUsage = "negative_usage"
	rejectReasonLedgerAppend  = "ledger_append_failed"
)
