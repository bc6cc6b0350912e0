package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "smartmeter"
	metricsSubsystem = "server"
)

var (
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions_active",
			Help:      "Number of currently open meter sessions",
		},
	)

	sessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions_total",
			Help:      "Total number of meter sessions accepted",
		},
	)

	sessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions_closed_total",
			Help:      "Total number of meter sessions closed, by close code name",
		},
		[]string{"close_code"},
	)

	messagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_processed_total",
			Help:      "Total inbound messages processed, by session state and outcome",
		},
		[]string{"state", "outcome"},
	)

	authRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "auth_rejections_total",
			Help:      "Total pre-upgrade rejections, by reason",
		},
		[]string{"reason"},
	)

	broadcastsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "grid_broadcasts_delivered_total",
			Help:      "Total grid status events delivered to sessions, by status and result",
		},
		[]string{"status", "result"},
	)
)

// Outcome labels for the messages_processed metric.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Rejection reasons for the auth_rejections metric.
const (
	rejectReasonNotWebSocket       = "not_websocket"
	rejectReasonMissingCredentials = "missing_credentials"
	rejectReasonInvalidAPIKey      = "invalid_api_key"
)

// Result labels for the grid_broadcasts_delivered metric.
const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultSkipped = "skipped"
)
