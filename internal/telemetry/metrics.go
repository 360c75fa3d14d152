package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_poll_attempts_total",
		Help: "Status polls issued by reconciliation sessions, by result.",
	}, []string{"result"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_sessions_active",
		Help: "Reconciliation sessions currently mounted.",
	})

	SessionTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_session_terminal_total",
		Help: "Sessions that reached a terminal status.",
	}, []string{"status", "trigger"})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)
