package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerificationAttempts records code verifications by mode (app|email) and
	// result (success|failure|replay).
	VerificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofa_verification_attempts_total",
			Help: "Total number of second-factor code verifications",
		},
		[]string{"mode", "result"},
	)

	// ReplayDetections counts persisting verifications rejected as replays.
	ReplayDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twofa_replay_detections_total",
			Help: "Total number of replayed one-time codes rejected",
		},
	)

	// SecretsProvisioned counts provisioning and regeneration events.
	SecretsProvisioned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twofa_secrets_provisioned_total",
			Help: "Total number of TOTP secrets provisioned or regenerated",
		},
	)

	// CodeEmailsSent counts verification-code emails by result (success|failure).
	CodeEmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofa_code_emails_total",
			Help: "Total number of verification code emails dispatched",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twofa_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
