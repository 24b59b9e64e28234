package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "certificate_guard"

	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"

	OutcomeViewed      = "viewed"
	OutcomeNotFound    = "not_found"
	OutcomeBlocked     = "blocked"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "store_unavailable"
)

var (
	// RateLimitDecisionsTotal conta as decisões do rate limiter por política
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rate_limit",
			Name:      "decisions_total",
			Help:      "Total rate limit decisions by policy and outcome",
		},
		[]string{"policy", "outcome"},
	)

	// CertificateViewsTotal conta as visualizações públicas por resultado
	CertificateViewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "certificate",
			Name:      "views_total",
			Help:      "Total public certificate view attempts by outcome",
		},
		[]string{"outcome"},
	)

	// CertificateVerificationsTotal conta verificações de hash
	CertificateVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "certificate",
			Name:      "verifications_total",
			Help:      "Total certificate hash verifications by result",
		},
		[]string{"valid"},
	)

	// AuditFailuresTotal conta falhas não fatais da trilha de auditoria
	AuditFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "failures_total",
			Help:      "Audit trail operations that failed after the view was served",
		},
		[]string{"operation"},
	)

	// IPBlocksTotal conta bloqueios gravados
	IPBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "ip_blocks_total",
			Help:      "Total IP blocks written after crossing the access threshold",
		},
	)

	// StoreOperationDuration mede a latência das chamadas ao banco
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of certificate store operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// RecordRateLimitDecision registra uma decisão do rate limiter
func RecordRateLimitDecision(policy string, allowed bool) {
	outcome := OutcomeRejected
	if allowed {
		outcome = OutcomeAllowed
	}
	RateLimitDecisionsTotal.WithLabelValues(policy, outcome).Inc()
}

// RecordVerification registra o resultado de uma verificação
func RecordVerification(valid bool) {
	label := "false"
	if valid {
		label = "true"
	}
	CertificateVerificationsTotal.WithLabelValues(label).Inc()
}
