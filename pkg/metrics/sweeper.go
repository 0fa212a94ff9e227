package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweeperMetrics records metadata for background sweep jobs.
type SweeperMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	expired  prometheus.Counter
	drift    prometheus.Counter
}

// NewSweeperMetrics registers the sweeper metrics on the provided registerer.
func NewSweeperMetrics(reg prometheus.Registerer) *SweeperMetrics {
	if reg == nil {
		return &SweeperMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweeper_job_duration_seconds",
		Help:    "Duration of sweeper jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_job_success",
		Help: "Successful sweeper job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_job_failure",
		Help: "Failed sweeper job executions.",
	}, []string{"job"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservations_expired_total",
		Help: "Reservations transitioned to expired by the sweeper.",
	})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_drift_detected_total",
		Help: "Items whose on-hand quantity disagreed with the movement ledger.",
	})
	reg.MustRegister(duration, success, failure, expired, drift)
	return &SweeperMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		expired:  expired,
		drift:    drift,
	}
}

// ObserveDuration records the duration for the named job.
func (s *SweeperMetrics) ObserveDuration(job string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (s *SweeperMetrics) IncSuccess(job string) {
	if s == nil || s.success == nil {
		return
	}
	s.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (s *SweeperMetrics) IncFailure(job string) {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// AddExpired records reservations released by the expiration job.
func (s *SweeperMetrics) AddExpired(n int) {
	if s == nil || s.expired == nil || n <= 0 {
		return
	}
	s.expired.Add(float64(n))
}

// AddDrift records items flagged by the reconciliation job.
func (s *SweeperMetrics) AddDrift(n int) {
	if s == nil || s.drift == nil || n <= 0 {
		return
	}
	s.drift.Add(float64(n))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
