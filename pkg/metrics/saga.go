package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics records outcomes of the redemption sagas and the lifecycle
// reconciler.
type SagaMetrics struct {
	duration      *prometheus.HistogramVec
	success       *prometheus.CounterVec
	failure       *prometheus.CounterVec
	compensations *prometheus.CounterVec
}

// NewSagaMetrics registers the saga metrics on the provided registerer.
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	if reg == nil {
		return &SagaMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_duration_seconds",
		Help:    "Duration of saga executions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"saga"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_success",
		Help: "Successful saga executions.",
	}, []string{"saga"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_failure",
		Help: "Failed saga executions.",
	}, []string{"saga"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_compensations",
		Help: "Compensation steps executed after a saga failure.",
	}, []string{"saga"})
	reg.MustRegister(duration, success, failure, compensations)
	return &SagaMetrics{
		duration:      duration,
		success:       success,
		failure:       failure,
		compensations: compensations,
	}
}

// ObserveDuration records the duration for the named saga.
func (s *SagaMetrics) ObserveDuration(saga string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(saga)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named saga.
func (s *SagaMetrics) IncSuccess(saga string) {
	if s == nil || s.success == nil {
		return
	}
	s.success.WithLabelValues(normalizeLabel(saga)).Inc()
}

// IncFailure increments the failure counter for the named saga.
func (s *SagaMetrics) IncFailure(saga string) {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.WithLabelValues(normalizeLabel(saga)).Inc()
}

// IncCompensation counts one executed compensation step.
func (s *SagaMetrics) IncCompensation(saga string) {
	if s == nil || s.compensations == nil {
		return
	}
	s.compensations.WithLabelValues(normalizeLabel(saga)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return strings.ReplaceAll(trimmed, " ", "_")
}
