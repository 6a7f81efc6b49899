package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
)

// MetricsOptions configures the revocation metrics collectors.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// Metrics implements port.RevocationMetrics with Prometheus collectors.
type Metrics struct {
	CacheOperations *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	CacheAvailable  prometheus.Gauge
	Validations     *prometheus.CounterVec
	AuditFailures   prometheus.Counter
}

// NewMetrics constructs the collectors and registers them with the provided registerer.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "tokens"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	cacheOps, err := RegisterCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "revocation",
		Name:      "cache_operations_total",
		Help:      "Cache tier operations partitioned by operation and outcome.",
	}, []string{"op", "outcome"}))
	if err != nil {
		return nil, err
	}

	fallbacks, err := RegisterCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "revocation",
		Name:      "durable_fallbacks_total",
		Help:      "Operations served by the durable tier while the cache was unavailable.",
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}

	available, err := RegisterCollector(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "revocation",
		Name:      "cache_available",
		Help:      "1 when the cache circuit breaker is closed, 0 when open.",
	}))
	if err != nil {
		return nil, err
	}

	validations, err := RegisterCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "results_total",
		Help:      "Token validation results partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	auditFailures, err := RegisterCollector(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "failures_total",
		Help:      "Audit events the sink failed to record.",
	}))
	if err != nil {
		return nil, err
	}

	available.Set(1)

	return &Metrics{
		CacheOperations: cacheOps,
		Fallbacks:       fallbacks,
		CacheAvailable:  available,
		Validations:     validations,
		AuditFailures:   auditFailures,
	}, nil
}

// RegisterCollector registers collector, reusing an identical collector that is
// already registered.
func RegisterCollector[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

func (m *Metrics) ObserveCacheOperation(op, outcome string) {
	m.CacheOperations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) IncFallback(op string) {
	m.Fallbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) SetCacheAvailable(available bool) {
	if available {
		m.CacheAvailable.Set(1)
		return
	}
	m.CacheAvailable.Set(0)
}

func (m *Metrics) IncValidation(outcome string) {
	m.Validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAuditFailure() {
	m.AuditFailures.Inc()
}

var _ port.RevocationMetrics = (*Metrics)(nil)
