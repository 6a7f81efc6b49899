package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordsRevocationActivity(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	if got := testutil.ToFloat64(metrics.CacheAvailable); got != 1 {
		t.Fatalf("expected cache to start available, got %f", got)
	}

	metrics.ObserveCacheOperation("blacklist_check", "ok")
	metrics.ObserveCacheOperation("blacklist_check", "ok")
	metrics.IncFallback("blacklist_add")
	metrics.SetCacheAvailable(false)
	metrics.IncValidation("revoked")
	metrics.IncAuditFailure()

	if got := testutil.ToFloat64(metrics.CacheOperations.WithLabelValues("blacklist_check", "ok")); got != 2 {
		t.Fatalf("expected 2 cache operations, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("blacklist_add")); got != 1 {
		t.Fatalf("expected 1 fallback, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.CacheAvailable); got != 0 {
		t.Fatalf("expected cache unavailable gauge, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Validations.WithLabelValues("revoked")); got != 1 {
		t.Fatalf("expected 1 revoked validation, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.AuditFailures); got != 1 {
		t.Fatalf("expected 1 audit failure, got %f", got)
	}
}

func TestMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	second, err := NewMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("expected re-registration to succeed, got %v", err)
	}

	first.IncFallback("version_get")
	if got := testutil.ToFloat64(second.Fallbacks.WithLabelValues("version_get")); got != 1 {
		t.Fatalf("expected shared collector, got %f", got)
	}
}
