package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherCounter(t *testing.T, reg *prometheus.Registry, name, saga string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelValue(metric, "saga") == saga {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func TestSagaMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSagaMetrics(reg)

	m.IncSuccess("redeem")
	m.IncSuccess("redeem")
	m.IncFailure("redeem")
	m.IncCompensation("redeem")
	m.IncSuccess("remove")

	if got := gatherCounter(t, reg, "saga_success", "redeem"); got != 2 {
		t.Fatalf("expected 2 redeem successes got %v", got)
	}
	if got := gatherCounter(t, reg, "saga_failure", "redeem"); got != 1 {
		t.Fatalf("expected 1 redeem failure got %v", got)
	}
	if got := gatherCounter(t, reg, "saga_compensations", "redeem"); got != 1 {
		t.Fatalf("expected 1 redeem compensation got %v", got)
	}
	if got := gatherCounter(t, reg, "saga_success", "remove"); got != 1 {
		t.Fatalf("expected 1 remove success got %v", got)
	}
}

func TestSagaMetricsObserveDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSagaMetrics(reg)

	m.ObserveDuration("redeem", 120*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "saga_duration_seconds" {
			continue
		}
		metric := family.GetMetric()[0]
		if metric.GetHistogram().GetSampleCount() != 1 {
			t.Fatalf("expected 1 sample got %d", metric.GetHistogram().GetSampleCount())
		}
		return
	}
	t.Fatal("saga_duration_seconds not gathered")
}

func TestSagaMetricsNormalizesLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSagaMetrics(reg)

	m.IncSuccess("  Redeem Points ")
	if got := gatherCounter(t, reg, "saga_success", "redeem_points"); got != 1 {
		t.Fatalf("expected normalized label, got %v", got)
	}
}

func TestSagaMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewSagaMetrics(nil)
	m.IncSuccess("redeem")
	m.IncFailure("redeem")
	m.IncCompensation("redeem")
	m.ObserveDuration("redeem", time.Second)
}
