package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestAgentMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAgentMetrics(reg)
	m.ObserveTurn("patient", "answered", 3)
	m.ObserveTurn("patient", "capped", 5)
	m.ObserveToolCall("book_new_appointment", "ok")
	m.ObserveToolCall("book_new_appointment", "error")
	m.ObserveToolCall("book_new_appointment", "ok")
	m.ObserveLLMLatency("bedrock", "ok", 0.8)

	rounds := findFamily(t, reg, "medbook_agent_rounds")
	if got := rounds.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Fatalf("expected 2 round observations, got %d", got)
	}
	if got := rounds.GetMetric()[0].GetHistogram().GetSampleSum(); got != 8 {
		t.Fatalf("expected round sum 8, got %v", got)
	}

	calls := findFamily(t, reg, "medbook_agent_tool_calls_total")
	for _, metric := range calls.GetMetric() {
		want := 2.0
		if labelValue(metric, "status") == "error" {
			want = 1
		}
		if metric.GetCounter().GetValue() != want {
			t.Fatalf("status %s: expected %v, got %v", labelValue(metric, "status"), want, metric.GetCounter().GetValue())
		}
	}
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking("success")
	m.ObserveSideEffect("email", nil)
	m.ObserveSideEffect("calendar", errors.New("down"))

	fam := findFamily(t, reg, "medbook_side_effects_total")
	if len(fam.GetMetric()) != 2 {
		t.Fatalf("expected two label sets, got %d", len(fam.GetMetric()))
	}
	for _, metric := range fam.GetMetric() {
		effect := labelValue(metric, "effect")
		status := labelValue(metric, "status")
		if (effect == "calendar") != (status == "failed") {
			t.Fatalf("unexpected pairing effect=%s status=%s", effect, status)
		}
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var a *AgentMetrics
	a.ObserveTurn("doctor", "answered", 1)
	a.ObserveToolCall("x", "ok")
	a.ObserveLLMLatency("gemini", "error", 1)

	var b *BookingMetrics
	b.ObserveBooking("conflict")
	b.ObserveSideEffect("email", nil)
}
