package otel

import (
	"context"
	"testing"
)

func TestNewMetricsDisabled(t *testing.T) {
	ctx := context.Background()

	m, err := NewMetrics(ctx, DefaultMetricsConfig())
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	defer m.Shutdown(ctx)

	if m.Enabled() {
		t.Error("expected metrics to be disabled by default")
	}

	// Instrument calls are no-ops when disabled; none should panic.
	m.RecordActionLatency(ctx, "scn", "api-call", 12.5, true)
	m.RecordError(ctx, "timeout")
	m.RecordAlert(ctx, "memory", "abort")
	m.SetActiveUsers(10)
}

func TestNewMetricsNilConfig(t *testing.T) {
	ctx := context.Background()

	m, err := NewMetrics(ctx, nil)
	if err != nil {
		t.Fatalf("NewMetrics with nil config failed: %v", err)
	}
	defer m.Shutdown(ctx)

	if m.Enabled() {
		t.Error("expected metrics to be disabled with nil config")
	}
}

func TestNewMetricsStdout(t *testing.T) {
	ctx := context.Background()
	cfg := &MetricsConfig{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: ExporterStdout,
	}

	m, err := NewMetrics(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMetrics with stdout exporter failed: %v", err)
	}
	defer m.Shutdown(ctx)

	if !m.Enabled() {
		t.Error("expected metrics to be enabled")
	}

	m.RecordActionLatency(ctx, "scn", "database-query", 40, false)
	m.RecordError(ctx, "execution")
	m.RecordAlert(ctx, "error_rate", "notify")
	m.SetActiveUsers(25)
}

func TestMetricsUnknownExporter(t *testing.T) {
	ctx := context.Background()
	cfg := &MetricsConfig{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: ExporterType("bogus"),
	}

	if _, err := NewMetrics(ctx, cfg); err == nil {
		t.Error("expected error for unknown exporter type")
	}
}

func TestGlobalMetrics(t *testing.T) {
	SetGlobalMetrics(nil)
	if GetGlobalMetrics() == nil {
		t.Fatal("expected non-nil noop metrics when unset")
	}

	m := NoopMetrics()
	SetGlobalMetrics(m)
	defer SetGlobalMetrics(nil)

	if GetGlobalMetrics() != m {
		t.Error("expected global metrics to be returned")
	}
}
