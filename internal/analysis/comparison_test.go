package analysis

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func sampleSummaries() []RunSummary {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []RunSummary{
		{Name: "baseline", Status: StatusPassed, TotalRequests: 1000, AvgResponseTimeMs: 100, Throughput: 50, ErrorRate: 0.01, CompletedAt: base},
		{Name: "tuned", Status: StatusPassed, TotalRequests: 1200, AvgResponseTimeMs: 80, Throughput: 60, ErrorRate: 0.01, CompletedAt: base.Add(time.Hour)},
		{Name: "overload", Status: StatusFailed, TotalRequests: 900, AvgResponseTimeMs: 400, Throughput: 30, ErrorRate: 0.12, CompletedAt: base.Add(2 * time.Hour)},
	}
}

func TestBuildComparisonDeltas(t *testing.T) {
	report := BuildComparison(sampleSummaries())
	if len(report.Entries) != 3 {
		t.Fatalf("entries = %d", len(report.Entries))
	}

	first := report.Entries[0]
	if first.ResponseTimeDelta != 0 || first.ThroughputDelta != 0 {
		t.Errorf("first entry should have zero deltas: %+v", first)
	}

	second := report.Entries[1]
	if second.ResponseTimeDelta != -20 {
		t.Errorf("response time delta = %v, want -20", second.ResponseTimeDelta)
	}
	if second.ThroughputDelta != 20 {
		t.Errorf("throughput delta = %v, want 20", second.ThroughputDelta)
	}
}

func TestBuildComparisonFlags(t *testing.T) {
	report := BuildComparison(sampleSummaries())

	if len(report.Entries[0].Flags) != 0 {
		t.Errorf("passing run flagged: %v", report.Entries[0].Flags)
	}

	flags := report.Entries[2].Flags
	want := []string{"failed", "high-error-rate"}
	if !reflect.DeepEqual(flags, want) {
		t.Errorf("flags = %v, want %v", flags, want)
	}
}

func TestBuildComparisonIdempotent(t *testing.T) {
	in := sampleSummaries()
	a := BuildComparison(in)
	b := BuildComparison(in)

	if !reflect.DeepEqual(a.Entries, b.Entries) {
		t.Error("comparison entries differ between identical builds")
	}
	if a.Summary != b.Summary {
		t.Errorf("summaries differ: %q vs %q", a.Summary, b.Summary)
	}
}

func TestBuildComparisonEmpty(t *testing.T) {
	report := BuildComparison(nil)
	if len(report.Entries) != 0 {
		t.Errorf("entries = %d", len(report.Entries))
	}
	if report.Summary != "no runs to compare" {
		t.Errorf("summary = %q", report.Summary)
	}
}

func TestFormatComparisonText(t *testing.T) {
	text := FormatComparisonText(BuildComparison(sampleSummaries()))
	for _, want := range []string{"baseline", "tuned", "overload", "failed,high-error-rate"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
}
