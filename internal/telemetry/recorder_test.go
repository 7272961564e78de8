package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/forgebench/forgebench/internal/metrics"
)

func TestRecorderWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitterWithWriter(&buf, nil)
	rec := NewRecorder(&RecorderConfig{FlushInterval: 10 * time.Millisecond}, emitter)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec.RecordMilestone("t1", "run_started")
	rec.RecordTimeline("t1", metrics.TimelineEntry{
		Timestamp: time.Now(),
		Event:     "memory",
		Value:     0.42,
		Type:      metrics.EntryMetric,
	})
	rec.RecordError("t1", metrics.StressError{
		Timestamp: time.Now(),
		Scenario:  "checkout",
		Action:    "pay",
		Error:     "timeout",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rec.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, output:\n%s", len(lines), buf.String())
	}

	var first RunRecord
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 is not JSON: %v", err)
	}
	if first.Version != RecordVersion || first.TestID != "t1" {
		t.Errorf("first record = %+v", first)
	}
	if first.Timeline == nil || first.Timeline.Event != "run_started" {
		t.Errorf("first timeline = %+v", first.Timeline)
	}

	var last RunRecord
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatalf("line 2 is not JSON: %v", err)
	}
	if last.Type != "error" || last.Error == nil || last.Error.Scenario != "checkout" {
		t.Errorf("last record = %+v", last)
	}
}

func TestRecorderStopIdempotent(t *testing.T) {
	rec := NewRecorder(nil, nil)
	if err := rec.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := rec.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := rec.Stop(ctx); err != nil {
		t.Errorf("second stop: %v", err)
	}

	// Records after stop are silently dropped.
	rec.RecordMilestone("t1", "late")
}

func TestTierForEntryType(t *testing.T) {
	if tierFor(metrics.EntryMetric) != Tier2Metric {
		t.Error("metric entries should be sheddable")
	}
	if tierFor(metrics.EntryError) != Tier1Error {
		t.Error("error entries should be tier 1")
	}
	if tierFor(metrics.EntryAlert) != Tier0Lifecycle {
		t.Error("alert entries must never be shed")
	}
	if tierFor(metrics.EntryMilestone) != Tier0Lifecycle {
		t.Error("milestone entries must never be shed")
	}
}
