package alerting

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgebench/forgebench/internal/metrics"
)

type fakeSource map[string]float64

func (f fakeSource) MetricValue(name string) (float64, bool) {
	v, ok := f[name]
	return v, ok
}

type recordedEntry struct {
	event string
	value float64
	typ   metrics.EntryType
}

type fakeTimeline struct {
	entries []recordedEntry
}

func (f *fakeTimeline) AddTimeline(event string, value float64, typ metrics.EntryType) {
	f.entries = append(f.entries, recordedEntry{event, value, typ})
}

func TestEvaluateStrictGreaterThan(t *testing.T) {
	src := fakeSource{"error_rate": 0.05}
	m := NewMonitor([]AlertConfig{
		{Metric: "error_rate", Threshold: 0.05, Action: ActionLog},
	}, src, nil, time.Second, nil)

	if fired := m.Evaluate(time.Now()); len(fired) != 0 {
		t.Errorf("value equal to threshold fired %d alerts, want 0", len(fired))
	}

	src["error_rate"] = 0.051
	if fired := m.Evaluate(time.Now()); len(fired) != 1 {
		t.Errorf("value above threshold fired %d alerts, want 1", len(fired))
	}
}

func TestEvaluateUnknownMetricNeverFires(t *testing.T) {
	m := NewMonitor([]AlertConfig{
		{Metric: "no_such_metric", Threshold: 0, Action: ActionAbort},
	}, fakeSource{}, nil, time.Second, nil)

	if fired := m.Evaluate(time.Now()); len(fired) != 0 {
		t.Errorf("unknown metric fired %d alerts", len(fired))
	}
}

func TestEvaluateRefiresEveryTick(t *testing.T) {
	src := fakeSource{"memory": 0.95}
	tl := &fakeTimeline{}
	m := NewMonitor([]AlertConfig{
		{Metric: "memory", Threshold: 0.9, Action: ActionLog},
	}, src, tl, time.Second, nil)

	for i := 0; i < 3; i++ {
		if fired := m.Evaluate(time.Now()); len(fired) != 1 {
			t.Fatalf("tick %d fired %d alerts, want 1 (no dedup)", i, len(fired))
		}
	}
	if len(tl.entries) != 3 {
		t.Errorf("timeline entries = %d, want 3", len(tl.entries))
	}
	for _, e := range tl.entries {
		if e.typ != metrics.EntryAlert {
			t.Errorf("entry type = %q, want alert", e.typ)
		}
		if e.event != "alert:memory" {
			t.Errorf("entry event = %q", e.event)
		}
	}
}

func TestAbortActionSetsFlag(t *testing.T) {
	var abort atomic.Bool
	tl := &fakeTimeline{}
	m := NewMonitor([]AlertConfig{
		{Metric: "memory", Threshold: 0.9, Action: ActionAbort},
	}, fakeSource{"memory": 0.99}, tl, time.Second, &abort)

	m.Evaluate(time.Now())

	if !abort.Load() {
		t.Error("abort flag not set")
	}
	if len(tl.entries) != 1 {
		t.Fatalf("timeline entries = %d, want 1", len(tl.entries))
	}
}

func TestNotifyActionSendsAlert(t *testing.T) {
	m := NewMonitor([]AlertConfig{
		{Metric: "cpu", Threshold: 80, Action: ActionNotify},
	}, fakeSource{"cpu": 91.5}, nil, time.Second, nil)

	m.Evaluate(time.Now())

	select {
	case a := <-m.Notifications():
		if a.Metric != "cpu" || a.Value != 91.5 || a.Threshold != 80 {
			t.Errorf("unexpected alert: %+v", a)
		}
	default:
		t.Fatal("no alert on notify channel")
	}
}

func TestMonitorAgainstAggregator(t *testing.T) {
	probe := metrics.ResourceProbeFunc(func() (metrics.ResourceSample, error) {
		return metrics.ResourceSample{MemoryFraction: 0.95}, nil
	})
	agg := metrics.NewAggregator(probe)
	agg.Tick(time.Now())

	var abort atomic.Bool
	m := NewMonitor([]AlertConfig{
		{Metric: "memory", Threshold: 0.9, Action: ActionAbort},
	}, agg, agg, time.Second, &abort)

	fired := m.Evaluate(time.Now())
	if len(fired) != 1 {
		t.Fatalf("fired = %d, want 1", len(fired))
	}
	if !abort.Load() {
		t.Error("abort flag not set from aggregator-backed breach")
	}

	found := false
	for _, e := range agg.Timeline() {
		if e.Type == metrics.EntryAlert {
			found = true
		}
	}
	if !found {
		t.Error("no alert entry in aggregator timeline")
	}
}
