package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgebench/forgebench/internal/alerting"
	"github.com/forgebench/forgebench/internal/analysis"
	"github.com/forgebench/forgebench/internal/config"
	"github.com/forgebench/forgebench/internal/dispatch"
	"github.com/forgebench/forgebench/internal/metrics"
	"github.com/forgebench/forgebench/internal/scenario"
	"github.com/forgebench/forgebench/internal/telemetry"
)

// okDispatcher always succeeds immediately.
type okDispatcher struct{}

func (okDispatcher) Execute(ctx context.Context, action *scenario.Action) (*dispatch.Outcome, error) {
	return &dispatch.Outcome{
		ActionType: action.Type,
		StartTime:  time.Now(),
		LatencyMs:  2,
		OK:         true,
		Output:     map[string]interface{}{"status": "ok"},
	}, nil
}

// failingDispatcher fails every tenth call deterministically.
type failingDispatcher struct {
	calls atomic.Int64
}

func (d *failingDispatcher) Execute(ctx context.Context, action *scenario.Action) (*dispatch.Outcome, error) {
	n := d.calls.Add(1)
	out := &dispatch.Outcome{
		ActionType: action.Type,
		StartTime:  time.Now(),
		LatencyMs:  2,
		OK:         n%10 != 0,
	}
	if !out.OK {
		out.Error = &dispatch.ActionError{
			Type:    dispatch.ErrorTypeExecution,
			Code:    "INJECTED",
			Message: "injected failure",
		}
	} else {
		out.Output = map[string]interface{}{"status": "ok"}
	}
	return out, nil
}

func flatProbe(memFrac, cpu float64) metrics.ResourceProbe {
	return metrics.ResourceProbeFunc(func() (metrics.ResourceSample, error) {
		return metrics.ResourceSample{MemoryFraction: memFrac, CPUPercent: cpu}, nil
	})
}

func quickConfig(name string) *config.StressTestConfig {
	return &config.StressTestConfig{
		Name:         name,
		DurationMs:   700,
		RampUpTimeMs: 200,
		TargetLoad: scenario.LoadProfile{
			ConcurrentUsers:   12,
			SessionDurationMs: 60000,
			ThinkTimeMs:       1,
		},
		Scenarios: []scenario.Scenario{
			{ID: "browse", Weight: 60, Actions: []scenario.Action{{Type: scenario.ActionAPICall}}},
			{ID: "query", Weight: 40, Actions: []scenario.Action{{Type: scenario.ActionDatabaseQuery}}},
		},
		SuccessCriteria: config.SuccessCriteria{MaxErrorRate: 0.05},
		Monitoring:      config.MonitoringConfig{IntervalMs: 100},
		Seed:            42,
	}
}

func TestRunPassesWithCleanDispatcher(t *testing.T) {
	r := New(Options{Probe: flatProbe(0.3, 20), Dispatcher: okDispatcher{}})

	result, err := r.Run(context.Background(), quickConfig("clean"))
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != analysis.StatusPassed {
		t.Errorf("status = %q, reasons %v", result.Status, result.Evaluation.Reasons)
	}
	if result.Metrics.Requests.ErrorRate != 0 {
		t.Errorf("error rate = %v", result.Metrics.Requests.ErrorRate)
	}
	if result.Metrics.Requests.Total == 0 {
		t.Error("no requests recorded")
	}
	if got := result.Metrics.Requests.Successful + result.Metrics.Requests.Failed; got != result.Metrics.Requests.Total {
		t.Errorf("successful+failed = %d, total = %d", got, result.Metrics.Requests.Total)
	}
	if result.ID == "" {
		t.Error("missing test id")
	}
}

func TestRunFailsOnInjectedErrors(t *testing.T) {
	r := New(Options{Probe: flatProbe(0.3, 20), Dispatcher: &failingDispatcher{}})

	result, err := r.Run(context.Background(), quickConfig("flaky"))
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != analysis.StatusFailed {
		t.Errorf("status = %q with error rate %v", result.Status, result.Metrics.Requests.ErrorRate)
	}

	rate := result.Metrics.Requests.ErrorRate
	if rate < 0.05 || rate > 0.15 {
		t.Errorf("error rate = %v, want roughly 0.10", rate)
	}
	if int64(len(result.Errors)) != result.Metrics.Requests.Failed {
		t.Errorf("errors recorded = %d, failed = %d", len(result.Errors), result.Metrics.Requests.Failed)
	}
}

func TestRunAbortsOnMemoryAlert(t *testing.T) {
	r := New(Options{Probe: flatProbe(0.95, 20), Dispatcher: okDispatcher{}})

	cfg := quickConfig("oom")
	cfg.DurationMs = 5000
	cfg.RampUpTimeMs = 1000
	cfg.Monitoring.IntervalMs = 50
	cfg.Monitoring.Alerts = []alerting.AlertConfig{
		{Metric: "memory", Threshold: 0.9, Action: alerting.ActionAbort},
	}

	start := time.Now()
	result, err := r.Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != analysis.StatusAborted {
		t.Fatalf("status = %q", result.Status)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("abort did not cut the run short: %v", elapsed)
	}

	found := false
	for _, entry := range result.Timeline {
		if entry.Type == metrics.EntryAlert {
			found = true
			break
		}
	}
	if !found {
		t.Error("no alert entry in timeline")
	}
}

func TestRunHistoryAndComparison(t *testing.T) {
	r := New(Options{Probe: flatProbe(0.3, 20), Dispatcher: okDispatcher{}})

	ctx := context.Background()
	if _, err := r.Run(ctx, quickConfig("base")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(ctx, quickConfig("next")); err != nil {
		t.Fatal(err)
	}

	if got := len(r.Results("base")); got != 1 {
		t.Errorf("results for base = %d", got)
	}

	a, err := r.ComparisonReport("base", "next")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.ComparisonReport("base", "next")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Entries) != 2 || len(b.Entries) != 2 {
		t.Fatalf("entries = %d, %d", len(a.Entries), len(b.Entries))
	}
	for i := range a.Entries {
		if a.Entries[i].RunSummary != b.Entries[i].RunSummary {
			t.Errorf("entry %d differs between rebuilds", i)
		}
	}

	if _, err := r.ComparisonReport("missing"); err == nil {
		t.Error("expected error for unknown test name")
	}
}

type failingSink struct{}

func (failingSink) Store(ctx context.Context, id string, data []byte) error {
	return errors.New("disk full")
}
func (failingSink) Load(ctx context.Context, id string) ([]byte, error) {
	return nil, errors.New("disk full")
}
func (failingSink) List(ctx context.Context) ([]string, error) {
	return nil, errors.New("disk full")
}

func TestRunToleratesStoreFailure(t *testing.T) {
	r := New(Options{Probe: flatProbe(0.3, 20), Dispatcher: okDispatcher{}, Sink: failingSink{}})

	result, err := r.Run(context.Background(), quickConfig("store-fail"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != analysis.StatusPassed {
		t.Errorf("store failure changed status: %q", result.Status)
	}
	if got := len(r.Results("store-fail")); got != 1 {
		t.Errorf("history missing result: %d", got)
	}
}

func TestRunPersistsToSink(t *testing.T) {
	sink := telemetry.NewMemorySink()
	r := New(Options{Probe: flatProbe(0.3, 20), Dispatcher: okDispatcher{}, Sink: sink})

	result, err := r.Run(context.Background(), quickConfig("persisted"))
	if err != nil {
		t.Fatal(err)
	}

	data, err := sink.Load(context.Background(), result.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("empty stored result")
	}
}

func TestAbortUnknownTest(t *testing.T) {
	r := New(Options{})
	if err := r.Abort("nope"); err == nil {
		t.Error("expected error for unknown test id")
	}
}

func TestSplitUsers(t *testing.T) {
	cases := []struct {
		total, workers int
		want           []int
	}{
		{10, 4, []int{3, 3, 2, 2}},
		{4, 4, []int{1, 1, 1, 1}},
		{7, 2, []int{4, 3}},
		{1, 1, []int{1}},
	}
	for _, tc := range cases {
		got := splitUsers(tc.total, tc.workers)
		sum := 0
		for i, n := range got {
			sum += n
			if n != tc.want[i] {
				t.Errorf("splitUsers(%d,%d) = %v, want %v", tc.total, tc.workers, got, tc.want)
				break
			}
		}
		if sum != tc.total {
			t.Errorf("splitUsers(%d,%d) sums to %d", tc.total, tc.workers, sum)
		}
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	r := New(Options{})
	bad := quickConfig("bad")
	bad.TargetLoad.ConcurrentUsers = 0
	if _, err := r.Run(context.Background(), bad); err == nil {
		t.Error("expected validation error")
	}
	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func ExampleRunner_Run() {
	r := New(Options{Probe: flatProbe(0.2, 10), Dispatcher: okDispatcher{}})
	cfg := quickConfig("example")
	result, err := r.Run(context.Background(), cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(result.Status)
	// Output: passed
}
