package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forgebench/forgebench/internal/scenario"
)

func TestSimulatorDeterministicWithSeed(t *testing.T) {
	action := &scenario.Action{Type: scenario.ActionAPICall}

	run := func() []bool {
		sim := NewSimulator(123)
		sim.SetFallback(SimProfile{FailureRate: 0.5})
		results := make([]bool, 50)
		for i := range results {
			out, err := sim.Execute(context.Background(), action)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			results[i] = out.OK
		}
		return results
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("seeded simulators diverged at call %d", i)
		}
	}
}

func TestSimulatorFailureRate(t *testing.T) {
	sim := NewSimulator(7)
	sim.SetFallback(SimProfile{FailureRate: 0.10})
	action := &scenario.Action{Type: scenario.ActionExecuteCode}

	failed := 0
	const calls = 2000
	for i := 0; i < calls; i++ {
		out, err := sim.Execute(context.Background(), action)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !out.OK {
			if out.Error == nil {
				t.Fatal("failed outcome missing error")
			}
			failed++
		}
	}

	rate := float64(failed) / calls
	if rate < 0.07 || rate > 0.13 {
		t.Errorf("failure rate %.3f outside [0.07, 0.13]", rate)
	}
}

func TestWithTimeoutReportsTimeoutOutcome(t *testing.T) {
	slow := DispatcherFunc(func(ctx context.Context, action *scenario.Action) (*Outcome, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &Outcome{ActionType: action.Type, OK: true}, nil
		}
	})

	d := WithTimeout(slow)
	action := &scenario.Action{Type: scenario.ActionDatabaseQuery, TimeoutMs: 10}

	out, err := d.Execute(context.Background(), action)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.OK {
		t.Fatal("expected failed outcome")
	}
	if out.Error == nil || out.Error.Type != ErrorTypeTimeout {
		t.Fatalf("expected timeout error, got %+v", out.Error)
	}
	if !errors.Is(out.Error, context.DeadlineExceeded) {
		t.Error("timeout error should unwrap to context.DeadlineExceeded")
	}
}

func TestWithTimeoutPassesThroughSuccess(t *testing.T) {
	fast := DispatcherFunc(func(ctx context.Context, action *scenario.Action) (*Outcome, error) {
		return &Outcome{ActionType: action.Type, OK: true, LatencyMs: 1}, nil
	})

	out, err := WithTimeout(fast).Execute(context.Background(), &scenario.Action{Type: scenario.ActionAPICall})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.OK {
		t.Fatal("expected OK outcome")
	}
}
