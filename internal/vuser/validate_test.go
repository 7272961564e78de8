package vuser

import (
	"testing"

	"github.com/forgebench/forgebench/internal/dispatch"
	"github.com/forgebench/forgebench/internal/scenario"
)

func TestEvaluateValidationsCollectsAllFailures(t *testing.T) {
	outcome := &dispatch.Outcome{
		LatencyMs: 200,
		OK:        true,
		Output:    map[string]interface{}{"status": "degraded"},
	}
	validations := []scenario.Validation{
		{Type: scenario.ValidateResponseTime, Condition: scenario.CondLessThan, Value: 100},
		{Type: scenario.ValidateStatus, Condition: scenario.CondEquals, Value: "ok"},
	}

	failures := evaluateValidations(outcome, validations)
	if len(failures) != 2 {
		t.Fatalf("failures = %d, want 2 (no short-circuit)", len(failures))
	}
}

func TestEvaluateValidationsPass(t *testing.T) {
	outcome := &dispatch.Outcome{
		LatencyMs: 20,
		OK:        true,
		Output:    map[string]interface{}{"status": "ok", "body": "hello world"},
	}
	validations := []scenario.Validation{
		{Type: scenario.ValidateResponseTime, Condition: scenario.CondLessThan, Value: 100},
		{Type: scenario.ValidateStatus, Condition: scenario.CondEquals, Value: "ok"},
		{Type: scenario.ValidateContent, Condition: scenario.CondContains, Value: "hello"},
	}

	if failures := evaluateValidations(outcome, validations); len(failures) != 0 {
		t.Errorf("unexpected failures: %+v", failures)
	}
}

func TestEvaluateValidationsErrorRateSkipped(t *testing.T) {
	outcome := &dispatch.Outcome{LatencyMs: 1, OK: true}
	validations := []scenario.Validation{
		{Type: scenario.ValidateErrorRate, Condition: scenario.CondLessThan, Value: 0.01},
	}

	if failures := evaluateValidations(outcome, validations); len(failures) != 0 {
		t.Errorf("error-rate validation should be aggregate-level, got %+v", failures)
	}
}

func TestCheckResponseTimeNonNumericValue(t *testing.T) {
	v := &scenario.Validation{Type: scenario.ValidateResponseTime, Condition: scenario.CondLessThan, Value: "fast"}
	if reason := checkResponseTime(10, v); reason == "" {
		t.Error("expected failure for non-numeric threshold")
	}
}
