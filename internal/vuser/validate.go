package vuser

import (
	"fmt"
	"strings"

	"github.com/forgebench/forgebench/internal/dispatch"
	"github.com/forgebench/forgebench/internal/scenario"
)

// ValidationFailure describes one validation that did not hold.
type ValidationFailure struct {
	Check  string
	Reason string
}

// evaluateValidations checks each declarative validation against the outcome.
// All validations are evaluated; failures are collected, not short-circuited.
// Error-rate validations apply to the aggregate and are skipped here.
func evaluateValidations(outcome *dispatch.Outcome, validations []scenario.Validation) []ValidationFailure {
	var failures []ValidationFailure

	for i := range validations {
		v := &validations[i]
		switch v.Type {
		case scenario.ValidateResponseTime:
			if reason := checkResponseTime(outcome.LatencyMs, v); reason != "" {
				failures = append(failures, ValidationFailure{Check: string(v.Type), Reason: reason})
			}

		case scenario.ValidateStatus:
			if reason := checkStatus(outcome, v); reason != "" {
				failures = append(failures, ValidationFailure{Check: string(v.Type), Reason: reason})
			}

		case scenario.ValidateContent:
			if reason := checkContent(outcome, v); reason != "" {
				failures = append(failures, ValidationFailure{Check: string(v.Type), Reason: reason})
			}

		case scenario.ValidateErrorRate:
			// Aggregate-level; evaluated by the success criteria instead.
		}
	}

	return failures
}

func checkResponseTime(latencyMs int64, v *scenario.Validation) string {
	threshold, ok := toFloat(v.Value)
	if !ok {
		return fmt.Sprintf("response-time validation has non-numeric value %v", v.Value)
	}

	actual := float64(latencyMs)
	switch v.Condition {
	case scenario.CondLessThan:
		if actual >= threshold {
			return fmt.Sprintf("response time %.0fms not below %.0fms", actual, threshold)
		}
	case scenario.CondGreaterThan:
		if actual <= threshold {
			return fmt.Sprintf("response time %.0fms not above %.0fms", actual, threshold)
		}
	case scenario.CondEquals:
		if actual != threshold {
			return fmt.Sprintf("response time %.0fms != %.0fms", actual, threshold)
		}
	default:
		return fmt.Sprintf("unsupported response-time condition %q", v.Condition)
	}
	return ""
}

func checkStatus(outcome *dispatch.Outcome, v *scenario.Validation) string {
	status, _ := outcome.Output["status"].(string)
	expected := fmt.Sprintf("%v", v.Value)

	switch v.Condition {
	case scenario.CondEquals:
		if status != expected {
			return fmt.Sprintf("status %q != %q", status, expected)
		}
	case scenario.CondContains:
		if !strings.Contains(status, expected) {
			return fmt.Sprintf("status %q does not contain %q", status, expected)
		}
	default:
		return fmt.Sprintf("unsupported status condition %q", v.Condition)
	}
	return ""
}

func checkContent(outcome *dispatch.Outcome, v *scenario.Validation) string {
	expected := fmt.Sprintf("%v", v.Value)
	body := fmt.Sprintf("%v", outcome.Output)

	switch v.Condition {
	case scenario.CondContains:
		if !strings.Contains(body, expected) {
			return fmt.Sprintf("output does not contain %q", expected)
		}
	case scenario.CondEquals:
		if body != expected {
			return fmt.Sprintf("output %q != %q", body, expected)
		}
	default:
		return fmt.Sprintf("unsupported content condition %q", v.Condition)
	}
	return ""
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
