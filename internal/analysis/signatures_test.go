package analysis

import (
	"fmt"
	"testing"

	"github.com/forgebench/forgebench/internal/metrics"
)

func TestNormalizeError(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			"session 550e8400-e29b-41d4-a716-446655440000 expired",
			"session <UUID> expired",
		},
		{
			"timeout at 2026-08-27T10:15:00 after 30 retries",
			"timeout at <TS> after <NUM> retries",
		},
		{
			"dial 10.0.0.12: connection refused",
			"dial <IP>: connection refused",
		},
		{
			"open /var/data/run-42.json: no such file",
			"open <PATH>: no such file",
		},
		{
			"status 503 from upstream",
			"status <NUM> from upstream",
		},
	}

	for _, tc := range cases {
		if got := NormalizeError(tc.in); got != tc.want {
			t.Errorf("NormalizeError(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractSignaturesGrouping(t *testing.T) {
	var errs []metrics.StressError
	for i := 0; i < 5; i++ {
		errs = append(errs, metrics.StressError{
			Scenario: "checkout",
			Action:   "pay",
			Error:    fmt.Sprintf("timeout after %d ms", 100+i),
		})
	}
	errs = append(errs, metrics.StressError{
		Scenario: "browse",
		Action:   "search",
		Error:    "status 503 from upstream",
	})

	sigs := ExtractSignatures(errs, 0)
	if len(sigs) != 2 {
		t.Fatalf("signatures = %d, want 2", len(sigs))
	}

	top := sigs[0]
	if top.Pattern != "timeout after <NUM> ms" || top.Count != 5 {
		t.Errorf("top signature = %+v", top)
	}
	if len(top.AffectedScenarios) != 1 || top.AffectedScenarios[0] != "checkout" {
		t.Errorf("scenarios = %v", top.AffectedScenarios)
	}
	if top.SampleError != "timeout after 100 ms" {
		t.Errorf("sample = %q", top.SampleError)
	}
}

func TestExtractSignaturesTopN(t *testing.T) {
	var errs []metrics.StressError
	for i := 0; i < 4; i++ {
		errs = append(errs, metrics.StressError{Error: fmt.Sprintf("distinct failure kind %c", 'a'+i)})
	}

	sigs := ExtractSignatures(errs, 2)
	if len(sigs) != 2 {
		t.Errorf("topN not applied: %d signatures", len(sigs))
	}
}

func TestExtractSignaturesEmpty(t *testing.T) {
	if sigs := ExtractSignatures(nil, 10); len(sigs) != 0 {
		t.Errorf("signatures from nil input: %v", sigs)
	}
	if sigs := ExtractSignatures([]metrics.StressError{{Error: ""}}, 10); len(sigs) != 0 {
		t.Errorf("signatures from blank errors: %v", sigs)
	}
}
