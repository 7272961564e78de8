package runner

import (
	"time"

	"github.com/forgebench/forgebench/internal/analysis"
	"github.com/forgebench/forgebench/internal/config"
	"github.com/forgebench/forgebench/internal/metrics"
)

// TestResult is the immutable snapshot produced once per run.
type TestResult struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Status analysis.Status `json:"status"`

	// Config is the validated configuration the run executed with.
	Config *config.StressTestConfig `json:"config,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Metrics  metrics.StressMetrics   `json:"metrics"`
	Timeline []metrics.TimelineEntry `json:"timeline"`
	Errors   []metrics.StressError   `json:"errors"`

	Evaluation *analysis.Evaluation `json:"evaluation"`
}

// Summary projects the result into the comparable form used by
// cross-run comparison reports.
func (r *TestResult) Summary() analysis.RunSummary {
	return analysis.RunSummary{
		Name:              r.Name,
		Status:            r.Status,
		TotalRequests:     r.Metrics.Requests.Total,
		AvgResponseTimeMs: r.Metrics.Requests.AvgResponseTimeMs,
		P95ResponseTimeMs: r.Metrics.Requests.P95ResponseTimeMs,
		Throughput:        r.Metrics.Requests.Throughput,
		ErrorRate:         r.Metrics.Requests.ErrorRate,
		CompletedAt:       r.EndTime,
	}
}
