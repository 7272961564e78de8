package analysis

import (
	"fmt"
	"strings"
	"time"
)

// RunSummary is the comparable slice of one finished run.
type RunSummary struct {
	Name              string    `json:"name"`
	Status            Status    `json:"status"`
	TotalRequests     int64     `json:"total_requests"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	P95ResponseTimeMs int64     `json:"p95_response_time_ms"`
	Throughput        float64   `json:"throughput"`
	ErrorRate         float64   `json:"error_rate"`
	CompletedAt       time.Time `json:"completed_at"`
}

// ComparisonEntry is one run in a comparison, with deltas against the
// previous entry. The first entry has zero deltas.
type ComparisonEntry struct {
	RunSummary

	// ResponseTimeDelta is the percentage change in avg response time
	// versus the previous run (negative = faster).
	ResponseTimeDelta float64 `json:"response_time_delta"`

	// ThroughputDelta is the percentage change in throughput versus the
	// previous run (positive = more).
	ThroughputDelta float64 `json:"throughput_delta"`

	// Flags marks noteworthy conditions ("failed", "aborted",
	// "high-error-rate").
	Flags []string `json:"flags,omitempty"`
}

// ComparisonReport holds an ordered cross-run comparison.
type ComparisonReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Entries     []ComparisonEntry `json:"entries"`
	Summary     string            `json:"summary"`
}

// highErrorRate flags runs whose error rate exceeds 5%.
const highErrorRate = 0.05

// BuildComparison compares runs in order. It is a pure function of its
// input: building the same comparison twice yields identical entries.
func BuildComparison(results []RunSummary) *ComparisonReport {
	report := &ComparisonReport{
		GeneratedAt: time.Now().UTC(),
		Entries:     make([]ComparisonEntry, 0, len(results)),
	}

	for i, r := range results {
		entry := ComparisonEntry{RunSummary: r}

		if i > 0 {
			prev := results[i-1]
			entry.ResponseTimeDelta = percentChange(prev.AvgResponseTimeMs, r.AvgResponseTimeMs)
			entry.ThroughputDelta = percentChange(prev.Throughput, r.Throughput)
		}

		switch r.Status {
		case StatusFailed:
			entry.Flags = append(entry.Flags, "failed")
		case StatusAborted:
			entry.Flags = append(entry.Flags, "aborted")
		}
		if r.ErrorRate > highErrorRate {
			entry.Flags = append(entry.Flags, "high-error-rate")
		}

		report.Entries = append(report.Entries, entry)
	}

	report.Summary = summarizeComparison(report.Entries)
	return report
}

// percentChange returns (new - old) / old * 100, capped at +100 when old is 0.
func percentChange(old, new float64) float64 {
	if old == 0 {
		if new == 0 {
			return 0
		}
		return 100
	}
	return ((new - old) / old) * 100
}

func summarizeComparison(entries []ComparisonEntry) string {
	if len(entries) == 0 {
		return "no runs to compare"
	}

	flagged := 0
	for _, e := range entries {
		if len(e.Flags) > 0 {
			flagged++
		}
	}

	if flagged == 0 {
		return fmt.Sprintf("%d runs compared, all passed", len(entries))
	}
	return fmt.Sprintf("%d runs compared, %d flagged", len(entries), flagged)
}

// FormatComparisonText renders the report as a plain-text table.
func FormatComparisonText(report *ComparisonReport) string {
	var b strings.Builder

	b.WriteString("Run Comparison\n")
	b.WriteString("==============\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "%-24s %-8s %10s %12s %12s %10s %s\n",
		"NAME", "STATUS", "REQUESTS", "AVG MS", "THROUGHPUT", "ERR RATE", "FLAGS")

	for _, e := range report.Entries {
		flags := strings.Join(e.Flags, ",")
		fmt.Fprintf(&b, "%-24s %-8s %10d %12.1f %12.2f %9.2f%% %s\n",
			e.Name, e.Status, e.TotalRequests, e.AvgResponseTimeMs, e.Throughput, e.ErrorRate*100, flags)
	}

	b.WriteString("\n")
	b.WriteString(report.Summary)
	b.WriteString("\n")
	return b.String()
}
