// Package analysis evaluates finished runs: success criteria, bottleneck
// heuristics, recommendations, and cross-run comparison.
package analysis

import (
	"fmt"

	"github.com/forgebench/forgebench/internal/config"
	"github.com/forgebench/forgebench/internal/metrics"
)

// Status is the final verdict of a run.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// ResolveStatus applies the verdict precedence: aborted beats failed beats
// passed. An aborted run is reported as aborted even if its metrics happened
// to satisfy the criteria.
func ResolveStatus(aborted, passed bool) Status {
	switch {
	case aborted:
		return StatusAborted
	case !passed:
		return StatusFailed
	default:
		return StatusPassed
	}
}

// Severity ranks a bottleneck's impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// BottleneckType identifies the suspected limiting resource.
type BottleneckType string

const (
	BottleneckAPI    BottleneckType = "api"
	BottleneckMemory BottleneckType = "memory"
	BottleneckCPU    BottleneckType = "cpu"
)

// Bottleneck is one suspected limiter identified by the heuristics.
type Bottleneck struct {
	Type        BottleneckType `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
}

// Evaluation is the full verdict for a run's metrics.
type Evaluation struct {
	Passed          bool         `json:"passed"`
	Reasons         []string     `json:"reasons,omitempty"`
	Bottlenecks     []Bottleneck `json:"bottlenecks,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
}

// Evaluate checks the metrics against the success criteria. Every violated
// criterion contributes a reason; checks are not short-circuited.
func Evaluate(m metrics.StressMetrics, crit config.SuccessCriteria) *Evaluation {
	ev := &Evaluation{Passed: true}

	fail := func(format string, args ...interface{}) {
		ev.Passed = false
		ev.Reasons = append(ev.Reasons, fmt.Sprintf(format, args...))
	}

	if crit.MaxResponseTimeMs > 0 && m.Requests.MaxResponseTimeMs > crit.MaxResponseTimeMs {
		fail("max response time %dms exceeds limit %dms", m.Requests.MaxResponseTimeMs, crit.MaxResponseTimeMs)
	}
	if m.Requests.ErrorRate > crit.MaxErrorRate {
		fail("error rate %.4f exceeds limit %.4f", m.Requests.ErrorRate, crit.MaxErrorRate)
	}
	if crit.MinThroughput > 0 && m.Requests.Throughput < crit.MinThroughput {
		fail("throughput %.2f req/s below minimum %.2f", m.Requests.Throughput, crit.MinThroughput)
	}
	if crit.MaxMemoryUsage > 0 && m.Resources.PeakMemoryFraction > crit.MaxMemoryUsage {
		fail("peak memory %.2f exceeds limit %.2f", m.Resources.PeakMemoryFraction, crit.MaxMemoryUsage)
	}
	if crit.MaxCPUUsage > 0 && m.Resources.P95CPUPercent > crit.MaxCPUUsage {
		fail("p95 CPU %.1f%% exceeds limit %.1f%%", m.Resources.P95CPUPercent, crit.MaxCPUUsage)
	}

	for _, check := range crit.CustomChecks {
		if check.Check == nil {
			continue
		}
		if !check.Check(m) {
			fail("custom check %q failed", check.Name)
		}
	}

	ev.Bottlenecks = DetectBottlenecks(m, crit)
	ev.Recommendations = Recommend(ev.Bottlenecks, m)
	return ev
}

// Latency thresholds for the API bottleneck heuristic, in milliseconds.
const (
	apiSlowP95Ms     = 3000
	apiCriticalP95Ms = 5000
)

// DetectBottlenecks applies fixed heuristics over the aggregate metrics.
func DetectBottlenecks(m metrics.StressMetrics, crit config.SuccessCriteria) []Bottleneck {
	var out []Bottleneck

	if m.Requests.P95ResponseTimeMs > apiSlowP95Ms {
		sev := SeverityHigh
		if m.Requests.P95ResponseTimeMs > apiCriticalP95Ms {
			sev = SeverityCritical
		}
		out = append(out, Bottleneck{
			Type:        BottleneckAPI,
			Severity:    sev,
			Description: fmt.Sprintf("p95 response time %dms indicates slow backend responses", m.Requests.P95ResponseTimeMs),
		})
	}

	if crit.MaxMemoryUsage > 0 && m.Resources.PeakMemoryFraction > 0.8*crit.MaxMemoryUsage {
		sev := SeverityMedium
		if m.Resources.PeakMemoryFraction > crit.MaxMemoryUsage {
			sev = SeverityCritical
		}
		out = append(out, Bottleneck{
			Type:        BottleneckMemory,
			Severity:    sev,
			Description: fmt.Sprintf("peak memory %.0f%% of the configured limit", m.Resources.PeakMemoryFraction/crit.MaxMemoryUsage*100),
		})
	}

	if m.Resources.P95CPUPercent > 80 {
		sev := SeverityMedium
		if m.Resources.P95CPUPercent > 90 {
			sev = SeverityHigh
		}
		out = append(out, Bottleneck{
			Type:        BottleneckCPU,
			Severity:    sev,
			Description: fmt.Sprintf("p95 CPU at %.1f%%", m.Resources.P95CPUPercent),
		})
	}

	return out
}

// Recommend derives follow-up actions from the detected bottlenecks, most
// severe first, plus generic advice keyed off the aggregate metrics.
func Recommend(bottlenecks []Bottleneck, m metrics.StressMetrics) []string {
	var out []string

	bySeverity := func(sev Severity) {
		for _, b := range bottlenecks {
			if b.Severity != sev {
				continue
			}
			switch b.Type {
			case BottleneckAPI:
				out = append(out, "Profile slow endpoints and add caching or connection pooling for the dominant action types")
			case BottleneckMemory:
				out = append(out, "Capture a heap profile at peak load and review allocation hot spots")
			case BottleneckCPU:
				out = append(out, "Capture a CPU profile under load and consider scaling out before raising per-node limits")
			}
		}
	}
	bySeverity(SeverityCritical)
	bySeverity(SeverityHigh)
	bySeverity(SeverityMedium)
	bySeverity(SeverityLow)

	if m.Requests.ErrorRate > 0.05 {
		out = append(out, fmt.Sprintf("Error rate %.1f%% is high; classify the recorded errors before the next run", m.Requests.ErrorRate*100))
	}
	if m.Requests.Total > 0 && m.Requests.P99ResponseTimeMs > 4*m.Requests.P50ResponseTimeMs && m.Requests.P50ResponseTimeMs > 0 {
		out = append(out, "Wide p50/p99 spread suggests tail latency outliers; inspect the slowest actions in the timeline")
	}

	return out
}
