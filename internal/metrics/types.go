// Package metrics provides streaming aggregation of load-test telemetry:
// request counts, latency percentiles, throughput, and host resource usage.
package metrics

import "time"

// RequestMetrics aggregates per-request outcomes.
type RequestMetrics struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`

	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	MinResponseTimeMs int64   `json:"min_response_time_ms"`
	MaxResponseTimeMs int64   `json:"max_response_time_ms"`
	P50ResponseTimeMs int64   `json:"p50_response_time_ms"`
	P95ResponseTimeMs int64   `json:"p95_response_time_ms"`
	P99ResponseTimeMs int64   `json:"p99_response_time_ms"`

	// Throughput is completed requests per wall-clock second since run start.
	Throughput float64 `json:"throughput"`

	// ErrorRate is failed/total in [0,1]; 0 when total is 0.
	ErrorRate float64 `json:"error_rate"`
}

// PerformanceMetrics captures run-level performance indicators.
type PerformanceMetrics struct {
	ConcurrentUsers       int     `json:"concurrent_users"`
	PeakConcurrentUsers   int     `json:"peak_concurrent_users"`
	TransactionsPerSecond float64 `json:"transactions_per_second"`
	DataTransferredBytes  int64   `json:"data_transferred_bytes"`
}

// ResourceMetrics tracks host/process resource usage as running max and avg.
type ResourceMetrics struct {
	CPUPercent     float64 `json:"cpu_percent"`
	PeakCPUPercent float64 `json:"peak_cpu_percent"`
	AvgCPUPercent  float64 `json:"avg_cpu_percent"`
	P95CPUPercent  float64 `json:"p95_cpu_percent"`

	// MemoryFraction is used memory as a fraction of the limit in [0,1].
	MemoryFraction     float64 `json:"memory_fraction"`
	PeakMemoryFraction float64 `json:"peak_memory_fraction"`
	MemoryBytes        int64   `json:"memory_bytes"`
	PeakMemoryBytes    int64   `json:"peak_memory_bytes"`

	DiskPercent  float64 `json:"disk_percent"`
	NetworkBytes int64   `json:"network_bytes"`
}

// StressMetrics is the full aggregate snapshot for a run.
type StressMetrics struct {
	Requests    RequestMetrics     `json:"requests"`
	Performance PerformanceMetrics `json:"performance"`
	Resources   ResourceMetrics    `json:"resources"`
}

// EntryType classifies timeline entries. Alert and milestone entries are
// never shed by the telemetry queue; metric entries may be.
type EntryType string

const (
	EntryMetric    EntryType = "metric"
	EntryError     EntryType = "error"
	EntryMilestone EntryType = "milestone"
	EntryAlert     EntryType = "alert"
)

// TimelineEntry is one record in the append-only run timeline.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Value     float64   `json:"value"`
	Type      EntryType `json:"type"`
}

// StressError records a single anomaly observed during a run.
type StressError struct {
	Timestamp time.Time              `json:"timestamp"`
	Scenario  string                 `json:"scenario"`
	Action    string                 `json:"action"`
	Error     string                 `json:"error"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Sample is one completed action outcome reported by a virtual user.
type Sample struct {
	Scenario  string
	Action    string
	LatencyMs int64
	Bytes     int64
}
