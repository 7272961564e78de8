package metrics

import (
	"sync"
	"time"
)

// Aggregator collects outcome samples from all virtual users and computes
// running throughput, error rate, and latency percentiles. Callbacks are
// synchronous and mutex-guarded; producers never share latency buffers with
// readers (percentiles are computed over a sorted copy).
type Aggregator struct {
	mu    sync.Mutex
	probe ResourceProbe

	startTime time.Time
	endTime   time.Time

	total      int64
	successful int64
	failed     int64
	latencies  []int64
	minLatency int64
	maxLatency int64
	sumLatency int64
	bytes      int64

	concurrentUsers int
	peakUsers       int

	errors   []StressError
	timeline []TimelineEntry

	cpuSamples  []float64
	peakCPU     float64
	sumCPU      float64
	lastSample  ResourceSample
	peakMemFrac float64
	peakMemB    int64
}

// NewAggregator creates an aggregator; a nil probe defaults to the host probe.
func NewAggregator(probe ResourceProbe) *Aggregator {
	if probe == nil {
		probe = NewHostProbe()
	}
	return &Aggregator{probe: probe}
}

// Start marks the beginning of the measurement window.
func (a *Aggregator) Start(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startTime = now
	a.endTime = time.Time{}
}

// Finish freezes the measurement window used for throughput.
func (a *Aggregator) Finish(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.endTime = now
}

// ReportSuccess records one successful action outcome.
func (a *Aggregator) ReportSuccess(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.successful++
	a.recordLatencyLocked(s)
}

// ReportFailure records one failed action outcome along with its error.
func (a *Aggregator) ReportFailure(s Sample, serr StressError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.failed++
	a.recordLatencyLocked(s)
	if serr.Timestamp.IsZero() {
		serr.Timestamp = time.Now()
	}
	a.errors = append(a.errors, serr)
	a.timeline = append(a.timeline, TimelineEntry{
		Timestamp: serr.Timestamp,
		Event:     "action_failed:" + serr.Action,
		Value:     float64(s.LatencyMs),
		Type:      EntryError,
	})
}

// RecordError records a run-level error not tied to a single action sample.
func (a *Aggregator) RecordError(serr StressError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if serr.Timestamp.IsZero() {
		serr.Timestamp = time.Now()
	}
	a.errors = append(a.errors, serr)
}

func (a *Aggregator) recordLatencyLocked(s Sample) {
	a.latencies = append(a.latencies, s.LatencyMs)
	a.sumLatency += s.LatencyMs
	a.bytes += s.Bytes
	if a.minLatency == 0 || s.LatencyMs < a.minLatency {
		a.minLatency = s.LatencyMs
	}
	if s.LatencyMs > a.maxLatency {
		a.maxLatency = s.LatencyMs
	}
}

// SetConcurrentUsers updates the active user gauge.
func (a *Aggregator) SetConcurrentUsers(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.concurrentUsers = n
	if n > a.peakUsers {
		a.peakUsers = n
	}
}

// AddTimeline appends one entry to the run timeline.
func (a *Aggregator) AddTimeline(event string, value float64, typ EntryType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeline = append(a.timeline, TimelineEntry{
		Timestamp: time.Now(),
		Event:     event,
		Value:     value,
		Type:      typ,
	})
}

// Tick samples host resources and appends metric timeline entries. Called
// from the scheduler's hold-phase control loop, never concurrently with
// itself.
func (a *Aggregator) Tick(now time.Time) {
	sample, err := a.probe.Sample()
	if err != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastSample = sample
	a.cpuSamples = append(a.cpuSamples, sample.CPUPercent)
	a.sumCPU += sample.CPUPercent
	if sample.CPUPercent > a.peakCPU {
		a.peakCPU = sample.CPUPercent
	}
	if sample.MemoryFraction > a.peakMemFrac {
		a.peakMemFrac = sample.MemoryFraction
	}
	if sample.MemoryBytes > a.peakMemB {
		a.peakMemB = sample.MemoryBytes
	}

	a.timeline = append(a.timeline,
		TimelineEntry{Timestamp: now, Event: "memory", Value: sample.MemoryFraction, Type: EntryMetric},
		TimelineEntry{Timestamp: now, Event: "cpu", Value: sample.CPUPercent, Type: EntryMetric},
	)
}

// Snapshot computes the full aggregate. Producers keep reporting; the
// snapshot reflects everything reported strictly before the call.
func (a *Aggregator) Snapshot() StressMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() StressMetrics {
	var m StressMetrics

	m.Requests.Total = a.total
	m.Requests.Successful = a.successful
	m.Requests.Failed = a.failed
	m.Requests.MinResponseTimeMs = a.minLatency
	m.Requests.MaxResponseTimeMs = a.maxLatency
	if a.total > 0 {
		m.Requests.AvgResponseTimeMs = float64(a.sumLatency) / float64(a.total)
		m.Requests.ErrorRate = float64(a.failed) / float64(a.total)
	}
	m.Requests.P50ResponseTimeMs = Percentile(a.latencies, 50)
	m.Requests.P95ResponseTimeMs = Percentile(a.latencies, 95)
	m.Requests.P99ResponseTimeMs = Percentile(a.latencies, 99)

	elapsed := a.elapsedSecondsLocked()
	if elapsed > 0 {
		m.Requests.Throughput = float64(a.total) / elapsed
	}

	m.Performance.ConcurrentUsers = a.concurrentUsers
	m.Performance.PeakConcurrentUsers = a.peakUsers
	m.Performance.TransactionsPerSecond = m.Requests.Throughput
	m.Performance.DataTransferredBytes = a.bytes

	m.Resources.CPUPercent = a.lastSample.CPUPercent
	m.Resources.PeakCPUPercent = a.peakCPU
	if len(a.cpuSamples) > 0 {
		m.Resources.AvgCPUPercent = a.sumCPU / float64(len(a.cpuSamples))
	}
	m.Resources.P95CPUPercent = PercentileFloat(a.cpuSamples, 95)
	m.Resources.MemoryFraction = a.lastSample.MemoryFraction
	m.Resources.PeakMemoryFraction = a.peakMemFrac
	m.Resources.MemoryBytes = a.lastSample.MemoryBytes
	m.Resources.PeakMemoryBytes = a.peakMemB
	m.Resources.DiskPercent = a.lastSample.DiskPercent
	m.Resources.NetworkBytes = a.lastSample.NetworkBytes

	return m
}

func (a *Aggregator) elapsedSecondsLocked() float64 {
	if a.startTime.IsZero() {
		return 0
	}
	end := a.endTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(a.startTime).Seconds()
}

// MetricValue returns the current value for a named alert metric. The second
// return is false for unknown metrics, which must never fire alerts.
func (a *Aggregator) MetricValue(name string) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch name {
	case "memory":
		return a.lastSample.MemoryFraction, true
	case "cpu":
		return a.lastSample.CPUPercent, true
	case "error_rate", "errorRate":
		if a.total == 0 {
			return 0, true
		}
		return float64(a.failed) / float64(a.total), true
	case "response_time", "responseTime":
		if a.total == 0 {
			return 0, true
		}
		return float64(a.sumLatency) / float64(a.total), true
	case "p95_response_time":
		return float64(Percentile(a.latencies, 95)), true
	case "p99_response_time":
		return float64(Percentile(a.latencies, 99)), true
	case "throughput":
		elapsed := a.elapsedSecondsLocked()
		if elapsed <= 0 {
			return 0, true
		}
		return float64(a.total) / elapsed, true
	case "concurrent_users":
		return float64(a.concurrentUsers), true
	default:
		return 0, false
	}
}

// Timeline returns a copy of the timeline entries recorded so far.
func (a *Aggregator) Timeline() []TimelineEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TimelineEntry, len(a.timeline))
	copy(out, a.timeline)
	return out
}

// Errors returns a copy of the errors recorded so far.
func (a *Aggregator) Errors() []StressError {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]StressError, len(a.errors))
	copy(out, a.errors)
	return out
}

// Merge folds a finished sub-aggregator's counters into this one by
// summation. Used when the worker pool runs partitions of the user
// population on separate aggregators.
func (a *Aggregator) Merge(sub *Aggregator) {
	sub.mu.Lock()
	total, successful, failed := sub.total, sub.successful, sub.failed
	latencies := make([]int64, len(sub.latencies))
	copy(latencies, sub.latencies)
	sumLatency, bytes := sub.sumLatency, sub.bytes
	minL, maxL := sub.minLatency, sub.maxLatency
	errs := make([]StressError, len(sub.errors))
	copy(errs, sub.errors)
	tl := make([]TimelineEntry, len(sub.timeline))
	copy(tl, sub.timeline)
	sub.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.total += total
	a.successful += successful
	a.failed += failed
	a.latencies = append(a.latencies, latencies...)
	a.sumLatency += sumLatency
	a.bytes += bytes
	if minL > 0 && (a.minLatency == 0 || minL < a.minLatency) {
		a.minLatency = minL
	}
	if maxL > a.maxLatency {
		a.maxLatency = maxL
	}
	a.errors = append(a.errors, errs...)
	a.timeline = append(a.timeline, tl...)
}
