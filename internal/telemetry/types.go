// Package telemetry streams run records to JSONL output and persists
// finished test results through pluggable sinks.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/forgebench/forgebench/internal/metrics"
)

// RecordTier is the priority tier of a run record. Tier 0 records are
// never dropped, tier 2 records are shed first under backpressure.
type RecordTier int

const (
	// Tier0Lifecycle covers run lifecycle, alerts, and milestones.
	Tier0Lifecycle RecordTier = 0

	// Tier1Error covers per-action failures.
	Tier1Error RecordTier = 1

	// Tier2Metric covers periodic resource metric samples.
	Tier2Metric RecordTier = 2
)

// RecordVersion is the current run record format version.
const RecordVersion = "run-record/v1"

// RunRecord is one JSONL line in a run's record stream. Exactly one of
// Timeline and Error is set, selected by Type.
type RunRecord struct {
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	TestID    string    `json:"test_id"`
	Timestamp time.Time `json:"timestamp"`

	Timeline *metrics.TimelineEntry `json:"timeline,omitempty"`
	Error    *metrics.StressError   `json:"error,omitempty"`

	Tier RecordTier `json:"-"`
}

// MarshalJSONL marshals the record to a JSONL line without the trailing
// newline.
func (r *RunRecord) MarshalJSONL() ([]byte, error) {
	return json.Marshal(r)
}

// tierFor maps a timeline entry type to its shedding tier.
func tierFor(t metrics.EntryType) RecordTier {
	switch t {
	case metrics.EntryMetric:
		return Tier2Metric
	case metrics.EntryError:
		return Tier1Error
	default:
		return Tier0Lifecycle
	}
}

// QueueStats describes queue occupancy and shedding counters.
type QueueStats struct {
	Depth         int
	Capacity      int
	TotalEnqueued int64
	TotalDequeued int64
	DroppedTier2  int64
	DroppedTier1  int64
}

// RecorderConfig controls the record pipeline.
type RecorderConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultRecorderConfig returns sensible defaults for the recorder.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		QueueSize:     10000,
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// EmitterConfig controls JSONL output.
type EmitterConfig struct {
	// OutputPath is the path to write JSONL output. Empty disables output.
	OutputPath string

	// BufferSize is the write buffer size in bytes.
	BufferSize int

	// SyncOnWrite forces a flush and fsync after each write.
	SyncOnWrite bool
}

// DefaultEmitterConfig returns sensible defaults for the emitter.
func DefaultEmitterConfig() *EmitterConfig {
	return &EmitterConfig{
		BufferSize:  64 * 1024,
		SyncOnWrite: false,
	}
}
