package analysis

import (
	"math"
	"sort"

	"github.com/forgebench/forgebench/internal/metrics"
)

// TrendPoint is one observation in a load-ordered series.
type TrendPoint struct {
	// Load is the concurrent user count (or sample index when unknown).
	Load int

	LatencyP95Ms   float64
	ErrorRate      float64
	Throughput     float64
	MemoryFraction float64
}

// KneeResult reports where a metric's behavior inflects under load.
type KneeResult struct {
	Detected bool    `json:"detected"`
	Load     int     `json:"load,omitempty"`
	Value    float64 `json:"value,omitempty"`
	Metric   string  `json:"metric"`
	Details  string  `json:"details,omitempty"`
}

// TrendDetector finds capacity knees and resource growth in a run's series.
type TrendDetector struct {
	minPoints          int
	errorRateThreshold float64
}

// NewTrendDetector creates a detector with default thresholds.
func NewTrendDetector() *TrendDetector {
	return &TrendDetector{
		minPoints:          5,
		errorRateThreshold: 0.05,
	}
}

// DetectLatencyKnee finds the point of maximum curvature in the p95 latency
// series, normalized to [0,1].
func (d *TrendDetector) DetectLatencyKnee(points []TrendPoint) *KneeResult {
	result := &KneeResult{Metric: "latency_p95"}

	if len(points) < d.minPoints {
		result.Details = "insufficient data points"
		return result
	}

	sorted := sortByLoad(points)
	values := make([]float64, len(sorted))
	for i, p := range sorted {
		values[i] = p.LatencyP95Ms
	}

	idx := kneeByMaxCurvature(values)
	if idx < 0 {
		result.Details = "no significant inflection"
		return result
	}

	result.Detected = true
	result.Load = sorted[idx].Load
	result.Value = values[idx]
	result.Details = "latency inflection detected"
	return result
}

// DetectErrorKnee finds the first load level where the error rate crosses
// the threshold.
func (d *TrendDetector) DetectErrorKnee(points []TrendPoint) *KneeResult {
	result := &KneeResult{Metric: "error_rate"}

	if len(points) < d.minPoints {
		result.Details = "insufficient data points"
		return result
	}

	sorted := sortByLoad(points)
	for _, p := range sorted {
		if p.ErrorRate >= d.errorRateThreshold {
			result.Detected = true
			result.Load = p.Load
			result.Value = p.ErrorRate
			result.Details = "error rate threshold exceeded"
			return result
		}
	}

	result.Details = "error rate below threshold throughout"
	return result
}

// DetectCapacityKnee prefers the error knee over the latency knee: errors
// mark the harder capacity limit.
func (d *TrendDetector) DetectCapacityKnee(points []TrendPoint) *KneeResult {
	if errKnee := d.DetectErrorKnee(points); errKnee.Detected {
		return errKnee
	}
	if latKnee := d.DetectLatencyKnee(points); latKnee.Detected {
		return latKnee
	}
	return &KneeResult{Metric: "combined", Details: "no knee detected"}
}

// GrowthResult reports monotonic resource growth over a run.
type GrowthResult struct {
	Growing bool    `json:"growing"`
	Slope   float64 `json:"slope"`
	Details string  `json:"details,omitempty"`
}

// DetectMemoryGrowth fits a least-squares line through the memory series.
// Sustained positive slope with more than 10% relative growth over the run
// is flagged, which usually means a leak in the target under load.
func (d *TrendDetector) DetectMemoryGrowth(points []TrendPoint) *GrowthResult {
	result := &GrowthResult{}

	if len(points) < d.minPoints {
		result.Details = "insufficient data points"
		return result
	}

	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.MemoryFraction
		sumXY += x * p.MemoryFraction
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		result.Details = "degenerate series"
		return result
	}
	result.Slope = (n*sumXY - sumX*sumY) / denom

	first := points[0].MemoryFraction
	last := points[len(points)-1].MemoryFraction
	if result.Slope > 0 && first > 0 && (last-first)/first > 0.10 {
		result.Growing = true
		result.Details = "memory grew steadily across the run"
	} else {
		result.Details = "no sustained memory growth"
	}
	return result
}

// TrendFromTimeline builds a memory series from metric timeline entries
// recorded by the aggregator's tick loop. The point index stands in for load.
func TrendFromTimeline(entries []metrics.TimelineEntry) []TrendPoint {
	var points []TrendPoint
	for _, e := range entries {
		if e.Type != metrics.EntryMetric || e.Event != "memory" {
			continue
		}
		points = append(points, TrendPoint{Load: len(points), MemoryFraction: e.Value})
	}
	return points
}

func sortByLoad(points []TrendPoint) []TrendPoint {
	sorted := make([]TrendPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Load < sorted[j].Load })
	return sorted
}

// kneeByMaxCurvature returns the index of the sharpest bend in the series,
// or -1 when the series is flat or too short.
func kneeByMaxCurvature(values []float64) int {
	if len(values) < 3 {
		return -1
	}

	minVal, maxVal := values[0], values[0]
	for _, v := range values {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal-minVal < 1.0 {
		return -1
	}

	normalized := make([]float64, len(values))
	for i, v := range values {
		normalized[i] = (v - minVal) / (maxVal - minVal)
	}

	maxCurv := 0.0
	kneeIdx := -1
	for i := 1; i < len(normalized)-1; i++ {
		c := curvature(
			float64(i-1), normalized[i-1],
			float64(i), normalized[i],
			float64(i+1), normalized[i+1],
		)
		if c > maxCurv {
			maxCurv = c
			kneeIdx = i
		}
	}

	if maxCurv < 0.1 {
		return -1
	}
	return kneeIdx
}

func curvature(x1, y1, x2, y2, x3, y3 float64) float64 {
	dx1, dy1 := x2-x1, y2-y1
	dx2, dy2 := x3-x2, y3-y2

	cross := dx1*dy2 - dy1*dx2
	len1 := math.Sqrt(dx1*dx1 + dy1*dy1)
	len2 := math.Sqrt(dx2*dx2 + dy2*dy2)
	if len1 < 1e-10 || len2 < 1e-10 {
		return 0
	}
	return math.Abs(cross) / (len1 * len2)
}
