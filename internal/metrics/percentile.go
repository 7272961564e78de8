package metrics

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile over a sorted copy of samples using
// the nearest-rank method: sorted[max(0, ceil(p/100*n)-1)]. The input slice
// is never mutated. Returns 0 for an empty slice.
func Percentile(samples []int64, p float64) int64 {
	n := len(samples)
	if n == 0 {
		return 0
	}

	sorted := make([]int64, n)
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(math.Ceil(p/100*float64(n))) - 1
	if index < 0 {
		index = 0
	}
	if index >= n {
		index = n - 1
	}

	return sorted[index]
}

// PercentileFloat is Percentile over float64 samples, used for CPU series.
func PercentileFloat(samples []float64, p float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	index := int(math.Ceil(p/100*float64(n))) - 1
	if index < 0 {
		index = 0
	}
	if index >= n {
		index = n - 1
	}

	return sorted[index]
}
