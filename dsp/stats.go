package dsp

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile (0-100) of data using the same
// index-on-sorted-copy convention as the spectrum statistics: the value at
// index floor(len * p/100), clamped to the last element.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * p / 100.0)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// Median returns the middle value of data (upper median for even lengths,
// matching the percentile convention above).
func Median(data []float64) float64 {
	return Percentile(data, 50)
}

// MAD returns the median absolute deviation of data.
func MAD(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := Median(data)
	dev := make([]float64, len(data))
	for i, v := range data {
		dev[i] = math.Abs(v - m)
	}
	return Median(dev)
}

// PercentileAmplitude returns (p95 - p5) / 2 of x, a robust amplitude
// estimate insensitive to isolated spikes. Never negative.
func PercentileAmplitude(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	amp := (Percentile(x, 95) - Percentile(x, 5)) / 2.0
	if amp < 0 {
		amp = 0
	}
	return amp
}

// MinMax returns the smallest and largest values of x in one pass.
func MinMax(x []float64) (min, max float64) {
	if len(x) == 0 {
		return 0, 0
	}
	min, max = x[0], x[0]
	for _, v := range x[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
