package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}
	assert.Equal(t, 1.0, Percentile(data, 0))
	assert.Equal(t, 3.0, Percentile(data, 50))
	assert.Equal(t, 5.0, Percentile(data, 95))
	assert.Equal(t, 5.0, Percentile(data, 100))
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestMedianAndMAD(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 3.0, Median(data))
	// Deviations from 3 are {2,1,0,1,2}; their median is 1.
	assert.Equal(t, 1.0, MAD(data))
	assert.Equal(t, 0.0, MAD(nil))
}

func TestPercentileAmplitude(t *testing.T) {
	x := sine(1, 64, 640)
	amp := PercentileAmplitude(x)
	assert.InDelta(t, 1.0, amp, 0.1, "robust amplitude of a unit sinusoid is near 1")

	assert.Equal(t, 0.0, PercentileAmplitude(nil))
	assert.Equal(t, 0.0, PercentileAmplitude(make([]float64, 100)))
}

func TestMinMax(t *testing.T) {
	min, max := MinMax([]float64{3, -1, 4, -5, 2})
	assert.Equal(t, -5.0, min)
	assert.Equal(t, 4.0, max)

	min, max = MinMax(nil)
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 0.0, max)
}
