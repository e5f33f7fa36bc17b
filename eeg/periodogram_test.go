package eeg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq, fs float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / fs)
	}
	return out
}

func TestComputePeriodogramPeak(t *testing.T) {
	const fs = 256.0
	p := ComputePeriodogram(sine(10, fs, 1024), fs, 0, 50)
	require.NotNil(t, p)
	require.Equal(t, len(p.Freqs), len(p.PSD))

	peak := 0
	for i := range p.PSD {
		if p.PSD[i] > p.PSD[peak] {
			peak = i
		}
	}
	assert.InDelta(t, 10.0, p.Freqs[peak], p.BinWidth())
}

func TestComputePeriodogramTruncation(t *testing.T) {
	p := ComputePeriodogram(sine(10, 256, 1024), 256, 0, 50)
	require.NotNil(t, p)
	assert.LessOrEqual(t, p.Freqs[len(p.Freqs)-1], 50.0)
	assert.Greater(t, p.Freqs[len(p.Freqs)-1], 49.0, "axis should extend to the ceiling")
}

func TestComputePeriodogramNotch(t *testing.T) {
	const fs = 256.0
	signal := sine(60, fs, 1024)

	raw := ComputePeriodogram(signal, fs, 0, 0)
	notched := ComputePeriodogram(signal, fs, 60, 0)
	require.NotNil(t, raw)
	require.NotNil(t, notched)

	at60 := int(60.0 / raw.BinWidth())
	assert.Less(t, notched.PSD[at60], raw.PSD[at60]/10, "notch should suppress mains power by >10x")
}

func TestComputePeriodogramZeroInput(t *testing.T) {
	p := ComputePeriodogram(make([]float64, 1024), 256, 60, 50)
	require.NotNil(t, p)
	for i, v := range p.PSD {
		assert.False(t, math.IsNaN(v), "bin %d is NaN", i)
		assert.Equal(t, 0.0, v)
	}

	assert.Nil(t, ComputePeriodogram(nil, 256, 0, 50))
}

func TestAverager(t *testing.T) {
	freqs := []float64{0, 1, 2}
	flat := func(v float64) *Periodogram {
		return &Periodogram{Freqs: freqs, PSD: []float64{v, v, v}}
	}

	a := NewAverager(4)
	assert.Nil(t, a.Average())

	for _, v := range []float64{1, 2, 3, 4} {
		a.Add(flat(v))
	}
	avg := a.Average()
	require.NotNil(t, avg)
	assert.Equal(t, freqs, avg.Freqs)
	assert.InDelta(t, 2.5, avg.PSD[0], 1e-12)

	// Depth eviction: the oldest contribution drops out.
	a.Add(flat(6))
	assert.InDelta(t, 3.75, a.Average().PSD[1], 1e-12)

	a.Reset()
	assert.Equal(t, 0, a.Len())
	assert.Nil(t, a.Average())
}
