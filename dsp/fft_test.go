package dsp

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

func TestPSDPeakBin(t *testing.T) {
	const fs = 256.0
	const n = 1024
	const f = 10.0 // bin-centered: 10 / (256/1024) = 40

	freqs, psd := PSD(sine(f, fs, n), fs, n)
	require.Len(t, freqs, n/2+1)
	require.Len(t, psd, n/2+1)

	peak := 0
	for i := range psd {
		if psd[i] > psd[peak] {
			peak = i
		}
	}

	binWidth := freqs[1] - freqs[0]
	assert.InDelta(t, f, freqs[peak], binWidth)
}

func TestPSDPowerRecovery(t *testing.T) {
	const fs = 256.0
	const n = 1024
	const f = 10.0

	freqs, psd := PSD(sine(f, fs, n), fs, n)
	binWidth := freqs[1] - freqs[0]

	peak := 0
	for i := range psd {
		if psd[i] > psd[peak] {
			peak = i
		}
	}

	// Integrate a +-2 bin neighborhood around the peak; a unit-amplitude
	// sinusoid carries total power 1/2.
	recovered := 0.0
	for i := peak - 2; i <= peak+2; i++ {
		if i >= 0 && i < len(psd) {
			recovered += psd[i] * binWidth
		}
	}
	assert.GreaterOrEqual(t, recovered, 0.9*0.5, "window leakage should keep >=90%% of power within +-2 bins")
}

func TestPSDZeroInput(t *testing.T) {
	const n = 512
	freqs, psd := PSD(make([]float64, n), 256, n)
	require.Len(t, psd, n/2+1)
	for i := range psd {
		assert.False(t, math.IsNaN(psd[i]), "bin %d (%.2f Hz) is NaN", i, freqs[i])
		assert.Equal(t, 0.0, psd[i])
	}
}

func TestPSDEmptyInput(t *testing.T) {
	freqs, psd := PSD(nil, 256, 0)
	assert.Nil(t, freqs)
	assert.Nil(t, psd)
}

func TestPSDZeroPadding(t *testing.T) {
	const fs = 256.0
	frame := sine(10, fs, 512)
	freqs, psd := PSD(frame, fs, 2048)
	require.Len(t, psd, 1025)
	assert.InDelta(t, fs/2048, freqs[1]-freqs[0], 1e-12)

	// Zero padding interpolates the spectrum; it must not change total
	// power. A unit-amplitude sinusoid integrates to 1/2 either way.
	integrate := func(freqs, psd []float64) float64 {
		binWidth := freqs[1] - freqs[0]
		sum := 0.0
		for _, p := range psd {
			sum += p * binWidth
		}
		return sum
	}
	padded := integrate(freqs, psd)
	assert.InDelta(t, 0.5, padded, 0.02)

	unpaddedFreqs, unpaddedPSD := PSD(frame, fs, 512)
	assert.InDelta(t, integrate(unpaddedFreqs, unpaddedPSD), padded, 0.01)
}

func TestToDB(t *testing.T) {
	out := ToDB([]float64{1, 0.1, 0}, 1e-12)
	assert.InDelta(t, 0, out[0], 1e-9)
	assert.InDelta(t, -10, out[1], 1e-9)
	assert.InDelta(t, -120, out[2], 1e-9)
}

func TestNextPowerOf2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 1024: 1024, 1025: 2048, 4096: 4096, 4100: 8192}
	for in, want := range cases {
		assert.Equal(t, want, NextPowerOf2(in), "NextPowerOf2(%d)", in)
	}
}

func TestHannWindow(t *testing.T) {
	w := HannWindow(1024)
	require.Len(t, w, 1024)
	assert.InDelta(t, 0, w[0], 1e-12)
	assert.InDelta(t, 0, w[1023], 1e-12)
	assert.InDelta(t, 1, w[511], 1e-4)

	// Mean squared value of a Hann window approaches 3/8 for long windows.
	assert.InDelta(t, 0.375, MeanWindowPower(w), 0.001)
}

func TestDetrend(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	d := Detrend(x)
	assert.InDelta(t, 0, Mean(d), 1e-12)
	// Original slice is untouched.
	assert.Equal(t, 1.0, x[0])
}
